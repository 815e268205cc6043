package scripthost

import (
	"html"
	"regexp"
	"strings"
)

// The host only ever navigates to documents rendered by this module's
// own template, so a few anchored patterns are enough to recover the
// policy nonce and the script tags from the serialized form.
var (
	policyMetaRe  = regexp.MustCompile(`<meta http-equiv="Content-Security-Policy" content="([^"]*)"`)
	policyNonceRe = regexp.MustCompile(`'nonce-([A-Za-z0-9]+)'`)
	scriptTagRe   = regexp.MustCompile(`(?s)<script\b([^>]*)>(.*?)</script>`)
	tagAttrRe     = regexp.MustCompile(`([a-zA-Z-]+)="([^"]*)"`)
)

// scriptRef is one script tag lifted out of a document.
type scriptRef struct {
	Type  string
	Nonce string
	Src   string
	Body  string
}

// viewDocument is the parsed shape of a rendered panel document: the
// nonce its content security policy authorizes, and the scripts the
// markup asks to run. Scripts whose nonce does not match the policy
// nonce must not execute.
type viewDocument struct {
	PolicyNonce string
	Scripts     []scriptRef
}

func parseViewDocument(doc []byte) viewDocument {
	text := string(doc)
	var d viewDocument
	if m := policyMetaRe.FindStringSubmatch(text); m != nil {
		// html/template escapes quotes inside attribute values; the
		// policy has to be unescaped before the nonce source parses.
		policy := html.UnescapeString(m[1])
		if n := policyNonceRe.FindStringSubmatch(policy); n != nil {
			d.PolicyNonce = n[1]
		}
	}
	for _, m := range scriptTagRe.FindAllStringSubmatch(text, -1) {
		ref := scriptRef{Body: strings.TrimSpace(m[2])}
		for _, attr := range tagAttrRe.FindAllStringSubmatch(m[1], -1) {
			switch attr[1] {
			case "type":
				ref.Type = attr[2]
			case "nonce":
				ref.Nonce = attr[2]
			case "src":
				ref.Src = html.UnescapeString(attr[2])
			}
		}
		d.Scripts = append(d.Scripts, ref)
	}
	return d
}
