// Package content renders the HTML document shown inside a panel
// surface. Every render carries a fresh nonce and a strict content
// security policy; the document references the embedded feed assets
// rather than inlining them.
package content

import (
	"bytes"
	"embed"
	"html/template"
)

// Assets holds the feed view's script and stylesheet. Hosts serve
// these under the surface's resource origin.
//
//go:embed assets
var Assets embed.FS

// Embedded asset paths, relative to this package.
const (
	ScriptAsset = "assets/main.js"
	StyleAsset  = "assets/main.css"
)

// Options configures a single document render.
type Options struct {
	// Title is used for the document title and the visible header.
	Title string
	// Source is the surface's resource-serving origin token, quoted
	// verbatim in the content security policy.
	Source string
	// ScriptURI and StyleURI are the host-resolved locations of the
	// embedded assets.
	ScriptURI string
	StyleURI  string
	// Channel, when non-empty, is published to the view through a
	// meta tag so the script can open its message channel. Hosts
	// that inject a bridge directly leave it empty.
	Channel string
}

type documentData struct {
	Title  string
	Policy string
	Nonce  string
	// The asset URIs are host-resolved, never view input. They carry
	// schemes like the script host's viewscreen-resource:, which the
	// template's URL filter would otherwise reject, so they go in as
	// pre-trusted URLs.
	ScriptURI template.URL
	StyleURI  template.URL
	Channel   string
}

var documentTmpl = template.Must(template.New("document").Parse(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8" />
    <meta http-equiv="Content-Security-Policy" content="{{.Policy}}" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
{{- if .Channel}}
    <meta name="viewscreen-channel" content="{{.Channel}}" />
{{- end}}
    <title>{{.Title}}</title>
    <link rel="stylesheet" href="{{.StyleURI}}" />
  </head>
  <body>
    <header class="topbar">
      <div class="title">{{.Title}}</div>
      <div class="source" id="feed-source"></div>
    </header>
    <main class="feed" id="feed">
      <div class="empty" id="feed-empty">Waiting for the first feed snapshot&hellip;</div>
    </main>
    <script type="module" nonce="{{.Nonce}}" src="{{.ScriptURI}}"></script>
  </body>
</html>
`))

// Build renders the document with a freshly generated nonce. The
// returned nonce matches both the policy declaration and the script
// tag attribute; callers re-render (never patch) when the surface
// becomes visible again.
func Build(opts Options) ([]byte, string, error) {
	nonce, err := Nonce()
	if err != nil {
		return nil, "", err
	}
	data := documentData{
		Title:     opts.Title,
		Policy:    Policy{Source: opts.Source, Nonce: nonce}.String(),
		Nonce:     nonce,
		ScriptURI: template.URL(opts.ScriptURI),
		StyleURI:  template.URL(opts.StyleURI),
		Channel:   opts.Channel,
	}
	var buf bytes.Buffer
	if err := documentTmpl.Execute(&buf, data); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), nonce, nil
}
