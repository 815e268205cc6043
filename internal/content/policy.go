package content

import "fmt"

// Policy is the content security policy attached to every rendered
// document. Source is the surface's resource-serving origin token;
// Nonce gates which script tag may execute.
type Policy struct {
	Source string
	Nonce  string
}

// String renders the policy in the form consumed by the document's
// Content-Security-Policy meta tag. Scripts are restricted to the
// nonce, styles and images to the surface origin plus https, and
// everything else is denied.
func (p Policy) String() string {
	return fmt.Sprintf(
		"default-src 'none'; style-src %s https:; img-src %s https:; script-src 'nonce-%s';",
		p.Source, p.Source, p.Nonce,
	)
}
