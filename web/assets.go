// Package web contains the embedded HTML pages of the portal UI.
package web

import "embed"

// Pages holds login.html, client.html and admin.html.
//
//go:embed *.html
var Pages embed.FS
