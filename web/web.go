// Package web holds the browser viewer served at the root path.
package web

import _ "embed"

// Index is the single-page canvas viewer.
//
//go:embed index.html
var Index []byte
