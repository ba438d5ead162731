// Package web embeds the static front end for serving from the Go binary.
//
// The web/out/ tree is plain HTML/CSS/JS — a ticker form posting to
// /generate — embedded at compile time with go:embed.
//
// Usage in the API server:
//
//	import "github.com/seenimoa/geckomap/web"
//	fs := web.DistFS()  // returns io/fs.FS rooted at out/
package web

import (
	"embed"
	"io/fs"
	"log"
)

//go:embed all:out
var dist embed.FS

// DistFS returns a filesystem rooted at the embedded out/ directory.
// This is ready to use with http.FileServerFS or http.FS.
func DistFS() fs.FS {
	sub, err := fs.Sub(dist, "out")
	if err != nil {
		log.Fatalf("web.DistFS: %v", err)
	}
	return sub
}
