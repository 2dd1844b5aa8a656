package holocrypt

import (
	"embed"
	"io/fs"
)

// views and static assets ship inside the binary
//
//go:embed views public
var embeddedFS embed.FS

// ViewsFS returns the templates rooted at views/
func ViewsFS() fs.FS {
	sub, err := fs.Sub(embeddedFS, "views")
	if err != nil {
		panic(err)
	}
	return sub
}

// PublicFS returns the static assets rooted at public/
func PublicFS() fs.FS {
	sub, err := fs.Sub(embeddedFS, "public")
	if err != nil {
		panic(err)
	}
	return sub
}
