package httpapi

import (
	"bytes"
	"embed"
	"io/fs"
	"net/http"
	"time"
)

// The tab strip page: index.html talks to /api and follows /api/stream.
//
//go:embed assets/*
var embeddedAssets embed.FS

var assetsFS = mustSub(embeddedAssets, "assets")

// loaded is the process start, used as Last-Modified for the rendered page.
var loaded = time.Now()

func mustSub(fsys fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(err)
	}
	return sub
}

func assetHandler() http.Handler {
	return http.StripPrefix("/assets/", http.FileServer(http.FS(assetsFS)))
}

// indexPage renders index.html once with the configured base href.
func indexPage(baseHref string) ([]byte, error) {
	page, err := fs.ReadFile(assetsFS, "index.html")
	if err != nil {
		return nil, err
	}
	return applyBaseHref(page, baseHref), nil
}

func serveIndex(w http.ResponseWriter, r *http.Request, page []byte) {
	http.ServeContent(w, r, "index.html", loaded, bytes.NewReader(page))
}
