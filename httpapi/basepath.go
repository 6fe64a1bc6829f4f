package httpapi

import (
	"bytes"
	"fmt"
	"html"
	"net/http"
	"path"
	"strings"
)

const baseHrefPlaceholder = "<!-- BASE_HREF -->"

// normalizeBasePath returns the mount prefix with a leading slash and no
// trailing slash, or "" when the API is served at the root.
func normalizeBasePath(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	cleaned := path.Clean("/" + value)
	if cleaned == "/" {
		return ""
	}
	return cleaned
}

// buildBaseHref is what the tab strip page resolves its relative API and
// asset URLs against.
func buildBaseHref(baseURL, basePath string) string {
	href := strings.TrimRight(strings.TrimSpace(baseURL), "/") + normalizeBasePath(basePath)
	if href == "" || strings.HasSuffix(href, "/") {
		return href
	}
	return href + "/"
}

func applyBaseHref(page []byte, baseHref string) []byte {
	var tag string
	if strings.TrimSpace(baseHref) != "" {
		tag = fmt.Sprintf(`<base href="%s" />`, html.EscapeString(baseHref))
	}
	return bytes.ReplaceAll(page, []byte(baseHrefPlaceholder), []byte(tag))
}

// mountAt serves h under prefix. The bare prefix redirects to prefix + "/"
// so relative links on the page resolve inside the mount.
func mountAt(prefix string, h http.Handler) http.Handler {
	if prefix == "" {
		return h
	}
	root := http.NewServeMux()
	root.Handle(prefix+"/", http.StripPrefix(prefix, h))
	root.HandleFunc(prefix, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != prefix {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, prefix+"/", http.StatusTemporaryRedirect)
	})
	return root
}
