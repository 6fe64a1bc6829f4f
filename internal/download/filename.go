package download

import (
	"mime"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultFilename is used when nothing better can be derived.
const DefaultFilename = "downloadfile"

// GuessFilename derives a file name from a Content-Disposition header, the
// last path segment of the URL, or DefaultFilename, in that order. A name
// without an extension gets one from mimeType.
func GuessFilename(rawURL, contentDisposition, mimeType string) string {
	name := filenameFromDisposition(contentDisposition)
	if name == "" {
		name = filenameFromURL(rawURL)
	}
	name = SanitizeFilename(name)
	if name == "" {
		name = DefaultFilename
	}
	if filepath.Ext(name) == "" {
		name += extensionFor(mimeType)
	}
	return name
}

func filenameFromDisposition(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err == nil {
		// mime decodes filename* (RFC 5987) into "filename".
		if name := params["filename"]; name != "" {
			return name
		}
		return ""
	}
	// Lenient fallback for headers mime rejects, e.g. unquoted spaces.
	lower := strings.ToLower(header)
	idx := strings.Index(lower, "filename=")
	if idx < 0 {
		return ""
	}
	value := header[idx+len("filename="):]
	if end := strings.IndexByte(value, ';'); end >= 0 {
		value = value[:end]
	}
	return strings.Trim(strings.TrimSpace(value), `"'`)
}

func filenameFromURL(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	switch strings.ToLower(u.Scheme) {
	case "data", "blob", "about", "javascript":
		return ""
	}
	p := u.Path
	if p == "" || strings.HasSuffix(p, "/") {
		return ""
	}
	return path.Base(p)
}

func extensionFor(mimeType string) string {
	mediaType := strings.TrimSpace(mimeType)
	if parsed, _, err := mime.ParseMediaType(mediaType); err == nil {
		mediaType = parsed
	}
	if mediaType == "" {
		return ".bin"
	}
	if m := mimetype.Lookup(mediaType); m != nil && m.Extension() != "" {
		return m.Extension()
	}
	if exts, err := mime.ExtensionsByType(mediaType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	if strings.HasPrefix(mediaType, "text/") {
		return ".txt"
	}
	return ".bin"
}

// SanitizeFilename strips directories and characters that are unsafe in
// file names. It may return "".
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(strings.TrimSpace(name))
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r == '/' || r == ':' || r == '*' || r == '?' || r == '"' || r == '<' || r == '>' || r == '|':
			b.WriteRune('_')
		case unicode.IsControl(r):
			continue
		default:
			b.WriteRune(r)
		}
	}
	out := strings.Trim(b.String(), " .")
	if len(out) > maxFilenameBytes {
		ext := filepath.Ext(out)
		if len(ext) > 20 {
			ext = ""
		}
		out = truncateUTF8(strings.TrimSuffix(out, ext), maxFilenameBytes-len(ext)) + ext
	}
	return out
}

const maxFilenameBytes = 200

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
