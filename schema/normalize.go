package schema

import (
	"net/url"
	"strings"
)

// NormalizeInputURL turns address-bar input into a loadable URL.
// Input without an http or https scheme gets an https:// prefix.
func NormalizeInputURL(input string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", ErrInvalidURL
	}
	lower := strings.ToLower(trimmed)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return trimmed, nil
	}
	return "https://" + trimmed, nil
}

// IsWebScheme reports whether a renderer should load rawURL itself.
// Links to app schemes (weixin://, alipays:// and the like) are not loaded.
func IsWebScheme(rawURL string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "about", "data", "blob", "file":
		return true
	default:
		return false
	}
}

// DeriveLabel returns the host of rawURL, or rawURL unchanged when it does
// not parse or has no host. It never fails.
func DeriveLabel(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	host := u.Hostname()
	if host == "" {
		return rawURL
	}
	return host
}
