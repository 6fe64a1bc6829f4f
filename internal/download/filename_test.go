package download

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestGuessFilename(t *testing.T) {
	cases := []struct {
		name        string
		url         string
		disposition string
		mime        string
		want        string
	}{
		{"disposition", "https://x.example/get?id=1", `attachment; filename="report 2024.pdf"`, "application/pdf", "report 2024.pdf"},
		{"disposition-rfc5987", "https://x.example/a", `attachment; filename*=UTF-8''na%C3%AFve.txt`, "", "naïve.txt"},
		{"disposition-lenient", "https://x.example/a", `attachment; filename=my file.zip`, "", "my file.zip"},
		{"url-segment", "https://x.example/files/archive.tar.gz?x=1", "", "", "archive.tar.gz"},
		{"url-segment-no-ext", "https://x.example/files/readme", "", "text/plain", "readme.txt"},
		{"pdf-from-mime", "https://x.example/", "", "application/pdf", "downloadfile.pdf"},
		{"unknown-mime", "", "", "application/x-webtabs-unknown", "downloadfile.bin"},
		{"blob-url", "blob:https://x.example/uuid", "", "image/png", "downloadfile.png"},
		{"traversal", "", `attachment; filename="../../etc/passwd"`, "", "passwd.bin"},
		{"windows-path", "", `attachment; filename="C:\\temp\\a.txt"`, "", "a.txt"},
	}
	for _, tc := range cases {
		if got := GuessFilename(tc.url, tc.disposition, tc.mime); got != tc.want {
			t.Fatalf("case %q: expected %q, got %q", tc.name, tc.want, got)
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"a:b*c?.txt": "a_b_c_.txt",
		"  .hidden ": "hidden",
		"..":         "",
		"tab\tname":  "tabname",
	}
	for in, want := range cases {
		if got := SanitizeFilename(in); got != want {
			t.Fatalf("sanitize %q: expected %q, got %q", in, want, got)
		}
	}
}

func TestSanitizeFilenameTruncatesOnRuneBoundary(t *testing.T) {
	got := SanitizeFilename("a" + strings.Repeat("é", 150) + ".pdf")
	if len(got) > maxFilenameBytes || !utf8.ValidString(got) {
		t.Fatalf("expected valid name within %d bytes, got len=%d %q", maxFilenameBytes, len(got), got)
	}
	if want := "a" + strings.Repeat("é", 97) + ".pdf"; got != want {
		t.Fatalf("unexpected truncation %q", got)
	}
	if got := SanitizeFilename(strings.Repeat("x", 250)); len(got) != maxFilenameBytes {
		t.Fatalf("expected ascii name cut to %d bytes, got %d", maxFilenameBytes, len(got))
	}
}

func TestFormatSize(t *testing.T) {
	cases := map[int64]string{
		0:                  "0 B",
		1023:               "1023 B",
		1024:               "1.0 KB",
		1536:               "1.5 KB",
		5 * 1024 * 1024:    "5.0 MB",
		3 << 30:            "3.0 GB",
		1024*1024*1024 - 1: "1024.0 MB",
	}
	for in, want := range cases {
		if got := FormatSize(in); got != want {
			t.Fatalf("format %d: expected %q, got %q", in, want, got)
		}
	}
}
