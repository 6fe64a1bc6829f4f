package core

import (
	"errors"
	"strconv"
	"strings"

	"pkt.systems/webtabs/schema"
)

const historySep = '|'

var errMalformedHistory = errors.New("malformed history entry")

// EncodeHistoryEntry serializes an entry as timestamp|title|url. The title
// escapes '\' and '|' with a backslash; the url is written verbatim and owns
// everything after the second separator.
func EncodeHistoryEntry(entry schema.HistoryEntry) string {
	var b strings.Builder
	b.Grow(len(entry.Title) + len(entry.URL) + 24)
	b.WriteString(strconv.FormatInt(entry.Timestamp, 10))
	b.WriteByte(historySep)
	for i := 0; i < len(entry.Title); i++ {
		c := entry.Title[i]
		if c == '\\' || c == historySep {
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}
	b.WriteByte(historySep)
	b.WriteString(entry.URL)
	return b.String()
}

// DecodeHistoryEntry parses the timestamp|title|url encoding. A backslash not
// followed by '\' or '|' is kept literally, so unescaped titles decode as
// written.
func DecodeHistoryEntry(raw string) (schema.HistoryEntry, error) {
	first := strings.IndexByte(raw, historySep)
	if first <= 0 {
		return schema.HistoryEntry{}, errMalformedHistory
	}
	ts, err := strconv.ParseInt(raw[:first], 10, 64)
	if err != nil {
		return schema.HistoryEntry{}, errMalformedHistory
	}
	rest := raw[first+1:]
	var title strings.Builder
	for i := 0; i < len(rest); i++ {
		c := rest[i]
		if c == '\\' && i+1 < len(rest) && (rest[i+1] == '\\' || rest[i+1] == historySep) {
			title.WriteByte(rest[i+1])
			i++
			continue
		}
		if c == historySep {
			return schema.HistoryEntry{Timestamp: ts, Title: title.String(), URL: rest[i+1:]}, nil
		}
		title.WriteByte(c)
	}
	return schema.HistoryEntry{}, errMalformedHistory
}
