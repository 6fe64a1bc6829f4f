package schema

// TabSnapshot is a read-only view of tab state for transports.
type TabSnapshot struct {
	ID        TabID     `json:"id"`
	Index     int       `json:"index"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	State     LoadState `json:"state"`
	Active    bool      `json:"active"`
	Degraded  bool      `json:"degraded,omitempty"`
	ErrorPage string    `json:"error_page,omitempty"`
}

// HistoryEntry is one recorded visit.
type HistoryEntry struct {
	// Timestamp is milliseconds since the Unix epoch.
	Timestamp int64  `json:"timestamp"`
	Title     string `json:"title"`
	URL       string `json:"url"`
}

// DownloadRecord describes a file in the downloads directory.
type DownloadRecord struct {
	ID       DownloadID `json:"id,omitempty"`
	Name     string     `json:"name"`
	Path     string     `json:"path"`
	Size     int64      `json:"size"`
	MimeType string     `json:"mime_type,omitempty"`
	// Modified is milliseconds since the Unix epoch.
	Modified int64      `json:"modified"`
	Source   string     `json:"source,omitempty"`
}
