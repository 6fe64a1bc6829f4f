package schema

// TabEventType identifies tab lifecycle events.
type TabEventType string

const (
	// TabEventCreated indicates a new tab was opened.
	TabEventCreated TabEventType = "created"
	// TabEventActivated indicates the current tab changed.
	TabEventActivated TabEventType = "activated"
	// TabEventUpdated indicates tab metadata (title, url) changed.
	TabEventUpdated TabEventType = "updated"
	// TabEventClosed indicates a tab was closed.
	TabEventClosed TabEventType = "closed"
)

// TabEvent describes tab lifecycle and metadata changes.
type TabEvent struct {
	Type      TabEventType `json:"type"`
	Tab       TabSnapshot  `json:"tab"`
	ActiveTab TabID        `json:"active_tab,omitempty"`
}

// LoadStateEvent is published when a tab starts or stops loading.
type LoadStateEvent struct {
	TabID TabID     `json:"tab_id"`
	State LoadState `json:"state"`
	URL   string    `json:"url,omitempty"`
}

// NoticeLevel grades user notices.
type NoticeLevel string

const (
	// NoticeInfo is an informational notice.
	NoticeInfo NoticeLevel = "info"
	// NoticeError reports a degraded operation.
	NoticeError NoticeLevel = "error"
)

// NoticeEvent is a transient message for the user.
type NoticeEvent struct {
	Level   NoticeLevel `json:"level"`
	TabID   TabID       `json:"tab_id,omitempty"`
	Message string      `json:"message"`
}

// BlobPayload is what the blob bridge hands to native code.
type BlobPayload struct {
	DataURI            string `json:"data_uri"`
	ContentDisposition string `json:"content_disposition,omitempty"`
	MimeType           string `json:"mime_type,omitempty"`
}

// DownloadRequest asks the download sink to fetch a URL.
type DownloadRequest struct {
	URL                string `json:"url"`
	ContentDisposition string `json:"content_disposition,omitempty"`
	MimeType           string `json:"mime_type,omitempty"`
	UserAgent          string `json:"user_agent,omitempty"`
}
