package schema

// TabID identifies a browser tab. It is opaque and stays stable across
// closes and reorders of other tabs.
type TabID string

// DownloadID identifies a saved download.
type DownloadID string

// LoadState describes whether a tab is loading a page.
type LoadState string

const (
	// LoadStateLoading indicates a navigation is in flight.
	LoadStateLoading LoadState = "loading"
	// LoadStateIdle indicates no navigation is in flight.
	LoadStateIdle LoadState = "idle"
)
