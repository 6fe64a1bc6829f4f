package schema

import "errors"

var (
	// ErrInvalidRequest indicates a malformed request payload.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrTabNotFound indicates a requested tab could not be found.
	ErrTabNotFound = errors.New("tab not found")
	// ErrNoTabs indicates no tabs are open.
	ErrNoTabs = errors.New("no tabs")
	// ErrBrowserClosed indicates the browser has been disposed.
	ErrBrowserClosed = errors.New("browser closed")
	// ErrInvalidURL indicates an empty or unusable URL.
	ErrInvalidURL = errors.New("invalid url")
	// ErrUnsupportedScheme indicates a link to a scheme the renderer does not load.
	ErrUnsupportedScheme = errors.New("unsupported url scheme")
	// ErrInvalidDataURI indicates a blob payload that is not a data URI.
	ErrInvalidDataURI = errors.New("invalid data uri")
	// ErrEmptyDownload indicates a download without content.
	ErrEmptyDownload = errors.New("empty download")
	// ErrRendererUnavailable indicates the renderer engine could not start.
	ErrRendererUnavailable = errors.New("renderer unavailable")
)
