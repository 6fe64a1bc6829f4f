// Package download saves blob payloads and URL downloads into a directory.
package download

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"pkt.systems/pslog"
	"pkt.systems/webtabs/internal/logx"
	"pkt.systems/webtabs/internal/version"
	"pkt.systems/webtabs/schema"
)

// MirrorFilePrefix marks files fetched through the mirror.
const MirrorFilePrefix = "d_"

// Config configures a Manager.
type Config struct {
	Dir string
	// MirrorPrefix, when set, also fetches every URL download through
	// MirrorPrefix + escaped URL and saves it with MirrorFilePrefix.
	MirrorPrefix string
	Retries      int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Timeout      time.Duration
	// HTTPClient overrides the underlying client (tests, proxies).
	HTTPClient *http.Client
	Logger     pslog.Logger
}

// Error reports a failed download step.
type Error struct {
	Op     string
	Target string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("download %s %s: %v", e.Op, e.Target, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Manager writes downloads into Dir. It is safe for concurrent use.
type Manager struct {
	dir          string
	mirrorPrefix string
	client       *retryablehttp.Client
	log          pslog.Logger
	mu           sync.Mutex // guards name selection
}

// NewManager constructs a Manager and creates its directory.
func NewManager(cfg Config) (*Manager, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, errors.New("download directory is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	logger = logger.With("download_dir", cfg.Dir)
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	if cfg.Retries > 0 {
		client.RetryMax = cfg.Retries
	}
	client.RetryWaitMin = 500 * time.Millisecond
	if cfg.RetryWaitMin > 0 {
		client.RetryWaitMin = cfg.RetryWaitMin
	}
	client.RetryWaitMax = 10 * time.Second
	if cfg.RetryWaitMax > 0 {
		client.RetryWaitMax = cfg.RetryWaitMax
	}
	if cfg.HTTPClient != nil {
		client.HTTPClient = cfg.HTTPClient
	}
	if cfg.Timeout > 0 {
		client.HTTPClient.Timeout = cfg.Timeout
	}
	client.Logger = retryLogger{log: logger}
	return &Manager{
		dir:          cfg.Dir,
		mirrorPrefix: strings.TrimSpace(cfg.MirrorPrefix),
		client:       client,
		log:          logger,
	}, nil
}

// Dir returns the download directory.
func (m *Manager) Dir() string {
	return m.dir
}

// SaveBlob decodes a blob-bridge payload and writes it.
func (m *Manager) SaveBlob(ctx context.Context, payload schema.BlobPayload) (schema.DownloadRecord, error) {
	data, mediaType, err := DecodeDataURI(payload.DataURI)
	if err != nil {
		return schema.DownloadRecord{}, &Error{Op: "decode", Target: "blob", Err: err}
	}
	if len(data) == 0 {
		return schema.DownloadRecord{}, &Error{Op: "decode", Target: "blob", Err: schema.ErrEmptyDownload}
	}
	mimeType := payload.MimeType
	if mimeType == "" {
		mimeType = mediaType
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = mimetype.Detect(data).String()
	}
	name := GuessFilename("", payload.ContentDisposition, mimeType)
	record, err := m.write(bytes.NewReader(data), name)
	if err != nil {
		return schema.DownloadRecord{}, err
	}
	record.MimeType = mimeType
	record.Source = "blob"
	logx.WithDownload(pslog.Ctx(ctx), record.Name).Info("download blob saved", "size", record.Size, "mime", mimeType)
	return record, nil
}

// Fetch downloads req.URL, and a mirror copy when a mirror prefix is set.
// A failing mirror is logged and does not fail the download.
func (m *Manager) Fetch(ctx context.Context, req schema.DownloadRequest) (schema.DownloadRecord, error) {
	target := strings.TrimSpace(req.URL)
	if target == "" {
		return schema.DownloadRecord{}, &Error{Op: "fetch", Target: target, Err: schema.ErrInvalidURL}
	}
	record, err := m.fetch(ctx, target, req, "")
	if err != nil {
		return schema.DownloadRecord{}, err
	}
	if m.mirrorPrefix != "" {
		mirror := m.mirrorPrefix + url.QueryEscape(target)
		if _, err := m.fetch(ctx, mirror, req, MirrorFilePrefix+record.guessed); err != nil {
			logx.WithURL(m.log, mirror).Warn("download mirror failed", "err", err)
		}
	}
	return record.DownloadRecord, nil
}

type fetched struct {
	schema.DownloadRecord
	guessed string
}

func (m *Manager) fetch(ctx context.Context, src string, req schema.DownloadRequest, name string) (fetched, error) {
	log := logx.WithURL(pslog.Ctx(ctx), src)
	hreq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return fetched{}, &Error{Op: "fetch", Target: src, Err: err}
	}
	ua := req.UserAgent
	if ua == "" {
		ua = version.Product()
	}
	hreq.Header.Set("User-Agent", ua)
	log.Debug("download fetch start")
	resp, err := m.client.Do(hreq)
	if err != nil {
		return fetched{}, &Error{Op: "fetch", Target: src, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return fetched{}, &Error{Op: "fetch", Target: src, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	body := bufio.NewReaderSize(resp.Body, 4096)
	disposition := resp.Header.Get("Content-Disposition")
	if disposition == "" {
		disposition = req.ContentDisposition
	}
	mimeType := req.MimeType
	if mimeType == "" {
		if mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err == nil {
			mimeType = mediaType
		}
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		head, _ := body.Peek(3072)
		if len(head) > 0 {
			mimeType = mimetype.Detect(head).String()
		}
	}
	guessed := GuessFilename(req.URL, disposition, mimeType)
	if name == "" {
		name = guessed
	}
	record, err := m.write(body, name)
	if err != nil {
		return fetched{}, err
	}
	if record.Size == 0 {
		_ = os.Remove(record.Path)
		return fetched{}, &Error{Op: "fetch", Target: src, Err: schema.ErrEmptyDownload}
	}
	record.MimeType = mimeType
	record.Source = src
	logx.WithDownload(log, record.Name).Info("download fetch saved", "size", record.Size, "mime", mimeType)
	return fetched{DownloadRecord: record, guessed: guessed}, nil
}

// write streams r into a temp file and renames it to a unique name.
func (m *Manager) write(r io.Reader, name string) (schema.DownloadRecord, error) {
	tmp, err := os.CreateTemp(m.dir, ".partial-*")
	if err != nil {
		return schema.DownloadRecord{}, &Error{Op: "write", Target: name, Err: err}
	}
	size, err := io.Copy(tmp, r)
	if err == nil {
		err = tmp.Sync()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return schema.DownloadRecord{}, &Error{Op: "write", Target: name, Err: err}
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		_ = os.Remove(tmp.Name())
		return schema.DownloadRecord{}, &Error{Op: "write", Target: name, Err: err}
	}

	m.mu.Lock()
	final := m.uniquePath(name)
	err = os.Rename(tmp.Name(), final)
	m.mu.Unlock()
	if err != nil {
		_ = os.Remove(tmp.Name())
		return schema.DownloadRecord{}, &Error{Op: "write", Target: name, Err: err}
	}
	modified := time.Now()
	if info, err := os.Stat(final); err == nil {
		modified = info.ModTime()
	}
	return schema.DownloadRecord{
		ID:       schema.DownloadID(uuid.New().String()),
		Name:     filepath.Base(final),
		Path:     final,
		Size:     size,
		Modified: modified.UnixMilli(),
	}, nil
}

func (m *Manager) uniquePath(name string) string {
	candidate := filepath.Join(m.dir, name)
	if _, err := os.Lstat(candidate); errors.Is(err, os.ErrNotExist) {
		return candidate
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		candidate = filepath.Join(m.dir, fmt.Sprintf("%s (%d)%s", stem, i, ext))
		if _, err := os.Lstat(candidate); errors.Is(err, os.ErrNotExist) {
			return candidate
		}
	}
}

// List returns the files in the download directory, newest first.
func (m *Manager) List() ([]schema.DownloadRecord, error) {
	return ListDir(m.dir)
}

// ListDir lists regular files in dir, newest first. A missing directory
// lists as empty.
func ListDir(dir string) ([]schema.DownloadRecord, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	records := make([]schema.DownloadRecord, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasPrefix(entry.Name(), ".partial-") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		records = append(records, schema.DownloadRecord{
			Name:     entry.Name(),
			Path:     filepath.Join(dir, entry.Name()),
			Size:     info.Size(),
			Modified: info.ModTime().UnixMilli(),
		})
	}
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Modified == records[j].Modified {
			return records[i].Name < records[j].Name
		}
		return records[i].Modified > records[j].Modified
	})
	return records, nil
}

// retryLogger routes retryablehttp logs through pslog. Retry chatter is
// demoted to debug.
type retryLogger struct {
	log pslog.Logger
}

func (l retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Warn("download http "+msg, keysAndValues...)
}

func (l retryLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("download http "+msg, keysAndValues...)
}

func (l retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.Trace("download http "+msg, keysAndValues...)
}

func (l retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Debug("download http "+msg, keysAndValues...)
}
