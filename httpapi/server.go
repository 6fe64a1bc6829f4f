package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pkt.systems/webtabs/internal/download"
	"pkt.systems/webtabs/internal/logx"
	"pkt.systems/webtabs/internal/metrics"
	"pkt.systems/webtabs/internal/version"
	"pkt.systems/webtabs/schema"
)

// Browser is the tab controller behind the API.
type Browser interface {
	CreateTab(ctx context.Context, input string) (schema.TabSnapshot, error)
	SwitchTo(ctx context.Context, index int) (schema.TabSnapshot, error)
	Activate(ctx context.Context, id schema.TabID) (schema.TabSnapshot, error)
	CloseTab(ctx context.Context, index int) error
	CloseTabByID(ctx context.Context, id schema.TabID) error
	ListTabs(ctx context.Context) ([]schema.TabSnapshot, schema.TabID, error)
	Navigate(ctx context.Context, input string) (schema.TabSnapshot, error)
	Back(ctx context.Context) (bool, error)
	Forward(ctx context.Context) (bool, error)
	Reload(ctx context.Context) error
	Stop(ctx context.Context) error
	Download(ctx context.Context, req schema.DownloadRequest) (schema.DownloadRecord, error)
}

// History exposes visited pages.
type History interface {
	List() []schema.HistoryEntry
	Clear() error
	Delete(ts int64, url string) (bool, error)
}

// Downloads lists finished downloads.
type Downloads interface {
	List() ([]schema.DownloadRecord, error)
}

// Deps captures server collaborators. Metrics may be nil.
type Deps struct {
	Browser   Browser
	History   History
	Downloads Downloads
	Hub       *Hub
	Metrics   *metrics.Metrics
}

// Server serves the control API and the tab strip UI.
type Server struct {
	cfg       Config
	browser   Browser
	history   History
	downloads Downloads
	hub       *Hub
	metrics   *metrics.Metrics
	basePath  string
	baseHref  string
	routes    map[string]bool
}

// NewServer constructs an HTTP server.
func NewServer(cfg Config, deps Deps) *Server {
	hub := deps.Hub
	if hub == nil {
		hub = NewHub(cfg.StreamReplay)
	}
	return &Server{
		cfg:       cfg,
		browser:   deps.Browser,
		history:   deps.History,
		downloads: deps.Downloads,
		hub:       hub,
		metrics:   deps.Metrics,
		basePath:  normalizeBasePath(cfg.BasePath),
		baseHref:  buildBaseHref(cfg.BaseURL, cfg.BasePath),
		routes:    make(map[string]bool),
	}
}

// Hub returns the stream hub fed by the browser.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns an http.Handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	handle := func(path string, h http.HandlerFunc) {
		s.routes[path] = true
		mux.HandleFunc(path, h)
	}
	handle("/", s.handleIndex)
	mux.Handle("/assets/", assetHandler())
	handle("/healthz", s.handleHealth)

	handle("/api/tabs", s.requireToken(s.handleTabs))
	handle("/api/tabs/activate", s.requireToken(s.handleActivate))
	handle("/api/tabs/close", s.requireToken(s.handleClose))
	handle("/api/navigate", s.requireToken(s.handleNavigate))
	handle("/api/back", s.requireToken(s.handleStep(s.browserBack)))
	handle("/api/forward", s.requireToken(s.handleStep(s.browserForward)))
	handle("/api/reload", s.requireToken(s.handleSimple("reload", s.browserReload)))
	handle("/api/stop", s.requireToken(s.handleSimple("stop", s.browserStop)))
	handle("/api/history", s.requireToken(s.handleHistory))
	handle("/api/history/delete", s.requireToken(s.handleHistoryDelete))
	handle("/api/downloads", s.requireToken(s.handleDownloads))
	handle("/api/stream", s.requireToken(s.handleStream))
	if s.cfg.EnableMetrics && s.metrics != nil {
		s.routes["/metrics"] = true
		mux.Handle("/metrics", s.metrics.Handler())
	}

	return mountAt(s.basePath, withRequestLogging(mux, s.routeLabel, s.metrics))
}

func (s *Server) routeLabel(r *http.Request) string {
	path := r.URL.Path
	if s.routes[path] {
		return path
	}
	if strings.HasPrefix(path, "/assets/") {
		return "/assets/"
	}
	return "other"
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	page, err := indexPage(s.baseHref)
	if err != nil {
		http.Error(w, "index not found", http.StatusInternalServerError)
		return
	}
	serveIndex(w, r, page)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "version": version.Current()})
}

type tabsResponse struct {
	Tabs      []schema.TabSnapshot `json:"tabs"`
	ActiveTab schema.TabID         `json:"active_tab"`
}

func (s *Server) handleTabs(w http.ResponseWriter, r *http.Request) {
	log := logx.Ctx(r.Context())
	switch r.Method {
	case http.MethodGet:
		tabs, active, err := s.browser.ListTabs(r.Context())
		if err != nil {
			log.Warn("http list tabs failed", "err", err)
			writeError(w, statusFor(err), err)
			return
		}
		if tabs == nil {
			tabs = []schema.TabSnapshot{}
		}
		writeJSON(w, http.StatusOK, tabsResponse{Tabs: tabs, ActiveTab: active})
	case http.MethodPost:
		var payload struct {
			URL string `json:"url"`
		}
		if err := decodeOptionalJSON(r.Body, &payload); err != nil {
			log.Warn("http create tab decode failed", "err", err)
			writeError(w, http.StatusBadRequest, err)
			return
		}
		tab, err := s.browser.CreateTab(r.Context(), payload.URL)
		if err != nil {
			log.Warn("http create tab failed", "err", err)
			writeError(w, statusFor(err), err)
			return
		}
		logx.WithTab(r.Context(), tab.ID).Info("http tab created", "url", tab.URL)
		writeJSON(w, http.StatusCreated, tab)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// tabSelector addresses a tab by id or by index.
type tabSelector struct {
	ID    schema.TabID `json:"id"`
	Index *int         `json:"index"`
}

func (sel tabSelector) valid() bool {
	return sel.ID != "" || sel.Index != nil
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var sel tabSelector
	if err := decodeJSON(r.Body, &sel); err != nil || !sel.valid() {
		if err == nil {
			err = fmt.Errorf("%w: id or index is required", schema.ErrInvalidRequest)
		}
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var (
		tab schema.TabSnapshot
		err error
	)
	if sel.ID != "" {
		tab, err = s.browser.Activate(r.Context(), sel.ID)
	} else {
		tab, err = s.browser.SwitchTo(r.Context(), *sel.Index)
	}
	if err != nil {
		logx.WithTab(r.Context(), sel.ID).Warn("http activate failed", "err", err)
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, tab)
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var sel tabSelector
	if err := decodeJSON(r.Body, &sel); err != nil || !sel.valid() {
		if err == nil {
			err = fmt.Errorf("%w: id or index is required", schema.ErrInvalidRequest)
		}
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var err error
	if sel.ID != "" {
		err = s.browser.CloseTabByID(r.Context(), sel.ID)
	} else {
		err = s.browser.CloseTab(r.Context(), *sel.Index)
	}
	if err != nil {
		logx.WithTab(r.Context(), sel.ID).Warn("http close failed", "err", err)
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		URL string `json:"url"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	tab, err := s.browser.Navigate(r.Context(), payload.URL)
	if err != nil {
		logx.Ctx(r.Context()).Warn("http navigate failed", "err", err)
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, tab)
}

func (s *Server) browserBack(ctx context.Context) (bool, error) { return s.browser.Back(ctx) }
func (s *Server) browserForward(ctx context.Context) (bool, error) { return s.browser.Forward(ctx) }
func (s *Server) browserReload(ctx context.Context) error { return s.browser.Reload(ctx) }
func (s *Server) browserStop(ctx context.Context) error { return s.browser.Stop(ctx) }

func (s *Server) handleStep(step func(context.Context) (bool, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		moved, err := step(r.Context())
		if err != nil {
			logx.Ctx(r.Context()).Warn("http history step failed", "path", r.URL.Path, "err", err)
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"moved": moved})
	}
}

func (s *Server) handleSimple(op string, fn func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if err := fn(r.Context()); err != nil {
			logx.Ctx(r.Context()).Warn("http browser op failed", "op", op, "err", err)
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("history unavailable"))
		return
	}
	switch r.Method {
	case http.MethodGet:
		entries := s.history.List()
		limit := parseInt(r.URL.Query().Get("limit"), 0)
		if limit > 0 && len(entries) > limit {
			entries = entries[:limit]
		}
		if entries == nil {
			entries = []schema.HistoryEntry{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
	case http.MethodDelete:
		if err := s.history.Clear(); err != nil {
			logx.Ctx(r.Context()).Warn("http history clear failed", "err", err)
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleHistoryDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("history unavailable"))
		return
	}
	var payload struct {
		Timestamp int64  `json:"timestamp"`
		URL       string `json:"url"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	deleted, err := s.history.Delete(payload.Timestamp, payload.URL)
	if err != nil {
		logx.Ctx(r.Context()).Warn("http history delete failed", "err", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

type downloadView struct {
	schema.DownloadRecord
	SizeText string `json:"size_text"`
}

func (s *Server) handleDownloads(w http.ResponseWriter, r *http.Request) {
	log := logx.Ctx(r.Context())
	switch r.Method {
	case http.MethodGet:
		if s.downloads == nil {
			writeJSON(w, http.StatusOK, map[string]any{"downloads": []downloadView{}})
			return
		}
		records, err := s.downloads.List()
		if err != nil {
			log.Warn("http downloads list failed", "err", err)
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		views := make([]downloadView, 0, len(records))
		for _, rec := range records {
			views = append(views, downloadView{DownloadRecord: rec, SizeText: download.FormatSize(rec.Size)})
		}
		writeJSON(w, http.StatusOK, map[string]any{"downloads": views})
	case http.MethodPost:
		var req schema.DownloadRequest
		if err := decodeJSON(r.Body, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if strings.TrimSpace(req.URL) == "" {
			writeError(w, http.StatusBadRequest, fmt.Errorf("%w: url is required", schema.ErrInvalidRequest))
			return
		}
		record, err := s.browser.Download(r.Context(), req)
		if err != nil {
			logx.WithURL(log, req.URL).Warn("http download failed", "err", err)
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, downloadView{DownloadRecord: record, SizeText: download.FormatSize(record.Size)})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("stream unsupported"))
		return
	}
	log := logx.Ctx(r.Context()).With("remote", clientIP(r))

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	lastID := parseUint(r.Header.Get("Last-Event-ID"))

	ch, unsubscribe, seq, _ := s.hub.Subscribe()
	defer unsubscribe()
	if s.metrics != nil {
		s.metrics.StreamClients.Inc()
		defer s.metrics.StreamClients.Dec()
	}

	snapshot := s.buildSnapshot(r.Context())
	_ = writeSSEvent(w, StreamEvent{
		Seq:       seq,
		Type:      "snapshot",
		Snapshot:  &snapshot,
		Timestamp: time.Now(),
	})
	flusher.Flush()

	replayCount := 0
	if lastID > 0 && lastID < seq {
		for _, event := range s.hub.Replay(lastID) {
			if event.Seq > seq {
				break
			}
			_ = writeSSEvent(w, event)
			replayCount++
		}
		flusher.Flush()
	}

	notify := r.Context().Done()
	log.Info("http stream opened", "last_id", lastID, "replay", replayCount, "tabs", len(snapshot.Tabs))
	for {
		select {
		case <-notify:
			log.Info("http stream closed")
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			_ = writeSSEvent(w, event)
			flusher.Flush()
		}
	}
}

func (s *Server) buildSnapshot(ctx context.Context) SnapshotPayload {
	tabs, active, err := s.browser.ListTabs(ctx)
	if err != nil {
		logx.Ctx(ctx).Debug("http snapshot failed", "err", err)
		return SnapshotPayload{Tabs: []schema.TabSnapshot{}}
	}
	if tabs == nil {
		tabs = []schema.TabSnapshot{}
	}
	return SnapshotPayload{Tabs: tabs, ActiveTab: active}
}

// statusFor maps browser errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, schema.ErrInvalidRequest),
		errors.Is(err, schema.ErrInvalidURL),
		errors.Is(err, schema.ErrUnsupportedScheme),
		errors.Is(err, schema.ErrInvalidDataURI):
		return http.StatusBadRequest
	case errors.Is(err, schema.ErrTabNotFound):
		return http.StatusNotFound
	case errors.Is(err, schema.ErrNoTabs):
		return http.StatusConflict
	case errors.Is(err, schema.ErrBrowserClosed), errors.Is(err, schema.ErrRendererUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		var dlErr *download.Error
		if errors.As(err, &dlErr) {
			return http.StatusBadGateway
		}
		return http.StatusInternalServerError
	}
}

func decodeJSON(body io.Reader, target any) error {
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

// decodeOptionalJSON accepts an empty body.
func decodeOptionalJSON(body io.Reader, target any) error {
	if err := decodeJSON(body, target); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeSSEvent(w http.ResponseWriter, event StreamEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if event.Seq > 0 {
		_, _ = fmt.Fprintf(w, "id: %d\n", event.Seq)
	}
	_, _ = fmt.Fprintf(w, "event: %s\n", event.Type)
	_, _ = fmt.Fprintf(w, "data: %s\n\n", strings.TrimSpace(string(data)))
	return nil
}

func parseUint(value string) uint64 {
	if value == "" {
		return 0
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}

func parseInt(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
