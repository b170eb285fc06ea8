package web

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/gorilla/csrf"

	"eventboard/internal/backend"
	"eventboard/internal/config"
	"eventboard/internal/dispatch"
	"eventboard/internal/ics"
	appLog "eventboard/internal/log"
	"eventboard/internal/model"
	"eventboard/internal/render"
	"eventboard/internal/session"
	"eventboard/internal/store"
)

// Snapshot list names.
const (
	listEvents   = "events"
	listMyEvents = "my-events"
)

const (
	msgLoadFailed   = "Error loading events."
	msgNeedLogin    = "You must be logged in to display your upcoming events."
	msgNeedStaff    = "You must be logged in to create an event."
	msgNeedAdmin    = "Unauthorised: only admins allowed."
	msgStaffOnly    = "Unauthorised: only staff and admins allowed."
	msgDownloadFail = "Failed to download booking"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Server is the browser-facing front of the booking backend.
type Server struct {
	cfg       *config.Config
	api       *backend.Client
	renderer  *render.Renderer
	snapshots *store.Registry
	fetcher   *ics.Fetcher
	pages     map[string]*template.Template
	mux       *http.ServeMux
	now       func() time.Time
}

var pageFiles = []string{
	"events.html",
	"event.html",
	"create.html",
	"login.html",
	"register.html",
	"admin.html",
	"analytics.html",
	"confirm.html",
	"about.html",
}

// NewServer wires the routes. api carries no cookies; each request gets a
// copy bound to the viewer's identity cookies.
func NewServer(cfg *config.Config, api *backend.Client) (*Server, error) {
	pages, err := parsePages()
	if err != nil {
		return nil, err
	}
	s := &Server{
		cfg:       cfg,
		api:       api,
		renderer:  render.New(cfg.Location()),
		snapshots: store.NewRegistry(),
		fetcher:   ics.NewFetcher(cfg.Import.CacheDir, nil),
		pages:     pages,
		mux:       http.NewServeMux(),
		now:       time.Now,
	}
	s.registerRoutes()
	return s, nil
}

var funcs = template.FuncMap{
	"mul": func(a, b int) int { return a * b },
}

func parsePages() (map[string]*template.Template, error) {
	pages := make(map[string]*template.Template, len(pageFiles)+1)
	for _, name := range pageFiles {
		t, err := template.New(name).Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+name)
		if err != nil {
			return nil, err
		}
		if t, err = t.ParseFS(render.Templates(), "templates/*.html"); err != nil {
			return nil, err
		}
		pages[name] = t
	}

	board, err := template.New("board.html").Funcs(funcs).ParseFS(templateFS, "templates/board.html")
	if err != nil {
		return nil, err
	}
	if board, err = board.ParseFS(render.Templates(), "templates/*.html"); err != nil {
		return nil, err
	}
	pages["board.html"] = board
	return pages, nil
}

// Handler returns the routes wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	key, _ := s.cfg.CSRFKeyBytes()
	h := http.Handler(s.mux)
	h = s.csrfMiddleware(key)(h)
	h = s.visitorMiddleware(h)
	h = requestLogger(h)
	h = securityHeaders(h)
	return h
}

// EvictIdle drops snapshots idle for longer than the configured limit.
func (s *Server) EvictIdle() int {
	n := s.snapshots.Evict(s.now(), s.cfg.SnapshotIdle())
	if n > 0 {
		appLog.Info("evicted idle snapshots", "count", n, "live", s.snapshots.Len())
	}
	return n
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("GET /{$}", s.handleEvents)
	s.mux.HandleFunc("GET /events-page", s.handleEvents)
	s.mux.HandleFunc("GET /events/{id}", s.handleEvent)
	s.mux.HandleFunc("GET /my-events", s.handleMyEvents)
	s.mux.HandleFunc("GET /my-events.ics", s.handleMyEventsICS)
	s.mux.HandleFunc("GET /booking-confirmation/{id}", s.handleBookingConfirmation)
	s.mux.HandleFunc("GET /board", s.handleBoard)
	s.mux.HandleFunc("GET /about", s.handleAbout)

	s.mux.HandleFunc("POST /actions/{action}", s.handleAction)

	s.mux.HandleFunc("GET /create", s.handleCreatePage)
	s.mux.HandleFunc("POST /create", s.handleCreate)
	s.mux.HandleFunc("POST /create/import", s.handleImport)

	s.mux.HandleFunc("GET /login", s.handleLoginPage)
	s.mux.HandleFunc("POST /login", s.handleLogin)
	s.mux.HandleFunc("GET /register", s.handleRegisterPage)
	s.mux.HandleFunc("POST /register", s.handleRegister)
	s.mux.HandleFunc("POST /logout", s.handleLogout)

	s.mux.HandleFunc("GET /admin", s.handleAdmin)
	s.mux.HandleFunc("POST /admin/role", s.handleChangeRole)
	s.mux.HandleFunc("GET /analytics", s.handleAnalytics)

	static, err := fs.Sub(staticFS, "static")
	if err != nil {
		appLog.Error("embedded static files unavailable", err)
		return
	}
	s.mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(static)))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// clientFor binds the backend client to the viewer's identity cookies.
func (s *Server) clientFor(r *http.Request) *backend.Client {
	return s.api.WithCookies(session.Forward(r.Cookies()))
}

// page collects the data every layout needs.
func (s *Server) page(w http.ResponseWriter, r *http.Request, title string) map[string]any {
	sess := session.FromRequest(r)
	return map[string]any{
		"Title":     title,
		"Nav":       render.NewNav(sess),
		"Session":   sess,
		"Flash":     takeFlash(w, r),
		"CSRFField": csrf.TemplateField(r),
		"Path":      r.URL.Path,
	}
}

func (s *Server) render(w http.ResponseWriter, status int, name string, data map[string]any) {
	t, ok := s.pages[name]
	if !ok {
		appLog.Error("unknown page template", errors.New(name))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	entry := "layout"
	if name == "board.html" {
		entry = "board"
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := t.ExecuteTemplate(w, entry, data); err != nil {
		appLog.Error("template execution failed", err, "page", name)
	}
}

// loadErrorText is what a viewer sees when a list cannot be loaded: the
// backend's own text for rejections, a fixed message otherwise.
func loadErrorText(err error) string {
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return msgLoadFailed
}

// loadStatus is the status of a page whose data could not be loaded.
func loadStatus(err error) int {
	if backend.IsTransport(err) {
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}

type fetchFunc func(ctx context.Context) ([]model.Event, error)

// listEventsFor returns the events to show for list. A request carrying a
// q parameter is a search and filters the existing snapshot; anything else
// re-fetches and replaces it first.
func (s *Server) listEventsFor(r *http.Request, list string, fetch fetchFunc) ([]model.Event, error) {
	st := s.snapshots.Get(store.Key{Visitor: visitorID(r), List: list})
	_, searching := r.URL.Query()["q"]
	if !searching || !st.Loaded() {
		if err := dispatch.Load(r.Context(), fetch, st); err != nil {
			return nil, err
		}
	}
	return st.Filter(r.URL.Query().Get("q")), nil
}

// refresherFor re-fetches list into the viewer's snapshot.
func (s *Server) refresherFor(r *http.Request, api *backend.Client, list string) func(context.Context) error {
	st := s.snapshots.Get(store.Key{Visitor: visitorID(r), List: list})
	fetch := api.Events
	if list == listMyEvents {
		fetch = api.Reminders
	}
	return func(ctx context.Context) error {
		return dispatch.Load(ctx, fetch, st)
	}
}
