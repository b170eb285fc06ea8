package web

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/csrf"

	"eventboard/internal/analytics"
	"eventboard/internal/backend"
	"eventboard/internal/ics"
	appLog "eventboard/internal/log"
	"eventboard/internal/model"
	"eventboard/internal/render"
	"eventboard/internal/session"
)

// listView fills the event-list fragment context for the current request.
func (s *Server) listView(r *http.Request, events []model.Event, expanded render.Expanded, sess model.Session) render.List {
	l := s.renderer.Build(events, expanded, sess)
	l.Path = r.URL.Path
	if l.Path == "/" {
		l.Path = "/events-page"
	}
	l.Query = r.URL.Query().Get("q")
	l.From = l.Path
	l.CSRFField = csrf.TemplateField(r)
	return l
}

func (s *Server) listPage(w http.ResponseWriter, r *http.Request, list, title string, fetch fetchFunc) {
	data := s.page(w, r, title)
	sess := session.FromRequest(r)
	data["Query"] = r.URL.Query().Get("q")
	data["Open"] = r.URL.Query().Get("open")

	events, err := s.listEventsFor(r, list, fetch)
	if err != nil {
		appLog.Error("list load failed", err, "list", list)
		data["Error"] = loadErrorText(err)
		s.render(w, loadStatus(err), "events.html", data)
		return
	}

	data["List"] = s.listView(r, events, render.ParseExpanded(r.URL.Query().Get("open")), sess)
	s.render(w, http.StatusOK, "events.html", data)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	s.listPage(w, r, listEvents, "Upcoming Events", s.clientFor(r).Events)
}

func (s *Server) handleMyEvents(w http.ResponseWriter, r *http.Request) {
	if session.FromRequest(r).UserID == "" {
		data := s.page(w, r, "My Events")
		data["Error"] = msgNeedLogin
		data["MyEvents"] = true
		s.render(w, http.StatusUnauthorized, "events.html", data)
		return
	}
	s.listPage(w, r, listMyEvents, "My Events", s.clientFor(r).Reminders)
}

// handleEvent shows one event, the target of shared links. It opens
// expanded unless the request carries its own open set.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	data := s.page(w, r, "Event")

	ev, err := s.clientFor(r).Event(r.Context(), id)
	if err != nil {
		data["Error"] = loadErrorText(err)
		s.render(w, statusFor(err), "event.html", data)
		return
	}

	expanded := render.NewExpanded(ev.ID)
	if open, ok := r.URL.Query()["open"]; ok {
		expanded = render.ParseExpanded(open[0])
	}
	data["Title"] = ev.Name
	data["List"] = s.listView(r, []model.Event{ev}, expanded, session.FromRequest(r))
	s.render(w, http.StatusOK, "event.html", data)
}

// handleMyEventsICS exports the viewer's booked events as a calendar file.
func (s *Server) handleMyEventsICS(w http.ResponseWriter, r *http.Request) {
	if session.FromRequest(r).UserID == "" {
		http.Error(w, msgNeedLogin, http.StatusUnauthorized)
		return
	}
	events, err := s.clientFor(r).Reminders(r.Context())
	if err != nil {
		http.Error(w, loadErrorText(err), loadStatus(err))
		return
	}

	body := ics.Export(events, s.cfg.Location(), s.now())
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": "my-events.ics"}))
	_, _ = io.WriteString(w, body)
}

// handleBookingConfirmation streams the backend's PDF to the browser.
func (s *Server) handleBookingConfirmation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	dl, err := s.clientFor(r).BookingConfirmation(r.Context(), id)
	if err != nil {
		msg := msgDownloadFail
		var apiErr *backend.APIError
		if errors.As(err, &apiErr) && apiErr.Message != "" {
			msg = apiErr.Message
		}
		s.redirectWithFlash(w, r, "/my-events", msg)
		return
	}
	defer dl.Body.Close()

	w.Header().Set("Content-Type", dl.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": dl.Filename}))
	if _, err := io.Copy(w, dl.Body); err != nil {
		appLog.Error("booking confirmation copy failed", err, "event", id)
	}
}

// handleBoard is the read-only wall view: anonymous, every card open.
func (s *Server) handleBoard(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{"Title": "Upcoming Events"}

	events, err := s.api.Events(r.Context())
	if err != nil {
		appLog.Error("board load failed", err)
		data["Error"] = loadErrorText(err)
		s.render(w, loadStatus(err), "board.html", data)
		return
	}

	ids := make([]string, 0, len(events))
	for _, ev := range events {
		ids = append(ids, ev.ID)
	}
	l := s.renderer.Build(events, render.NewExpanded(ids...), model.Session{})
	l.ReadOnly = true
	l.Path = "/board"
	data["List"] = l
	data["Updated"] = s.now().In(s.cfg.Location()).Format("2006-01-02 15:04")
	s.render(w, http.StatusOK, "board.html", data)
}

func (s *Server) handleAbout(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, "about.html", s.page(w, r, "About"))
}

// userRow is one line of the user-management table. Admins cannot be
// changed from here.
type userRow struct {
	model.User
	Protected bool
	NewRole   model.Role
	Label     string
}

func userRows(users []model.User) []userRow {
	rows := make([]userRow, 0, len(users))
	for _, u := range users {
		row := userRow{User: u}
		switch u.Role {
		case model.RoleAdmin:
			row.Protected = true
		case model.RoleStaff:
			row.NewRole, row.Label = model.RoleStudent, "Demote to Student"
		default:
			row.NewRole, row.Label = model.RoleStaff, "Promote to Staff"
		}
		rows = append(rows, row)
	}
	return rows
}

func (s *Server) handleAdmin(w http.ResponseWriter, r *http.Request) {
	data := s.page(w, r, "Admin")
	if session.FromRequest(r).Role != model.RoleAdmin {
		data["Error"] = msgNeedAdmin
		s.render(w, http.StatusForbidden, "admin.html", data)
		return
	}

	users, err := s.clientFor(r).Users(r.Context())
	if err != nil {
		appLog.Error("user list failed", err)
		data["Error"] = loadErrorText(err)
		s.render(w, loadStatus(err), "admin.html", data)
		return
	}
	data["Users"] = userRows(users)
	s.render(w, http.StatusOK, "admin.html", data)
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	data := s.page(w, r, "Analytics")
	if !session.FromRequest(r).Role.IsStaff() {
		data["Error"] = msgStaffOnly
		s.render(w, http.StatusForbidden, "analytics.html", data)
		return
	}

	api := s.clientFor(r)
	view := analytics.ParseView(r.URL.Query().Get("view"))
	data["View"] = string(view)

	summary, err := api.Summary(r.Context())
	if err != nil {
		appLog.Error("analytics summary failed", err)
		data["Error"] = loadErrorText(err)
		s.render(w, loadStatus(err), "analytics.html", data)
		return
	}
	data["Summary"] = analytics.NewSummaryCard(summary)

	fetch := api.Weekly
	if view == analytics.Daily {
		fetch = api.Daily
	}
	series, err := fetch(r.Context())
	if err != nil {
		appLog.Error("analytics series failed", err, "view", string(view))
		data["Error"] = loadErrorText(err)
		s.render(w, loadStatus(err), "analytics.html", data)
		return
	}
	events, attendees := analytics.SeriesCharts(series)
	data["Charts"] = []analytics.Chart{events, attendees}
	s.render(w, http.StatusOK, "analytics.html", data)
}

// safeReturn keeps redirects on this site.
func safeReturn(from, fallback string) string {
	u, err := url.Parse(from)
	if err != nil || u.IsAbs() || u.Host != "" || !strings.HasPrefix(u.Path, "/") {
		return fallback
	}
	// browsers read /\host and //host as another site
	if len(u.Path) > 1 && (u.Path[1] == '/' || u.Path[1] == '\\') {
		return fallback
	}
	return u.Path
}
