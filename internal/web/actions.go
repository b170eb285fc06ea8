package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"eventboard/internal/backend"
	"eventboard/internal/dispatch"
	"eventboard/internal/ics"
	appLog "eventboard/internal/log"
	"eventboard/internal/model"
	"eventboard/internal/session"
)

// maxUpload bounds the create and import forms.
const maxUpload = 8 << 20

var eventActions = map[dispatch.Kind]bool{
	dispatch.KindBook:          true,
	dispatch.KindCancelBooking: true,
	dispatch.KindLeaveWaitlist: true,
	dispatch.KindViewAttendees: true,
	dispatch.KindDeleteEvent:   true,
}

// returnURL is where an action lands: the list it came from with q always
// present, so the page filters the snapshot the action just refreshed
// instead of fetching again.
func returnURL(from, q, open, eventID string) string {
	v := url.Values{}
	v.Set("q", q)
	if open != "" {
		v.Set("open", open)
	}
	u := from + "?" + v.Encode()
	if eventID != "" {
		u += "#event-" + url.PathEscape(eventID)
	}
	return u
}

func listFor(from string) string {
	if from == "/my-events" {
		return listMyEvents
	}
	return listEvents
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	kind := dispatch.Kind(r.PathValue("action"))
	if !eventActions[kind] {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}

	eventID := strings.TrimSpace(r.PostFormValue("event_id"))
	open := r.PostFormValue("open")
	q := r.PostFormValue("q")
	from := safeReturn(r.PostFormValue("from"), "/events-page")
	back := returnURL(from, q, open, eventID)
	if eventID == "" {
		s.redirectWithFlash(w, r, back, "No event selected.")
		return
	}

	api := s.clientFor(r)
	confirm := newFormConfirmer(r)
	d := dispatch.New(api, confirm, nil, dispatch.RefreshFunc(s.refresherFor(r, api, listFor(from))))

	out, err := d.Run(r.Context(), kind, eventID)
	if errors.Is(err, dispatch.ErrNotConfirmed) && confirm.pending != nil {
		s.renderConfirm(w, r, *confirm.pending, "/actions/"+string(kind), []hiddenField{
			{Name: "event_id", Value: eventID},
			{Name: "open", Value: open},
			{Name: "q", Value: q},
			{Name: "from", Value: from},
		}, back)
		return
	}
	if err != nil && out.Message == "" {
		out.Message = err.Error()
	}
	s.redirectWithFlash(w, r, back, out.Message)
}

// createForm is the create page state, re-shown on errors.
type createForm struct {
	HostName    string
	HostEmail   string
	Name        string
	Location    string
	Date        string
	Time        string
	Capacity    string
	Description string
	CalendarURL string
}

func (s *Server) requireStaff(w http.ResponseWriter, r *http.Request) bool {
	if session.FromRequest(r).Role.IsStaff() {
		return true
	}
	s.redirectWithFlash(w, r, "/login", msgNeedStaff)
	return false
}

func (s *Server) renderCreate(w http.ResponseWriter, r *http.Request, status int, form createForm, errMsg string) {
	data := s.page(w, r, "Create Event")
	data["Form"] = form
	data["HorizonDays"] = s.cfg.Import.HorizonDays
	if errMsg != "" {
		data["Error"] = errMsg
	}
	s.render(w, status, "create.html", data)
}

func (s *Server) handleCreatePage(w http.ResponseWriter, r *http.Request) {
	if !s.requireStaff(w, r) {
		return
	}
	s.renderCreate(w, r, http.StatusOK, createForm{HostName: session.FromRequest(r).Username}, "")
}

func readCreateForm(r *http.Request) createForm {
	get := func(name string) string { return strings.TrimSpace(r.FormValue(name)) }
	return createForm{
		HostName:    get("host_name"),
		HostEmail:   get("host_email"),
		Name:        get("event_name"),
		Location:    get("event_loc"),
		Date:        get("event_date"),
		Time:        get("event_time"),
		Capacity:    get("event_cap"),
		Description: r.FormValue("event_desc"),
		CalendarURL: get("calendar_url"),
	}
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	if !s.requireStaff(w, r) {
		return
	}
	if err := r.ParseMultipartForm(maxUpload); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		s.renderCreate(w, r, http.StatusBadRequest, createForm{}, dispatch.MsgCreateFailed)
		return
	}
	form := readCreateForm(r)
	capacity, err := strconv.Atoi(form.Capacity)
	if err != nil || capacity <= 0 {
		s.renderCreate(w, r, http.StatusBadRequest, form, "Capacity must be a positive whole number.")
		return
	}

	api := s.clientFor(r)
	d := dispatch.New(api, nil, nil, dispatch.RefreshFunc(s.refresherFor(r, api, listEvents)))
	out, err := d.CreateEvent(r.Context(), dispatch.EventForm{
		HostName:    form.HostName,
		HostEmail:   form.HostEmail,
		Name:        form.Name,
		Location:    form.Location,
		Date:        form.Date,
		Time:        form.Time,
		Capacity:    capacity,
		Description: form.Description,
	})
	if err != nil {
		s.renderCreate(w, r, statusFor(err), form, out.Message)
		return
	}
	s.redirectWithFlash(w, r, returnURL("/events-page", "", "", ""), out.Message)
}

// handleImport creates one event per calendar occurrence in the horizon.
// The calendar comes from an uploaded file or, failing that, a URL.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if !s.requireStaff(w, r) {
		return
	}
	if err := r.ParseMultipartForm(maxUpload); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		s.renderCreate(w, r, http.StatusBadRequest, createForm{}, "Could not read the uploaded calendar.")
		return
	}
	form := readCreateForm(r)
	capacity, err := strconv.Atoi(form.Capacity)
	if err != nil || capacity <= 0 {
		s.renderCreate(w, r, http.StatusBadRequest, form, "Capacity must be a positive whole number.")
		return
	}

	body, err := s.calendarBody(r.Context(), r, form.CalendarURL)
	if err != nil {
		appLog.Warn("calendar import unreadable", "err", err)
		s.renderCreate(w, r, http.StatusBadRequest, form, "Could not read the calendar: "+err.Error())
		return
	}

	drafts, res, err := ics.Import(body, ics.ImportConfig{
		Location:    s.cfg.Location(),
		Now:         s.now(),
		HorizonDays: s.cfg.Import.HorizonDays,
		MaxPerEvent: s.cfg.Import.MaxOccurrences,
	})
	if err != nil {
		s.renderCreate(w, r, http.StatusBadRequest, form, "Could not read the calendar: "+err.Error())
		return
	}
	if len(drafts) == 0 {
		s.renderCreate(w, r, http.StatusBadRequest, form, fmt.Sprintf("The calendar has no events in the next %d days.", s.cfg.Import.HorizonDays))
		return
	}

	forms := make([]dispatch.EventForm, 0, len(drafts))
	for _, dr := range drafts {
		forms = append(forms, dispatch.EventForm{
			HostName:    form.HostName,
			HostEmail:   form.HostEmail,
			Name:        dr.Name,
			Location:    dr.Location,
			Date:        dr.Date,
			Time:        dr.Time,
			Capacity:    capacity,
			Description: dr.Description,
		})
	}

	api := s.clientFor(r)
	d := dispatch.New(api, nil, nil, dispatch.RefreshFunc(s.refresherFor(r, api, listEvents)))
	out, _ := d.ImportEvents(r.Context(), forms)
	msg := out.Message
	if len(res.Truncated) > 0 {
		msg += fmt.Sprintf(" Only the first %d occurrences of each recurring event were imported.", s.cfg.Import.MaxOccurrences)
	}
	s.redirectWithFlash(w, r, returnURL("/events-page", "", "", ""), msg)
}

func (s *Server) calendarBody(ctx context.Context, r *http.Request, calendarURL string) ([]byte, error) {
	if r.MultipartForm != nil {
		if files := r.MultipartForm.File["calendar"]; len(files) > 0 {
			f, err := files[0].Open()
			if err != nil {
				return nil, err
			}
			defer f.Close()
			return io.ReadAll(io.LimitReader(f, maxUpload))
		}
	}
	if calendarURL == "" {
		return nil, errors.New("choose a file or give a calendar URL")
	}
	body, fromCache, err := s.fetcher.Fetch(ctx, calendarURL)
	if err != nil {
		return nil, err
	}
	if fromCache {
		appLog.Info("calendar import served from cache")
	}
	return body, nil
}

func statusFor(err error) int {
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return loadStatus(err)
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, "login.html", s.page(w, r, "Login"))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.FormValue("email"))
	password := r.FormValue("password")

	d := dispatch.New(s.api, nil, nil, nil)
	out, err := d.Login(r.Context(), email, password)
	if err != nil {
		data := s.page(w, r, "Login")
		data["Error"] = out.Message
		data["Email"] = email
		s.render(w, http.StatusUnauthorized, "login.html", data)
		return
	}

	s.setIdentityCookies(w, out.Cookies)
	s.snapshots.Drop(visitorID(r))
	s.redirectWithFlash(w, r, "/events-page", out.Message)
}

// setIdentityCookies re-issues the backend's cookies on this origin.
func (s *Server) setIdentityCookies(w http.ResponseWriter, cookies []*http.Cookie) {
	for _, c := range cookies {
		http.SetCookie(w, &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Path:     "/",
			MaxAge:   c.MaxAge,
			Expires:  c.Expires,
			HttpOnly: true,
			Secure:   s.cfg.SecureCookies,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

func (s *Server) handleRegisterPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, "register.html", s.page(w, r, "Register"))
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	fullName := strings.TrimSpace(r.FormValue("full_name"))
	email := strings.TrimSpace(r.FormValue("email"))

	d := dispatch.New(s.api, nil, nil, nil)
	out, err := d.Register(r.Context(), fullName, email, r.FormValue("password"))
	if err != nil {
		data := s.page(w, r, "Register")
		data["Error"] = out.Message
		data["FullName"] = fullName
		data["Email"] = email
		s.render(w, http.StatusBadRequest, "register.html", data)
		return
	}
	s.redirectWithFlash(w, r, "/login", out.Message)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	out := dispatch.New(s.api, nil, nil, nil).Logout(r.Context())
	for _, c := range out.Cookies {
		http.SetCookie(w, c)
	}
	s.snapshots.Drop(visitorID(r))
	s.redirectWithFlash(w, r, "/events-page", out.Message)
}

// handleChangeRole updates a role after confirmation. On success the admin
// page is rendered straight from the refreshed user list.
func (s *Server) handleChangeRole(w http.ResponseWriter, r *http.Request) {
	if session.FromRequest(r).Role != model.RoleAdmin {
		data := s.page(w, r, "Admin")
		data["Error"] = msgNeedAdmin
		s.render(w, http.StatusForbidden, "admin.html", data)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	userID := r.PostFormValue("user_id")
	role := model.Role(r.PostFormValue("new_role"))

	api := s.clientFor(r)
	var users []model.User
	refresh := dispatch.RefreshFunc(func(ctx context.Context) error {
		list, err := api.Users(ctx)
		if err != nil {
			return err
		}
		users = list
		return nil
	})

	confirm := newFormConfirmer(r)
	out, err := dispatch.New(api, confirm, nil, nil).ChangeRole(r.Context(), userID, role, refresh)
	switch {
	case errors.Is(err, dispatch.ErrNotConfirmed) && confirm.pending != nil:
		s.renderConfirm(w, r, *confirm.pending, "/admin/role", []hiddenField{
			{Name: "user_id", Value: userID},
			{Name: "new_role", Value: string(role)},
		}, "/admin")
		return
	case err != nil && out.Message == "":
		out.Message = dispatch.MsgRoleFailed
	}

	if !out.Refreshed {
		s.redirectWithFlash(w, r, "/admin", out.Message)
		return
	}
	data := s.page(w, r, "Admin")
	data["Flash"] = out.Message
	data["Users"] = userRows(users)
	s.render(w, http.StatusOK, "admin.html", data)
}
