package web

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"html"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"eventboard/internal/backend"
	"eventboard/internal/config"
	"eventboard/internal/dispatch"
	"eventboard/internal/model"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeBackend mimics the booking backend's routes.
type fakeBackend struct {
	mu     sync.Mutex
	events []model.Event
	hits   map[string]int

	// reject, keyed by path, answers with 409 and the given text.
	reject map[string]string
	down   bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		events: []model.Event{
			{ID: "e1", Name: "Talk", HostName: "Dr Host", Location: "Hall A", Date: "2025-03-12", Time: "15:00", Cap: 10, BookedUsers: []string{"u1"}},
			{ID: "e2", Name: "Careers Fair", HostName: "Careers", Location: "Atrium", Date: "2025-03-20", Time: "10:00", Cap: 50},
		},
		hits:   map[string]int{},
		reject: map[string]string{},
	}
}

func (f *fakeBackend) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[path]
}

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.hits[r.URL.Path]++
	msg, rejected := f.reject[r.URL.Path]
	events := f.events
	f.mu.Unlock()

	if f.down {
		http.Error(w, "Database unavailable", http.StatusInternalServerError)
		return
	}
	if rejected {
		http.Error(w, msg, http.StatusConflict)
		return
	}

	switch r.URL.Path {
	case "/events", "/reminders":
		_ = json.NewEncoder(w).Encode(events)
	case "/events/e1":
		_ = json.NewEncoder(w).Encode(events[0])
	case "/book-event":
		_, _ = io.WriteString(w, "Booking confirmed")
	case "/cancel-booking":
		_, _ = io.WriteString(w, "Booking cancelled")
	case "/create/submit-event":
		w.WriteHeader(http.StatusCreated)
	case "/login":
		if r.FormValue("password") != "pw" {
			http.Error(w, "Invalid credentials", http.StatusUnauthorized)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "username", Value: "Ann%20Lee"})
		http.SetCookie(w, &http.Cookie{Name: "user_id", Value: "u1"})
		http.SetCookie(w, &http.Cookie{Name: "role", Value: "staff"})
		http.Redirect(w, r, "/events-page", http.StatusFound)
	case "/update-role":
		_, _ = io.WriteString(w, "Role updated")
	case "/api/users":
		_, _ = io.WriteString(w, `[{"id":"u7","full_name":"Ann","email":"ann@uni.ac.uk","role":"staff"},{"id":"u8","full_name":"Root","email":"root@uni.ac.uk","role":"admin"}]`)
	case "/api/analytics/summary":
		_, _ = io.WriteString(w, `{"average_fill_rate":62.5,"booked":40,"waitlisted":3,"cancellations":2}`)
	case "/api/analytics/weekly":
		_, _ = io.WriteString(w, `{"weeks":["W1","W2"],"events":[1,2],"attendees":[10,20]}`)
	default:
		http.Error(w, "Event not found", http.StatusNotFound)
	}
}

func newTestServer(t *testing.T, fb *fakeBackend) *Server {
	t.Helper()
	srv := httptest.NewServer(fb)
	t.Cleanup(srv.Close)

	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"
	cfg.BackendURL = srv.URL
	cfg.Import.CacheDir = t.TempDir()

	api, err := backend.New(srv.URL, srv.Client())
	if err != nil {
		t.Fatal(err)
	}
	s, err := NewServer(cfg, api)
	if err != nil {
		t.Fatal(err)
	}
	s.now = func() time.Time { return testNow }
	s.renderer.Now = s.now
	return s
}

var visitor = &http.Cookie{Name: visitorCookie, Value: "7c8b1e52-4f0e-4b8e-9a43-0d5b2f6a1c11"}

func loggedIn(role model.Role) []*http.Cookie {
	return []*http.Cookie{
		visitor,
		{Name: "username", Value: "Ann"},
		{Name: "user_id", Value: "u1"},
		{Name: "role", Value: string(role)},
	}
}

func do(t *testing.T, h http.Handler, method, target string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func cookieNamed(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func flashOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	c := cookieNamed(rec, flashCookie)
	if c == nil {
		return ""
	}
	b, err := base64.RawURLEncoding.DecodeString(c.Value)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, newFakeBackend())
	rec := do(t, s.mux, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Errorf("health = %d %q", rec.Code, rec.Body.String())
	}
}

func TestEventsPageRendersList(t *testing.T) {
	s := newTestServer(t, newFakeBackend())
	rec := do(t, s.mux, http.MethodGet, "/events-page?open=e1", nil, loggedIn(model.RoleStudent)...)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`id="events-list"`,
		"Careers Fair",
		"9/10 spaces remaining",
		"1/10 booked",
		"Cancel Booking",
		`class="event-item toggled"`,
		"/booking-confirmation/e1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}
	if strings.Contains(body, "Delete Event") {
		t.Error("student sees staff controls")
	}
}

func TestSearchFiltersSnapshotWithoutRefetch(t *testing.T) {
	fb := newFakeBackend()
	s := newTestServer(t, fb)

	do(t, s.mux, http.MethodGet, "/events-page", nil, visitor)
	rec := do(t, s.mux, http.MethodGet, "/events-page?q=careers", nil, visitor)

	if n := fb.count("/events"); n != 1 {
		t.Errorf("events fetched %d times, want 1", n)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Careers Fair") || strings.Contains(body, "<h3>Talk</h3>") {
		t.Errorf("search did not filter:\n%s", body)
	}

	rec = do(t, s.mux, http.MethodGet, "/events-page?q=nothing-matches", nil, visitor)
	if !strings.Contains(rec.Body.String(), "No events to display.") {
		t.Error("empty search shows no placeholder")
	}
}

// firstToggleLink returns the href of the first card header in body.
// Callers drop the fragment before requesting it, as a browser does.
func firstToggleLink(t *testing.T, body string) string {
	t.Helper()
	const marker = `class="event-main" href="`
	i := strings.Index(body, marker)
	if i < 0 {
		t.Fatalf("no toggle link in:\n%s", body)
	}
	rest := body[i+len(marker):]
	return html.UnescapeString(rest[:strings.Index(rest, `"`)])
}

func TestToggleRedrawsSnapshotWithoutRefetch(t *testing.T) {
	fb := newFakeBackend()
	s := newTestServer(t, fb)

	rec := do(t, s.mux, http.MethodGet, "/events-page", nil, visitor)
	link := firstToggleLink(t, rec.Body.String())
	if link != "/events-page?open=e1&q=#event-e1" {
		t.Fatalf("toggle link = %q", link)
	}

	target, _, _ := strings.Cut(link, "#")
	rec = do(t, s.mux, http.MethodGet, target, nil, visitor)
	if !strings.Contains(rec.Body.String(), `class="event-item toggled"`) {
		t.Error("toggled card not expanded")
	}
	target, _, _ = strings.Cut(firstToggleLink(t, rec.Body.String()), "#")
	rec = do(t, s.mux, http.MethodGet, target, nil, visitor)
	if strings.Contains(rec.Body.String(), `class="event-item toggled"`) {
		t.Error("card still expanded after second toggle")
	}
	if n := fb.count("/events"); n != 1 {
		t.Errorf("events fetched %d times across toggles, want 1", n)
	}
}

func TestListLoadErrors(t *testing.T) {
	fb := newFakeBackend()
	fb.down = true
	s := newTestServer(t, fb)

	rec := do(t, s.mux, http.MethodGet, "/events-page", nil, visitor)
	if rec.Code != http.StatusBadGateway || !strings.Contains(rec.Body.String(), "Database unavailable") {
		t.Errorf("rejection: %d %s", rec.Code, rec.Body.String())
	}

	s.api, _ = backend.New("http://127.0.0.1:1", nil)
	rec = do(t, s.mux, http.MethodGet, "/events-page", nil, visitor)
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), msgLoadFailed) {
		t.Errorf("transport failure: %d %s", rec.Code, rec.Body.String())
	}
}

func TestMyEventsRequiresLogin(t *testing.T) {
	fb := newFakeBackend()
	s := newTestServer(t, fb)

	rec := do(t, s.mux, http.MethodGet, "/my-events", nil, visitor)
	if rec.Code != http.StatusUnauthorized || !strings.Contains(rec.Body.String(), msgNeedLogin) {
		t.Errorf("anonymous my-events: %d", rec.Code)
	}
	if fb.count("/reminders") != 0 {
		t.Error("backend called for anonymous viewer")
	}

	rec = do(t, s.mux, http.MethodGet, "/my-events", nil, loggedIn(model.RoleStudent)...)
	if rec.Code != http.StatusOK || fb.count("/reminders") != 1 {
		t.Errorf("my-events: %d, reminders %d", rec.Code, fb.count("/reminders"))
	}
}

func actionForm(eventID, from, q, open string) url.Values {
	return url.Values{"event_id": {eventID}, "from": {from}, "q": {q}, "open": {open}}
}

func TestBookRedirectsWithBackendTextAndRefreshes(t *testing.T) {
	fb := newFakeBackend()
	s := newTestServer(t, fb)

	rec := do(t, s.mux, http.MethodPost, "/actions/book", actionForm("e2", "/events-page", "fair", "e2"), loggedIn(model.RoleStudent)...)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/events-page?open=e2&q=fair#event-e2" {
		t.Errorf("location = %q", loc)
	}
	if got := flashOf(t, rec); got != "Booking confirmed" {
		t.Errorf("flash = %q", got)
	}
	if fb.count("/book-event") != 1 || fb.count("/events") != 1 {
		t.Errorf("hits = %v", fb.hits)
	}
}

func TestEmptyQueryIsKeptOnRedirect(t *testing.T) {
	s := newTestServer(t, newFakeBackend())
	rec := do(t, s.mux, http.MethodPost, "/actions/book", actionForm("e2", "/my-events", "", ""), loggedIn(model.RoleStudent)...)
	if loc := rec.Header().Get("Location"); loc != "/my-events?q=#event-e2" {
		t.Errorf("location = %q", loc)
	}
}

func TestRejectedActionSurfacesTextWithoutRefresh(t *testing.T) {
	fb := newFakeBackend()
	fb.reject["/book-event"] = "Event is full"
	s := newTestServer(t, fb)

	rec := do(t, s.mux, http.MethodPost, "/actions/book", actionForm("e1", "/events-page", "", ""), loggedIn(model.RoleStudent)...)
	if got := flashOf(t, rec); got != "Event is full" {
		t.Errorf("flash = %q", got)
	}
	if fb.count("/events") != 0 {
		t.Error("list refreshed after a rejection")
	}
}

func TestCancelAsksForConfirmationFirst(t *testing.T) {
	fb := newFakeBackend()
	s := newTestServer(t, fb)
	form := actionForm("e1", "/my-events", "", "e1")

	rec := do(t, s.mux, http.MethodPost, "/actions/cancel-booking", form, loggedIn(model.RoleStudent)...)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Are you sure that you wish to cancel this booking?") || !strings.Contains(body, `name="confirm" value="yes"`) {
		t.Errorf("confirm page:\n%s", body)
	}
	if fb.count("/cancel-booking") != 0 {
		t.Fatal("cancelled before confirmation")
	}

	form.Set("confirm", "yes")
	rec = do(t, s.mux, http.MethodPost, "/actions/cancel-booking", form, loggedIn(model.RoleStudent)...)
	if rec.Code != http.StatusSeeOther || fb.count("/cancel-booking") != 1 || fb.count("/reminders") != 1 {
		t.Errorf("confirmed cancel: %d hits %v", rec.Code, fb.hits)
	}
}

func TestUnknownActionNotFound(t *testing.T) {
	s := newTestServer(t, newFakeBackend())
	rec := do(t, s.mux, http.MethodPost, "/actions/launch", actionForm("e1", "/", "", ""), visitor)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestEventPage(t *testing.T) {
	s := newTestServer(t, newFakeBackend())

	rec := do(t, s.mux, http.MethodGet, "/events/e1", nil, visitor)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `class="event-item toggled"`) {
		t.Errorf("event page: %d", rec.Code)
	}

	link := firstToggleLink(t, rec.Body.String())
	if link != "/events/e1?open=&q=#event-e1" {
		t.Fatalf("collapse link = %q", link)
	}
	target, _, _ := strings.Cut(link, "#")
	rec = do(t, s.mux, http.MethodGet, target, nil, visitor)
	if rec.Code != http.StatusOK || strings.Contains(rec.Body.String(), `class="event-item toggled"`) {
		t.Errorf("collapsed event page: %d", rec.Code)
	}

	rec = do(t, s.mux, http.MethodGet, "/events/nope", nil, visitor)
	if rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), "Event not found") {
		t.Errorf("missing event: %d", rec.Code)
	}
}

func TestLoginSetsIdentityCookies(t *testing.T) {
	s := newTestServer(t, newFakeBackend())

	rec := do(t, s.mux, http.MethodPost, "/login", url.Values{"email": {"ann@uni.ac.uk"}, "password": {"pw"}}, visitor)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/events-page" {
		t.Fatalf("login: %d %s", rec.Code, rec.Header().Get("Location"))
	}
	c := cookieNamed(rec, "user_id")
	if c == nil || c.Value != "u1" || c.Path != "/" || !c.HttpOnly {
		t.Errorf("user_id cookie = %+v", c)
	}
	if flashOf(t, rec) != dispatch.MsgLoggedIn {
		t.Errorf("flash = %q", flashOf(t, rec))
	}

	rec = do(t, s.mux, http.MethodPost, "/login", url.Values{"email": {"ann@uni.ac.uk"}, "password": {"bad"}}, visitor)
	if rec.Code != http.StatusUnauthorized || !strings.Contains(rec.Body.String(), "Invalid credentials") {
		t.Errorf("bad login: %d", rec.Code)
	}
}

func TestRegisterRejectsNonAcademicEmail(t *testing.T) {
	fb := newFakeBackend()
	s := newTestServer(t, fb)

	rec := do(t, s.mux, http.MethodPost, "/register", url.Values{"full_name": {"Bob"}, "email": {"bob@gmail.com"}, "password": {"pw"}}, visitor)
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), dispatch.MsgAcademicRequired) {
		t.Errorf("register: %d", rec.Code)
	}
	if fb.count("/register") != 0 {
		t.Error("backend called for a non-academic address")
	}
}

func TestLogoutClearsIdentity(t *testing.T) {
	s := newTestServer(t, newFakeBackend())
	do(t, s.mux, http.MethodGet, "/events-page", nil, loggedIn(model.RoleStudent)...)
	before := s.snapshots.Len()

	rec := do(t, s.mux, http.MethodPost, "/logout", url.Values{}, loggedIn(model.RoleStudent)...)
	for _, name := range []string{"username", "user_id", "role"} {
		if c := cookieNamed(rec, name); c == nil || c.MaxAge >= 0 {
			t.Errorf("%s not cleared: %+v", name, c)
		}
	}
	if before == 0 || s.snapshots.Len() != 0 {
		t.Errorf("snapshots before %d after %d", before, s.snapshots.Len())
	}
}

func TestCreateRequiresStaff(t *testing.T) {
	s := newTestServer(t, newFakeBackend())
	rec := do(t, s.mux, http.MethodGet, "/create", nil, loggedIn(model.RoleStudent)...)
	if rec.Code != http.StatusSeeOther || flashOf(t, rec) != msgNeedStaff {
		t.Errorf("student create: %d %q", rec.Code, flashOf(t, rec))
	}

	rec = do(t, s.mux, http.MethodGet, "/create", nil, loggedIn(model.RoleStaff)...)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `name="event_cap"`) {
		t.Errorf("staff create: %d", rec.Code)
	}
}

func TestCreateEventSubmits(t *testing.T) {
	fb := newFakeBackend()
	s := newTestServer(t, fb)
	form := url.Values{
		"host_name": {"Ann"}, "host_email": {"ann@uni.ac.uk"}, "event_name": {"Talk"},
		"event_loc": {"Hall"}, "event_date": {"2025-04-01"}, "event_time": {"10:00"},
		"event_cap": {"20"}, "event_desc": {"**bold**"},
	}

	rec := do(t, s.mux, http.MethodPost, "/create", form, loggedIn(model.RoleStaff)...)
	if rec.Code != http.StatusSeeOther || flashOf(t, rec) != dispatch.MsgEventCreated {
		t.Errorf("create: %d %q", rec.Code, flashOf(t, rec))
	}
	if fb.count("/create/submit-event") != 1 {
		t.Error("backend not called")
	}

	form.Set("event_cap", "lots")
	rec = do(t, s.mux, http.MethodPost, "/create", form, loggedIn(model.RoleStaff)...)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad capacity: %d", rec.Code)
	}
}

const weeklyCalendar = "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//test//EN\r\n" +
	"BEGIN:VEVENT\r\nUID:club@x\r\nDTSTAMP:20250101T000000Z\r\nDTSTART:20250303T180000Z\r\n" +
	"DTEND:20250303T190000Z\r\nRRULE:FREQ=WEEKLY;COUNT=3\r\nSUMMARY:Chess Club\r\nEND:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestImportCreatesOneEventPerOccurrence(t *testing.T) {
	fb := newFakeBackend()
	s := newTestServer(t, fb)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("host_name", "Ann")
	_ = mw.WriteField("host_email", "ann@uni.ac.uk")
	_ = mw.WriteField("event_cap", "12")
	fw, _ := mw.CreateFormFile("calendar", "club.ics")
	_, _ = io.WriteString(fw, weeklyCalendar)
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/create/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	for _, c := range loggedIn(model.RoleStaff) {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	if got := flashOf(t, rec); got != "Imported 3 events." {
		t.Errorf("flash = %q", got)
	}
	if n := fb.count("/create/submit-event"); n != 3 {
		t.Errorf("created %d events", n)
	}
}

func TestChangeRoleRendersRefreshedUsers(t *testing.T) {
	fb := newFakeBackend()
	s := newTestServer(t, fb)
	form := url.Values{"user_id": {"u7"}, "new_role": {"staff"}}

	rec := do(t, s.mux, http.MethodPost, "/admin/role", form, loggedIn(model.RoleStaff)...)
	if rec.Code != http.StatusForbidden {
		t.Errorf("staff changed a role: %d", rec.Code)
	}

	rec = do(t, s.mux, http.MethodPost, "/admin/role", form, loggedIn(model.RoleAdmin)...)
	if rec.Code != http.StatusOK || fb.count("/update-role") != 0 {
		t.Fatalf("unconfirmed: %d hits %v", rec.Code, fb.hits)
	}

	form.Set("confirm", "yes")
	rec = do(t, s.mux, http.MethodPost, "/admin/role", form, loggedIn(model.RoleAdmin)...)
	body := rec.Body.String()
	if rec.Code != http.StatusOK || !strings.Contains(body, dispatch.MsgRoleUpdated) || !strings.Contains(body, "ann@uni.ac.uk") {
		t.Errorf("confirmed: %d\n%s", rec.Code, body)
	}
	if fb.count("/events") != 0 {
		t.Error("role change refreshed the event list")
	}
}

func TestMyEventsCalendarExport(t *testing.T) {
	s := newTestServer(t, newFakeBackend())

	rec := do(t, s.mux, http.MethodGet, "/my-events.ics", nil, loggedIn(model.RoleStudent)...)
	if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/calendar") {
		t.Fatalf("export: %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}
	if !strings.Contains(rec.Body.String(), "SUMMARY:Talk") {
		t.Errorf("calendar:\n%s", rec.Body.String())
	}

	rec = do(t, s.mux, http.MethodGet, "/my-events.ics", nil, visitor)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous export: %d", rec.Code)
	}
}

func TestBoardIsReadOnlyAndExpanded(t *testing.T) {
	s := newTestServer(t, newFakeBackend())
	rec := do(t, s.mux, http.MethodGet, "/board", nil)
	body := rec.Body.String()
	if rec.Code != http.StatusOK || !strings.Contains(body, `data-ready="true"`) {
		t.Fatalf("board: %d", rec.Code)
	}
	if strings.Contains(body, "<form") || strings.Contains(body, `class="event-main" href`) {
		t.Error("board has interactive controls")
	}
	if strings.Count(body, "event-item toggled") != 2 {
		t.Error("board cards not all expanded")
	}
}

func TestAnalyticsPage(t *testing.T) {
	s := newTestServer(t, newFakeBackend())
	rec := do(t, s.mux, http.MethodGet, "/analytics", nil, loggedIn(model.RoleStudent)...)
	if rec.Code != http.StatusForbidden {
		t.Errorf("student analytics: %d", rec.Code)
	}

	rec = do(t, s.mux, http.MethodGet, "/analytics?view=weekly", nil, loggedIn(model.RoleStaff)...)
	body := rec.Body.String()
	if rec.Code != http.StatusOK {
		t.Fatalf("staff analytics: %d", rec.Code)
	}
	for _, want := range []string{"62.5%", "40 booked / 3 waitlisted", "Events Hosted", `height="100.0"`} {
		if !strings.Contains(body, want) {
			t.Errorf("analytics missing %q", want)
		}
	}
}

func TestAdminRows(t *testing.T) {
	s := newTestServer(t, newFakeBackend())
	rec := do(t, s.mux, http.MethodGet, "/admin", nil, loggedIn(model.RoleAdmin)...)
	body := rec.Body.String()
	if rec.Code != http.StatusOK || !strings.Contains(body, "Demote to Student") || !strings.Contains(body, "Admin (Protected)") {
		t.Errorf("admin page: %d\n%s", rec.Code, body)
	}

	rows := userRows([]model.User{{ID: "s", Role: model.RoleStudent}})
	if rows[0].NewRole != model.RoleStaff || rows[0].Label != "Promote to Staff" {
		t.Errorf("student row = %+v", rows[0])
	}
}

func TestHandlerChain(t *testing.T) {
	s := newTestServer(t, newFakeBackend())
	rec := do(t, s.Handler(), http.MethodGet, "/health", nil)
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("security headers missing")
	}
	if c := cookieNamed(rec, visitorCookie); c == nil || c.Value == "" {
		t.Error("visitor cookie not issued")
	}

	rec = do(t, s.Handler(), http.MethodPost, "/actions/book", actionForm("e1", "/", "", ""), visitor)
	if rec.Code != http.StatusForbidden {
		t.Errorf("post without csrf token: %d", rec.Code)
	}
}

func TestSafeReturn(t *testing.T) {
	cases := map[string]string{
		"/my-events":           "/my-events",
		"/events/e1?x=1":       "/events/e1",
		"https://evil.example": "/events-page",
		"//evil.example/x":     "/events-page",
		`/\evil.example`:       "/events-page",
		"/%5Cevil.example":     "/events-page",
		"":                     "/events-page",
		"relative":             "/events-page",
	}
	for in, want := range cases {
		if got := safeReturn(in, "/events-page"); got != want {
			t.Errorf("safeReturn(%q) = %q, want %q", in, got, want)
		}
	}
}
