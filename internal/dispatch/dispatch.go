// Package dispatch performs the user-initiated actions against the booking
// backend. Each operation asks for confirmation when it is destructive,
// issues exactly one backend request, surfaces one message, and refreshes
// the affected list only when the backend accepted the request.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"eventboard/internal/backend"
	appLog "eventboard/internal/log"
	"eventboard/internal/model"
	"eventboard/internal/session"
	"eventboard/internal/store"
)

// Kind names an operation.
type Kind string

const (
	KindBook          Kind = "book"
	KindCancelBooking Kind = "cancel-booking"
	KindLeaveWaitlist Kind = "leave-waitlist"
	KindViewAttendees Kind = "view-attendees"
	KindDeleteEvent   Kind = "delete-event"
	KindCreateEvent   Kind = "create-event"
	KindLogin         Kind = "login"
	KindRegister      Kind = "register"
	KindChangeRole    Kind = "change-role"
)

// Fallback messages for requests that never got a response.
const (
	MsgBookFailed          = "Failed to book event"
	MsgCancelFailed        = "Failed to cancel booking"
	MsgLeaveWaitlistFailed = "Failed to leave waitlist"
	MsgAttendeesFailed     = "Failed to obtain attendees"
	MsgDeleteFailed        = "Failed to delete event"
	MsgCreateFailed        = "Event Submission Error."
	MsgLoginFailed         = "Login Error."
	MsgRegisterFailed      = "Registration Error."
	MsgRoleFailed          = "Failed to update role"
)

const (
	MsgEventCreated     = "Event created successfully!"
	MsgLoggedIn         = "Logged in successfully."
	MsgRegistered       = "Registration successful. Please log in."
	MsgRoleUpdated      = "Role updated successfully!"
	MsgLoggedOut        = "You have been logged out."
	MsgAcademicRequired = "Registration is restricted to academic (.ac.uk) email addresses."
)

var (
	// ErrNotConfirmed is returned when the viewer declined (or has not yet
	// answered) the confirmation. No request was made.
	ErrNotConfirmed = errors.New("dispatch: action not confirmed")

	// ErrNotAcademic rejects a registration before any request is made.
	ErrNotAcademic = errors.New("dispatch: email is not an academic address")
)

// Action describes an operation awaiting confirmation.
type Action struct {
	Kind    Kind
	EventID string
	UserID  string
	NewRole model.Role
	Prompt  string
}

// Confirmer decides whether a destructive action may proceed.
type Confirmer interface {
	RequestConfirmation(ctx context.Context, a Action) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, a Action) bool

func (f ConfirmFunc) RequestConfirmation(ctx context.Context, a Action) bool { return f(ctx, a) }

// Notifier surfaces a message to the viewer.
type Notifier interface {
	Notify(ctx context.Context, message string)
}

// NotifyFunc adapts a function to Notifier.
type NotifyFunc func(ctx context.Context, message string)

func (f NotifyFunc) Notify(ctx context.Context, message string) { f(ctx, message) }

// Refresher re-fetches a list after a successful change.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// RefreshFunc adapts a function to Refresher.
type RefreshFunc func(ctx context.Context) error

func (f RefreshFunc) Refresh(ctx context.Context) error { return f(ctx) }

// Backend is the subset of *backend.Client the dispatcher calls.
type Backend interface {
	Book(ctx context.Context, eventID string) (string, error)
	CancelBooking(ctx context.Context, eventID string) (string, error)
	CancelWaitlist(ctx context.Context, eventID string) (string, error)
	ViewAttendees(ctx context.Context, eventID string) (string, error)
	DeleteEvent(ctx context.Context, eventID string) (string, error)
	CreateEvent(ctx context.Context, fields []backend.Field) (string, error)
	Login(ctx context.Context, email, password string) ([]*http.Cookie, error)
	Register(ctx context.Context, fullName, email, password string) error
	UpdateRole(ctx context.Context, userID string, role model.Role) (string, error)
}

// Outcome is what the viewer should see after an operation.
type Outcome struct {
	Message   string
	Refreshed bool
	// Cookies are set on the browser (login sets identity, logout clears it).
	Cookies []*http.Cookie
}

// Dispatcher runs operations for one viewer.
type Dispatcher struct {
	backend Backend
	confirm Confirmer
	notify  Notifier
	refresh Refresher
}

// New wires a dispatcher. A nil Confirmer declines every destructive action;
// nil Notifier and Refresher are no-ops.
func New(b Backend, c Confirmer, n Notifier, r Refresher) *Dispatcher {
	return &Dispatcher{backend: b, confirm: c, notify: n, refresh: r}
}

func (d *Dispatcher) confirmed(ctx context.Context, a Action) bool {
	if d.confirm == nil {
		return false
	}
	return d.confirm.RequestConfirmation(ctx, a)
}

func (d *Dispatcher) say(ctx context.Context, msg string) {
	if d.notify != nil && msg != "" {
		d.notify.Notify(ctx, msg)
	}
}

// finish turns a backend result into an Outcome. success overrides the
// backend text when non-empty. r is refreshed only on success.
func (d *Dispatcher) finish(ctx context.Context, op Kind, text, success, fallback string, err error, r Refresher) (Outcome, error) {
	if err != nil {
		var apiErr *backend.APIError
		msg := fallback
		if errors.As(err, &apiErr) {
			msg = apiErr.Message
			appLog.Warn("backend rejected action", "op", string(op), "status", apiErr.Status, "message", apiErr.Message)
		} else {
			appLog.Error("action failed", err, "op", string(op))
		}
		d.say(ctx, msg)
		return Outcome{Message: msg}, err
	}

	msg := text
	if success != "" {
		msg = success
	}
	d.say(ctx, msg)

	out := Outcome{Message: msg}
	if r != nil {
		if rerr := r.Refresh(ctx); rerr != nil {
			appLog.Error("refresh after action failed", rerr, "op", string(op))
		} else {
			out.Refreshed = true
		}
	}
	return out, nil
}

func (d *Dispatcher) eventAction(ctx context.Context, kind Kind, eventID, prompt, fallback string, call func(context.Context, string) (string, error)) (Outcome, error) {
	if prompt != "" {
		a := Action{Kind: kind, EventID: eventID, Prompt: prompt}
		if !d.confirmed(ctx, a) {
			return Outcome{}, ErrNotConfirmed
		}
	}
	text, err := call(ctx, eventID)
	return d.finish(ctx, kind, text, "", fallback, err, d.refresh)
}

// Prompt returns the confirmation question for a destructive kind, or "" for
// kinds that never ask.
func Prompt(kind Kind, newRole model.Role) string {
	switch kind {
	case KindCancelBooking:
		return "Are you sure that you wish to cancel this booking?"
	case KindLeaveWaitlist:
		return "Are you sure you want to leave the waitlist?"
	case KindDeleteEvent:
		return "Are you sure you want to delete this event?"
	case KindChangeRole:
		return fmt.Sprintf("Are you sure you want to change this user's role to %s?", newRole)
	default:
		return ""
	}
}

func (d *Dispatcher) Book(ctx context.Context, eventID string) (Outcome, error) {
	return d.eventAction(ctx, KindBook, eventID, "", MsgBookFailed, d.backend.Book)
}

func (d *Dispatcher) CancelBooking(ctx context.Context, eventID string) (Outcome, error) {
	return d.eventAction(ctx, KindCancelBooking, eventID, Prompt(KindCancelBooking, ""), MsgCancelFailed, d.backend.CancelBooking)
}

// LeaveWaitlist removes the viewer from an event's waitlist.
func (d *Dispatcher) LeaveWaitlist(ctx context.Context, eventID string) (Outcome, error) {
	return d.eventAction(ctx, KindLeaveWaitlist, eventID, Prompt(KindLeaveWaitlist, ""), MsgLeaveWaitlistFailed, d.backend.CancelWaitlist)
}

func (d *Dispatcher) ViewAttendees(ctx context.Context, eventID string) (Outcome, error) {
	return d.eventAction(ctx, KindViewAttendees, eventID, "", MsgAttendeesFailed, d.backend.ViewAttendees)
}

func (d *Dispatcher) DeleteEvent(ctx context.Context, eventID string) (Outcome, error) {
	return d.eventAction(ctx, KindDeleteEvent, eventID, Prompt(KindDeleteEvent, ""), MsgDeleteFailed, d.backend.DeleteEvent)
}

// Run dispatches an event action by kind.
func (d *Dispatcher) Run(ctx context.Context, kind Kind, eventID string) (Outcome, error) {
	switch kind {
	case KindBook:
		return d.Book(ctx, eventID)
	case KindCancelBooking:
		return d.CancelBooking(ctx, eventID)
	case KindLeaveWaitlist:
		return d.LeaveWaitlist(ctx, eventID)
	case KindViewAttendees:
		return d.ViewAttendees(ctx, eventID)
	case KindDeleteEvent:
		return d.DeleteEvent(ctx, eventID)
	default:
		return Outcome{}, fmt.Errorf("dispatch: unknown event action %q", kind)
	}
}

// EventForm is the create-event form.
type EventForm struct {
	HostName    string
	HostEmail   string
	Name        string
	Location    string
	Date        string
	Time        string
	Capacity    int
	Description string
}

// Fields encodes the form the way the backend's submit-event route reads it.
func (f EventForm) Fields() []backend.Field {
	return []backend.Field{
		{Name: "host_name", Value: f.HostName},
		{Name: "host_email", Value: f.HostEmail},
		{Name: "event_name", Value: f.Name},
		{Name: "event_loc", Value: f.Location},
		{Name: "event_date", Value: f.Date},
		{Name: "event_time", Value: f.Time},
		{Name: "event_cap", Value: strconv.Itoa(f.Capacity)},
		{Name: "event_desc", Value: f.Description},
	}
}

// CreateEvent submits one new event and refreshes the event list.
func (d *Dispatcher) CreateEvent(ctx context.Context, f EventForm) (Outcome, error) {
	text, err := d.backend.CreateEvent(ctx, f.Fields())
	return d.finish(ctx, KindCreateEvent, text, MsgEventCreated, MsgCreateFailed, err, d.refresh)
}

// ImportEvents submits forms one at a time and stops at the first failure.
// The event list is refreshed once if anything was created.
func (d *Dispatcher) ImportEvents(ctx context.Context, forms []EventForm) (Outcome, error) {
	created := 0
	for _, f := range forms {
		if _, err := d.backend.CreateEvent(ctx, f.Fields()); err != nil {
			var apiErr *backend.APIError
			reason := MsgCreateFailed
			if errors.As(err, &apiErr) {
				reason = apiErr.Message
			}
			appLog.Error("import stopped", err, "created", created, "total", len(forms), "event", f.Name)
			msg := fmt.Sprintf("Imported %d of %d events. %s", created, len(forms), reason)
			d.say(ctx, msg)
			out := Outcome{Message: msg}
			if created > 0 && d.refresh != nil && d.refresh.Refresh(ctx) == nil {
				out.Refreshed = true
			}
			return out, err
		}
		created++
	}

	msg := fmt.Sprintf("Imported %d events.", created)
	return d.finish(ctx, KindCreateEvent, msg, "", MsgCreateFailed, nil, d.refresh)
}

// Login posts credentials. On success the backend's identity cookies are
// returned for the browser.
func (d *Dispatcher) Login(ctx context.Context, email, password string) (Outcome, error) {
	cookies, err := d.backend.Login(ctx, email, password)
	out, err := d.finish(ctx, KindLogin, "", MsgLoggedIn, MsgLoginFailed, err, nil)
	if err == nil {
		out.Cookies = cookies
	}
	return out, err
}

// IsAcademicEmail reports whether email ends in ".ac.uk".
func IsAcademicEmail(email string) bool {
	return strings.HasSuffix(strings.ToLower(strings.TrimSpace(email)), ".ac.uk")
}

// Register creates an account for an academic address.
func (d *Dispatcher) Register(ctx context.Context, fullName, email, password string) (Outcome, error) {
	if !IsAcademicEmail(email) {
		d.say(ctx, MsgAcademicRequired)
		return Outcome{Message: MsgAcademicRequired}, ErrNotAcademic
	}
	err := d.backend.Register(ctx, fullName, email, password)
	return d.finish(ctx, KindRegister, "", MsgRegistered, MsgRegisterFailed, err, nil)
}

// ChangeRole updates a user's role and refreshes users, the administrative
// list, instead of the event list.
func (d *Dispatcher) ChangeRole(ctx context.Context, userID string, role model.Role, users Refresher) (Outcome, error) {
	if model.ParseRole(string(role)) == "" {
		return Outcome{}, fmt.Errorf("dispatch: unknown role %q", role)
	}
	a := Action{Kind: KindChangeRole, UserID: userID, NewRole: role, Prompt: Prompt(KindChangeRole, role)}
	if !d.confirmed(ctx, a) {
		return Outcome{}, ErrNotConfirmed
	}
	text, err := d.backend.UpdateRole(ctx, userID, role)
	return d.finish(ctx, KindChangeRole, text, MsgRoleUpdated, MsgRoleFailed, err, users)
}

// Load fetches a list and replaces the snapshot in st. On failure st keeps
// whatever it held before.
func Load(ctx context.Context, fetch func(context.Context) ([]model.Event, error), st *store.Store) error {
	events, err := fetch(ctx)
	if err != nil {
		return err
	}
	st.SetEvents(events)
	return nil
}

// Logout clears the identity cookies. The backend keeps no server-side
// session, so no request is made.
func (d *Dispatcher) Logout(ctx context.Context) Outcome {
	d.say(ctx, MsgLoggedOut)
	return Outcome{Message: MsgLoggedOut, Cookies: session.Clear()}
}
