// Package render turns an event list, the viewer's session and the set of
// open cards into the view-model and HTML fragment of the event list.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"net/url"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"eventboard/internal/model"
)

// Action route segments, shared with the web layer's /actions/{action}.
const (
	ActionBook          = "book"
	ActionCancelBooking = "cancel-booking"
	ActionLeaveWaitlist = "leave-waitlist"
	ActionViewAttendees = "view-attendees"
	ActionDeleteEvent   = "delete-event"
)

// Placeholder is shown instead of an empty list.
const Placeholder = "No events to display."

//go:embed templates/*.html
var templateFS embed.FS

// Templates returns the embedded fragment templates. Page templates parse
// them alongside their own so pages can {{template "event-list" .}}.
func Templates() embed.FS {
	return templateFS
}

var fragment = template.Must(template.New("render").ParseFS(templateFS, "templates/*.html"))

// Button is one action form on a card.
type Button struct {
	Action string
	Label  string
	Class  string
}

// Card is the display record of one event.
type Card struct {
	ID          string
	Name        string
	Host        string
	HostEmail   string
	Date        string
	Time        string
	Location    string
	Description template.HTML

	Capacity         int
	Remaining        int
	FullyBooked      bool
	AvailabilityText string
	OccupancyText    string

	ShortDuration string
	FullDuration  string
	Passed        bool

	Expanded   bool
	ToggleOpen string

	Booked     bool
	Waitlisted bool
	Primary    Button

	ShowDownload  bool
	DownloadURL   string
	ShowAttendees bool
	ShowDelete    bool
}

// List is the whole fragment. Path, Query, From, CSRFField and ReadOnly are
// page context filled in by the caller after Build.
type List struct {
	Cards       []Card
	Empty       bool
	Placeholder string
	Open        string

	Path      string
	Query     string
	From      string
	CSRFField template.HTML
	ReadOnly  bool
}

// ToggleURL is the link a card header points at. q and open are always
// present, even when empty: q makes the page redraw the current snapshot
// instead of fetching again, and an empty open collapses every card.
func (l List) ToggleURL(c Card) template.URL {
	v := url.Values{}
	v.Set("q", l.Query)
	v.Set("open", c.ToggleOpen)
	path := l.Path
	if path == "" {
		path = "/events-page"
	}
	return template.URL(path + "?" + v.Encode() + "#event-" + url.PathEscape(c.ID))
}

// Renderer builds cards relative to a clock and a display location.
type Renderer struct {
	Now          func() time.Time
	Location     *time.Location
	Descriptions goldmark.Markdown
}

// NewDescriptions is the Markdown converter used for event descriptions:
// GFM, hard line breaks, raw HTML dropped.
func NewDescriptions() goldmark.Markdown {
	return goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
	)
}

// New returns a Renderer on the wall clock in loc.
func New(loc *time.Location) *Renderer {
	return &Renderer{Now: time.Now, Location: loc, Descriptions: NewDescriptions()}
}

func (r *Renderer) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

func (r *Renderer) location() *time.Location {
	if r.Location == nil {
		return time.Local
	}
	return r.Location
}

func (r *Renderer) description(text string) template.HTML {
	if text == "" {
		return ""
	}
	md := r.Descriptions
	if md == nil {
		md = NewDescriptions()
	}
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String())
}

// Build computes the view-model for events in the given order. expanded is
// not modified and is carried whole in Open, so ids filtered out of events
// are still open when they come back.
func (r *Renderer) Build(events []model.Event, expanded Expanded, s model.Session) List {
	if len(events) == 0 {
		return List{Empty: true, Placeholder: Placeholder, Open: expanded.String()}
	}

	now := r.now()
	loc := r.location()
	staff := s.Role.IsStaff()

	cards := make([]Card, 0, len(events))
	for _, ev := range events {
		c := Card{
			ID:          ev.ID,
			Name:        ev.Name,
			Host:        ev.HostName,
			HostEmail:   ev.HostEmail,
			Date:        ev.Date,
			Time:        ev.Time,
			Location:    ev.Location,
			Description: r.description(ev.Description),
			Capacity:    int(ev.Cap),
			Remaining:   ev.Remaining(),
			Expanded:    expanded.Has(ev.ID),
			ToggleOpen:  expanded.Toggle(ev.ID).String(),
		}

		c.FullyBooked = c.Remaining <= 0
		if c.FullyBooked {
			c.AvailabilityText = fmt.Sprintf("%d/%d fully booked", c.Remaining, c.Capacity)
		} else {
			c.AvailabilityText = fmt.Sprintf("%d/%d spaces remaining", c.Remaining, c.Capacity)
		}
		c.OccupancyText = fmt.Sprintf("%d/%d booked", len(ev.BookedUsers), c.Capacity)

		if start, err := ev.StartsAt(loc); err != nil {
			c.ShortDuration, c.FullDuration = DateUnavailable, DateUnavailable
		} else {
			c.ShortDuration, c.FullDuration, c.Passed = Until(now, start)
		}

		// booked wins if the backend ever reports both
		c.Booked = ev.IsBooked(s.UserID)
		c.Waitlisted = !c.Booked && ev.IsWaitlisted(s.UserID)
		switch {
		case c.Booked:
			c.Primary = Button{Action: ActionCancelBooking, Label: "Cancel Booking", Class: "cancel-button"}
		case c.Waitlisted:
			c.Primary = Button{Action: ActionLeaveWaitlist, Label: "Leave Waitlist", Class: "cancel-button"}
		default:
			c.Primary = Button{Action: ActionBook, Label: "Book Event", Class: "book-button"}
		}

		c.ShowDownload = c.Booked
		if c.ShowDownload {
			c.DownloadURL = "/booking-confirmation/" + url.PathEscape(ev.ID)
		}
		c.ShowAttendees = staff
		c.ShowDelete = staff

		cards = append(cards, c)
	}

	return List{Cards: cards, Open: expanded.String()}
}

// WriteList executes the event-list fragment for l.
func WriteList(w io.Writer, l List) error {
	if l.Path == "" {
		l.Path = "/events-page"
	}
	return fragment.ExecuteTemplate(w, "event-list", l)
}

// Render replaces the display surface w with the list for events.
func (r *Renderer) Render(w io.Writer, events []model.Event, expanded Expanded, s model.Session) error {
	return WriteList(w, r.Build(events, expanded, s))
}
