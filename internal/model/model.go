package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Role is the account role the backend issues in the "role" cookie.
type Role string

const (
	RoleStudent Role = "student"
	RoleStaff   Role = "staff"
	RoleAdmin   Role = "admin"
)

// ParseRole returns the role named by s, or "" if s is not a known role.
func ParseRole(s string) Role {
	switch r := Role(strings.TrimSpace(s)); r {
	case RoleStudent, RoleStaff, RoleAdmin:
		return r
	default:
		return ""
	}
}

// IsStaff reports whether the role may manage events (staff or admin).
func (r Role) IsStaff() bool {
	return r == RoleStaff || r == RoleAdmin
}

// Session is the viewer's identity as read from client-held cookies.
// Empty fields mean absent.
type Session struct {
	UserID   string
	Role     Role
	Username string
}

// LoggedIn mirrors the navigation check: a username cookie is present.
func (s Session) LoggedIn() bool {
	return s.Username != ""
}

// Capacity is an event capacity. The backend emits it either as a JSON
// number or as a numeric string.
type Capacity int

func (c *Capacity) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*c = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		b = []byte(strings.TrimSpace(s))
		if len(b) == 0 {
			*c = 0
			return nil
		}
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("event_cap: %w", err)
	}
	if f < 0 {
		f = 0
	}
	*c = Capacity(f)
	return nil
}

// Event is a bookable event as returned by the backend. It is treated as
// immutable until the next fetch.
type Event struct {
	ID            string   `json:"id"`
	Name          string   `json:"event_name"`
	Description   string   `json:"event_desc"`
	Location      string   `json:"event_loc"`
	Date          string   `json:"event_date"`
	Time          string   `json:"event_time"`
	HostName      string   `json:"host_name"`
	HostEmail     string   `json:"host_email"`
	Cap           Capacity `json:"event_cap"`
	BookedUsers   []string `json:"booked_users"`
	WaitlistUsers []string `json:"waitlist_users"`
	CreatedAt     string   `json:"created_at,omitempty"`
}

var timeLayouts = []string{"15:04", "15:04:05"}

// StartsAt combines Date and Time in loc. Date must be YYYY-MM-DD and Time
// HH:MM or HH:MM:SS.
func (e Event) StartsAt(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	date := strings.TrimSpace(e.Date)
	clock := strings.TrimSpace(e.Time)
	var lastErr error
	for _, layout := range timeLayouts {
		t, err := time.ParseInLocation("2006-01-02 "+layout, date+" "+clock, loc)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, fmt.Errorf("event %s start: %w", e.ID, lastErr)
}

// Remaining is capacity minus confirmed bookings. It may be negative if the
// backend overbooks.
func (e Event) Remaining() int {
	return int(e.Cap) - len(e.BookedUsers)
}

// IsBooked reports whether userID holds a confirmed seat.
func (e Event) IsBooked(userID string) bool {
	return userID != "" && slices.Contains(e.BookedUsers, userID)
}

// IsWaitlisted reports whether userID is queued on the waitlist.
func (e Event) IsWaitlisted(userID string) bool {
	return userID != "" && slices.Contains(e.WaitlistUsers, userID)
}

// User is a row of the administrative user list.
type User struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Role     Role   `json:"role"`
}

// Summary is the aggregate booking report from /api/analytics/summary.
type Summary struct {
	AverageFillRate float64 `json:"average_fill_rate"`
	Booked          int     `json:"booked"`
	Waitlisted      int     `json:"waitlisted"`
	Cancellations   int     `json:"cancellations"`
}

// Series is a labelled pair of event/attendee counts. The weekly endpoint
// labels buckets under "weeks", the daily one under "days".
type Series struct {
	Weeks     []string `json:"weeks,omitempty"`
	Days      []string `json:"days,omitempty"`
	Events    []int    `json:"events"`
	Attendees []int    `json:"attendees"`
}

// Labels returns whichever label list the endpoint populated.
func (s Series) Labels() []string {
	if len(s.Weeks) > 0 {
		return s.Weeks
	}
	return s.Days
}
