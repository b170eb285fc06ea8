// Package ics reads iCalendar files into importable event drafts and writes
// a viewer's booked events back out as a calendar.
package ics

import (
	"bytes"
	"errors"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "eventboard/internal/log"
)

// Entry is one VEVENT as read from an uploaded or fetched calendar.
// Recurrences are not expanded here.
type Entry struct {
	UID string

	Summary     string
	Description string
	Location    string

	Start  time.Time
	End    time.Time
	AllDay bool

	RRule   string
	ExDates []time.Time

	// RecurrenceID is set when this VEVENT replaces one instance of a
	// recurring event with the same UID.
	RecurrenceID *time.Time
}

// Parse reads every VEVENT in body. Floating times and dates are placed in
// loc. VEVENTs that cannot be read are logged and skipped.
func Parse(body []byte, loc *time.Location) ([]Entry, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("empty calendar")
	}
	if loc == nil {
		loc = time.Local
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0)
	for _, ve := range cal.Events() {
		e, perr := parseVEvent(ve, loc)
		if perr != nil {
			appLog.Warn("skipping unreadable VEVENT", "err", perr)
			continue
		}
		entries = append(entries, e)
	}

	appLog.Debug("calendar parsed", "events", len(entries))
	return entries, nil
}

func propValue(ve *ical.VEvent, p ical.ComponentProperty) string {
	if prop := ve.GetProperty(p); prop != nil {
		return prop.Value
	}
	return ""
}

func param(prop *ical.IANAProperty, name string) string {
	if prop == nil || prop.ICalParameters == nil {
		return ""
	}
	if vs := prop.ICalParameters[name]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

func parseVEvent(ve *ical.VEvent, loc *time.Location) (Entry, error) {
	var e Entry

	e.UID = propValue(ve, ical.ComponentPropertyUniqueId)
	if e.UID == "" {
		return e, errors.New("missing UID")
	}
	e.Summary = strings.TrimSpace(propValue(ve, ical.ComponentPropertySummary))
	if e.Summary == "" {
		return e, errors.New("missing SUMMARY")
	}
	e.Description = propValue(ve, ical.ComponentPropertyDescription)
	e.Location = propValue(ve, ical.ComponentPropertyLocation)

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return e, errors.New("missing DTSTART")
	}
	e.AllDay = strings.EqualFold(param(dtStart, "VALUE"), "DATE") || !strings.Contains(dtStart.Value, "T")

	start, err := propTime(dtStart, loc)
	if err != nil {
		return e, err
	}
	e.Start = start

	if dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEnd != nil {
		if end, err := propTime(dtEnd, loc); err == nil {
			e.End = end
		}
	}
	if e.End.IsZero() || e.End.Before(e.Start) {
		if e.AllDay {
			e.End = e.Start.AddDate(0, 0, 1)
		} else {
			e.End = e.Start.Add(time.Hour)
		}
	}

	e.RRule = propValue(ve, ical.ComponentPropertyRrule)

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		zone := zoneFor(param(p, "TZID"), loc)
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseTime(part, zone); err == nil {
				e.ExDates = append(e.ExDates, t)
			}
		}
	}

	if rid := ve.GetProperty("RECURRENCE-ID"); rid != nil {
		if t, err := propTime(rid, loc); err == nil {
			e.RecurrenceID = &t
		}
	}

	return e, nil
}

func zoneFor(tzid string, fallback *time.Location) *time.Location {
	if tzid == "" {
		return fallback
	}
	if z, err := time.LoadLocation(tzid); err == nil {
		return z
	}
	return fallback
}

func propTime(p *ical.IANAProperty, loc *time.Location) (time.Time, error) {
	return parseTime(p.Value, zoneFor(param(p, "TZID"), loc))
}

// parseTime reads the three iCalendar forms: UTC date-time, floating or
// zoned date-time, and date.
func parseTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}
