package ics

import (
	"errors"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "eventboard/internal/log"
)

const defaultMaxPerEvent = 52

// maxScan bounds how many instances of one rule are generated while
// looking for the window, for rules that start long before it.
const maxScan = 1 << 20

// ExpandConfig bounds recurrence expansion.
type ExpandConfig struct {
	// Location is the zone occurrences are reported in. Nil means time.Local.
	Location *time.Location

	// From and To are the inclusive window occurrences must start in.
	From time.Time
	To   time.Time

	// MaxPerEvent caps occurrences of one UID. Zero means 52.
	MaxPerEvent int
}

// Occurrence is one concrete instance, ready to become an event.
type Occurrence struct {
	UID         string
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	AllDay      bool
}

// Date is the start date in the backend's YYYY-MM-DD form.
func (o Occurrence) Date() string {
	return o.Start.Format("2006-01-02")
}

// Clock is the start time in the backend's HH:MM form. All-day
// occurrences start at 09:00.
func (o Occurrence) Clock() string {
	if o.AllDay {
		return "09:00"
	}
	return o.Start.Format("15:04")
}

// ExpandResult lists occurrences in start order.
type ExpandResult struct {
	Occurrences []Occurrence
	// Truncated holds the UIDs that hit MaxPerEvent.
	Truncated []string
}

// Expand turns entries into occurrences inside the window. RRULEs are
// expanded with EXDATEs removed, and RECURRENCE-ID entries replace the
// instance they name.
func Expand(entries []Entry, cfg ExpandConfig) (ExpandResult, error) {
	var res ExpandResult
	if cfg.To.Before(cfg.From) {
		return res, errors.New("expand: window ends before it starts")
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.MaxPerEvent <= 0 {
		cfg.MaxPerEvent = defaultMaxPerEvent
	}

	bases := make(map[string][]Entry)
	overrides := make(map[string][]Entry)
	var order []string
	for _, e := range entries {
		if e.RecurrenceID != nil {
			overrides[e.UID] = append(overrides[e.UID], e)
			continue
		}
		if _, seen := bases[e.UID]; !seen {
			order = append(order, e.UID)
		}
		bases[e.UID] = append(bases[e.UID], e)
	}

	for _, uid := range order {
		var occs []Occurrence
		for _, e := range bases[uid] {
			occs = append(occs, expandEntry(e, overrides[uid], cfg)...)
		}
		if len(occs) > cfg.MaxPerEvent {
			occs = occs[:cfg.MaxPerEvent]
			res.Truncated = append(res.Truncated, uid)
			appLog.Warn("recurring event truncated", "uid", uid, "cap", cfg.MaxPerEvent)
		}
		res.Occurrences = append(res.Occurrences, occs...)
	}

	sort.SliceStable(res.Occurrences, func(i, j int) bool {
		return res.Occurrences[i].Start.Before(res.Occurrences[j].Start)
	})
	return res, nil
}

func inWindow(t time.Time, cfg ExpandConfig) bool {
	return !t.Before(cfg.From) && !t.After(cfg.To)
}

func expandEntry(e Entry, overrides []Entry, cfg ExpandConfig) []Occurrence {
	if e.RRule == "" {
		start, end, src := e.Start, e.End, e
		if o, ok := overrideFor(overrides, e.Start); ok {
			start, end, src = o.Start, o.End, o
		}
		if !inWindow(start, cfg) {
			return nil
		}
		return []Occurrence{occurrence(src, start, end, cfg.Location)}
	}

	r, err := rrule.StrToRRule(e.RRule)
	if err != nil {
		appLog.Error("bad RRULE", err, "uid", e.UID, "rrule", e.RRule)
		return nil
	}
	r.DTStart(e.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range e.ExDates {
		set.ExDate(ex.In(e.Start.Location()))
	}

	zone := e.Start.Location()
	from, to := cfg.From.In(zone), cfg.To.In(zone)
	dur := e.End.Sub(e.Start)

	var out []Occurrence
	next := set.Iterator()
	for scanned := 0; ; scanned++ {
		if scanned == maxScan {
			appLog.Warn("recurrence scan limit reached", "uid", e.UID, "rrule", e.RRule)
			break
		}
		s, ok := next()
		if !ok || s.After(to) {
			break
		}
		if s.Before(from) {
			continue
		}
		start, end, src := s, s.Add(dur), e
		if o, ok := overrideFor(overrides, s); ok {
			start, end, src = o.Start, o.End, o
		}
		out = append(out, occurrence(src, start, end, cfg.Location))
		// one past the cap is enough for Expand to report truncation
		if len(out) > cfg.MaxPerEvent {
			break
		}
	}
	return out
}

func overrideFor(overrides []Entry, start time.Time) (Entry, bool) {
	for _, o := range overrides {
		if o.RecurrenceID != nil && o.RecurrenceID.Equal(start) {
			return o, true
		}
	}
	return Entry{}, false
}

func occurrence(e Entry, start, end time.Time, loc *time.Location) Occurrence {
	return Occurrence{
		UID:         e.UID,
		Summary:     e.Summary,
		Description: e.Description,
		Location:    e.Location,
		Start:       start.In(loc),
		End:         end.In(loc),
		AllDay:      e.AllDay,
	}
}
