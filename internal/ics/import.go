package ics

import (
	"time"
)

// Draft is an occurrence reduced to the fields an event needs.
type Draft struct {
	Name        string
	Location    string
	Description string
	Date        string
	Time        string
}

// ImportConfig bounds an import.
type ImportConfig struct {
	Location    *time.Location
	Now         time.Time
	HorizonDays int
	MaxPerEvent int
}

// Import parses body and returns one draft per occurrence starting between
// now and the horizon, in start order.
func Import(body []byte, cfg ImportConfig) ([]Draft, ExpandResult, error) {
	entries, err := Parse(body, cfg.Location)
	if err != nil {
		return nil, ExpandResult{}, err
	}

	now := cfg.Now
	if now.IsZero() {
		now = time.Now()
	}
	days := cfg.HorizonDays
	if days <= 0 {
		days = 90
	}

	res, err := Expand(entries, ExpandConfig{
		Location:    cfg.Location,
		From:        now,
		To:          now.AddDate(0, 0, days),
		MaxPerEvent: cfg.MaxPerEvent,
	})
	if err != nil {
		return nil, res, err
	}

	drafts := make([]Draft, 0, len(res.Occurrences))
	for _, o := range res.Occurrences {
		drafts = append(drafts, Draft{
			Name:        o.Summary,
			Location:    o.Location,
			Description: o.Description,
			Date:        o.Date(),
			Time:        o.Clock(),
		})
	}
	return drafts, res, nil
}
