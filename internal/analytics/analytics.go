// Package analytics shapes the backend's booking statistics into the
// summary card and bar charts of the analytics page.
package analytics

import (
	"fmt"
	"strconv"

	"eventboard/internal/model"
)

// View selects the chart bucketing.
type View string

const (
	Weekly View = "weekly"
	Daily  View = "daily"
)

// ParseView defaults to Weekly.
func ParseView(s string) View {
	if View(s) == Daily {
		return Daily
	}
	return Weekly
}

// SummaryCard is the headline statistics block.
type SummaryCard struct {
	FillRate      string
	BookingRatio  string
	Cancellations string
}

func NewSummaryCard(s model.Summary) SummaryCard {
	return SummaryCard{
		FillRate:      strconv.FormatFloat(s.AverageFillRate, 'f', -1, 64) + "%",
		BookingRatio:  fmt.Sprintf("%d booked / %d waitlisted", s.Booked, s.Waitlisted),
		Cancellations: strconv.Itoa(s.Cancellations),
	}
}

// Bar is one bucket. Height is a percentage of the chart's tallest bar.
type Bar struct {
	Label  string
	Value  int
	Height float64
}

// Chart is a labelled bar series.
type Chart struct {
	Title string
	Max   int
	Bars  []Bar
}

// Empty reports whether there is nothing to draw.
func (c Chart) Empty() bool {
	return len(c.Bars) == 0
}

func newChart(title string, labels []string, values []int) Chart {
	c := Chart{Title: title, Bars: make([]Bar, 0, len(labels))}
	for i := range labels {
		if values[i] > c.Max {
			c.Max = values[i]
		}
	}
	for i, label := range labels {
		b := Bar{Label: label, Value: values[i]}
		if c.Max > 0 && values[i] > 0 {
			b.Height = float64(values[i]) * 100 / float64(c.Max)
		}
		c.Bars = append(c.Bars, b)
	}
	return c
}

// Charts builds the "Events Hosted" and "Attendees" charts. Series of
// different lengths are cut to the shortest.
func Charts(labels []string, events, attendees []int) (Chart, Chart) {
	n := min(len(labels), len(events), len(attendees))
	labels, events, attendees = labels[:n], events[:n], attendees[:n]
	return newChart("Events Hosted", labels, events), newChart("Attendees", labels, attendees)
}

// SeriesCharts is Charts over a backend series.
func SeriesCharts(s model.Series) (Chart, Chart) {
	return Charts(s.Labels(), s.Events, s.Attendees)
}
