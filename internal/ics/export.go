package ics

import (
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "eventboard/internal/log"
	"eventboard/internal/model"
)

// DefaultDuration is the length given to exported events; the backend
// stores a start only.
const DefaultDuration = time.Hour

// UID is the stable calendar identifier of an event.
func UID(eventID string) string {
	return eventID + "@eventboard"
}

// Export writes events as a VCALENDAR. Events whose date or time cannot be
// read are left out.
func Export(events []model.Event, loc *time.Location, now time.Time) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//eventboard//booked events//EN")
	cal.SetXWRCalName("My booked events")

	for _, ev := range events {
		start, err := ev.StartsAt(loc)
		if err != nil {
			appLog.Warn("export: skipping event without a usable start", "id", ev.ID, "err", err)
			continue
		}

		ve := cal.AddEvent(UID(ev.ID))
		ve.SetDtStampTime(now)
		ve.SetStartAt(start)
		ve.SetEndAt(start.Add(DefaultDuration))
		ve.SetSummary(ev.Name)
		if ev.Location != "" {
			ve.SetLocation(ev.Location)
		}
		if ev.Description != "" {
			ve.SetDescription(ev.Description)
		}
		if ev.HostEmail != "" {
			ve.SetOrganizer("mailto:"+ev.HostEmail, ical.WithCN(ev.HostName))
		}
	}

	return cal.Serialize()
}
