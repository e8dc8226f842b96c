package google

import (
	"context"

	gcal "google.golang.org/api/calendar/v3"
)

// serviceAPI adapts *gcal.Service to API.
type serviceAPI struct {
	svc *gcal.Service
}

func (s *serviceAPI) InsertCalendar(ctx context.Context, cal *gcal.Calendar) (*gcal.Calendar, error) {
	return s.svc.Calendars.Insert(cal).Context(ctx).Do()
}

func (s *serviceAPI) GetCalendar(ctx context.Context, calendarID string) (*gcal.Calendar, error) {
	return s.svc.Calendars.Get(calendarID).Context(ctx).Do()
}

func (s *serviceAPI) DeleteCalendar(ctx context.Context, calendarID string) error {
	return s.svc.Calendars.Delete(calendarID).Context(ctx).Do()
}

func (s *serviceAPI) ListACL(ctx context.Context, calendarID string) ([]*gcal.AclRule, error) {
	var out []*gcal.AclRule
	err := s.svc.Acl.List(calendarID).Pages(ctx, func(page *gcal.Acl) error {
		out = append(out, page.Items...)
		return nil
	})
	return out, err
}

func (s *serviceAPI) InsertACL(ctx context.Context, calendarID string, rule *gcal.AclRule) error {
	_, err := s.svc.Acl.Insert(calendarID, rule).Context(ctx).Do()
	return err
}

func (s *serviceAPI) InsertEvent(ctx context.Context, calendarID string, ev *gcal.Event) (*gcal.Event, error) {
	return s.svc.Events.Insert(calendarID, ev).Context(ctx).Do()
}

func (s *serviceAPI) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	return s.svc.Events.Delete(calendarID, eventID).Context(ctx).Do()
}

func (s *serviceAPI) ListCalendars(ctx context.Context) ([]*gcal.CalendarListEntry, error) {
	var out []*gcal.CalendarListEntry
	err := s.svc.CalendarList.List().Pages(ctx, func(page *gcal.CalendarList) error {
		out = append(out, page.Items...)
		return nil
	})
	return out, err
}
