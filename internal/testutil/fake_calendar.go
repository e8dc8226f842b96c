// Package testutil provides shared test utilities for wastecal.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dwsmith1983/wastecal/internal/calendar"
	"github.com/dwsmith1983/wastecal/pkg/types"
)

var _ calendar.Client = (*FakeCalendar)(nil)

type fakeCal struct {
	cal    calendar.Calendar
	public bool
	events map[string]calendar.Event
}

// FakeCalendar is an in-memory calendar.Client that records every call.
type FakeCalendar struct {
	mu        sync.Mutex
	calendars map[string]*fakeCal
	seq       int
	calls     map[string]int
	inserted  []string // dates of successful inserts, in call order
	deleted   []string // event ids passed to DeleteEvent, in call order

	// Optional failure hooks.
	CreateErr      error
	PublicErr      error
	DeleteErr      error
	DeleteEventErr error
	InsertErr      func(calendarID string, ev calendar.Event) error
}

// NewFakeCalendar creates an empty fake provider.
func NewFakeCalendar() *FakeCalendar {
	return &FakeCalendar{
		calendars: make(map[string]*fakeCal),
		calls:     make(map[string]int),
	}
}

func (f *FakeCalendar) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s-%d", prefix, f.seq)
}

// Create implements calendar.Client.
func (f *FakeCalendar) Create(_ context.Context, cal calendar.Calendar) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["Create"]++
	if f.CreateErr != nil {
		return "", f.CreateErr
	}
	cal.ID = f.nextID("cal")
	f.calendars[cal.ID] = &fakeCal{cal: cal, events: make(map[string]calendar.Event)}
	return cal.ID, nil
}

// Get implements calendar.Client.
func (f *FakeCalendar) Get(_ context.Context, calendarID string) (*calendar.Calendar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["Get"]++
	c, ok := f.calendars[calendarID]
	if !ok {
		return nil, fmt.Errorf("calendar %s: %w", calendarID, calendar.ErrNotFound)
	}
	out := c.cal
	return &out, nil
}

// EnsurePublic implements calendar.Client.
func (f *FakeCalendar) EnsurePublic(_ context.Context, calendarID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["EnsurePublic"]++
	if f.PublicErr != nil {
		return f.PublicErr
	}
	c, ok := f.calendars[calendarID]
	if !ok {
		return fmt.Errorf("calendar %s: %w", calendarID, calendar.ErrNotFound)
	}
	c.public = true
	return nil
}

// InsertEvent implements calendar.Client.
func (f *FakeCalendar) InsertEvent(_ context.Context, calendarID string, ev calendar.Event) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["InsertEvent"]++
	if f.InsertErr != nil {
		if err := f.InsertErr(calendarID, ev); err != nil {
			return "", err
		}
	}
	c, ok := f.calendars[calendarID]
	if !ok {
		return "", fmt.Errorf("calendar %s: %w", calendarID, calendar.ErrNotFound)
	}
	id := f.nextID("evt")
	c.events[id] = ev
	f.inserted = append(f.inserted, ev.Start.Format(types.DateLayout))
	return id, nil
}

// DeleteEvent implements calendar.Client.
func (f *FakeCalendar) DeleteEvent(_ context.Context, calendarID, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["DeleteEvent"]++
	f.deleted = append(f.deleted, eventID)
	if f.DeleteEventErr != nil {
		return f.DeleteEventErr
	}
	c, ok := f.calendars[calendarID]
	if !ok {
		return fmt.Errorf("calendar %s: %w", calendarID, calendar.ErrNotFound)
	}
	if _, ok := c.events[eventID]; !ok {
		return fmt.Errorf("event %s: %w", eventID, calendar.ErrNotFound)
	}
	delete(c.events, eventID)
	return nil
}

// Delete implements calendar.Client.
func (f *FakeCalendar) Delete(_ context.Context, calendarID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["Delete"]++
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	if _, ok := f.calendars[calendarID]; !ok {
		return fmt.Errorf("calendar %s: %w", calendarID, calendar.ErrNotFound)
	}
	delete(f.calendars, calendarID)
	return nil
}

// List implements calendar.Client.
func (f *FakeCalendar) List(_ context.Context) ([]calendar.Calendar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["List"]++
	out := make([]calendar.Calendar, 0, len(f.calendars))
	for _, c := range f.calendars {
		out = append(out, c.cal)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SubscriptionLink implements calendar.Client.
func (f *FakeCalendar) SubscriptionLink(calendarID string) string {
	return "https://calendar.example/subscribe?cid=" + calendarID
}

// Seed adds a calendar directly, bypassing call accounting.
func (f *FakeCalendar) Seed(cal calendar.Calendar) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calendars[cal.ID] = &fakeCal{cal: cal, events: make(map[string]calendar.Event)}
}

// Remove drops a calendar as if it had been deleted out of band.
func (f *FakeCalendar) Remove(calendarID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.calendars, calendarID)
}

// Has reports whether the calendar exists.
func (f *FakeCalendar) Has(calendarID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.calendars[calendarID]
	return ok
}

// IsPublic reports whether public read access was granted.
func (f *FakeCalendar) IsPublic(calendarID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.calendars[calendarID]
	return ok && c.public
}

// Events returns the events on a calendar ordered by start time.
func (f *FakeCalendar) Events(calendarID string) []calendar.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.calendars[calendarID]
	if !ok {
		return nil
	}
	out := make([]calendar.Event, 0, len(c.events))
	for _, ev := range c.events {
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// Calls returns how many times op was invoked.
func (f *FakeCalendar) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// InsertedDates returns the dates of successful event inserts, sorted.
func (f *FakeCalendar) InsertedDates() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]string(nil), f.inserted...)
	sort.Strings(out)
	return out
}

// DeletedEventIDs returns the event ids passed to DeleteEvent, sorted.
func (f *FakeCalendar) DeletedEventIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]string(nil), f.deleted...)
	sort.Strings(out)
	return out
}

// ResetCalls clears call accounting.
func (f *FakeCalendar) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = make(map[string]int)
	f.inserted = nil
	f.deleted = nil
}
