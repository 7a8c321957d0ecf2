package session

import (
	"context"
	"errors"
	"testing"

	"github.com/mcjmccartney/rmr-core/internal/domain"
	"github.com/mcjmccartney/rmr-core/internal/integration"
	"github.com/mcjmccartney/rmr-core/internal/store"
)

type fakeGateway struct {
	sessions    map[string]domain.Session
	createErr   error
	updateErr   error
	deleteErr   error
	deleteOrder *[]string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{sessions: map[string]domain.Session{}}
}

func (g *fakeGateway) CreateSession(_ context.Context, session domain.Session) (domain.Session, error) {
	if g.createErr != nil {
		return domain.Session{}, g.createErr
	}
	if session.ID == "" {
		session.ID = "generated-id"
	}
	g.sessions[session.ID] = session
	return session, nil
}

func (g *fakeGateway) UpdateSession(_ context.Context, id string, update domain.SessionUpdate) (domain.Session, error) {
	if g.updateErr != nil {
		return domain.Session{}, g.updateErr
	}
	prior, ok := g.sessions[id]
	if !ok {
		return domain.Session{}, domain.ErrNotFound
	}
	next := update.ApplyTo(prior)
	g.sessions[id] = next
	return next, nil
}

func (g *fakeGateway) DeleteSession(_ context.Context, id string) error {
	if g.deleteErr != nil {
		return g.deleteErr
	}
	if g.deleteOrder != nil {
		*g.deleteOrder = append(*g.deleteOrder, "gateway delete "+id)
	}
	delete(g.sessions, id)
	return nil
}

type fakeCalendar struct {
	updates   []string
	deletes   []string
	deleteErr error
	order     *[]string
}

func (c *fakeCalendar) Update(_ context.Context, eventID string, _ integration.CalendarEvent) error {
	c.updates = append(c.updates, eventID)
	return nil
}

func (c *fakeCalendar) Delete(_ context.Context, eventID string) error {
	if c.order != nil {
		*c.order = append(*c.order, "calendar delete "+eventID)
	}
	if c.deleteErr != nil {
		return c.deleteErr
	}
	c.deletes = append(c.deletes, eventID)
	return nil
}

type fakeNotifier struct {
	kinds []integration.WebhookKind
	err   error
}

func (n *fakeNotifier) Notify(_ context.Context, kind integration.WebhookKind, _ integration.WebhookPayload) error {
	n.kinds = append(n.kinds, kind)
	return n.err
}

type fixture struct {
	orchestrator *Orchestrator
	gateway      *fakeGateway
	calendar     *fakeCalendar
	notifier     *fakeNotifier
	store        *store.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		gateway:  newFakeGateway(),
		calendar: &fakeCalendar{},
		notifier: &fakeNotifier{},
		store:    store.New(),
	}
	orchestrator, err := NewOrchestrator(f.gateway, f.store, f.calendar, f.notifier, nil)
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	f.orchestrator = orchestrator
	return f
}

func (f *fixture) seedSession(session domain.Session) {
	f.gateway.sessions[session.ID] = session
	f.store.Dispatch(store.AddSession(session))
}

func stringPtr(v string) *string { return &v }

func typePtr(v domain.SessionType) *domain.SessionType { return &v }

func TestCreateReflectsStoreAndSkipsCalendar(t *testing.T) {
	f := newFixture(t)
	clientID := "c1"
	f.store.Dispatch(store.AddClient(domain.Client{ID: clientID, Email: "owner@example.com"}))

	created, err := f.orchestrator.Create(context.Background(), domain.Session{
		ClientID:    &clientID,
		SessionType: domain.SessionInPerson,
		BookingDate: "2025-06-01",
		BookingTime: "14:30",
		Quote:       75,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID != "generated-id" {
		t.Fatalf("expected gateway-assigned id, got %q", created.ID)
	}
	if _, ok := f.store.Session(created.ID); !ok {
		t.Fatal("created session not reflected into store")
	}
	if len(f.calendar.updates)+len(f.calendar.deletes) != 0 {
		t.Fatal("create must never call the calendar directly")
	}
	if len(f.notifier.kinds) != 2 ||
		f.notifier.kinds[0] != integration.WebhookBookingTerms ||
		f.notifier.kinds[1] != integration.WebhookSessionCreated {
		t.Fatalf("expected booking-terms then session-created, got %v", f.notifier.kinds)
	}
}

func TestCreateRejectsInvalidSession(t *testing.T) {
	f := newFixture(t)
	cases := []domain.Session{
		{SessionType: "Seminar", BookingDate: "2025-06-01", BookingTime: "14:30"},
		{SessionType: domain.SessionInPerson, BookingDate: "2025-06-01", BookingTime: "14:30"}, // no client
		{SessionType: domain.SessionGroup, BookingDate: "June 1st", BookingTime: "14:30"},
		{SessionType: domain.SessionGroup, BookingDate: "2025-06-01", BookingTime: "2:30pm"},
	}
	for i, session := range cases {
		if _, err := f.orchestrator.Create(context.Background(), session); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
	if len(f.notifier.kinds) != 0 {
		t.Fatal("invalid create must not notify")
	}
}

func TestCreateAllowsUnownedGroupSession(t *testing.T) {
	f := newFixture(t)
	_, err := f.orchestrator.Create(context.Background(), domain.Session{
		SessionType: domain.SessionGroup,
		BookingDate: "2025-06-01",
		BookingTime: "10:00",
	})
	if err != nil {
		t.Fatalf("group session without client must be allowed: %v", err)
	}
}

func TestUpdateDateWithEventIDCallsCalendarOnce(t *testing.T) {
	f := newFixture(t)
	f.seedSession(domain.Session{ID: "s1", SessionType: domain.SessionOnline, BookingDate: "2025-06-01", BookingTime: "14:30", EventID: "E1"})

	_, err := f.orchestrator.Update(context.Background(), "s1", domain.SessionUpdate{BookingDate: stringPtr("2025-06-02")})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(f.calendar.updates) != 1 || f.calendar.updates[0] != "E1" {
		t.Fatalf("expected exactly one calendar update for E1, got %v", f.calendar.updates)
	}
}

func TestUpdateNotesTriggersNoIntegrations(t *testing.T) {
	f := newFixture(t)
	f.seedSession(domain.Session{ID: "s1", SessionType: domain.SessionOnline, BookingDate: "2025-06-01", BookingTime: "14:30", EventID: "E1"})

	updated, err := f.orchestrator.Update(context.Background(), "s1", domain.SessionUpdate{Notes: stringPtr("bring treats")})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Notes != "bring treats" {
		t.Fatalf("update not applied: %q", updated.Notes)
	}
	if len(f.calendar.updates) != 0 {
		t.Fatal("notes-only update must not touch the calendar")
	}
	if len(f.notifier.kinds) != 0 {
		t.Fatal("notes-only update must not notify")
	}
}

func TestUpdateTypeWithoutEventIDSkipsCalendar(t *testing.T) {
	f := newFixture(t)
	f.seedSession(domain.Session{ID: "s1", SessionType: domain.SessionOnline, BookingDate: "2025-06-01", BookingTime: "14:30"})

	_, err := f.orchestrator.Update(context.Background(), "s1", domain.SessionUpdate{SessionType: typePtr(domain.SessionInPerson)})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(f.calendar.updates) != 0 {
		t.Fatal("no event id yet: calendar update must not fire")
	}
	if len(f.notifier.kinds) != 1 || f.notifier.kinds[0] != integration.WebhookBookingTerms {
		t.Fatalf("session type change should still notify, got %v", f.notifier.kinds)
	}
}

func TestUpdateMissingSessionFailsFast(t *testing.T) {
	f := newFixture(t)
	_, err := f.orchestrator.Update(context.Background(), "ghost", domain.SessionUpdate{Notes: stringPtr("x")})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestApplyInternalSkipsPredicatesAndNotifications(t *testing.T) {
	f := newFixture(t)
	f.seedSession(domain.Session{ID: "s1", SessionType: domain.SessionOnline, BookingDate: "2025-06-01", BookingTime: "14:30"})

	updated, err := f.orchestrator.ApplyInternal(context.Background(), "s1", domain.SessionUpdate{EventID: stringPtr("E9")})
	if err != nil {
		t.Fatalf("ApplyInternal: %v", err)
	}
	if updated.EventID != "E9" {
		t.Fatalf("event id not stored: %q", updated.EventID)
	}
	stored, _ := f.store.Session("s1")
	if stored.EventID != "E9" {
		t.Fatal("event id not reflected into store")
	}
	if len(f.calendar.updates) != 0 || len(f.notifier.kinds) != 0 {
		t.Fatal("internal update must skip calendar and notifications")
	}
}

func TestDeleteRemovesCalendarEventFirst(t *testing.T) {
	f := newFixture(t)
	var order []string
	f.calendar.order = &order
	f.gateway.deleteOrder = &order
	f.seedSession(domain.Session{ID: "s1", SessionType: domain.SessionOnline, BookingDate: "2025-06-01", BookingTime: "14:30", EventID: "E1"})

	if err := f.orchestrator.Delete(context.Background(), "s1", nil); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	want := []string{"calendar delete E1", "gateway delete s1"}
	if len(order) != 2 || order[0] != want[0] || order[1] != want[1] {
		t.Fatalf("expected %v, got %v", want, order)
	}
	if _, ok := f.store.Session("s1"); ok {
		t.Fatal("session not removed from store")
	}
}

func TestDeleteAbortsWhenCalendarFailsAndCallerDeclines(t *testing.T) {
	f := newFixture(t)
	f.calendar.deleteErr = errors.New("calendar down")
	f.seedSession(domain.Session{ID: "s1", SessionType: domain.SessionOnline, BookingDate: "2025-06-01", BookingTime: "14:30", EventID: "E1"})

	decline := func(error) bool { return false }
	if err := f.orchestrator.Delete(context.Background(), "s1", decline); err == nil {
		t.Fatal("expected delete to abort")
	}
	if _, ok := f.gateway.sessions["s1"]; !ok {
		t.Fatal("remote record must survive a declined delete")
	}
	if _, ok := f.store.Session("s1"); !ok {
		t.Fatal("store record must survive a declined delete")
	}
}

func TestDeleteProceedsWhenCallerConfirmsPastCalendarFailure(t *testing.T) {
	f := newFixture(t)
	f.calendar.deleteErr = errors.New("calendar down")
	f.seedSession(domain.Session{ID: "s1", SessionType: domain.SessionOnline, BookingDate: "2025-06-01", BookingTime: "14:30", EventID: "E1"})

	confirm := func(error) bool { return true }
	if err := f.orchestrator.Delete(context.Background(), "s1", confirm); err != nil {
		t.Fatalf("Delete with confirmation: %v", err)
	}
	if _, ok := f.gateway.sessions["s1"]; ok {
		t.Fatal("remote record should be gone after confirmed delete")
	}
}

func TestPredicatesCompareAgainstPrior(t *testing.T) {
	prior := domain.Session{BookingDate: "2025-06-01", BookingTime: "14:30", SessionType: domain.SessionOnline}

	if DateChanged(domain.SessionUpdate{BookingDate: stringPtr("2025-06-01")}, prior) {
		t.Fatal("same date must not count as changed")
	}
	if !DateChanged(domain.SessionUpdate{BookingDate: stringPtr("2025-06-02")}, prior) {
		t.Fatal("new date must count as changed")
	}
	if TimeChanged(domain.SessionUpdate{}, prior) {
		t.Fatal("untouched time must not count as changed")
	}
	if !SessionTypeChanged(domain.SessionUpdate{SessionType: typePtr(domain.SessionInPerson)}, prior) {
		t.Fatal("new type must count as changed")
	}
	if NotificationRelevant([]string{"notes", "quote"}) {
		t.Fatal("notes and quote are outside the notification allow-list")
	}
	if !NotificationRelevant([]string{"notes", "bookingTime"}) {
		t.Fatal("bookingTime is in the notification allow-list")
	}
}

func TestNotificationIsTouchBasedWhileCalendarDiffsValues(t *testing.T) {
	prior := domain.Session{BookingDate: "2025-06-01", BookingTime: "14:30", SessionType: domain.SessionOnline}
	update := domain.SessionUpdate{BookingDate: stringPtr("2025-06-01")}

	if DateChanged(update, prior) {
		t.Fatal("re-submitted date must not trigger a calendar write")
	}
	if !NotificationRelevant(update.ChangedFields()) {
		t.Fatal("re-submitted date still counts as a notification request")
	}
}
