package session

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mcjmccartney/rmr-core/internal/domain"
	"github.com/mcjmccartney/rmr-core/internal/integration"
	"github.com/mcjmccartney/rmr-core/internal/store"
)

// Gateway is the remote persistence surface the orchestrator writes through.
type Gateway interface {
	CreateSession(ctx context.Context, session domain.Session) (domain.Session, error)
	UpdateSession(ctx context.Context, id string, update domain.SessionUpdate) (domain.Session, error)
	DeleteSession(ctx context.Context, id string) error
}

// Calendar is the subset of calendar operations the orchestrator drives.
// Event creation belongs to the notification receiver, which reports the
// resulting event id back through ApplyInternal.
type Calendar interface {
	Update(ctx context.Context, eventID string, event integration.CalendarEvent) error
	Delete(ctx context.Context, eventID string) error
}

type Notifier interface {
	Notify(ctx context.Context, kind integration.WebhookKind, payload integration.WebhookPayload) error
}

// Orchestrator keeps the local store, the remote store and the external
// calendar consistent across session mutations. Persistence failures
// propagate; calendar and notification failures are logged and swallowed,
// except calendar delete, which the caller must confirm past.
type Orchestrator struct {
	gateway  Gateway
	store    *store.Store
	calendar Calendar
	notifier Notifier
	logger   *zap.Logger
}

func NewOrchestrator(gateway Gateway, entityStore *store.Store, calendar Calendar, notifier Notifier, logger *zap.Logger) (*Orchestrator, error) {
	if gateway == nil || entityStore == nil {
		return nil, domain.ErrInvalidInput
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		gateway:  gateway,
		store:    entityStore,
		calendar: calendar,
		notifier: notifier,
		logger:   logger,
	}, nil
}

// Create persists a new session, reflects the canonical record into the
// store and fires the booking-terms and session-created notifications.
// No calendar event is created here.
func (o *Orchestrator) Create(ctx context.Context, session domain.Session) (domain.Session, error) {
	if err := validateNewSession(session); err != nil {
		return domain.Session{}, err
	}
	canonical, err := o.gateway.CreateSession(ctx, session)
	if err != nil {
		return domain.Session{}, fmt.Errorf("create session: %w", err)
	}
	o.store.Dispatch(store.AddSession(canonical))

	payload := o.buildPayload(canonical)
	o.notify(ctx, integration.WebhookBookingTerms, payload)

	created := payload
	created.ContentItems = sessionContentItems(canonical)
	o.notify(ctx, integration.WebhookSessionCreated, created)
	return canonical, nil
}

// Update persists a partial update and drives the dependent integrations.
// Calendar update fires only when a calendar-relevant field changed and the
// session already carries an event id; the booking-terms notification fires
// only when a notification-relevant field was touched.
func (o *Orchestrator) Update(ctx context.Context, id string, update domain.SessionUpdate) (domain.Session, error) {
	prior, canonical, err := o.persistUpdate(ctx, id, update)
	if err != nil {
		return domain.Session{}, err
	}

	if DateChanged(update, prior) || TimeChanged(update, prior) || SessionTypeChanged(update, prior) {
		if prior.EventID != "" {
			o.updateCalendar(ctx, prior.EventID, canonical)
		}
		// no event id yet: creation is the notification receiver's job,
		// doing it here would race a duplicate creation
	}

	if NotificationRelevant(update.ChangedFields()) {
		o.notify(ctx, integration.WebhookBookingTerms, o.buildPayload(canonical))
	}
	return canonical, nil
}

// ApplyInternal persists a system-originated field write, such as storing the
// event id learned from the calendar callback. It never evaluates change
// predicates and never fires notifications; routing such writes through
// Update would cause notification storms.
func (o *Orchestrator) ApplyInternal(ctx context.Context, id string, update domain.SessionUpdate) (domain.Session, error) {
	_, canonical, err := o.persistUpdate(ctx, id, update)
	return canonical, err
}

func (o *Orchestrator) persistUpdate(ctx context.Context, id string, update domain.SessionUpdate) (prior, canonical domain.Session, err error) {
	prior, ok := o.store.Session(id)
	if !ok {
		return domain.Session{}, domain.Session{}, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}
	canonical, err = o.gateway.UpdateSession(ctx, id, update)
	if err != nil {
		return domain.Session{}, domain.Session{}, fmt.Errorf("update session %s: %w", id, err)
	}
	o.store.Dispatch(store.UpdateSession(canonical))
	return prior, canonical, nil
}

// Delete removes the calendar event before the remote record; the event id
// is only retrievable while the record exists, so the reverse order would
// strand the external event. On calendar failure, confirm decides whether to
// proceed anyway.
func (o *Orchestrator) Delete(ctx context.Context, id string, confirm func(error) bool) error {
	prior, ok := o.store.Session(id)
	if !ok {
		return fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}
	if prior.EventID != "" && o.calendar != nil {
		if err := o.calendar.Delete(ctx, prior.EventID); err != nil {
			o.logger.Warn("calendar delete failed",
				zap.String("sessionId", id), zap.String("eventId", prior.EventID), zap.Error(err))
			if confirm == nil || !confirm(err) {
				return fmt.Errorf("delete session %s: calendar event %s not removed: %w", id, prior.EventID, err)
			}
		}
	}
	if err := o.gateway.DeleteSession(ctx, id); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	o.store.Dispatch(store.DeleteSession(id))
	return nil
}

func (o *Orchestrator) updateCalendar(ctx context.Context, eventID string, session domain.Session) {
	if o.calendar == nil {
		return
	}
	if err := o.calendar.Update(ctx, eventID, o.buildEvent(session)); err != nil {
		o.logger.Warn("calendar update failed",
			zap.String("sessionId", session.ID), zap.String("eventId", eventID), zap.Error(err))
	}
}

func (o *Orchestrator) notify(ctx context.Context, kind integration.WebhookKind, payload integration.WebhookPayload) {
	if o.notifier == nil {
		return
	}
	if err := o.notifier.Notify(ctx, kind, payload); err != nil {
		o.logger.Warn("notification failed",
			zap.String("kind", string(kind)), zap.String("sessionId", payload.SessionID), zap.Error(err))
	}
}

func (o *Orchestrator) buildPayload(session domain.Session) integration.WebhookPayload {
	payload := integration.WebhookPayload{
		SessionID:   session.ID,
		SessionType: string(session.SessionType),
		BookingDate: session.BookingDate,
		BookingTime: session.BookingTime,
		Quote:       session.Quote,
	}
	if client, ok := o.clientFor(session); ok {
		payload.ClientEmail = client.Email
	}
	return payload
}

func (o *Orchestrator) buildEvent(session domain.Session) integration.CalendarEvent {
	event := integration.CalendarEvent{
		SessionID:   session.ID,
		DogName:     session.DogName,
		SessionType: string(session.SessionType),
		BookingDate: session.BookingDate,
		BookingTime: session.BookingTime,
		Quote:       session.Quote,
	}
	if client, ok := o.clientFor(session); ok {
		event.ClientName = client.FullName()
		if event.DogName == "" {
			event.DogName = client.DogName
		}
	}
	return event
}

func (o *Orchestrator) clientFor(session domain.Session) (domain.Client, bool) {
	if session.ClientID == nil {
		return domain.Client{}, false
	}
	return o.store.Client(*session.ClientID)
}

func sessionContentItems(session domain.Session) []string {
	items := make([]string, 0, 3)
	items = append(items, fmt.Sprintf("%s session on %s at %s", session.SessionType, session.BookingDate, session.BookingTime))
	if strings.TrimSpace(session.DogName) != "" {
		items = append(items, "Dog: "+session.DogName)
	}
	if session.Quote > 0 {
		items = append(items, fmt.Sprintf("Quote: %.2f", session.Quote))
	}
	return items
}

func validateNewSession(session domain.Session) error {
	if !session.SessionType.Valid() {
		return &domain.ValidationError{Field: "sessionType", Reason: "unknown session type " + string(session.SessionType)}
	}
	if session.SessionType.RequiresClient() && (session.ClientID == nil || strings.TrimSpace(*session.ClientID) == "") {
		return &domain.ValidationError{Field: "clientId", Reason: string(session.SessionType) + " sessions must reference a client"}
	}
	if !domain.ValidBookingDate(session.BookingDate) {
		return &domain.ValidationError{Field: "bookingDate", Reason: "expected " + domain.BookingDateLayout}
	}
	if !domain.ValidBookingTime(session.BookingTime) {
		return &domain.ValidationError{Field: "bookingTime", Reason: "expected " + domain.BookingTimeLayout}
	}
	if session.Quote < 0 {
		return &domain.ValidationError{Field: "quote", Reason: "must not be negative"}
	}
	return nil
}
