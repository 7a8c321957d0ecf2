package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mcjmccartney/rmr-core/internal/domain"
	"github.com/mcjmccartney/rmr-core/internal/gateway"
	"github.com/mcjmccartney/rmr-core/internal/store"
	"github.com/mcjmccartney/rmr-core/internal/timers"
)

const (
	TableClients        = "clients"
	TableSessions       = "sessions"
	TableAliases        = "email_aliases"
	TablePayments       = "membership_payments"
	TableBriefs         = "behavioural_briefs"
	TableQuestionnaires = "behaviour_questionnaires"
)

const defaultDebounceWindow = 50 * time.Millisecond

// Refetcher is the gateway subset used for tables whose rows are re-fetched
// wholesale instead of translated one by one.
type Refetcher interface {
	GetAllBriefs(ctx context.Context) ([]domain.BehaviouralBrief, error)
	GetAllQuestionnaires(ctx context.Context) ([]domain.BehaviourQuestionnaire, error)
}

type SubscriberOptions struct {
	DebounceWindow   time.Duration
	Clock            timers.Clock
	Refetcher        Refetcher
	MembershipPolicy domain.MembershipPolicy
	Logger           *zap.Logger
}

// Subscriber keeps the entity store eventually consistent with the remote
// store. One logical subscription per table, tracked in a single registry so
// teardown releases everything together; inserts and updates are debounced
// per (table, event, id) key, trailing edge; deletes dispatch immediately.
type Subscriber struct {
	source    Source
	store     *store.Store
	scheduler *timers.KeyedScheduler
	window    time.Duration
	refetcher Refetcher
	policy    domain.MembershipPolicy
	logger    *zap.Logger

	mu       sync.Mutex
	registry map[string]Subscription
	closed   bool
}

func NewSubscriber(source Source, entityStore *store.Store, opts SubscriberOptions) (*Subscriber, error) {
	if source == nil || entityStore == nil {
		return nil, domain.ErrInvalidInput
	}
	window := opts.DebounceWindow
	if window <= 0 {
		window = defaultDebounceWindow
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Subscriber{
		source:    source,
		store:     entityStore,
		scheduler: timers.NewKeyedScheduler(opts.Clock),
		window:    window,
		refetcher: opts.Refetcher,
		policy:    opts.MembershipPolicy,
		logger:    logger,
		registry:  map[string]Subscription{},
	}, nil
}

// Start registers one subscription per entity table.
func (s *Subscriber) Start(ctx context.Context) error {
	tables := []string{TableClients, TableSessions, TableAliases, TablePayments, TableBriefs, TableQuestionnaires}
	for _, table := range tables {
		if err := s.subscribe(ctx, table); err != nil {
			_ = s.Close()
			return fmt.Errorf("subscribe %s: %w", table, err)
		}
	}
	return nil
}

func (s *Subscriber) subscribe(ctx context.Context, table string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrFeedClosed
	}
	if _, exists := s.registry[table]; exists {
		s.mu.Unlock()
		return domain.ErrAlreadyExists
	}
	s.mu.Unlock()

	subscription, err := s.source.Subscribe(ctx, table, func(change Change) {
		s.handle(change)
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		_ = subscription.Unsubscribe()
		return domain.ErrFeedClosed
	}
	if _, exists := s.registry[table]; exists {
		_ = subscription.Unsubscribe()
		return domain.ErrAlreadyExists
	}
	s.registry[table] = subscription
	return nil
}

// Subscribed reports whether a live subscription exists for table.
func (s *Subscriber) Subscribed(table string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.registry[table]
	return ok
}

func (s *Subscriber) handle(change Change) {
	if change.EventType == EventDelete {
		s.handleDelete(change)
		return
	}
	if s.refetchTable(change.Table) {
		s.scheduler.Schedule(change.Table+"/refetch", s.window, func() {
			s.refetch(change.Table)
		})
		return
	}
	action, ok := s.translate(change)
	if !ok {
		s.logger.Warn("dropping untranslatable feed row",
			zap.String("table", change.Table), zap.String("event", string(change.EventType)))
		return
	}
	table := change.Table
	s.scheduler.Schedule(action.Key(), s.window, func() {
		s.store.Dispatch(action)
		if table == TablePayments {
			s.recomputeMembership(action)
		}
	})
}

func (s *Subscriber) handleDelete(change Change) {
	id := gateway.RowID(change.Row)
	if id == "" {
		return
	}
	// a pending debounced upsert for this row must not resurrect it
	s.scheduler.Cancel(string(entityForTable(change.Table)) + "/" + string(store.ActionUpdate) + "/" + id)
	s.scheduler.Cancel(string(entityForTable(change.Table)) + "/" + string(store.ActionAdd) + "/" + id)
	switch change.Table {
	case TableClients:
		s.store.Dispatch(store.DeleteClient(id))
	case TableSessions:
		s.store.Dispatch(store.DeleteSession(id))
	case TableAliases:
		s.store.Dispatch(store.DeleteAlias(id))
	case TablePayments:
		s.store.Dispatch(store.DeletePayment(id))
	case TableBriefs:
		s.store.Dispatch(store.DeleteBrief(id))
	case TableQuestionnaires:
		s.store.Dispatch(store.DeleteQuestionnaire(id))
	}
}

func (s *Subscriber) translate(change Change) (store.Action, bool) {
	update := change.EventType == EventUpdate
	switch change.Table {
	case TableClients:
		client, err := gateway.TranslateClientRow(change.Row)
		if err != nil {
			return store.Action{}, false
		}
		if update {
			return store.UpdateClient(client), true
		}
		return store.AddClient(client), true
	case TableSessions:
		session, err := gateway.TranslateSessionRow(change.Row)
		if err != nil {
			return store.Action{}, false
		}
		if update {
			return store.UpdateSession(session), true
		}
		return store.AddSession(session), true
	case TableAliases:
		alias, err := gateway.TranslateAliasRow(change.Row)
		if err != nil {
			return store.Action{}, false
		}
		if update {
			return store.UpdateAlias(alias), true
		}
		return store.AddAlias(alias), true
	case TablePayments:
		payment, err := gateway.TranslatePaymentRow(change.Row)
		if err != nil {
			return store.Action{}, false
		}
		if update {
			return store.UpdatePayment(payment), true
		}
		return store.AddPayment(payment), true
	}
	return store.Action{}, false
}

func (s *Subscriber) refetchTable(table string) bool {
	if s.refetcher == nil {
		return false
	}
	return table == TableBriefs || table == TableQuestionnaires
}

func (s *Subscriber) refetch(table string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	switch table {
	case TableBriefs:
		briefs, err := s.refetcher.GetAllBriefs(ctx)
		if err != nil {
			s.logger.Warn("brief refetch failed", zap.Error(err))
			return
		}
		snapshot := s.store.Snapshot()
		for i, brief := range briefs {
			if brief.ClientID != nil {
				continue
			}
			if clientID, ok := snapshot.ResolveFormClient(brief.Email, brief.DogName); ok {
				briefs[i].ClientID = &clientID
			}
		}
		s.store.Dispatch(store.SetBriefs(briefs))
	case TableQuestionnaires:
		questionnaires, err := s.refetcher.GetAllQuestionnaires(ctx)
		if err != nil {
			s.logger.Warn("questionnaire refetch failed", zap.Error(err))
			return
		}
		snapshot := s.store.Snapshot()
		for i, questionnaire := range questionnaires {
			if questionnaire.ClientID != nil {
				continue
			}
			if clientID, ok := snapshot.ResolveFormClient(questionnaire.Email, questionnaire.DogName); ok {
				questionnaires[i].ClientID = &clientID
			}
		}
		s.store.Dispatch(store.SetQuestionnaires(questionnaires))
	}
}

// recomputeMembership re-evaluates the owning client's membership flag after
// a payment change, resolving the payment email through the alias table.
func (s *Subscriber) recomputeMembership(action store.Action) {
	if s.policy == nil {
		return
	}
	payment, ok := action.Payload.(domain.MembershipPayment)
	if !ok {
		return
	}
	snapshot := s.store.Snapshot()
	clientID, found := snapshot.ResolveEmail(payment.Email)
	if !found {
		return
	}
	client, exists := snapshot.Clients[clientID]
	if !exists {
		return
	}
	status := s.policy(client, snapshot.PaymentsForClient(clientID))
	if client.Membership == status.Active {
		return
	}
	client.Membership = status.Active
	s.store.Dispatch(store.UpdateClient(client))
	s.logger.Info("membership recomputed",
		zap.String("clientId", clientID), zap.Bool("membership", status.Active))
}

func entityForTable(table string) store.EntityKind {
	switch table {
	case TableClients:
		return store.EntityClient
	case TableSessions:
		return store.EntitySession
	case TableAliases:
		return store.EntityAlias
	case TablePayments:
		return store.EntityPayment
	case TableBriefs:
		return store.EntityBrief
	case TableQuestionnaires:
		return store.EntityQuestionnaire
	}
	return store.EntityKind(table)
}

// Close releases every subscription together and stops pending debounced
// dispatches. Safe to call twice.
func (s *Subscriber) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	subscriptions := make([]Subscription, 0, len(s.registry))
	for _, subscription := range s.registry {
		subscriptions = append(subscriptions, subscription)
	}
	s.registry = map[string]Subscription{}
	s.mu.Unlock()

	s.scheduler.Close()
	var firstErr error
	for _, subscription := range subscriptions {
		if err := subscription.Unsubscribe(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
