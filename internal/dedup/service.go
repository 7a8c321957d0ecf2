package dedup

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/mcjmccartney/rmr-core/internal/domain"
	"github.com/mcjmccartney/rmr-core/internal/store"
)

// Gateway is the remote persistence surface the merge steps write through.
type Gateway interface {
	UpdateClient(ctx context.Context, client domain.Client) (domain.Client, error)
	DeleteClient(ctx context.Context, id string) error
	ReassignSessions(ctx context.Context, fromClientID, toClientID string) (int, error)
	ReassignBriefs(ctx context.Context, fromClientID, toClientID string) (int, error)
	ReassignQuestionnaires(ctx context.Context, fromClientID, toClientID string) (int, error)
	ReassignPayments(ctx context.Context, fromEmail, toEmail string) (int, error)
	ReassignAliases(ctx context.Context, fromClientID, toClientID string) (int, error)
	FindAliasByEmail(ctx context.Context, email string) (domain.EmailAlias, error)
	CreateAlias(ctx context.Context, alias domain.EmailAlias) (domain.EmailAlias, error)
	UpdateAlias(ctx context.Context, alias domain.EmailAlias) (domain.EmailAlias, error)
	GetDismissedPairs(ctx context.Context) ([]string, error)
	AddDismissedPair(ctx context.Context, pairKey string) error
}

const defaultThreshold = 0.6

type ServiceOptions struct {
	Scorer    Scorer
	Threshold float64
	Logger    *zap.Logger
}

// Service runs duplicate detection over the client collection and executes
// pair merges. Each pair moves detected -> dismissed or detected -> merged,
// both terminal. Dismissals persist remotely with an in-memory fallback cache
// for when persistence is unavailable.
type Service struct {
	gateway   Gateway
	store     *store.Store
	scorer    Scorer
	threshold float64
	logger    *zap.Logger

	mu        sync.Mutex
	dismissed map[string]struct{}
}

func NewService(gateway Gateway, entityStore *store.Store, opts ServiceOptions) (*Service, error) {
	if gateway == nil || entityStore == nil {
		return nil, domain.ErrInvalidInput
	}
	scorer := opts.Scorer
	if scorer == nil {
		scorer = DefaultScorer{}
	}
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		gateway:   gateway,
		store:     entityStore,
		scorer:    scorer,
		threshold: threshold,
		logger:    logger,
		dismissed: map[string]struct{}{},
	}, nil
}

// Detect scans the client collection pairwise and returns candidate pairs at
// or above the similarity threshold, previously dismissed pairs filtered out,
// strongest first.
func (s *Service) Detect(ctx context.Context) ([]domain.PotentialDuplicate, error) {
	dismissed := s.dismissedSet(ctx)
	clients := s.store.Clients()
	sort.Slice(clients, func(i, j int) bool { return clients[i].ID < clients[j].ID })

	candidates := make([]domain.PotentialDuplicate, 0)
	for i := 0; i < len(clients); i++ {
		for j := i + 1; j < len(clients); j++ {
			score, basis := s.scorer.Score(clients[i], clients[j])
			if score < s.threshold {
				continue
			}
			pair := domain.PotentialDuplicate{
				PrimaryID:   clients[i].ID,
				DuplicateID: clients[j].ID,
				Score:       score,
				Basis:       basis,
			}
			if _, skip := dismissed[pair.PairKey()]; skip {
				continue
			}
			candidates = append(candidates, pair)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })
	return candidates, nil
}

// Preview computes the per-field merge for a chosen pair without writing
// anything. Conflicts are surfaced as data for the caller to resolve.
func (s *Service) Preview(_ context.Context, primaryID, duplicateID string) (MergePreview, error) {
	primary, duplicate, err := s.pair(primaryID, duplicateID)
	if err != nil {
		return MergePreview{}, err
	}
	return computePreview(primary, duplicate), nil
}

// Merge executes the ordered merge steps. There is no rollback; a failure
// leaves the primary in a valid superset state and the returned result says
// how far execution got. Re-running a partially applied merge converges.
func (s *Service) Merge(ctx context.Context, primaryID, duplicateID string, resolutions map[string]string) (MergeResult, error) {
	primary, duplicate, err := s.pair(primaryID, duplicateID)
	if err != nil {
		return MergeResult{Err: err.Error()}, err
	}
	preview := computePreview(primary, duplicate)
	merged := applyResolutions(preview.Merged, resolutions)
	result := MergeResult{}

	fail := func(step string, err error) (MergeResult, error) {
		wrapped := fmt.Errorf("merge %s into %s: %s: %w", duplicateID, primaryID, step, err)
		result.Err = wrapped.Error()
		s.logger.Error("merge failed mid-sequence",
			zap.String("primaryId", primaryID), zap.String("duplicateId", duplicateID),
			zap.String("step", step), zap.Error(err))
		return result, wrapped
	}

	canonical, err := s.gateway.UpdateClient(ctx, merged)
	if err != nil {
		return fail("apply resolved fields", err)
	}
	s.store.Dispatch(store.UpdateClient(canonical))

	sessions, err := s.gateway.ReassignSessions(ctx, duplicateID, primaryID)
	if err != nil {
		return fail("reassign sessions", err)
	}
	result.TransferredSessions = sessions
	s.reassignStoreSessions(duplicateID, primaryID)

	briefs, err := s.gateway.ReassignBriefs(ctx, duplicateID, primaryID)
	if err != nil {
		return fail("reassign briefs", err)
	}
	questionnaires, err := s.gateway.ReassignQuestionnaires(ctx, duplicateID, primaryID)
	if err != nil {
		return fail("reassign questionnaires", err)
	}
	result.TransferredForms = briefs + questionnaires
	s.relinkStoreForms(duplicateID, primaryID)

	for _, email := range s.duplicateEmails(duplicate) {
		if fold(email) == fold(canonical.Email) {
			continue
		}
		payments, err := s.gateway.ReassignPayments(ctx, email, canonical.Email)
		if err != nil {
			return fail("reassign payments", err)
		}
		result.TransferredPayments += payments

		aliased, err := s.ensureAlias(ctx, primaryID, email)
		if err != nil {
			return fail("register alias", err)
		}
		if aliased {
			result.AliasedEmails++
		}
	}

	// alias rows still bound to the duplicate (from earlier merges into it)
	// must follow to the primary before the duplicate disappears
	if _, err := s.gateway.ReassignAliases(ctx, duplicateID, primaryID); err != nil {
		return fail("reassign aliases", err)
	}
	s.relinkStoreAliases(duplicateID, primaryID)

	if err := s.gateway.DeleteClient(ctx, duplicateID); err != nil && !isNotFound(err) {
		return fail("delete duplicate", err)
	}
	s.store.Dispatch(store.DeleteClient(duplicateID))

	result.Success = true
	s.logger.Info("merged duplicate client",
		zap.String("primaryId", primaryID), zap.String("duplicateId", duplicateID),
		zap.Int("sessions", result.TransferredSessions), zap.Int("forms", result.TransferredForms),
		zap.Int("payments", result.TransferredPayments), zap.Int("aliases", result.AliasedEmails))
	return result, nil
}

// Dismiss marks a pair as not-a-duplicate. Persistence failure degrades to
// the in-memory cache so the pair stays hidden for this process lifetime.
func (s *Service) Dismiss(ctx context.Context, primaryID, duplicateID string) error {
	if strings.TrimSpace(primaryID) == "" || strings.TrimSpace(duplicateID) == "" {
		return domain.ErrInvalidInput
	}
	key := domain.PotentialDuplicate{PrimaryID: primaryID, DuplicateID: duplicateID}.PairKey()
	s.mu.Lock()
	s.dismissed[key] = struct{}{}
	s.mu.Unlock()
	if err := s.gateway.AddDismissedPair(ctx, key); err != nil {
		s.logger.Warn("dismissal not persisted, cached locally",
			zap.String("pair", key), zap.Error(err))
	}
	return nil
}

func (s *Service) dismissedSet(ctx context.Context) map[string]struct{} {
	set := map[string]struct{}{}
	pairs, err := s.gateway.GetDismissedPairs(ctx)
	if err != nil {
		s.logger.Warn("dismissed-pair list unavailable, using local cache", zap.Error(err))
	} else {
		for _, pair := range pairs {
			set[pair] = struct{}{}
		}
	}
	s.mu.Lock()
	for pair := range s.dismissed {
		set[pair] = struct{}{}
	}
	s.mu.Unlock()
	return set
}

func (s *Service) pair(primaryID, duplicateID string) (domain.Client, domain.Client, error) {
	if primaryID == duplicateID {
		return domain.Client{}, domain.Client{}, domain.ErrInvalidInput
	}
	primary, ok := s.store.Client(primaryID)
	if !ok {
		return domain.Client{}, domain.Client{}, fmt.Errorf("client %s: %w", primaryID, domain.ErrNotFound)
	}
	duplicate, ok := s.store.Client(duplicateID)
	if !ok {
		return domain.Client{}, domain.Client{}, fmt.Errorf("client %s: %w", duplicateID, domain.ErrNotFound)
	}
	return primary, duplicate, nil
}

// duplicateEmails lists the duplicate's primary email plus any aliases known
// to the store, deduplicated case-insensitively.
func (s *Service) duplicateEmails(duplicate domain.Client) []string {
	seen := map[string]struct{}{}
	emails := make([]string, 0, 2)
	add := func(email string) {
		if fold(email) == "" {
			return
		}
		if _, ok := seen[fold(email)]; ok {
			return
		}
		seen[fold(email)] = struct{}{}
		emails = append(emails, email)
	}
	add(duplicate.Email)
	for _, alias := range s.store.Snapshot().AliasesForClient(duplicate.ID) {
		add(alias.Email)
	}
	return emails
}

// ensureAlias makes email resolve to clientID. An existing binding is
// reassigned in place; a parallel row for the same email would leave the old
// binding pointing at a client that no longer exists.
func (s *Service) ensureAlias(ctx context.Context, clientID, email string) (bool, error) {
	existing, err := s.gateway.FindAliasByEmail(ctx, email)
	if err == nil {
		if existing.ClientID == clientID {
			return false, nil
		}
		existing.ClientID = clientID
		updated, err := s.gateway.UpdateAlias(ctx, existing)
		if err != nil {
			return false, err
		}
		s.store.Dispatch(store.UpdateAlias(updated))
		return true, nil
	}
	if !isNotFound(err) {
		return false, err
	}
	alias, err := s.gateway.CreateAlias(ctx, domain.EmailAlias{ClientID: clientID, Email: email})
	if err != nil {
		return false, err
	}
	s.store.Dispatch(store.AddAlias(alias))
	return true, nil
}

func (s *Service) relinkStoreAliases(fromClientID, toClientID string) {
	for _, alias := range s.store.Snapshot().AliasesForClient(fromClientID) {
		alias.ClientID = toClientID
		s.store.Dispatch(store.UpdateAlias(alias))
	}
}

// relinkStoreForms redirects in-store intake forms held by the duplicate to
// the primary, including forms never linked by id whose email or (email, dog)
// pairing resolves to the duplicate.
func (s *Service) relinkStoreForms(duplicateID, primaryID string) {
	snapshot := s.store.Snapshot()
	ownedByDuplicate := func(clientID *string, email, dogName string) bool {
		if clientID != nil {
			return *clientID == duplicateID
		}
		resolved, ok := snapshot.ResolveFormClient(email, dogName)
		return ok && resolved == duplicateID
	}
	for _, brief := range snapshot.Briefs {
		if ownedByDuplicate(brief.ClientID, brief.Email, brief.DogName) {
			brief.ClientID = &primaryID
			s.store.Dispatch(store.UpdateBrief(brief))
		}
	}
	for _, questionnaire := range snapshot.Questionnaires {
		if ownedByDuplicate(questionnaire.ClientID, questionnaire.Email, questionnaire.DogName) {
			questionnaire.ClientID = &primaryID
			s.store.Dispatch(store.UpdateQuestionnaire(questionnaire))
		}
	}
}

func (s *Service) reassignStoreSessions(fromClientID, toClientID string) {
	for _, session := range s.store.Snapshot().SessionsForClient(fromClientID) {
		session.ClientID = &toClientID
		s.store.Dispatch(store.UpdateSession(session))
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
