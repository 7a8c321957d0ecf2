package dedup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/mcjmccartney/rmr-core/internal/domain"
	"github.com/mcjmccartney/rmr-core/internal/store"
)

type fakeGateway struct {
	clients        map[string]domain.Client
	aliases        []domain.EmailAlias
	dismissed      []string
	sessionCounts  map[string]int
	paymentCounts  map[string]int
	briefCounts    map[string]int
	reassignErr    error
	dismissErr     error
	dismissListErr error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		clients:       map[string]domain.Client{},
		sessionCounts: map[string]int{},
		paymentCounts: map[string]int{},
		briefCounts:   map[string]int{},
	}
}

func (g *fakeGateway) aliasesFor(email string) []domain.EmailAlias {
	matches := make([]domain.EmailAlias, 0, 1)
	for _, alias := range g.aliases {
		if strings.EqualFold(alias.Email, email) {
			matches = append(matches, alias)
		}
	}
	return matches
}

func (g *fakeGateway) UpdateClient(_ context.Context, client domain.Client) (domain.Client, error) {
	if _, ok := g.clients[client.ID]; !ok {
		return domain.Client{}, domain.ErrNotFound
	}
	g.clients[client.ID] = client
	return client, nil
}

func (g *fakeGateway) DeleteClient(_ context.Context, id string) error {
	if _, ok := g.clients[id]; !ok {
		return domain.ErrNotFound
	}
	delete(g.clients, id)
	return nil
}

func (g *fakeGateway) ReassignSessions(_ context.Context, from, _ string) (int, error) {
	count := g.sessionCounts[from]
	g.sessionCounts[from] = 0
	return count, nil
}

func (g *fakeGateway) ReassignBriefs(_ context.Context, from, _ string) (int, error) {
	count := g.briefCounts[from]
	g.briefCounts[from] = 0
	return count, nil
}

func (g *fakeGateway) ReassignQuestionnaires(_ context.Context, _, _ string) (int, error) {
	return 0, nil
}

func (g *fakeGateway) ReassignPayments(_ context.Context, fromEmail, _ string) (int, error) {
	if g.reassignErr != nil {
		return 0, g.reassignErr
	}
	count := g.paymentCounts[strings.ToLower(fromEmail)]
	g.paymentCounts[strings.ToLower(fromEmail)] = 0
	return count, nil
}

func (g *fakeGateway) ReassignAliases(_ context.Context, from, to string) (int, error) {
	count := 0
	for i, alias := range g.aliases {
		if alias.ClientID == from {
			g.aliases[i].ClientID = to
			count++
		}
	}
	return count, nil
}

func (g *fakeGateway) FindAliasByEmail(_ context.Context, email string) (domain.EmailAlias, error) {
	if matches := g.aliasesFor(email); len(matches) > 0 {
		return matches[0], nil
	}
	return domain.EmailAlias{}, domain.ErrNotFound
}

func (g *fakeGateway) CreateAlias(_ context.Context, alias domain.EmailAlias) (domain.EmailAlias, error) {
	alias.ID = fmt.Sprintf("alias-%d", len(g.aliases))
	g.aliases = append(g.aliases, alias)
	return alias, nil
}

func (g *fakeGateway) UpdateAlias(_ context.Context, alias domain.EmailAlias) (domain.EmailAlias, error) {
	for i, existing := range g.aliases {
		if existing.ID == alias.ID {
			g.aliases[i] = alias
			return alias, nil
		}
	}
	return domain.EmailAlias{}, domain.ErrNotFound
}

func (g *fakeGateway) GetDismissedPairs(_ context.Context) ([]string, error) {
	if g.dismissListErr != nil {
		return nil, g.dismissListErr
	}
	return g.dismissed, nil
}

func (g *fakeGateway) AddDismissedPair(_ context.Context, pairKey string) error {
	if g.dismissErr != nil {
		return g.dismissErr
	}
	g.dismissed = append(g.dismissed, pairKey)
	return nil
}

func newService(t *testing.T, gateway *fakeGateway, clients ...domain.Client) (*Service, *store.Store) {
	t.Helper()
	entityStore := store.New()
	for _, client := range clients {
		gateway.clients[client.ID] = client
	}
	entityStore.Dispatch(store.SetClients(clients))
	service, err := NewService(gateway, entityStore, ServiceOptions{})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return service, entityStore
}

func TestDetectFindsMatchingPairAndFiltersDismissed(t *testing.T) {
	gateway := newFakeGateway()
	service, _ := newService(t, gateway,
		domain.Client{ID: "c1", FirstName: "Jo", LastName: "Hart", Email: "jo@example.com", DogName: "Rex"},
		domain.Client{ID: "c2", FirstName: "Jo", LastName: "Hart", Email: "JO@example.com", DogName: "Rex"},
		domain.Client{ID: "c3", FirstName: "Sam", LastName: "Poole", Email: "sam@example.com", DogName: "Biscuit"},
	)
	ctx := context.Background()

	pairs, err := service.Detect(ctx)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(pairs) != 1 {
		t.Fatalf("expected one candidate pair, got %d", len(pairs))
	}
	if pairs[0].PrimaryID != "c1" || pairs[0].DuplicateID != "c2" {
		t.Fatalf("unexpected pair %+v", pairs[0])
	}
	if len(pairs[0].Basis) == 0 {
		t.Fatal("candidate must carry its scoring basis")
	}

	if err := service.Dismiss(ctx, "c1", "c2"); err != nil {
		t.Fatalf("Dismiss: %v", err)
	}
	pairs, err = service.Detect(ctx)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(pairs) != 0 {
		t.Fatalf("dismissed pair resurfaced: %+v", pairs)
	}
}

func TestDetectUsesFallbackCacheWhenPersistenceDown(t *testing.T) {
	gateway := newFakeGateway()
	gateway.dismissErr = errors.New("storage offline")
	gateway.dismissListErr = errors.New("storage offline")
	service, _ := newService(t, gateway,
		domain.Client{ID: "c1", FirstName: "Jo", LastName: "Hart", Email: "jo@example.com"},
		domain.Client{ID: "c2", FirstName: "Jo", LastName: "Hart", Email: "jo@example.com"},
	)
	ctx := context.Background()

	if err := service.Dismiss(ctx, "c1", "c2"); err != nil {
		t.Fatalf("Dismiss must degrade to cache, got %v", err)
	}
	pairs, err := service.Detect(ctx)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(pairs) != 0 {
		t.Fatal("locally cached dismissal ignored")
	}
}

func TestPreviewTakesOnlyValueWithoutConflict(t *testing.T) {
	gateway := newFakeGateway()
	service, _ := newService(t, gateway,
		domain.Client{ID: "c1", DogName: "Rex"},
		domain.Client{ID: "c2", DogName: ""},
	)

	preview, err := service.Preview(context.Background(), "c1", "c2")
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if preview.Merged.DogName != "Rex" {
		t.Fatalf("expected dogName Rex, got %q", preview.Merged.DogName)
	}
	for _, conflict := range preview.Conflicts {
		if conflict.Field == "dogName" {
			t.Fatal("one-sided value must not raise a conflict")
		}
	}
}

func TestPreviewRaisesDeterministicConflict(t *testing.T) {
	gateway := newFakeGateway()
	service, _ := newService(t, gateway,
		domain.Client{ID: "c1", Phone: "111"},
		domain.Client{ID: "c2", Phone: "2222"},
	)

	preview, err := service.Preview(context.Background(), "c1", "c2")
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if len(preview.Conflicts) != 1 {
		t.Fatalf("expected one conflict, got %+v", preview.Conflicts)
	}
	conflict := preview.Conflicts[0]
	if conflict.Field != "phone" || conflict.Primary != "111" || conflict.Duplicate != "2222" {
		t.Fatalf("unexpected conflict %+v", conflict)
	}
	if conflict.Suggested != "2222" {
		t.Fatalf("prefer-longer should suggest 2222, got %q", conflict.Suggested)
	}

	again, _ := service.Preview(context.Background(), "c1", "c2")
	if again.Conflicts[0].Suggested != conflict.Suggested {
		t.Fatal("suggestion must be deterministic")
	}
}

func TestMergeExecutesOrderedStepsAndReportsCounts(t *testing.T) {
	gateway := newFakeGateway()
	gateway.sessionCounts["c2"] = 3
	gateway.briefCounts["c2"] = 1
	gateway.paymentCounts["old@example.com"] = 2
	service, entityStore := newService(t, gateway,
		domain.Client{ID: "c1", FirstName: "Jo", Email: "jo@example.com", DogName: "Rex"},
		domain.Client{ID: "c2", FirstName: "Jo", Email: "old@example.com", DogName: "Rex"},
	)
	dupID := "c2"
	entityStore.Dispatch(store.SetSessions([]domain.Session{
		{ID: "s1", ClientID: &dupID, SessionType: domain.SessionOnline},
	}))
	entityStore.Dispatch(store.SetBriefs([]domain.BehaviouralBrief{
		{ID: "b1", ClientID: &dupID, Email: "old@example.com"},
		{ID: "b2", Email: "old@example.com", DogName: "Rex"},
	}))

	result, err := service.Merge(context.Background(), "c1", "c2", map[string]string{"email": "jo@example.com"})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.TransferredSessions != 3 || result.TransferredForms != 1 || result.TransferredPayments != 2 {
		t.Fatalf("unexpected transfer counts: %+v", result)
	}
	if result.AliasedEmails != 1 {
		t.Fatalf("duplicate email should be aliased once, got %d", result.AliasedEmails)
	}
	if _, ok := gateway.clients["c2"]; ok {
		t.Fatal("duplicate record must be deleted remotely")
	}
	if _, ok := entityStore.Client("c2"); ok {
		t.Fatal("duplicate record must be deleted locally")
	}
	bindings := gateway.aliasesFor("old@example.com")
	if len(bindings) != 1 || bindings[0].ClientID != "c1" {
		t.Fatalf("old email not aliased to primary: %+v", bindings)
	}
	session, _ := entityStore.Session("s1")
	if session.ClientID == nil || *session.ClientID != "c1" {
		t.Fatal("store session not reassigned to primary")
	}
	briefs := entityStore.Snapshot().Briefs
	if briefs["b1"].ClientID == nil || *briefs["b1"].ClientID != "c1" {
		t.Fatal("id-linked brief not relinked to primary")
	}
	if briefs["b2"].ClientID == nil || *briefs["b2"].ClientID != "c1" {
		t.Fatal("email-resolved brief not relinked to primary")
	}
}

func TestMergeChainReassignsExistingAliases(t *testing.T) {
	gateway := newFakeGateway()
	service, entityStore := newService(t, gateway,
		domain.Client{ID: "cA", FirstName: "Jo", LastName: "Hart", Email: "a@example.com"},
		domain.Client{ID: "cB", FirstName: "Jo", LastName: "Hart", Email: "b@example.com"},
		domain.Client{ID: "cC", FirstName: "Jo", LastName: "Hart", Email: "c@example.com"},
	)
	ctx := context.Background()

	if _, err := service.Merge(ctx, "cA", "cB", map[string]string{"email": "a@example.com"}); err != nil {
		t.Fatalf("first merge: %v", err)
	}
	if _, err := service.Merge(ctx, "cC", "cA", map[string]string{"email": "c@example.com"}); err != nil {
		t.Fatalf("second merge: %v", err)
	}

	// every email must resolve through exactly one binding, bound to the
	// surviving client; a parallel row would keep pointing at a deleted one
	for _, email := range []string{"a@example.com", "b@example.com"} {
		bindings := gateway.aliasesFor(email)
		if len(bindings) != 1 {
			t.Fatalf("%s: expected one binding, got %+v", email, bindings)
		}
		if bindings[0].ClientID != "cC" {
			t.Fatalf("%s still bound to %s", email, bindings[0].ClientID)
		}
	}
	for _, alias := range entityStore.Snapshot().Aliases {
		if alias.ClientID != "cC" {
			t.Fatalf("store alias %s bound to deleted client %s", alias.Email, alias.ClientID)
		}
	}
	if id, ok := entityStore.Snapshot().ResolveEmail("b@example.com"); !ok || id != "cC" {
		t.Fatalf("oldest email must resolve to the surviving client, got %q %v", id, ok)
	}
}

func TestMergePartialFailureIsResumable(t *testing.T) {
	gateway := newFakeGateway()
	gateway.paymentCounts["old@example.com"] = 2
	gateway.reassignErr = errors.New("payments table locked")
	service, _ := newService(t, gateway,
		domain.Client{ID: "c1", Email: "jo@example.com"},
		domain.Client{ID: "c2", Email: "old@example.com"},
	)
	ctx := context.Background()

	result, err := service.Merge(ctx, "c1", "c2", nil)
	if err == nil || result.Success {
		t.Fatalf("expected failure, got %+v", result)
	}
	if result.Err == "" {
		t.Fatal("failed merge must carry an error message")
	}
	if _, ok := gateway.clients["c2"]; !ok {
		t.Fatal("duplicate must survive a failed merge")
	}

	gateway.reassignErr = nil
	retry, err := service.Merge(ctx, "c1", "c2", nil)
	if err != nil {
		t.Fatalf("retry after fixing the fault: %v", err)
	}
	if !retry.Success || retry.TransferredPayments != 2 {
		t.Fatalf("retry should converge, got %+v", retry)
	}
}

func TestMergeRejectsSelfAndUnknownPairs(t *testing.T) {
	gateway := newFakeGateway()
	service, _ := newService(t, gateway, domain.Client{ID: "c1"})
	ctx := context.Background()

	if _, err := service.Merge(ctx, "c1", "c1", nil); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for self-merge, got %v", err)
	}
	if _, err := service.Merge(ctx, "c1", "ghost", nil); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestScorerContactMatchOutweighsNameAlone(t *testing.T) {
	scorer := DefaultScorer{}
	byEmail, basis := scorer.Score(
		domain.Client{Email: "jo@example.com"},
		domain.Client{Email: "JO@EXAMPLE.COM"},
	)
	byName, _ := scorer.Score(
		domain.Client{FirstName: "Jo", LastName: "Hart"},
		domain.Client{FirstName: "Jo", LastName: "Hart"},
	)
	if byEmail <= 0 || byName <= 0 {
		t.Fatal("both comparisons should score")
	}
	if len(basis) != 1 || basis[0] != "email" {
		t.Fatalf("unexpected basis %v", basis)
	}
	if phone, _ := scorer.Score(
		domain.Client{Phone: "+44 7700 900123"},
		domain.Client{Phone: "07700900123"},
	); phone != 0 {
		// a country prefix changes the digit string, so these stay distinct
		t.Fatalf("unexpected phone score %v", phone)
	}
}
