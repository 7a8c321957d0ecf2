package store

import (
	"testing"

	"github.com/mcjmccartney/rmr-core/internal/domain"
)

func TestApplyLeavesPriorStateUntouched(t *testing.T) {
	before := NewState()
	before = Apply(before, AddClient(domain.Client{ID: "c1", FirstName: "Jo"}))

	after := Apply(before, AddClient(domain.Client{ID: "c2", FirstName: "Sam"}))
	if len(before.Clients) != 1 {
		t.Fatalf("prior snapshot mutated: %d clients", len(before.Clients))
	}
	if len(after.Clients) != 2 {
		t.Fatalf("expected 2 clients in new state, got %d", len(after.Clients))
	}
}

func TestSetRebuildsCollectionAndClearsDanglingSelection(t *testing.T) {
	state := NewState()
	state = Apply(state, SetClients([]domain.Client{{ID: "c1"}, {ID: "c2"}}))
	state = Apply(state, SelectClient("c2"))

	state = Apply(state, SetClients([]domain.Client{{ID: "c1"}}))
	if len(state.Clients) != 1 {
		t.Fatalf("set must replace the collection, got %d", len(state.Clients))
	}
	if state.SelectedClientID != "" {
		t.Fatalf("selection pointing at a removed id must clear, got %q", state.SelectedClientID)
	}

	state = Apply(state, SelectClient("c1"))
	state = Apply(state, SetClients([]domain.Client{{ID: "c1"}, {ID: "c3"}}))
	if state.SelectedClientID != "c1" {
		t.Fatal("selection of a surviving id must be kept")
	}
}

func TestDeleteClearsMatchingSelectionOnly(t *testing.T) {
	state := NewState()
	state = Apply(state, SetSessions([]domain.Session{{ID: "s1"}, {ID: "s2"}}))
	state = Apply(state, SelectSession("s1"))

	state = Apply(state, DeleteSession("s2"))
	if state.SelectedSessionID != "s1" {
		t.Fatal("deleting another id must not clear the selection")
	}
	state = Apply(state, DeleteSession("s1"))
	if state.SelectedSessionID != "" {
		t.Fatal("deleting the selected id must clear the selection")
	}
}

func TestUpdateUpsertsAndMalformedPayloadIsNoop(t *testing.T) {
	state := NewState()
	state = Apply(state, UpdateClient(domain.Client{ID: "c1", FirstName: "Jo"}))
	if state.Clients["c1"].FirstName != "Jo" {
		t.Fatal("update of an absent record must insert it")
	}

	garbage := Apply(state, Action{Type: ActionUpdate, Entity: EntityClient, Payload: 42})
	if len(garbage.Clients) != 1 || garbage.Clients["c1"].FirstName != "Jo" {
		t.Fatal("malformed payload must leave the state unchanged")
	}

	unknown := Apply(state, Action{Type: "explode", Entity: EntityClient})
	if len(unknown.Clients) != 1 {
		t.Fatal("unknown action type must be a no-op")
	}
}

func TestClearSelection(t *testing.T) {
	state := NewState()
	state = Apply(state, SetClients([]domain.Client{{ID: "c1"}}))
	state = Apply(state, SetSessions([]domain.Session{{ID: "s1"}}))
	state = Apply(state, SelectClient("c1"))
	state = Apply(state, SelectSession("s1"))

	state = Apply(state, ClearSelection())
	if state.SelectedClientID != "" || state.SelectedSessionID != "" {
		t.Fatal("clear selection must drop both selections")
	}
}

func TestResolveEmailPrefersAliasAndFoldsCase(t *testing.T) {
	state := NewState()
	state = Apply(state, SetClients([]domain.Client{{ID: "c1", Email: "new@example.com"}}))
	state = Apply(state, SetAliases([]domain.EmailAlias{{ID: "a1", ClientID: "c1", Email: "old@example.com"}}))

	if id, ok := state.ResolveEmail("OLD@Example.Com"); !ok || id != "c1" {
		t.Fatalf("alias resolution failed: %q %v", id, ok)
	}
	if id, ok := state.ResolveEmail("new@example.com"); !ok || id != "c1" {
		t.Fatalf("direct email resolution failed: %q %v", id, ok)
	}
	if _, ok := state.ResolveEmail("stranger@example.com"); ok {
		t.Fatal("unknown email must not resolve")
	}
}

func TestResolveFormClientFallsBackToDogPairing(t *testing.T) {
	state := NewState()
	state = Apply(state, SetClients([]domain.Client{
		{ID: "c1", Email: "jo@example.com", DogName: "Rex"},
		{ID: "c2", Email: "Sam@Example.com", DogName: "Biscuit"},
	}))
	state = Apply(state, SetAliases([]domain.EmailAlias{{ID: "a1", ClientID: "c1", Email: "old@example.com"}}))

	if id, ok := state.ResolveFormClient("jo@example.com", ""); !ok || id != "c1" {
		t.Fatalf("exact email match failed: %q %v", id, ok)
	}
	if id, ok := state.ResolveFormClient("OLD@example.com", ""); !ok || id != "c1" {
		t.Fatalf("alias match failed: %q %v", id, ok)
	}
	if id, ok := state.ResolveFormClient("sam@example.com", "biscuit"); !ok || id != "c2" {
		t.Fatalf("email+dog pairing failed: %q %v", id, ok)
	}
	if _, ok := state.ResolveFormClient("sam@example.com", "Rex"); ok {
		t.Fatal("wrong dog must not resolve")
	}
}

func TestPaymentsForClientResolvesAliasedEmails(t *testing.T) {
	state := NewState()
	state = Apply(state, SetClients([]domain.Client{{ID: "c1", Email: "new@example.com"}}))
	state = Apply(state, SetAliases([]domain.EmailAlias{{ID: "a1", ClientID: "c1", Email: "old@example.com"}}))
	state = Apply(state, SetPayments([]domain.MembershipPayment{
		{ID: "p1", Email: "old@example.com"},
		{ID: "p2", Email: "NEW@example.com"},
		{ID: "p3", Email: "other@example.com"},
	}))

	payments := state.PaymentsForClient("c1")
	if len(payments) != 2 {
		t.Fatalf("expected payments via both addresses, got %d", len(payments))
	}
}

func TestStoreDispatchAndSnapshotIsolation(t *testing.T) {
	s := New()
	s.Dispatch(AddClient(domain.Client{ID: "c1"}))
	snapshot := s.Snapshot()

	s.Dispatch(AddClient(domain.Client{ID: "c2"}))
	if len(snapshot.Clients) != 1 {
		t.Fatal("earlier snapshot must not observe later dispatches")
	}
	if _, ok := s.Client("c2"); !ok {
		t.Fatal("later dispatch missing from store")
	}
}
