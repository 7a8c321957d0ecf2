package store

import "github.com/mcjmccartney/rmr-core/internal/domain"

// State is the authoritative in-memory collection of entities plus UI
// selection. Maps are replaced, never mutated, by the reducer, so a State
// value handed to a reader stays stable while new actions are applied.
type State struct {
	Clients        map[string]domain.Client
	Sessions       map[string]domain.Session
	Aliases        map[string]domain.EmailAlias
	Payments       map[string]domain.MembershipPayment
	Briefs         map[string]domain.BehaviouralBrief
	Questionnaires map[string]domain.BehaviourQuestionnaire

	SelectedClientID  string
	SelectedSessionID string
}

func NewState() State {
	return State{
		Clients:        map[string]domain.Client{},
		Sessions:       map[string]domain.Session{},
		Aliases:        map[string]domain.EmailAlias{},
		Payments:       map[string]domain.MembershipPayment{},
		Briefs:         map[string]domain.BehaviouralBrief{},
		Questionnaires: map[string]domain.BehaviourQuestionnaire{},
	}
}

// AliasesForClient returns every alias bound to the client, primary included.
func (s State) AliasesForClient(clientID string) []domain.EmailAlias {
	aliases := make([]domain.EmailAlias, 0, 2)
	for _, alias := range s.Aliases {
		if alias.ClientID == clientID {
			aliases = append(aliases, alias)
		}
	}
	return aliases
}

// ResolveEmail maps an email to a client id via the alias table. The second
// return reports whether a binding exists.
func (s State) ResolveEmail(email string) (string, bool) {
	for _, alias := range s.Aliases {
		if equalFold(alias.Email, email) {
			return alias.ClientID, true
		}
	}
	for _, client := range s.Clients {
		if equalFold(client.Email, email) {
			return client.ID, true
		}
	}
	return "", false
}

// PaymentsForClient resolves membership payments through the alias table.
func (s State) PaymentsForClient(clientID string) []domain.MembershipPayment {
	emails := map[string]struct{}{}
	if client, ok := s.Clients[clientID]; ok && client.Email != "" {
		emails[foldEmail(client.Email)] = struct{}{}
	}
	for _, alias := range s.AliasesForClient(clientID) {
		emails[foldEmail(alias.Email)] = struct{}{}
	}
	payments := make([]domain.MembershipPayment, 0, 4)
	for _, payment := range s.Payments {
		if _, ok := emails[foldEmail(payment.Email)]; ok {
			payments = append(payments, payment)
		}
	}
	return payments
}

// ResolveFormClient finds the owning client for an intake form that arrived
// without a client id: exact email match first, then the alias table, then a
// case-insensitive (email, dog name) pairing.
func (s State) ResolveFormClient(email, dogName string) (string, bool) {
	for _, client := range s.Clients {
		if client.Email != "" && client.Email == email {
			return client.ID, true
		}
	}
	for _, alias := range s.Aliases {
		if equalFold(alias.Email, email) {
			return alias.ClientID, true
		}
	}
	for _, client := range s.Clients {
		if !equalFold(client.Email, email) {
			continue
		}
		for _, dog := range client.Dogs() {
			if equalFold(dog, dogName) {
				return client.ID, true
			}
		}
	}
	return "", false
}

// SessionsForClient lists sessions owned by the client.
func (s State) SessionsForClient(clientID string) []domain.Session {
	sessions := make([]domain.Session, 0, 4)
	for _, session := range s.Sessions {
		if session.ClientID != nil && *session.ClientID == clientID {
			sessions = append(sessions, session)
		}
	}
	return sessions
}
