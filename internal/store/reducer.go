package store

import (
	"strings"

	"github.com/mcjmccartney/rmr-core/internal/domain"
)

// Apply is a pure reduction over the closed action set. Every action is a
// total function of the provided payload: malformed payloads leave the state
// unchanged rather than partially applied. Affected maps are copied, never
// mutated, so previously returned states remain valid snapshots.
func Apply(state State, action Action) State {
	switch action.Type {
	case ActionSelect:
		return applySelect(state, action)
	case ActionClearSelection:
		state.SelectedClientID = ""
		state.SelectedSessionID = ""
		return state
	}

	switch action.Entity {
	case EntityClient:
		return applyClient(state, action)
	case EntitySession:
		return applySession(state, action)
	case EntityAlias:
		return applyAlias(state, action)
	case EntityPayment:
		return applyPayment(state, action)
	case EntityBrief:
		return applyBrief(state, action)
	case EntityQuestionnaire:
		return applyQuestionnaire(state, action)
	}
	return state
}

func applySelect(state State, action Action) State {
	switch action.Entity {
	case EntityClient:
		state.SelectedClientID = action.ID
	case EntitySession:
		state.SelectedSessionID = action.ID
	}
	return state
}

func applyClient(state State, action Action) State {
	switch action.Type {
	case ActionSet:
		clients, ok := action.Payload.([]domain.Client)
		if !ok {
			return state
		}
		next := make(map[string]domain.Client, len(clients))
		for _, client := range clients {
			if client.ID == "" {
				continue
			}
			next[client.ID] = client
		}
		state.Clients = next
		if state.SelectedClientID != "" {
			if _, kept := next[state.SelectedClientID]; !kept {
				state.SelectedClientID = ""
			}
		}
	case ActionAdd, ActionUpdate:
		client, ok := action.Payload.(domain.Client)
		if !ok || client.ID == "" {
			return state
		}
		next := cloneMap(state.Clients)
		next[client.ID] = client
		state.Clients = next
	case ActionDelete:
		if _, exists := state.Clients[action.ID]; !exists {
			return state
		}
		next := cloneMap(state.Clients)
		delete(next, action.ID)
		state.Clients = next
		if state.SelectedClientID == action.ID {
			state.SelectedClientID = ""
		}
	}
	return state
}

func applySession(state State, action Action) State {
	switch action.Type {
	case ActionSet:
		sessions, ok := action.Payload.([]domain.Session)
		if !ok {
			return state
		}
		next := make(map[string]domain.Session, len(sessions))
		for _, session := range sessions {
			if session.ID == "" {
				continue
			}
			next[session.ID] = session
		}
		state.Sessions = next
		if state.SelectedSessionID != "" {
			if _, kept := next[state.SelectedSessionID]; !kept {
				state.SelectedSessionID = ""
			}
		}
	case ActionAdd, ActionUpdate:
		session, ok := action.Payload.(domain.Session)
		if !ok || session.ID == "" {
			return state
		}
		next := cloneMap(state.Sessions)
		next[session.ID] = session
		state.Sessions = next
	case ActionDelete:
		if _, exists := state.Sessions[action.ID]; !exists {
			return state
		}
		next := cloneMap(state.Sessions)
		delete(next, action.ID)
		state.Sessions = next
		if state.SelectedSessionID == action.ID {
			state.SelectedSessionID = ""
		}
	}
	return state
}

func applyAlias(state State, action Action) State {
	switch action.Type {
	case ActionSet:
		aliases, ok := action.Payload.([]domain.EmailAlias)
		if !ok {
			return state
		}
		next := make(map[string]domain.EmailAlias, len(aliases))
		for _, alias := range aliases {
			if alias.ID == "" {
				continue
			}
			next[alias.ID] = alias
		}
		state.Aliases = next
	case ActionAdd, ActionUpdate:
		alias, ok := action.Payload.(domain.EmailAlias)
		if !ok || alias.ID == "" {
			return state
		}
		next := cloneMap(state.Aliases)
		next[alias.ID] = alias
		state.Aliases = next
	case ActionDelete:
		if _, exists := state.Aliases[action.ID]; !exists {
			return state
		}
		next := cloneMap(state.Aliases)
		delete(next, action.ID)
		state.Aliases = next
	}
	return state
}

func applyPayment(state State, action Action) State {
	switch action.Type {
	case ActionSet:
		payments, ok := action.Payload.([]domain.MembershipPayment)
		if !ok {
			return state
		}
		next := make(map[string]domain.MembershipPayment, len(payments))
		for _, payment := range payments {
			if payment.ID == "" {
				continue
			}
			next[payment.ID] = payment
		}
		state.Payments = next
	case ActionAdd, ActionUpdate:
		payment, ok := action.Payload.(domain.MembershipPayment)
		if !ok || payment.ID == "" {
			return state
		}
		next := cloneMap(state.Payments)
		next[payment.ID] = payment
		state.Payments = next
	case ActionDelete:
		if _, exists := state.Payments[action.ID]; !exists {
			return state
		}
		next := cloneMap(state.Payments)
		delete(next, action.ID)
		state.Payments = next
	}
	return state
}

func applyBrief(state State, action Action) State {
	switch action.Type {
	case ActionSet:
		briefs, ok := action.Payload.([]domain.BehaviouralBrief)
		if !ok {
			return state
		}
		next := make(map[string]domain.BehaviouralBrief, len(briefs))
		for _, brief := range briefs {
			if brief.ID == "" {
				continue
			}
			next[brief.ID] = brief
		}
		state.Briefs = next
	case ActionAdd, ActionUpdate:
		brief, ok := action.Payload.(domain.BehaviouralBrief)
		if !ok || brief.ID == "" {
			return state
		}
		next := cloneMap(state.Briefs)
		next[brief.ID] = brief
		state.Briefs = next
	case ActionDelete:
		if _, exists := state.Briefs[action.ID]; !exists {
			return state
		}
		next := cloneMap(state.Briefs)
		delete(next, action.ID)
		state.Briefs = next
	}
	return state
}

func applyQuestionnaire(state State, action Action) State {
	switch action.Type {
	case ActionSet:
		questionnaires, ok := action.Payload.([]domain.BehaviourQuestionnaire)
		if !ok {
			return state
		}
		next := make(map[string]domain.BehaviourQuestionnaire, len(questionnaires))
		for _, q := range questionnaires {
			if q.ID == "" {
				continue
			}
			next[q.ID] = q
		}
		state.Questionnaires = next
	case ActionAdd, ActionUpdate:
		q, ok := action.Payload.(domain.BehaviourQuestionnaire)
		if !ok || q.ID == "" {
			return state
		}
		next := cloneMap(state.Questionnaires)
		next[q.ID] = q
		state.Questionnaires = next
	case ActionDelete:
		if _, exists := state.Questionnaires[action.ID]; !exists {
			return state
		}
		next := cloneMap(state.Questionnaires)
		delete(next, action.ID)
		state.Questionnaires = next
	}
	return state
}

func cloneMap[V any](src map[string]V) map[string]V {
	dst := make(map[string]V, len(src)+1)
	for key, value := range src {
		dst[key] = value
	}
	return dst
}

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func foldEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
