package store

import "github.com/mcjmccartney/rmr-core/internal/domain"

type ActionType string

const (
	ActionSet            ActionType = "set"
	ActionAdd            ActionType = "add"
	ActionUpdate         ActionType = "update"
	ActionDelete         ActionType = "delete"
	ActionSelect         ActionType = "select"
	ActionClearSelection ActionType = "clear_selection"
)

type EntityKind string

const (
	EntityClient        EntityKind = "client"
	EntitySession       EntityKind = "session"
	EntityAlias         EntityKind = "email_alias"
	EntityPayment       EntityKind = "membership_payment"
	EntityBrief         EntityKind = "behavioural_brief"
	EntityQuestionnaire EntityKind = "behaviour_questionnaire"
)

// Action is one member of the closed action set the reducer accepts. Build
// actions through the constructors below; the reducer ignores payloads of the
// wrong shape rather than failing partially.
type Action struct {
	Type    ActionType
	Entity  EntityKind
	ID      string
	Payload any
}

// Key identifies an action for debounce purposes: entity, type and record id.
func (a Action) Key() string {
	return string(a.Entity) + "/" + string(a.Type) + "/" + a.ID
}

func SetClients(clients []domain.Client) Action {
	return Action{Type: ActionSet, Entity: EntityClient, Payload: clients}
}

func AddClient(client domain.Client) Action {
	return Action{Type: ActionAdd, Entity: EntityClient, ID: client.ID, Payload: client}
}

func UpdateClient(client domain.Client) Action {
	return Action{Type: ActionUpdate, Entity: EntityClient, ID: client.ID, Payload: client}
}

func DeleteClient(id string) Action {
	return Action{Type: ActionDelete, Entity: EntityClient, ID: id}
}

func SetSessions(sessions []domain.Session) Action {
	return Action{Type: ActionSet, Entity: EntitySession, Payload: sessions}
}

func AddSession(session domain.Session) Action {
	return Action{Type: ActionAdd, Entity: EntitySession, ID: session.ID, Payload: session}
}

func UpdateSession(session domain.Session) Action {
	return Action{Type: ActionUpdate, Entity: EntitySession, ID: session.ID, Payload: session}
}

func DeleteSession(id string) Action {
	return Action{Type: ActionDelete, Entity: EntitySession, ID: id}
}

func SetAliases(aliases []domain.EmailAlias) Action {
	return Action{Type: ActionSet, Entity: EntityAlias, Payload: aliases}
}

func AddAlias(alias domain.EmailAlias) Action {
	return Action{Type: ActionAdd, Entity: EntityAlias, ID: alias.ID, Payload: alias}
}

func UpdateAlias(alias domain.EmailAlias) Action {
	return Action{Type: ActionUpdate, Entity: EntityAlias, ID: alias.ID, Payload: alias}
}

func DeleteAlias(id string) Action {
	return Action{Type: ActionDelete, Entity: EntityAlias, ID: id}
}

func SetPayments(payments []domain.MembershipPayment) Action {
	return Action{Type: ActionSet, Entity: EntityPayment, Payload: payments}
}

func AddPayment(payment domain.MembershipPayment) Action {
	return Action{Type: ActionAdd, Entity: EntityPayment, ID: payment.ID, Payload: payment}
}

func UpdatePayment(payment domain.MembershipPayment) Action {
	return Action{Type: ActionUpdate, Entity: EntityPayment, ID: payment.ID, Payload: payment}
}

func DeletePayment(id string) Action {
	return Action{Type: ActionDelete, Entity: EntityPayment, ID: id}
}

func SetBriefs(briefs []domain.BehaviouralBrief) Action {
	return Action{Type: ActionSet, Entity: EntityBrief, Payload: briefs}
}

func AddBrief(brief domain.BehaviouralBrief) Action {
	return Action{Type: ActionAdd, Entity: EntityBrief, ID: brief.ID, Payload: brief}
}

func UpdateBrief(brief domain.BehaviouralBrief) Action {
	return Action{Type: ActionUpdate, Entity: EntityBrief, ID: brief.ID, Payload: brief}
}

func DeleteBrief(id string) Action {
	return Action{Type: ActionDelete, Entity: EntityBrief, ID: id}
}

func SetQuestionnaires(questionnaires []domain.BehaviourQuestionnaire) Action {
	return Action{Type: ActionSet, Entity: EntityQuestionnaire, Payload: questionnaires}
}

func AddQuestionnaire(q domain.BehaviourQuestionnaire) Action {
	return Action{Type: ActionAdd, Entity: EntityQuestionnaire, ID: q.ID, Payload: q}
}

func UpdateQuestionnaire(q domain.BehaviourQuestionnaire) Action {
	return Action{Type: ActionUpdate, Entity: EntityQuestionnaire, ID: q.ID, Payload: q}
}

func DeleteQuestionnaire(id string) Action {
	return Action{Type: ActionDelete, Entity: EntityQuestionnaire, ID: id}
}

func SelectClient(id string) Action {
	return Action{Type: ActionSelect, Entity: EntityClient, ID: id}
}

func SelectSession(id string) Action {
	return Action{Type: ActionSelect, Entity: EntitySession, ID: id}
}

func ClearSelection() Action {
	return Action{Type: ActionClearSelection}
}
