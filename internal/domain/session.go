package domain

import (
	"strings"
	"time"
)

type SessionType string

const (
	SessionInPerson      SessionType = "In-Person"
	SessionOnline        SessionType = "Online"
	SessionTraining      SessionType = "Training"
	SessionOnlineCatchup SessionType = "Online Catchup"
	SessionGroup         SessionType = "Group"
	SessionPhoneCall     SessionType = "Phone Call"
	SessionCoaching      SessionType = "Coaching"
	SessionLive          SessionType = "Live"
)

var sessionTypes = map[SessionType]struct{}{
	SessionInPerson:      {},
	SessionOnline:        {},
	SessionTraining:      {},
	SessionOnlineCatchup: {},
	SessionGroup:         {},
	SessionPhoneCall:     {},
	SessionCoaching:      {},
	SessionLive:          {},
}

func (t SessionType) Valid() bool {
	_, ok := sessionTypes[t]
	return ok
}

// RequiresClient reports whether sessions of this type must reference a
// client. Group and Live sessions may be unowned.
func (t SessionType) RequiresClient() bool {
	return t != SessionGroup && t != SessionLive
}

// Session is a bookable session. BookingDate and BookingTime stay separate
// calendar-date and clock-time fields; combining them into one timestamp
// introduces timezone ambiguity. EventID is empty until the external calendar
// confirms creation via the callback surface.
type Session struct {
	ID                  string      `json:"id"`
	ClientID            *string     `json:"clientId,omitempty"`
	DogName             string      `json:"dogName,omitempty"`
	SessionType         SessionType `json:"sessionType"`
	BookingDate         string      `json:"bookingDate"`
	BookingTime         string      `json:"bookingTime"`
	Quote               float64     `json:"quote"`
	Notes               string      `json:"notes,omitempty"`
	SessionPaid         bool        `json:"sessionPaid"`
	PaymentConfirmedAt  *time.Time  `json:"paymentConfirmedAt,omitempty"`
	SessionPlanSent     bool        `json:"sessionPlanSent"`
	QuestionnaireBypass bool        `json:"questionnaireBypass"`
	EventID             string      `json:"eventId,omitempty"`
}

const (
	BookingDateLayout = "2006-01-02"
	BookingTimeLayout = "15:04"
)

func ValidBookingDate(value string) bool {
	_, err := time.Parse(BookingDateLayout, strings.TrimSpace(value))
	return err == nil
}

func ValidBookingTime(value string) bool {
	_, err := time.Parse(BookingTimeLayout, strings.TrimSpace(value))
	return err == nil
}

// SessionUpdate carries a partial update. Nil fields are untouched; a pointer
// to the zero value clears the field.
type SessionUpdate struct {
	ClientID            *string      `json:"clientId,omitempty"`
	DogName             *string      `json:"dogName,omitempty"`
	SessionType         *SessionType `json:"sessionType,omitempty"`
	BookingDate         *string      `json:"bookingDate,omitempty"`
	BookingTime         *string      `json:"bookingTime,omitempty"`
	Quote               *float64     `json:"quote,omitempty"`
	Notes               *string      `json:"notes,omitempty"`
	SessionPaid         *bool        `json:"sessionPaid,omitempty"`
	PaymentConfirmedAt  *time.Time   `json:"paymentConfirmedAt,omitempty"`
	SessionPlanSent     *bool        `json:"sessionPlanSent,omitempty"`
	QuestionnaireBypass *bool        `json:"questionnaireBypass,omitempty"`
	EventID             *string      `json:"eventId,omitempty"`
}

// ApplyTo returns a copy of prior with the update applied.
func (u SessionUpdate) ApplyTo(prior Session) Session {
	next := prior
	if u.ClientID != nil {
		next.ClientID = u.ClientID
	}
	if u.DogName != nil {
		next.DogName = *u.DogName
	}
	if u.SessionType != nil {
		next.SessionType = *u.SessionType
	}
	if u.BookingDate != nil {
		next.BookingDate = *u.BookingDate
	}
	if u.BookingTime != nil {
		next.BookingTime = *u.BookingTime
	}
	if u.Quote != nil {
		next.Quote = *u.Quote
	}
	if u.Notes != nil {
		next.Notes = *u.Notes
	}
	if u.SessionPaid != nil {
		next.SessionPaid = *u.SessionPaid
	}
	if u.PaymentConfirmedAt != nil {
		next.PaymentConfirmedAt = u.PaymentConfirmedAt
	}
	if u.SessionPlanSent != nil {
		next.SessionPlanSent = *u.SessionPlanSent
	}
	if u.QuestionnaireBypass != nil {
		next.QuestionnaireBypass = *u.QuestionnaireBypass
	}
	if u.EventID != nil {
		next.EventID = *u.EventID
	}
	return next
}

// ChangedFields lists the field names the update touches. A field counts even
// when the requested value equals the stored one; callers that care about
// actual value changes compare against the prior session themselves.
func (u SessionUpdate) ChangedFields() []string {
	fields := make([]string, 0, 12)
	if u.ClientID != nil {
		fields = append(fields, "clientId")
	}
	if u.DogName != nil {
		fields = append(fields, "dogName")
	}
	if u.SessionType != nil {
		fields = append(fields, "sessionType")
	}
	if u.BookingDate != nil {
		fields = append(fields, "bookingDate")
	}
	if u.BookingTime != nil {
		fields = append(fields, "bookingTime")
	}
	if u.Quote != nil {
		fields = append(fields, "quote")
	}
	if u.Notes != nil {
		fields = append(fields, "notes")
	}
	if u.SessionPaid != nil {
		fields = append(fields, "sessionPaid")
	}
	if u.PaymentConfirmedAt != nil {
		fields = append(fields, "paymentConfirmedAt")
	}
	if u.SessionPlanSent != nil {
		fields = append(fields, "sessionPlanSent")
	}
	if u.QuestionnaireBypass != nil {
		fields = append(fields, "questionnaireBypass")
	}
	if u.EventID != nil {
		fields = append(fields, "eventId")
	}
	return fields
}
