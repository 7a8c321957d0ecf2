package gateway

import (
	"strconv"
	"strings"
	"time"

	"github.com/mcjmccartney/rmr-core/internal/domain"
)

// Wire rows use flat snake_case field names. These translators are the only
// place outside the SQL layer that may assume them; feed consumers go through
// here.

func RowID(row map[string]any) string {
	return rowString(row, "id")
}

func TranslateClientRow(row map[string]any) (domain.Client, error) {
	id := RowID(row)
	if id == "" {
		return domain.Client{}, domain.ErrInvalidInput
	}
	return domain.Client{
		ID:                       id,
		FirstName:                rowString(row, "first_name"),
		LastName:                 rowString(row, "last_name"),
		Email:                    rowString(row, "email"),
		Phone:                    rowString(row, "phone"),
		Address:                  rowString(row, "address"),
		DogName:                  rowString(row, "dog_name"),
		OtherDogs:                rowStringSlice(row, "other_dogs"),
		Active:                   rowBool(row, "active"),
		Membership:               rowBool(row, "membership"),
		BehaviouralBriefID:       rowStringPtr(row, "behavioural_brief_id"),
		BehaviourQuestionnaireID: rowStringPtr(row, "behaviour_questionnaire_id"),
		BookingTermsSignedAt:     rowTimePtr(row, "booking_terms_signed_at"),
	}, nil
}

func TranslateSessionRow(row map[string]any) (domain.Session, error) {
	id := RowID(row)
	if id == "" {
		return domain.Session{}, domain.ErrInvalidInput
	}
	return domain.Session{
		ID:                  id,
		ClientID:            rowStringPtr(row, "client_id"),
		DogName:             rowString(row, "dog_name"),
		SessionType:         domain.SessionType(rowString(row, "session_type")),
		BookingDate:         rowString(row, "booking_date"),
		BookingTime:         rowString(row, "booking_time"),
		Quote:               rowFloat(row, "quote"),
		Notes:               rowString(row, "notes"),
		SessionPaid:         rowBool(row, "session_paid"),
		PaymentConfirmedAt:  rowTimePtr(row, "payment_confirmed_at"),
		SessionPlanSent:     rowBool(row, "session_plan_sent"),
		QuestionnaireBypass: rowBool(row, "questionnaire_bypass"),
		EventID:             rowString(row, "event_id"),
	}, nil
}

func TranslateAliasRow(row map[string]any) (domain.EmailAlias, error) {
	id := RowID(row)
	if id == "" {
		return domain.EmailAlias{}, domain.ErrInvalidInput
	}
	return domain.EmailAlias{
		ID:        id,
		ClientID:  rowString(row, "client_id"),
		Email:     rowString(row, "email"),
		IsPrimary: rowBool(row, "is_primary"),
	}, nil
}

func TranslatePaymentRow(row map[string]any) (domain.MembershipPayment, error) {
	id := RowID(row)
	if id == "" {
		return domain.MembershipPayment{}, domain.ErrInvalidInput
	}
	return domain.MembershipPayment{
		ID:     id,
		Email:  rowString(row, "email"),
		Date:   rowTime(row, "paid_at"),
		Amount: rowFloat(row, "amount"),
	}, nil
}

func TranslateBriefRow(row map[string]any) (domain.BehaviouralBrief, error) {
	id := RowID(row)
	if id == "" {
		return domain.BehaviouralBrief{}, domain.ErrInvalidInput
	}
	return domain.BehaviouralBrief{
		ID:          id,
		ClientID:    rowStringPtr(row, "client_id"),
		Email:       rowString(row, "email"),
		DogName:     rowString(row, "dog_name"),
		LifeWithDog: rowString(row, "life_with_dog"),
		BestOutcome: rowString(row, "best_outcome"),
		SubmittedAt: rowTime(row, "submitted_at"),
	}, nil
}

func TranslateQuestionnaireRow(row map[string]any) (domain.BehaviourQuestionnaire, error) {
	id := RowID(row)
	if id == "" {
		return domain.BehaviourQuestionnaire{}, domain.ErrInvalidInput
	}
	return domain.BehaviourQuestionnaire{
		ID:           id,
		ClientID:     rowStringPtr(row, "client_id"),
		Email:        rowString(row, "email"),
		DogName:      rowString(row, "dog_name"),
		DogAge:       rowString(row, "dog_age"),
		DogBreed:     rowString(row, "dog_breed"),
		MainConcern:  rowString(row, "main_concern"),
		IdealOutcome: rowString(row, "ideal_outcome"),
		SubmittedAt:  rowTime(row, "submitted_at"),
	}, nil
}

func rowString(row map[string]any, key string) string {
	if value, ok := row[key].(string); ok {
		return value
	}
	return ""
}

func rowStringPtr(row map[string]any, key string) *string {
	value, ok := row[key].(string)
	if !ok || strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}

func rowBool(row map[string]any, key string) bool {
	value, ok := row[key].(bool)
	return ok && value
}

func rowFloat(row map[string]any, key string) float64 {
	switch value := row[key].(type) {
	case float64:
		return value
	case int:
		return float64(value)
	case int64:
		return float64(value)
	case string:
		// numeric columns arrive as strings through some drivers
		parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}

func rowStringSlice(row map[string]any, key string) []string {
	raw, ok := row[key].([]any)
	if !ok {
		return nil
	}
	values := make([]string, 0, len(raw))
	for _, item := range raw {
		if value, ok := item.(string); ok && strings.TrimSpace(value) != "" {
			values = append(values, value)
		}
	}
	if len(values) == 0 {
		return nil
	}
	return values
}

func rowTime(row map[string]any, key string) time.Time {
	if at := rowTimePtr(row, key); at != nil {
		return *at
	}
	return time.Time{}
}

func rowTimePtr(row map[string]any, key string) *time.Time {
	value, ok := row[key].(string)
	if !ok || strings.TrimSpace(value) == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if at, err := time.Parse(layout, value); err == nil {
			return &at
		}
	}
	return nil
}
