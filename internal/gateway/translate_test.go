package gateway

import (
	"testing"
	"time"

	"github.com/mcjmccartney/rmr-core/internal/domain"
)

func TestTranslateClientRow(t *testing.T) {
	row := map[string]any{
		"id":                   "c1",
		"first_name":           "Jo",
		"last_name":            "Hart",
		"email":                "jo@example.com",
		"dog_name":             "Rex",
		"other_dogs":           []any{"Biscuit", ""},
		"active":               true,
		"membership":           false,
		"behavioural_brief_id": "b1",
	}
	client, err := TranslateClientRow(row)
	if err != nil {
		t.Fatalf("TranslateClientRow: %v", err)
	}
	if client.ID != "c1" || client.FirstName != "Jo" || client.DogName != "Rex" {
		t.Fatalf("unexpected client %+v", client)
	}
	if len(client.OtherDogs) != 1 || client.OtherDogs[0] != "Biscuit" {
		t.Fatalf("blank list entries must be dropped, got %v", client.OtherDogs)
	}
	if client.BehaviouralBriefID == nil || *client.BehaviouralBriefID != "b1" {
		t.Fatal("brief id pointer not translated")
	}
	if client.BehaviourQuestionnaireID != nil {
		t.Fatal("absent field must translate to nil")
	}
}

func TestTranslateClientRowRequiresID(t *testing.T) {
	if _, err := TranslateClientRow(map[string]any{"first_name": "Jo"}); err == nil {
		t.Fatal("row without id must be rejected")
	}
}

func TestTranslateSessionRowNumericStrings(t *testing.T) {
	row := map[string]any{
		"id":           "s1",
		"session_type": "Online",
		"booking_date": "2025-06-01",
		"booking_time": "14:30",
		"quote":        "75.50",
	}
	session, err := TranslateSessionRow(row)
	if err != nil {
		t.Fatalf("TranslateSessionRow: %v", err)
	}
	if session.Quote != 75.50 {
		t.Fatalf("string numeric not parsed, got %v", session.Quote)
	}
	if session.SessionType != domain.SessionOnline {
		t.Fatalf("unexpected session type %q", session.SessionType)
	}
}

func TestTranslatePaymentRowTimestamps(t *testing.T) {
	row := map[string]any{
		"id":      "p1",
		"email":   "jo@example.com",
		"paid_at": "2025-06-01T10:00:00Z",
		"amount":  25.0,
	}
	payment, err := TranslatePaymentRow(row)
	if err != nil {
		t.Fatalf("TranslatePaymentRow: %v", err)
	}
	want := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	if !payment.Date.Equal(want) {
		t.Fatalf("timestamp not parsed, got %v", payment.Date)
	}
}

func TestTranslateTimeAcceptsDateOnly(t *testing.T) {
	row := map[string]any{"id": "p1", "paid_at": "2025-06-01"}
	payment, err := TranslatePaymentRow(row)
	if err != nil {
		t.Fatalf("TranslatePaymentRow: %v", err)
	}
	if payment.Date.IsZero() {
		t.Fatal("date-only timestamp should still parse")
	}
	if garbage := rowTimePtr(map[string]any{"at": "yesterday"}, "at"); garbage != nil {
		t.Fatal("unparseable timestamp must translate to nil")
	}
}

func TestRowID(t *testing.T) {
	if RowID(map[string]any{"id": "x"}) != "x" {
		t.Fatal("id not extracted")
	}
	if RowID(map[string]any{"id": 7}) != "" {
		t.Fatal("non-string id must yield empty")
	}
}
