package domain

import (
	"errors"
	"testing"
)

func TestSessionTypeValidity(t *testing.T) {
	for _, valid := range []SessionType{
		SessionInPerson, SessionOnline, SessionTraining, SessionOnlineCatchup,
		SessionGroup, SessionPhoneCall, SessionCoaching, SessionLive,
	} {
		if !valid.Valid() {
			t.Fatalf("%q should be valid", valid)
		}
	}
	if SessionType("Seminar").Valid() {
		t.Fatal("unknown type accepted")
	}
	if SessionGroup.RequiresClient() || SessionLive.RequiresClient() {
		t.Fatal("group and live sessions may be unowned")
	}
	if !SessionInPerson.RequiresClient() {
		t.Fatal("in-person sessions must reference a client")
	}
}

func TestBookingLayouts(t *testing.T) {
	if !ValidBookingDate("2025-06-01") || ValidBookingDate("01/06/2025") {
		t.Fatal("booking date layout check wrong")
	}
	if !ValidBookingTime("09:05") || ValidBookingTime("9am") {
		t.Fatal("booking time layout check wrong")
	}
}

func TestSessionUpdateApplyTo(t *testing.T) {
	prior := Session{ID: "s1", Notes: "old", Quote: 50, SessionType: SessionOnline}
	newNotes := "new"
	zeroQuote := 0.0
	next := SessionUpdate{Notes: &newNotes, Quote: &zeroQuote}.ApplyTo(prior)

	if next.Notes != "new" {
		t.Fatalf("notes not applied: %q", next.Notes)
	}
	if next.Quote != 0 {
		t.Fatal("pointer to zero value must clear the field")
	}
	if next.SessionType != SessionOnline || next.ID != "s1" {
		t.Fatal("untouched fields must carry over")
	}
	if prior.Notes != "old" {
		t.Fatal("ApplyTo must not mutate the prior value")
	}
}

func TestSessionUpdateChangedFields(t *testing.T) {
	date := "2025-06-02"
	paid := true
	fields := SessionUpdate{BookingDate: &date, SessionPaid: &paid}.ChangedFields()
	if len(fields) != 2 || fields[0] != "bookingDate" || fields[1] != "sessionPaid" {
		t.Fatalf("unexpected fields %v", fields)
	}
	if got := (SessionUpdate{}).ChangedFields(); len(got) != 0 {
		t.Fatalf("empty update must report no fields, got %v", got)
	}
}

func TestPotentialDuplicatePairKeyIsOrderIndependent(t *testing.T) {
	a := PotentialDuplicate{PrimaryID: "c2", DuplicateID: "c1"}
	b := PotentialDuplicate{PrimaryID: "c1", DuplicateID: "c2"}
	if a.PairKey() != b.PairKey() {
		t.Fatalf("pair keys differ: %q vs %q", a.PairKey(), b.PairKey())
	}
}

func TestClientHelpers(t *testing.T) {
	client := Client{FirstName: "Jo", LastName: "Hart", DogName: "Rex", OtherDogs: []string{"Biscuit"}}
	if client.FullName() != "Jo Hart" {
		t.Fatalf("unexpected full name %q", client.FullName())
	}
	if name := (Client{Email: "jo@example.com"}).FullName(); name != "jo@example.com" {
		t.Fatalf("nameless client should fall back to email, got %q", name)
	}
	dogs := client.Dogs()
	if len(dogs) != 2 || dogs[0] != "Rex" || dogs[1] != "Biscuit" {
		t.Fatalf("unexpected dogs %v", dogs)
	}
}

func TestErrorTaxonomy(t *testing.T) {
	var err error = &ValidationError{Field: "quote", Reason: "must not be negative"}
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatal("validation errors must match ErrInvalidInput")
	}
	transport := &TransportError{Op: "calendar update", Err: errors.New("connection reset")}
	if !Retryable(transport) {
		t.Fatal("transport errors are retryable")
	}
	if Retryable(&RemoteError{Op: "calendar update", StatusCode: 404}) {
		t.Fatal("remote errors are not retryable")
	}
}
