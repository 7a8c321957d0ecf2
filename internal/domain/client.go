package domain

import (
	"strings"
	"time"
)

// Client is a practice client record. ID is immutable and globally unique.
type Client struct {
	ID                       string     `json:"id"`
	FirstName                string     `json:"firstName"`
	LastName                 string     `json:"lastName"`
	Email                    string     `json:"email"`
	Phone                    string     `json:"phone"`
	Address                  string     `json:"address,omitempty"`
	DogName                  string     `json:"dogName"`
	OtherDogs                []string   `json:"otherDogs,omitempty"`
	Active                   bool       `json:"active"`
	Membership               bool       `json:"membership"`
	BehaviouralBriefID       *string    `json:"behaviouralBriefId,omitempty"`
	BehaviourQuestionnaireID *string    `json:"behaviourQuestionnaireId,omitempty"`
	BookingTermsSignedAt     *time.Time `json:"bookingTermsSignedAt,omitempty"`
}

func (c Client) FullName() string {
	name := strings.TrimSpace(c.FirstName + " " + c.LastName)
	if name == "" {
		return c.Email
	}
	return name
}

// Dogs returns the primary dog followed by any additional dogs, order preserved.
func (c Client) Dogs() []string {
	dogs := make([]string, 0, 1+len(c.OtherDogs))
	if strings.TrimSpace(c.DogName) != "" {
		dogs = append(dogs, c.DogName)
	}
	dogs = append(dogs, c.OtherDogs...)
	return dogs
}

// EmailAlias maps a historical email address to one client identity so
// membership payments and intake forms arriving under an old address still
// resolve.
type EmailAlias struct {
	ID        string `json:"id"`
	ClientID  string `json:"clientId"`
	Email     string `json:"email"`
	IsPrimary bool   `json:"isPrimary"`
}

type MembershipPayment struct {
	ID     string    `json:"id"`
	Email  string    `json:"email"`
	Date   time.Time `json:"date"`
	Amount float64   `json:"amount"`
}

type MembershipStatus struct {
	Active    bool       `json:"active"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// MembershipPolicy computes a client's membership status from their payment
// history. The expiration rule lives outside this core.
type MembershipPolicy func(client Client, payments []MembershipPayment) MembershipStatus
