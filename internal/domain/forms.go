package domain

import "time"

// BehaviouralBrief is the short intake form submitted before a first booking.
// ClientID is nil until the submission is matched to a client by id, email or
// (email, dog name).
type BehaviouralBrief struct {
	ID          string    `json:"id"`
	ClientID    *string   `json:"clientId,omitempty"`
	Email       string    `json:"email"`
	DogName     string    `json:"dogName"`
	LifeWithDog string    `json:"lifeWithDog,omitempty"`
	BestOutcome string    `json:"bestOutcome,omitempty"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// BehaviourQuestionnaire is the long intake questionnaire.
type BehaviourQuestionnaire struct {
	ID           string    `json:"id"`
	ClientID     *string   `json:"clientId,omitempty"`
	Email        string    `json:"email"`
	DogName      string    `json:"dogName"`
	DogAge       string    `json:"dogAge,omitempty"`
	DogBreed     string    `json:"dogBreed,omitempty"`
	MainConcern  string    `json:"mainConcern,omitempty"`
	IdealOutcome string    `json:"idealOutcome,omitempty"`
	SubmittedAt  time.Time `json:"submittedAt"`
}
