package domain

// PotentialDuplicate pairs two client ids that look like the same person.
// Derived and non-persistent: its lifecycle is detect, then either dismiss
// (suppression persisted) or merge (duplicate removed).
type PotentialDuplicate struct {
	PrimaryID   string   `json:"primaryId"`
	DuplicateID string   `json:"duplicateId"`
	Score       float64  `json:"score"`
	Basis       []string `json:"basis,omitempty"`
}

// PairKey is the order-independent identity of a duplicate pair, used for
// dismissal tracking.
func (d PotentialDuplicate) PairKey() string {
	if d.PrimaryID < d.DuplicateID {
		return d.PrimaryID + ":" + d.DuplicateID
	}
	return d.DuplicateID + ":" + d.PrimaryID
}
