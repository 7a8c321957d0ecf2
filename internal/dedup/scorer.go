package dedup

import (
	"strings"

	"github.com/mcjmccartney/rmr-core/internal/domain"
)

// Scorer rates how likely two client records describe the same person.
// Returns a score in [0, 1] and the basis fields that contributed. The exact
// algorithm is a pluggable policy; DefaultScorer is the shipped one.
type Scorer interface {
	Score(a, b domain.Client) (float64, []string)
}

// DefaultScorer weighs name, dog-name and contact proximity. Matching email
// or phone is close to conclusive on its own; name plus dog is suggestive.
type DefaultScorer struct{}

func (DefaultScorer) Score(a, b domain.Client) (float64, []string) {
	score := 0.0
	basis := make([]string, 0, 4)

	if fold(a.Email) != "" && fold(a.Email) == fold(b.Email) {
		score += 0.5
		basis = append(basis, "email")
	}
	if digits(a.Phone) != "" && digits(a.Phone) == digits(b.Phone) {
		score += 0.4
		basis = append(basis, "phone")
	}
	if nameScore := nameProximity(a, b); nameScore > 0 {
		score += nameScore
		basis = append(basis, "name")
	}
	if sharesDog(a, b) {
		score += 0.25
		basis = append(basis, "dog")
	}

	if score > 1 {
		score = 1
	}
	return score, basis
}

func nameProximity(a, b domain.Client) float64 {
	score := 0.0
	if fold(a.LastName) != "" && fold(a.LastName) == fold(b.LastName) {
		score += 0.3
	}
	if fold(a.FirstName) != "" && fold(a.FirstName) == fold(b.FirstName) {
		score += 0.2
	}
	return score
}

func sharesDog(a, b domain.Client) bool {
	theirs := map[string]struct{}{}
	for _, dog := range b.Dogs() {
		if fold(dog) != "" {
			theirs[fold(dog)] = struct{}{}
		}
	}
	for _, dog := range a.Dogs() {
		if _, ok := theirs[fold(dog)]; ok {
			return true
		}
	}
	return false
}

func fold(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func digits(value string) string {
	var builder strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			builder.WriteRune(r)
		}
	}
	return builder.String()
}
