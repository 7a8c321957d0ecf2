package dedup

import (
	"github.com/mcjmccartney/rmr-core/internal/domain"
)

// ConflictField is a field where primary and duplicate disagree. Suggested is
// a deterministic prefer-the-longer-value tie-break; the final choice stays
// with the caller.
type ConflictField struct {
	Field     string `json:"field"`
	Primary   string `json:"primary"`
	Duplicate string `json:"duplicate"`
	Suggested string `json:"suggested"`
}

// MergePreview is the computed merge of a candidate pair before execution.
type MergePreview struct {
	Primary   domain.Client   `json:"primary"`
	Duplicate domain.Client   `json:"duplicate"`
	Merged    domain.Client   `json:"merged"`
	Conflicts []ConflictField `json:"conflicts,omitempty"`
}

// MergeResult reports a merge execution. Steps already applied before a
// failure stay applied; re-running the merge converges because every step is
// a superset-preserving write.
type MergeResult struct {
	Success             bool   `json:"success"`
	TransferredSessions int    `json:"transferredSessions"`
	TransferredForms    int    `json:"transferredForms"`
	TransferredPayments int    `json:"transferredPayments"`
	AliasedEmails       int    `json:"aliasedEmails"`
	Err                 string `json:"error,omitempty"`
}

func computePreview(primary, duplicate domain.Client) MergePreview {
	merged := primary
	conflicts := make([]ConflictField, 0, 4)

	mergeString := func(field string, primaryValue, duplicateValue string, assign func(string)) {
		switch {
		case primaryValue == "" && duplicateValue != "":
			assign(duplicateValue)
		case primaryValue != "" && duplicateValue != "" && primaryValue != duplicateValue:
			conflicts = append(conflicts, ConflictField{
				Field:     field,
				Primary:   primaryValue,
				Duplicate: duplicateValue,
				Suggested: preferLonger(primaryValue, duplicateValue),
			})
		}
	}

	mergeString("firstName", primary.FirstName, duplicate.FirstName, func(v string) { merged.FirstName = v })
	mergeString("lastName", primary.LastName, duplicate.LastName, func(v string) { merged.LastName = v })
	mergeString("email", primary.Email, duplicate.Email, func(v string) { merged.Email = v })
	mergeString("phone", primary.Phone, duplicate.Phone, func(v string) { merged.Phone = v })
	mergeString("address", primary.Address, duplicate.Address, func(v string) { merged.Address = v })
	mergeString("dogName", primary.DogName, duplicate.DogName, func(v string) { merged.DogName = v })

	merged.OtherDogs = unionDogs(merged, duplicate)
	merged.Active = primary.Active || duplicate.Active
	merged.Membership = primary.Membership || duplicate.Membership
	if merged.BehaviouralBriefID == nil {
		merged.BehaviouralBriefID = duplicate.BehaviouralBriefID
	}
	if merged.BehaviourQuestionnaireID == nil {
		merged.BehaviourQuestionnaireID = duplicate.BehaviourQuestionnaireID
	}
	if merged.BookingTermsSignedAt == nil {
		merged.BookingTermsSignedAt = duplicate.BookingTermsSignedAt
	}

	return MergePreview{
		Primary:   primary,
		Duplicate: duplicate,
		Merged:    merged,
		Conflicts: conflicts,
	}
}

// preferLonger picks the longer string; on a length tie the primary's value
// wins, keeping the suggestion deterministic.
func preferLonger(primaryValue, duplicateValue string) string {
	if len(duplicateValue) > len(primaryValue) {
		return duplicateValue
	}
	return primaryValue
}

// unionDogs keeps the merged record's dog list a superset of both sides,
// order preserved, primary first, without duplicating the primary dog name.
func unionDogs(merged, duplicate domain.Client) []string {
	seen := map[string]struct{}{}
	if fold(merged.DogName) != "" {
		seen[fold(merged.DogName)] = struct{}{}
	}
	union := make([]string, 0, len(merged.OtherDogs)+len(duplicate.OtherDogs)+1)
	for _, dog := range merged.OtherDogs {
		if _, ok := seen[fold(dog)]; ok || fold(dog) == "" {
			continue
		}
		seen[fold(dog)] = struct{}{}
		union = append(union, dog)
	}
	for _, dog := range duplicate.Dogs() {
		if _, ok := seen[fold(dog)]; ok || fold(dog) == "" {
			continue
		}
		seen[fold(dog)] = struct{}{}
		union = append(union, dog)
	}
	if len(union) == 0 {
		return nil
	}
	return union
}

// applyResolutions overrides merged string fields with the caller's conflict
// choices, keyed by field name.
func applyResolutions(merged domain.Client, resolutions map[string]string) domain.Client {
	for field, value := range resolutions {
		switch field {
		case "firstName":
			merged.FirstName = value
		case "lastName":
			merged.LastName = value
		case "email":
			merged.Email = value
		case "phone":
			merged.Phone = value
		case "address":
			merged.Address = value
		case "dogName":
			merged.DogName = value
		}
	}
	return merged
}
