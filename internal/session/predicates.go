package session

import "github.com/mcjmccartney/rmr-core/internal/domain"

// Calendar-relevant and notification-relevant change predicates are separate
// concerns: calendar fidelity versus customer communication. Their field sets
// coincide under the current policy but they must stay independently
// evolvable, so they are never merged into one check.

// DateChanged reports whether the update requests a booking date different
// from the prior stored value.
func DateChanged(update domain.SessionUpdate, prior domain.Session) bool {
	return update.BookingDate != nil && *update.BookingDate != prior.BookingDate
}

// TimeChanged reports whether the update requests a booking time different
// from the prior stored value.
func TimeChanged(update domain.SessionUpdate, prior domain.Session) bool {
	return update.BookingTime != nil && *update.BookingTime != prior.BookingTime
}

// SessionTypeChanged reports whether the update requests a session type
// different from the prior stored value.
func SessionTypeChanged(update domain.SessionUpdate, prior domain.Session) bool {
	return update.SessionType != nil && *update.SessionType != prior.SessionType
}

var notificationFields = map[string]struct{}{
	"sessionType": {},
	"bookingDate": {},
	"bookingTime": {},
}

// NotificationRelevant reports whether any of the touched field names falls
// in the booking-terms notification allow-list. Unlike the calendar
// predicates it never compares values: re-submitting the current booking
// date still re-sends the terms, while the calendar stays untouched.
func NotificationRelevant(changedFields []string) bool {
	for _, field := range changedFields {
		if _, ok := notificationFields[field]; ok {
			return true
		}
	}
	return false
}
