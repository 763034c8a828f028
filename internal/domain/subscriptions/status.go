package subscriptions

import "time"

// DerivedStatus recomputes the subscription status at read time instead of
// trusting the stored column. There is no background sweeper flipping rows to
// expired or cancelled; this derivation substitutes for it.
//
// A cancelled subscription keeps reporting "active" until its cancellation
// takes effect at the end of the billing period already paid for.
func (s *Subscription) DerivedStatus(now time.Time) string {
	if s.CancelledAt != nil && s.CancellationEffectiveAt != nil && !now.Before(*s.CancellationEffectiveAt) {
		return StatusCancelled
	}
	if now.After(s.NextPaymentDate) {
		return StatusExpired
	}
	if s.Status == StatusCancelled {
		// Cancelled but still inside the paid-for period: grace window.
		return StatusActive
	}
	return s.Status
}

// IsCurrentlyActive reports whether the subscription still covers the caller
// at the given instant, grace period included.
func (s *Subscription) IsCurrentlyActive(now time.Time) bool {
	return s.DerivedStatus(now) == StatusActive
}
