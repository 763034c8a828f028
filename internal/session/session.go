// Package session holds the payment-session coordination layer: one
// short-lived, strongly consistent record per checkout attempt. All
// operations on one paymentId serialize through that key's own lock, which is
// what makes the paid transition an exactly-once check-and-set without any
// database transaction; unrelated sessions never contend.
package session

import "time"

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusPaid       = "paid"
	StatusExpired    = "expired"
)

// ValidStatus reports whether s is a known session status.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusProcessing, StatusPaid, StatusExpired:
		return true
	}
	return false
}

// Session tracks one checkout attempt from creation to payment or expiry.
// ExpiresAt is fixed at creation; once Status reaches "paid" the session is
// immutable.
type Session struct {
	PaymentID string
	Status    string

	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt time.Time
	PaidAt    *time.Time

	UserEmail      string
	ProjectID      string
	PlanID         string
	ContractPlanID uint

	Amount       float64
	TokenAddress string
	TokenSymbol  string

	Metadata map[string]interface{}
	TxHash   string
}

// Expired reports whether the session is logically past its window at the
// given instant. A paid session never expires.
func (s *Session) Expired(now time.Time) bool {
	return s.Status != StatusPaid && !now.Before(s.ExpiresAt)
}

// Terminal reports whether no further transitions are possible.
func (s *Session) Terminal() bool {
	return s.Status == StatusPaid || s.Status == StatusExpired
}

func (s *Session) clone() Session {
	out := *s
	if s.Metadata != nil {
		out.Metadata = make(map[string]interface{}, len(s.Metadata))
		for k, v := range s.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// UpdateParams is the patch applied by Store.Update. Nil fields are left
// untouched; Metadata entries merge over existing keys.
type UpdateParams struct {
	Status   *string
	TxHash   *string
	Metadata map[string]interface{}
}
