package sessions

import (
	"time"

	"chainbill-backend/internal/session"
)

// Metadata keys that must never leave the backend: raw delegation payloads
// and other signed artifacts stashed by the wallet layer during checkout.
var internalMetadataKeys = map[string]bool{
	"delegation":         true,
	"delegation_payload": true,
	"signature":          true,
}

// SessionResponse is the client-facing view of a payment session. Internal
// plan ids and delegation material are stripped before anything is returned.
type SessionResponse struct {
	PaymentID      string                 `json:"payment_id"`
	Status         string                 `json:"status"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
	ExpiresAt      time.Time              `json:"expires_at"`
	PaidAt         *time.Time             `json:"paid_at,omitempty"`
	UserEmail      string                 `json:"user_email"`
	ProjectID      string                 `json:"project_id"`
	ContractPlanID uint                   `json:"contract_plan_id"`
	Amount         float64                `json:"amount"`
	TokenAddress   string                 `json:"token_address"`
	TokenSymbol    string                 `json:"token_symbol"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	TxHash         string                 `json:"tx_hash,omitempty"`
}

func toResponse(s session.Session) SessionResponse {
	var meta map[string]interface{}
	if len(s.Metadata) > 0 {
		meta = make(map[string]interface{}, len(s.Metadata))
		for k, v := range s.Metadata {
			if internalMetadataKeys[k] {
				continue
			}
			meta[k] = v
		}
	}
	return SessionResponse{
		PaymentID:      s.PaymentID,
		Status:         s.Status,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
		ExpiresAt:      s.ExpiresAt,
		PaidAt:         s.PaidAt,
		UserEmail:      s.UserEmail,
		ProjectID:      s.ProjectID,
		ContractPlanID: s.ContractPlanID,
		Amount:         s.Amount,
		TokenAddress:   s.TokenAddress,
		TokenSymbol:    s.TokenSymbol,
		Metadata:       meta,
		TxHash:         s.TxHash,
	}
}
