package plans

import "time"

type Plan struct {
	ID        string `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ProjectID string `gorm:"type:uuid;not null;uniqueIndex:idx_plans_project_contract_plan"`
	Name      string

	// Plan id assigned by the subscription manager contract; the tuple
	// (project_id, contract_plan_id) identifies a plan from checkout payloads.
	ContractPlanID uint `gorm:"column:contract_plan_id;not null;uniqueIndex:idx_plans_project_contract_plan"`

	Amount       float64
	TokenAddress string `gorm:"column:token_address;not null"`
	TokenSymbol  string `gorm:"column:token_symbol;not null"`
	PeriodDays   int    `gorm:"column:period_days;not null"`
	Active       bool   `gorm:"not null;default:true"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Period is the billing interval used to advance NextPaymentDate.
func (p *Plan) Period() time.Duration {
	return time.Duration(p.PeriodDays) * 24 * time.Hour
}
