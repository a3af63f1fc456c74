package model

import "time"

// Partner is a natural person with an ownership or management role in a company.
type Partner struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

// Company is a client entity in the partner registry. Payer identification
// matches statement descriptions against legal name, trade name and partners.
type Company struct {
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id"`
	LegalName string    `json:"legal_name"`
	TradeName string    `json:"trade_name"`
	TaxID     string    `json:"tax_id"`
	Partners  []Partner `json:"partners"`
	IsActive  bool      `json:"is_active"`
}

// CandidateMatch is one scored hit from the payer matcher.
type CandidateMatch struct {
	Name         string // Extracted name that produced the hit
	CompanyID    string
	CompanyName  string
	Relationship string // "company", "trade_name" or the partner's role
	Score        int    // 0-100
}

// Outstanding is an open receivable balance for a registry company, used by
// the group-payment waterfall.
type Outstanding struct {
	DueDate     time.Time
	CompanyID   string
	CompanyName string
	Amount      float64
	Remaining   float64
}
