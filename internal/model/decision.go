package model

// EntryType values describe what kind of bookkeeping event a decision posts.
const (
	EntryOpeningBalance  = "opening_balance"
	EntryRevenueReceipt  = "revenue_receipt"
	EntryRelatedParty    = "related_party_advance"
	EntryBankFee         = "bank_fee"
	EntryTransfer        = "transfer"
	EntrySupplierPayment = "supplier_payment"
	EntryExpense         = "expense"
	EntryInvestment      = "investment"
	EntryGroupPayment    = "group_payment"
	EntryUnclassified    = "unclassified"
)

// Decision is the outcome of classifying one bank transaction. Reasoning is
// always populated so every decision can be audited afterwards.
type Decision struct {
	DebitAccount      string
	DebitAccountName  string
	CreditAccount     string
	CreditAccountName string
	EntryType         string
	Description       string
	Question          string
	Reasoning         string
	RuleName          string
	Options           []string
	Matches           []CandidateMatch
	Confidence        float64
	NeedsConfirmation bool
	Redirect          bool
}

// Postable reports whether the decision carries a full account pair and can be
// turned into a ledger entry without further input.
func (d *Decision) Postable() bool {
	return !d.Redirect && !d.NeedsConfirmation &&
		d.DebitAccount != "" && d.CreditAccount != ""
}
