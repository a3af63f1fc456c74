package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/amplafin/contaflow/internal/common"
)

// Accounts holds the chart-of-accounts codes the classifier posts against.
type Accounts struct {
	Bank                string `yaml:"bank"`
	BankName            string `yaml:"bank_name"`
	Cash                string `yaml:"cash"`
	CashName            string `yaml:"cash_name"`
	Receivables         string `yaml:"receivables"`
	ReceivablesName     string `yaml:"receivables_name"`
	RelatedParty        string `yaml:"related_party"`
	RelatedPartyName    string `yaml:"related_party_name"`
	SuspenseDebit       string `yaml:"suspense_debit"`
	SuspenseDebitName   string `yaml:"suspense_debit_name"`
	SuspenseCredit      string `yaml:"suspense_credit"`
	SuspenseCreditName  string `yaml:"suspense_credit_name"`
	Suppliers           string `yaml:"suppliers"`
	SuppliersName       string `yaml:"suppliers_name"`
	ServiceRevenue      string `yaml:"service_revenue"`
	ServiceRevenueName  string `yaml:"service_revenue_name"`
	OtherRevenue        string `yaml:"other_revenue"`
	OtherRevenueName    string `yaml:"other_revenue_name"`
	BankFees            string `yaml:"bank_fees"`
	BankFeesName        string `yaml:"bank_fees_name"`
	OtherExpenses       string `yaml:"other_expenses"`
	OtherExpensesName   string `yaml:"other_expenses_name"`
	OpeningBalances     string `yaml:"opening_balances"`
	OpeningBalancesName string `yaml:"opening_balances_name"`
	Investments         string `yaml:"investments"`
	InvestmentsName     string `yaml:"investments_name"`
}

// NameFor returns the configured display name for an account code, or the
// empty string when the code is not part of the chart.
func (a *Accounts) NameFor(code string) string {
	switch code {
	case a.Bank:
		return a.BankName
	case a.Cash:
		return a.CashName
	case a.Receivables:
		return a.ReceivablesName
	case a.RelatedParty:
		return a.RelatedPartyName
	case a.SuspenseDebit:
		return a.SuspenseDebitName
	case a.SuspenseCredit:
		return a.SuspenseCreditName
	case a.Suppliers:
		return a.SuppliersName
	case a.ServiceRevenue:
		return a.ServiceRevenueName
	case a.OtherRevenue:
		return a.OtherRevenueName
	case a.BankFees:
		return a.BankFeesName
	case a.OtherExpenses:
		return a.OtherExpensesName
	case a.OpeningBalances:
		return a.OpeningBalancesName
	case a.Investments:
		return a.InvestmentsName
	}
	return ""
}

// RelatedParty is one entry of the beneficial-owner table. Descriptions that
// match a related party are booked as advances, never as revenue.
type RelatedParty struct {
	Name        string `yaml:"name"`
	Account     string `yaml:"account"`
	AccountName string `yaml:"account_name"`
}

// OpeningWindow is the cutover period during which incoming credits are
// treated as opening balance transfers from the previous bookkeeping system.
type OpeningWindow struct {
	Start time.Time `yaml:"start"`
	End   time.Time `yaml:"end"`
}

// Contains reports whether the date falls inside the window.
func (w OpeningWindow) Contains(date time.Time) bool {
	return !date.Before(w.Start) && !date.After(w.End)
}

// Classification is the versioned domain data the decision pipeline depends
// on: reserved keywords, the related-party table, heuristic keyword lists and
// the chart-of-accounts seed. It ships with built-in defaults and can be
// overridden from a YAML file so keyword changes are reviewable.
type Classification struct {
	OpeningWindow    OpeningWindow  `yaml:"opening_window"`
	Accounts         Accounts       `yaml:"accounts"`
	ReservedKeywords []string       `yaml:"reserved_keywords"`
	RelatedParties   []RelatedParty `yaml:"related_parties"`
	FeeKeywords      []string       `yaml:"fee_keywords"`
	TransferKeywords []string       `yaml:"transfer_keywords"`
	AutoThreshold    float64        `yaml:"auto_threshold"`
	Version          int            `yaml:"version"`
}

// DefaultClassification returns the built-in domain data.
func DefaultClassification() Classification {
	return Classification{
		Version:       1,
		AutoThreshold: 0.8,
		OpeningWindow: OpeningWindow{
			Start: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2025, 1, 31, 23, 59, 59, 0, time.UTC),
		},
		ReservedKeywords: []string{
			"pix", "ted", "doc", "transf", "transferencia", "deposito",
			"recebido", "recebimento", "enviado", "pagamento", "pgto",
			"banco", "bco", "itau", "bradesco", "santander", "caixa",
			"sicredi", "sicoob", "nubank", "inter", "original", "safra",
			"brasil", "ltda", "eireli", "mei", "epp", "cia", "sa",
		},
		FeeKeywords: []string{
			"tarifa", "taxa", "iof", "anuidade", "manutencao", "cesta",
			"pacote de servicos", "juros",
		},
		TransferKeywords: []string{
			"pix", "ted", "doc", "transf",
		},
		RelatedParties: []RelatedParty{
			{Name: "sergio leao", Account: "1.1.3.01", AccountName: "Advances to Related Parties"},
			{Name: "adriana leao", Account: "1.1.3.01", AccountName: "Advances to Related Parties"},
			{Name: "leao filho", Account: "1.1.3.01", AccountName: "Advances to Related Parties"},
		},
		Accounts: Accounts{
			Bank:                "1.1.1.02",
			BankName:            "Bank Accounts",
			Cash:                "1.1.1.01",
			CashName:            "Cash",
			Receivables:         "1.1.2.01",
			ReceivablesName:     "Accounts Receivable",
			RelatedParty:        "1.1.3.01",
			RelatedPartyName:    "Advances to Related Parties",
			SuspenseDebit:       "1.1.9.01",
			SuspenseDebitName:   "Suspense Debits",
			SuspenseCredit:      "2.1.9.01",
			SuspenseCreditName:  "Suspense Credits",
			Suppliers:           "2.1.1.01",
			SuppliersName:       "Suppliers",
			ServiceRevenue:      "3.1.1.01",
			ServiceRevenueName:  "Service Revenue",
			OtherRevenue:        "3.1.2.01",
			OtherRevenueName:    "Other Revenue",
			BankFees:            "4.1.3.01",
			BankFeesName:        "Bank Fees",
			OtherExpenses:       "4.1.2.99",
			OtherExpensesName:   "Other Operating Expenses",
			OpeningBalances:     "5.2.1.02",
			OpeningBalancesName: "Opening Balances",
			Investments:         "1.2.1.01",
			InvestmentsName:     "Investments",
		},
	}
}

// LoadClassification reads a versioned YAML override file. Missing file is not
// an error; the defaults apply.
func LoadClassification(path string) (Classification, error) {
	cfg := DefaultClassification()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading classification config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: parsing %s: %v", common.ErrInvalidConfig, path, err)
	}
	if cfg.Version < 1 {
		return cfg, fmt.Errorf("%w: classification config needs a version", common.ErrInvalidConfig)
	}
	if cfg.AutoThreshold <= 0 || cfg.AutoThreshold > 1 {
		return cfg, fmt.Errorf("%w: auto_threshold must be in (0, 1]", common.ErrInvalidConfig)
	}

	return cfg, nil
}
