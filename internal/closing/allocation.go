// Package closing implements the month-closing governance workflow and the
// group-payment waterfall.
package closing

import (
	"sort"

	"github.com/amplafin/contaflow/internal/model"
)

// Allocation records how much of a payment was applied to one receivable.
type Allocation struct {
	Outstanding model.Outstanding
	Applied     float64
}

// Allocate distributes a payment across open receivables, oldest due date
// first. It returns the per-balance applications and the unallocated
// remainder; callers must record the remainder as a credit balance, never
// drop it. The function is pure: inputs are not modified.
func Allocate(payment float64, balances []model.Outstanding) ([]Allocation, float64) {
	allocations := []Allocation{}
	if payment <= 0 {
		return allocations, payment
	}

	ordered := make([]model.Outstanding, len(balances))
	copy(ordered, balances)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].DueDate.Before(ordered[j].DueDate)
	})

	remaining := payment
	for _, balance := range ordered {
		if remaining < model.BalanceEpsilon {
			break
		}
		if balance.Remaining <= 0 {
			continue
		}

		applied := balance.Remaining
		if applied > remaining {
			applied = remaining
		}
		allocations = append(allocations, Allocation{
			Outstanding: balance,
			Applied:     applied,
		})
		remaining -= applied
	}

	if remaining < model.BalanceEpsilon {
		remaining = 0
	}
	return allocations, remaining
}
