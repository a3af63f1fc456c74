package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClosingStatusTransitions(t *testing.T) {
	tests := []struct {
		from    ClosingStatus
		to      ClosingStatus
		allowed bool
	}{
		{ClosingOpen, ClosingClassifying, true},
		{ClosingOpen, ClosingClosed, false},
		{ClosingClassifying, ClosingValidating, true},
		{ClosingClassifying, ClosingClosed, false},
		{ClosingValidating, ClosingClosed, true},
		{ClosingValidating, ClosingBlocked, true},
		{ClosingBlocked, ClosingValidating, true},
		{ClosingBlocked, ClosingClassifying, true},
		{ClosingBlocked, ClosingClosed, false},
		{ClosingClosed, ClosingOpen, false},
		{ClosingClosed, ClosingValidating, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.allowed, tt.from.CanTransition(tt.to),
			"%s -> %s", tt.from, tt.to)
	}
}
