package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIncrementFor(t *testing.T) {
	tiers := DefaultIncrementTiers()

	tests := []struct {
		price string
		want  string
	}{
		{price: "0", want: "5"},
		{price: "99.99", want: "5"},
		{price: "100", want: "10"},
		{price: "499", want: "10"},
		{price: "500", want: "25"},
		{price: "100000", want: "25"},
	}
	for _, tt := range tests {
		t.Run(tt.price, func(t *testing.T) {
			assert.True(t, IncrementFor(tiers, d(tt.price)).Equal(d(tt.want)))
		})
	}

	assert.True(t, IncrementFor(nil, d("10")).Equal(d("1")))
}
