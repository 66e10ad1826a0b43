package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRound(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"10", "10.00"},
		{"10.005", "10.01"},
		{"10.004", "10.00"},
		{"0.125", "0.13"},
		{"-0.125", "-0.13"},
		{"99.999", "100.00"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := Round(decimal.RequireFromString(tt.in))
			assert.Equal(t, tt.want, got.StringFixed(Places))
		})
	}
}

func TestShare(t *testing.T) {
	t.Run("ThirdHasEightDigits", func(t *testing.T) {
		got := Share(decimal.NewFromInt(1), decimal.NewFromInt(3))
		assert.Equal(t, "0.33333333", got.String())
	})

	t.Run("TwoThirdsRoundsUp", func(t *testing.T) {
		got := Share(decimal.NewFromInt(2), decimal.NewFromInt(3))
		assert.Equal(t, "0.66666667", got.String())
	})

	t.Run("ZeroWhole", func(t *testing.T) {
		got := Share(decimal.NewFromInt(5), decimal.Zero)
		assert.True(t, got.IsZero())
	})
}

func TestNonNegative(t *testing.T) {
	assert.True(t, NonNegative(decimal.NewFromInt(-3)).IsZero())
	assert.True(t, decimal.NewFromInt(3).Equal(NonNegative(decimal.NewFromInt(3))))
}

func TestSum(t *testing.T) {
	got := Sum([]decimal.Decimal{
		decimal.RequireFromString("1.10"),
		decimal.RequireFromString("2.20"),
	})
	assert.True(t, decimal.RequireFromString("3.30").Equal(got))
	assert.True(t, Sum(nil).IsZero())
}
