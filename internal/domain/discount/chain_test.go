package discount

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-orders/internal/domain/auth"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func lines(vals ...string) []decimal.Decimal {
	out := make([]decimal.Decimal, len(vals))
	for i, v := range vals {
		out[i] = d(v)
	}
	return out
}

func flatOver100() *HighLineItemFlatAmount {
	return &HighLineItemFlatAmount{Threshold: d("100"), Amount: d("50")}
}

func rateOver500() *HighValueOrderRate {
	return &HighValueOrderRate{Threshold: d("500"), Rate: d("0.05")}
}

func premium10() *PremiumUserRate {
	return &PremiumUserRate{Rate: d("0.10")}
}

// recordingRule records the order in which rules run.
type recordingRule struct {
	name     string
	priority int
	add      decimal.Decimal
	signal   Signal
	log      *[]string
}

func (r *recordingRule) Name() string  { return r.name }
func (r *recordingRule) Priority() int { return r.priority }

func (r *recordingRule) Apply(c *Context) Signal {
	*r.log = append(*r.log, r.name)
	c.Add(r.add)
	return r.signal
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name     string
		rules    []Rule
		role     auth.Role
		subtotal string
		lines    []decimal.Decimal
		want     string
	}{
		{
			name:     "SingleQualifyingLine",
			rules:    []Rule{flatOver100()},
			role:     auth.RoleUser,
			subtotal: "150",
			lines:    lines("150"),
			want:     "50",
		},
		{
			name:     "RateRuleBelowThreshold",
			rules:    []Rule{rateOver500(), flatOver100()},
			role:     auth.RoleUser,
			subtotal: "150",
			lines:    lines("150"),
			want:     "50",
		},
		{
			name:     "TwoQualifyingLines",
			rules:    []Rule{flatOver100()},
			role:     auth.RoleUser,
			subtotal: "250",
			lines:    lines("120", "130"),
			want:     "100",
		},
		{
			name:     "LineAtThresholdDoesNotQualify",
			rules:    []Rule{flatOver100()},
			role:     auth.RoleUser,
			subtotal: "100",
			lines:    lines("100"),
			want:     "0",
		},
		{
			name:     "PremiumUser",
			rules:    []Rule{premium10()},
			role:     auth.RolePremiumUser,
			subtotal: "100",
			lines:    lines("100"),
			want:     "10",
		},
		{
			name:     "PremiumRateIgnoredForOrdinaryUser",
			rules:    []Rule{premium10()},
			role:     auth.RoleUser,
			subtotal: "100",
			lines:    lines("100"),
			want:     "0",
		},
		{
			name:     "AdminIsNotPremium",
			rules:    []Rule{premium10()},
			role:     auth.RoleAdmin,
			subtotal: "100",
			lines:    lines("100"),
			want:     "0",
		},
		{
			name:     "SubtotalAtHighValueThreshold",
			rules:    []Rule{rateOver500()},
			role:     auth.RoleUser,
			subtotal: "500",
			lines:    lines("500"),
			want:     "0",
		},
		{
			name:     "AllRulesAccumulate",
			rules:    []Rule{flatOver100(), rateOver500(), premium10()},
			role:     auth.RolePremiumUser,
			subtotal: "600",
			lines:    lines("200", "400"),
			want:     "190",
		},
		{
			name:     "MayExceedSubtotal",
			rules:    []Rule{flatOver100()},
			role:     auth.RoleUser,
			subtotal: "101",
			lines:    lines("101", "101"),
			want:     "100",
		},
		{
			name:     "ZeroSubtotal",
			rules:    []Rule{premium10(), flatOver100()},
			role:     auth.RolePremiumUser,
			subtotal: "0",
			lines:    lines("150"),
			want:     "0",
		},
		{
			name:     "NegativeSubtotal",
			rules:    []Rule{premium10()},
			role:     auth.RolePremiumUser,
			subtotal: "-10",
			lines:    nil,
			want:     "0",
		},
		{
			name:     "NoRules",
			rules:    nil,
			role:     auth.RolePremiumUser,
			subtotal: "1000",
			lines:    lines("1000"),
			want:     "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := NewChain(tt.rules...)
			got := chain.Evaluate(tt.role, d(tt.subtotal), tt.lines)
			assert.True(t, d(tt.want).Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestEvaluate_RunsInPriorityOrder(t *testing.T) {
	var log []string
	chain := NewChain(
		&recordingRule{name: "third", priority: 3, log: &log},
		&recordingRule{name: "first", priority: 1, log: &log},
		&recordingRule{name: "second-a", priority: 2, log: &log},
		&recordingRule{name: "second-b", priority: 2, log: &log},
	)

	chain.Evaluate(auth.RoleUser, d("10"), nil)

	assert.Equal(t, []string{"first", "second-a", "second-b", "third"}, log)
	assert.Equal(t, log, chain.Rules())
}

func TestEvaluate_StopKeepsAccumulated(t *testing.T) {
	var log []string
	chain := NewChain(
		&recordingRule{name: "a", priority: 1, add: d("5"), log: &log},
		&recordingRule{name: "b", priority: 2, add: d("7"), signal: Stop, log: &log},
		&recordingRule{name: "c", priority: 3, add: d("100"), log: &log},
	)

	got := chain.Evaluate(auth.RoleUser, d("50"), nil)

	assert.True(t, d("12").Equal(got))
	assert.Equal(t, []string{"a", "b"}, log)
}

func TestEvaluate_ZeroSubtotalSkipsRules(t *testing.T) {
	var log []string
	chain := NewChain(&recordingRule{name: "a", priority: 1, add: d("5"), log: &log})

	got := chain.Evaluate(auth.RoleUser, decimal.Zero, nil)

	assert.True(t, got.IsZero())
	assert.Empty(t, log)
}

func TestContext_AddIgnoresNonPositive(t *testing.T) {
	c := NewContext(auth.RoleUser, d("100"), nil)

	c.Add(d("3"))
	c.Add(decimal.Zero)
	c.Add(d("-10"))
	c.Add(d("0.5"))

	assert.True(t, d("3.5").Equal(c.Total()))
}

func TestSignal_String(t *testing.T) {
	assert.Equal(t, "continue", Continue.String())
	assert.Equal(t, "stop", Stop.String())
}

func TestNewChain_DoesNotAliasInput(t *testing.T) {
	rules := []Rule{flatOver100(), premium10()}
	chain := NewChain(rules...)

	rules[0] = rateOver500()

	require.Equal(t, []string{"premium_user_rate", "high_line_item_flat_amount"}, chain.Rules())
}
