package discount

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Config holds the rule parameters. It is loaded once at startup.
type Config struct {
	PremiumUser    PremiumUserConfig
	HighValueOrder HighValueOrderConfig
	HighLineItem   HighLineItemConfig
}

// PremiumUserConfig configures PremiumUserRate.
type PremiumUserConfig struct {
	Enabled bool   `default:"true" usage:"Enable the premium user discount"`
	Rate    string `default:"0.10" usage:"Fraction of subtotal granted to premium users"`
}

// HighValueOrderConfig configures HighValueOrderRate.
type HighValueOrderConfig struct {
	Enabled   bool   `default:"true" usage:"Enable the high value order discount"`
	Threshold string `default:"500" usage:"Subtotal above which the discount applies"`
	Rate      string `default:"0.05" usage:"Fraction of subtotal granted above the threshold"`
}

// HighLineItemConfig configures HighLineItemFlatAmount.
type HighLineItemConfig struct {
	Enabled   bool   `default:"true" usage:"Enable the per-line flat discount"`
	Threshold string `default:"100" usage:"Line total above which a line qualifies"`
	Amount    string `default:"50" usage:"Flat amount granted per qualifying line"`
}

// DefaultConfig returns the built-in rule parameters.
func DefaultConfig() Config {
	return Config{
		PremiumUser:    PremiumUserConfig{Enabled: true, Rate: "0.10"},
		HighValueOrder: HighValueOrderConfig{Enabled: true, Threshold: "500", Rate: "0.05"},
		HighLineItem:   HighLineItemConfig{Enabled: true, Threshold: "100", Amount: "50"},
	}
}

// Rules parses the configuration into rules, skipping disabled ones.
func (c Config) Rules() ([]Rule, error) {
	var rules []Rule

	if c.PremiumUser.Enabled {
		rate, err := parseRate("premium user rate", c.PremiumUser.Rate)
		if err != nil {
			return nil, err
		}
		rules = append(rules, &PremiumUserRate{Rate: rate})
	}

	if c.HighValueOrder.Enabled {
		threshold, err := parseAmount("high value order threshold", c.HighValueOrder.Threshold)
		if err != nil {
			return nil, err
		}
		rate, err := parseRate("high value order rate", c.HighValueOrder.Rate)
		if err != nil {
			return nil, err
		}
		rules = append(rules, &HighValueOrderRate{Threshold: threshold, Rate: rate})
	}

	if c.HighLineItem.Enabled {
		threshold, err := parseAmount("high line item threshold", c.HighLineItem.Threshold)
		if err != nil {
			return nil, err
		}
		amount, err := parseAmount("high line item amount", c.HighLineItem.Amount)
		if err != nil {
			return nil, err
		}
		rules = append(rules, &HighLineItemFlatAmount{Threshold: threshold, Amount: amount})
	}

	return rules, nil
}

// NewChainFromConfig builds the chain described by c.
func NewChainFromConfig(c Config) (*Chain, error) {
	rules, err := c.Rules()
	if err != nil {
		return nil, err
	}
	return NewChain(rules...), nil
}

func parseAmount(name, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "parse %s", name)
	}
	if d.IsNegative() {
		return decimal.Zero, errors.Errorf("%s must not be negative, got %s", name, s)
	}
	return d, nil
}

func parseRate(name, s string) (decimal.Decimal, error) {
	d, err := parseAmount(name, s)
	if err != nil {
		return decimal.Zero, err
	}
	if d.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero, errors.Errorf("%s must be at most 1, got %s", name, s)
	}
	return d, nil
}
