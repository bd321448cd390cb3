// Package money holds monetary amounts as decimals so that conversion to
// minor currency units rounds the way a cashier would.
package money

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"
)

// minorUnitExponent is the number of decimal places in a minor unit (fils, cents).
const minorUnitExponent = 2

// Money is a major-unit amount, e.g. 19.99.
type Money struct {
	d decimal.Decimal
}

func Parse(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("parse money %q: %w", s, err)
	}
	return Money{d: d}, nil
}

// MustParse is Parse for constants and tests.
func MustParse(s string) Money {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

func (m Money) Decimal() decimal.Decimal { return m.d }

func (m Money) Float64() float64 {
	f, _ := m.d.Float64()
	return f
}

func (m Money) String() string { return m.d.String() }

// MinorUnits converts to an integer count of minor units, rounding half away
// from zero: 19.995 becomes 2000.
func (m Money) MinorUnits() int64 {
	return m.d.Shift(minorUnitExponent).Round(0).IntPart()
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.d.String()), nil
}

func (m *Money) UnmarshalJSON(b []byte) error {
	return m.d.UnmarshalJSON(b)
}

func (m Money) MarshalDynamoDBAttributeValue() (types.AttributeValue, error) {
	return &types.AttributeValueMemberN{Value: m.d.String()}, nil
}

func (m *Money) UnmarshalDynamoDBAttributeValue(av types.AttributeValue) error {
	switch v := av.(type) {
	case *types.AttributeValueMemberN:
		d, err := decimal.NewFromString(v.Value)
		if err != nil {
			return fmt.Errorf("decode money: %w", err)
		}
		m.d = d
		return nil
	case *types.AttributeValueMemberNULL:
		m.d = decimal.Zero
		return nil
	default:
		return fmt.Errorf("decode money: unexpected attribute type %T", av)
	}
}
