package option

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseContract() Contract {
	return Contract{Spot: 100, Strike: 100, Rate: 0.05, Volatility: 0.2, Expiry: 1, Kind: Call}
}

func TestContract_Validate(t *testing.T) {
	cases := []struct {
		name  string
		mut   func(c Contract) Contract
		field string
	}{
		{"zero spot", func(c Contract) Contract { return c.WithSpot(0) }, "spot"},
		{"negative spot", func(c Contract) Contract { return c.WithSpot(-1) }, "spot"},
		{"zero strike", func(c Contract) Contract { return c.WithStrike(0) }, "strike"},
		{"negative vol", func(c Contract) Contract { return c.WithVolatility(-0.1) }, "volatility"},
		{"negative expiry", func(c Contract) Contract { return c.WithExpiry(-1) }, "expiry"},
		{"nan rate", func(c Contract) Contract { return c.WithRate(math.NaN()) }, "rate"},
		{"inf spot", func(c Contract) Contract { return c.WithSpot(math.Inf(1)) }, "spot"},
		{"bad kind", func(c Contract) Contract { return c.WithKind("straddle") }, "kind"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.mut(baseContract()).Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidInput))

			var ie *InputError
			require.True(t, errors.As(err, &ie))
			assert.Equal(t, tc.field, ie.Field)
		})
	}

	require.NoError(t, baseContract().Validate())
	// 负利率、零波动、零期限都合法
	require.NoError(t, baseContract().WithRate(-0.01).WithVolatility(0).WithExpiry(0).Validate())
}

func TestContract_WithHelpersDoNotMutate(t *testing.T) {
	c := baseContract()
	_ = c.WithSpot(1).WithVolatility(2).WithExpiry(3).WithRate(4)
	assert.Equal(t, baseContract(), c)
}

func TestContract_Forward(t *testing.T) {
	c := baseContract()
	c.DividendYield = 0.02
	assert.InDelta(t, 100*math.Exp(0.03), c.Forward(), 1e-12)
	assert.Equal(t, 100.0, c.WithExpiry(0).Forward())
}

func TestKind_UnmarshalJSON(t *testing.T) {
	var c Contract
	require.NoError(t, json.Unmarshal([]byte(`{"spot":1,"strike":1,"kind":"P"}`), &c))
	assert.Equal(t, Put, c.Kind)

	err := json.Unmarshal([]byte(`{"kind":"binary"}`), &c)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidInput))

	// 空串和 null 是零值，解码成功但校验失败
	for _, body := range []string{`{"kind":""}`, `{"kind":null}`} {
		var z Contract
		require.NoError(t, json.Unmarshal([]byte(body), &z), body)
		assert.Equal(t, Kind(""), z.Kind)
		assert.ErrorIs(t, z.Validate(), ErrInvalidInput)
	}
}

func TestReport_ZeroValueRoundTrip(t *testing.T) {
	b, err := json.Marshal(Report{RunID: "77", Model: ModelAnalytic, Price: 10.45})
	require.NoError(t, err)

	var r Report
	require.NoError(t, json.Unmarshal(b, &r))
	assert.Equal(t, "77", r.RunID)
	assert.Equal(t, 10.45, r.Price)
	assert.Equal(t, Contract{}, r.Contract)
}

func TestErrors_Hierarchy(t *testing.T) {
	assert.True(t, errors.Is(ErrInsufficientSamples, ErrConfiguration))
	assert.False(t, errors.Is(ErrConfiguration, ErrInsufficientSamples))

	ne := &NumericError{Contract: baseContract(), Quantity: "d1", Value: math.Inf(1)}
	assert.True(t, errors.Is(ne, ErrNumericInstability))
	assert.Contains(t, ne.Error(), "d1")

	ce := NewConfigError("paths", "must be >= 2", ErrInsufficientSamples)
	assert.True(t, errors.Is(ce, ErrConfiguration))
	assert.True(t, errors.Is(ce, ErrInsufficientSamples))
}

func TestNormal_Functions(t *testing.T) {
	assert.InDelta(t, 0.5, NormCDF(0), 1e-15)
	assert.InDelta(t, 1/math.Sqrt(2*math.Pi), NormPDF(0), 1e-15)
	assert.InDelta(t, 1.959963984540054, CriticalValue(0.95), 1e-9)
	assert.InDelta(t, 2.5758293035489, CriticalValue(0.99), 1e-9)

	// 远尾：1 - Φ(8) ≈ 6.22e-16，走 erfc 时相对误差很小
	tail := NormCDF(-8)
	assert.InEpsilon(t, 6.220960574271785e-16, tail, 1e-8)

	assert.True(t, math.IsNaN(NormQuantile(0)))
	assert.True(t, math.IsNaN(NormQuantile(1)))
}

func TestInterval(t *testing.T) {
	iv := Interval{Lower: 1, Upper: 3}
	assert.True(t, iv.Contains(1))
	assert.True(t, iv.Contains(3))
	assert.False(t, iv.Contains(3.0001))
	assert.Equal(t, 2.0, iv.Width())
}

func TestReport_JSONOmitsAnalyticFields(t *testing.T) {
	g := Greeks{Delta: 0.5}
	r := Report{Model: ModelAnalytic, Contract: baseContract(), Price: 10, Greeks: &g}
	b, err := json.Marshal(r)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.NotContains(t, m, "confidence_interval")
	assert.Contains(t, m, "standard_error")
	assert.Contains(t, m, "greeks")
	assert.Equal(t, "analytic", m["model"])
}
