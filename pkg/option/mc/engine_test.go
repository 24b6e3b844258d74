package mc

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mangekyo-Sharingan/BSM-sim/pkg/option"
	"github.com/Mangekyo-Sharingan/BSM-sim/pkg/option/bs"
)

const refCall = 10.450583572185565

func refContract(kind option.Kind) option.Contract {
	return option.Contract{Spot: 100, Strike: 100, Rate: 0.05, Volatility: 0.2, Expiry: 1, Kind: kind}
}

func seeded(n int, seed uint64) Config {
	return DefaultConfig().WithPaths(n).WithSeed(seed)
}

func TestSimulate_ReferenceCall(t *testing.T) {
	e := NewEngine()
	rep, err := e.Simulate(context.Background(), refContract(option.Call), seeded(200_000, 1))
	require.NoError(t, err)

	assert.Equal(t, option.ModelMonteCarlo, rep.Model)
	assert.Nil(t, rep.Greeks)
	require.NotNil(t, rep.ConfidenceInterval)
	require.NotNil(t, rep.Seed)
	assert.Equal(t, uint64(1), *rep.Seed)
	assert.Equal(t, 200_000, rep.Paths)

	assert.InDelta(t, refCall, rep.Price, 4*rep.StandardError)
	// 期权收益标准差约 14.7
	assert.InDelta(t, 14.7/math.Sqrt(200_000), rep.StandardError, 0.003)

	half := rep.ConfidenceInterval.Width() / 2
	assert.InDelta(t, 1.959963984540054*rep.StandardError, half, 1e-12)
}

func TestSimulate_PutWithDividend(t *testing.T) {
	c := option.Contract{Spot: 100, Strike: 110, Rate: 0.03, DividendYield: 0.04, Volatility: 0.3, Expiry: 2, Kind: option.Put}
	want, err := bs.Price(c)
	require.NoError(t, err)

	cfg := seeded(400_000, 9)
	cfg.VarianceReduction = option.VarianceAntithetic
	rep, err := NewEngine().Simulate(context.Background(), c, cfg)
	require.NoError(t, err)
	assert.InDelta(t, want, rep.Price, 4*rep.StandardError)
}

func TestSimulate_Reproducible(t *testing.T) {
	e := NewEngine()
	a, err := e.Simulate(context.Background(), refContract(option.Call), seeded(50_000, 77))
	require.NoError(t, err)
	b, err := e.Simulate(context.Background(), refContract(option.Call), seeded(50_000, 77))
	require.NoError(t, err)
	assert.Equal(t, a.Price, b.Price)
	assert.Equal(t, a.StandardError, b.StandardError)

	c, err := e.Simulate(context.Background(), refContract(option.Call), seeded(50_000, 78))
	require.NoError(t, err)
	assert.NotEqual(t, a.Price, c.Price)
}

func TestSimulate_WorkerCountInvariant(t *testing.T) {
	e := NewEngine()
	var prices, ses []float64
	for _, workers := range []int{1, 2, 3, 8, 32} {
		cfg := seeded(100_003, 12345)
		cfg.Workers = workers
		cfg.BlockSize = 4096
		rep, err := e.Simulate(context.Background(), refContract(option.Call), cfg)
		require.NoError(t, err)
		prices = append(prices, rep.Price)
		ses = append(ses, rep.StandardError)
	}
	for i := 1; i < len(prices); i++ {
		assert.Equal(t, prices[0], prices[i], "price differs at worker config %d", i)
		assert.Equal(t, ses[0], ses[i])
	}
}

func TestSimulate_StandardErrorScaling(t *testing.T) {
	e := NewEngine()
	small, err := e.Simulate(context.Background(), refContract(option.Call), seeded(10_000, 3))
	require.NoError(t, err)
	large, err := e.Simulate(context.Background(), refContract(option.Call), seeded(1_000_000, 3))
	require.NoError(t, err)

	// 路径数扩大 100 倍，标准误缩小约 10 倍
	ratio := small.StandardError / large.StandardError
	assert.InDelta(t, 10, ratio, 1.5)
}

func TestSimulate_AntitheticReducesError(t *testing.T) {
	e := NewEngine()
	plain, err := e.Simulate(context.Background(), refContract(option.Call), seeded(200_000, 5))
	require.NoError(t, err)

	cfg := seeded(200_000, 5)
	cfg.VarianceReduction = option.VarianceAntithetic
	anti, err := e.Simulate(context.Background(), refContract(option.Call), cfg)
	require.NoError(t, err)

	assert.Equal(t, option.VarianceAntithetic, anti.VarianceReduction)
	assert.Less(t, anti.StandardError, plain.StandardError)
	assert.InDelta(t, refCall, anti.Price, 4*anti.StandardError)
}

func TestSimulate_Degenerate(t *testing.T) {
	// sigma=0 时每条路径收益相同，估计值等于确定性价格，标准误为 0
	c := refContract(option.Call).WithVolatility(0).WithStrike(90)
	want, err := bs.Price(c)
	require.NoError(t, err)

	rep, err := NewEngine().Simulate(context.Background(), c, seeded(1000, 1))
	require.NoError(t, err)
	assert.InDelta(t, want, rep.Price, 1e-9)
	assert.InDelta(t, 0, rep.StandardError, 1e-6)

	rep, err = NewEngine().Simulate(context.Background(), refContract(option.Call).WithExpiry(0), seeded(1000, 1))
	require.NoError(t, err)
	assert.Equal(t, 0.0, rep.Price)
}

func TestSimulate_ConfigErrors(t *testing.T) {
	e := NewEngine()
	c := refContract(option.Call)

	_, err := e.Simulate(context.Background(), c, seeded(1, 1))
	require.ErrorIs(t, err, option.ErrInsufficientSamples)
	require.ErrorIs(t, err, option.ErrConfiguration)

	cfg := seeded(1001, 1)
	cfg.VarianceReduction = option.VarianceAntithetic
	_, err = e.Simulate(context.Background(), c, cfg)
	require.ErrorIs(t, err, option.ErrConfiguration)
	assert.False(t, errors.Is(err, option.ErrInsufficientSamples))

	for _, level := range []float64{-0.1, 1, 1.5} {
		cfg := seeded(1000, 1)
		cfg.ConfidenceLevel = level
		_, err = e.Simulate(context.Background(), c, cfg)
		require.ErrorIs(t, err, option.ErrConfiguration, "level=%v", level)
	}

	cfg = seeded(1000, 1)
	cfg.VarianceReduction = "control_variate"
	_, err = e.Simulate(context.Background(), c, cfg)
	require.ErrorIs(t, err, option.ErrConfiguration)

	_, err = e.Simulate(context.Background(), c.WithSpot(-5), seeded(1000, 1))
	require.ErrorIs(t, err, option.ErrInvalidInput)
}

func TestSimulate_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep, err := NewEngine().Simulate(ctx, refContract(option.Call), seeded(1_000_000, 1))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, option.Report{}, rep)
}

func TestSimulate_RandomSeedRecorded(t *testing.T) {
	rep, err := NewEngine().Simulate(context.Background(), refContract(option.Call), DefaultConfig().WithPaths(1000))
	require.NoError(t, err)
	require.NotNil(t, rep.Seed)

	// 用记录下来的种子可以复现
	again, err := NewEngine().Simulate(context.Background(), refContract(option.Call), seeded(1000, *rep.Seed))
	require.NoError(t, err)
	assert.Equal(t, rep.Price, again.Price)
}

func TestBound_Price(t *testing.T) {
	e := NewEngine()
	b := e.Bind(DefaultConfig().WithPaths(20_000))
	require.NotNil(t, b.Config().Seed, "Bind must fix the seed")

	p1, err := b.Price(context.Background(), refContract(option.Call))
	require.NoError(t, err)
	p2, err := b.Price(context.Background(), refContract(option.Call))
	require.NoError(t, err)
	assert.Equal(t, p1, p2)

	rep, err := e.Simulate(context.Background(), refContract(option.Call), b.Config())
	require.NoError(t, err)
	assert.Equal(t, rep.Price, p1)
}

func TestConvergence(t *testing.T) {
	points, err := NewEngine().Convergence(context.Background(), refContract(option.Call), seeded(0, 8), []int{1_000, 10_000, 100_000})
	require.NoError(t, err)
	require.Len(t, points, 3)

	for i, p := range points {
		assert.Equal(t, refCall, p.Analytic)
		assert.InDelta(t, math.Abs(p.Price-refCall), p.AbsError, 1e-15)
		if i > 0 {
			assert.Less(t, p.StandardError, points[i-1].StandardError)
		}
	}

	_, err = NewEngine().Convergence(context.Background(), refContract(option.Call), seeded(0, 8), []int{1})
	require.ErrorIs(t, err, option.ErrInsufficientSamples)
}

func TestSimulate_ConfidenceIntervalCoverage(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping 100-trial coverage study in short mode")
	}
	e := NewEngine()
	covered := 0
	for seed := uint64(0); seed < 100; seed++ {
		cfg := seeded(1_000_000, seed)
		cfg.VarianceReduction = option.VarianceAntithetic
		rep, err := e.Simulate(context.Background(), refContract(option.Call), cfg)
		require.NoError(t, err)
		if rep.ConfidenceInterval.Contains(refCall) {
			covered++
		}
	}
	assert.GreaterOrEqual(t, covered, 90)
}

func BenchmarkSimulate(b *testing.B) {
	e := NewEngine()
	cfg := seeded(100_000, 1)
	for b.Loop() {
		if _, err := e.Simulate(context.Background(), refContract(option.Call), cfg); err != nil {
			b.Fatal(err)
		}
	}
}
