package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mangekyo-Sharingan/BSM-sim/pkg/option"
	"github.com/Mangekyo-Sharingan/BSM-sim/pkg/option/mc"
	"github.com/Mangekyo-Sharingan/BSM-sim/pkg/pricing"
)

type memCache struct {
	mu     sync.Mutex
	data   map[string]Response
	gets   int
	failOn bool
}

func newMemCache() *memCache { return &memCache{data: make(map[string]Response)} }

func (m *memCache) Get(_ context.Context, key string) (Response, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.failOn {
		return Response{}, false, errors.New("cache down")
	}
	r, ok := m.data[key]
	return r, ok, nil
}

func (m *memCache) Set(_ context.Context, key string, r Response) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn {
		return errors.New("cache down")
	}
	m.data[key] = r
	return nil
}

func refContract() option.Contract {
	return option.Contract{Spot: 100, Strike: 100, Rate: 0.05, Volatility: 0.2, Expiry: 1, Kind: option.Call}
}

func seededSim(n int, seed uint64) *mc.Config {
	cfg := mc.DefaultConfig().WithPaths(n).WithSeed(seed)
	return &cfg
}

func newTestHandler(opts ...HandlerOption) *Handler {
	return NewHandler(pricing.NewEngine(), opts...)
}

func TestHandle_Ops(t *testing.T) {
	h := newTestHandler()
	ctx := context.Background()

	resp := h.Handle(ctx, Request{ID: "a", Op: OpPrice, Contract: refContract()})
	require.True(t, resp.OK(), "%+v", resp.Error)
	assert.Equal(t, "a", resp.ID)
	require.NotNil(t, resp.Report)
	assert.InDelta(t, 10.4506, resp.Report.Price, 1e-4)

	resp = h.Handle(ctx, Request{Op: OpSimulate, Contract: refContract(), Simulation: seededSim(50_000, 1)})
	require.True(t, resp.OK())
	assert.Equal(t, option.ModelMonteCarlo, resp.Report.Model)

	resp = h.Handle(ctx, Request{Op: OpGreeks, Contract: refContract()})
	require.True(t, resp.OK())
	assert.InDelta(t, 0.6368, resp.Greeks.Delta, 1e-4)

	resp = h.Handle(ctx, Request{Op: OpCrossCheck, Contract: refContract(), Simulation: seededSim(50_000, 2)})
	require.True(t, resp.OK())
	require.NotNil(t, resp.CrossCheck)

	resp = h.Handle(ctx, Request{Op: OpConverge, Contract: refContract(), Simulation: seededSim(0, 3), Sizes: []int{100, 1000}})
	require.True(t, resp.OK())
	assert.Len(t, resp.Convergence, 2)

	resp = h.Handle(ctx, Request{Op: OpSweep, Contract: refContract(), Sweep: &SweepRequest{Variable: "strike"}})
	require.True(t, resp.OK())
	assert.Len(t, resp.Sweep, 161)

	resp = h.Handle(ctx, Request{Op: OpSweep, Contract: refContract(), Sweep: &SweepRequest{
		Variable: "volatility", Grid: &pricing.Grid{Start: 0.1, Stop: 0.5, Step: 0.1},
	}})
	require.True(t, resp.OK())
	assert.Len(t, resp.Sweep, 4)
}

func TestHandle_ErrorCodes(t *testing.T) {
	h := newTestHandler()
	ctx := context.Background()

	cases := []struct {
		name string
		req  Request
		code string
	}{
		{"unknown op", Request{Op: "hedge", Contract: refContract()}, CodeBadRequest},
		{"missing sweep", Request{Op: OpSweep, Contract: refContract()}, CodeBadRequest},
		{"bad sweep variable", Request{Op: OpSweep, Contract: refContract(), Sweep: &SweepRequest{Variable: "rate"}}, CodeBadRequest},
		{"invalid contract", Request{Op: OpPrice, Contract: refContract().WithSpot(0)}, CodeInvalidInput},
		{"too few paths", Request{Op: OpSimulate, Contract: refContract(), Simulation: seededSim(1, 1)}, CodeConfiguration},
		{"bad mode", Request{Op: OpGreeks, Contract: refContract(), Mode: "tree"}, CodeConfiguration},
		{"numeric", Request{Op: OpPrice, Contract: refContract().WithVolatility(1e-320)}, CodeNumericInstability},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := h.Handle(ctx, tc.req)
			require.False(t, resp.OK())
			assert.Equal(t, tc.code, resp.Error.Code)
			assert.Nil(t, resp.Report)
		})
	}

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	resp := h.Handle(cctx, Request{Op: OpSimulate, Contract: refContract(), Simulation: seededSim(100_000, 1)})
	require.False(t, resp.OK())
	assert.Equal(t, CodeCanceled, resp.Error.Code)
}

func TestHandle_CachesDeterministicRequests(t *testing.T) {
	cache := newMemCache()
	h := newTestHandler(WithCache(cache))
	ctx := context.Background()

	req := Request{ID: "first", Op: OpSimulate, Contract: refContract(), Simulation: seededSim(20_000, 5)}
	first := h.Handle(ctx, req)
	require.True(t, first.OK())
	assert.False(t, first.Cached)

	// Workers 不同仍命中缓存
	req.ID = "second"
	req.Simulation.Workers = 7
	second := h.Handle(ctx, req)
	require.True(t, second.OK())
	assert.True(t, second.Cached)
	assert.Equal(t, "second", second.ID)
	assert.Equal(t, first.Report.Price, second.Report.Price)
	assert.Equal(t, first.Report.RunID, second.Report.RunID)

	// 缓存命中的报告沿用旧运行 ID，不再作为新报告发布
	assert.Same(t, first.Report, first.FreshReport())
	assert.Nil(t, second.FreshReport())

	// 不带种子的模拟不缓存
	unseeded := mc.DefaultConfig().WithPaths(1000)
	before := cache.gets
	resp := h.Handle(ctx, Request{Op: OpSimulate, Contract: refContract(), Simulation: &unseeded})
	require.True(t, resp.OK())
	assert.Equal(t, before, cache.gets)

	// 错误不缓存
	bad := Request{Op: OpPrice, Contract: refContract().WithStrike(-1)}
	h.Handle(ctx, bad)
	_, ok := cache.data[CacheKey(bad)]
	assert.False(t, ok)
}

func TestResponse_FreshReport(t *testing.T) {
	rep := &option.Report{RunID: "1"}
	assert.Same(t, rep, Response{Report: rep}.FreshReport())
	assert.Nil(t, Response{Report: rep, Cached: true}.FreshReport())
	assert.Nil(t, Response{Report: rep, Error: &Error{Code: CodeInternal}}.FreshReport())
	assert.Nil(t, Response{}.FreshReport())
}

func TestHandle_CacheFailureIsNotFatal(t *testing.T) {
	cache := newMemCache()
	cache.failOn = true
	h := newTestHandler(WithCache(cache))

	resp := h.Handle(context.Background(), Request{Op: OpPrice, Contract: refContract()})
	require.True(t, resp.OK())
	assert.False(t, resp.Cached)
}

func TestRequest_Deterministic(t *testing.T) {
	assert.True(t, Request{Op: OpPrice}.Deterministic())
	assert.True(t, Request{Op: OpGreeks}.Deterministic())
	assert.False(t, Request{Op: OpGreeks, Mode: pricing.ModeSimulated}.Deterministic())
	assert.True(t, Request{Op: OpGreeks, Mode: pricing.ModeSimulated, Simulation: seededSim(10, 1)}.Deterministic())
	assert.False(t, Request{Op: OpSimulate}.Deterministic())
	assert.True(t, Request{Op: OpConverge, Simulation: seededSim(10, 1)}.Deterministic())
	assert.False(t, Request{Op: "other"}.Deterministic())
}

func TestCacheKey(t *testing.T) {
	a := Request{ID: "1", Op: OpSimulate, Contract: refContract(), Simulation: seededSim(1000, 1)}
	b := Request{ID: "2", Op: OpSimulate, Contract: refContract(), Simulation: seededSim(1000, 1)}
	b.Simulation.Workers = 3
	assert.Equal(t, CacheKey(a), CacheKey(b))
	assert.Equal(t, 0, a.Simulation.Workers, "CacheKey must not mutate the request")

	c := Request{Op: OpSimulate, Contract: refContract(), Simulation: seededSim(1000, 2)}
	assert.NotEqual(t, CacheKey(a), CacheKey(c))
	assert.Contains(t, CacheKey(a), "simulate:")
}

func TestHandleJSON(t *testing.T) {
	h := newTestHandler()
	ctx := context.Background()

	out := h.HandleJSON(ctx, []byte(`{"id":"x","op":"price","contract":{"spot":100,"strike":100,"rate":0.05,"volatility":0.2,"expiry":1,"kind":"call"}}`))
	var resp Response
	require.NoError(t, json.Unmarshal(out, &resp))
	require.True(t, resp.OK())
	assert.Equal(t, "x", resp.ID)
	assert.InDelta(t, 10.4506, resp.Report.Price, 1e-4)

	out = h.HandleJSON(ctx, []byte(`{not json`))
	require.NoError(t, json.Unmarshal(out, &resp))
	require.False(t, resp.OK())
	assert.Equal(t, CodeBadRequest, resp.Error.Code)

	out = h.HandleJSON(ctx, []byte(`{"op":"price","contract":{"kind":"digital"}}`))
	resp = Response{}
	require.NoError(t, json.Unmarshal(out, &resp))
	require.False(t, resp.OK())
	assert.Equal(t, CodeInvalidInput, resp.Error.Code)
}
