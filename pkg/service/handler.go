// Package service 与传输无关的定价服务：NATS、Kafka 和命令行都经由 Handler 调用定价引擎
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Mangekyo-Sharingan/BSM-sim/pkg/logx"
	"github.com/Mangekyo-Sharingan/BSM-sim/pkg/option"
	"github.com/Mangekyo-Sharingan/BSM-sim/pkg/option/mc"
	"github.com/Mangekyo-Sharingan/BSM-sim/pkg/pricing"
)

// Cache 确定性结果缓存。命中返回 ok=true；实现方自行处理过期
type Cache interface {
	Get(ctx context.Context, key string) (Response, bool, error)
	Set(ctx context.Context, key string, resp Response) error
}

// Handler 定价请求处理器，可并发调用
type Handler struct {
	engine *pricing.Engine
	cache  Cache
	logger logrus.FieldLogger
}

type HandlerOption func(*Handler)

// WithCache 启用结果缓存；只缓存确定性请求（解析定价或固定种子的模拟）
func WithCache(c Cache) HandlerOption {
	return func(h *Handler) { h.cache = c }
}

func WithLogger(l logrus.FieldLogger) HandlerOption {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

func NewHandler(engine *pricing.Engine, opts ...HandlerOption) *Handler {
	h := &Handler{engine: engine, logger: logx.Discard()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle 处理一个请求。错误不以 error 返回，而是写进 Response.Error
func (h *Handler) Handle(ctx context.Context, req Request) Response {
	start := time.Now()
	log := h.logger.WithFields(logrus.Fields{"id": req.ID, "op": req.Op})

	var key string
	if h.cache != nil && req.Deterministic() {
		key = CacheKey(req)
	}
	if key != "" {
		cached, ok, err := h.cache.Get(ctx, key)
		switch {
		case err != nil:
			log.WithError(err).Warn("[Service] cache get failed")
		case ok:
			cached.ID = req.ID
			cached.Cached = true
			log.Debug("[Service] cache hit")
			return cached
		}
	}

	resp, err := h.dispatch(ctx, req)
	if err != nil {
		e := toError(err)
		log.WithField("code", e.Code).WithError(err).Warn("[Service] request failed")
		return Response{ID: req.ID, Op: req.Op, Error: e}
	}
	resp.ID, resp.Op = req.ID, req.Op

	if key != "" {
		if err := h.cache.Set(ctx, key, resp); err != nil {
			log.WithError(err).Warn("[Service] cache set failed")
		}
	}
	log.WithField("elapsed", time.Since(start)).Info("[Service] request handled")
	return resp
}

// HandleJSON 解码请求、处理并编码应答，供消息类传输使用
func (h *Handler) HandleJSON(ctx context.Context, data []byte) []byte {
	var req Request
	var resp Response
	if err := json.Unmarshal(data, &req); err != nil {
		code := CodeBadRequest
		if errors.Is(err, option.ErrInvalidInput) {
			code = CodeInvalidInput
		}
		resp = Response{ID: req.ID, Op: req.Op, Error: &Error{Code: code, Message: err.Error()}}
	} else {
		resp = h.Handle(ctx, req)
	}
	out, err := json.Marshal(resp)
	if err != nil {
		// Response 只含有限浮点数和字符串，正常不会走到这里
		out, _ = json.Marshal(Response{ID: req.ID, Op: req.Op, Error: &Error{Code: CodeInternal, Message: err.Error()}})
	}
	return out
}

func (h *Handler) dispatch(ctx context.Context, req Request) (Response, error) {
	switch req.Op {
	case OpPrice:
		rep, err := h.engine.PriceAnalytic(req.Contract)
		if err != nil {
			return Response{}, err
		}
		return Response{Report: &rep}, nil

	case OpSimulate:
		rep, err := h.engine.PriceSimulated(ctx, req.Contract, req.simulation())
		if err != nil {
			return Response{}, err
		}
		return Response{Report: &rep}, nil

	case OpGreeks:
		mode, err := pricing.ParseMode(string(req.Mode))
		if err != nil {
			return Response{}, err
		}
		g, err := h.engine.Greeks(ctx, req.Contract, mode, req.Simulation)
		if err != nil {
			return Response{}, err
		}
		return Response{Greeks: &g}, nil

	case OpCrossCheck:
		cc, err := h.engine.CrossCheck(ctx, req.Contract, req.simulation())
		if err != nil {
			return Response{}, err
		}
		return Response{CrossCheck: &cc}, nil

	case OpConverge:
		points, err := h.engine.Convergence(ctx, req.Contract, req.simulation(), req.Sizes)
		if err != nil {
			return Response{}, err
		}
		return Response{Convergence: points}, nil

	case OpSweep:
		if req.Sweep == nil {
			return Response{}, badRequest("sweep parameters are required")
		}
		points, err := h.sweep(req.Contract, *req.Sweep)
		if err != nil {
			return Response{}, err
		}
		return Response{Sweep: points}, nil
	}
	return Response{}, badRequest(fmt.Sprintf("unknown op %q", req.Op))
}

func (h *Handler) sweep(c option.Contract, s SweepRequest) ([]pricing.SweepPoint, error) {
	switch s.Variable {
	case "volatility", "vol", "sigma":
		return h.engine.SweepVolatility(c, gridOr(s.Grid, pricing.DefaultVolatilityGrid))
	case "probability":
		return h.engine.SweepVolatility(c, gridOr(s.Grid, pricing.DefaultProbabilityGrid))
	case "strike":
		return h.engine.SweepStrike(c, gridOr(s.Grid, pricing.DefaultStrikeGrid))
	}
	return nil, badRequest(fmt.Sprintf("unknown sweep variable %q", s.Variable))
}

func gridOr(g *pricing.Grid, def pricing.Grid) pricing.Grid {
	if g == nil {
		return def
	}
	return *g
}

// simulation 请求未带模拟配置时使用默认配置
func (r Request) simulation() mc.Config {
	if r.Simulation == nil {
		return mc.DefaultConfig()
	}
	return *r.Simulation
}

// Deterministic 同样的请求是否必然得到同样的结果
func (r Request) Deterministic() bool {
	seeded := r.Simulation != nil && r.Simulation.Seed != nil
	switch r.Op {
	case OpPrice, OpSweep:
		return true
	case OpGreeks:
		return r.Mode == "" || r.Mode == pricing.ModeAnalytic || seeded
	case OpSimulate, OpCrossCheck, OpConverge:
		return seeded
	}
	return false
}

// CacheKey 请求的规范化摘要；ID 和 Workers 不影响结果，不参与计算。
// 无法编码的请求（如含 NaN）返回空串，不缓存
func CacheKey(r Request) string {
	r.ID = ""
	if r.Simulation != nil {
		sim := *r.Simulation
		sim.Workers = 0
		r.Simulation = &sim
	}
	b, err := json.Marshal(r)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return string(r.Op) + ":" + hex.EncodeToString(sum[:16])
}

// ============================================================================
// 错误映射
// ============================================================================

type badRequestError string

func (e badRequestError) Error() string { return string(e) }

func badRequest(msg string) error { return badRequestError(msg) }

func toError(err error) *Error {
	var bad badRequestError
	code := CodeInternal
	switch {
	case errors.As(err, &bad):
		code = CodeBadRequest
	case errors.Is(err, option.ErrInvalidInput):
		code = CodeInvalidInput
	case errors.Is(err, option.ErrConfiguration):
		code = CodeConfiguration
	case errors.Is(err, option.ErrNumericInstability):
		code = CodeNumericInstability
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		code = CodeCanceled
	}
	return &Error{Code: code, Message: err.Error()}
}
