package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/Mangekyo-Sharingan/BSM-sim/pkg/config"
	"github.com/Mangekyo-Sharingan/BSM-sim/pkg/logx"
	"github.com/Mangekyo-Sharingan/BSM-sim/pkg/pricing"
	"github.com/Mangekyo-Sharingan/BSM-sim/pkg/report"
	"github.com/Mangekyo-Sharingan/BSM-sim/pkg/runid"
	"github.com/Mangekyo-Sharingan/BSM-sim/pkg/service"
)

const usage = `usage: bsm <command> [flags]

commands:
  price       analytic price and closed-form greeks
  simulate    Monte Carlo price with standard error and confidence interval
  greeks      greeks by --mode analytic|simulated
  crosscheck  analytic vs Monte Carlo with z-score
  converge    Monte Carlo convergence over path counts
  sweep       price and exercise probability over a volatility or strike grid
  serve       run the pricing service (NATS request/reply, Kafka, Redis cache)

run "bsm <command> --help" for flags`

// errUsage 参数或配置错误，退出码 2
var errUsage = errors.New("usage error")

func main() {
	if len(os.Args) < 2 || os.Args[1] == "-h" || os.Args[1] == "--help" {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args[1], os.Args[2:], os.Stdout)
	stop()

	switch {
	case err == nil:
	case errors.Is(err, pflag.ErrHelp):
	case errors.Is(err, errUsage):
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	default:
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// =============================================================================
// 命令行参数
// =============================================================================

type cliFlags struct {
	fs *pflag.FlagSet

	configPath string
	output     string
	places     int32

	// greeks
	mode string
	// converge
	sizes []int
	// sweep
	variable     string
	from, to, by float64
}

func newFlags(name string) *cliFlags {
	f := &cliFlags{fs: pflag.NewFlagSet(name, pflag.ContinueOnError)}
	fs := f.fs

	fs.StringVar(&f.configPath, "config", "", "config file (yaml/toml/json)")
	fs.String("log-level", "", "log level (debug, info, warn, error)")
	fs.String("log-format", "", "log format (text, json)")

	// 未显式给出的参数取配置/环境变量中的值
	fs.Float64("spot", 0, "spot price S (default from config: 50)")
	fs.Float64("strike", 0, "strike K (default from config: 61)")
	fs.Float64("rate", 0, "risk-free rate r, continuous (default from config: 0.06)")
	fs.Float64("dividend", 0, "dividend yield q, continuous")
	fs.Float64("vol", 0, "volatility sigma (default from config: 0.24)")
	fs.Float64("expiry", 0, "time to expiry T in years (default from config: 2)")
	fs.String("kind", "", "call or put")

	fs.Int("paths", 0, "Monte Carlo paths")
	fs.String("seed", "", "Monte Carlo seed (random when empty)")
	fs.Bool("antithetic", false, "antithetic variates")
	fs.Float64("confidence-level", 0, "confidence level in (0,1)")
	fs.Int("workers", 0, "worker goroutines (default GOMAXPROCS)")
	fs.Int("block-size", 0, "paths per seeded block")
	fs.Float64("step", 0, "relative finite-difference step for greeks")

	fs.StringVarP(&f.output, "output", "o", "table", "output format: table or json")
	fs.Int32Var(&f.places, "places", report.DefaultPlaces, "decimal places in table output")

	switch name {
	case "greeks":
		fs.StringVar(&f.mode, "mode", string(pricing.ModeAnalytic), "analytic or simulated")
	case "converge":
		fs.IntSliceVar(&f.sizes, "sizes", nil, "path counts (default 1e2..1e7)")
	case "sweep":
		fs.StringVar(&f.variable, "variable", "volatility", "volatility, probability or strike")
		fs.Float64Var(&f.from, "from", 0, "grid start (default per variable)")
		fs.Float64Var(&f.to, "to", 0, "grid stop, exclusive")
		fs.Float64Var(&f.by, "by", 0, "grid step")
	case "serve":
		fs.String("nats-url", "", "NATS server URL")
		fs.String("redis-addr", "", "Redis address for the report cache")
	}
	return f
}

func (f *cliFlags) grid() *pricing.Grid {
	if f.from == 0 && f.to == 0 && f.by == 0 {
		return nil
	}
	return &pricing.Grid{Start: f.from, Stop: f.to, Step: f.by}
}

// =============================================================================
// 命令分发
// =============================================================================

func run(ctx context.Context, name string, args []string, stdout io.Writer) error {
	ops := map[string]service.Op{
		"price":      service.OpPrice,
		"simulate":   service.OpSimulate,
		"greeks":     service.OpGreeks,
		"crosscheck": service.OpCrossCheck,
		"converge":   service.OpConverge,
		"sweep":      service.OpSweep,
	}
	op, known := ops[name]
	if !known && name != "serve" {
		return fmt.Errorf("%w: unknown command %q\n\n%s", errUsage, name, usage)
	}

	f := newFlags(name)
	if err := f.fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return err
		}
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if f.output != "table" && f.output != "json" {
		return fmt.Errorf("%w: unknown output format %q", errUsage, f.output)
	}

	cfg, err := config.Load(f.configPath, f.fs)
	if err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	logger, closer, err := logx.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	defer closer.Close()

	if err := runid.Init(cfg.NodeID); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	engine := pricing.NewEngine(pricing.WithLogger(logger), pricing.WithStep(cfg.GreeksStep))

	if name == "serve" {
		return serve(ctx, cfg, engine, logger)
	}

	req, err := buildRequest(cfg, f, op)
	if err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	resp := service.NewHandler(engine, service.WithLogger(logger)).Handle(ctx, req)
	if !resp.OK() {
		return fmt.Errorf("%s: %s", resp.Error.Code, resp.Error.Message)
	}
	return render(stdout, f, resp)
}

func buildRequest(cfg *config.Config, f *cliFlags, op service.Op) (service.Request, error) {
	contract, err := cfg.DefaultContract()
	if err != nil {
		return service.Request{}, err
	}
	sim, err := cfg.MonteCarlo()
	if err != nil {
		return service.Request{}, err
	}
	req := service.Request{
		ID:         runid.New(),
		Op:         op,
		Contract:   contract,
		Simulation: &sim,
		Mode:       pricing.Mode(f.mode),
		Sizes:      f.sizes,
	}
	if op == service.OpSweep {
		req.Sweep = &service.SweepRequest{Variable: strings.ToLower(f.variable), Grid: f.grid()}
	}
	return req, nil
}

func render(w io.Writer, f *cliFlags, resp service.Response) error {
	if f.output == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	switch {
	case resp.Report != nil:
		return report.WriteReport(w, *resp.Report, f.places)
	case resp.Greeks != nil:
		return report.WriteGreeks(w, *resp.Greeks, f.places)
	case resp.CrossCheck != nil:
		return report.WriteCrossCheck(w, *resp.CrossCheck, f.places)
	case resp.Convergence != nil:
		return report.WriteConvergence(w, resp.Convergence, f.places)
	case resp.Sweep != nil:
		label := "volatility"
		if f.variable == "strike" {
			label = "strike"
		}
		return report.WriteSweep(w, label, resp.Sweep, f.places)
	}
	return nil
}

// fields 启动日志里常用的字段
func fields(cfg *config.Config) logrus.Fields {
	return logrus.Fields{
		"node_id": cfg.NodeID,
		"nats":    cfg.NATS.Enabled,
		"kafka":   cfg.Kafka.Enabled,
		"redis":   cfg.Redis.Enabled,
	}
}
