// Package report 把定价结果渲染成定点小数的文本表格
package report

import (
	"fmt"
	"io"
	"math"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"github.com/Mangekyo-Sharingan/BSM-sim/pkg/option"
	"github.com/Mangekyo-Sharingan/BSM-sim/pkg/option/mc"
	"github.com/Mangekyo-Sharingan/BSM-sim/pkg/pricing"
)

// DefaultPlaces 默认保留小数位
const DefaultPlaces int32 = 6

// Fixed 定点格式化；非有限值原样输出
func Fixed(x float64, places int32) string {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return fmt.Sprint(x)
	}
	return decimal.NewFromFloat(x).StringFixed(places)
}

type table struct {
	tw     *tabwriter.Writer
	places int32
	err    error
}

func newTable(w io.Writer, places int32) *table {
	return &table{tw: tabwriter.NewWriter(w, 0, 0, 2, ' ', 0), places: places}
}

func (t *table) row(cells ...string) {
	if t.err != nil {
		return
	}
	for i, c := range cells {
		sep := "\t"
		if i == len(cells)-1 {
			sep = "\n"
		}
		if _, err := io.WriteString(t.tw, c+sep); err != nil {
			t.err = err
			return
		}
	}
}

func (t *table) num(x float64) string { return Fixed(x, t.places) }

func (t *table) flush() error {
	if t.err != nil {
		return t.err
	}
	return t.tw.Flush()
}

// WriteReport 纵向输出一份报告
func WriteReport(w io.Writer, r option.Report, places int32) error {
	t := newTable(w, places)
	if r.RunID != "" {
		t.row("run_id", r.RunID)
	}
	t.row("model", string(r.Model))
	t.row("contract", r.Contract.String())
	t.row("price", t.num(r.Price))
	if r.Simulated() {
		t.row("standard_error", t.num(r.StandardError))
		if r.ConfidenceInterval != nil {
			t.row(fmt.Sprintf("ci_%s%%", decimal.NewFromFloat(r.ConfidenceLevel*100).String()),
				fmt.Sprintf("[%s, %s]", t.num(r.ConfidenceInterval.Lower), t.num(r.ConfidenceInterval.Upper)))
		}
		t.row("paths", fmt.Sprint(r.Paths))
		t.row("variance_reduction", string(r.VarianceReduction))
		if r.Seed != nil {
			t.row("seed", fmt.Sprint(*r.Seed))
		}
	}
	if r.Greeks != nil {
		writeGreekRows(t, *r.Greeks)
	}
	t.row("elapsed", r.Elapsed.String())
	return t.flush()
}

// WriteGreeks 输出 Greeks
func WriteGreeks(w io.Writer, g option.Greeks, places int32) error {
	t := newTable(w, places)
	writeGreekRows(t, g)
	return t.flush()
}

func writeGreekRows(t *table, g option.Greeks) {
	m := g.Map()
	for _, name := range option.GreekNames {
		t.row(name, t.num(m[name]))
	}
}

// WriteCrossCheck 解析价与模拟价对照
func WriteCrossCheck(w io.Writer, cc pricing.CrossCheck, places int32) error {
	t := newTable(w, places)
	t.row("analytic", t.num(cc.Analytic.Price))
	t.row("monte_carlo", t.num(cc.Simulated.Price))
	t.row("standard_error", t.num(cc.Simulated.StandardError))
	t.row("difference", t.num(cc.Difference))
	t.row("z_score", Fixed(cc.ZScore, 3))
	t.row("covered", fmt.Sprint(cc.Covered))
	return t.flush()
}

// WriteConvergence 收敛性研究结果，每个路径数一行
func WriteConvergence(w io.Writer, points []mc.ConvergencePoint, places int32) error {
	t := newTable(w, places)
	t.row("paths", "price", "std_error", "ci_lower", "ci_upper", "abs_error", "covered", "elapsed")
	for _, p := range points {
		t.row(fmt.Sprint(p.Paths), t.num(p.Price), t.num(p.StandardError),
			t.num(p.ConfidenceInterval.Lower), t.num(p.ConfidenceInterval.Upper),
			t.num(p.AbsError), fmt.Sprint(p.Covered), p.Elapsed.String())
	}
	return t.flush()
}

// WriteSweep 敏感性扫描结果；label 是扫描变量名
func WriteSweep(w io.Writer, label string, points []pricing.SweepPoint, places int32) error {
	t := newTable(w, places)
	t.row(label, "price", "probability")
	for _, p := range points {
		t.row(Fixed(p.X, 4), t.num(p.Price), t.num(p.Probability))
	}
	return t.flush()
}
