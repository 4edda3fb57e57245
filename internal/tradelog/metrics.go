package tradelog

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

// Metrics summarizes realized trades and the equity curve. Percent fields
// are in percent.
type Metrics struct {
	TotalTrades  int     `json:"total_trades"`
	Wins         int     `json:"wins"`
	Losses       int     `json:"losses"`
	WinRate      float64 `json:"win_rate"`
	AvgWin       float64 `json:"avg_win"`
	AvgLoss      float64 `json:"avg_loss"`
	ProfitFactor float64 `json:"profit_factor"`
	Sharpe       float64 `json:"sharpe_ratio"`
	MaxDrawdown  float64 `json:"max_drawdown"`
	TotalReturn  float64 `json:"total_return"`
	RealizedPnL  float64 `json:"realized_pnl"`
}

// ComputeMetrics derives Metrics from exit records and snapshots. Open
// records are ignored. periodsPerYear annualizes the Sharpe ratio.
func ComputeMetrics(trades []domain.TradeRecord, snaps []domain.PerformanceSnapshot, initial, periodsPerYear float64) Metrics {
	var m Metrics
	var grossWin, grossLoss float64
	for _, t := range trades {
		if t.Event == domain.TradeOpen {
			continue
		}
		m.TotalTrades++
		m.RealizedPnL += t.PnLDollars
		if t.PnLDollars > 0 {
			m.Wins++
			grossWin += t.PnLDollars
		} else {
			m.Losses++
			grossLoss -= t.PnLDollars
		}
	}
	if m.TotalTrades > 0 {
		m.WinRate = float64(m.Wins) / float64(m.TotalTrades) * 100
	}
	if m.Wins > 0 {
		m.AvgWin = grossWin / float64(m.Wins)
	}
	if m.Losses > 0 {
		m.AvgLoss = grossLoss / float64(m.Losses)
	}
	// Without losses the factor degenerates to the gross win.
	if grossLoss > 0 {
		m.ProfitFactor = grossWin / grossLoss
	} else {
		m.ProfitFactor = grossWin
	}

	m.Sharpe = sharpe(snaps, periodsPerYear)
	m.MaxDrawdown = maxDrawdown(snaps)
	if len(snaps) > 0 && initial > 0 {
		m.TotalReturn = (snaps[len(snaps)-1].TotalValue - initial) / initial * 100
	}
	return m
}

func sharpe(snaps []domain.PerformanceSnapshot, periodsPerYear float64) float64 {
	if len(snaps) < 3 || periodsPerYear <= 0 {
		return 0
	}
	rets := make([]float64, 0, len(snaps)-1)
	for i := 1; i < len(snaps); i++ {
		prev := snaps[i-1].TotalValue
		if prev <= 0 {
			continue
		}
		rets = append(rets, snaps[i].TotalValue/prev-1)
	}
	if len(rets) < 2 {
		return 0
	}
	var sum float64
	for _, r := range rets {
		sum += r
	}
	mean := sum / float64(len(rets))
	var sq float64
	for _, r := range rets {
		sq += (r - mean) * (r - mean)
	}
	sd := math.Sqrt(sq / float64(len(rets)-1))
	if sd == 0 {
		return 0
	}
	return mean / sd * math.Sqrt(periodsPerYear)
}

func maxDrawdown(snaps []domain.PerformanceSnapshot) float64 {
	var peak, worst float64
	for _, s := range snaps {
		if s.TotalValue > peak {
			peak = s.TotalValue
		}
		if peak > 0 {
			worst = math.Max(worst, (peak-s.TotalValue)/peak*100)
		}
	}
	return worst
}

// DailyReport renders the end-of-day summary.
func DailyReport(day int, m Metrics, runtime time.Duration) string {
	var b strings.Builder
	fmt.Fprintf(&b, "DAILY PERFORMANCE REPORT - DAY %d\n\n", day)
	writeMetrics(&b, m)
	fmt.Fprintf(&b, "Runtime:        %s\n", formatRuntime(runtime))
	if m.TotalReturn > 0 && m.MaxDrawdown < 30 {
		b.WriteString("Status:         ON TRACK\n")
	} else {
		b.WriteString("Status:         NEEDS IMPROVEMENT\n")
	}
	return b.String()
}

// FinalReport renders the end-of-run summary.
func FinalReport(m Metrics, initial float64, runtime time.Duration) string {
	var b strings.Builder
	b.WriteString("FINAL COMPETITION REPORT\n\n")
	fmt.Fprintf(&b, "Initial Capital: %12.2f\n", initial)
	fmt.Fprintf(&b, "Final Value:     %12.2f\n", initial*(1+m.TotalReturn/100))
	writeMetrics(&b, m)
	fmt.Fprintf(&b, "Score (est.):    %12.2f\n", m.TotalReturn*0.6+m.Sharpe*10*0.4)
	fmt.Fprintf(&b, "Runtime:        %s\n", formatRuntime(runtime))
	if m.MaxDrawdown < 40 {
		b.WriteString("Drawdown rule:   COMPLIED\n")
	} else {
		b.WriteString("Drawdown rule:   MAX DRAWDOWN EXCEEDED\n")
	}
	return b.String()
}

func writeMetrics(b *strings.Builder, m Metrics) {
	fmt.Fprintf(b, "Total Return:    %11.2f%%\n", m.TotalReturn)
	fmt.Fprintf(b, "Max Drawdown:    %11.2f%%\n", m.MaxDrawdown)
	fmt.Fprintf(b, "Sharpe Ratio:    %12.2f\n", m.Sharpe)
	fmt.Fprintf(b, "Total Trades:    %12d\n", m.TotalTrades)
	fmt.Fprintf(b, "Win Rate:        %11.2f%%\n", m.WinRate)
	fmt.Fprintf(b, "Avg Win:         %12.2f\n", m.AvgWin)
	fmt.Fprintf(b, "Avg Loss:        %12.2f\n", m.AvgLoss)
	fmt.Fprintf(b, "Profit Factor:   %12.2f\n", m.ProfitFactor)
}

func formatRuntime(d time.Duration) string {
	days := int(d / (24 * time.Hour))
	d -= time.Duration(days) * 24 * time.Hour
	h := int(d / time.Hour)
	d -= time.Duration(h) * time.Hour
	return fmt.Sprintf("%dd %dh %dm", days, h, int(d/time.Minute))
}
