package alerting

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"market-sentinel/internal/signal"
	"market-sentinel/internal/state"
)

// Digest 在两次每日汇总之间累积 INFO 信号。
type Digest struct {
	mu      sync.Mutex
	signals []signal.Signal
}

func NewDigest() *Digest {
	return &Digest{}
}

// Add 追加一条信号到当日累积。
func (d *Digest) Add(sig signal.Signal) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.signals = append(d.signals, sig)
}

// Drain 取走全部累积信号并清空。
func (d *Digest) Drain() []signal.Signal {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.signals
	d.signals = nil
	return out
}

// SummaryData 是每日汇总渲染所需的全部输入。
type SummaryData struct {
	State     state.Monitor
	Keys      state.Keys
	RSIPeriod int
	Signals   []signal.Signal
	Now       time.Time
}

// BuildSummary renders the daily digest body: current readings from
// state, then every INFO signal accumulated since the last summary.
// Absent readings are skipped rather than shown as zeros.
func BuildSummary(data SummaryData) string {
	rsiPeriod := data.RSIPeriod
	if rsiPeriod <= 0 {
		rsiPeriod = 14
	}

	lines := []string{
		fmt.Sprintf("📊 DAILY MARKET SUMMARY - %s", data.Now.Format("2006-01-02 03:04 PM MST")),
		strings.Repeat("═", 45),
		"",
	}

	eq := data.State.Equity
	benchmark := strings.ToUpper(data.Keys.Benchmark)
	if eq.Price != nil {
		smaText := "N/A"
		if eq.SMA != nil {
			smaText = fmt.Sprintf("$%.2f", *eq.SMA)
		}
		regime := "BEARISH ❌"
		if eq.AboveSMA != nil && *eq.AboveSMA {
			regime = "BULLISH ✅"
		}
		lines = append(lines, fmt.Sprintf("%-8s $%.2f  (SMA: %s)  %s", benchmark+":", *eq.Price, smaText, regime))
	}

	if eq.RSI != nil {
		label := "NEUTRAL"
		switch {
		case *eq.RSI >= 70:
			label = "OVERBOUGHT ⚠️"
		case *eq.RSI <= 30:
			label = "OVERSOLD 🟢"
		}
		lines = append(lines, fmt.Sprintf("RSI(%d): %.1f  %s", rsiPeriod, *eq.RSI, label))
	}

	if eq.StopPrice != nil {
		hwmText := "N/A"
		if eq.HighWaterMark != nil {
			hwmText = fmt.Sprintf("$%.2f", *eq.HighWaterMark)
		}
		drop := 0.0
		if eq.DropPct != nil {
			drop = *eq.DropPct
		}
		stop := strings.ToUpper(data.Keys.Stop)
		lines = append(lines, fmt.Sprintf("%-8s $%.2f  (High: %s, Drop: %.1f%%)", stop+":", *eq.StopPrice, hwmText, drop))
	}

	crypto := data.State.Crypto
	if crypto.Price != nil {
		c24, c7 := 0.0, 0.0
		if crypto.Change24Pct != nil {
			c24 = *crypto.Change24Pct
		}
		if crypto.Change7Pct != nil {
			c7 = *crypto.Change7Pct
		}
		canary := strings.ToUpper(state.KeyBase(data.Keys.Canary))
		lines = append(lines, fmt.Sprintf("%-8s $%.2f  (24h: %+.1f%%, 7d: %+.1f%%)", canary+":", *crypto.Price, c24, c7))
	}

	lines = append(lines, "")

	macro := data.State.Macro
	if macro.RateCurrent != nil {
		prevText := "N/A"
		if macro.RatePrevious != nil {
			prevText = fmt.Sprintf("%.2f%%", *macro.RatePrevious)
		}
		lines = append(lines, fmt.Sprintf("Fed Rate: %.2f%% (prev: %s)", *macro.RateCurrent, prevText))
	}

	if macro.NegativeHits != nil {
		scanned := 0
		if macro.ArticlesScanned != nil {
			scanned = *macro.ArticlesScanned
		}
		lines = append(lines, fmt.Sprintf("%-8s %d negative hits / %d articles", "News:", *macro.NegativeHits, scanned))
	}

	lines = append(lines, "", strings.Repeat("─", 45))

	if len(data.Signals) > 0 {
		lines = append(lines, "Signals Today:")
		for _, sig := range data.Signals {
			lines = append(lines, "  • "+sig.Message)
		}
	} else {
		lines = append(lines, "No notable signals today.")
	}

	return strings.Join(lines, "\n")
}
