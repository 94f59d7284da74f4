package alerting

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"market-sentinel/internal/signal"
)

type fakeNotifier struct {
	texts []string
	err   error
}

func (f *fakeNotifier) Deliver(_ context.Context, text string) error {
	if f.err != nil {
		return f.err
	}
	f.texts = append(f.texts, text)
	return nil
}

func newTestDispatcher(fn *fakeNotifier, at time.Time) (*Dispatcher, *time.Time) {
	now := at
	d := NewDispatcher(fn, DispatcherOptions{}, testLogger())
	d.now = func() time.Time { return now }
	return d, &now
}

func TestDispatcherCooldownWindow(t *testing.T) {
	fn := &fakeNotifier{}
	d, now := newTestDispatcher(fn, time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC))

	alert := Alert{Key: "TRAILING_STOP", Subject: "Trailing Stop", Body: "hit", Level: signal.LevelWarning}

	out := d.Send(context.Background(), alert)
	if !out.Delivered || out.RateLimited {
		t.Fatalf("首次发送应投递: %+v", out)
	}

	out = d.Send(context.Background(), alert)
	if out.Delivered || !out.RateLimited {
		t.Fatalf("冷却窗口内应被限速: %+v", out)
	}
	if len(fn.texts) != 1 {
		t.Fatalf("冷却期间不应重复投递, 实际 %d 条", len(fn.texts))
	}

	*now = now.Add(2*time.Hour + time.Minute)
	out = d.Send(context.Background(), alert)
	if !out.Delivered {
		t.Fatalf("窗口过期后应再次投递: %+v", out)
	}
	if len(fn.texts) != 2 {
		t.Fatalf("预期 2 条消息, 实际 %d 条", len(fn.texts))
	}
}

func TestDispatcherInfoDigestOnly(t *testing.T) {
	fn := &fakeNotifier{}
	d, _ := newTestDispatcher(fn, time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC))

	alert := Alert{Key: "RSI_STATUS", Subject: "Rsi Status", Body: "neutral", Level: signal.LevelInfo}

	out := d.Send(context.Background(), alert)
	if out.Delivered || out.RateLimited {
		t.Fatalf("INFO 级别不应立即投递: %+v", out)
	}
	if len(fn.texts) != 0 {
		t.Fatalf("INFO 不应出站, 实际 %d 条", len(fn.texts))
	}

	// INFO 同样占用冷却窗口。
	out = d.Send(context.Background(), alert)
	if !out.RateLimited {
		t.Fatalf("第二次 INFO 应命中冷却: %+v", out)
	}
}

func TestDispatcherDailySummaryBypassesLevelGate(t *testing.T) {
	fn := &fakeNotifier{}
	d, _ := newTestDispatcher(fn, time.Date(2026, 2, 10, 17, 0, 0, 0, time.UTC))

	alert := Alert{Key: KeyDailySummary, Subject: "Daily Summary", Body: "summary", Level: signal.LevelInfo}

	out := d.Send(context.Background(), alert)
	if !out.Delivered {
		t.Fatalf("每日汇总应绕过级别门控: %+v", out)
	}
}

func TestDispatcherFailureStillRecordsCooldown(t *testing.T) {
	fn := &fakeNotifier{err: errors.New("telegram down")}
	d, _ := newTestDispatcher(fn, time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC))

	alert := Alert{Key: "CRYPTO_CANARY", Subject: "Crypto Canary", Body: "drain", Level: signal.LevelWarning}

	out := d.Send(context.Background(), alert)
	if out.Delivered {
		t.Fatalf("通道故障时不应报告已投递: %+v", out)
	}

	fn.err = nil
	out = d.Send(context.Background(), alert)
	if !out.RateLimited {
		t.Fatalf("故障发送也应占用冷却, 避免重试风暴: %+v", out)
	}
	if len(fn.texts) != 0 {
		t.Fatalf("冷却期间不应投递, 实际 %d 条", len(fn.texts))
	}
}

func TestDispatcherNilNotifierKeepsCooldown(t *testing.T) {
	d := NewDispatcher(nil, DispatcherOptions{}, testLogger())
	now := time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	alert := Alert{Key: "SMA_CROSS_BELOW", Subject: "Sma Cross Below", Body: "bearish", Level: signal.LevelCritical}

	out := d.Send(context.Background(), alert)
	if out.Delivered {
		t.Fatalf("无通道时不应报告已投递: %+v", out)
	}
	out = d.Send(context.Background(), alert)
	if !out.RateLimited {
		t.Fatalf("无通道时冷却仍应生效: %+v", out)
	}
}

func TestDispatcherGreenSharesWarningWindow(t *testing.T) {
	fn := &fakeNotifier{}
	d, now := newTestDispatcher(fn, time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC))

	alert := Alert{Key: "SMA_CROSS_ABOVE", Subject: "Sma Cross Above", Body: "bullish", Level: signal.LevelGreen}

	if out := d.Send(context.Background(), alert); !out.Delivered {
		t.Fatalf("GREEN 应立即投递: %+v", out)
	}

	*now = now.Add(3 * time.Hour)
	if out := d.Send(context.Background(), alert); !out.Delivered {
		t.Fatalf("GREEN 使用 WARNING 窗口, 3 小时后应可再次投递: %+v", out)
	}
}

func TestDispatcherHotGradeDelivers(t *testing.T) {
	fn := &fakeNotifier{}
	d, _ := newTestDispatcher(fn, time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC))

	alert := Alert{Key: "new_token_pepe", Subject: "New Token Pepe", Body: "listing", Level: signal.LevelHot}

	if out := d.Send(context.Background(), alert); !out.Delivered {
		t.Fatalf("HOT 按 WARNING 投递: %+v", out)
	}
	if len(fn.texts) != 1 || !strings.Contains(fn.texts[0], "[WARNING]") {
		t.Fatalf("HOT 渲染应折算为 WARNING: %#v", fn.texts)
	}
}

func TestDispatcherEmptyKeyFallsBackToSubject(t *testing.T) {
	fn := &fakeNotifier{}
	d, _ := newTestDispatcher(fn, time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC))

	alert := Alert{Subject: "Portfolio Auki", Body: "move", Level: signal.LevelWarning}

	d.Send(context.Background(), alert)
	if out := d.Send(context.Background(), alert); !out.RateLimited {
		t.Fatalf("空 Key 应退化为 Subject 参与冷却: %+v", out)
	}
}

func TestFromSignal(t *testing.T) {
	sig := signal.Signal{
		Name:    "SMA_CROSS_BELOW",
		Level:   signal.LevelCritical,
		Message: "🔴 DEFENSIVE MODE TRIGGERED",
		Value:   signal.Float(400),
	}

	alert := FromSignal(sig)
	if alert.Key != "SMA_CROSS_BELOW" {
		t.Fatalf("Key 应取信号名: %q", alert.Key)
	}
	if alert.Subject != "Sma Cross Below" {
		t.Fatalf("Subject 应美化信号名: %q", alert.Subject)
	}
	if alert.Level != signal.LevelCritical || alert.Body == "" {
		t.Fatalf("级别与正文应透传: %+v", alert)
	}
}

func TestRenderFormat(t *testing.T) {
	text := Render(Alert{
		Subject: "Trailing Stop",
		Body:    "Price: $94.00",
		Level:   signal.LevelCritical,
	})

	want := "🚨 [CRITICAL] Trailing Stop\n" + strings.Repeat("─", 40) + "\nPrice: $94.00"
	if text != want {
		t.Fatalf("渲染格式不符:\n%s", text)
	}
}

func TestRenderUnknownLevelEmoji(t *testing.T) {
	text := Render(Alert{Subject: "X", Body: "y", Level: signal.Level("ODD")})
	if !strings.HasPrefix(text, "📊 [ODD] X") {
		t.Fatalf("未知级别应使用默认图标: %s", text)
	}
}
