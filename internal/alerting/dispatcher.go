package alerting

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"market-sentinel/internal/metrics"
	"market-sentinel/internal/signal"
)

// KeyDailySummary 绕过分级门控, 任何级别都允许投递。
const KeyDailySummary = "DAILY_SUMMARY"

// Alert 是一次待派发的通知。
type Alert struct {
	// Key 用于冷却限速, 为空时退化为 Subject。
	Key     string
	Subject string
	Body    string
	Level   signal.Level
}

// Outcome 描述一次派发的结果。冷却命中时 RateLimited 为 true 且
// 不会投递; Delivered 仅在通道确认接收后为 true。
type Outcome struct {
	Delivered   bool
	RateLimited bool
}

// FromSignal 将评估信号转换为告警, 主题由信号名称美化而来。
func FromSignal(sig signal.Signal) Alert {
	return Alert{
		Key:     sig.Name,
		Subject: titleize(sig.Name),
		Body:    sig.Message,
		Level:   sig.Level,
	}
}

func titleize(name string) string {
	words := strings.Split(strings.ToLower(name), "_")
	for i, word := range words {
		if word == "" {
			continue
		}
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}

// CooldownWindows 按告警级别给出两次投递之间的最小间隔。
type CooldownWindows struct {
	Critical time.Duration
	Warning  time.Duration
	Info     time.Duration
}

// For resolves the window for a level. GREEN shares the WARNING window;
// discovery grades collapse through DispatchLevel first.
func (w CooldownWindows) For(level signal.Level) time.Duration {
	switch level.DispatchLevel() {
	case signal.LevelCritical:
		return w.Critical
	case signal.LevelInfo:
		return w.Info
	default:
		return w.Warning
	}
}

// Cooldowns 记录每个告警键的最近发送时间。进程内存即可: 重启后丢失
// 最多造成一次重复告警, 不构成故障。
type Cooldowns struct {
	mu   sync.Mutex
	last map[string]time.Time
}

func NewCooldowns() *Cooldowns {
	return &Cooldowns{last: make(map[string]time.Time)}
}

func (c *Cooldowns) LastSent(key string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	at, ok := c.last[key]
	return at, ok
}

func (c *Cooldowns) Record(key string, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last[key] = at
}

// DispatcherOptions 配置派发行为。
type DispatcherOptions struct {
	Windows CooldownWindows
}

// Dispatcher 是冷却感知的投递层: 每个信号至多产生一次出站通知。
// CRITICAL/WARNING/GREEN 立即投递, INFO 只记录冷却并留给每日汇总;
// 无论通道成功与否都会刷新冷却时间, 避免反复轰炸故障通道。
type Dispatcher struct {
	notifier  Notifier
	windows   CooldownWindows
	cooldowns *Cooldowns
	logger    zerolog.Logger
	now       func() time.Time
}

// NewDispatcher 构造派发器。notifier 可以为 nil, 表示未配置任何通道,
// 此时仍维护冷却状态但不产生出站消息。
func NewDispatcher(notifier Notifier, opts DispatcherOptions, logger zerolog.Logger) *Dispatcher {
	if opts.Windows.Critical <= 0 {
		opts.Windows.Critical = 4 * time.Hour
	}
	if opts.Windows.Warning <= 0 {
		opts.Windows.Warning = 2 * time.Hour
	}
	if opts.Windows.Info <= 0 {
		opts.Windows.Info = 24 * time.Hour
	}
	return &Dispatcher{
		notifier:  notifier,
		windows:   opts.Windows,
		cooldowns: NewCooldowns(),
		logger:    logger.With().Str("component", "dispatcher").Logger(),
		now:       time.Now,
	}
}

// Send 应用冷却窗口后尝试投递一条告警。
func (d *Dispatcher) Send(ctx context.Context, alert Alert) Outcome {
	key := alert.Key
	if key == "" {
		key = alert.Subject
	}

	window := d.windows.For(alert.Level)
	if last, ok := d.cooldowns.LastSent(key); ok {
		if elapsed := d.now().Sub(last); elapsed < window {
			d.logger.Info().
				Str("key", key).
				Str("level", string(alert.Level)).
				Dur("elapsed", elapsed).
				Dur("window", window).
				Msg("告警被冷却限速")
			metrics.ObserveAlert("rate_limited")
			return Outcome{RateLimited: true}
		}
	}

	delivered := false
	if alert.Level.Immediate() || key == KeyDailySummary {
		text := Render(alert)
		switch {
		case d.notifier == nil:
			d.logger.Warn().Str("key", key).Msg("未配置通知通道, 丢弃告警")
			metrics.ObserveAlert("dropped")
		default:
			if err := d.notifier.Deliver(ctx, text); err != nil {
				d.logger.Error().Err(err).Str("key", key).Msg("告警发送失败")
				metrics.ObserveAlert("failed")
			} else {
				delivered = true
				metrics.ObserveAlert("delivered")
			}
		}
	} else {
		metrics.ObserveAlert("digest_only")
	}

	// 发送失败同样记录时间, 防止对故障通道重试风暴。
	d.cooldowns.Record(key, d.now())

	return Outcome{Delivered: delivered}
}

var levelEmoji = map[signal.Level]string{
	signal.LevelCritical: "🚨",
	signal.LevelWarning:  "⚠️",
	signal.LevelGreen:    "🟢",
	signal.LevelInfo:     "ℹ️",
}

// Render 生成出站文本: 级别前缀 + 分隔线 + 正文。
func Render(alert Alert) string {
	level := alert.Level.DispatchLevel()
	emoji, ok := levelEmoji[level]
	if !ok {
		emoji = "📊"
	}
	var b strings.Builder
	b.WriteString(emoji)
	b.WriteString(" [")
	b.WriteString(string(level))
	b.WriteString("] ")
	b.WriteString(alert.Subject)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("─", 40))
	b.WriteString("\n")
	b.WriteString(alert.Body)
	return b.String()
}
