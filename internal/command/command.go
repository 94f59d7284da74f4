// Package command routes operator queries to handlers through a closed
// command set. Free text is parsed against a fixed keyword table into a
// tagged Command; input matching no entry is an error, never a silent
// fallback to some default handler.
package command

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// ErrNoMatch reports query text that maps to no known command.
var ErrNoMatch = errors.New("command: no matching command")

// Kind identifies one command in the closed set.
type Kind string

const (
	KindPrice      Kind = "price"
	KindRegime     Kind = "regime"
	KindOscillator Kind = "oscillator"
	KindCanary     Kind = "canary"
	KindNews       Kind = "news"
	KindRatePolicy Kind = "rate_policy"
	KindState      Kind = "state"
	KindCalendar   Kind = "calendar"
	KindHealth     Kind = "health"
	KindHelp       Kind = "help"
)

// Command is one parsed operator request. Ticker is set only for price
// queries that name a configured symbol; empty means every symbol.
type Command struct {
	Kind   Kind
	Ticker string
}

type route struct {
	kind  Kind
	words []string
}

// routes is matched top to bottom; the first entry with any word
// contained in the query wins. Order resolves overlaps such as
// "btc price" (price) versus "btc dropping?" (canary).
var routes = []route{
	{KindPrice, []string{"price", "quote", "cost"}},
	{KindRegime, []string{"sma", "moving average", "trend"}},
	{KindOscillator, []string{"rsi", "overbought", "oversold"}},
	{KindCanary, []string{"crypto", "bitcoin", "btc", "eth"}},
	{KindNews, []string{"news", "sentiment"}},
	{KindRatePolicy, []string{"fed", "rate", "fomc"}},
	{KindState, []string{"state", "status", "summary"}},
	{KindCalendar, []string{"calendar", "events", "upcoming"}},
	{KindHealth, []string{"health", "check", "full", "complete"}},
	{KindHelp, []string{"tools", "help", "available"}},
}

// Parse maps query text onto the command set. tickers are the symbols a
// price query may single out; a price query naming none of them asks
// for all of them.
func Parse(text string, tickers []string) (Command, error) {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return Command{}, fmt.Errorf("%w: empty query", ErrNoMatch)
	}
	for _, r := range routes {
		if !containsAny(lower, r.words) {
			continue
		}
		cmd := Command{Kind: r.kind}
		if r.kind == KindPrice {
			cmd.Ticker = matchTicker(lower, tickers)
		}
		return cmd, nil
	}
	return Command{}, fmt.Errorf("%w: %q", ErrNoMatch, text)
}

func containsAny(lower string, words []string) bool {
	for _, w := range words {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

func matchTicker(lower string, tickers []string) string {
	for _, t := range tickers {
		if t != "" && strings.Contains(lower, strings.ToLower(t)) {
			return t
		}
	}
	return ""
}

// Help renders the trigger words per command for operator discovery.
func Help() string {
	var b strings.Builder
	b.WriteString("Available commands:\n")
	for _, r := range routes {
		fmt.Fprintf(&b, "  %-12s %s\n", string(r.kind), strings.Join(r.words, ", "))
	}
	b.WriteString("\nAny query containing a trigger word runs the matching command.")
	return b.String()
}

// HandlerFunc answers one command with rendered text.
type HandlerFunc func(ctx context.Context, cmd Command) (string, error)

// RouterOptions configures query parsing.
type RouterOptions struct {
	// Tickers a price query may name. Matched case-insensitively as
	// written in config (e.g. "BTC-USD").
	Tickers []string
}

// Router binds the command set to handlers. Every Kind dispatched must
// have been registered; a parsed command without a handler is an error,
// matching the no-silent-fallthrough contract of Parse.
type Router struct {
	opts     RouterOptions
	handlers map[Kind]HandlerFunc
	logger   zerolog.Logger
}

func NewRouter(opts RouterOptions, logger zerolog.Logger) *Router {
	return &Router{
		opts:     opts,
		handlers: make(map[Kind]HandlerFunc),
		logger:   logger.With().Str("component", "command").Logger(),
	}
}

// Register binds one command kind. Later registrations replace earlier
// ones so callers can override the built-in help.
func (r *Router) Register(k Kind, fn HandlerFunc) {
	r.handlers[k] = fn
}

// Registered lists the bound kinds in stable order.
func (r *Router) Registered() []Kind {
	kinds := make([]Kind, 0, len(r.handlers))
	for k := range r.handlers {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Run parses the query and invokes its handler.
func (r *Router) Run(ctx context.Context, text string) (string, error) {
	cmd, err := Parse(text, r.opts.Tickers)
	if err != nil {
		return "", err
	}
	fn, ok := r.handlers[cmd.Kind]
	if !ok {
		return "", fmt.Errorf("command: no handler registered for %q", cmd.Kind)
	}
	r.logger.Debug().
		Str("kind", string(cmd.Kind)).
		Str("ticker", cmd.Ticker).
		Msg("dispatching query")
	out, err := fn(ctx, cmd)
	if err != nil {
		return "", fmt.Errorf("command %q: %w", cmd.Kind, err)
	}
	return out, nil
}
