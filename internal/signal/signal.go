package signal

// Level classifies signal severity. CRITICAL outranks WARNING, WARNING
// outranks GREEN, GREEN outranks INFO. HOT and WATCHLIST are discovery
// grades; DispatchLevel maps them onto the four alert levels.
type Level string

const (
	LevelCritical Level = "CRITICAL"
	LevelWarning  Level = "WARNING"
	LevelGreen    Level = "GREEN"
	LevelInfo     Level = "INFO"

	LevelHot       Level = "HOT"
	LevelWatchlist Level = "WATCHLIST"
)

var levelRank = map[Level]int{
	LevelCritical: 4,
	LevelWarning:  3,
	LevelGreen:    2,
	LevelInfo:     1,
}

// DispatchLevel resolves the alert level used for delivery and cooldown
// decisions. Discovery grades collapse onto the alert scale; everything
// else maps to itself.
func (l Level) DispatchLevel() Level {
	switch l {
	case LevelHot:
		return LevelWarning
	case LevelWatchlist:
		return LevelInfo
	default:
		return l
	}
}

// Rank orders levels by severity. Higher is more severe.
func (l Level) Rank() int {
	return levelRank[l.DispatchLevel()]
}

// Immediate reports whether the level pages right away. INFO-grade
// signals only accumulate for the daily summary.
func (l Level) Immediate() bool {
	switch l.DispatchLevel() {
	case LevelCritical, LevelWarning, LevelGreen:
		return true
	default:
		return false
	}
}

// Signal is one evaluator verdict for a single cycle.
type Signal struct {
	Name    string
	Level   Level
	Message string
	Value   *float64
}

// Float wraps a numeric payload for the Value field.
func Float(v float64) *float64 {
	return &v
}
