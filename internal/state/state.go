package state

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// Reserved metadata keys stamped by stores on every save.
const (
	KeyLastUpdated   = "_last_updated"
	KeySchemaVersion = "_version"
	KeyLastStartup   = "_last_startup"
)

// SchemaVersion marks documents written by this build lineage.
const SchemaVersion = "1.0"

// TimeLayout is the canonical format for timestamps stored in the document.
const TimeLayout = time.RFC3339

// Document is the flat key/value snapshot the monitor persists. Values are
// anything that survives a JSON round trip. Keys this build does not know
// pass through load/merge/save untouched.
type Document map[string]any

// Delta is the flat set of keys one evaluator cycle wants written.
type Delta map[string]any

// Merge returns a new document containing every key of doc plus every key
// of delta, delta winning on collision. Values replace whole; there is no
// deep merge. Neither input is modified.
func Merge(doc Document, delta Delta) Document {
	merged := make(Document, len(doc)+len(delta))
	for k, v := range doc {
		merged[k] = v
	}
	for k, v := range delta {
		merged[k] = v
	}
	return merged
}

// Store persists the monitor document. Load never fails: unreadable or
// corrupt state degrades to an empty document so the monitor starts fresh.
type Store interface {
	Load(ctx context.Context) Document
	Save(ctx context.Context, doc Document) error
}

// AdvisoryLocker is asserted by the engine to serialise cycles across
// replicas when the backend supports it.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Float reads a numeric value. ok is false when the key is absent or not
// coercible, never when the stored value is legitimately zero.
func (d Document) Float(key string) (float64, bool) {
	raw, present := d[key]
	if !present {
		return 0, false
	}
	v, err := cast.ToFloat64E(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Int reads an integer value.
func (d Document) Int(key string) (int, bool) {
	raw, present := d[key]
	if !present {
		return 0, false
	}
	v, err := cast.ToIntE(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Bool reads a boolean value.
func (d Document) Bool(key string) (bool, bool) {
	raw, present := d[key]
	if !present {
		return false, false
	}
	v, err := cast.ToBoolE(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

// String reads a string value.
func (d Document) String(key string) (string, bool) {
	raw, present := d[key]
	if !present {
		return "", false
	}
	v, err := cast.ToStringE(raw)
	if err != nil {
		return "", false
	}
	return v, true
}

// Strings reads a list-of-strings value.
func (d Document) Strings(key string) ([]string, bool) {
	raw, present := d[key]
	if !present {
		return nil, false
	}
	v, err := cast.ToStringSliceE(raw)
	if err != nil {
		return nil, false
	}
	return v, true
}

// Time reads a timestamp value written with TimeLayout. Values written by
// older builds without a zone offset are tolerated.
func (d Document) Time(key string) (time.Time, bool) {
	raw, present := d[key]
	if !present {
		return time.Time{}, false
	}
	if t, ok := raw.(time.Time); ok {
		return t, true
	}
	s, err := cast.ToStringE(raw)
	if err != nil {
		return time.Time{}, false
	}
	for _, layout := range []string{TimeLayout, "2006-01-02T15:04:05.999999", "2006-01-02T15:04:05"} {
		if t, parseErr := time.Parse(layout, s); parseErr == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// KeyBase derives the document key prefix for a ticker: lower case, the
// -usd pair suffix stripped, separators folded to underscores. "BTC-USD"
// becomes "btc", "SPY" becomes "spy".
func KeyBase(ticker string) string {
	base := strings.ToLower(strings.TrimSpace(ticker))
	base = strings.TrimSuffix(base, "-usd")
	base = strings.ReplaceAll(base, "-", "_")
	base = strings.ReplaceAll(base, ".", "_")
	return base
}

// PriceKey names the summary price slot for a ticker.
func PriceKey(ticker string) string {
	return "price_" + strings.ToLower(strings.TrimSpace(ticker))
}

// stamp copies doc and refreshes the metadata keys. The last-updated
// timestamp never moves backwards even if the wall clock does.
func stamp(doc Document, now time.Time) Document {
	out := Merge(doc, nil)
	ts := now.UTC()
	if prev, ok := out.Time(KeyLastUpdated); ok && prev.After(ts) {
		ts = prev.UTC()
	}
	out[KeyLastUpdated] = ts.Format(TimeLayout)
	out[KeySchemaVersion] = SchemaVersion
	return out
}
