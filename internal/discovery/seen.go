package discovery

import (
	"sync"

	"github.com/shopspring/decimal"
)

// SeenSet tracks token addresses already graded in this process. An
// address is added only after it passes the candidate filters, so a pair
// rejected for age or thin liquidity is reconsidered on later scans.
// Restarting the process forgets everything; the worst case is one
// repeat alert per token.
type SeenSet struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func NewSeenSet() *SeenSet {
	return &SeenSet{keys: make(map[string]struct{})}
}

func (s *SeenSet) Contains(chain, address string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.keys[seenKey(chain, address)]
	return ok
}

func (s *SeenSet) Add(chain, address string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[seenKey(chain, address)] = struct{}{}
}

func (s *SeenSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}

// seenKey keeps the address case-sensitive: base58 addresses differ by
// case, and EVM sources deliver a consistent casing per process.
func seenKey(chain, address string) string {
	return chain + ":" + address
}

// PriceCache keeps the last observed price per portfolio token so the
// next check can report movement since the previous run.
type PriceCache struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
}

func NewPriceCache() *PriceCache {
	return &PriceCache{prices: make(map[string]decimal.Decimal)}
}

func (c *PriceCache) Previous(chain, address string) (decimal.Decimal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	price, ok := c.prices[seenKey(chain, address)]
	return price, ok
}

func (c *PriceCache) Store(chain, address string, price decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[seenKey(chain, address)] = price
}
