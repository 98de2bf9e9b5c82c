package polygon

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// APIKeyInfo chứa thông tin về một API key
type APIKeyInfo struct {
	Key          string
	LastUsed     time.Time
	RequestCount int64
}

// KeySelectionStrategy định nghĩa cách chọn API key
type KeySelectionStrategy int

const (
	RoundRobin KeySelectionStrategy = iota // luân phiên giữa các keys
	LeastUsed                              // chọn key ít được dùng nhất
)

// ParseKeyStrategy maps a config value to a strategy; empty means round-robin.
func ParseKeyStrategy(s string) (KeySelectionStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "round-robin", "roundrobin":
		return RoundRobin, nil
	case "least-used", "leastused":
		return LeastUsed, nil
	}
	return RoundRobin, fmt.Errorf("unknown key strategy %q", s)
}

// String implement Stringer cho KeySelectionStrategy
func (k KeySelectionStrategy) String() string {
	switch k {
	case RoundRobin:
		return "round-robin"
	case LeastUsed:
		return "least-used"
	default:
		return "unknown"
	}
}

// APIKeyPool rotates requests across several API keys. Pacing is done by the
// provider's gate, the pool only picks which key signs the next request.
type APIKeyPool struct {
	mu       sync.Mutex
	keys     []*APIKeyInfo
	index    int
	strategy KeySelectionStrategy
}

// NewAPIKeyPool tạo pool mới với danh sách API keys
func NewAPIKeyPool(apiKeys []string, strategy KeySelectionStrategy) (*APIKeyPool, error) {
	keys := make([]*APIKeyInfo, 0, len(apiKeys))
	for _, key := range apiKeys {
		if key = strings.TrimSpace(key); key != "" {
			keys = append(keys, &APIKeyInfo{Key: key})
		}
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("polygon: at least one API key is required")
	}
	return &APIKeyPool{keys: keys, strategy: strategy}, nil
}

// Next selects a key according to the strategy and records its use.
func (p *APIKeyPool) Next() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var selected *APIKeyInfo
	switch p.strategy {
	case LeastUsed:
		selected = p.keys[0]
		for _, key := range p.keys[1:] {
			if key.RequestCount < selected.RequestCount {
				selected = key
			}
		}
	default:
		selected = p.keys[p.index]
		p.index = (p.index + 1) % len(p.keys)
	}

	selected.LastUsed = time.Now()
	selected.RequestCount++
	return selected.Key
}

// Len returns the number of keys in the pool.
func (p *APIKeyPool) Len() int { return len(p.keys) }

// Stats returns per-key usage with keys masked.
func (p *APIKeyPool) Stats() []APIKeyInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]APIKeyInfo, len(p.keys))
	for i, k := range p.keys {
		out[i] = APIKeyInfo{Key: maskKey(k.Key), LastUsed: k.LastUsed, RequestCount: k.RequestCount}
	}
	return out
}

func maskKey(key string) string {
	if len(key) > 8 {
		return key[:8] + "..."
	}
	return key
}
