package hostfunc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

const (
	DefaultKVMaxKeySize   = 256
	DefaultKVMaxValueSize = 64 << 10 // 64KB
	DefaultKVMaxEntries   = 1000
)

// KVConfig limits the store. A zero limit means unlimited.
type KVConfig struct {
	MaxKeySize   int
	MaxValueSize int
	MaxEntries   int
}

func DefaultKVConfig() KVConfig {
	return KVConfig{
		MaxKeySize:   DefaultKVMaxKeySize,
		MaxValueSize: DefaultKVMaxValueSize,
		MaxEntries:   DefaultKVMaxEntries,
	}
}

type KVOption func(*KVConfig)

func WithMaxKeySize(size int) KVOption {
	return func(c *KVConfig) {
		c.MaxKeySize = size
	}
}

func WithMaxValueSize(size int) KVOption {
	return func(c *KVConfig) {
		c.MaxValueSize = size
	}
}

func WithMaxEntries(n int) KVOption {
	return func(c *KVConfig) {
		c.MaxEntries = n
	}
}

// KV is an in-memory key-value store exposed to scripts. It outlives any
// single context, so contexts on the same interpreter can hand data to each
// other through it. Arguments are accepted by keyword or position:
//
//	kv_set("user", {"id": 1})
//	kv_get(key = "user", default = None)
type KV struct {
	cfg  KVConfig
	data map[string]any
	mu   sync.RWMutex
}

func NewKV(cfg KVConfig, opts ...KVOption) *KV {
	for _, opt := range opts {
		opt(&cfg)
	}
	return &KV{cfg: cfg, data: make(map[string]any)}
}

// Register adds kv_get, kv_set, kv_delete and kv_keys to the registry.
func (s *KV) Register(r *Registry) {
	r.Register("kv_get", s.Get)
	r.Register("kv_set", s.Set)
	r.Register("kv_delete", s.Delete)
	r.Register("kv_keys", s.Keys)
}

func (s *KV) Get(ctx context.Context, args map[string]any) (any, error) {
	key, err := s.key(args)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	val, exists := s.data[key]
	s.mu.RUnlock()

	if !exists {
		def, _ := arg(args, "default", 1)
		return def, nil
	}
	return val, nil
}

func (s *KV) Set(ctx context.Context, args map[string]any) (any, error) {
	key, err := s.key(args)
	if err != nil {
		return nil, err
	}
	val, ok := arg(args, "value", 1)
	if !ok {
		return nil, errors.New("value required")
	}

	if s.cfg.MaxValueSize > 0 {
		size, err := valueSize(val)
		if err != nil {
			return nil, err
		}
		if size > s.cfg.MaxValueSize {
			return nil, fmt.Errorf("value too large: %d bytes (max %d)", size, s.cfg.MaxValueSize)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; !exists && s.cfg.MaxEntries > 0 && len(s.data) >= s.cfg.MaxEntries {
		return nil, fmt.Errorf("too many entries (max %d)", s.cfg.MaxEntries)
	}
	s.data[key] = val

	return "ok", nil
}

func (s *KV) Delete(ctx context.Context, args map[string]any) (any, error) {
	key, err := s.key(args)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()

	return "ok", nil
}

// Keys returns the stored keys in sorted order.
func (s *KV) Keys(ctx context.Context, args map[string]any) (any, error) {
	s.mu.RLock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	s.mu.RUnlock()

	sort.Strings(keys)
	return keys, nil
}

func (s *KV) key(args map[string]any) (string, error) {
	v, _ := arg(args, "key", 0)
	key, ok := v.(string)
	if !ok || key == "" {
		return "", errors.New("key required")
	}
	if s.cfg.MaxKeySize > 0 && len(key) > s.cfg.MaxKeySize {
		return "", fmt.Errorf("key too large: %d bytes (max %d)", len(key), s.cfg.MaxKeySize)
	}
	return key, nil
}

// arg returns the keyword argument name, falling back to the positional
// argument at pos.
func arg(args map[string]any, name string, pos int) (any, bool) {
	if v, ok := args[name]; ok {
		return v, true
	}
	if in, ok := args["args"].([]any); ok && pos < len(in) {
		return in[pos], true
	}
	return nil, false
}

func valueSize(v any) (int, error) {
	switch x := v.(type) {
	case string:
		return len(x), nil
	case []byte:
		return len(x), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("value must be plain data: %w", err)
	}
	return len(data), nil
}
