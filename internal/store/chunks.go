package store

import (
	"context"
	"fmt"
	"strconv"
)

// The store caps individual field values, so large strings are split into
// fixed-size chunks stored under derived keys: key, key__1, ... key__N-1,
// plus key__chunks recording the chunk count.
const chunkSize = 1900

// SetLargeValue stores value under key, chunking as needed. Chunk keys left
// over from a previously larger value are removed so the store holds exactly
// the current chunks.
func SetLargeValue(ctx context.Context, s Store, key, value string) error {
	prev := 0
	if config, err := s.Config(ctx); err == nil {
		prev, _ = strconv.Atoi(config[key+"__chunks"])
	}
	n := 0
	for i := 0; i < len(value) || i == 0; i += chunkSize {
		end := i + chunkSize
		if end > len(value) {
			end = len(value)
		}
		if err := s.SetConfigValue(ctx, chunkKey(key, n), value[i:end]); err != nil {
			return fmt.Errorf("store chunk %d of %s: %w", n, key, err)
		}
		n++
	}
	if err := s.SetConfigValue(ctx, key+"__chunks", strconv.Itoa(n)); err != nil {
		return err
	}
	for i := n; i < prev; i++ {
		if err := s.DeleteConfigValue(ctx, chunkKey(key, i)); err != nil {
			return fmt.Errorf("remove stale chunk %d of %s: %w", i, key, err)
		}
	}
	return nil
}

// GetLargeValue reassembles a value stored via SetLargeValue. Falls back to
// the plain value under key when no chunk count is present.
func GetLargeValue(ctx context.Context, s Store, key, def string) (string, error) {
	config, err := s.Config(ctx)
	if err != nil {
		return def, err
	}
	n, err := strconv.Atoi(config[key+"__chunks"])
	if err != nil || n == 0 {
		if v, ok := config[key]; ok {
			return v, nil
		}
		return def, nil
	}
	var out string
	for i := 0; i < n; i++ {
		out += config[chunkKey(key, i)]
	}
	return out, nil
}

func chunkKey(key string, idx int) string {
	if idx == 0 {
		return key
	}
	return fmt.Sprintf("%s__%d", key, idx)
}
