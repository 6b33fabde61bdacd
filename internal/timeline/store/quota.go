package store

import (
	"context"
	"fmt"
)

// Usage is an estimate of how much of the storage budget is in use.
type Usage struct {
	Bytes   int64
	Budget  int64
	Percent float64
}

// Usage measures current storage use as the sum of key and value lengths.
func (s *Store) Usage(ctx context.Context) (Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usageLocked(ctx)
}

// sizer is implemented by backends that can measure themselves without a
// full scan.
type sizer interface {
	SizeBytes(ctx context.Context) (int64, error)
}

func (s *Store) usageLocked(ctx context.Context) (Usage, error) {
	u := Usage{Budget: s.config.BudgetBytes}

	if sz, ok := s.backend.(sizer); ok {
		n, err := sz.SizeBytes(ctx)
		if err != nil {
			return u, fmt.Errorf("failed to measure storage: %w", err)
		}
		u.Bytes = n
	} else {
		keys, err := s.backend.ListKeys(ctx, "")
		if err != nil {
			return u, fmt.Errorf("failed to list keys: %w", err)
		}
		for _, key := range keys {
			value, ok, err := s.backend.Get(ctx, key)
			if err != nil {
				return u, fmt.Errorf("failed to read %s: %w", key, err)
			}
			if ok {
				u.Bytes += int64(len(key) + len(value))
			}
		}
	}

	if u.Budget > 0 {
		u.Percent = float64(u.Bytes) / float64(u.Budget) * 100
	}
	s.config.Metrics.SetStorageBytes(u.Bytes)
	return u, nil
}
