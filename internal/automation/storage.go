package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

// Session-scoped storage keys shared by the engines
const (
	KeyCrawlQueue     = "hypercart_crawl_queue"
	KeyDoneSet        = "hypercart_done_session"
	KeyPendingCommand = "hypercart_pending_cmd"
	KeyGeneratedCount = "netsafe_generated_count"
	KeyNetsafeConfig  = "netsafe_config"
	KeyProfileData    = "profile_data"
)

// Pending command markers stored under KeyPendingCommand
const (
	PendingCheckout = "camp-checkout"
	PendingNetsafe  = "create-netsafe-pending"
	PendingProfile  = "update-profile-auto-pending"
)

// LoadJSON decodes the value at key into v. A missing key leaves v untouched.
func LoadJSON(ctx context.Context, s Storage, key string, v any) error {
	raw, ok, err := s.GetItem(ctx, key)
	if err != nil || !ok || raw == "" {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}

// SaveJSON encodes v under key
func SaveJSON(ctx context.Context, s Storage, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return s.SetItem(ctx, key, string(b))
}

// LoadInt reads an integer counter, zero when absent or malformed
func LoadInt(ctx context.Context, s Storage, key string) (int, error) {
	raw, ok, err := s.GetItem(ctx, key)
	if err != nil || !ok {
		return 0, err
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// SaveInt stores an integer counter
func SaveInt(ctx context.Context, s Storage, key string, n int) error {
	return s.SetItem(ctx, key, strconv.Itoa(n))
}
