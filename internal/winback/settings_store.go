package winback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

const tenantIndexKey = "winback:tenants"

// SettingsStore persists per-tenant settings as JSON blobs in Redis. A set of
// tenant ids indexes every tenant that has saved settings.
type SettingsStore struct {
	redis *redis.Client
	now   func() time.Time
}

// NewSettingsStore creates a settings store.
func NewSettingsStore(redisClient *redis.Client) *SettingsStore {
	return &SettingsStore{redis: redisClient, now: time.Now}
}

func (s *SettingsStore) key(tenantID string) string {
	return fmt.Sprintf("winback:settings:%s", tenantID)
}

// Get returns the tenant's settings, or DefaultSettings when none were saved.
func (s *SettingsStore) Get(ctx context.Context, tenantID string) (*Settings, error) {
	data, err := s.redis.Get(ctx, s.key(tenantID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return DefaultSettings(tenantID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("winback: get settings: %w", err)
	}

	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("winback: unmarshal settings: %w", err)
	}
	if settings.Steps == nil {
		settings.Steps = []StepConfig{}
	}
	return &settings, nil
}

// Save validates settings and replaces the stored copy. A rejected update
// returns a *ValidationError and leaves the previous settings untouched.
func (s *SettingsStore) Save(ctx context.Context, settings *Settings) (*Settings, error) {
	validated, err := settings.Validate()
	if err != nil {
		return nil, err
	}
	validated.UpdatedAt = s.now().UTC()

	data, err := json.Marshal(validated)
	if err != nil {
		return nil, fmt.Errorf("winback: marshal settings: %w", err)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(validated.TenantID), data, 0)
		pipe.SAdd(ctx, tenantIndexKey, validated.TenantID)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("winback: save settings: %w", err)
	}
	return validated, nil
}

// Tenants returns every tenant id with saved settings, sorted.
func (s *SettingsStore) Tenants(ctx context.Context) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, tenantIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("winback: list tenants: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}
