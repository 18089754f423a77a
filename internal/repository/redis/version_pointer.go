package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/AkshayPatil96/e-com-backend-sub002/internal/core/domain"
	"github.com/AkshayPatil96/e-com-backend-sub002/internal/core/port"
	"github.com/AkshayPatil96/e-com-backend-sub002/internal/repository"
)

const defaultVersionPointerPrefix = "versions:pointer"

// VersionPointerCache caches the active and published version ids of each record in a Redis hash.
type VersionPointerCache struct {
	client *red.Client
	prefix string
}

// NewVersionPointerCache constructs the pointer cache helper.
func NewVersionPointerCache(client *red.Client, keyPrefix string) *VersionPointerCache {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultVersionPointerPrefix
	}
	return &VersionPointerCache{client: client, prefix: prefix}
}

var _ port.VersionPointerCache = (*VersionPointerCache)(nil)

// GetPointer returns the cached version id holding the flag, or repository.ErrNotFound on a miss.
func (c *VersionPointerCache) GetPointer(ctx context.Context, recordID string, flag domain.ExclusiveFlag) (string, error) {
	key := c.key(recordID)
	if key == "" {
		return "", fmt.Errorf("record id is required")
	}

	versionID, err := c.client.HGet(ctx, key, string(flag)).Result()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return "", repository.ErrNotFound
		}
		return "", fmt.Errorf("redis hget version pointer: %w", err)
	}
	return versionID, nil
}

// SetPointer stores the version id for the flag and refreshes the record's TTL.
func (c *VersionPointerCache) SetPointer(ctx context.Context, recordID string, flag domain.ExclusiveFlag, versionID string, ttl time.Duration) error {
	key := c.key(recordID)
	if key == "" {
		return fmt.Errorf("record id is required")
	}
	if strings.TrimSpace(versionID) == "" {
		return fmt.Errorf("version id is required")
	}
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive")
	}

	_, err := c.client.TxPipelined(ctx, func(pipe red.Pipeliner) error {
		pipe.HSet(ctx, key, string(flag), versionID)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set version pointer: %w", err)
	}
	return nil
}

// InvalidateRecord drops every cached pointer of the record.
func (c *VersionPointerCache) InvalidateRecord(ctx context.Context, recordID string) error {
	key := c.key(recordID)
	if key == "" {
		return fmt.Errorf("record id is required")
	}
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete version pointer: %w", err)
	}
	return nil
}

func (c *VersionPointerCache) key(recordID string) string {
	recordID = strings.TrimSpace(recordID)
	if recordID == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s", c.prefix, recordID)
}
