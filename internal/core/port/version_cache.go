package port

import (
	"context"
	"time"

	"github.com/AkshayPatil96/e-com-backend-sub002/internal/core/domain"
)

// VersionPointerCache caches which version of a record holds an exclusive flag.
type VersionPointerCache interface {
	GetPointer(ctx context.Context, recordID string, flag domain.ExclusiveFlag) (string, error)
	SetPointer(ctx context.Context, recordID string, flag domain.ExclusiveFlag, versionID string, ttl time.Duration) error
	InvalidateRecord(ctx context.Context, recordID string) error
}

// ViewDeduper suppresses repeated views of a version by the same viewer inside a window.
type ViewDeduper interface {
	FirstView(ctx context.Context, versionID, viewerID string, window time.Duration) (bool, error)
}
