package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/AkshayPatil96/e-com-backend-sub002/internal/core/port"
)

const defaultViewDedupPrefix = "versions:view"

// ViewDeduper remembers (version, viewer) pairs for a window so repeated views count once.
type ViewDeduper struct {
	client *red.Client
	prefix string
}

// NewViewDeduper constructs the view de-duplication helper.
func NewViewDeduper(client *red.Client, keyPrefix string) *ViewDeduper {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultViewDedupPrefix
	}
	return &ViewDeduper{client: client, prefix: prefix}
}

var _ port.ViewDeduper = (*ViewDeduper)(nil)

// FirstView reports whether this is the viewer's first view of the version inside the window.
// Anonymous views are never de-duplicated.
func (d *ViewDeduper) FirstView(ctx context.Context, versionID, viewerID string, window time.Duration) (bool, error) {
	versionID = strings.TrimSpace(versionID)
	viewerID = strings.TrimSpace(viewerID)
	if versionID == "" {
		return false, fmt.Errorf("version id is required")
	}
	if viewerID == "" || window <= 0 {
		return true, nil
	}

	key := fmt.Sprintf("%s:%s:%s", d.prefix, versionID, viewerID)
	first, err := d.client.SetNX(ctx, key, time.Now().UTC().Unix(), window).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx view marker: %w", err)
	}
	return first, nil
}
