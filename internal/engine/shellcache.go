package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ganymede-dms/ganymede/internal/schema"
	"github.com/ganymede-dms/ganymede/internal/store"
)

// ShellCache is the process-wide login-shell choice cache shared by all
// sessions. Staleness is decided by comparing the captured type stamp
// against the store's current one; the refresh runs a privileged,
// unfiltered query. The mutex ensures one refresh at a time; racing
// callers block briefly and then see the refreshed list.
type ShellCache struct {
	mu      sync.Mutex
	store   *store.Store
	stamp   int64
	seeded  bool
	choices []Choice
}

// NewShellCache returns an empty cache backed by the given store.
func NewShellCache(st *store.Store) *ShellCache {
	return &ShellCache{store: st}
}

// Choices returns the current shell choice list, refreshing it when the
// shell table has changed since the last read. The returned slice is a
// copy.
func (c *ShellCache) Choices(ctx context.Context) ([]Choice, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur, err := c.store.TypeStamp(ctx, int(schema.TypeShell))
	if err != nil {
		return nil, fmt.Errorf("shell cache: %w", err)
	}

	if !c.seeded || cur != c.stamp {
		if err := c.refreshLocked(ctx); err != nil {
			return nil, err
		}
		c.stamp = cur
		c.seeded = true
	}

	out := make([]Choice, len(c.choices))
	copy(out, c.choices)
	return out, nil
}

func (c *ShellCache) refreshLocked(ctx context.Context) error {
	labels, err := c.store.ListObjects(ctx, int(schema.TypeShell))
	if err != nil {
		return fmt.Errorf("shell cache refresh: %w", err)
	}

	nums := make([]int, 0, len(labels))
	for num := range labels {
		nums = append(nums, num)
	}
	sort.Ints(nums)

	c.choices = c.choices[:0]
	for _, num := range nums {
		c.choices = append(c.choices, Choice{
			Invid: schema.Invid{Type: schema.TypeShell, Num: num},
			Label: labels[num],
		})
	}
	return nil
}
