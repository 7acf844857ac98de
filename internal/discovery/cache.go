package discovery

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/stationlink/stationcfg/internal/logging"
)

// EnumerateFunc performs capability enumeration for one device.
type EnumerateFunc func(ctx context.Context) error

// Cache remembers which devices have completed capability enumeration.
// Concurrent callers for the same device share one enumeration.
type Cache struct {
	mu         sync.Mutex
	discovered map[string]bool
	// generation is bumped by Forget so that an enumeration started
	// before a disconnect cannot mark the device afterwards, and so that
	// callers arriving after Forget do not accept its result.
	generation map[string]uint64

	group singleflight.Group
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		discovered: make(map[string]bool),
		generation: make(map[string]uint64),
	}
}

// IsDiscovered reports whether enumeration has completed for deviceID.
func (c *Cache) IsDiscovered(deviceID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.discovered[deviceID]
}

// Forget clears the discovery state for deviceID. It is called when the
// device disconnects or its session closes. An enumeration already in
// flight keeps running; later callers wait for it and then enumerate
// again, so enumerations of one device never overlap.
func (c *Cache) Forget(deviceID string) {
	c.mu.Lock()
	delete(c.discovered, deviceID)
	c.generation[deviceID]++
	c.mu.Unlock()

	logging.Debug("Discovery state cleared", zap.String("device_id", deviceID))
}

// EnsureDiscovered runs enumerate unless deviceID is already marked.
//
// At most one enumeration per device is in flight; other callers wait for
// its outcome. Success marks the device. Failure leaves it unmarked so
// the next call retries. A caller whose ctx is cancelled returns early
// without affecting the in-flight enumeration. A caller that receives
// another caller's cancellation while its own ctx is live starts a new
// enumeration, as does a caller that joined a flight started before the
// last Forget.
func (c *Cache) EnsureDiscovered(ctx context.Context, deviceID string, enumerate EnumerateFunc) error {
	for {
		if c.IsDiscovered(deviceID) {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		gen := c.currentGeneration(deviceID)
		ch := c.group.DoChan(deviceID, func() (any, error) {
			if c.IsDiscovered(deviceID) {
				return gen, nil
			}
			logging.Debug("Enumerating device", zap.String("device_id", deviceID))
			if err := enumerate(ctx); err != nil {
				logging.Debug("Enumeration failed",
					zap.String("device_id", deviceID),
					zap.Error(err),
				)
				return gen, err
			}
			c.mark(deviceID, gen)
			return gen, nil
		})

		select {
		case <-ctx.Done():
			return ctx.Err()
		case res := <-ch:
			if flightGen, _ := res.Val.(uint64); flightGen < gen {
				continue
			}
			if res.Err == nil {
				return nil
			}
			if res.Shared && ctx.Err() == nil && isCancellation(res.Err) {
				continue
			}
			return res.Err
		}
	}
}

func (c *Cache) currentGeneration(deviceID string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation[deviceID]
}

func (c *Cache) mark(deviceID string, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation[deviceID] != gen {
		return
	}
	c.discovered[deviceID] = true
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
