package compositor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cutroom/internal/media"
	"cutroom/internal/services"
	"cutroom/internal/timeline"
)

// kindManager materializes one effect kind into a surface node. Managers are
// stateless; the compositor owns the materialized bookkeeping.
type kindManager interface {
	// Materialize resolves whatever the effect needs and builds its node.
	// offsetMs is the intra-clip offset the media must start presenting.
	Materialize(ctx context.Context, effect *timeline.Effect, offsetMs int64, z int) (*Node, error)
	// Resync reports whether the node must be updated when the timeline
	// position jumps (seeks). Static kinds return false.
	Resync(node *Node, offsetMs int64) bool
}

// managerFor selects the manager for a kind; the switch is exhaustive so a
// new kind fails loudly instead of rendering nothing.
func (c *Compositor) managerFor(kind timeline.Kind) (kindManager, error) {
	switch kind {
	case timeline.KindVideo:
		return c.video, nil
	case timeline.KindImage:
		return c.image, nil
	case timeline.KindAudio:
		return c.audio, nil
	case timeline.KindText:
		return c.text, nil
	default:
		return nil, fmt.Errorf("compositor: no manager for kind %q", kind)
	}
}

// resolveCache deduplicates media resolution: a reference already resolved
// or currently resolving is never resolved twice. Failures are cached too,
// so a broken clip does not re-issue a lookup on every compose.
type resolveCache struct {
	resolver media.Resolver
	timeout  time.Duration

	mu       sync.Mutex
	inflight map[string]chan struct{}
	urls     map[string]string
	errs     map[string]error
}

func newResolveCache(resolver media.Resolver, timeout time.Duration) *resolveCache {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &resolveCache{
		resolver: resolver,
		timeout:  timeout,
		inflight: make(map[string]chan struct{}),
		urls:     make(map[string]string),
		errs:     make(map[string]error),
	}
}

func (rc *resolveCache) resolve(ctx context.Context, ref string) (string, error) {
	for {
		rc.mu.Lock()
		if url, ok := rc.urls[ref]; ok {
			rc.mu.Unlock()
			return url, nil
		}
		if err, ok := rc.errs[ref]; ok {
			rc.mu.Unlock()
			return "", err
		}
		if waiting, ok := rc.inflight[ref]; ok {
			rc.mu.Unlock()
			select {
			case <-waiting:
			case <-ctx.Done():
				return "", ctx.Err()
			}
			continue
		}
		done := make(chan struct{})
		rc.inflight[ref] = done
		rc.mu.Unlock()

		loadCtx, cancel := context.WithTimeout(ctx, rc.timeout)
		url, err := rc.resolver.Resolve(loadCtx, ref)
		cancel()
		if err != nil && loadCtx.Err() != nil && ctx.Err() == nil {
			err = services.Wrap(services.ErrTimeout, "compositor", "resolve media", ref, err)
		}

		rc.mu.Lock()
		delete(rc.inflight, ref)
		if err != nil {
			rc.errs[ref] = err
		} else {
			rc.urls[ref] = url
		}
		rc.mu.Unlock()
		close(done)

		return url, err
	}
}

// forgetFailures clears cached failures so an explicit retry can re-resolve.
func (rc *resolveCache) forgetFailures() {
	rc.mu.Lock()
	for ref := range rc.errs {
		delete(rc.errs, ref)
	}
	rc.mu.Unlock()
}

type videoManager struct{ cache *resolveCache }

func (m *videoManager) Materialize(ctx context.Context, effect *timeline.Effect, offsetMs int64, z int) (*Node, error) {
	url, err := m.cache.resolve(ctx, effect.MediaRef)
	if err != nil {
		return nil, err
	}
	node := &Node{
		ID:       effect.ID,
		Kind:     timeline.KindVideo,
		URL:      url,
		Z:        z,
		OffsetMs: offsetMs,
		Volume:   1,
	}
	if effect.Geometry != nil {
		node.Geometry = *effect.Geometry
	} else {
		node.Geometry = timeline.DefaultGeometry()
	}
	if effect.Audio != nil {
		node.Volume = effect.Audio.Volume
		node.Muted = effect.Audio.Muted
	}
	return node, nil
}

func (m *videoManager) Resync(node *Node, offsetMs int64) bool {
	node.OffsetMs = offsetMs
	return true
}

type imageManager struct{ cache *resolveCache }

func (m *imageManager) Materialize(ctx context.Context, effect *timeline.Effect, _ int64, z int) (*Node, error) {
	url, err := m.cache.resolve(ctx, effect.MediaRef)
	if err != nil {
		return nil, err
	}
	node := &Node{ID: effect.ID, Kind: timeline.KindImage, URL: url, Z: z}
	if effect.Geometry != nil {
		node.Geometry = *effect.Geometry
	} else {
		node.Geometry = timeline.DefaultGeometry()
	}
	return node, nil
}

func (m *imageManager) Resync(*Node, int64) bool { return false }

type audioManager struct{ cache *resolveCache }

func (m *audioManager) Materialize(ctx context.Context, effect *timeline.Effect, offsetMs int64, z int) (*Node, error) {
	url, err := m.cache.resolve(ctx, effect.MediaRef)
	if err != nil {
		return nil, err
	}
	node := &Node{ID: effect.ID, Kind: timeline.KindAudio, URL: url, Z: z, OffsetMs: offsetMs, Volume: 1}
	if effect.Audio != nil {
		node.Volume = effect.Audio.Volume
		node.Muted = effect.Audio.Muted
	}
	return node, nil
}

func (m *audioManager) Resync(node *Node, offsetMs int64) bool {
	node.OffsetMs = offsetMs
	return true
}

type textManager struct{}

func (m *textManager) Materialize(_ context.Context, effect *timeline.Effect, _ int64, z int) (*Node, error) {
	if effect.Text == nil {
		return nil, services.Wrap(services.ErrValidation, "compositor", "materialize text", effect.ID+" has no style block", nil)
	}
	style := *effect.Text
	node := &Node{ID: effect.ID, Kind: timeline.KindText, Z: z, Text: &style}
	if effect.Geometry != nil {
		node.Geometry = *effect.Geometry
	} else {
		node.Geometry = timeline.DefaultGeometry()
	}
	return node, nil
}

func (m *textManager) Resync(*Node, int64) bool { return false }
