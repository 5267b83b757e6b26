package cache

import (
	"artifact-scan-gate/internal/pkg/artifact"
	"artifact-scan-gate/internal/pkg/properties"
	"context"
	"k8s.io/klog/v2"
	"time"
)

// Outcome describes how a lookup was served.
type Outcome string

const (
	// Miss means nothing usable was persisted and a test was run.
	Miss Outcome = "miss"
	// Fresh means the persisted result was younger than the test frequency.
	Fresh Outcome = "fresh"
	// Refreshed means a due test was run successfully.
	Refreshed Outcome = "refreshed"
	// Stale means a due test failed inside the grace window and the persisted result was served.
	Stale Outcome = "stale"
	// Expired means the persisted result was past the hard deadline and a test was run.
	Expired Outcome = "expired"
)

// FetchFunc runs a remote test of the artifact.
type FetchFunc func(ctx context.Context) (artifact.TestResult, error)

// ArtifactTestCache decides when a persisted test result can be reused. It holds no per-artifact state; the
// property store is the only backing.
type ArtifactTestCache struct {
	testFrequency      time.Duration
	extendTestDeadline time.Duration
	now                func() time.Time
	observe            func(Outcome)
}

// Option configures an ArtifactTestCache.
type Option func(*ArtifactTestCache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *ArtifactTestCache) {
		c.now = now
	}
}

// WithObserver registers a callback invoked with the outcome of every successful lookup.
func WithObserver(observe func(Outcome)) Option {
	return func(c *ArtifactTestCache) {
		c.observe = observe
	}
}

// New returns a cache that reuses results for testFrequency and, when a re-test fails, keeps serving them for a
// further extendTestDeadline. A zero testFrequency disables reuse entirely.
func New(testFrequency, extendTestDeadline time.Duration, opts ...Option) *ArtifactTestCache {
	c := &ArtifactTestCache{
		testFrequency:      testFrequency,
		extendTestDeadline: extendTestDeadline,
		now:                time.Now,
		observe:            func(Outcome) {},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetArtifact returns the test outcome of the artifact behind props, running fetch when the persisted one is
// missing or due. Fetched results are written back to props.
func (c *ArtifactTestCache) GetArtifact(ctx context.Context, props *properties.Artifact, fetch FetchFunc) (artifact.MonitoredArtifact, error) {
	cached, ok := artifact.Read(ctx, props)
	if !ok {
		return c.fetchAndStore(ctx, props, fetch, Miss)
	}
	if c.testFrequency == 0 {
		return c.fetchAndStore(ctx, props, fetch, Expired)
	}

	now := c.now()
	due := cached.Timestamp.Add(c.testFrequency)
	if now.Before(due) {
		klog.V(4).Infof("Using cached test result of %s from %s", props.ID(), cached.Timestamp.Format(time.RFC3339))
		c.observe(Fresh)
		return cached, nil
	}

	if now.Before(due.Add(c.extendTestDeadline)) {
		fresh, err := c.fetchAndStore(ctx, props, fetch, Refreshed)
		if err != nil {
			klog.Warningf("Re-test of %s failed, using result from %s until %s: %v", props.ID(),
				cached.Timestamp.Format(time.RFC3339), due.Add(c.extendTestDeadline).Format(time.RFC3339), err)
			c.observe(Stale)
			return cached, nil
		}
		return fresh, nil
	}

	klog.V(2).Infof("Test result of %s from %s is past its deadline", props.ID(), cached.Timestamp.Format(time.RFC3339))
	return c.fetchAndStore(ctx, props, fetch, Expired)
}

func (c *ArtifactTestCache) fetchAndStore(ctx context.Context, props *properties.Artifact, fetch FetchFunc, outcome Outcome) (artifact.MonitoredArtifact, error) {
	result, err := fetch(ctx)
	if err != nil {
		return artifact.MonitoredArtifact{}, err
	}
	a := artifact.New(props.ID(), result, c.now(), artifact.ReadIgnores(ctx, props))
	if err := artifact.Write(ctx, props, a); err != nil {
		klog.Errorf("Unable to persist test result of %s: %v", props.ID(), err)
	}
	c.observe(outcome)
	return a, nil
}
