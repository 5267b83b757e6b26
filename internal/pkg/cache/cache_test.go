package cache

import (
	"artifact-scan-gate/internal/pkg/artifact"
	"artifact-scan-gate/internal/pkg/properties"
	"artifact-scan-gate/internal/pkg/severity"
	"context"
	"errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

const testID = "pypi:packages/foo-1.0.tar.gz"

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type fetchRecorder struct {
	calls  int
	result artifact.TestResult
	err    error
}

func (f *fetchRecorder) fetch(context.Context) (artifact.TestResult, error) {
	f.calls++
	return f.result, f.err
}

func summary(t *testing.T, critical, high, medium, low int) severity.Summary {
	t.Helper()
	s, err := severity.FromCounts(critical, high, medium, low)
	require.NoError(t, err)
	return s
}

func seed(t *testing.T, props *properties.Artifact, at time.Time) artifact.MonitoredArtifact {
	t.Helper()
	a := artifact.New(props.ID(), artifact.TestResult{
		Vulnerabilities: summary(t, 0, 1, 0, 0),
		Licenses:        summary(t, 0, 0, 0, 0),
		DetailsURL:      "https://example.com/old",
	}, at, artifact.Ignores{})
	require.NoError(t, artifact.Write(context.Background(), props, a))
	return a
}

func newProps() *properties.Artifact {
	return properties.ForArtifact(properties.NewMemoryStore(), testID)
}

func newCache(outcomes *[]Outcome) *ArtifactTestCache {
	return New(time.Hour, time.Hour,
		WithClock(func() time.Time { return now }),
		WithObserver(func(o Outcome) { *outcomes = append(*outcomes, o) }))
}

func TestMissFetchesAndPersists(t *testing.T) {
	var outcomes []Outcome
	props := newProps()
	f := &fetchRecorder{result: artifact.TestResult{Vulnerabilities: summary(t, 2, 0, 0, 0), DetailsURL: "https://example.com/new"}}

	got, err := newCache(&outcomes).GetArtifact(context.Background(), props, f.fetch)
	require.NoError(t, err)
	assert.Equal(t, 1, f.calls)
	assert.Equal(t, 2, got.Vulnerabilities.Count(severity.Critical))
	assert.Equal(t, now, got.Timestamp)
	assert.Equal(t, []Outcome{Miss}, outcomes)

	persisted, ok := artifact.Read(context.Background(), props)
	require.True(t, ok)
	assert.Equal(t, got, persisted)
}

func TestMissPropagatesFetchFailure(t *testing.T) {
	var outcomes []Outcome
	f := &fetchRecorder{err: errors.New("connection refused")}

	_, err := newCache(&outcomes).GetArtifact(context.Background(), newProps(), f.fetch)
	assert.EqualError(t, err, "connection refused")
	assert.Empty(t, outcomes)
}

func TestFreshResultIsReused(t *testing.T) {
	var outcomes []Outcome
	props := newProps()
	cached := seed(t, props, now.Add(-30*time.Minute))
	f := &fetchRecorder{}

	got, err := newCache(&outcomes).GetArtifact(context.Background(), props, f.fetch)
	require.NoError(t, err)
	assert.Equal(t, 0, f.calls)
	assert.Equal(t, cached, got)
	assert.Equal(t, []Outcome{Fresh}, outcomes)
}

func TestDueResultIsRefreshed(t *testing.T) {
	var outcomes []Outcome
	props := newProps()
	seed(t, props, now.Add(-90*time.Minute))
	f := &fetchRecorder{result: artifact.TestResult{Vulnerabilities: summary(t, 0, 0, 0, 5), DetailsURL: "https://example.com/new"}}

	got, err := newCache(&outcomes).GetArtifact(context.Background(), props, f.fetch)
	require.NoError(t, err)
	assert.Equal(t, 1, f.calls)
	assert.Equal(t, 5, got.Vulnerabilities.Count(severity.Low))
	assert.Equal(t, now, got.Timestamp)
	assert.Equal(t, []Outcome{Refreshed}, outcomes)

	ts, _, _ := props.Get(context.Background(), artifact.KeyTestTimestamp)
	assert.Equal(t, now.Format(time.RFC3339), ts)
}

func TestFailedRetestWithinGraceServesStale(t *testing.T) {
	var outcomes []Outcome
	props := newProps()
	cached := seed(t, props, now.Add(-90*time.Minute))
	f := &fetchRecorder{err: context.DeadlineExceeded}

	got, err := newCache(&outcomes).GetArtifact(context.Background(), props, f.fetch)
	require.NoError(t, err)
	assert.Equal(t, 1, f.calls)
	assert.Equal(t, cached, got)
	assert.Equal(t, []Outcome{Stale}, outcomes)

	// The stale result stays persisted untouched.
	persisted, ok := artifact.Read(context.Background(), props)
	require.True(t, ok)
	assert.Equal(t, cached, persisted)
}

func TestFailedRetestPastDeadlinePropagates(t *testing.T) {
	var outcomes []Outcome
	props := newProps()
	seed(t, props, now.Add(-3*time.Hour))
	f := &fetchRecorder{err: errors.New("503 Service Unavailable")}

	_, err := newCache(&outcomes).GetArtifact(context.Background(), props, f.fetch)
	assert.EqualError(t, err, "503 Service Unavailable")
	assert.Equal(t, 1, f.calls)
	assert.Empty(t, outcomes)
}

func TestRetestPastDeadline(t *testing.T) {
	var outcomes []Outcome
	props := newProps()
	seed(t, props, now.Add(-3*time.Hour))
	f := &fetchRecorder{result: artifact.TestResult{DetailsURL: "https://example.com/new"}}

	got, err := newCache(&outcomes).GetArtifact(context.Background(), props, f.fetch)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/new", got.DetailsURL)
	assert.Equal(t, []Outcome{Expired}, outcomes)
}

func TestZeroFrequencyAlwaysFetches(t *testing.T) {
	var outcomes []Outcome
	props := newProps()
	seed(t, props, now)
	f := &fetchRecorder{err: errors.New("timeout")}
	c := New(0, time.Hour,
		WithClock(func() time.Time { return now }),
		WithObserver(func(o Outcome) { outcomes = append(outcomes, o) }))

	_, err := c.GetArtifact(context.Background(), props, f.fetch)
	assert.Error(t, err)
	assert.Equal(t, 1, f.calls)

	f.err = nil
	f.result = artifact.TestResult{DetailsURL: "https://example.com/new"}
	got, err := c.GetArtifact(context.Background(), props, f.fetch)
	require.NoError(t, err)
	assert.Equal(t, 2, f.calls)
	assert.Equal(t, "https://example.com/new", got.DetailsURL)

	url, _, _ := props.Get(context.Background(), artifact.KeyDetailsURL)
	assert.Equal(t, "https://example.com/new", url)
}

func TestCorruptPropertiesTriggerFetch(t *testing.T) {
	var outcomes []Outcome
	props := newProps()
	seed(t, props, now)
	require.NoError(t, props.Set(context.Background(), artifact.KeyLicenses, "garbage"))
	f := &fetchRecorder{}

	_, err := newCache(&outcomes).GetArtifact(context.Background(), props, f.fetch)
	require.NoError(t, err)
	assert.Equal(t, 1, f.calls)
	assert.Equal(t, []Outcome{Miss}, outcomes)
}

func TestFetchedResultCarriesIgnores(t *testing.T) {
	var outcomes []Outcome
	props := newProps()
	require.NoError(t, props.Set(context.Background(), artifact.KeyLicForceDownload, "true"))
	f := &fetchRecorder{}

	got, err := newCache(&outcomes).GetArtifact(context.Background(), props, f.fetch)
	require.NoError(t, err)
	assert.True(t, got.Ignores.ShouldIgnoreLicenses())
	assert.False(t, got.Ignores.ShouldIgnoreVulnerabilities())
}
