package scanner

import (
	"artifact-scan-gate/internal/pkg/artifact"
	"artifact-scan-gate/internal/pkg/report"
	"context"
	"k8s.io/klog/v2"
	"time"
)

// OnPropertyCreated audits operator changes to the forceDownload properties of an artifact. It never re-runs
// validation; the new value takes effect on the next download.
func (s *Scanner) OnPropertyCreated(_ context.Context, artifactID, key, value string) {
	if !artifact.IsOverrideKey(key) {
		klog.V(4).Infof("Ignoring property %s created on %s", key, artifactID)
		return
	}
	klog.Infof("Override %s set to %q on %s", key, value, artifactID)
	s.metrics.Overrides.WithLabelValues(key).Inc()
	s.notifier.Publish(&report.Event{
		Kind:       report.OverrideChanged,
		Time:       time.Now(),
		ArtifactID: artifactID,
		Key:        key,
		Value:      value,
	})
}
