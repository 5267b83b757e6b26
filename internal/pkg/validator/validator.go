package validator

import (
	"artifact-scan-gate/internal/pkg/artifact"
	"artifact-scan-gate/internal/pkg/severity"
	"fmt"
	"k8s.io/klog/v2"
	"strings"
)

// Dimension is one of the two independently validated issue kinds.
type Dimension string

const (
	Vulnerabilities Dimension = "vulnerabilities"
	Licenses        Dimension = "licenses"
)

// Settings holds the thresholds at which each dimension blocks.
type Settings struct {
	VulnerabilityThreshold severity.Threshold
	LicenseThreshold       severity.Threshold
}

// NewSettings parses both thresholds; an unknown name is an invalid configuration.
func NewSettings(vulnerabilityThreshold, licenseThreshold string) (Settings, error) {
	vt, err := severity.ParseThreshold(vulnerabilityThreshold)
	if err != nil {
		return Settings{}, fmt.Errorf("vulnerability threshold: %w", err)
	}
	lt, err := severity.ParseThreshold(licenseThreshold)
	if err != nil {
		return Settings{}, fmt.Errorf("license threshold: %w", err)
	}
	return Settings{VulnerabilityThreshold: vt, LicenseThreshold: lt}, nil
}

// Violation is a dimension whose issue count at or above the threshold is non-zero.
type Violation struct {
	Dimension Dimension
	Threshold severity.Threshold
	Count     int
}

// Verdict is the outcome of validating one artifact.
type Verdict struct {
	Path       string
	Violations []Violation
}

func (v Verdict) Allowed() bool {
	return len(v.Violations) == 0
}

// Reason describes why the artifact is blocked; it is empty for allowed artifacts.
func (v Verdict) Reason() string {
	if v.Allowed() {
		return ""
	}
	parts := make([]string, len(v.Violations))
	for i, viol := range v.Violations {
		parts[i] = fmt.Sprintf("artifact has %d %s issue(s) at or above %s severity", viol.Count, viol.Dimension, viol.Threshold)
	}
	return fmt.Sprintf("%s: %s", v.Path, strings.Join(parts, "; "))
}

// Validate checks both dimensions of the artifact against the settings.
func Validate(a artifact.MonitoredArtifact, s Settings) Verdict {
	verdict := Verdict{Path: a.Path}
	if viol, ok := check(a.Path, Vulnerabilities, a.Vulnerabilities, s.VulnerabilityThreshold, a.Ignores.ShouldIgnoreVulnerabilities()); ok {
		verdict.Violations = append(verdict.Violations, viol)
	}
	if viol, ok := check(a.Path, Licenses, a.Licenses, s.LicenseThreshold, a.Ignores.ShouldIgnoreLicenses()); ok {
		verdict.Violations = append(verdict.Violations, viol)
	}
	return verdict
}

func check(path string, dim Dimension, summary severity.Summary, threshold severity.Threshold, ignore bool) (Violation, bool) {
	if ignore {
		klog.V(2).Infof("Ignoring %s issues of %s (%s) due to forceDownload override", dim, path, summary)
		return Violation{}, false
	}
	sev, ok := threshold.Severity()
	if !ok {
		return Violation{}, false
	}
	count := summary.CountAtOrAbove(sev)
	if count == 0 {
		return Violation{}, false
	}
	return Violation{Dimension: dim, Threshold: threshold, Count: count}, true
}
