package artifact

import (
	"artifact-scan-gate/internal/pkg/properties"
	"artifact-scan-gate/internal/pkg/severity"
	"context"
	"github.com/spf13/cast"
	"k8s.io/klog/v2"
	"time"
)

// Property keys persisted on every scanned artifact.
const (
	KeyTestTimestamp     = "test.timestamp"
	KeyVulnerabilities   = "issue.vulnerabilities"
	KeyLicenses          = "issue.licenses"
	KeyDetailsURL        = "issue.url"
	KeyVulnForceDownload = "issue.vulnerabilities.forceDownload"
	KeyVulnForceInfo     = "issue.vulnerabilities.forceDownload.info"
	KeyLicForceDownload  = "issue.licenses.forceDownload"
	KeyLicForceInfo      = "issue.licenses.forceDownload.info"
)

// OverrideKeys are the operator-settable keys that force future downloads through.
var OverrideKeys = []string{KeyVulnForceDownload, KeyVulnForceInfo, KeyLicForceDownload, KeyLicForceInfo}

// IsOverrideKey reports whether key is one of the forceDownload properties.
func IsOverrideKey(key string) bool {
	for _, k := range OverrideKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Ignores holds the operator overrides of an artifact. The zero value ignores nothing.
type Ignores struct {
	vulnerabilities bool
	licenses        bool
}

func (i Ignores) WithVulnerabilities(ignore bool) Ignores {
	i.vulnerabilities = ignore
	return i
}

func (i Ignores) WithLicenses(ignore bool) Ignores {
	i.licenses = ignore
	return i
}

func (i Ignores) ShouldIgnoreVulnerabilities() bool {
	return i.vulnerabilities
}

func (i Ignores) ShouldIgnoreLicenses() bool {
	return i.licenses
}

// TestResult is the outcome of one remote test.
type TestResult struct {
	Vulnerabilities severity.Summary
	Licenses        severity.Summary
	DetailsURL      string
}

// MonitoredArtifact is the last known test outcome of an artifact. Values are never mutated; a new test produces a
// new MonitoredArtifact.
type MonitoredArtifact struct {
	Path            string
	Vulnerabilities severity.Summary
	Licenses        severity.Summary
	DetailsURL      string
	Timestamp       time.Time
	Ignores         Ignores
}

// New stamps a test result taken at the given time.
func New(path string, result TestResult, at time.Time, ignores Ignores) MonitoredArtifact {
	return MonitoredArtifact{
		Path:            path,
		Vulnerabilities: result.Vulnerabilities,
		Licenses:        result.Licenses,
		DetailsURL:      result.DetailsURL,
		Timestamp:       at.UTC().Truncate(time.Second),
		Ignores:         ignores,
	}
}

// Read loads the persisted test outcome of an artifact. Any missing or unparsable property (including store read
// failures) yields false so that the caller treats the artifact as never tested.
func Read(ctx context.Context, props *properties.Artifact) (MonitoredArtifact, bool) {
	values := make(map[string]string, 4)
	for _, key := range []string{KeyTestTimestamp, KeyVulnerabilities, KeyLicenses, KeyDetailsURL} {
		v, ok, err := props.Get(ctx, key)
		if err != nil {
			klog.Warningf("Unable to read property %s of %s: %v", key, props.ID(), err)
			return MonitoredArtifact{}, false
		}
		if !ok {
			return MonitoredArtifact{}, false
		}
		values[key] = v
	}

	ts, err := time.Parse(time.RFC3339, values[KeyTestTimestamp])
	if err != nil {
		klog.V(2).Infof("Ignoring unparsable %s on %s: %q", KeyTestTimestamp, props.ID(), values[KeyTestTimestamp])
		return MonitoredArtifact{}, false
	}
	vulns, ok := severity.ParseSummary(values[KeyVulnerabilities])
	if !ok {
		klog.V(2).Infof("Ignoring unparsable %s on %s: %q", KeyVulnerabilities, props.ID(), values[KeyVulnerabilities])
		return MonitoredArtifact{}, false
	}
	licenses, ok := severity.ParseSummary(values[KeyLicenses])
	if !ok {
		klog.V(2).Infof("Ignoring unparsable %s on %s: %q", KeyLicenses, props.ID(), values[KeyLicenses])
		return MonitoredArtifact{}, false
	}

	return MonitoredArtifact{
		Path:            props.ID(),
		Vulnerabilities: vulns,
		Licenses:        licenses,
		DetailsURL:      values[KeyDetailsURL],
		Timestamp:       ts,
		Ignores:         ReadIgnores(ctx, props),
	}, true
}

// Write persists a test outcome. The timestamp is written last so that an interrupted write never pairs a new
// timestamp with stale counts.
func Write(ctx context.Context, props *properties.Artifact, a MonitoredArtifact) error {
	for _, kv := range [][2]string{
		{KeyVulnerabilities, a.Vulnerabilities.String()},
		{KeyLicenses, a.Licenses.String()},
		{KeyDetailsURL, a.DetailsURL},
		{KeyTestTimestamp, a.Timestamp.UTC().Format(time.RFC3339)},
	} {
		if err := props.Set(ctx, kv[0], kv[1]); err != nil {
			return err
		}
	}
	return nil
}

// ReadIgnores reads the forceDownload overrides. Absent, unreadable or non-boolean values count as false.
func ReadIgnores(ctx context.Context, props *properties.Artifact) Ignores {
	return Ignores{}.
		WithVulnerabilities(readBool(ctx, props, KeyVulnForceDownload)).
		WithLicenses(readBool(ctx, props, KeyLicForceDownload))
}

func readBool(ctx context.Context, props *properties.Artifact, key string) bool {
	v, ok, err := props.Get(ctx, key)
	if err != nil {
		klog.Warningf("Unable to read property %s of %s: %v", key, props.ID(), err)
		return false
	}
	if !ok {
		return false
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		klog.Warningf("Property %s of %s is not a boolean: %q", key, props.ID(), v)
		return false
	}
	return b
}

// InitOverrides sets every absent forceDownload property to its default ("false" for the flags, empty for the
// info keys). Existing values are never touched.
func InitOverrides(ctx context.Context, props *properties.Artifact) error {
	defaults := [][2]string{
		{KeyVulnForceDownload, "false"},
		{KeyVulnForceInfo, ""},
		{KeyLicForceDownload, "false"},
		{KeyLicForceInfo, ""},
	}
	for _, kv := range defaults {
		has, err := props.Has(ctx, kv[0])
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if err := props.Set(ctx, kv[0], kv[1]); err != nil {
			return err
		}
	}
	return nil
}
