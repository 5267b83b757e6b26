package scanner

import (
	"artifact-scan-gate/internal/pkg/artifact"
	"artifact-scan-gate/internal/pkg/cache"
	"artifact-scan-gate/internal/pkg/ecosystem"
	"artifact-scan-gate/internal/pkg/metrics"
	"artifact-scan-gate/internal/pkg/properties"
	"artifact-scan-gate/internal/pkg/report"
	"artifact-scan-gate/internal/pkg/severity"
	"artifact-scan-gate/internal/pkg/snyk"
	"artifact-scan-gate/internal/pkg/validator"
	"context"
	"errors"
	"fmt"
	"k8s.io/klog/v2"
	"time"
)

var (
	// ErrUnresolvableCoordinate means the artifact path does not name a package of its ecosystem.
	ErrUnresolvableCoordinate = errors.New("unable to resolve package coordinate")
	// ErrMalformedResponse means the scan API answered with data that cannot be summarized.
	ErrMalformedResponse = errors.New("malformed scan API response")
)

// Decision outcomes, also used as metric labels.
const (
	OutcomeAllowed         = "allowed"
	OutcomeBlocked         = "blocked"
	OutcomeUnsupported     = "unsupported"
	OutcomeDisabled        = "disabled"
	OutcomeUnresolvable    = "unresolvable"
	OutcomeFailOpen        = "fail_open"
	OutcomeFailClosed      = "fail_closed"
	unknownEcosystemMetric = "none"
)

// Client tests a package against the vulnerability database.
type Client interface {
	Test(ctx context.Context, coord ecosystem.Coordinate) (*snyk.TestResult, error)
}

// Notifier receives block and override events.
type Notifier interface {
	Publish(e *report.Event)
}

// Config holds the per-request policy of a Scanner.
type Config struct {
	Ecosystems        map[ecosystem.Ecosystem]bool
	Settings          validator.Settings
	BlockOnAPIFailure bool
	APITimeout        time.Duration
}

// Decision is the outcome of one before-download event.
type Decision struct {
	Allowed    bool
	Outcome    string
	Reason     string
	Ecosystem  ecosystem.Ecosystem
	Coordinate ecosystem.Coordinate
	Artifact   *artifact.MonitoredArtifact
	Violations []validator.Violation
}

// Scanner decides whether artifacts may be downloaded.
type Scanner struct {
	cfg      Config
	store    properties.Store
	cache    *cache.ArtifactTestCache
	client   Client
	metrics  *metrics.Metrics
	notifier Notifier
}

// New returns a Scanner. notifier may be nil.
func New(cfg Config, store properties.Store, testCache *cache.ArtifactTestCache, client Client, m *metrics.Metrics, notifier Notifier) *Scanner {
	if notifier == nil {
		notifier = discard{}
	}
	return &Scanner{
		cfg:      cfg,
		store:    store,
		cache:    testCache,
		client:   client,
		metrics:  m,
		notifier: notifier,
	}
}

// Scan runs the full decision for an artifact about to be served. The returned error is non-nil only when the
// artifact cannot be identified; the Decision is always meaningful.
func (s *Scanner) Scan(ctx context.Context, in ecosystem.Input) (Decision, error) {
	id := in.ID()
	eco, err := ecosystem.Select(in.PackageType, in.Path)
	if err != nil {
		klog.Warningf("Skipping scan of %s (package type %q): %v", id, in.PackageType, err)
		return s.decide(Decision{Allowed: true, Outcome: OutcomeUnsupported}), nil
	}
	if !s.cfg.Ecosystems[eco] {
		klog.Infof("Skipping scan of %s: %s scanning is disabled", id, eco)
		return s.decide(Decision{Allowed: true, Outcome: OutcomeDisabled, Ecosystem: eco}), nil
	}

	coord, ok := ecosystem.Resolve(eco, in)
	if !ok {
		err := fmt.Errorf("%w: %s artifact %s", ErrUnresolvableCoordinate, eco, id)
		klog.Errorf("Blocking download of %s: %v", id, err)
		d := s.decide(Decision{Outcome: OutcomeUnresolvable, Ecosystem: eco, Reason: err.Error()})
		s.notifier.Publish(blockedEvent(id, d))
		return d, err
	}

	props := properties.ForArtifact(s.store, id)
	if err := artifact.InitOverrides(ctx, props); err != nil {
		klog.Warningf("Unable to initialize override properties of %s: %v", id, err)
	}

	a, err := s.cache.GetArtifact(ctx, props, s.fetch(eco, coord))
	if err != nil {
		return s.apiFailure(id, eco, coord, err), nil
	}

	verdict := validator.Validate(a, s.cfg.Settings)
	d := Decision{
		Allowed:    verdict.Allowed(),
		Outcome:    OutcomeAllowed,
		Ecosystem:  eco,
		Coordinate: coord,
		Artifact:   &a,
		Violations: verdict.Violations,
	}
	if !d.Allowed {
		d.Outcome = OutcomeBlocked
		d.Reason = verdict.Reason()
		if a.DetailsURL != "" {
			d.Reason = fmt.Sprintf("%s (details: %s)", d.Reason, a.DetailsURL)
		}
		klog.Infof("Blocking download of %s: %s", coord, d.Reason)
		s.notifier.Publish(blockedEvent(id, d))
	} else {
		klog.V(2).Infof("Allowing download of %s: vulnerabilities %s; licenses %s", coord, a.Vulnerabilities, a.Licenses)
	}
	return s.decide(d), nil
}

// apiFailure applies the fail-open or fail-closed policy when no usable test result exists.
func (s *Scanner) apiFailure(id string, eco ecosystem.Ecosystem, coord ecosystem.Coordinate, err error) Decision {
	if !s.cfg.BlockOnAPIFailure {
		klog.Warningf("Allowing download of %s without a test result: %v", coord, err)
		return s.decide(Decision{Allowed: true, Outcome: OutcomeFailOpen, Ecosystem: eco, Coordinate: coord})
	}
	klog.Errorf("Blocking download of %s without a test result: %v", coord, err)
	d := s.decide(Decision{
		Outcome:    OutcomeFailClosed,
		Ecosystem:  eco,
		Coordinate: coord,
		Reason:     fmt.Sprintf("%s: unable to test %s: %v", id, coord, err),
	})
	s.notifier.Publish(blockedEvent(id, d))
	return d
}

func (s *Scanner) decide(d Decision) Decision {
	label := string(d.Ecosystem)
	if label == "" {
		label = unknownEcosystemMetric
	}
	s.metrics.Decisions.WithLabelValues(label, d.Outcome).Inc()
	return d
}

// fetch returns the cache's fetch function for one coordinate, bounded by the API timeout.
func (s *Scanner) fetch(eco ecosystem.Ecosystem, coord ecosystem.Coordinate) cache.FetchFunc {
	return func(ctx context.Context) (artifact.TestResult, error) {
		if s.cfg.APITimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.cfg.APITimeout)
			defer cancel()
		}
		start := time.Now()
		res, err := s.client.Test(ctx, coord)
		if err == nil {
			var result artifact.TestResult
			result, err = convert(res)
			if err == nil {
				s.metrics.ObserveScan(string(eco), start, nil)
				return result, nil
			}
		}
		s.metrics.ObserveScan(string(eco), start, err)
		klog.Errorf("Test of %s failed: %v", coord, err)
		return artifact.TestResult{}, err
	}
}

// convert summarizes a scan API response. Issues flagged as ignored upstream are not counted.
func convert(res *snyk.TestResult) (artifact.TestResult, error) {
	if res == nil {
		return artifact.TestResult{}, fmt.Errorf("%w: empty result", ErrMalformedResponse)
	}
	vulns, err := issues(res.Issues.Vulnerabilities)
	if err != nil {
		return artifact.TestResult{}, err
	}
	licenses, err := issues(res.Issues.Licenses)
	if err != nil {
		return artifact.TestResult{}, err
	}
	return artifact.TestResult{
		Vulnerabilities: severity.FromIssues(vulns),
		Licenses:        severity.FromIssues(licenses),
		DetailsURL:      res.DetailsURL,
	}, nil
}

func issues(in []snyk.Issue) ([]severity.Issue, error) {
	out := make([]severity.Issue, len(in))
	for i, issue := range in {
		sev, err := severity.Parse(issue.Severity)
		if err != nil {
			return nil, fmt.Errorf("%w: issue %s: %v", ErrMalformedResponse, issue.ID, err)
		}
		out[i] = severity.Issue{Severity: sev, Ignored: issue.IsIgnored}
	}
	return out, nil
}

func blockedEvent(id string, d Decision) *report.Event {
	e := &report.Event{
		Kind:       report.BlockedDownload,
		Time:       time.Now(),
		ArtifactID: id,
		Reason:     d.Reason,
	}
	if d.Coordinate != (ecosystem.Coordinate{}) {
		e.Coordinate = d.Coordinate.String()
	}
	if d.Artifact != nil {
		e.Vulnerabilities = d.Artifact.Vulnerabilities.String()
		e.Licenses = d.Artifact.Licenses.String()
		e.DetailsURL = d.Artifact.DetailsURL
	}
	for _, v := range d.Violations {
		e.Violations = append(e.Violations, report.Violation{
			Dimension: string(v.Dimension),
			Threshold: v.Threshold.String(),
			Count:     v.Count,
		})
	}
	return e
}

type discard struct{}

func (discard) Publish(*report.Event) {}
