package snyk

import (
	"artifact-scan-gate/internal/pkg/ecosystem"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/hashicorp/go-retryablehttp"
	"k8s.io/klog/v2"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var ErrUnexpectedStatus = errors.New("unexpected status from scan API")

// Config configures a Client.
type Config struct {
	APIURL       string
	WebURL       string
	Token        string
	Organization string
	Timeout      time.Duration
	Retries      int
}

// Client calls the package test endpoints of a Snyk-compatible vulnerability database.
type Client struct {
	http         *retryablehttp.Client
	apiURL       string
	webURL       string
	token        string
	organization string
}

// Issue is a single reported vulnerability or license issue.
type Issue struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Severity  string `json:"severity"`
	URL       string `json:"url"`
	IsIgnored bool   `json:"isIgnored"`
}

// TestResult is the decoded response of a package test.
type TestResult struct {
	OK     bool `json:"ok"`
	Issues struct {
		Vulnerabilities []Issue `json:"vulnerabilities"`
		Licenses        []Issue `json:"licenses"`
	} `json:"issues"`
	PackageManager string `json:"packageManager"`
	DetailsURL     string `json:"-"`
}

// NewClient returns a Client that retries transient failures (connection errors, 429 and 5xx responses).
func NewClient(cfg Config) *Client {
	hc := retryablehttp.NewClient()
	hc.RetryMax = cfg.Retries
	hc.RetryWaitMin = 500 * time.Millisecond
	hc.RetryWaitMax = 5 * time.Second
	hc.HTTPClient.Timeout = cfg.Timeout
	hc.Logger = klogAdapter{}
	return &Client{
		http:         hc,
		apiURL:       strings.TrimSuffix(cfg.APIURL, "/"),
		webURL:       strings.TrimSuffix(cfg.WebURL, "/"),
		token:        cfg.Token,
		organization: cfg.Organization,
	}
}

// packageManager maps an ecosystem onto the package manager segment of the test endpoint.
func packageManager(eco ecosystem.Ecosystem) (string, error) {
	switch eco {
	case ecosystem.Maven:
		return "maven", nil
	case ecosystem.Npm:
		return "npm", nil
	case ecosystem.PyPI:
		return "pip", nil
	case ecosystem.RubyGems:
		return "rubygems", nil
	case ecosystem.NuGet:
		return "nuget", nil
	case ecosystem.CocoaPods:
		return "cocoapods", nil
	default:
		return "", fmt.Errorf("ecosystem %q is not supported by the scan API", eco)
	}
}

// packagePath returns the escaped "<name>/<version>" part of the endpoint. Maven coordinates become
// "<groupId>/<artifactId>/<version>".
func packagePath(c ecosystem.Coordinate) (string, error) {
	if c.Ecosystem == ecosystem.Maven {
		parts := strings.SplitN(c.Name, ":", 2)
		if len(parts) != 2 {
			return "", fmt.Errorf("maven coordinate %q is not groupId:artifactId", c.Name)
		}
		return url.PathEscape(parts[0]) + "/" + url.PathEscape(parts[1]) + "/" + url.PathEscape(c.Version), nil
	}
	return url.PathEscape(c.Name) + "/" + url.PathEscape(c.Version), nil
}

// Test runs a vulnerability and license test of the given package release.
func (c *Client) Test(ctx context.Context, coord ecosystem.Coordinate) (*TestResult, error) {
	pm, err := packageManager(coord.Ecosystem)
	if err != nil {
		return nil, err
	}
	pkgPath, err := packagePath(coord)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/test/%s/%s", c.apiURL, pm, pkgPath)
	if c.organization != "" {
		endpoint += "?org=" + url.QueryEscape(c.organization)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "token "+c.token)
	}

	klog.V(2).Infof("Testing %s against %s", coord, endpoint)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scan API request for %s failed: %w", coord, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s for %s", ErrUnexpectedStatus, resp.Status, coord)
	}

	var result TestResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode scan API response for %s: %w", coord, err)
	}
	result.DetailsURL = c.detailsURL(pm, coord)
	return &result, nil
}

func (c *Client) detailsURL(pm string, coord ecosystem.Coordinate) string {
	return fmt.Sprintf("%s/package/%s/%s/%s", c.webURL, pm, url.PathEscape(coord.Name), url.PathEscape(coord.Version))
}

// klogAdapter routes retryablehttp's leveled logging to klog.
type klogAdapter struct{}

func (klogAdapter) Error(msg string, keysAndValues ...interface{}) {
	klog.ErrorS(nil, msg, keysAndValues...)
}

func (klogAdapter) Info(msg string, keysAndValues ...interface{}) {
	klog.V(4).InfoS(msg, keysAndValues...)
}

func (klogAdapter) Debug(msg string, keysAndValues ...interface{}) {
	klog.V(5).InfoS(msg, keysAndValues...)
}

func (klogAdapter) Warn(msg string, keysAndValues ...interface{}) {
	klog.V(1).InfoS(msg, keysAndValues...)
}
