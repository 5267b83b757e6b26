package cmd

import (
	"artifact-scan-gate/internal/pkg/ecosystem"
	"artifact-scan-gate/internal/pkg/properties"
	"artifact-scan-gate/internal/pkg/validator"
	"errors"
	"fmt"
	"github.com/alexflint/go-arg"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"
	"os"
	"strings"
	"time"
)

type Config struct {
	ConfigFile             string        `arg:"--config,env:SCAN_GATE_CONFIG" help:"YAML file providing base settings" yaml:"-"`
	ListenAddr             string        `arg:"--listen-addr,env:LISTEN_ADDR" yaml:"listenAddr"`
	APIURL                 string        `arg:"--api-url,env:SCAN_API_URL" yaml:"apiUrl"`
	APIToken               string        `arg:"--api-token,env:SCAN_API_TOKEN" yaml:"apiToken"`
	APIOrg                 string        `arg:"--api-org,env:SCAN_API_ORG" yaml:"apiOrg"`
	WebURL                 string        `arg:"--web-url,env:SCAN_WEB_URL" yaml:"webUrl"`
	APITimeout             time.Duration `arg:"--api-timeout,env:SCAN_API_TIMEOUT" yaml:"apiTimeout"`
	APIRetries             int           `arg:"--api-retries,env:SCAN_API_RETRIES" yaml:"apiRetries"`
	VulnerabilityThreshold string        `arg:"--vulnerability-threshold,env:VULNERABILITY_THRESHOLD" help:"low, medium, high, critical or none" yaml:"vulnerabilityThreshold"`
	LicenseThreshold       string        `arg:"--license-threshold,env:LICENSE_THRESHOLD" help:"low, medium, high, critical or none" yaml:"licenseThreshold"`
	BlockOnAPIFailure      bool          `arg:"--block-on-api-failure,env:BLOCK_ON_API_FAILURE" help:"block downloads that cannot be tested" yaml:"blockOnApiFailure"`
	TestFrequency          time.Duration `arg:"--test-frequency,env:TEST_FREQUENCY" help:"how long a test result is reused; 0 tests every download" yaml:"testFrequency"`
	ExtendTestDeadline     time.Duration `arg:"--extend-test-deadline,env:EXTEND_TEST_DEADLINE" help:"how long a due result is still served when re-testing fails" yaml:"extendTestDeadline"`
	ScanMaven              bool          `arg:"--scan-maven,env:SCAN_MAVEN" yaml:"scanMaven"`
	ScanNpm                bool          `arg:"--scan-npm,env:SCAN_NPM" yaml:"scanNpm"`
	ScanPyPI               bool          `arg:"--scan-pypi,env:SCAN_PYPI" yaml:"scanPypi"`
	ScanRubyGems           bool          `arg:"--scan-rubygems,env:SCAN_RUBYGEMS" yaml:"scanRubygems"`
	ScanNuGet              bool          `arg:"--scan-nuget,env:SCAN_NUGET" yaml:"scanNuget"`
	ScanCocoaPods          bool          `arg:"--scan-cocoapods,env:SCAN_COCOAPODS" yaml:"scanCocoapods"`
	NotifyConcurrency      int           `arg:"--notify-concurrency,env:NOTIFY_CONCURRENCY" yaml:"notifyConcurrency"`
	LogVerbosity           int           `arg:"-v,--verbosity,env:LOG_VERBOSITY" yaml:"logVerbosity"`
	StoreConfig            `yaml:",inline"`
	SlackConfig            `yaml:",inline"`
}

type StoreConfig struct {
	StoreType      string `arg:"--store-type,env:STORE_TYPE" help:"memory, sqlite, postgres, dynamodb or configmap" yaml:"storeType"`
	StoreDSN       string `arg:"--store-dsn,env:STORE_DSN" help:"SQLite path, Postgres connection string or kubeconfig path" yaml:"storeDsn"`
	StoreTable     string `arg:"--store-table,env:STORE_TABLE" help:"DynamoDB table" yaml:"storeTable"`
	StoreNamespace string `arg:"--store-namespace,env:STORE_NAMESPACE" help:"namespace of the ConfigMap store" yaml:"storeNamespace"`
}

type SlackConfig struct {
	SlackToken     string `arg:"--slack-token,env:SLACK_TOKEN" yaml:"slackToken"`
	SlackChannelID string `arg:"--slack-channel-id,env:SLACK_CHANNEL_ID" yaml:"slackChannelId"`
}

func DefaultConfiguration() *Config {
	return &Config{
		ListenAddr:             ":8080",
		APIURL:                 "https://api.snyk.io/v1/",
		WebURL:                 "https://security.snyk.io",
		APITimeout:             time.Minute,
		APIRetries:             3,
		VulnerabilityThreshold: "low",
		LicenseThreshold:       "low",
		TestFrequency:          7 * 24 * time.Hour,
		ExtendTestDeadline:     24 * time.Hour,
		ScanMaven:              true,
		ScanNpm:                true,
		ScanPyPI:               true,
		NotifyConcurrency:      2,
		StoreConfig: StoreConfig{
			StoreType: "sqlite",
		},
	}
}

// Load builds the configuration from defaults, an optional .env file, an optional YAML file and finally the
// command line and environment, each layer overriding the previous one.
func Load(args []string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := DefaultConfiguration()
	if err := parse(cfg, args); err != nil {
		return nil, err
	}
	if cfg.ConfigFile == "" {
		return cfg, nil
	}

	path := cfg.ConfigFile
	klog.Infof("Loading configuration from %s", path)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	cfg = DefaultConfiguration()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	if err := parse(cfg, args); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parse applies the command line and environment to cfg, printing usage when help was requested.
func parse(cfg *Config, args []string) error {
	p, err := arg.NewParser(arg.Config{Program: "scan-gate"}, cfg)
	if err != nil {
		return err
	}
	err = p.Parse(args)
	if errors.Is(err, arg.ErrHelp) {
		p.WriteHelp(os.Stdout)
	}
	return err
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	if _, err := c.ValidationSettings(); err != nil {
		return err
	}
	if !validStoreType(c.StoreType) {
		return fmt.Errorf("unsupported store type %q, expected one of %s", c.StoreType, strings.Join(properties.Types, ", "))
	}
	if c.TestFrequency < 0 || c.ExtendTestDeadline < 0 || c.APITimeout < 0 {
		return errors.New("durations must not be negative")
	}
	if c.APIRetries < 0 {
		return errors.New("api retries must not be negative")
	}
	if c.NotifyConcurrency < 1 {
		return errors.New("notify concurrency must be at least 1")
	}
	return nil
}

// ValidationSettings returns the parsed severity thresholds.
func (c *Config) ValidationSettings() (validator.Settings, error) {
	return validator.NewSettings(c.VulnerabilityThreshold, c.LicenseThreshold)
}

// Ecosystems returns the scan enable flag of every ecosystem.
func (c *Config) Ecosystems() map[ecosystem.Ecosystem]bool {
	return map[ecosystem.Ecosystem]bool{
		ecosystem.Maven:     c.ScanMaven,
		ecosystem.Npm:       c.ScanNpm,
		ecosystem.PyPI:      c.ScanPyPI,
		ecosystem.RubyGems:  c.ScanRubyGems,
		ecosystem.NuGet:     c.ScanNuGet,
		ecosystem.CocoaPods: c.ScanCocoaPods,
	}
}

// Store returns the property store settings.
func (c *Config) Store() properties.Config {
	return properties.Config{
		Type:      c.StoreType,
		DSN:       c.StoreDSN,
		Table:     c.StoreTable,
		Namespace: c.StoreNamespace,
	}
}

// SlackEnabled reports whether both Slack settings are present.
func (c *Config) SlackEnabled() bool {
	return c.SlackToken != "" && c.SlackChannelID != ""
}

func validStoreType(t string) bool {
	for _, v := range properties.Types {
		if strings.EqualFold(v, t) {
			return true
		}
	}
	return false
}
