// Package config loads the runner configuration from CLI flags and
// environment variables, validates it, and fills in defaults.
//
// Environment variables describe the target and the browser. Flags override
// the handful of settings that are commonly changed per run (--base-url,
// --headed, --parallel, --cases, --report-dir, --trace).
package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/kuitang/lpcheck/internal/landing"
	"github.com/kuitang/lpcheck/internal/urlutil"
)

const (
	defaultBrowser      = "chromium"
	defaultTimeout      = 5 * time.Second
	defaultPollInterval = 100 * time.Millisecond
	defaultReportDir    = "lpcheck-report"
	defaultS3Region     = "auto"
)

// Config holds the runner configuration.
type Config struct {
	// Target
	BaseURL string // BASE_URL

	// Browser
	Browser  string // LPCHECK_BROWSER: chromium, firefox or webkit
	Headless bool   // LPCHECK_HEADLESS, forced off by --headed

	// Assertions
	Timeout       time.Duration // LPCHECK_TIMEOUT, per assertion and per browser call
	PollInterval  time.Duration // LPCHECK_POLL_INTERVAL
	CTAURLPattern string        // LPCHECK_CTA_URL_PATTERN

	// Scenarios
	Parallel  int    // LPCHECK_PARALLEL, overridden by --parallel
	CasesFile string // LPCHECK_CASES_FILE, header link table in YAML

	// Reports
	ReportDir string // LPCHECK_REPORT_DIR
	Trace     bool   // LPCHECK_TRACE, print OpenTelemetry spans to stdout

	// Report upload to S3-compatible storage. Disabled when ReportBucket is empty.
	AWSEndpointS3      string // AWS_ENDPOINT_URL_S3
	AWSRegion          string // AWS_REGION
	AWSAccessKeyID     string // AWS_ACCESS_KEY_ID
	AWSSecretAccessKey string // AWS_SECRET_ACCESS_KEY
	ReportBucket       string // LPCHECK_REPORT_BUCKET

	// Environment values that did not parse. Validate reports them.
	parseErrors []string
}

// ValidationError represents a configuration validation error with multiple issues.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// Flags are the command line overrides. Zero values leave the environment
// (or the default) in charge.
type Flags struct {
	BaseURL   string
	Headed    bool
	Parallel  int
	CasesFile string
	ReportDir string
	Trace     bool
}

// ParseFlags parses args (without the program name). Call before LoadConfig.
func ParseFlags(args []string, output io.Writer) (Flags, error) {
	var f Flags
	fs := flag.NewFlagSet("lpcheck", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&f.BaseURL, "base-url", "", "Landing page URL (overrides BASE_URL)")
	fs.BoolVar(&f.Headed, "headed", false, "Show the browser window")
	fs.IntVar(&f.Parallel, "parallel", 0, "Scenarios to run at once (overrides LPCHECK_PARALLEL)")
	fs.StringVar(&f.CasesFile, "cases", "", "YAML file with the header link table (overrides LPCHECK_CASES_FILE)")
	fs.StringVar(&f.ReportDir, "report-dir", "", "Directory for report files (overrides LPCHECK_REPORT_DIR)")
	fs.BoolVar(&f.Trace, "trace", false, "Print OpenTelemetry spans to stdout")
	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}
	if fs.NArg() > 0 {
		return Flags{}, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	return f, nil
}

// LoadConfig loads configuration from environment variables and applies the
// flag overrides.
func LoadConfig(f Flags) (*Config, error) {
	cfg := &Config{}
	bad := &cfg.parseErrors

	cfg.BaseURL = getEnvOrDefault("BASE_URL", landing.DefaultBaseURL)
	if f.BaseURL != "" {
		cfg.BaseURL = f.BaseURL
	}
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)

	cfg.Browser = strings.ToLower(getEnvOrDefault("LPCHECK_BROWSER", defaultBrowser))
	cfg.Headless = parseBoolOrDefault("LPCHECK_HEADLESS", true, bad)
	if f.Headed {
		cfg.Headless = false
	}

	cfg.Timeout = parseDurationOrDefault("LPCHECK_TIMEOUT", defaultTimeout, bad)
	cfg.PollInterval = parseDurationOrDefault("LPCHECK_POLL_INTERVAL", defaultPollInterval, bad)
	cfg.CTAURLPattern = getEnvOrDefault("LPCHECK_CTA_URL_PATTERN", landing.DefaultCTAURLPattern)

	cfg.Parallel = parseIntOrDefault("LPCHECK_PARALLEL", 1, bad)
	if f.Parallel != 0 {
		cfg.Parallel = f.Parallel
	}
	cfg.CasesFile = strings.TrimSpace(os.Getenv("LPCHECK_CASES_FILE"))
	if f.CasesFile != "" {
		cfg.CasesFile = f.CasesFile
	}

	cfg.ReportDir = getEnvOrDefault("LPCHECK_REPORT_DIR", defaultReportDir)
	if f.ReportDir != "" {
		cfg.ReportDir = f.ReportDir
	}
	cfg.Trace = parseBoolOrDefault("LPCHECK_TRACE", false, bad) || f.Trace

	cfg.AWSEndpointS3 = strings.TrimSpace(os.Getenv("AWS_ENDPOINT_URL_S3"))
	cfg.AWSRegion = getEnvOrDefault("AWS_REGION", defaultS3Region)
	cfg.AWSAccessKeyID = strings.TrimSpace(os.Getenv("AWS_ACCESS_KEY_ID"))
	cfg.AWSSecretAccessKey = strings.TrimSpace(os.Getenv("AWS_SECRET_ACCESS_KEY"))
	cfg.ReportBucket = strings.TrimSpace(os.Getenv("LPCHECK_REPORT_BUCKET"))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that every setting is usable.
func (c *Config) Validate() error {
	errs := append([]string(nil), c.parseErrors...)

	if err := urlutil.ValidateBaseURL(c.BaseURL); err != nil {
		errs = append(errs, fmt.Sprintf("BASE_URL %q is invalid: %v", c.BaseURL, err))
	}

	switch c.Browser {
	case "chromium", "firefox", "webkit":
	default:
		errs = append(errs, fmt.Sprintf("LPCHECK_BROWSER must be chromium, firefox or webkit (got %q)", c.Browser))
	}

	if c.Timeout <= 0 {
		errs = append(errs, "LPCHECK_TIMEOUT must be positive")
	}
	if c.PollInterval <= 0 {
		errs = append(errs, "LPCHECK_POLL_INTERVAL must be positive")
	} else if c.Timeout > 0 && c.PollInterval > c.Timeout {
		errs = append(errs, "LPCHECK_POLL_INTERVAL must not exceed LPCHECK_TIMEOUT")
	}
	if _, err := regexp.Compile(c.CTAURLPattern); err != nil {
		errs = append(errs, fmt.Sprintf("LPCHECK_CTA_URL_PATTERN is not a valid regular expression: %v", err))
	}

	if c.Parallel < 1 {
		errs = append(errs, "LPCHECK_PARALLEL must be at least 1")
	}
	if c.ReportDir == "" {
		errs = append(errs, "LPCHECK_REPORT_DIR must not be empty")
	}

	// Upload needs credentials only when a bucket is configured.
	if c.UploadEnabled() {
		if c.AWSAccessKeyID == "" {
			errs = append(errs, "AWS_ACCESS_KEY_ID is required when LPCHECK_REPORT_BUCKET is set")
		}
		if c.AWSSecretAccessKey == "" {
			errs = append(errs, "AWS_SECRET_ACCESS_KEY is required when LPCHECK_REPORT_BUCKET is set")
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}

	return nil
}

// UploadEnabled reports whether reports should also go to S3.
func (c *Config) UploadEnabled() bool {
	return c.ReportBucket != ""
}

// CTAURL compiles CTAURLPattern. Validate has already accepted it.
func (c *Config) CTAURL() *regexp.Regexp {
	return regexp.MustCompile(c.CTAURLPattern)
}

// PrintStartupSummary prints a human-readable summary of the configuration.
func (c *Config) PrintStartupSummary(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "lpcheck starting...")
	fmt.Fprintf(w, "  Target:   %s\n", urlutil.EntryURL(c.BaseURL))

	mode := "headless"
	if !c.Headless {
		mode = "headed"
	}
	fmt.Fprintf(w, "  Browser:  %s (%s)\n", c.Browser, mode)
	fmt.Fprintf(w, "  Timeout:  %s (poll every %s)\n", c.Timeout, c.PollInterval)
	fmt.Fprintf(w, "  Parallel: %d\n", c.Parallel)

	if c.CasesFile != "" {
		fmt.Fprintf(w, "  Cases:    %s\n", c.CasesFile)
	} else {
		fmt.Fprintln(w, "  Cases:    built-in header links")
	}

	fmt.Fprintf(w, "  Reports:  %s\n", c.ReportDir)
	if c.UploadEnabled() {
		endpoint := c.AWSEndpointS3
		if endpoint == "" {
			endpoint = "AWS default"
		}
		fmt.Fprintf(w, "  Upload:   s3://%s (endpoint: %s)\n", c.ReportBucket, endpoint)
	}
	fmt.Fprintln(w, "")
}

// Helper functions for parsing environment variables

func getEnvOrDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

// The parse helpers fall back to defaultValue when key is unset. A value that
// does not parse also falls back, and is recorded in problems.

func parseIntOrDefault(key string, defaultValue int, problems *[]string) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		*problems = append(*problems, fmt.Sprintf("%s=%q is not an integer", key, value))
		return defaultValue
	}
	return parsed
}

func parseBoolOrDefault(key string, defaultValue bool, problems *[]string) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		*problems = append(*problems, fmt.Sprintf("%s=%q is not a boolean", key, value))
		return defaultValue
	}
	return parsed
}

func parseDurationOrDefault(key string, defaultValue time.Duration, problems *[]string) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		*problems = append(*problems, fmt.Sprintf("%s=%q is not a duration (e.g. 5s, 250ms)", key, value))
		return defaultValue
	}
	return parsed
}
