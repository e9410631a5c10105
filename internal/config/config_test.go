package config

import (
	"bytes"
	"errors"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kuitang/lpcheck/internal/landing"
)

func validTestConfig() Config {
	return Config{
		BaseURL:       "http://localhost:3000/",
		Browser:       "chromium",
		Headless:      true,
		Timeout:       5 * time.Second,
		PollInterval:  100 * time.Millisecond,
		CTAURLPattern: landing.DefaultCTAURLPattern,
		Parallel:      1,
		ReportDir:     "lpcheck-report",
		AWSRegion:     "auto",
	}
}

// clearEnv unsets every variable LoadConfig reads so the host environment
// cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"BASE_URL", "LPCHECK_BROWSER", "LPCHECK_HEADLESS", "LPCHECK_TIMEOUT",
		"LPCHECK_POLL_INTERVAL", "LPCHECK_CTA_URL_PATTERN", "LPCHECK_PARALLEL",
		"LPCHECK_CASES_FILE", "LPCHECK_REPORT_DIR", "LPCHECK_TRACE",
		"AWS_ENDPOINT_URL_S3", "AWS_REGION", "AWS_ACCESS_KEY_ID",
		"AWS_SECRET_ACCESS_KEY", "LPCHECK_REPORT_BUCKET",
	} {
		t.Setenv(key, "")
	}
}

func TestValidate_DefaultConfigPasses(t *testing.T) {
	t.Parallel()
	cfg := validTestConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got error: %v", err)
	}
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	t.Parallel()
	cfg := validTestConfig()
	cfg.BaseURL = "localhost:3000"
	cfg.Browser = "netscape"
	cfg.Timeout = 0
	cfg.PollInterval = 0
	cfg.CTAURLPattern = "(["
	cfg.Parallel = 0
	cfg.ReportDir = ""

	err := cfg.Validate()
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.Len(t, verr.Errors, 7)
	msg := err.Error()
	for _, expected := range []string{
		"BASE_URL",
		"LPCHECK_BROWSER",
		"LPCHECK_TIMEOUT",
		"LPCHECK_POLL_INTERVAL",
		"LPCHECK_CTA_URL_PATTERN",
		"LPCHECK_PARALLEL",
		"LPCHECK_REPORT_DIR",
	} {
		require.Contains(t, msg, expected)
	}
}

func TestValidate_UploadNeedsCredentials(t *testing.T) {
	t.Parallel()
	cfg := validTestConfig()
	cfg.ReportBucket = "reports"

	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "AWS_ACCESS_KEY_ID")
	require.Contains(t, err.Error(), "AWS_SECRET_ACCESS_KEY")

	cfg.AWSAccessKeyID = "key"
	cfg.AWSSecretAccessKey = "secret"
	require.NoError(t, cfg.Validate())
	require.True(t, cfg.UploadEnabled())
}

func testValidate_PollIntervalNotAboveTimeout(t *rapid.T) {
	cfg := validTestConfig()
	cfg.Timeout = time.Duration(rapid.IntRange(1, 10_000).Draw(t, "timeout_ms")) * time.Millisecond
	cfg.PollInterval = time.Duration(rapid.IntRange(1, 10_000).Draw(t, "interval_ms")) * time.Millisecond

	err := cfg.Validate()
	if cfg.PollInterval > cfg.Timeout {
		if err == nil || !strings.Contains(err.Error(), "must not exceed") {
			t.Fatalf("expected interval error for %v > %v, got %v", cfg.PollInterval, cfg.Timeout, err)
		}
		return
	}
	if err != nil {
		t.Fatalf("unexpected error for %v <= %v: %v", cfg.PollInterval, cfg.Timeout, err)
	}
}

func TestValidate_PollIntervalNotAboveTimeout(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testValidate_PollIntervalNotAboveTimeout)
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig(Flags{})
	require.NoError(t, err)
	require.Equal(t, landing.DefaultBaseURL, cfg.BaseURL)
	require.Equal(t, landing.DefaultCTAURLPattern, cfg.CTAURLPattern)
	require.Equal(t, "chromium", cfg.Browser)
	require.True(t, cfg.Headless)
	require.Equal(t, 5*time.Second, cfg.Timeout)
	require.Equal(t, 100*time.Millisecond, cfg.PollInterval)
	require.Equal(t, 1, cfg.Parallel)
	require.Equal(t, "lpcheck-report", cfg.ReportDir)
	require.False(t, cfg.Trace)
	require.False(t, cfg.UploadEnabled())
	require.True(t, cfg.CTAURL().MatchString("http://localhost:3000/trial/"))
}

func TestLoadConfig_EnvThenFlags(t *testing.T) {
	clearEnv(t)
	t.Setenv("BASE_URL", " https://lp.example.com ")
	t.Setenv("LPCHECK_BROWSER", "Firefox")
	t.Setenv("LPCHECK_PARALLEL", "4")
	t.Setenv("LPCHECK_TIMEOUT", "2s")
	t.Setenv("LPCHECK_REPORT_DIR", "/tmp/env-reports")

	cfg, err := LoadConfig(Flags{})
	require.NoError(t, err)
	require.Equal(t, "https://lp.example.com", cfg.BaseURL)
	require.Equal(t, "firefox", cfg.Browser)
	require.Equal(t, 4, cfg.Parallel)
	require.Equal(t, 2*time.Second, cfg.Timeout)

	cfg, err = LoadConfig(Flags{
		BaseURL:   "http://127.0.0.1:8080/",
		Headed:    true,
		Parallel:  2,
		CasesFile: "cases.yaml",
		ReportDir: "out",
		Trace:     true,
	})
	require.NoError(t, err)
	require.Equal(t, "http://127.0.0.1:8080/", cfg.BaseURL)
	require.False(t, cfg.Headless)
	require.Equal(t, 2, cfg.Parallel)
	require.Equal(t, "cases.yaml", cfg.CasesFile)
	require.Equal(t, "out", cfg.ReportDir)
	require.True(t, cfg.Trace)
}

func TestLoadConfig_InvalidEnvFails(t *testing.T) {
	clearEnv(t)
	t.Setenv("BASE_URL", "ftp://lp.example.com")

	cfg, err := LoadConfig(Flags{})
	require.Nil(t, cfg)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
}

func TestParseFlags(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer

	f, err := ParseFlags([]string{"--base-url", "http://lp.test/", "--headed", "--parallel=3", "--trace"}, &out)
	require.NoError(t, err)
	require.Equal(t, Flags{BaseURL: "http://lp.test/", Headed: true, Parallel: 3, Trace: true}, f)

	_, err = ParseFlags([]string{"--no-such-flag"}, &out)
	require.Error(t, err)

	_, err = ParseFlags([]string{"extra"}, &out)
	require.Error(t, err)
}

func TestPrintStartupSummary(t *testing.T) {
	t.Parallel()
	cfg := validTestConfig()
	cfg.ReportBucket = "reports"
	var out bytes.Buffer
	cfg.PrintStartupSummary(&out)

	require.Contains(t, out.String(), "Target:   http://localhost:3000/")
	require.Contains(t, out.String(), "chromium (headless)")
	require.Contains(t, out.String(), "built-in header links")
	require.Contains(t, out.String(), "s3://reports (endpoint: AWS default)")
}

func TestHelperParsers_DefaultOnBadInput(t *testing.T) {
	t.Setenv("CFG_TEST_INT", "not-an-int")
	t.Setenv("CFG_TEST_BOOL", "not-a-bool")
	t.Setenv("CFG_TEST_DUR", "not-a-duration")
	var problems []string
	if got := parseIntOrDefault("CFG_TEST_INT", 7, &problems); got != 7 {
		t.Fatalf("parseIntOrDefault fallback mismatch: got=%d want=7", got)
	}
	if got := parseBoolOrDefault("CFG_TEST_BOOL", true, &problems); !got {
		t.Fatalf("parseBoolOrDefault fallback mismatch: got=%v want=true", got)
	}
	if got := parseDurationOrDefault("CFG_TEST_DUR", 2*time.Minute, &problems); got != 2*time.Minute {
		t.Fatalf("parseDurationOrDefault fallback mismatch: got=%v want=%v", got, 2*time.Minute)
	}
	if len(problems) != 3 {
		t.Fatalf("expected 3 recorded problems, got %v", problems)
	}
}

func TestHelperParsers_UnsetRecordsNothing(t *testing.T) {
	t.Setenv("CFG_TEST_INT", "")
	t.Setenv("CFG_TEST_DUR", " 250ms ")
	var problems []string
	require.Equal(t, 3, parseIntOrDefault("CFG_TEST_INT", 3, &problems))
	require.Equal(t, 250*time.Millisecond, parseDurationOrDefault("CFG_TEST_DUR", time.Second, &problems))
	require.Empty(t, problems)
}

func TestLoadConfig_MalformedEnvIsReported(t *testing.T) {
	clearEnv(t)
	t.Setenv("LPCHECK_TIMEOUT", "5")
	t.Setenv("LPCHECK_PARALLEL", "two")
	t.Setenv("LPCHECK_HEADLESS", "maybe")

	cfg, err := LoadConfig(Flags{})
	require.Nil(t, cfg)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.Len(t, verr.Errors, 3)
	require.Contains(t, err.Error(), `LPCHECK_TIMEOUT="5" is not a duration`)
	require.Contains(t, err.Error(), `LPCHECK_PARALLEL="two" is not an integer`)
	require.Contains(t, err.Error(), `LPCHECK_HEADLESS="maybe" is not a boolean`)
}

func TestGetEnvOrDefault_TrimsWhitespace(t *testing.T) {
	key := "CFG_TEST_STR_" + strconv.FormatInt(time.Now().UnixNano(), 10)
	if err := os.Setenv(key, "   value   "); err != nil {
		t.Fatalf("Setenv failed: %v", err)
	}
	t.Cleanup(func() { _ = os.Unsetenv(key) })

	if got := getEnvOrDefault(key, "fallback"); got != "value" {
		t.Fatalf("getEnvOrDefault trim mismatch: got=%q want=%q", got, "value")
	}
}
