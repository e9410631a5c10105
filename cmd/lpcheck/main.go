// lpcheck runs the landing page acceptance checks against BASE_URL in a real
// browser and writes JSON, Markdown and HTML reports.
//
// Exit status is 0 when every scenario passes, 1 when any scenario fails or
// the browser cannot start, and 2 for usage or configuration errors.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kuitang/lpcheck/internal/config"
	"github.com/kuitang/lpcheck/internal/landing"
	"github.com/kuitang/lpcheck/internal/obs"
	"github.com/kuitang/lpcheck/internal/pwdriver"
	"github.com/kuitang/lpcheck/internal/report"
	"github.com/kuitang/lpcheck/internal/s3client"
	"github.com/kuitang/lpcheck/internal/scenario"
)

const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 2
)

// browser is what run needs from a launched browser.
type browser interface {
	scenario.SessionSource
	Close() error
}

type launchFunc func(pwdriver.Config) (browser, error)

func launchPlaywright(cfg pwdriver.Config) (browser, error) {
	l, err := pwdriver.Launch(cfg)
	if err != nil {
		return nil, err
	}
	return l, nil
}

func main() {
	obs.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, launchPlaywright)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, launch launchFunc) int {
	flags, err := config.ParseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	cfg, err := config.LoadConfig(flags)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	cfg.PrintStartupSummary(stderr)

	suite, err := buildSuite(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "invalid scenarios: %v\n", err)
		return exitUsage
	}

	if cfg.Trace {
		tp, err := obs.InitTracing(stdout, "lpcheck")
		if err != nil {
			fmt.Fprintf(stderr, "tracing disabled: %v\n", err)
		} else {
			defer func() {
				if err := tp.Shutdown(context.WithoutCancel(ctx)); err != nil {
					obs.Pkg("main").Warn("trace shutdown failed", "error", err)
				}
			}()
		}
	}

	ctx = obs.WithCorrelation(ctx, obs.Correlation{RunID: obs.NewRunID(), Browser: cfg.Browser})
	log := obs.From(ctx)

	b, err := launch(pwdriver.Config{
		Browser:  cfg.Browser,
		Headless: cfg.Headless,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		log.Error("browser launch failed", "error", err)
		fmt.Fprintf(stderr, "could not start browser: %v\n", err)
		return exitFailed
	}
	defer func() {
		if err := b.Close(); err != nil {
			log.Warn("browser close failed", "error", err)
		}
	}()

	runner := &scenario.Runner{
		Tracer:   &scenario.Tracer{Reporter: report.NewConsole(stdout)},
		Sessions: b,
		Before:   suite.Before,
		Parallel: cfg.Parallel,
	}

	started := time.Now()
	log.Info("run started", "entry_url", suite.EntryURL(), "parallel", cfg.Parallel)
	results := runner.RunAll(ctx, suite.Scenarios())
	summary := report.Build(report.Run{
		ID:      obs.RunIDFromContext(ctx),
		BaseURL: suite.EntryURL(),
		Browser: cfg.Browser,
		Started: started,
		Ended:   time.Now(),
	}, results)
	log.Info("run finished", "passed", summary.Passed, "failed", summary.Failed)

	if err := writeReports(ctx, cfg, summary, stderr); err != nil {
		log.Error("report delivery failed", "error", err)
		fmt.Fprintf(stderr, "report: %v\n", err)
	}

	report.PrintSummary(stdout, summary)
	if !summary.OK() {
		return exitFailed
	}
	return exitOK
}

// buildSuite applies the configured CTA pattern and, when set, the header
// link table from the cases file.
func buildSuite(cfg *config.Config) (*landing.Suite, error) {
	opts := landing.Options{
		BaseURL:  cfg.BaseURL,
		Asserter: &scenario.Asserter{Timeout: cfg.Timeout, Interval: cfg.PollInterval},
		CTAURL:   cfg.CTAURL(),
	}

	if cfg.CasesFile != "" {
		f, err := os.Open(cfg.CasesFile)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		set, err := scenario.LoadSet(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", cfg.CasesFile, err)
		}
		opts.HeaderLinks = &set
	}

	return landing.New(opts)
}

func writeReports(ctx context.Context, cfg *config.Config, summary report.Summary, stderr io.Writer) error {
	artifacts, err := report.Artifacts(summary)
	if err != nil {
		return err
	}

	paths, err := report.WriteDir(cfg.ReportDir, artifacts)
	for _, p := range paths {
		fmt.Fprintf(stderr, "wrote %s\n", p)
	}
	if err != nil {
		return err
	}

	if !cfg.UploadEnabled() {
		return nil
	}
	client, err := s3client.New(ctx, s3client.Config{
		Endpoint:        cfg.AWSEndpointS3,
		Region:          cfg.AWSRegion,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
		BucketName:      cfg.ReportBucket,
		UsePathStyle:    cfg.AWSEndpointS3 != "",
	})
	if err != nil {
		return err
	}
	keys, err := report.Upload(ctx, client, obs.RunIDFromContext(ctx), artifacts)
	for _, k := range keys {
		fmt.Fprintf(stderr, "uploaded %s\n", client.ObjectURI(k))
	}
	return err
}
