package scenario

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"golang.org/x/time/rate"

	"github.com/kuitang/lpcheck/internal/errs"
	"github.com/kuitang/lpcheck/internal/logutil"
)

const (
	DefaultTimeout  = 5 * time.Second
	DefaultInterval = 100 * time.Millisecond

	observedMaxChars = 200
)

var errWindowExpired = errors.New("wait window expired")

// Asserter checks expected page state, polling until the predicate holds or
// the wait window closes. The final check starts when Timeout elapses.
type Asserter struct {
	Timeout  time.Duration
	Interval time.Duration
}

// Visible waits until d resolves to at least one visible element.
func (a *Asserter) Visible(ctx context.Context, r Resolver, d Descriptor) error {
	observed, err := a.poll(ctx, func(ctx context.Context) (bool, string) {
		visible, err := r.Resolve(d).Visible(ctx)
		if err != nil {
			return false, "error: " + logutil.TruncateForLog(err.Error(), observedMaxChars)
		}
		if !visible {
			return false, "not visible"
		}
		return true, "visible"
	})
	return a.outcome(err, "visible", d.String(), observed)
}

// URL waits until the page URL matches pattern.
func (a *Asserter) URL(ctx context.Context, src URLSource, pattern *regexp.Regexp) error {
	if pattern == nil {
		return errs.New(errs.InvalidArgument, "url assertion needs a pattern")
	}
	observed, err := a.poll(ctx, func(context.Context) (bool, string) {
		current := src.CurrentURL()
		return pattern.MatchString(current), logutil.RedactURLForLog(current)
	})
	return a.outcome(err, "url", "/"+pattern.String()+"/", observed)
}

// Text waits until the text of the element d resolves to matches pattern.
func (a *Asserter) Text(ctx context.Context, r Resolver, d Descriptor, pattern *regexp.Regexp) error {
	if pattern == nil {
		return errs.New(errs.InvalidArgument, "text assertion needs a pattern")
	}
	observed, err := a.poll(ctx, func(ctx context.Context) (bool, string) {
		text, err := r.Resolve(d).Text(ctx)
		if err != nil {
			return false, "error: " + logutil.TruncateForLog(err.Error(), observedMaxChars)
		}
		return pattern.MatchString(text), logutil.TruncateForLog(text, observedMaxChars)
	})
	return a.outcome(err, "text of "+d.String(), "/"+pattern.String()+"/", observed)
}

// FirstVisible resolves alternatives left to right on every poll and returns
// the first one that is visible. If none becomes visible in the window it
// fails with an ElementNotFound error naming every alternative.
func (a *Asserter) FirstVisible(ctx context.Context, r Resolver, alts ...Descriptor) (Elements, Descriptor, error) {
	if len(alts) == 0 {
		return nil, Descriptor{}, errs.New(errs.InvalidArgument, "fallback resolution needs at least one descriptor")
	}

	var (
		found   Elements
		which   Descriptor
		lastErr string
	)
	_, err := a.poll(ctx, func(ctx context.Context) (bool, string) {
		for _, d := range alts {
			el := r.Resolve(d)
			visible, err := el.Visible(ctx)
			if err != nil {
				lastErr = logutil.TruncateForLog(err.Error(), observedMaxChars)
				continue
			}
			if visible {
				found, which = el, d
				return true, d.String()
			}
		}
		return false, ""
	})
	switch {
	case err == nil:
		return found, which, nil
	case errors.Is(err, errWindowExpired):
		return nil, Descriptor{}, notFound(alts, lastErr)
	default:
		return nil, Descriptor{}, err
	}
}

func (a *Asserter) outcome(err error, check, expected, observed string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errWindowExpired):
		return timedOut(check, expected, observed)
	default:
		return err
	}
}

// poll runs check at most once per interval until it reports true. The last
// check runs when the timeout elapses, even if that is sooner than a full
// interval after the one before. It returns the last observation,
// errWindowExpired when the timeout elapsed, or a canceled error when ctx
// itself ended first.
func (a *Asserter) poll(ctx context.Context, check func(context.Context) (bool, string)) (string, error) {
	deadline := time.Now().Add(a.timeout())
	// A check may start right at the deadline; give it one interval to answer.
	cctx, cancel := context.WithDeadline(ctx, deadline.Add(a.interval()))
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(a.interval()), 1)
	observed := "nothing observed"
	for last := false; !last; {
		delay := limiter.Reserve().Delay()
		if left := time.Until(deadline); delay >= left {
			delay, last = max(left, 0), true
		}
		if err := sleepCtx(ctx, delay); err != nil {
			return observed, errs.Wrap(errs.Canceled, fmt.Sprintf("wait canceled: %v", err), err)
		}
		ok, seen := check(cctx)
		if seen != "" {
			observed = seen
		}
		if ok {
			return observed, nil
		}
	}
	return observed, errWindowExpired
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (a *Asserter) timeout() time.Duration {
	if a == nil || a.Timeout <= 0 {
		return DefaultTimeout
	}
	return a.Timeout
}

func (a *Asserter) interval() time.Duration {
	if a == nil || a.Interval <= 0 {
		return DefaultInterval
	}
	return a.Interval
}
