package handoff

import (
	"context"
	"regexp"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Platform is the visitor's operating-system family.
type Platform string

const (
	// PlatformAndroid understands intent:// links.
	PlatformAndroid Platform = "android"
	// PlatformIOS opens apps through their url scheme.
	PlatformIOS Platform = "ios"
	// PlatformDesktop covers everything else.
	PlatformDesktop Platform = "desktop"
)

var (
	androidRe = regexp.MustCompile(`(?i)android`)
	iosRe     = regexp.MustCompile(`(?i)iphone|ipad|ipod`)
)

// DetectPlatform classifies a User-Agent string.
func DetectPlatform(userAgent string) Platform {
	switch {
	case androidRe.MatchString(userAgent):
		return PlatformAndroid
	case iosRe.MatchString(userAgent):
		return PlatformIOS
	default:
		return PlatformDesktop
	}
}

// Signal is a page-lifecycle event hinting that focus left the page.
type Signal string

const (
	SignalVisibilityChange Signal = "visibilitychange"
	SignalPageHide         Signal = "pagehide"
	SignalBlur             Signal = "blur"
)

// ParseSignal maps a DOM event name to a Signal.
func ParseSignal(name string) (Signal, bool) {
	switch s := Signal(name); s {
	case SignalVisibilityChange, SignalPageHide, SignalBlur:
		return s, true
	}
	return "", false
}

// Navigator is the page the visitor is looking at.
type Navigator interface {
	// Navigate points the current page at url.
	Navigate(ctx context.Context, url string) error
	// OpenWindow opens url in a new browsing context.
	OpenWindow(ctx context.Context, url string) error
	// WatchFocusLoss registers the visibility-change, page-hide and blur
	// listeners. stop removes them; it is safe to call more than once.
	WatchFocusLoss() (signals <-chan Signal, stop func())
}

// Outcome reports how one handoff ended.
type Outcome string

const (
	// OutcomeIntent means the page was sent to the intent link; the OS owns
	// the fallback from there.
	OutcomeIntent Outcome = "intent"
	// OutcomeAppOpened means a focus-loss signal won the race. This is a
	// guess, not a confirmation that the app launched.
	OutcomeAppOpened Outcome = "app_opened"
	// OutcomeFallback means the timer won and the web URL was opened.
	OutcomeFallback Outcome = "fallback"
	// OutcomeCancelled means ctx ended before either side won.
	OutcomeCancelled Outcome = "cancelled"
)

// Launcher runs the open/fallback race for one click at a time.
type Launcher struct {
	timeout time.Duration
}

// NewLauncher creates a launcher; a non-positive timeout uses 1200ms.
func NewLauncher(timeout time.Duration) *Launcher {
	if timeout <= 0 {
		timeout = DefaultConfig().Timeout
	}
	return &Launcher{timeout: timeout}
}

// Launch hands the visitor off using set.
//
// Android pages go straight to the intent link. Elsewhere the focus-loss
// listeners are registered first, the app link is navigated to, and the
// first of {signal, timer} wins. Exactly one side acts: a signal means no
// further action, the timer opens the web URL once.
func (l *Launcher) Launch(ctx context.Context, nav Navigator, set DeepLinkSet, platform Platform) (Outcome, error) {
	if platform == PlatformAndroid {
		if err := nav.Navigate(ctx, set.IntentURL); err != nil {
			return OutcomeIntent, errors.Wrap(err, "navigate to intent link")
		}
		return OutcomeIntent, nil
	}

	signals, stop := nav.WatchFocusLoss()
	defer stop()

	if err := nav.Navigate(ctx, set.AppURL); err != nil {
		return OutcomeCancelled, errors.Wrap(err, "navigate to app link")
	}

	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	select {
	case sig := <-signals:
		log.Debug().Str("signal", string(sig)).Str("phone", set.Phone).Msg("Handoff focus loss observed")
		return OutcomeAppOpened, nil
	case <-timer.C:
		stop()
		log.Debug().Str("phone", set.Phone).Dur("timeout", l.timeout).Msg("Handoff timed out, opening web fallback")
		if err := nav.OpenWindow(ctx, set.WebURL); err != nil {
			return OutcomeFallback, errors.Wrap(err, "open web fallback")
		}
		return OutcomeFallback, nil
	case <-ctx.Done():
		return OutcomeCancelled, ctx.Err()
	}
}
