package widget

import (
	"context"
	"sync"

	"github.com/ashureev/ecolite-widget/internal/handoff"
)

// pageNavigator drives the visitor's page through the outbox and feeds back
// the focus-loss signals the thin client reports.
type pageNavigator struct {
	out *Outbox

	mu       sync.Mutex
	watching chan handoff.Signal
}

func newPageNavigator(out *Outbox) *pageNavigator {
	return &pageNavigator{out: out}
}

// Navigate implements handoff.Navigator.
func (n *pageNavigator) Navigate(ctx context.Context, url string) error {
	return n.out.Send(ctx, Command{Type: CmdNavigate, URL: url})
}

// OpenWindow implements handoff.Navigator.
func (n *pageNavigator) OpenWindow(ctx context.Context, url string) error {
	return n.out.Send(ctx, Command{Type: CmdOpenWindow, URL: url})
}

// WatchFocusLoss implements handoff.Navigator. The watch command is queued
// ahead of anything the caller sends afterwards.
func (n *pageNavigator) WatchFocusLoss() (<-chan handoff.Signal, func()) {
	ch := make(chan handoff.Signal, 1)
	n.mu.Lock()
	n.watching = ch
	n.mu.Unlock()
	_ = n.out.Send(context.Background(), Command{Type: CmdWatchFocus})

	var once sync.Once
	stop := func() {
		once.Do(func() {
			n.mu.Lock()
			if n.watching == ch {
				n.watching = nil
			}
			n.mu.Unlock()
			_ = n.out.Send(context.Background(), Command{Type: CmdUnwatchFocus})
		})
	}
	return ch, stop
}

// deliver hands a reported signal to the active watch, if any. Signals with
// no watch, or beyond the first, are dropped.
func (n *pageNavigator) deliver(sig handoff.Signal) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.watching == nil {
		return false
	}
	select {
	case n.watching <- sig:
		return true
	default:
		return false
	}
}
