package conversation

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/ecolite-widget/internal/domain"
	"github.com/ashureev/ecolite-widget/internal/handoff"
	"github.com/ashureev/ecolite-widget/internal/richtext"
	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSessions struct{}

func (fakeSessions) SessionID(context.Context) (string, error) { return "web-test", nil }

type call struct {
	req   domain.ChatRequest
	reply chan result
}

type result struct {
	reply domain.ChatReply
	err   error
}

// fakeTransport hands every request to the test, which answers it through
// the call's reply channel.
type fakeTransport struct {
	calls chan call
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{calls: make(chan call, 8)}
}

func (f *fakeTransport) Chat(ctx context.Context, req domain.ChatRequest) (domain.ChatReply, error) {
	c := call{req: req, reply: make(chan result, 1)}
	f.calls <- c
	select {
	case r := <-c.reply:
		return r.reply, r.err
	case <-ctx.Done():
		return domain.ChatReply{}, ctx.Err()
	}
}

func (f *fakeTransport) next(t *testing.T) call {
	t.Helper()
	select {
	case c := <-f.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no request dispatched")
		return call{}
	}
}

func (f *fakeTransport) none(t *testing.T) {
	t.Helper()
	select {
	case c := <-f.calls:
		t.Fatalf("unexpected request %+v", c.req)
	case <-time.After(50 * time.Millisecond):
	}
}

type bubble struct {
	Role   domain.Role
	Markup string
}

type fakePresenter struct {
	mu        sync.Mutex
	bubbles   []bubble
	results   [][]domain.Product
	hasMore   []bool
	cleared   int
	busy      bool
	busyFlips []bool
}

func (p *fakePresenter) AppendMessage(role domain.Role, markup string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bubbles = append(p.bubbles, bubble{role, markup})
}

func (p *fakePresenter) ShowResults(products []domain.Product, hasMore bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.results = append(p.results, products)
	p.hasMore = append(p.hasMore, hasMore)
}

func (p *fakePresenter) ClearShowMore() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cleared++
}

func (p *fakePresenter) SetBusy(busy bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.busy = busy
	p.busyFlips = append(p.busyFlips, busy)
}

func (p *fakePresenter) bubbleCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.bubbles)
}

func (p *fakePresenter) lastBubble() bubble {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bubbles[len(p.bubbles)-1]
}

type harness struct {
	ctrl      *Controller
	transport *fakeTransport
	presenter *fakePresenter
}

func start(t *testing.T, renderer *richtext.Renderer) *harness {
	t.Helper()
	h := &harness{transport: newFakeTransport(), presenter: &fakePresenter{}}
	ctrl, err := New(Options{
		Transport: h.transport,
		Sessions:  fakeSessions{},
		Presenter: h.presenter,
		Renderer:  renderer,
	})
	require.NoError(t, err)
	h.ctrl = ctrl

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = ctrl.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

func (h *harness) waitBubbles(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.presenter.bubbleCount() >= n }, 2*time.Second, 5*time.Millisecond)
}

func (h *harness) waitState(t *testing.T, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return h.ctrl.Snapshot() == want }, 2*time.Second, 5*time.Millisecond,
		"state %+v", h.ctrl.Snapshot())
}

func products(n int) []domain.Product {
	out := make([]domain.Product, n)
	for i := range out {
		out[i] = domain.Product{Title: "Panel", URL: "https://ecolite.com.co/p"}
	}
	return out
}

func TestPagingAndContinuation(t *testing.T) {
	h := start(t, nil)
	ctx := context.Background()

	require.NoError(t, h.ctrl.Send(ctx, "  panel 60x60 "))
	c := h.transport.next(t)
	assert.Equal(t, domain.ChatRequest{SessionID: "web-test", Message: "panel 60x60", Page: 0}, c.req)
	h.waitState(t, State{Page: 0, Pending: 1})

	c.reply <- result{reply: domain.ChatReply{Products: products(5), HasMore: true}}
	h.waitState(t, State{LastQuery: "panel 60x60", Page: 1})

	h.presenter.mu.Lock()
	require.Len(t, h.presenter.results, 1)
	assert.Len(t, h.presenter.results[0], 5)
	assert.Equal(t, []bool{true}, h.presenter.hasMore)
	assert.False(t, h.presenter.busy)
	h.presenter.mu.Unlock()

	require.NoError(t, h.ctrl.Send(ctx, "más"))
	c = h.transport.next(t)
	assert.Equal(t, domain.ChatRequest{SessionID: "web-test", Message: "panel 60x60", Page: 1}, c.req)
	c.reply <- result{reply: domain.ChatReply{Products: products(2), LastQuery: "panel 60x60"}}
	h.waitState(t, State{LastQuery: "panel 60x60", Page: 2})

	h.presenter.mu.Lock()
	cleared := h.presenter.cleared
	h.presenter.mu.Unlock()

	require.NoError(t, h.ctrl.Send(ctx, "reflector"))
	c = h.transport.next(t)
	assert.Equal(t, domain.ChatRequest{SessionID: "web-test", Message: "reflector", Page: 0}, c.req)

	h.presenter.mu.Lock()
	assert.Greater(t, h.presenter.cleared, cleared)
	h.presenter.mu.Unlock()

	c.reply <- result{reply: domain.ChatReply{Content: "Estos son los reflectores."}}
	h.waitState(t, State{LastQuery: "reflector", Page: 0})
}

func TestContinuationWithoutHistoryIsFresh(t *testing.T) {
	h := start(t, nil)

	require.NoError(t, h.ctrl.Send(context.Background(), "ver más"))
	c := h.transport.next(t)
	assert.Equal(t, "ver más", c.req.Message)
	assert.Equal(t, 0, c.req.Page)
	c.reply <- result{}
}

func TestEmptyInputIsIgnored(t *testing.T) {
	h := start(t, nil)

	require.NoError(t, h.ctrl.Send(context.Background(), "   "))
	h.transport.none(t)
	assert.Zero(t, h.presenter.bubbleCount())
}

func TestReset(t *testing.T) {
	h := start(t, nil)
	ctx := context.Background()

	require.NoError(t, h.ctrl.Send(ctx, "panel"))
	c := h.transport.next(t)
	c.reply <- result{reply: domain.ChatReply{Products: products(5), HasMore: true}}
	h.waitState(t, State{LastQuery: "panel", Page: 1})

	require.NoError(t, h.ctrl.Send(ctx, "RESET"))
	h.transport.none(t)
	h.waitState(t, State{})

	last := h.presenter.lastBubble()
	assert.Equal(t, domain.RoleSystem, last.Role)
	assert.Contains(t, last.Markup, "Sesión reiniciada.")
	assert.Contains(t, last.Markup, DefaultCatalogURL)
}

func TestFailureKeepsState(t *testing.T) {
	h := start(t, nil)
	ctx := context.Background()

	require.NoError(t, h.ctrl.Send(ctx, "panel"))
	c := h.transport.next(t)
	c.reply <- result{reply: domain.ChatReply{Products: products(5), HasMore: true}}
	h.waitState(t, State{LastQuery: "panel", Page: 1})

	require.NoError(t, h.ctrl.Send(ctx, "siguiente"))
	c = h.transport.next(t)
	c.reply <- result{err: errors.New("HTTP 502 bad gateway")}
	h.waitBubbles(t, 3)

	last := h.presenter.lastBubble()
	assert.Equal(t, domain.RoleSystem, last.Role)
	assert.Equal(t, "⚠️ No me pude conectar. HTTP 502 bad gateway", last.Markup)
	h.waitState(t, State{LastQuery: "panel", Page: 1})

	// The widget keeps accepting input.
	require.NoError(t, h.ctrl.Send(ctx, "otra"))
	c = h.transport.next(t)
	assert.Equal(t, domain.ChatRequest{SessionID: "web-test", Message: "panel", Page: 1}, c.req)
	c.reply <- result{}
}

func TestNoResults(t *testing.T) {
	h := start(t, nil)

	require.NoError(t, h.ctrl.Send(context.Background(), "xyz"))
	c := h.transport.next(t)
	c.reply <- result{reply: domain.ChatReply{}}
	h.waitBubbles(t, 2)

	last := h.presenter.lastBubble()
	assert.Equal(t, domain.RoleBot, last.Role)
	assert.Contains(t, last.Markup, "No encontré resultados.")
	assert.Contains(t, last.Markup, `href="https://ecolite.com.co/"`)
}

func TestStaleReplyIsDiscarded(t *testing.T) {
	h := start(t, nil)
	ctx := context.Background()

	require.NoError(t, h.ctrl.Send(ctx, "panel"))
	first := h.transport.next(t)
	require.NoError(t, h.ctrl.Send(ctx, "reflector"))
	second := h.transport.next(t)
	h.waitState(t, State{Pending: 2})

	second.reply <- result{reply: domain.ChatReply{Content: "reflectores"}}
	h.waitState(t, State{LastQuery: "reflector", Pending: 1})

	first.reply <- result{reply: domain.ChatReply{Content: "paneles", Products: products(5), HasMore: true}}
	h.waitState(t, State{LastQuery: "reflector"})

	h.presenter.mu.Lock()
	defer h.presenter.mu.Unlock()
	assert.Empty(t, h.presenter.results)
	assert.False(t, h.presenter.busy)
	for _, b := range h.presenter.bubbles {
		assert.NotEqual(t, "paneles", b.Markup)
	}
}

func TestRenderedReplyCarriesDecoratedLink(t *testing.T) {
	var ctrl *Controller
	decorator := handoff.NewDecorator("wa.me",
		func() string { return "Ana" },
		func() string { return ctrl.LastQuery() },
	)
	h := start(t, richtext.NewRenderer(decorator))
	ctrl = h.ctrl

	require.NoError(t, ctrl.Send(context.Background(), "quiero cotizar paneles"))
	c := h.transport.next(t)
	c.reply <- result{reply: domain.ChatReply{Content: "Escríbenos [[a|por WhatsApp|wa.me/573001234567]]"}}
	h.waitBubbles(t, 2)

	anchors := richtext.Anchors(h.presenter.lastBubble().Markup)
	require.Len(t, anchors, 1)
	assert.Equal(t, "por WhatsApp", anchors[0].Label)
	u, err := url.Parse(anchors[0].Href)
	require.NoError(t, err)
	assert.Equal(t, "Hola, soy Ana. quiero cotizar paneles", u.Query().Get("text"))
}

func TestTranscriptOrder(t *testing.T) {
	h := start(t, nil)
	ctx := context.Background()

	require.NoError(t, h.ctrl.Send(ctx, "<b>panel</b>"))
	c := h.transport.next(t)
	c.reply <- result{reply: domain.ChatReply{Content: "Tenemos paneles."}}
	// Appends follow completion order, so the bot reply must land first.
	h.waitBubbles(t, 2)
	require.NoError(t, h.ctrl.System(ctx, "aviso"))
	h.waitBubbles(t, 3)

	want := []domain.Message{
		{Role: domain.RoleUser, RawText: "<b>panel</b>"},
		{Role: domain.RoleBot, RawText: "Tenemos paneles."},
		{Role: domain.RoleSystem, RawText: "aviso"},
	}
	require.Eventually(t, func() bool { return len(h.ctrl.Transcript()) == 3 }, time.Second, 5*time.Millisecond)
	if diff := cmp.Diff(want, h.ctrl.Transcript()); diff != "" {
		t.Errorf("transcript mismatch (-want +got):\n%s", diff)
	}
	h.presenter.mu.Lock()
	assert.Equal(t, "&lt;b&gt;panel&lt;/b&gt;", h.presenter.bubbles[0].Markup)
	h.presenter.mu.Unlock()
}

func TestSpanishClassifier(t *testing.T) {
	cases := map[string]Intent{
		"reset":             IntentReset,
		"Reset":             IntentReset,
		"reset ahora":       IntentFresh,
		"más":               IntentContinuation,
		"mas":               IntentContinuation,
		"ver  más":          IntentContinuation,
		"quiero otras":      IntentContinuation,
		"siguientes":        IntentContinuation,
		"panel 60x60":       IntentFresh,
		"demasiado costoso": IntentFresh,
	}
	for in, want := range cases {
		assert.Equal(t, want, SpanishClassifier{}.Classify(in), "input %q", in)
	}
}

func TestSendAfterStop(t *testing.T) {
	ctrl, err := New(Options{Transport: newFakeTransport(), Sessions: fakeSessions{}, Presenter: &fakePresenter{}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, ctrl.Run(ctx), context.Canceled)

	// Fill the inbox so the stop signal is the only way out.
	for i := 0; i < cap(ctrl.inbox); i++ {
		ctrl.inbox <- systemEvent{}
	}
	assert.ErrorIs(t, ctrl.Send(context.Background(), "hola"), ErrStopped)
}
