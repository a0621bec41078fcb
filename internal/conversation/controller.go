// Package conversation implements the chat controller: it owns the
// conversation state, classifies utterances, dispatches search requests and
// turns every outcome into transcript messages.
package conversation

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ashureev/ecolite-widget/internal/domain"
	"github.com/ashureev/ecolite-widget/internal/richtext"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ErrStopped is returned by Send once Run has returned.
var ErrStopped = errors.New("conversation: controller stopped")

// DefaultCatalogURL is named by the canned messages.
const DefaultCatalogURL = "https://ecolite.com.co/"

// Transport performs one search request.
type Transport interface {
	Chat(ctx context.Context, req domain.ChatRequest) (domain.ChatReply, error)
}

// Sessions yields the session id sent with every request.
type Sessions interface {
	SessionID(ctx context.Context) (string, error)
}

// Presenter displays what the controller produces. Calls come from the
// controller loop goroutine only.
type Presenter interface {
	// AppendMessage adds one transcript bubble; markup is already safe.
	AppendMessage(role domain.Role, markup string)
	// ShowResults adds a result block, with a "show more" affordance when
	// hasMore is set.
	ShowResults(products []domain.Product, hasMore bool)
	// ClearShowMore removes any "show more" affordance.
	ClearShowMore()
	// SetBusy toggles the busy indicator.
	SetBusy(busy bool)
}

// State is the conversation state. Page counts result pages already shown
// for LastQuery; Pending counts requests in flight.
type State struct {
	LastQuery string `json:"last_query"`
	Page      int    `json:"page"`
	Pending   int    `json:"pending"`
}

// Options configures a Controller.
type Options struct {
	Transport  Transport
	Sessions   Sessions
	Presenter  Presenter
	Renderer   *richtext.Renderer
	Classifier Classifier
	CatalogURL string
}

type event interface{ isEvent() }

type sendEvent struct{ text string }

type completion struct {
	seq   uint64
	query string
	reply domain.ChatReply
	err   error
}

type systemEvent struct{ text string }

type botEvent struct{ text string }

func (sendEvent) isEvent()   {}
func (completion) isEvent()  {}
func (systemEvent) isEvent() {}
func (botEvent) isEvent()    {}

// Controller serializes every state change on the goroutine running Run.
// Other goroutines talk to it through Send and read it through Snapshot.
type Controller struct {
	transport  Transport
	sessions   Sessions
	presenter  Presenter
	renderer   *richtext.Renderer
	classifier Classifier
	catalogURL string

	inbox chan event
	done  chan struct{}
	once  sync.Once

	// Loop-owned.
	state      State
	seq        uint64
	transcript domain.Transcript

	snap     atomic.Pointer[State]
	messages atomic.Pointer[[]domain.Message]
}

// New creates a controller. Transport, Sessions and Presenter are required.
func New(opts Options) (*Controller, error) {
	if opts.Transport == nil || opts.Sessions == nil || opts.Presenter == nil {
		return nil, errors.New("conversation: transport, sessions and presenter are required")
	}
	if opts.Renderer == nil {
		opts.Renderer = richtext.NewRenderer(nil)
	}
	if opts.Classifier == nil {
		opts.Classifier = SpanishClassifier{}
	}
	if opts.CatalogURL == "" {
		opts.CatalogURL = DefaultCatalogURL
	}
	c := &Controller{
		transport:  opts.Transport,
		sessions:   opts.Sessions,
		presenter:  opts.Presenter,
		renderer:   opts.Renderer,
		classifier: opts.Classifier,
		catalogURL: opts.CatalogURL,
		inbox:      make(chan event, 16),
		done:       make(chan struct{}),
	}
	c.publish()
	return c, nil
}

// Run processes events until ctx ends. It must be called exactly once.
func (c *Controller) Run(ctx context.Context) error {
	defer c.once.Do(func() { close(c.done) })
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-c.inbox:
			c.handle(ctx, ev)
		}
	}
}

// Send queues one user utterance. It returns once the loop has accepted it,
// not when the search completes.
func (c *Controller) Send(ctx context.Context, text string) error {
	return c.post(ctx, sendEvent{text: text})
}

// System queues a widget notice; it is escaped, never interpreted.
func (c *Controller) System(ctx context.Context, text string) error {
	return c.post(ctx, systemEvent{text: text})
}

// Bot queues a bot message rendered as rich text.
func (c *Controller) Bot(ctx context.Context, text string) error {
	return c.post(ctx, botEvent{text: text})
}

func (c *Controller) post(ctx context.Context, ev event) error {
	select {
	case c.inbox <- ev:
		return nil
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the state as of the last event the loop finished.
func (c *Controller) Snapshot() State {
	return *c.snap.Load()
}

// LastQuery returns the most recent effective query.
func (c *Controller) LastQuery() string {
	return c.Snapshot().LastQuery
}

// Transcript returns a copy of the messages appended so far.
func (c *Controller) Transcript() []domain.Message {
	msgs := *c.messages.Load()
	out := make([]domain.Message, len(msgs))
	copy(out, msgs)
	return out
}

func (c *Controller) publish() {
	c.publishState()
	msgs := c.transcript.Messages()
	c.messages.Store(&msgs)
}

func (c *Controller) publishState() {
	st := c.state
	c.snap.Store(&st)
}

func (c *Controller) handle(ctx context.Context, ev event) {
	defer c.publish()
	switch ev := ev.(type) {
	case sendEvent:
		c.send(ctx, ev.text)
	case completion:
		c.complete(ev)
	case systemEvent:
		c.appendSystem(ev.text)
	case botEvent:
		c.appendBot(ev.text)
	}
}

func (c *Controller) send(ctx context.Context, raw string) {
	msg := strings.TrimSpace(raw)
	if msg == "" {
		return
	}
	c.appendUser(msg)

	intent := c.classifier.Classify(msg)
	if intent == IntentContinuation && c.state.LastQuery == "" {
		intent = IntentFresh
	}

	switch intent {
	case IntentReset:
		// In-flight replies belong to the old conversation.
		c.seq++
		c.state.Page = 0
		c.state.LastQuery = ""
		c.presenter.ClearShowMore()
		c.appendSystem(c.resetText())
		return
	case IntentFresh:
		c.state.Page = 0
		c.presenter.ClearShowMore()
	}

	query := msg
	if intent == IntentContinuation {
		query = c.state.LastQuery
	}

	c.seq++
	seq := c.seq
	page := c.state.Page
	c.state.Pending++
	c.presenter.SetBusy(true)

	log.Debug().Uint64("seq", seq).Str("intent", intent.String()).Str("query", query).Int("page", page).Msg("Dispatching search")

	go c.dispatch(ctx, seq, query, page)
}

func (c *Controller) dispatch(ctx context.Context, seq uint64, query string, page int) {
	done := completion{seq: seq, query: query}

	sessionID, err := c.sessions.SessionID(ctx)
	if err != nil {
		done.err = errors.Wrap(err, "session id")
	} else {
		done.reply, done.err = c.transport.Chat(ctx, domain.ChatRequest{
			SessionID: sessionID,
			Message:   query,
			Page:      page,
		})
	}

	select {
	case c.inbox <- done:
	case <-c.done:
	case <-ctx.Done():
	}
}

func (c *Controller) complete(ev completion) {
	if c.state.Pending > 0 {
		c.state.Pending--
	}
	c.presenter.SetBusy(c.state.Pending > 0)

	if ev.seq != c.seq {
		log.Debug().Uint64("seq", ev.seq).Uint64("newest", c.seq).Err(ev.err).Msg("Discarding stale search reply")
		return
	}

	if ev.err != nil {
		log.Warn().Err(ev.err).Uint64("seq", ev.seq).Str("query", ev.query).Msg("Search request failed")
		c.appendSystem(ErrorText(ev.err))
		return
	}

	reply := ev.reply
	c.state.LastQuery = reply.LastQuery
	if c.state.LastQuery == "" {
		c.state.LastQuery = ev.query
	}
	// Link decoration reads LastQuery while the reply renders.
	c.publishState()

	if len(reply.Products) > 0 {
		c.presenter.ShowResults(reply.Products, reply.HasMore)
		c.state.Page++
	} else {
		c.presenter.ClearShowMore()
	}

	switch {
	case reply.Content != "":
		c.appendBot(reply.Content)
	case len(reply.Products) == 0:
		c.appendBot(c.noResultsText())
	}
}

func (c *Controller) appendUser(text string) {
	c.transcript.Append(domain.Message{Role: domain.RoleUser, RawText: text})
	c.presenter.AppendMessage(domain.RoleUser, richtext.Escape(text))
}

func (c *Controller) appendBot(text string) {
	c.transcript.Append(domain.Message{Role: domain.RoleBot, RawText: text})
	c.presenter.AppendMessage(domain.RoleBot, c.renderer.Render(text))
}

func (c *Controller) appendSystem(text string) {
	c.transcript.Append(domain.Message{Role: domain.RoleSystem, RawText: text})
	c.presenter.AppendMessage(domain.RoleSystem, richtext.Escape(text))
}

func (c *Controller) resetText() string {
	return "Sesión reiniciada. Pide algo como “panel 60x60”, “reflector 100W IP65”, “piscina”, “cintas led”.\nCatálogo: " + c.catalogURL
}

func (c *Controller) noResultsText() string {
	return "No encontré resultados. Prueba con: “panel”, “reflector”, “oficina”, “piscina” o visita " + c.catalogURL
}

// WelcomeText is the first bot message of a bound widget.
func WelcomeText(catalogURL string) string {
	if catalogURL == "" {
		catalogURL = DefaultCatalogURL
	}
	return "👋 Bienvenido a Ecolite. Te ayudamos a elegir la iluminación LED ideal para tus proyectos. ¿Qué espacio deseas iluminar? (oficina, piscina, bodega…)\nVer página: " + catalogURL
}

// ErrorText is the system message shown for a failed request.
func ErrorText(err error) string {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	return strings.TrimSpace("⚠️ No me pude conectar. " + detail)
}
