package widget

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ashureev/ecolite-widget/internal/conversation"
	"github.com/ashureev/ecolite-widget/internal/domain"
	"github.com/ashureev/ecolite-widget/internal/handoff"
	"github.com/ashureev/ecolite-widget/internal/lead"
	"github.com/ashureev/ecolite-widget/internal/richtext"
	"github.com/ashureev/ecolite-widget/internal/store"
	"github.com/ashureev/ecolite-widget/internal/visitor"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Canned widget texts.
const (
	ShowMoreText    = "más"
	LeadSavedText   = "✅ Gracias, tus datos fueron guardados. ¿Qué necesitas iluminar hoy?"
	LeadFailedText  = "⚠️ No pude guardar tus datos: "
	RateLimitedText = "Vas muy rápido. Espera un momento e inténtalo de nuevo."
)

// LeadSubmitter stores a validated lead.
type LeadSubmitter interface {
	SubmitLead(ctx context.Context, lead domain.Lead) error
}

// Deps are the collaborators shared by every session.
type Deps struct {
	Chat          conversation.Transport
	Leads         LeadSubmitter
	KV            store.KV
	Handoff       handoff.Config
	CatalogURL    string
	RatePerSecond float64
	Burst         int
}

// Visitor identifies who opened a session and from where.
type Visitor struct {
	ID        string
	Origin    string
	UserAgent string
}

// Session is one bound widget on one page.
type Session struct {
	deps     Deps
	visitor  Visitor
	logger   zerolog.Logger
	out      *Outbox
	nav      *pageNavigator
	profile  *visitor.Profile
	ctrl     *conversation.Controller
	builder  *handoff.Builder
	launcher *handoff.Launcher
	platform handoff.Platform
	form     *lead.Form
	limiter  *rate.Limiter

	// Read-loop owned.
	bound    bool
	welcomed bool
	elements map[string]bool

	mu   sync.Mutex
	name string

	submitting atomic.Bool
	launching  atomic.Bool
	wg         sync.WaitGroup
}

// NewSession wires a session writing to out. ctx bounds presenter writes.
func NewSession(ctx context.Context, deps Deps, v Visitor, out *Outbox) (*Session, error) {
	if deps.Chat == nil || deps.Leads == nil || deps.KV == nil {
		return nil, errors.New("widget: chat, leads and kv are required")
	}
	if deps.Handoff.Host == "" {
		deps.Handoff = handoff.DefaultConfig()
	}
	if deps.RatePerSecond <= 0 {
		deps.RatePerSecond = 2
	}
	if deps.Burst <= 0 {
		deps.Burst = 5
	}

	s := &Session{
		deps:     deps,
		visitor:  v,
		logger:   log.With().Str("visitor_id", v.ID).Str("origin", v.Origin).Logger(),
		out:      out,
		nav:      newPageNavigator(out),
		profile:  visitor.New(deps.KV, store.Scope(v.Origin, v.ID)),
		launcher: handoff.NewLauncher(deps.Handoff.Timeout),
		platform: handoff.DetectPlatform(v.UserAgent),
		form:     lead.NewForm(),
		limiter:  rate.NewLimiter(rate.Limit(deps.RatePerSecond), deps.Burst),
		elements: make(map[string]bool),
	}

	var ctrl *conversation.Controller
	lastQuery := func() string { return ctrl.LastQuery() }
	decorator := handoff.NewDecorator(deps.Handoff.Host, s.displayName, lastQuery)

	ctrl, err := conversation.New(conversation.Options{
		Transport:  deps.Chat,
		Sessions:   s.profile,
		Presenter:  &presenter{ctx: ctx, out: out},
		Renderer:   richtext.NewRenderer(decorator),
		CatalogURL: deps.CatalogURL,
	})
	if err != nil {
		return nil, err
	}
	s.ctrl = ctrl
	s.builder = handoff.NewBuilder(deps.Handoff, decorator)
	return s, nil
}

// Run drives the conversation until ctx ends, then waits for background
// work started by Handle.
func (s *Session) Run(ctx context.Context) error {
	err := s.ctrl.Run(ctx)
	s.wg.Wait()
	return err
}

// Controller exposes the session's conversation controller.
func (s *Session) Controller() *conversation.Controller {
	return s.ctrl
}

func (s *Session) displayName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

func (s *Session) setDisplayName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.name = strings.TrimSpace(name)
}

// Handle processes one client event. It must be called from a single
// goroutine, the connection's read loop.
func (s *Session) Handle(ctx context.Context, ev Event) error {
	switch ev.Type {
	case EventPing:
		return s.out.Send(ctx, Command{Type: CmdPong})
	case EventBind:
		return s.bind(ctx, ev.Elements)
	case EventSignal:
		if sig, ok := handoff.ParseSignal(ev.Signal); ok {
			s.nav.deliver(sig)
		}
		return nil
	}

	if !s.bound {
		s.logger.Debug().Str("type", ev.Type).Msg("Ignoring event before bind")
		return nil
	}

	switch ev.Type {
	case EventSend:
		return s.send(ctx, ev.Text)
	case EventShowMore:
		return s.send(ctx, ShowMoreText)
	case EventOpen:
		return s.open(ctx)
	case EventClose:
		if err := s.out.Send(ctx, Command{Type: CmdPanel, Open: boolPtr(false)}); err != nil {
			return err
		}
		return s.out.Send(ctx, Command{Type: CmdBusy, Busy: boolPtr(false)})
	case EventLinkClick:
		s.linkClick(ctx, ev.Href)
		return nil
	case EventLeadInput, EventLeadBlur:
		return s.leadField(ctx, ev)
	case EventLeadSubmit:
		return s.leadSubmit(ctx)
	case EventLeadSkip:
		return s.out.Send(ctx, Command{Type: CmdLeadOverlay, Visible: boolPtr(false)})
	default:
		s.logger.Debug().Str("type", ev.Type).Msg("Unknown widget event")
		return nil
	}
}

func (s *Session) bind(ctx context.Context, elements []string) error {
	found := make(map[string]bool, len(elements))
	for _, e := range elements {
		found[e] = true
	}
	var missing []string
	for _, req := range RequiredElements {
		if !found[req] {
			missing = append(missing, req)
		}
	}
	if len(missing) > 0 {
		s.logger.Info().Strs("missing", missing).Msg("Widget bind incomplete")
		return s.out.Send(ctx, Command{Type: CmdBindError, Missing: missing})
	}

	s.elements = found
	s.bound = true

	name, err := s.profile.DisplayName(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to load display name")
	}
	s.setDisplayName(name)

	sessionID, err := s.profile.SessionID(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to load session id")
	}

	err = s.out.Send(ctx, Command{
		Type:      CmdReady,
		VisitorID: s.visitor.ID,
		SessionID: sessionID,
		Handoff:   &ReadyLinks{Host: s.deps.Handoff.Host},
	})
	if err != nil {
		return err
	}

	if !s.welcomed {
		s.welcomed = true
		return s.ctrl.Bot(ctx, conversation.WelcomeText(s.deps.CatalogURL))
	}
	return nil
}

func (s *Session) send(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if !s.limiter.Allow() {
		s.logger.Warn().Msg("Widget input rate limited")
		return s.ctrl.System(ctx, RateLimitedText)
	}
	return s.ctrl.Send(ctx, text)
}

func (s *Session) open(ctx context.Context) error {
	if err := s.out.Send(ctx, Command{Type: CmdPanel, Open: boolPtr(true)}); err != nil {
		return err
	}
	if !s.elements[ElementLeadOverlay] {
		return nil
	}
	if err := s.out.Send(ctx, Command{Type: CmdLeadOverlay, Visible: boolPtr(true)}); err != nil {
		return err
	}
	return s.out.Send(ctx, Command{Type: CmdLeadFocus, Field: string(lead.FieldName)})
}

func (s *Session) linkClick(ctx context.Context, href string) {
	set, err := s.builder.Build(href)
	if err != nil {
		// Not ours to hand off; the page keeps its default behaviour.
		s.logger.Debug().Err(err).Str("href", href).Msg("Link click without handoff")
		return
	}
	if !s.launching.CompareAndSwap(false, true) {
		s.logger.Debug().Msg("Handoff already in progress")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.launching.Store(false)
		outcome, err := s.launcher.Launch(ctx, s.nav, set, s.platform)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn().Err(err).Str("outcome", string(outcome)).Msg("Handoff failed")
			return
		}
		s.logger.Info().Str("outcome", string(outcome)).Str("platform", string(s.platform)).Msg("Handoff finished")
	}()
}

func fieldCommand(st lead.FieldState) Command {
	return Command{
		Type:   CmdLeadField,
		Field:  string(st.Field),
		Value:  strPtr(st.Value),
		Status: st.Status.String(),
		Error:  strPtr(st.Error),
	}
}

func (s *Session) leadField(ctx context.Context, ev Event) error {
	field, ok := lead.ParseField(ev.Field)
	if !ok {
		return nil
	}
	var st lead.FieldState
	if ev.Type == EventLeadInput {
		st = s.form.Input(field, ev.Value)
	} else {
		st = s.form.Blur(field)
	}
	return s.out.Send(ctx, fieldCommand(st))
}

func (s *Session) leadSubmit(ctx context.Context) error {
	if s.submitting.Load() {
		return nil
	}

	submitted, first, ok := s.form.Submit()
	if !ok {
		for _, st := range s.form.States() {
			if err := s.out.Send(ctx, fieldCommand(st)); err != nil {
				return err
			}
		}
		return s.out.Send(ctx, Command{Type: CmdLeadFocus, Field: string(first)})
	}

	sessionID, err := s.profile.SessionID(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to load session id for lead")
	}
	submitted.SessionID = sessionID

	s.submitting.Store(true)
	if err := s.out.Send(ctx, Command{Type: CmdLeadSubmit, Enabled: boolPtr(false)}); err != nil {
		s.submitting.Store(false)
		return err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.finishLead(ctx, submitted)
	}()
	return nil
}

func (s *Session) finishLead(ctx context.Context, submitted domain.Lead) {
	defer s.submitting.Store(false)

	if err := s.deps.Leads.SubmitLead(ctx, submitted); err != nil {
		s.logger.Warn().Err(err).Msg("Lead submission failed")
		_ = s.out.Send(ctx, Command{Type: CmdLeadSubmit, Enabled: boolPtr(true)})
		_ = s.ctrl.System(ctx, LeadFailedText+err.Error())
		return
	}

	if err := s.profile.RememberName(ctx, submitted.Name); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to remember display name")
	}
	s.setDisplayName(submitted.Name)
	s.logger.Info().Msg("Lead captured")

	_ = s.ctrl.Bot(ctx, LeadSavedText)
	_ = s.out.Send(ctx, Command{Type: CmdLeadOverlay, Visible: boolPtr(false)})
}
