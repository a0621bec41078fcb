// Package widget hosts chat widgets over websocket connections. The browser
// side only owns the DOM: it reports events and applies the commands sent
// back.
package widget

import "github.com/ashureev/ecolite-widget/internal/domain"

// Inbound event types.
const (
	EventBind       = "bind"
	EventSend       = "send"
	EventShowMore   = "show_more"
	EventOpen       = "open"
	EventClose      = "close"
	EventLinkClick  = "link_click"
	EventSignal     = "signal"
	EventLeadInput  = "lead_input"
	EventLeadBlur   = "lead_blur"
	EventLeadSubmit = "lead_submit"
	EventLeadSkip   = "lead_skip"
	EventPing       = "ping"
)

// Outbound command types.
const (
	CmdReady         = "ready"
	CmdBindError     = "bind_error"
	CmdMessage       = "message"
	CmdResults       = "results"
	CmdClearShowMore = "clear_show_more"
	CmdBusy          = "busy"
	CmdPanel         = "panel"
	CmdLeadOverlay   = "lead_overlay"
	CmdLeadField     = "lead_field"
	CmdLeadFocus     = "lead_focus"
	CmdLeadSubmit    = "lead_submit_enabled"
	CmdNavigate      = "navigate"
	CmdOpenWindow    = "open_window"
	CmdWatchFocus    = "watch_focus"
	CmdUnwatchFocus  = "unwatch_focus"
	CmdPong          = "pong"
)

// Element names the thin client reports in a bind event.
const (
	ElementStream      = "stream"
	ElementInput       = "input"
	ElementSend        = "send"
	ElementPanel       = "panel"
	ElementFab         = "fab"
	ElementClose       = "close"
	ElementTyping      = "typing"
	ElementShowMore    = "show_more_template"
	ElementLeadOverlay = "lead_overlay"
	ElementLeadForm    = "lead_form"
	ElementLeadSkip    = "lead_skip"
)

// RequiredElements must be present before the widget accepts input.
var RequiredElements = []string{ElementStream, ElementInput, ElementSend}

// Event is one message from the thin client.
type Event struct {
	Type     string   `json:"type"`
	Elements []string `json:"elements,omitempty"`
	Text     string   `json:"text,omitempty"`
	Href     string   `json:"href,omitempty"`
	Signal   string   `json:"signal,omitempty"`
	Field    string   `json:"field,omitempty"`
	Value    string   `json:"value,omitempty"`
}

// Command is one instruction for the thin client. Only the fields relevant
// to Type are set.
type Command struct {
	Type      string      `json:"type"`
	Role      domain.Role `json:"role,omitempty"`
	HTML      string      `json:"html,omitempty"`
	HasMore   bool        `json:"has_more,omitempty"`
	Busy      *bool       `json:"busy,omitempty"`
	Open      *bool       `json:"open,omitempty"`
	Visible   *bool       `json:"visible,omitempty"`
	Enabled   *bool       `json:"enabled,omitempty"`
	Field     string      `json:"field,omitempty"`
	Value     *string     `json:"value,omitempty"`
	Status    string      `json:"status,omitempty"`
	Error     *string     `json:"error,omitempty"`
	URL       string      `json:"url,omitempty"`
	Missing   []string    `json:"missing,omitempty"`
	VisitorID string      `json:"visitor_id,omitempty"`
	SessionID string      `json:"session_id,omitempty"`
	Handoff   *ReadyLinks `json:"handoff,omitempty"`
}

// ReadyLinks tells the thin client which link clicks to report.
type ReadyLinks struct {
	Host string `json:"host"`
}

func boolPtr(b bool) *bool { return &b }

func strPtr(s string) *string { return &s }
