// Package domain contains core domain types for the chat widget.
package domain

// Role identifies who produced a transcript message.
type Role string

const (
	// RoleUser is an utterance typed by the visitor.
	RoleUser Role = "user"
	// RoleBot is narrative text returned by the search service.
	RoleBot Role = "bot"
	// RoleSystem is a widget-generated notice (errors, resets, canned hints).
	RoleSystem Role = "system"
)

// Message is one transcript entry. Messages are immutable once appended.
type Message struct {
	Role    Role   `json:"role"`
	RawText string `json:"raw_text"`
}

// Transcript is the append-only ordered sequence of messages of one widget.
type Transcript struct {
	messages []Message
}

// Append adds a message at the end of the transcript.
func (t *Transcript) Append(m Message) {
	t.messages = append(t.messages, m)
}

// Len returns the number of messages.
func (t *Transcript) Len() int {
	return len(t.messages)
}

// Messages returns a copy of the transcript contents.
func (t *Transcript) Messages() []Message {
	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Last returns the most recent message, if any.
func (t *Transcript) Last() (Message, bool) {
	if len(t.messages) == 0 {
		return Message{}, false
	}
	return t.messages[len(t.messages)-1], true
}
