// Package backend is the HTTP transport to the conversational search service
// and the lead store.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/ecolite-widget/internal/domain"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ErrMalformed marks a 2xx response whose body is not the expected JSON.
var ErrMalformed = errors.New("malformed response body")

// maxBody caps how much of a response is read.
const maxBody = 1 << 20

// StatusError is a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d", e.Code)
	}
	return fmt.Sprintf("HTTP %d %s", e.Code, e.Body)
}

// Client posts JSON to the chat and leads endpoints.
type Client struct {
	chatURL  string
	leadsURL string
	http     *http.Client
}

// NewClient creates a client. A zero timeout means 30 seconds.
func NewClient(chatURL, leadsURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		chatURL:  chatURL,
		leadsURL: leadsURL,
		http:     &http.Client{Timeout: timeout},
	}
}

// Chat posts one search request.
func (c *Client) Chat(ctx context.Context, req domain.ChatRequest) (domain.ChatReply, error) {
	var reply *domain.ChatReply
	if err := c.post(ctx, c.chatURL, req, &reply); err != nil {
		return domain.ChatReply{}, err
	}
	if reply == nil {
		return domain.ChatReply{}, errors.Wrap(ErrMalformed, "empty chat reply")
	}
	return *reply, nil
}

// SubmitLead stores one validated lead.
func (c *Client) SubmitLead(ctx context.Context, lead domain.Lead) error {
	var ack json.RawMessage
	return c.post(ctx, c.leadsURL, lead, &ack)
}

func (c *Client) post(ctx context.Context, url string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json;charset=UTF-8")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "network error")
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return errors.Wrap(err, "read response")
	}

	log.Debug().
		Str("url", url).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("Backend call completed")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrap(ErrMalformed, err.Error())
	}
	return nil
}
