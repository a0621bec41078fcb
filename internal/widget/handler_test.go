package widget

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/ecolite-widget/internal/domain"
	"github.com/ashureev/ecolite-widget/internal/identity"
	"github.com/ashureev/ecolite-widget/internal/store"
	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebSocketSession(t *testing.T) {
	kv, err := store.NewSQLite(filepath.Join(t.TempDir(), "ws.db"))
	require.NoError(t, err)
	defer kv.Close()

	deps := Deps{
		Chat: chatFunc(func(_ context.Context, req domain.ChatRequest) (domain.ChatReply, error) {
			return domain.ChatReply{Content: "Tenemos " + req.Message + " en www.ecolite.com.co"}, nil
		}),
		Leads: &fakeLeads{},
		KV:    kv,
	}
	sm := NewSessionManager()
	h := NewWebSocketHandler(deps, sm, []string{"https://ecolite.com.co"}, time.Minute, false)
	srv := httptest.NewServer(identity.Middleware(false)(h))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	header := http.Header{}
	header.Set("Origin", "https://ecolite.com.co")
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws?tab=t1", &websocket.DialOptions{HTTPHeader: header})
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	write := func(ev Event) {
		data, err := json.Marshal(ev)
		require.NoError(t, err)
		require.NoError(t, conn.Write(ctx, websocket.MessageText, data))
	}
	read := func(typ string) Command {
		for {
			_, data, err := conn.Read(ctx)
			require.NoError(t, err)
			var c Command
			require.NoError(t, json.Unmarshal(data, &c))
			if c.Type == typ {
				return c
			}
		}
	}

	write(Event{Type: EventBind, Elements: []string{ElementStream, ElementInput, ElementSend}})
	ready := read(CmdReady)
	assert.True(t, identity.IsValidVisitorID(ready.VisitorID))
	assert.Equal(t, 1, sm.Count())

	write(Event{Type: EventSend, Text: "paneles"})
	var bot Command
	for bot.Role != domain.RoleBot || !strings.Contains(bot.HTML, "paneles") {
		bot = read(CmdMessage)
	}
	assert.Contains(t, bot.HTML, `href="https://www.ecolite.com.co"`)

	write(Event{Type: EventPing})
	read(CmdPong)

	assert.Equal(t, 1, sm.CloseVisitor(ready.VisitorID))
	// Frames queued before the close may still arrive.
	for err == nil {
		_, _, err = conn.Read(ctx)
	}
	assert.NotErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, sm.Count())
}

func TestWebSocketRejectsUnknownOrigin(t *testing.T) {
	h := NewWebSocketHandler(Deps{}, NewSessionManager(), []string{"https://ecolite.com.co"}, time.Minute, false)
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, r)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}
