package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"campus-chat/internal/api"
	"campus-chat/internal/chat"
	"campus-chat/internal/realtime"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type wsClient struct {
	t       *testing.T
	conn    *websocket.Conn
	pending []map[string]any
}

func (s *testServer) dial(user string) *wsClient {
	s.t.Helper()
	url := "ws" + strings.TrimPrefix(s.url, "http") + "/ws?token=" + s.token(user, tenant)
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(s.t, err)
	require.Equal(s.t, http.StatusSwitchingProtocols, resp.StatusCode)
	s.t.Cleanup(func() { _ = conn.Close() })

	c := &wsClient{t: s.t, conn: conn}
	c.waitFor(realtime.FrameConnected)
	return c
}

func (c *wsClient) send(frame map[string]any) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteJSON(frame))
}

// next returns the next frame. Queued frames arrive newline separated in one message.
func (c *wsClient) next() map[string]any {
	c.t.Helper()
	for len(c.pending) == 0 {
		require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, data, err := c.conn.ReadMessage()
		require.NoError(c.t, err)
		for _, line := range bytes.Split(data, []byte{'\n'}) {
			var frame map[string]any
			require.NoError(c.t, json.Unmarshal(line, &frame))
			c.pending = append(c.pending, frame)
		}
	}
	frame := c.pending[0]
	c.pending = c.pending[1:]
	return frame
}

// waitFor skips frames until one of the given type arrives. Direct replies and room events
// travel separately, so their relative order is not fixed.
func (c *wsClient) waitFor(frameType string) map[string]any {
	c.t.Helper()
	for {
		frame := c.next()
		if frame["type"] == frameType {
			return frame
		}
	}
}

func (c *wsClient) join(conversationID string) {
	c.t.Helper()
	c.send(map[string]any{"type": "join", "conversation_id": conversationID})
	c.waitFor(realtime.FrameJoined)
}

func TestWebsocket_MessageAndReadFanOut(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, chat.NewMemoryStore(nil))

	// Given alice contacted bob and both are online in the conversation
	convID := srv.startConversation("alice", "bob", "is this available?")
	alice := srv.dial("alice")
	bob := srv.dial("bob")
	alice.join(convID)
	bob.join(convID)

	// When alice sends a message over REST
	resp, _ := srv.do(http.MethodPost, "/api/conversations/"+convID+"/messages", "alice", tenant, map[string]string{"body": "still there?"})
	req.Equal(http.StatusCreated, resp.StatusCode)

	// Then both sockets receive it, the sender's own included
	for _, c := range []*wsClient{alice, bob} {
		evt := c.waitFor(string(chat.EventMessageNew))
		req.Equal(convID, evt["conversation_id"])
		req.Equal("still there?", evt["message"].(map[string]any)["body"])
	}

	// And bob's poll agrees with what the socket delivered
	_, summary := srv.do(http.MethodGet, "/api/notifications/unread", "bob", tenant, nil)
	req.Equal(float64(2), summary["count"])

	// When bob reads over the socket
	bob.send(map[string]any{"type": "read", "conversation_id": convID})

	// Then alice sees both of her messages marked read by bob
	evt := alice.waitFor(string(chat.EventReadUpdated))
	req.Equal("bob", evt["reader_id"])
	req.Len(evt["message_ids"], 2)

	_, summary = srv.do(http.MethodGet, "/api/notifications/unread", "bob", tenant, nil)
	req.Equal(float64(0), summary["count"])
}

func TestWebsocket_SendFrameBroadcasts(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, chat.NewMemoryStore(nil))
	convID := srv.startConversation("alice", "bob", "hello")
	alice := srv.dial("alice")
	alice.join(convID)

	alice.send(map[string]any{"type": "message", "conversation_id": convID, "body": "over the socket"})
	evt := alice.waitFor(string(chat.EventMessageNew))
	req.Equal("alice", evt["message"].(map[string]any)["sender_id"])

	alice.send(map[string]any{"type": "message", "conversation_id": convID, "body": "  "})
	errFrame := alice.waitFor(realtime.FrameError)
	req.Equal("invalid_request", errFrame["code"])
}

func TestWebsocket_JoinWithSinceCatchesUp(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, chat.NewMemoryStore(nil))
	convID := srv.startConversation("alice", "bob", "hello")
	_, first := srv.do(http.MethodPost, "/api/conversations/"+convID+"/messages", "bob", tenant, map[string]string{"body": "one"})
	srv.do(http.MethodPost, "/api/conversations/"+convID+"/messages", "bob", tenant, map[string]string{"body": "two"})

	// A client that saw "one" before disconnecting asks for what came after it
	alice := srv.dial("alice")
	alice.send(map[string]any{"type": "join", "conversation_id": convID, "since": first["message_id"]})
	sync := alice.waitFor(realtime.FrameSync)

	msgs := sync["messages"].([]any)
	req.Len(msgs, 1)
	req.Equal("two", msgs[0].(map[string]any)["body"])
}

func TestWebsocket_FullSyncBatchCarriesCursor(t *testing.T) {
	req := require.New(t)
	srv := newTestServerWith(t, chat.NewMemoryStore(nil), api.Options{ClientBuffer: 32, WriteTimeout: time.Second, SyncLimit: 2})
	convID := srv.startConversation("alice", "bob", "hello")
	path := "/api/conversations/" + convID + "/messages"
	_, first := srv.do(http.MethodPost, path, "bob", tenant, map[string]string{"body": "one"})
	for _, body := range []string{"two", "three", "four"} {
		srv.do(http.MethodPost, path, "bob", tenant, map[string]string{"body": body})
	}

	// Given alice missed three messages but the catch-up batch holds two
	alice := srv.dial("alice")
	alice.send(map[string]any{"type": "join", "conversation_id": convID, "since": first["message_id"]})
	sync := alice.waitFor(realtime.FrameSync)

	// Then the batch says where to continue
	msgs := sync["messages"].([]any)
	req.Len(msgs, 2)
	req.Equal("three", msgs[1].(map[string]any)["body"])
	cursor := sync["next_cursor"].(string)
	req.Equal(msgs[1].(map[string]any)["message_id"], cursor)

	// And paging from it over REST returns the rest
	_, page := srv.do(http.MethodGet, path+"?direction=after&cursor="+cursor, "alice", tenant, nil)
	items := page["items"].([]any)
	req.Len(items, 1)
	req.Equal("four", items[0].(map[string]any)["body"])

	// A short batch has no cursor
	bob := srv.dial("bob")
	bob.send(map[string]any{"type": "join", "conversation_id": convID, "since": cursor})
	tail := bob.waitFor(realtime.FrameSync)
	req.Len(tail["messages"], 1)
	req.NotContains(tail, "next_cursor")
}

func TestWebsocket_RejectsForeignAndUnknownFrames(t *testing.T) {
	req := require.New(t)
	srv := newTestServer(t, chat.NewMemoryStore(nil))
	convID := srv.startConversation("alice", "bob", "hello")
	mallory := srv.dial("mallory")

	mallory.send(map[string]any{"type": "join", "conversation_id": convID})
	frame := mallory.waitFor(realtime.FrameError)
	req.Equal("forbidden", frame["code"])
	req.Equal(convID, frame["conversation_id"])

	mallory.send(map[string]any{"type": "dance", "conversation_id": convID})
	req.Equal("unsupported_type", mallory.waitFor(realtime.FrameError)["code"])

	mallory.send(map[string]any{"type": "join"})
	req.Equal("invalid_request", mallory.waitFor(realtime.FrameError)["code"])

	// Nothing mallory did leaks into the room
	resp, _ := srv.do(http.MethodPost, "/api/conversations/"+convID+"/messages", "bob", tenant, map[string]string{"body": "private"})
	req.Equal(http.StatusCreated, resp.StatusCode)
	mallory.send(map[string]any{"type": "leave", "conversation_id": convID})
	req.Equal(realtime.FrameLeft, mallory.next()["type"])
}

func TestWebsocket_RequiresToken(t *testing.T) {
	srv := newTestServer(t, chat.NewMemoryStore(nil))
	url := "ws" + strings.TrimPrefix(srv.url, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
