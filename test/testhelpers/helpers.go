// Package testhelpers holds websocket and HTTP helpers shared by the chat
// server tests.
package testhelpers

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/Tyrowin/chatroom/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// TestOrigin is the Origin header sent by DialChat.
const TestOrigin = "http://localhost:8080"

// WebSocketURL turns an httptest base URL into the chat endpoint URL.
func WebSocketURL(baseURL, username, token string) string {
	u := "ws" + strings.TrimPrefix(baseURL, "http") + "/ws"
	q := url.Values{}
	if username != "" {
		q.Set("username", username)
	}
	if token != "" {
		q.Set("token", token)
	}
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

// DialChat opens a websocket to the chat endpoint. The HTTP response is
// returned even when the handshake is refused so callers can check the
// status code.
func DialChat(baseURL, username, token string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}

	headers := http.Header{}
	headers.Set("Origin", TestOrigin)

	conn, resp, err := dialer.Dial(WebSocketURL(baseURL, username, token), headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, resp, err
}

// MustDialChat is DialChat that fails the test on error.
func MustDialChat(t *testing.T, baseURL, username, token string) *websocket.Conn {
	t.Helper()
	conn, _, err := DialChat(baseURL, username, token)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// SendEvent writes one envelope.
func SendEvent(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	raw, err := protocol.Encode(event, data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, raw))
}

// ReadEvent reads the next envelope, failing after timeout.
func ReadEvent(t *testing.T, conn *websocket.Conn, timeout time.Duration) protocol.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))

	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var env protocol.Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	return env
}

// ExpectEvent reads the next envelope, checks its name and decodes its data
// into out.
func ExpectEvent(t *testing.T, conn *websocket.Conn, event string, out any) {
	t.Helper()
	env := ReadEvent(t, conn, 2*time.Second)
	require.Equal(t, event, env.Event, "unexpected frame: %s", string(env.Data))
	if out != nil {
		require.NoError(t, json.Unmarshal(env.Data, out))
	}
}

// Barrier sends an empty history request and requires the reply to be the
// next frame. The server handles a connection's frames in order and routes
// every outbound frame through one loop, so a passing Barrier proves
// nothing else was queued for conn before it.
func Barrier(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	SendEvent(t, conn, protocol.EventChatGet, protocol.ChatGet{Last: 0})
	var history protocol.History
	ExpectEvent(t, conn, protocol.EventChatHistory, &history)
	require.Empty(t, history.History)
}

// ExpectSilence asserts that nothing arrives on conn within wait. A timed
// out read leaves a gorilla connection unreadable, so this must be the last
// read on conn.
func ExpectSilence(t *testing.T, conn *websocket.Conn, wait time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(wait)))
	_, raw, err := conn.ReadMessage()
	require.Error(t, err, "unexpected frame: %s", string(raw))
}

// ExpectClosed waits for the server to close conn.
func ExpectClosed(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			t.Fatalf("connection still open after %s", timeout)
		}
		return
	}
}

// CloseWebSocket sends a normal close frame and closes conn.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}

// PostForm sends an urlencoded form and returns the response.
func PostForm(t *testing.T, endpoint string, form url.Values, cookies ...*http.Cookie) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		req.AddCookie(c)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}
