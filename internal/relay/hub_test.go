package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syntrixbase/devbridge/pkg/model"
)

type uiHarness struct {
	relay *Relay
	hub   *Hub
	url   string
}

func newUIHarness(t *testing.T, auth *TokenService) *uiHarness {
	t.Helper()
	r := New(Options{})
	hub := NewHub(r, auth, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	require.Eventually(t, func() bool { return hub.Done() != nil }, waitFor, tick)

	mux := http.NewServeMux()
	NewHandler(r, hub, auth, nil, nil).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &uiHarness{relay: r, hub: hub, url: "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/observe"}
}

func (u *uiHarness) dial(t *testing.T, header http.Header) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(u.url, header)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) BaseMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitFor)))
	var msg BaseMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

// readType skips messages until one of type typ arrives.
func readType(t *testing.T, conn *websocket.Conn, typ string) BaseMessage {
	t.Helper()
	for {
		msg := readMessage(t, conn)
		if msg.Type == typ {
			return msg
		}
	}
}

func TestHub_SnapshotAndUpdates(t *testing.T) {
	u := newUIHarness(t, nil)
	require.NoError(t, u.relay.HandleMessage(model.TopicInit, []byte(`{"name":"a","state":{"n":0}}`)))

	conn := u.dial(t, nil)
	msg := readType(t, conn, TypeSnapshot)
	var snap SnapshotPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &snap))
	require.Len(t, snap.Instances, 1)
	assert.Equal(t, "a", snap.Selected)
	assert.Equal(t, []string{"a"}, snap.Connected)

	require.Eventually(t, func() bool { return u.hub.ClientCount() == 1 }, waitFor, tick)
	require.NoError(t, u.relay.HandleMessage(model.TopicState, []byte(`{"name":"a","type":"inc","state":{"n":1}}`)))

	msg = readType(t, conn, TypeUpdate)
	var update Update
	require.NoError(t, json.Unmarshal(msg.Payload, &update))
	assert.Equal(t, UpdateState, update.Kind)
	assert.Equal(t, "a", update.InstanceID)
	require.NotNil(t, update.Lifted)
	assert.Len(t, update.Lifted.ComputedStates, 2)
}

func TestHub_Command(t *testing.T) {
	u := newUIHarness(t, nil)
	require.NoError(t, u.relay.HandleMessage(model.TopicInit, []byte(`{"name":"a","state":{"n":0}}`)))

	conn := u.dial(t, nil)
	readType(t, conn, TypeSnapshot)

	require.NoError(t, conn.WriteJSON(BaseMessage{ID: "1", Type: TypeCommand, Payload: mustMarshal(Command{Type: CommandExport})}))
	msg := readType(t, conn, TypeAck)
	assert.Equal(t, "1", msg.ID)
	var ack AckPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &ack))
	require.NotNil(t, ack.Lifted)
	assert.Len(t, ack.Lifted.ComputedStates, 1)

	require.NoError(t, conn.WriteJSON(BaseMessage{ID: "2", Type: TypeCommand, Payload: mustMarshal(Command{Type: CommandExport, InstanceID: "zzz"})}))
	msg = readType(t, conn, TypeError)
	assert.Equal(t, "2", msg.ID)
	var payload ErrorPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Equal(t, ErrCodeNotFound, payload.Code)

	require.NoError(t, conn.WriteJSON(BaseMessage{ID: "3", Type: TypePing}))
	msg = readType(t, conn, TypePong)
	assert.Equal(t, "3", msg.ID)
}

func TestHub_InBandAuth(t *testing.T) {
	tokens := newTestTokens(t)
	u := newUIHarness(t, tokens)

	conn := u.dial(t, nil)
	require.NoError(t, conn.WriteJSON(BaseMessage{ID: "1", Type: TypeCommand, Payload: mustMarshal(Command{Type: CommandExport})}))
	msg := readMessage(t, conn)
	require.Equal(t, TypeError, msg.Type)
	var payload ErrorPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Equal(t, ErrCodeUnauthorized, payload.Code)

	require.NoError(t, conn.WriteJSON(BaseMessage{ID: "2", Type: TypeAuth, Payload: mustMarshal(AuthPayload{Token: "bad"})}))
	assert.Equal(t, TypeError, readMessage(t, conn).Type)

	token, err := tokens.Issue("ui", "")
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(BaseMessage{ID: "3", Type: TypeAuth, Payload: mustMarshal(AuthPayload{Token: token})}))
	msg = readMessage(t, conn)
	assert.Equal(t, TypeAuthAck, msg.Type)
	assert.Equal(t, TypeSnapshot, readMessage(t, conn).Type)
}

func TestHub_HeaderAuth(t *testing.T) {
	tokens := newTestTokens(t)
	u := newUIHarness(t, tokens)

	_, resp, err := websocket.DefaultDialer.Dial(u.url, http.Header{"Authorization": {"Bearer bad"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, err := tokens.Issue("ui", "")
	require.NoError(t, err)
	conn := u.dial(t, http.Header{"Authorization": {"Bearer " + token}})
	assert.Equal(t, TypeSnapshot, readMessage(t, conn).Type)
}

func TestHub_UnregisterOnClose(t *testing.T) {
	u := newUIHarness(t, nil)

	conn := u.dial(t, nil)
	require.Eventually(t, func() bool { return u.hub.ClientCount() == 1 }, waitFor, tick)
	conn.Close()
	require.Eventually(t, func() bool { return u.hub.ClientCount() == 0 }, waitFor, tick)
}

func TestHub_BroadcastAfterStop(t *testing.T) {
	r := New(Options{})
	hub := NewHub(r, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool { return hub.Done() != nil }, waitFor, tick)
	cancel()
	<-done

	hub.Broadcast(BaseMessage{Type: TypeUpdate})
	assert.False(t, hub.Register(&Client{}))
}
