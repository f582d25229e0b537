// Package wschannel carries devtools channel traffic over websockets.
//
// Origins dial a Client; the observer mounts a Server, which is itself a
// channel.Channel fanning messages out to every connected origin.
package wschannel

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/syntrixbase/devbridge/pkg/model"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Maximum message size allowed from peer. Store snapshots can be large.
	maxMessageSize = 1 << 20

	// Outbound queue per connection.
	sendBufSize = 256
)

// Send pings to peer with this period. Must be less than pongWait.
var pingPeriod = (pongWait * 9) / 10

// PluginParam is the query parameter naming the channel plugin.
const PluginParam = "plugin"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     SafeCheckOrigin,
}

// SafeCheckOrigin is a websocket origin check that allows non-browser clients
// and same-host origins (any port, for local development).
func SafeCheckOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}

	originHost := strings.Split(u.Host, ":")[0]
	requestHost := strings.Split(r.Host, ":")[0]
	return strings.EqualFold(originHost, requestHost)
}

func encodeEnvelope(topic string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(model.Envelope{Topic: topic, Payload: raw})
}

func decodeEnvelope(data []byte) (model.Envelope, error) {
	var env model.Envelope
	if err := model.Decode(data, &env); err != nil {
		return env, err
	}
	if env.Topic == "" {
		return env, model.ErrUnknownTopic
	}
	return env, nil
}
