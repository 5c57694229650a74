package live

import (
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mahaj/dupahar/pkg/model"
)

const writeWait = 10 * time.Second

// Channel is an open duplex live-event stream to the gateway for one
// conversation. Inbound events arrive on Events; outbound events go
// through Broadcast. Reconnection is not this layer's job: when the
// stream drops, Events closes and the owner decides what to do.
type Channel struct {
	conn   *websocket.Conn
	events chan model.Event

	writeMu sync.Mutex
	closed  bool
}

// Dial connects to the gateway with a bearer token and joins a channel.
func Dial(gatewayAddr, token, channelID string) (*Channel, error) {
	u := url.URL{Scheme: "ws", Host: gatewayAddr, Path: "/ws"}
	q := u.Query()
	q.Set("channel", channelID)
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Add("Authorization", "Bearer "+token)

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), header)
	if err != nil {
		return nil, err
	}

	c := &Channel{conn: conn, events: make(chan model.Event, 64)}
	go c.readPump()
	return c, nil
}

// Events delivers inbound live events. The channel closes when the
// connection drops or Close is called.
func (c *Channel) Events() <-chan model.Event {
	return c.events
}

func (c *Channel) readPump() {
	defer close(c.events)
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("live channel read: %v", err)
			}
			return
		}
		var ev model.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			log.Printf("live channel: dropping malformed event: %v", err)
			continue
		}
		if ev.Type == "" {
			continue
		}
		c.events <- ev
	}
}

// Broadcast sends a locally-originated event to the gateway.
func (c *Channel) Broadcast(ev model.Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, raw)
}

// Close performs a clean websocket shutdown.
func (c *Channel) Close() error {
	c.writeMu.Lock()
	if c.closed {
		c.writeMu.Unlock()
		return nil
	}
	c.closed = true
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	return c.conn.Close()
}
