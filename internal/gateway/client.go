package gateway

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"chartdesk/internal/ringbuf"
	"chartdesk/internal/workspace"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	maxFrame   = 1 << 20
)

// Client is one websocket peer bound to a session.
type Client struct {
	conn    *websocket.Conn
	send    chan []byte
	hub     *Hub
	session string

	// inbox is written by readPump and drained by flushLoop only.
	inbox *ringbuf.Ring[workspace.Event]
	wake  chan struct{}
	done  chan struct{}
}

// writePump writes queued envelopes. Envelopes queued while a frame is being
// written go out in the same frame, newline separated.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)

			n := len(c.send)
			for i := 0; i < n; i++ {
				next, ok := <-c.send
				if !ok {
					break
				}
				w.Write([]byte{'\n'})
				w.Write(next)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump decodes inbound frames into the inbox.
func (c *Client) readPump() {
	defer func() {
		close(c.done)
		c.hub.RemoveClient(c)
		c.conn.Close()
		c.hub.log.Info("ws client disconnected", "session", c.session)
	}()

	c.conn.SetReadLimit(maxFrame)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		events, ping, err := decodeFrame(msg)
		if err != nil {
			c.hub.sendTo(c, errorFrame([]string{"invalid frame: " + err.Error()}))
			continue
		}
		if ping > 0 {
			c.hub.sendTo(c, pongFrame(ping))
			continue
		}

		dropped := 0
		for _, ev := range events {
			if !c.inbox.Push(ev) {
				dropped++
			}
		}
		if dropped > 0 {
			c.hub.sendTo(c, errorFrame([]string{"event queue full: dropped " + strconv.Itoa(dropped) + " events"}))
		}
		select {
		case c.wake <- struct{}{}:
		default:
		}
	}
}

// flushLoop waits for the debounce window after the first queued event, then
// applies everything queued as one batch.
func (c *Client) flushLoop() {
	window := c.hub.opt.Debounce
	var batch []workspace.Event
	for {
		select {
		case <-c.done:
			return
		case <-c.wake:
		}

		timer := time.NewTimer(window)
		select {
		case <-c.done:
			timer.Stop()
			return
		case <-timer.C:
		}

		batch = c.inbox.Drain(batch[:0])
		if len(batch) == 0 {
			continue
		}
		c.hub.apply(c, batch)
	}
}

// decodeFrame accepts a single event, an array of events, or a ping
// {"type":"ping","ping":<client ms>}.
func decodeFrame(msg []byte) (events []workspace.Event, ping int64, err error) {
	msg = bytes.TrimSpace(msg)
	if len(msg) > 0 && msg[0] == '[' {
		if err := json.Unmarshal(msg, &events); err != nil {
			return nil, 0, err
		}
		return events, 0, nil
	}

	var head struct {
		Type string `json:"type"`
		Ping int64  `json:"ping"`
	}
	if err := json.Unmarshal(msg, &head); err != nil {
		return nil, 0, err
	}
	if head.Type == "ping" {
		if head.Ping <= 0 {
			head.Ping = time.Now().UnixMilli()
		}
		return nil, head.Ping, nil
	}

	var ev workspace.Event
	if err := json.Unmarshal(msg, &ev); err != nil {
		return nil, 0, err
	}
	return []workspace.Event{ev}, 0, nil
}
