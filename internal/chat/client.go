package chat

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	myMiddleware "admin-chat/internal/middleware"
	"admin-chat/internal/user"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// base64 of the largest accepted image plus room for the envelope
	maxCommandSize = maxImageBytes*4/3 + 4096
	sendBuffer     = 64
	outboxSize     = 8
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Command is a console request over the websocket.
type Command struct {
	Type           string `json:"type"`
	CounterpartyID string `json:"counterpartyId,omitempty"`
	Text           string `json:"text,omitempty"`
	Image          string `json:"image,omitempty"` // base64
	Query          string `json:"query,omitempty"`
}

// Client binds one websocket connection to one View.
type Client struct {
	view *View
	conn *websocket.Conn
	send chan []byte
	log  *zap.Logger

	// outbox feeds send commands to sendLoop in arrival order, so an upload
	// never holds up the connection's other commands.
	outbox   chan Command
	sendDone chan struct{}

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
}

// ServeWs serves GET /ws.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	actor := myMiddleware.ActorFromContext(r.Context())

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		log:      h.log.With(zap.String("actor", actor), zap.String("remote", r.RemoteAddr)),
		outbox:   make(chan Command, outboxSize),
		sendDone: make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
	c.view = NewView(h.viewDeps(), NewGate(h.uploader, h.repo, h.notifier, h.log), actor, c.push)

	go c.writePump()
	go c.sendLoop()
	go c.readPump()
}

// push queues an update for the connection. A console that can't keep up is
// disconnected rather than allowed to stall its view.
func (c *Client) push(u Update) {
	payload, err := json.Marshal(u)
	if err != nil {
		c.log.Error("encode update", zap.Error(err))
		return
	}
	select {
	case <-c.ctx.Done():
	case c.send <- payload:
	default:
		c.log.Warn("slow consumer, closing connection")
		c.stop()
	}
}

func (c *Client) stop() {
	c.stopOnce.Do(func() {
		c.cancel()
		c.conn.Close()
	})
}

func (c *Client) readPump() {
	defer func() {
		c.stop()
		<-c.sendDone
		c.view.Close()
	}()

	c.conn.SetReadLimit(maxCommandSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Info("websocket closed", zap.Error(err))
			}
			return
		}
		var cmd Command
		if err := json.Unmarshal(raw, &cmd); err != nil {
			c.push(Update{Kind: UpdateError, Error: "invalid command"})
			continue
		}
		c.handle(cmd)
	}
}

func (c *Client) handle(cmd Command) {
	switch cmd.Type {
	case "open":
		if err := c.view.Open(cmd.CounterpartyID); errors.Is(err, user.ErrInvalidUID) {
			c.push(Update{Kind: UpdateError, Error: err.Error()})
		}
	case "send":
		select {
		case c.outbox <- cmd:
		default:
			c.push(Update{Kind: UpdateError, CounterpartyID: c.view.Current(), Error: "too many pending sends"})
		}
	case "markRead":
		c.view.MarkAsRead(c.ctx)
	case "clearError":
		c.view.ClearError()
	case "loadChats":
		c.view.LoadChatList(c.ctx, cmd.Query)
	default:
		c.push(Update{Kind: UpdateError, Error: "unknown command " + cmd.Type})
	}
}

// sendLoop runs queued sends one at a time until the client stops.
func (c *Client) sendLoop() {
	defer close(c.sendDone)
	for {
		select {
		case <-c.ctx.Done():
			return
		case cmd := <-c.outbox:
			c.sendOne(cmd)
		}
	}
}

func (c *Client) sendOne(cmd Command) {
	var image ImageRef
	if cmd.Image != "" {
		raw, err := base64.StdEncoding.DecodeString(cmd.Image)
		if err != nil {
			c.push(Update{Kind: UpdateError, CounterpartyID: c.view.Current(), Error: "image is not valid base64"})
			return
		}
		image = BytesImage(raw)
	}
	c.view.SendMessage(c.ctx, cmd.Text, image)
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.stop()
	}()

	for {
		select {
		case <-c.ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
