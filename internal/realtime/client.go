package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/chaweee/BEventique-sub000/internal/services"
	websocket "github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxFrameSize   = 4096
	joinTimeout    = 5 * time.Second
	sendBufferSize = 64
)

// Conn is the subset of a websocket connection the pumps use.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

type JoinAuthorizer interface {
	AuthorizeJoin(ctx context.Context, caller services.Caller, threadID int64) error
}

type ClientOptions struct {
	RateLimit  float64
	RateBurst  int
	SendBuffer int
}

type Client struct {
	id      string
	hub     *Hub
	conn    Conn
	caller  services.Caller
	auth    JoinAuthorizer
	limiter *rate.Limiter
	logger  *zap.Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(
	hub *Hub,
	conn Conn,
	caller services.Caller,
	auth JoinAuthorizer,
	opts ClientOptions,
	logger *zap.Logger,
) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = sendBufferSize
	}
	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 1
	}

	id := uuid.NewString()
	return &Client{
		id:      id,
		hub:     hub,
		conn:    conn,
		caller:  caller,
		auth:    auth,
		limiter: rate.NewLimiter(limit, opts.RateBurst),
		logger:  logger.With(zap.String("conn_id", id), zap.Int64("user_id", caller.UserID)),
		send:    make(chan []byte, opts.SendBuffer),
		done:    make(chan struct{}),
	}
}

func (c *Client) ID() string {
	return c.id
}

func (c *Client) Deliver(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Close stops the write pump, which closes the socket and unblocks the reader.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Serve blocks until the connection ends.
func (c *Client) Serve() {
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writePump()
	}()

	c.readPump()
	c.hub.LeaveAll(c)
	c.Close()
	<-writerDone
}

func (c *Client) readPump() {
	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read failed", zap.Error(err))
			}
			return
		}

		if !c.limiter.Allow() {
			c.reply(Envelope{Type: TypeError, Error: "rate limit exceeded"})
			continue
		}

		incoming, err := decode(payload)
		if err != nil {
			c.reply(Envelope{Type: TypeError, Error: "invalid frame"})
			continue
		}
		c.handle(incoming)
	}
}

func (c *Client) handle(incoming Envelope) {
	switch incoming.Type {
	case TypeJoin:
		if incoming.ThreadID <= 0 {
			c.reply(Envelope{Type: TypeError, Error: "invalid thread id"})
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), joinTimeout)
		err := c.auth.AuthorizeJoin(ctx, c.caller, incoming.ThreadID)
		cancel()
		if err != nil {
			c.reply(Envelope{Type: TypeError, ThreadID: incoming.ThreadID, Error: joinErrorText(err)})
			return
		}
		if !c.hub.Join(incoming.ThreadID, c) {
			c.reply(Envelope{Type: TypeError, ThreadID: incoming.ThreadID, Error: "server shutting down"})
			return
		}
		c.reply(Envelope{Type: TypeJoined, ThreadID: incoming.ThreadID})
	case TypeLeave:
		c.hub.Leave(incoming.ThreadID, c)
		c.reply(Envelope{Type: TypeLeft, ThreadID: incoming.ThreadID})
	case TypePing:
		c.reply(Envelope{Type: TypePong})
	default:
		c.reply(Envelope{Type: TypeError, Error: "unsupported frame type"})
	}
}

// reply queues a frame for this connection only. Replies are dropped rather
// than blocking the reader when the buffer is full.
func (c *Client) reply(envelope Envelope) {
	payload, err := encode(envelope)
	if err != nil {
		return
	}
	if !c.Deliver(payload) {
		c.logger.Debug("reply dropped", zap.String("type", envelope.Type))
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

func joinErrorText(err error) string {
	switch {
	case errors.Is(err, services.ErrForbidden):
		return "forbidden"
	case errors.Is(err, services.ErrThreadNotFound):
		return "thread not found"
	case errors.Is(err, services.ErrValidation):
		return "invalid thread id"
	default:
		return "join failed"
	}
}
