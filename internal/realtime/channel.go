package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	sendBuffer     = 256
)

var (
	ErrClosed     = errors.New("realtime: channel closed")
	ErrBufferFull = errors.New("realtime: send buffer full")
)

type TokenSource interface {
	Token() string
}

type Options struct {
	URL    string
	Tokens TokenSource
	// ReconnectDelay is the pause before redialing after an unexpected
	// disconnect. Zero disables reconnection.
	ReconnectDelay time.Duration
	Dialer         *websocket.Dialer
	Logger         logrus.FieldLogger
}

// Channel is one live socket connection owned by a single component.
// Inbound handlers and on-connect hooks run serially on one dispatch
// goroutine, in arrival order.
type Channel struct {
	opts Options
	log  logrus.FieldLogger

	mu        sync.Mutex
	handlers  map[string][]HandlerFunc
	onConnect []func()
	conn      *websocket.Conn
	started   bool
	closed    bool

	send    chan []byte
	inbound chan func()
	done    chan struct{}
	wg      sync.WaitGroup
}

func New(opts Options) *Channel {
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Channel{
		opts:     opts,
		log:      logger.WithField("component", "realtime"),
		handlers: make(map[string][]HandlerFunc),
		send:     make(chan []byte, sendBuffer),
		inbound:  make(chan func(), sendBuffer),
		done:     make(chan struct{}),
	}
}

// On registers h for event. Handlers registered after Connect still apply
// to later frames.
func (c *Channel) On(event string, h HandlerFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = append(c.handlers[event], h)
}

// OnConnect registers fn to run after every successful (re)connection.
func (c *Channel) OnConnect(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnect = append(c.onConnect, fn)
}

// Connect dials the server and starts the pumps. It may be called once.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.started {
		c.mu.Unlock()
		return errors.New("realtime: already connected")
	}
	c.mu.Unlock()

	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	c.started = true
	c.conn = conn
	c.mu.Unlock()

	c.wg.Add(2)
	go c.run()
	go c.maintain(conn)
	return nil
}

// Connected reports whether a socket is currently open.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && !c.closed
}

// Emit queues an event for the server. Frames queued while reconnecting
// are flushed once the new connection is up.
func (c *Channel) Emit(event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrapf(err, "encode %s", event)
	}
	frame, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		return errors.Wrapf(err, "encode %s", event)
	}

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}

	select {
	case c.send <- frame:
		return nil
	default:
		return ErrBufferFull
	}
}

// Close tears the connection down and stops every goroutine the channel
// started. It is safe to call more than once, but not from a handler.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	close(c.done)
	c.mu.Unlock()

	if conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		conn.Close()
	}
	c.wg.Wait()
	return nil
}

func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if c.opts.Tokens != nil {
		if token := c.opts.Tokens.Token(); token != "" {
			header.Set("Authorization", "Bearer "+token)
		}
	}
	conn, _, err := c.opts.Dialer.DialContext(ctx, c.opts.URL, header)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", c.opts.URL)
	}
	return conn, nil
}

func (c *Channel) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// run is the dispatch loop. It is the only goroutine that invokes handlers.
func (c *Channel) run() {
	defer c.wg.Done()
	for {
		select {
		case fn := <-c.inbound:
			fn()
		case <-c.done:
			return
		}
	}
}

func (c *Channel) enqueue(fn func()) {
	select {
	case c.inbound <- fn:
	case <-c.done:
	}
}

func (c *Channel) fireConnect() {
	c.mu.Lock()
	hooks := append([]func(){}, c.onConnect...)
	c.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

func (c *Channel) dispatch(env Envelope) {
	c.mu.Lock()
	hs := append([]HandlerFunc{}, c.handlers[env.Event]...)
	c.mu.Unlock()
	if len(hs) == 0 {
		c.log.Debugf("no handler for event %q", env.Event)
		return
	}
	for _, h := range hs {
		h(env.Data)
	}
}

// maintain owns the connection lifecycle: pumps for the current socket,
// then a redial loop after an unexpected disconnect.
func (c *Channel) maintain(conn *websocket.Conn) {
	defer c.wg.Done()
	for {
		stop := make(chan struct{})
		c.wg.Add(1)
		go c.writePump(conn, stop)
		c.enqueue(c.fireConnect)

		err := c.readPump(conn)
		close(stop)
		conn.Close()
		if c.isClosed() {
			return
		}
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		c.log.WithError(err).Warn("connection lost")

		if c.opts.ReconnectDelay <= 0 {
			return
		}
		if conn = c.redial(); conn == nil {
			return
		}
	}
}

func (c *Channel) redial() *websocket.Conn {
	for {
		select {
		case <-c.done:
			return nil
		case <-time.After(c.opts.ReconnectDelay):
		}
		conn, err := c.dial(context.Background())
		if err != nil {
			c.log.WithError(err).Warn("reconnect failed")
			continue
		}
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			conn.Close()
			return nil
		}
		c.conn = conn
		c.mu.Unlock()
		c.log.Info("reconnected")
		return conn
	}
}

// readPump decodes frames from the socket and queues them for dispatch.
func (c *Channel) readPump(conn *websocket.Conn) error {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		// Peers may batch several frames into one message, newline separated.
		for _, raw := range bytes.Split(message, []byte{'\n'}) {
			if len(bytes.TrimSpace(raw)) == 0 {
				continue
			}
			var env Envelope
			if err := json.Unmarshal(raw, &env); err != nil {
				c.log.WithError(err).Warn("dropping malformed frame")
				continue
			}
			c.enqueue(func() { c.dispatch(env) })
		}
	}
}

// writePump drains the send queue onto conn and keeps it alive with pings.
func (c *Channel) writePump(conn *websocket.Conn, stop <-chan struct{}) {
	defer c.wg.Done()
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case frame := <-c.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.WithError(err).Warn("write failed")
				conn.Close()
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}
		case <-stop:
			return
		case <-c.done:
			return
		}
	}
}
