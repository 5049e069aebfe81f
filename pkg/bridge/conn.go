package bridge

import (
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrConnClosed is returned when writing to a closed connection.
var ErrConnClosed = errors.New("bridge: connection closed")

// Conn is one browser tab connected over the bridge. It implements
// fragment.Location and fragment.Navigator, so a hashstate binding can run
// against a real browser's URL fragment.
//
// Hash reports the last fragment the browser told us about, or the last one
// we set. Hashchange notifications are delivered on the connection's reader
// goroutine. Reports the browser sent before applying our latest set or
// clear are dropped.
type Conn struct {
	id     string
	ws     *websocket.Conn
	logger *slog.Logger

	writeMu      sync.Mutex
	writeTimeout time.Duration

	// mu is taken after writeMu when both are held.
	mu        sync.Mutex
	seq       uint64
	hash      string
	path      string
	search    string
	listeners map[uint64]func()
	nextID    uint64
	closed    bool

	done    chan struct{}
	metrics *serverMetrics
}

func newConn(id string, ws *websocket.Conn, hello Message, writeTimeout time.Duration, logger *slog.Logger, metrics *serverMetrics) *Conn {
	return &Conn{
		id:           id,
		ws:           ws,
		logger:       logger,
		writeTimeout: writeTimeout,
		hash:         hello.Hash,
		path:         hello.Path,
		search:       hello.Search,
		listeners:    make(map[uint64]func()),
		done:         make(chan struct{}),
		metrics:      metrics,
	}
}

// ID returns the connection's session id.
func (c *Conn) ID() string { return c.id }

// Path returns the document path reported at connect time.
func (c *Conn) Path() string { return c.path }

// Search returns the document query string reported at connect time,
// including its leading '?'.
func (c *Conn) Search() string { return c.search }

// Done is closed once the connection has ended.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Hash returns the current fragment without the leading '#'.
func (c *Conn) Hash() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hash
}

// SetHash asks the browser to set its fragment. The browser reports the
// resulting hashchange back.
func (c *Conn) SetHash(hash string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrConnClosed
	}
	if c.hash == hash {
		c.mu.Unlock()
		return nil
	}
	c.seq++
	msg := Message{Type: TypeSet, Seq: c.seq, Hash: hash}
	c.hash = hash
	c.mu.Unlock()

	return c.write(msg)
}

// ClearHash asks the browser to push a history entry without a fragment.
// No hashchange follows.
func (c *Conn) ClearHash() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrConnClosed
	}
	c.seq++
	msg := Message{Type: TypeClear, Seq: c.seq}
	c.hash = ""
	c.mu.Unlock()

	return c.write(msg)
}

// Navigate sends the browser to url.
func (c *Conn) Navigate(url string) error {
	return c.send(Message{Type: TypeNavigate, URL: url})
}

// OnHashChange registers fn for hashchange notifications.
func (c *Conn) OnHashChange(fn func()) (cancel func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++
	c.listeners[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

// Close closes the underlying websocket. The reader loop then exits and
// Done is closed.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(c.writeTimeout))
	c.writeMu.Unlock()

	return c.ws.Close()
}

func (c *Conn) send(msg Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.write(msg)
}

// write sends msg. The caller holds writeMu.
func (c *Conn) write(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if c.isClosed() {
		return ErrConnClosed
	}
	if c.writeTimeout > 0 {
		_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	c.metrics.recordMessage("out", msg.Type)
	return nil
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// readLoop reads browser messages until the connection fails.
func (c *Conn) readLoop() {
	defer func() {
		c.mu.Lock()
		c.closed = true
		c.listeners = make(map[uint64]func())
		c.mu.Unlock()
		c.ws.Close()
		close(c.done)
	}()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Error("websocket read error", "error", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("invalid message", "error", err)
			continue
		}
		c.metrics.recordMessage("in", msg.Type)

		switch msg.Type {
		case TypeHashChange:
			c.mu.Lock()
			if latest := c.seq; msg.Seq < latest {
				c.mu.Unlock()
				c.logger.Debug("dropping stale hashchange", "seq", msg.Seq, "latest", latest)
				continue
			}
			c.hash = msg.Hash
			c.mu.Unlock()
			c.notify()
		default:
			c.logger.Debug("ignoring message", "type", msg.Type)
		}
	}
}

// notify runs the current listeners in registration order, skipping any
// removed by an earlier listener.
func (c *Conn) notify() {
	c.mu.Lock()
	ids := make([]uint64, 0, len(c.listeners))
	for id := range c.listeners {
		ids = append(ids, id)
	}
	c.mu.Unlock()
	slices.Sort(ids)

	for _, id := range ids {
		c.mu.Lock()
		fn, ok := c.listeners[id]
		c.mu.Unlock()
		if ok {
			fn()
		}
	}
}
