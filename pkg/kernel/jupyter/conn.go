package jupyter

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/net/websocket"

	"github.com/stateful/cellbook/pkg/kernel"
)

var errClosed = errors.New("kernel connection closed")

// Conn is a kernel.Connection over the channels websocket. One reader
// goroutine dispatches incoming messages by parent msg_id.
type Conn struct {
	id      string
	name    string
	session string
	ws      *websocket.Conn
	logger  *zap.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]*request
	err     error

	closed chan struct{}
}

func dial(ctx context.Context, c *Client, model kernel.Model) (*Conn, error) {
	session := uuid.NewString()

	u := c.endpoint("api", "kernels", model.ID, "channels")
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	q := u.Query()
	q.Set("session_id", session)
	u.RawQuery = q.Encode()

	origin := *c.baseURL
	origin.Path = "/"

	config, err := websocket.NewConfig(u.String(), origin.String())
	if err != nil {
		return nil, errors.WithStack(err)
	}
	config.Header = http.Header{}
	if c.token != "" {
		config.Header.Set("Authorization", "token "+c.token)
	}

	ws, err := config.DialContext(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open channels of kernel %s", model.ID)
	}

	conn := &Conn{
		id:      model.ID,
		name:    model.Name,
		session: session,
		ws:      ws,
		logger:  c.logger.With(zap.String("kernel", model.ID)),
		pending: make(map[string]*request),
		closed:  make(chan struct{}),
	}
	go conn.readLoop()
	return conn, nil
}

func (c *Conn) ID() string { return c.id }

func (c *Conn) Name() string { return c.name }

func (c *Conn) Close() error {
	err := c.ws.Close()
	<-c.closed
	return errors.WithStack(err)
}

type request struct {
	msgID   string
	handler kernel.IOPubHandler
	reply   *kernel.ExecuteReply
	idle    bool
	err     error
	done    chan struct{}
}

func (r *request) MsgID() string { return r.msgID }

// Wait returns once both the execute_reply and the idle status of the
// request have arrived.
func (r *request) Wait(ctx context.Context) (*kernel.ExecuteReply, error) {
	select {
	case <-r.done:
		return r.reply, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Conn) RequestExecute(ctx context.Context, req kernel.ExecuteRequest, onIOPub kernel.IOPubHandler) (kernel.Future, error) {
	msg, err := kernel.NewMessage(kernel.MsgExecuteReq, kernel.Header{}, req)
	if err != nil {
		return nil, err
	}
	msg.Header.MsgID = uuid.NewString()
	msg.Header.Session = c.session
	msg.Header.Username = "cellbook"
	msg.ParentHeader = kernel.Header{}
	msg.Channel = "shell"

	r := &request{msgID: msg.Header.MsgID, handler: onIOPub, done: make(chan struct{})}

	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return nil, err
	}
	c.pending[r.msgID] = r
	c.mu.Unlock()

	if err := c.send(ctx, msg); err != nil {
		c.mu.Lock()
		delete(c.pending, r.msgID)
		c.mu.Unlock()
		return nil, err
	}
	return r, nil
}

func (c *Conn) send(ctx context.Context, msg kernel.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return errors.Wrap(websocket.JSON.Send(c.ws, msg), "failed to send message")
}

func (c *Conn) readLoop() {
	defer close(c.closed)

	for {
		var msg kernel.Message
		if err := websocket.JSON.Receive(c.ws, &msg); err != nil {
			c.fail(err)
			return
		}
		c.dispatch(msg)
	}
}

func (c *Conn) dispatch(msg kernel.Message) {
	c.mu.Lock()
	r, ok := c.pending[msg.ParentHeader.MsgID]
	c.mu.Unlock()
	if !ok {
		c.logger.Debug("dropping message", zap.String("type", msg.Header.MsgType), zap.String("parent", msg.ParentHeader.MsgID))
		return
	}

	if msg.Header.MsgType == kernel.MsgExecuteReply {
		var reply kernel.ExecuteReply
		if err := json.Unmarshal(msg.Content, &reply); err != nil {
			r.err = errors.Wrap(err, "invalid execute_reply")
		}
		r.reply = &reply
	} else {
		if msg.Channel == "" {
			msg.Channel = "iopub"
		}
		if r.handler != nil {
			r.handler(msg)
		}
		if msg.ExecutionState() == "idle" {
			r.idle = true
		}
	}

	if r.reply != nil && r.idle {
		c.mu.Lock()
		delete(c.pending, r.msgID)
		c.mu.Unlock()
		close(r.done)
	}
}

func (c *Conn) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.err = errClosed
	for id, r := range c.pending {
		r.err = errors.Wrap(err, "kernel connection lost")
		close(r.done)
		delete(c.pending, id)
	}
}
