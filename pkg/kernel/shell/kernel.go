// Package shell runs kernels in process on top of a POSIX shell
// interpreter. Variables, functions and the working directory persist
// across executions of one kernel.
package shell

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"github.com/stateful/cellbook/pkg/kernel"
)

const Name = "bash"

// Kernel is a shell kernel. Executions are serialised.
type Kernel struct {
	id      string
	name    string
	session string
	dir     string
	env     []string
	logger  *zap.Logger

	mu     sync.Mutex
	runner *interp.Runner
	count  int
	stdout *streamWriter
	stderr *streamWriter

	busy         atomic.Bool
	closed       atomic.Bool
	lastActivity atomic.Int64
}

func newKernel(id, name, dir string, env []string, logger *zap.Logger) (*Kernel, error) {
	k := &Kernel{
		id:      id,
		name:    name,
		session: uuid.NewString(),
		dir:     dir,
		env:     env,
		logger:  logger.With(zap.String("kernel", id)),
		stdout:  &streamWriter{name: "stdout"},
		stderr:  &streamWriter{name: "stderr"},
	}
	if err := k.reset(); err != nil {
		return nil, err
	}
	k.lastActivity.Store(time.Now().UnixNano())
	return k, nil
}

func (k *Kernel) reset() error {
	opts := []interp.RunnerOption{
		interp.Env(expand.ListEnviron(k.env...)),
		interp.StdIO(nil, k.stdout, k.stderr),
	}
	if k.dir != "" {
		opts = append(opts, interp.Dir(k.dir))
	}
	runner, err := interp.New(opts...)
	if err != nil {
		return errors.WithStack(err)
	}
	k.runner = runner
	return nil
}

func (k *Kernel) ID() string { return k.id }

func (k *Kernel) Name() string { return k.name }

// Close detaches a connection. The kernel keeps running until its
// manager shuts it down.
func (k *Kernel) Close() error { return nil }

func (k *Kernel) model() kernel.Model {
	state := "idle"
	if k.busy.Load() {
		state = "busy"
	}
	return kernel.Model{
		ID:             k.id,
		Name:           k.name,
		LastActivity:   time.Unix(0, k.lastActivity.Load()).UTC(),
		ExecutionState: state,
	}
}

type future struct {
	msgID string
	done  chan struct{}
	reply *kernel.ExecuteReply
	err   error
}

func (f *future) MsgID() string { return f.msgID }

func (f *future) Wait(ctx context.Context) (*kernel.ExecuteReply, error) {
	select {
	case <-f.done:
		return f.reply, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (k *Kernel) RequestExecute(ctx context.Context, req kernel.ExecuteRequest, onIOPub kernel.IOPubHandler) (kernel.Future, error) {
	if k.closed.Load() {
		return nil, errors.Errorf("kernel %s is shut down", k.id)
	}

	parent := kernel.Header{
		MsgID:    uuid.NewString(),
		MsgType:  kernel.MsgExecuteReq,
		Session:  k.session,
		Username: "cellbook",
		Version:  "5.3",
	}
	f := &future{msgID: parent.MsgID, done: make(chan struct{})}

	go func() {
		defer close(f.done)

		k.mu.Lock()
		defer k.mu.Unlock()

		k.busy.Store(true)
		defer func() {
			k.busy.Store(false)
			k.lastActivity.Store(time.Now().UnixNano())
		}()

		p := &publisher{parent: parent, silent: req.Silent, handler: onIOPub, logger: k.logger}
		f.reply, f.err = k.execute(ctx, req, p)
	}()

	return f, nil
}

func (k *Kernel) execute(ctx context.Context, req kernel.ExecuteRequest, p *publisher) (*kernel.ExecuteReply, error) {
	p.status("busy")
	defer p.status("idle")

	if req.StoreHistory && !req.Silent {
		k.count++
	}
	reply := &kernel.ExecuteReply{Status: kernel.StatusOK, ExecutionCount: k.count}

	p.publish(kernel.MsgExecuteInput, map[string]any{"code": req.Code, "execution_count": k.count})

	file, err := syntax.NewParser().Parse(strings.NewReader(req.Code), "")
	if err != nil {
		k.logger.Debug("failed to parse code", zap.Error(err))
		return k.fail(reply, p, "SyntaxError", err.Error()), nil
	}

	k.stdout.begin(p)
	k.stderr.begin(p)
	runErr := k.run(ctx, file)
	k.stdout.end()
	k.stderr.end()

	if k.runner.Exited() {
		if err := k.reset(); err != nil {
			return nil, err
		}
	}

	if runErr == nil {
		return reply, nil
	}

	if status, ok := interp.IsExitStatus(runErr); ok {
		if status == 0 {
			return reply, nil
		}
		return k.fail(reply, p, "ExitStatus", fmt.Sprintf("exit status %d", status)), nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return k.fail(reply, p, "Interrupted", ctxErr.Error()), nil
	}
	return k.fail(reply, p, "ShellError", runErr.Error()), nil
}

// run executes the statements of file one by one. Running a whole file
// ends the shell, which would drop its state. The error of the last
// statement is returned, like the status of a script. An explicit exit
// or a failure that is not an exit status stops the execution.
func (k *Kernel) run(ctx context.Context, file *syntax.File) error {
	var err error
	for _, stmt := range file.Stmts {
		err = k.runner.Run(ctx, stmt)
		if k.runner.Exited() || ctx.Err() != nil {
			return err
		}
		if err == nil {
			continue
		}
		if _, ok := interp.IsExitStatus(err); !ok {
			return err
		}
	}
	return err
}

func (k *Kernel) fail(reply *kernel.ExecuteReply, p *publisher, ename, evalue string) *kernel.ExecuteReply {
	reply.Status = kernel.StatusError
	reply.EName = ename
	reply.EValue = evalue
	reply.Traceback = []string{}
	p.publish(kernel.MsgError, map[string]any{"ename": ename, "evalue": evalue, "traceback": []string{}})
	return reply
}

type publisher struct {
	mu      sync.Mutex
	parent  kernel.Header
	silent  bool
	handler kernel.IOPubHandler
	logger  *zap.Logger
}

func (p *publisher) status(state string) {
	p.send(kernel.MsgStatus, map[string]any{"execution_state": state})
}

// publish sends a message unless the request is silent.
func (p *publisher) publish(msgType string, content any) {
	if p.silent {
		return
	}
	p.send(msgType, content)
}

func (p *publisher) send(msgType string, content any) {
	if p.handler == nil {
		return
	}
	msg, err := kernel.NewMessage(msgType, p.parent, content)
	if err != nil {
		p.logger.Warn("failed to build message", zap.String("type", msgType), zap.Error(err))
		return
	}
	msg.Header.MsgID = uuid.NewString()
	msg.Header.Session = p.parent.Session
	msg.Header.Username = p.parent.Username
	msg.Channel = "iopub"

	p.mu.Lock()
	defer p.mu.Unlock()
	p.handler(msg)
}

// streamWriter turns writes into stream messages, one per complete line
// so that a command writing a line in pieces produces a single message.
// Commands run by the interpreter write stdout and stderr from separate
// goroutines.
type streamWriter struct {
	name string

	mu  sync.Mutex
	p   *publisher
	buf []byte
}

func (w *streamWriter) begin(p *publisher) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.p = p
	w.buf = w.buf[:0]
}

// end publishes what is left of the last line and detaches the
// publisher. Output written afterwards, by a command still running in the
// background, is dropped.
func (w *streamWriter) end() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flush(len(w.buf))
	w.p = nil
}

func (w *streamWriter) Write(b []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.p == nil {
		return len(b), nil
	}
	w.buf = append(w.buf, b...)
	if i := bytes.LastIndexByte(w.buf, '\n'); i >= 0 {
		w.flush(i + 1)
	}
	return len(b), nil
}

func (w *streamWriter) flush(n int) {
	if n == 0 || w.p == nil {
		return
	}
	w.p.publish(kernel.MsgStream, map[string]any{"name": w.name, "text": string(w.buf[:n])})
	w.buf = append(w.buf[:0], w.buf[n:]...)
}
