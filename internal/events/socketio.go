package events

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"time"

	"github.com/specialistvlad/buildmeup/internal/ctxlog"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// StateEventName is the socket.io event every state change is emitted as.
const StateEventName = "module_state"

// SocketIOOptions configures the connection of a SocketIOReporter.
type SocketIOOptions struct {
	URL                string
	Namespace          string
	InsecureSkipVerify bool
	ConnectTimeout     time.Duration
}

// SocketIOReporter emits every state change to a socket.io server so that
// dashboards can follow a build live.
type SocketIOReporter struct {
	emit  func(event string, payload map[string]any)
	close func()
}

// DialSocketIO connects to the server and waits for the connection to be
// established.
func DialSocketIO(ctx context.Context, o SocketIOOptions) (*SocketIOReporter, error) {
	logger := ctxlog.FromContext(ctx).With("reporter", "socketio", "url", o.URL)

	parsedURL, err := url.Parse(o.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if o.Namespace == "" {
		o.Namespace = "/"
	}
	timeout := o.ConnectTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	opts := socket.DefaultOptions()
	opts.SetPath(parsedURL.Path)
	if o.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	connectChan := make(chan error, 1)

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(o.Namespace, opts)

	io.Once(types.EventName("connect"), func(...any) {
		logger.Info("Connected to event server.", "sid", io.Id())
		connectChan <- nil
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		var err error = fmt.Errorf("connect error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		connectChan <- err
	})

	io.Connect()

	select {
	case err := <-connectChan:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("waiting for socket.io connection: %w", ctx.Err())
	case <-time.After(timeout):
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %s waiting for socket.io connection", timeout)
	}

	return &SocketIOReporter{
		emit: func(event string, payload map[string]any) {
			io.Emit(event, payload)
		},
		close: func() {
			logger.Debug("Disconnecting from event server.")
			io.Disconnect()
		},
	}, nil
}

// ModuleState implements Reporter.
func (r *SocketIOReporter) ModuleState(_ context.Context, ev Event) {
	r.emit(StateEventName, Payload(ev))
}

// Close disconnects from the server.
func (r *SocketIOReporter) Close() error {
	if r.close != nil {
		r.close()
	}
	return nil
}

// Payload is the wire form of an event.
func Payload(ev Event) map[string]any {
	p := map[string]any{
		"project":  ev.Project,
		"platform": ev.Platform,
		"module":   ev.Module,
		"state":    ev.State.String(),
		"time":     ev.Time.UTC().Format(time.RFC3339Nano),
	}
	if ev.Duration > 0 {
		p["duration_ms"] = ev.Duration.Milliseconds()
	}
	if ev.Err != nil {
		p["error"] = ev.Err.Error()
	}
	return p
}
