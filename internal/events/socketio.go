package events

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/vk/chunkgrid/internal/ctxlog"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// StatusEvent is the socket.io event name status changes are emitted under.
const StatusEvent = "job_status"

// SocketIOConfig configures a SocketIOPublisher.
type SocketIOConfig struct {
	URL                string
	Namespace          string
	InsecureSkipVerify bool
	// ConnectTimeout bounds each connection attempt. Zero means 15s.
	ConnectTimeout time.Duration
}

// SocketIOPublisher emits events to a socket.io server over a websocket
// transport. It connects on the first Publish and reconnects on the next
// one after a failure.
type SocketIOPublisher struct {
	cfg SocketIOConfig

	mu     sync.Mutex
	client *socket.Socket
}

// NewSocketIOPublisher validates cfg. No connection is made yet.
func NewSocketIOPublisher(cfg SocketIOConfig) (*SocketIOPublisher, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("events URL %q needs a scheme and a host", cfg.URL)
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "/"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 15 * time.Second
	}
	return &SocketIOPublisher{cfg: cfg}, nil
}

func (p *SocketIOPublisher) Publish(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client == nil || !p.client.Connected() {
		client, err := p.connect(ctx)
		if err != nil {
			return err
		}
		p.client = client
	}

	for _, e := range events {
		payload, err := toPayload(e)
		if err != nil {
			return err
		}
		p.client.Emit(StatusEvent, payload)
	}
	ctxlog.FromContext(ctx).Debug("Emitted status events.", "count", len(events), "sid", p.client.Id())
	return nil
}

func (p *SocketIOPublisher) connect(ctx context.Context) (*socket.Socket, error) {
	logger := ctxlog.FromContext(ctx).With("publisher", "socketio", "url", p.cfg.URL)

	parsedURL, err := url.Parse(p.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	opts := socket.DefaultOptions()
	opts.SetPath(parsedURL.Path)
	if p.cfg.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	connectChan := make(chan error, 1)
	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(p.cfg.Namespace, opts)

	io.Once(types.EventName("connect"), func(...any) {
		logger.Info("Connected to event sink.", "sid", io.Id())
		select {
		case connectChan <- nil:
		default:
		}
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err := fmt.Errorf("connect_error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		select {
		case connectChan <- err:
		default:
		}
	})

	io.Connect()

	select {
	case err := <-connectChan:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
		return io, nil
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection")
	case <-time.After(p.cfg.ConnectTimeout):
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %s waiting for socket.io connection", p.cfg.ConnectTimeout)
	}
}

// Close disconnects the client if it was ever connected.
func (p *SocketIOPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		p.client.Disconnect()
		p.client = nil
	}
	return nil
}

// toPayload turns an event into plain JSON-shaped data.
func toPayload(e Event) (map[string]any, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encoding event %s: %w", e.ID, err)
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("encoding event %s: %w", e.ID, err)
	}
	return out, nil
}
