package nats

import (
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/smazurov/camkeep/internal/events"
)

// Publisher mirrors bus events to NATS.
// Gracefully degrades when NATS is unavailable.
type Publisher struct {
	url    string
	source string
	logger *slog.Logger

	mu        sync.RWMutex
	conn      *nats.Conn
	connected bool
	unsubs    []func()
}

// NewPublisher creates a publisher for source; call Connect and Start.
func NewPublisher(url, source string, logger *slog.Logger) *Publisher {
	return &Publisher{
		url:    url,
		source: source,
		logger: logger.With("component", "nats", "source", SourceToken(source)),
	}
}

// Connect starts the client. An unreachable server is not an error: the
// client keeps retrying and publishes are dropped until it is connected.
func (p *Publisher) Connect() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	conn, err := nats.Connect(p.url,
		nats.Name("camkeep-"+SourceToken(p.source)),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.RetryOnFailedConnect(true),
		nats.ConnectHandler(func(_ *nats.Conn) {
			p.setConnected(true)
			p.logger.Info("Connected to NATS", "url", p.url)
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			p.setConnected(false)
			if err != nil {
				p.logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			p.setConnected(true)
			p.logger.Info("NATS reconnected")
		}),
	)
	if err != nil {
		p.logger.Warn("Failed to create NATS client", "url", p.url, "error", err)
		return err
	}

	p.conn = conn
	p.connected = conn.IsConnected()
	if !p.connected {
		p.logger.Warn("NATS unreachable, retrying in background", "url", p.url)
	}
	return nil
}

// Start subscribes to the bus. Frame events are not forwarded.
func (p *Publisher) Start(bus *events.Bus) {
	p.unsubs = []func(){
		bus.Subscribe(func(e events.StateChangedEvent) { p.publish(KindState, e) }),
		bus.Subscribe(func(e events.OpenAttemptEvent) { p.publish(KindAttempt, e) }),
		bus.Subscribe(func(e events.HealthSignalEvent) { p.publish(KindHealth, e) }),
		bus.Subscribe(func(e events.ReconnectEvent) { p.publish(KindReconnect, e) }),
	}
}

// IsConnected returns true if connected to NATS.
func (p *Publisher) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected && p.conn != nil
}

// Close unsubscribes from the bus and flushes the connection.
func (p *Publisher) Close() {
	for _, unsub := range p.unsubs {
		unsub()
	}
	p.unsubs = nil

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		if p.connected {
			if err := p.conn.FlushTimeout(time.Second); err != nil {
				p.logger.Debug("NATS flush failed", "error", err)
			}
		}
		p.conn.Close()
		p.conn = nil
	}
	p.connected = false
}

func (p *Publisher) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}

func (p *Publisher) publish(kind string, event any) {
	p.mu.RLock()
	conn, connected := p.conn, p.connected
	p.mu.RUnlock()
	if conn == nil || !connected {
		return
	}

	data, err := Envelope{Source: p.source, Kind: kind, Event: event}.Marshal()
	if err != nil {
		p.logger.Warn("Failed to marshal event", "kind", kind, "error", err)
		return
	}
	if err := conn.Publish(Subject(p.source, kind), data); err != nil {
		p.logger.Warn("Failed to publish event", "kind", kind, "error", err)
	}
}
