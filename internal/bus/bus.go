// Package bus publishes turn events to a websocket hub so other processes
// (status bars, dashboards, home automation) can follow the assistant.
package bus

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	ws "github.com/gorilla/websocket"

	"iris/internal/turn"
)

// Message is the JSON frame sent for every turn event.
type Message struct {
	Kind    string    `json:"kind"`
	Turn    int       `json:"turn"`
	State   string    `json:"state"`
	Outcome string    `json:"outcome,omitempty"`
	Keyword *int      `json:"keyword,omitempty"`
	Text    string    `json:"text,omitempty"`
	Reply   string    `json:"reply,omitempty"`
	Error   string    `json:"error,omitempty"`
	At      time.Time `json:"at"`
}

func messageFor(e turn.Event) Message {
	m := Message{
		Kind:  "turn",
		Turn:  e.Turn,
		State: e.State.String(),
		Text:  e.Text,
		Reply: e.Reply,
		At:    e.At,
	}
	if e.Outcome != turn.Pending {
		m.Outcome = e.Outcome.String()
	}
	if e.State == turn.WakeDetected {
		kw := e.Keyword
		m.Keyword = &kw
	}
	if e.Err != nil {
		m.Error = e.Err.Error()
	}
	return m
}

// Config for a Publisher.
type Config struct {
	URL string
	// Reconnect is the delay between dial attempts. Default: 2s.
	Reconnect time.Duration
	// Buffer is how many events may queue while disconnected. Default: 64.
	Buffer int
	// WriteTimeout bounds a single frame write. Default: 5s.
	WriteTimeout time.Duration
}

// Publisher forwards turn events over a websocket. Observe never blocks:
// when the queue is full the event is dropped.
type Publisher struct {
	cfg    Config
	events chan Message
	dialer *ws.Dialer
}

var _ turn.Observer = (*Publisher)(nil)

func NewPublisher(cfg Config) *Publisher {
	if cfg.Reconnect <= 0 {
		cfg.Reconnect = 2 * time.Second
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 64
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	return &Publisher{
		cfg:    cfg,
		events: make(chan Message, cfg.Buffer),
		dialer: ws.DefaultDialer,
	}
}

func (p *Publisher) Observe(e turn.Event) {
	select {
	case p.events <- messageFor(e):
	default:
		slog.Debug("bus queue full, dropping event", "state", e.State)
	}
}

// Run connects to the hub and writes queued events until ctx is cancelled,
// reconnecting whenever the connection drops.
func (p *Publisher) Run(ctx context.Context) error {
	var pending *Message
	for {
		conn, err := p.dial(ctx)
		if err != nil {
			return nil
		}
		pending, err = p.pump(ctx, conn, pending)
		conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		slog.Warn("Bus connection lost, reconnecting", "url", p.cfg.URL, "err", err)
	}
}

// dial retries until it connects or ctx is done.
func (p *Publisher) dial(ctx context.Context) (*ws.Conn, error) {
	slog.Debug("Dialing bus", "url", p.cfg.URL)
	for {
		conn, _, err := p.dialer.DialContext(ctx, p.cfg.URL, nil)
		if err == nil {
			slog.Info("Bus connected", "url", p.cfg.URL)
			return conn, nil
		}
		slog.Debug("Bus dial failed", "url", p.cfg.URL, "err", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.cfg.Reconnect):
		}
	}
}

// pump writes events to conn. On a write failure it returns the message that
// could not be delivered so it is retried on the next connection.
func (p *Publisher) pump(ctx context.Context, conn *ws.Conn, pending *Message) (*Message, error) {
	closed := make(chan error, 1)
	go func() {
		// Drain control frames; a read error means the peer went away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				closed <- err
				return
			}
		}
	}()

	for {
		if pending != nil {
			if err := p.write(conn, *pending); err != nil {
				return pending, err
			}
			pending = nil
		}
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(ws.CloseMessage,
				ws.FormatCloseMessage(ws.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return nil, ctx.Err()
		case err := <-closed:
			return nil, err
		case m := <-p.events:
			pending = &m
		}
	}
}

func (p *Publisher) write(conn *ws.Conn, m Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(p.cfg.WriteTimeout))
	return conn.WriteMessage(ws.TextMessage, data)
}
