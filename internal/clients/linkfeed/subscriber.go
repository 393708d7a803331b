// Package linkfeed applies live link updates published on NATS to planning sessions.
package linkfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/dpup/intel-overlay/server/internal/config"
	"github.com/dpup/intel-overlay/server/internal/lib/geo"
	"github.com/dpup/intel-overlay/server/internal/metrics"
	"github.com/dpup/intel-overlay/server/internal/services"
)

// Subject kinds, appended to the configured prefix
const (
	KindLinksAdded   = "links.added"
	KindLinksRemoved = "links.removed"
	KindRefresh      = "refresh"
)

var ErrUnknownSubject = errors.New("unknown feed subject")

// Sink receives decoded feed updates. *services.PlannerService implements it.
type Sink interface {
	AddLinks(ctx context.Context, id string, links []geo.Link) (*services.SessionInfo, error)
	RemoveLinks(ctx context.Context, id string, guids []string) (*services.SessionInfo, error)
	Refresh(ctx context.Context, id string) (*services.SessionInfo, error)
}

// Message is the JSON payload of every feed subject
type Message struct {
	SessionID string     `json:"session_id"`
	Links     []geo.Link `json:"links,omitempty"`
	GUIDs     []string   `json:"guids,omitempty"`
}

// reply is sent back when the publisher used request/reply
type reply struct {
	Session *services.SessionInfo `json:"session,omitempty"`
	Error   string                `json:"error,omitempty"`
}

// Subscriber routes feed messages to a Sink
type Subscriber struct {
	conn   *nats.Conn
	sink   Sink
	prefix string
	subs   []*nats.Subscription
}

// Connect dials NATS using the feed settings
func Connect(cfg config.FeedConfig, sink Sink) (*Subscriber, error) {
	conn, err := nats.Connect(cfg.NatsURL,
		nats.Name("intel-overlay"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("Link feed disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("Link feed reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("Link feed connection closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return NewSubscriber(conn, sink, cfg.SubjectPrefix), nil
}

// NewSubscriber wraps an existing connection
func NewSubscriber(conn *nats.Conn, sink Sink, prefix string) *Subscriber {
	return &Subscriber{conn: conn, sink: sink, prefix: strings.TrimSuffix(prefix, ".")}
}

// Subject returns the full subject for a kind
func (s *Subscriber) Subject(kind string) string {
	return s.prefix + "." + kind
}

// Start subscribes to every feed subject. Handlers use ctx for their service calls.
func (s *Subscriber) Start(ctx context.Context) error {
	for _, kind := range []string{KindLinksAdded, KindLinksRemoved, KindRefresh} {
		sub, err := s.conn.Subscribe(s.Subject(kind), func(msg *nats.Msg) {
			s.onMessage(ctx, msg)
		})
		if err != nil {
			s.unsubscribe()
			return fmt.Errorf("subscribe %s: %w", s.Subject(kind), err)
		}
		s.subs = append(s.subs, sub)
	}
	log.Printf("Link feed listening on %s.>", s.prefix)
	return nil
}

func (s *Subscriber) onMessage(ctx context.Context, msg *nats.Msg) {
	info, err := s.Handle(ctx, msg.Subject, msg.Data)
	if err != nil {
		log.Printf("Link feed: %s: %v", msg.Subject, err)
	}
	if msg.Reply == "" {
		return
	}

	r := reply{Session: info}
	if err != nil {
		r.Error = err.Error()
	}
	data, _ := json.Marshal(r)
	if err := msg.Respond(data); err != nil {
		log.Printf("Link feed: failed to reply on %s: %v", msg.Reply, err)
	}
}

// Handle decodes one message and applies it to the sink
func (s *Subscriber) Handle(ctx context.Context, subject string, data []byte) (*services.SessionInfo, error) {
	kind := strings.TrimPrefix(subject, s.prefix+".")

	info, err := s.dispatch(ctx, kind, data)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.FeedMessagesTotal.WithLabelValues(metricKind(kind), status).Inc()
	return info, err
}

func (s *Subscriber) dispatch(ctx context.Context, kind string, data []byte) (*services.SessionInfo, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	if msg.SessionID == "" {
		return nil, fmt.Errorf("%w: session_id is required", services.ErrInvalidInput)
	}

	switch kind {
	case KindLinksAdded:
		return s.sink.AddLinks(ctx, msg.SessionID, msg.Links)
	case KindLinksRemoved:
		return s.sink.RemoveLinks(ctx, msg.SessionID, msg.GUIDs)
	case KindRefresh:
		return s.sink.Refresh(ctx, msg.SessionID)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownSubject, kind)
}

// Close unsubscribes and drains the connection
func (s *Subscriber) Close() {
	s.unsubscribe()
	if s.conn != nil {
		_ = s.conn.Drain()
	}
}

func (s *Subscriber) unsubscribe() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	s.subs = nil
}

// metricKind keeps label cardinality bounded
func metricKind(kind string) string {
	switch kind {
	case KindLinksAdded, KindLinksRemoved, KindRefresh:
		return kind
	}
	return "unknown"
}
