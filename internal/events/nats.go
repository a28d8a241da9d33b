package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"git.home.luguber.info/inful/docgen/internal/errors"
)

const publishTimeout = 5 * time.Second

// NATSSink publishes events to a JetStream subject tree. Each event kind
// gets its own subject under the configured prefix, so consumers can
// subscribe to docgen.builds.> or to a single kind.
type NATSSink struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	prefix string
}

// NewNATSSink connects to the given NATS URL. prefix defaults to
// docgen.builds when empty.
func NewNATSSink(url, prefix string) (*NATSSink, error) {
	if prefix == "" {
		prefix = "docgen.builds"
	}

	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	slog.Info("Event sink connected", "url", url, "subject_prefix", prefix)
	return &NATSSink{conn: conn, js: js, prefix: prefix}, nil
}

func (s *NATSSink) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if _, err := s.js.Publish(ctx, subject(s.prefix, ev.Type), data); err != nil {
		return errors.EventSinkError(err)
	}
	return nil
}

func (s *NATSSink) Close() error {
	s.conn.Close()
	return nil
}

// subject joins the prefix and event kind into the publish subject.
func subject(prefix string, t Type) string {
	return prefix + "." + string(t)
}
