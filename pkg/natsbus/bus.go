// Package natsbus publishes named messages on NATS subjects under a common
// prefix, optionally persisting them in a JetStream stream.
package natsbus

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

var ErrInvalidName = errors.New("invalid message name")

// Options configure a Bus connection.
type Options struct {
	URL string
	// Name identifies the connection on the server.
	Name string
	// SubjectPrefix is prepended to every message name.
	SubjectPrefix string
	// Stream, when set, names a JetStream stream capturing every subject
	// under the prefix. Publishing then waits for the stream to ack.
	Stream string
}

// Bus publishes to "<prefix>.<name>" subjects.
type Bus struct {
	conn   *nats.Conn
	js     nats.JetStreamContext
	prefix string
}

func Connect(opts Options) (*Bus, error) {
	conn, err := nats.Connect(opts.URL,
		nats.Name(opts.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	b := &Bus{conn: conn, prefix: opts.SubjectPrefix}
	if opts.Stream == "" {
		return b, nil
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("get jetstream context: %w", err)
	}
	_, err = js.AddStream(&nats.StreamConfig{
		Name:     opts.Stream,
		Subjects: []string{b.prefix + ".>"},
		Storage:  nats.FileStorage,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		conn.Close()
		return nil, fmt.Errorf("add stream %s: %w", opts.Stream, err)
	}
	b.js = js
	return b, nil
}

// Subject returns the subject name is published on.
func (b *Bus) Subject(name string) string {
	return b.prefix + "." + name
}

// Publish sends body under name.
func (b *Bus) Publish(name string, body []byte) error {
	if name == "" || strings.ContainsAny(name, " .*>") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if b.js != nil {
		if _, err := b.js.Publish(b.Subject(name), body); err != nil {
			return fmt.Errorf("publish %s: %w", name, err)
		}
		return nil
	}
	if err := b.conn.Publish(b.Subject(name), body); err != nil {
		return fmt.Errorf("publish %s: %w", name, err)
	}
	return nil
}

// Subscribe calls fn with the name and body of every message published
// under the prefix.
func (b *Bus) Subscribe(fn func(name string, body []byte)) (*nats.Subscription, error) {
	return b.conn.Subscribe(b.prefix+".*", func(msg *nats.Msg) {
		fn(strings.TrimPrefix(msg.Subject, b.prefix+"."), msg.Data)
	})
}

// Flush waits until the server processed everything published so far.
func (b *Bus) Flush() error {
	return b.conn.Flush()
}

// Close drains pending messages and closes the connection.
func (b *Bus) Close() error {
	if b.conn.IsClosed() {
		return nil
	}
	return b.conn.Drain()
}
