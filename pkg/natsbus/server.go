package natsbus

import (
	"errors"
	"fmt"
	"time"

	natssrv "github.com/nats-io/nats-server/v2/server"
)

const (
	DefaultHost = "127.0.0.1"
	DefaultPort = 4222
)

var ErrServerNotReady = errors.New("nats server not ready")

// ServerOptions configure an embedded NATS server.
type ServerOptions struct {
	Host string
	// Port -1 picks a random free port.
	Port int
	// StoreDir enables JetStream with file storage under the directory.
	StoreDir string
	// JetStream enables JetStream. Streams are kept in memory unless
	// StoreDir is set.
	JetStream bool
}

// StartServer runs an embedded NATS server and waits until it accepts
// connections. The caller shuts it down.
func StartServer(opts ServerOptions) (*natssrv.Server, error) {
	if opts.Host == "" {
		opts.Host = DefaultHost
	}
	if opts.Port == 0 {
		opts.Port = DefaultPort
	}

	ns, err := natssrv.NewServer(&natssrv.Options{
		Host:      opts.Host,
		Port:      opts.Port,
		JetStream: opts.JetStream || opts.StoreDir != "",
		StoreDir:  opts.StoreDir,
		NoLog:     true,
		NoSigs:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("create nats server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		return nil, ErrServerNotReady
	}
	return ns, nil
}
