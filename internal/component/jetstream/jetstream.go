package jetstream

import (
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/ssuji15/docbuilder/internal/config"
	"github.com/ssuji15/docbuilder/internal/service/logger"
)

var (
	nc        *nats.Conn
	once      sync.Once
	initError error
)

// NewJetStreamClient returns the process wide NATS connection.
func NewJetStreamClient(cfg *config.NatsConfig) (*nats.Conn, error) {
	once.Do(func() {
		nc, initError = nats.Connect(cfg.URL,
			nats.MaxReconnects(-1),
			nats.ReconnectWait(1*time.Second),
			nats.Name("docbuilder"),
			nats.ReconnectErrHandler(func(nc *nats.Conn, err error) {
				logger.Log.Warn().Err(err).Msg("NATS reconnected")
			}),
			nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
				logger.Log.Warn().Err(err).Msg("NATS disconnected")
			}),
			nats.ClosedHandler(func(nc *nats.Conn) {
				logger.Log.Info().Msg("NATS closed")
			}),
		)
	})
	return nc, initError
}

func ResetJetStreamClient() {
	nc = nil
	once = sync.Once{}
	initError = nil
}
