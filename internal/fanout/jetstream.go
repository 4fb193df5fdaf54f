package fanout

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// streamAPI is the subset of jetstream.JetStream used by the broker.
type streamAPI interface {
	CreateOrUpdateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
	PublishMsg(ctx context.Context, msg *nats.Msg, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// JetStreamConnector opens NATS sessions with JetStream enabled. Each queue of the pool
// is a file-backed stream bound to a subject of the same name.
type JetStreamConnector struct {
	url         string
	dialTimeout time.Duration
	logger      zerolog.Logger
}

func NewJetStreamConnector(url string, dialTimeout time.Duration, logger zerolog.Logger) *JetStreamConnector {
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	return &JetStreamConnector{
		url:         url,
		dialTimeout: dialTimeout,
		logger:      logger.With().Str("component", "jetstream").Logger(),
	}
}

// Connect dials without automatic reconnects so a dropped link surfaces through onDisconnect.
func (c *JetStreamConnector) Connect(ctx context.Context, onDisconnect func(error)) (Broker, error) {
	opts := []nats.Option{
		nats.Name("pageviews-gateway"),
		nats.NoReconnect(),
		nats.Timeout(c.dialTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if onDisconnect != nil {
				onDisconnect(err)
			}
		}),
	}
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d > 0 && d < c.dialTimeout {
			opts = append(opts, nats.Timeout(d))
		}
	}

	nc, err := nats.Connect(c.url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	c.logger.Info().Str("url", nc.ConnectedUrlRedacted()).Msg("connected to NATS")
	return &jetStreamBroker{nc: nc, js: js}, nil
}

type jetStreamBroker struct {
	nc *nats.Conn
	js streamAPI
}

// DeclareQueue creates the stream or updates it in place.
func (b *jetStreamBroker) DeclareQueue(ctx context.Context, name string) error {
	_, err := b.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       name,
		Subjects:   []string{name},
		Retention:  jetstream.LimitsPolicy,
		Storage:    jetstream.FileStorage,
		Discard:    jetstream.DiscardOld,
		Duplicates: 2 * time.Minute,
	})
	if err != nil {
		return fmt.Errorf("ensure stream %s: %w", name, err)
	}
	return nil
}

// Publish waits for the stream to acknowledge the stored message.
func (b *jetStreamBroker) Publish(ctx context.Context, queue string, msg *Message) error {
	if _, err := b.js.PublishMsg(ctx, msg.NATS(queue), jetstream.WithExpectStream(queue)); err != nil {
		return err
	}
	return nil
}

func (b *jetStreamBroker) Close() {
	if b.nc != nil {
		b.nc.Close()
	}
}
