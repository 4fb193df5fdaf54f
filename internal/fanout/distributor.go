// Package fanout publishes validated page-view payloads to one queue out of a fixed pool.
package fanout

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"pageviews/internal/domain"
	"pageviews/internal/metrics"
)

// State is the connection state of a Distributor.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateReady
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	default:
		return "disconnected"
	}
}

// Broker is one live broker session.
type Broker interface {
	DeclareQueue(ctx context.Context, name string) error
	Publish(ctx context.Context, queue string, msg *Message) error
	Close()
}

// Connector opens broker sessions. onDisconnect is called when the session drops.
type Connector interface {
	Connect(ctx context.Context, onDisconnect func(error)) (Broker, error)
}

var errConnectionLost = errors.New("broker connection lost")

// Distributor owns a single broker session and routes each publish through a Policy.
// It never retries: reconnecting is left to whoever calls Connect (see Serve).
type Distributor struct {
	connector Connector
	policy    Policy
	logger    zerolog.Logger

	mu     sync.RWMutex
	state  State
	broker Broker
	gen    uint64
	lost   chan struct{}
}

func NewDistributor(connector Connector, policy Policy, logger zerolog.Logger) *Distributor {
	lost := make(chan struct{})
	close(lost)
	metrics.DistributorState.Set(float64(StateDisconnected))
	return &Distributor{
		connector: connector,
		policy:    policy,
		logger:    logger.With().Str("component", "distributor").Logger(),
		lost:      lost,
	}
}

// State returns the current connection state.
func (d *Distributor) State() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// Lost returns a channel closed when the current session leaves Ready.
func (d *Distributor) Lost() <-chan struct{} {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lost
}

// Connect dials the broker and declares every queue in the pool. On any failure the
// session is closed and the distributor stays Disconnected.
func (d *Distributor) Connect(ctx context.Context) error {
	d.mu.Lock()
	if d.state != StateDisconnected {
		state := d.state
		d.mu.Unlock()
		return fmt.Errorf("distributor is %s", state)
	}
	d.gen++
	gen := d.gen
	d.setState(StateConnecting)
	d.mu.Unlock()

	broker, err := d.connector.Connect(ctx, func(err error) { d.drop(gen, err) })
	if err != nil {
		d.fail(gen, nil)
		return fmt.Errorf("connect broker: %w", err)
	}
	for _, q := range d.policy.Queues() {
		if err := broker.DeclareQueue(ctx, q); err != nil {
			d.fail(gen, broker)
			return fmt.Errorf("declare queue %s: %w", q, err)
		}
	}

	d.mu.Lock()
	if d.gen != gen || d.state != StateConnecting {
		d.mu.Unlock()
		broker.Close()
		return errConnectionLost
	}
	d.broker = broker
	d.lost = make(chan struct{})
	d.setState(StateReady)
	d.mu.Unlock()

	d.logger.Info().Strs("queues", d.policy.Queues()).Msg("distributor ready")
	return nil
}

// Publish sends the whole batch as exactly one message to a queue chosen by the policy.
// It returns domain.ErrDistributorUnavailable unless the distributor is Ready. A failed
// publish drops the session.
func (d *Distributor) Publish(ctx context.Context, kind string, batch domain.BatchRequest) (string, error) {
	d.mu.RLock()
	state, broker, gen := d.state, d.broker, d.gen
	d.mu.RUnlock()
	if state != StateReady {
		return "", domain.ErrDistributorUnavailable
	}

	msg, err := NewMessage(kind, batch)
	if err != nil {
		return "", err
	}

	queue := d.policy.Next()
	err = broker.Publish(ctx, queue, msg)
	metrics.RecordPublish(queue, err)
	if err != nil {
		// The caller gave up; the session itself is still healthy.
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			d.logger.Warn().Err(err).Str("queue", queue).Str("kind", kind).Msg("publish abandoned")
			return "", fmt.Errorf("publish to %s: %w", queue, err)
		}
		d.logger.Error().Err(err).Str("queue", queue).Str("kind", kind).Msg("publish failed")
		d.drop(gen, err)
		return "", fmt.Errorf("publish to %s: %w", queue, err)
	}

	d.logger.Debug().Str("queue", queue).Str("kind", kind).Str("msg_id", msg.ID).Msg("published")
	return queue, nil
}

// Close ends the current session.
func (d *Distributor) Close() {
	d.mu.Lock()
	broker := d.detach()
	d.gen++
	d.mu.Unlock()
	if broker != nil {
		broker.Close()
	}
}

// Serve runs one connection lifecycle: connect, then block until the session drops or
// ctx ends. Returning an error lets a supervisor restart it.
func (d *Distributor) Serve(ctx context.Context) error {
	if err := d.Connect(ctx); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		d.Close()
		return ctx.Err()
	case <-d.Lost():
		return errConnectionLost
	}
}

func (d *Distributor) String() string { return "distributor" }

func (d *Distributor) drop(gen uint64, err error) {
	d.mu.Lock()
	if d.gen != gen || d.state == StateDisconnected {
		d.mu.Unlock()
		return
	}
	broker := d.detach()
	d.mu.Unlock()

	d.logger.Warn().Err(err).Msg("distributor disconnected")
	if broker != nil {
		broker.Close()
	}
}

func (d *Distributor) fail(gen uint64, broker Broker) {
	d.mu.Lock()
	if d.gen == gen {
		d.detach()
	}
	d.mu.Unlock()
	if broker != nil {
		broker.Close()
	}
}

// detach moves to Disconnected and returns the session to close. Caller holds mu.
func (d *Distributor) detach() Broker {
	broker := d.broker
	d.broker = nil
	if d.state == StateReady {
		close(d.lost)
	}
	d.setState(StateDisconnected)
	return broker
}

func (d *Distributor) setState(s State) {
	d.state = s
	metrics.DistributorState.Set(float64(s))
}
