package fanout

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"

	"pageviews/internal/domain"
)

type published struct {
	queue string
	msg   *Message
}

type fakeBroker struct {
	mu         sync.Mutex
	declared   []string
	published  []published
	declareErr error
	publishErr error
	closed     bool
}

func (b *fakeBroker) DeclareQueue(_ context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.declareErr != nil {
		return b.declareErr
	}
	b.declared = append(b.declared, name)
	return nil
}

func (b *fakeBroker) Publish(ctx context.Context, queue string, msg *Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.publishErr != nil {
		return b.publishErr
	}
	b.published = append(b.published, published{queue: queue, msg: msg})
	return nil
}

func (b *fakeBroker) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
}

func (b *fakeBroker) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

type fakeConnector struct {
	mu         sync.Mutex
	brokers    []*fakeBroker
	next       func() *fakeBroker
	dialErr    error
	disconnect func(error)
}

func (c *fakeConnector) Connect(_ context.Context, onDisconnect func(error)) (Broker, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dialErr != nil {
		return nil, c.dialErr
	}
	b := &fakeBroker{}
	if c.next != nil {
		b = c.next()
	}
	c.brokers = append(c.brokers, b)
	c.disconnect = onDisconnect
	return b, nil
}

func (c *fakeConnector) dials() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.brokers)
}

func (c *fakeConnector) dropLink(err error) {
	c.mu.Lock()
	fn := c.disconnect
	c.mu.Unlock()
	fn(err)
}

func testBatch() domain.BatchRequest {
	return domain.BatchRequest{Entries: []domain.BatchEntry{
		{Page: "a.html", Timestamp: "2024-01-01_10:15", Bucket: domain.HourBucket{Date: "2024-01-01", Hour: 10}, Count: 3},
		{Page: "b.html", Timestamp: "2024-01-01_11:00", Bucket: domain.HourBucket{Date: "2024-01-01", Hour: 11}, Count: 1},
	}}
}

func newTestDistributor(c Connector, queues ...string) *Distributor {
	if len(queues) == 0 {
		queues = []string{"q1", "q2"}
	}
	return NewDistributor(c, NewRoundRobinPolicy(queues), zerolog.New(io.Discard))
}

func TestPublishBeforeConnectIsUnavailable(t *testing.T) {
	d := newTestDistributor(&fakeConnector{})
	if _, err := d.Publish(context.Background(), KindMulti, testBatch()); !errors.Is(err, domain.ErrDistributorUnavailable) {
		t.Fatalf("Publish error = %v, want ErrDistributorUnavailable", err)
	}
	if d.State() != StateDisconnected {
		t.Fatalf("State() = %s", d.State())
	}
}

func TestConnectDeclaresEveryQueue(t *testing.T) {
	c := &fakeConnector{}
	d := newTestDistributor(c, "q1", "q2", "q3")
	if err := d.Connect(context.Background()); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}
	if d.State() != StateReady {
		t.Fatalf("State() = %s, want ready", d.State())
	}
	if got := c.brokers[0].declared; len(got) != 3 || got[0] != "q1" || got[2] != "q3" {
		t.Fatalf("declared = %v", got)
	}
	if err := d.Connect(context.Background()); err == nil {
		t.Fatalf("second Connect while ready should fail")
	}
}

func TestPublishCancelledByCallerKeepsSession(t *testing.T) {
	c := &fakeConnector{}
	d := newTestDistributor(c)
	if err := d.Connect(context.Background()); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.Publish(ctx, KindMulti, testBatch()); !errors.Is(err, context.Canceled) {
		t.Fatalf("Publish error = %v, want context.Canceled", err)
	}
	if d.State() != StateReady {
		t.Fatalf("State() = %s, want ready after a cancelled request", d.State())
	}
	if c.brokers[0].isClosed() {
		t.Fatalf("broker closed by a cancelled request")
	}

	if _, err := d.Publish(context.Background(), KindMulti, testBatch()); err != nil {
		t.Fatalf("Publish after cancelled request returned error: %v", err)
	}
	if c.dials() != 1 {
		t.Fatalf("dials = %d, want the original session reused", c.dials())
	}
}

func TestConnectDialFailureStaysDisconnected(t *testing.T) {
	d := newTestDistributor(&fakeConnector{dialErr: errors.New("connection refused")})
	if err := d.Connect(context.Background()); err == nil {
		t.Fatalf("expected dial error")
	}
	if d.State() != StateDisconnected {
		t.Fatalf("State() = %s, want disconnected", d.State())
	}
}

func TestDeclareFailureClosesSession(t *testing.T) {
	c := &fakeConnector{next: func() *fakeBroker { return &fakeBroker{declareErr: errors.New("insufficient resources")} }}
	d := newTestDistributor(c)
	if err := d.Connect(context.Background()); err == nil {
		t.Fatalf("expected declare error")
	}
	if d.State() != StateDisconnected {
		t.Fatalf("State() = %s, want disconnected", d.State())
	}
	if !c.brokers[0].isClosed() {
		t.Fatalf("session should be closed after a failed declare")
	}
	if _, err := d.Publish(context.Background(), KindSingle, testBatch()); !errors.Is(err, domain.ErrDistributorUnavailable) {
		t.Fatalf("Publish error = %v, want ErrDistributorUnavailable", err)
	}
}

func TestPublishSendsOneMessagePerCall(t *testing.T) {
	c := &fakeConnector{}
	d := newTestDistributor(c, "q1", "q2")
	if err := d.Connect(context.Background()); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}

	q1, err := d.Publish(context.Background(), KindMulti, testBatch())
	if err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
	q2, err := d.Publish(context.Background(), KindSingle, domain.BatchRequest{Entries: testBatch().Entries[:1]})
	if err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
	if q1 != "q1" || q2 != "q2" {
		t.Fatalf("queues = %s, %s", q1, q2)
	}

	b := c.brokers[0]
	if len(b.published) != 2 {
		t.Fatalf("published %d messages, want 2", len(b.published))
	}
	first := b.published[0]
	if first.queue != "q1" || first.msg.Kind != KindMulti || first.msg.ID == "" {
		t.Fatalf("first message = %+v", first)
	}
	body, err := DecodeBody(first.msg.Body)
	if err != nil {
		t.Fatalf("DecodeBody: %v", err)
	}
	if body["a.html"]["2024-01-01_10:15"] != 3 || body["b.html"]["2024-01-01_11:00"] != 1 {
		t.Fatalf("payload = %v", body)
	}
}

func TestPublishFailureDropsSession(t *testing.T) {
	c := &fakeConnector{next: func() *fakeBroker { return &fakeBroker{publishErr: errors.New("no responders")} }}
	d := newTestDistributor(c)
	if err := d.Connect(context.Background()); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}
	lost := d.Lost()

	if _, err := d.Publish(context.Background(), KindSingle, testBatch()); err == nil {
		t.Fatalf("expected publish error")
	}
	if d.State() != StateDisconnected {
		t.Fatalf("State() = %s, want disconnected", d.State())
	}
	select {
	case <-lost:
	default:
		t.Fatalf("Lost channel should be closed")
	}
	if !c.brokers[0].isClosed() {
		t.Fatalf("session should be closed after a failed publish")
	}
	if _, err := d.Publish(context.Background(), KindSingle, testBatch()); !errors.Is(err, domain.ErrDistributorUnavailable) {
		t.Fatalf("Publish error = %v, want ErrDistributorUnavailable", err)
	}
}

func TestStaleDisconnectIsIgnored(t *testing.T) {
	c := &fakeConnector{}
	d := newTestDistributor(c)
	if err := d.Connect(context.Background()); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}
	stale := c.disconnect
	d.Close()
	if err := d.Connect(context.Background()); err != nil {
		t.Fatalf("reconnect returned error: %v", err)
	}
	stale(errors.New("old link"))
	if d.State() != StateReady {
		t.Fatalf("a callback from a closed session must not drop the new one, state = %s", d.State())
	}
}

func TestServeReconnectsUnderSupervisor(t *testing.T) {
	c := &fakeConnector{}
	d := newTestDistributor(c)

	sup := suture.New("test", suture.Spec{
		FailureThreshold: 100,
		FailureBackoff:   time.Millisecond,
		Timeout:          time.Second,
	})
	sup.Add(d)
	ctx, cancel := context.WithCancel(context.Background())
	done := sup.ServeBackground(ctx)
	defer func() {
		cancel()
		<-done
	}()

	waitFor(t, func() bool { return d.State() == StateReady })
	c.dropLink(errors.New("connection reset"))
	waitFor(t, func() bool { return c.dials() == 2 && d.State() == StateReady })

	if _, err := d.Publish(context.Background(), KindSingle, testBatch()); err != nil {
		t.Fatalf("Publish after reconnect returned error: %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}
