package fanout

import (
	"fmt"
	"math/rand/v2"
	"sync/atomic"
)

// Policy picks the destination queue for one publish.
type Policy interface {
	Next() string
	Queues() []string
}

// RandomPolicy selects uniformly at random from a fixed pool.
type RandomPolicy struct {
	queues []string
	intn   func(int) int
}

// NewRandomPolicy builds a uniform policy. intn returns a value in [0, n); nil uses math/rand/v2.
func NewRandomPolicy(queues []string, intn func(int) int) *RandomPolicy {
	if intn == nil {
		intn = rand.IntN
	}
	return &RandomPolicy{queues: append([]string(nil), queues...), intn: intn}
}

func (p *RandomPolicy) Next() string { return p.queues[p.intn(len(p.queues))] }

func (p *RandomPolicy) Queues() []string { return p.queues }

// RoundRobinPolicy cycles through the pool in order.
type RoundRobinPolicy struct {
	queues []string
	next   atomic.Uint64
}

func NewRoundRobinPolicy(queues []string) *RoundRobinPolicy {
	return &RoundRobinPolicy{queues: append([]string(nil), queues...)}
}

func (p *RoundRobinPolicy) Next() string {
	n := p.next.Add(1) - 1
	return p.queues[n%uint64(len(p.queues))]
}

func (p *RoundRobinPolicy) Queues() []string { return p.queues }

// NewPolicy resolves a policy by its config name ("random" or "round_robin").
func NewPolicy(name string, queues []string) (Policy, error) {
	if len(queues) == 0 {
		return nil, fmt.Errorf("queue pool is empty")
	}
	switch name {
	case "", "random":
		return NewRandomPolicy(queues, nil), nil
	case "round_robin":
		return NewRoundRobinPolicy(queues), nil
	default:
		return nil, fmt.Errorf("unknown queue policy %q", name)
	}
}
