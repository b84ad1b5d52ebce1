package realtime

//go:generate go run go.uber.org/mock/mockgen -source=broker.go -destination=mocks/mock_broker.go -package=mocks

import (
	"context"
	"errors"
	"sync"

	"campus-chat/internal/chat"
)

var ErrBrokerClosed = errors.New("realtime: broker closed")

// Broker relays committed events between server instances. Every instance subscribes once and
// fans out what it receives, including its own publications.
type Broker interface {
	Publish(ctx context.Context, evt chat.Event) error
	Subscribe(ctx context.Context) (<-chan chat.Event, error)
	Close() error
}

// LocalBroker loops events back inside one process. It is used when no Redis is configured.
type LocalBroker struct {
	events chan chat.Event
	done   chan struct{}
	once   sync.Once
}

func NewLocalBroker(buffer int) *LocalBroker {
	return &LocalBroker{
		events: make(chan chat.Event, max(buffer, 1)),
		done:   make(chan struct{}),
	}
}

func (b *LocalBroker) Publish(ctx context.Context, evt chat.Event) error {
	select {
	case <-b.done:
		return ErrBrokerClosed
	default:
	}
	select {
	case b.events <- evt:
		return nil
	case <-b.done:
		return ErrBrokerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe returns the single event stream. The channel is never closed; readers stop on
// their own context.
func (b *LocalBroker) Subscribe(_ context.Context) (<-chan chat.Event, error) {
	select {
	case <-b.done:
		return nil, ErrBrokerClosed
	default:
		return b.events, nil
	}
}

func (b *LocalBroker) Close() error {
	b.once.Do(func() { close(b.done) })
	return nil
}
