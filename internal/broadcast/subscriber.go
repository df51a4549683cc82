package broadcast

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Sink delivers messages to one connected client.
type Sink interface {
	Send(ctx context.Context, msg Message) error
	Close() error
}

// SubscriberState is the lifecycle position of a Subscriber.
type SubscriberState int32

const (
	Connecting SubscriberState = iota
	Active
	Closed
)

func (s SubscriberState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Active:
		return "active"
	default:
		return "closed"
	}
}

// Subscriber is one sink registered with a Hub. Its pump goroutine delivers
// the newest message from a single-slot mailbox; older undelivered values are
// replaced.
type Subscriber struct {
	id      uuid.UUID
	sink    Sink
	state   atomic.Int32
	mailbox chan Message
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
	logger  *slog.Logger
}

func newSubscriber(sink Sink, logger *slog.Logger) *Subscriber {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.New()
	return &Subscriber{
		id:      id,
		sink:    sink,
		mailbox: make(chan Message, 1),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		logger:  logger.With("subscriber", id),
	}
}

// ID returns the subscriber identifier.
func (s *Subscriber) ID() uuid.UUID {
	return s.id
}

// State returns the current lifecycle state.
func (s *Subscriber) State() SubscriberState {
	return SubscriberState(s.state.Load())
}

// Done is closed once the pump has exited and the sink is closed.
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

func (s *Subscriber) activate() bool {
	return s.state.CompareAndSwap(int32(Connecting), int32(Active))
}

// offer puts msg in the mailbox, discarding an undelivered older message.
// Only the hub loop calls it.
func (s *Subscriber) offer(msg Message) {
	for {
		select {
		case s.mailbox <- msg:
			return
		default:
		}
		select {
		case <-s.mailbox:
		default:
		}
	}
}

func (s *Subscriber) close() {
	s.state.Store(int32(Closed))
	s.cancel()
}

// pump delivers mailbox messages until the subscriber closes or a send fails.
func (s *Subscriber) pump(onFailure func(*Subscriber)) {
	defer func() {
		if err := s.sink.Close(); err != nil {
			s.logger.Debug("sink close failed", "error", err)
		}
		close(s.done)
	}()

	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.mailbox:
			if err := s.sink.Send(s.ctx, msg); err != nil {
				if s.ctx.Err() == nil {
					s.logger.Info("subscriber send failed", "error", err)
				}
				onFailure(s)
				return
			}
		}
	}
}
