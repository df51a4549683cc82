package broadcast

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JaimeStill/headcount/internal/occupancy"
	"github.com/JaimeStill/headcount/pkg/lifecycle"
)

// CurrentFunc reads the live count and whether it was ever set.
type CurrentFunc func() (occupancy.LiveCount, bool)

// HubConfig configures a Hub.
type HubConfig struct {
	// Interval between re-deliveries of the latest count. Defaults to 2s.
	Interval time.Duration
}

// Hub delivers live counts to subscribers. A single loop goroutine owns the
// subscriber set; Subscribe, Unsubscribe and Publish hand messages to it.
type Hub struct {
	interval time.Duration
	source   CurrentFunc
	logger   *slog.Logger

	connect    chan *Subscriber
	disconnect chan *Subscriber
	notify     chan struct{}
	done       chan struct{}
	startOnce  sync.Once
	started    atomic.Bool
	active     atomic.Int64

	pendingMu sync.Mutex
	pending   occupancy.LiveCount
}

// NewHub creates a Hub reading initial values from source.
func NewHub(cfg HubConfig, source CurrentFunc, logger *slog.Logger) *Hub {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Hub{
		interval:   interval,
		source:     source,
		logger:     logger.With("system", "broadcast"),
		connect:    make(chan *Subscriber),
		disconnect: make(chan *Subscriber),
		notify:     make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

// Start runs the hub loop until the coordinator shuts down.
func (h *Hub) Start(lc *lifecycle.Coordinator) error {
	h.startOnce.Do(func() {
		h.logger.Info("starting broadcast hub", "interval", h.interval)
		h.started.Store(true)
		go h.run(lc)

		lc.OnShutdown(func() {
			<-lc.Context().Done()
			<-h.done
			h.logger.Info("broadcast hub stopped")
		})
	})
	return nil
}

// Ready reports whether the hub loop is running.
func (h *Hub) Ready() bool {
	if !h.started.Load() {
		return false
	}
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Len returns the number of active subscribers.
func (h *Hub) Len() int {
	return int(h.active.Load())
}

// Subscribe registers sink. The subscriber receives the current count as soon
// as the loop activates it. Returns ErrHubClosed when the loop is not running.
func (h *Hub) Subscribe(sink Sink) (*Subscriber, error) {
	if !h.started.Load() {
		return nil, ErrHubClosed
	}
	sub := newSubscriber(sink, h.logger)

	select {
	case h.connect <- sub:
	case <-h.done:
		return nil, ErrHubClosed
	}

	go sub.pump(h.Unsubscribe)
	return sub, nil
}

// Unsubscribe removes sub. It is safe to call more than once.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	sub.once.Do(func() {
		sub.close()
		select {
		case h.disconnect <- sub:
		case <-h.done:
		}
	})
}

// Publish hands v to the loop without blocking. Values not newer than the
// last published one are ignored.
func (h *Hub) Publish(v occupancy.LiveCount) {
	h.pendingMu.Lock()
	if v.Version > h.pending.Version {
		h.pending = v
	}
	h.pendingMu.Unlock()

	select {
	case h.notify <- struct{}{}:
	default:
	}
}

func (h *Hub) takePending() occupancy.LiveCount {
	h.pendingMu.Lock()
	defer h.pendingMu.Unlock()
	return h.pending
}

func (h *Hub) run(lc *lifecycle.Coordinator) {
	defer close(h.done)

	ctx := lc.Context()
	subs := make(map[*Subscriber]struct{})

	var (
		latest occupancy.LiveCount
		have   bool
		ticker *time.Ticker
		tick   <-chan time.Time
	)

	refresh := func() {
		if v, ok := h.source(); ok && (!have || v.Version > latest.Version) {
			latest, have = v, true
		}
	}

	current := func() Message {
		if !have {
			return NewMessage(occupancy.LiveCount{Timestamp: time.Now()})
		}
		return NewMessage(latest)
	}

	broadcast := func() {
		msg := current()
		for s := range subs {
			s.offer(msg)
		}
	}

	stopTicker := func() {
		if ticker != nil {
			ticker.Stop()
			ticker, tick = nil, nil
		}
	}
	defer stopTicker()

	for {
		select {
		case <-ctx.Done():
			for s := range subs {
				s.close()
			}
			h.active.Store(0)
			h.logger.Info("broadcast hub closing", "subscribers", len(subs))
			return

		case s := <-h.connect:
			if !s.activate() {
				continue
			}
			subs[s] = struct{}{}
			h.active.Store(int64(len(subs)))
			refresh()
			s.offer(current())
			if ticker == nil {
				ticker = time.NewTicker(h.interval)
				tick = ticker.C
			}
			h.logger.Debug("subscriber connected", "subscriber", s.id, "subscribers", len(subs))

		case s := <-h.disconnect:
			if _, ok := subs[s]; ok {
				delete(subs, s)
				h.active.Store(int64(len(subs)))
				h.logger.Debug("subscriber disconnected", "subscriber", s.id, "subscribers", len(subs))
			}
			if len(subs) == 0 {
				stopTicker()
			}

		case <-h.notify:
			v := h.takePending()
			if have && v.Version <= latest.Version {
				continue
			}
			latest, have = v, true
			broadcast()

		case <-tick:
			refresh()
			broadcast()
		}
	}
}
