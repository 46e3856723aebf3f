package auth

import (
	"log"
	"sync"
	"time"
)

// Event names an auth state transition reported by the backend.
type Event string

const (
	EventSignedIn         Event = "SIGNED_IN"
	EventSignedOut        Event = "SIGNED_OUT"
	EventPasswordRecovery Event = "PASSWORD_RECOVERY"
)

// StateChange is one auth state transition.
type StateChange struct {
	Event    Event
	Identity Identity
	Username string
	At       time.Time
}

// Feed fans auth state changes out to subscribers. Each subscriber sees changes in
// the order they were published, delivered on its own goroutine so a slow subscriber
// never blocks the publisher or its peers.
type Feed struct {
	mu     sync.Mutex
	subs   map[uint64]*subscription
	nextID uint64
	closed bool
	logger *log.Logger
}

// NewFeed constructs an empty Feed.
func NewFeed(logger *log.Logger) *Feed {
	if logger == nil {
		logger = log.New(log.Writer(), "[auth] ", log.LstdFlags)
	}
	return &Feed{subs: make(map[uint64]*subscription), logger: logger}
}

// Subscribe registers handler and returns the function that unregisters it. Pending
// changes not yet delivered are dropped on unsubscribe.
func (f *Feed) Subscribe(handler func(StateChange)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()

	sub := &subscription{
		handler: handler,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		logger:  f.logger,
	}
	if f.closed {
		close(sub.done)
		return func() {}
	}

	id := f.nextID
	f.nextID++
	f.subs[id] = sub
	go sub.run()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
			sub.stop()
		})
	}
}

// Publish delivers change to every current subscriber.
func (f *Feed) Publish(change StateChange) {
	if change.At.IsZero() {
		change.At = time.Now().UTC()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	for _, sub := range f.subs {
		sub.enqueue(change)
	}
}

// Close stops every subscription. Later publishes are ignored.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for id, sub := range f.subs {
		sub.stop()
		delete(f.subs, id)
	}
}

type subscription struct {
	mu      sync.Mutex
	queue   []StateChange
	stopped bool
	handler func(StateChange)
	wake    chan struct{}
	done    chan struct{}
	logger  *log.Logger
}

func (s *subscription) enqueue(change StateChange) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, change)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscription) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	s.queue = nil
	close(s.done)
}

func (s *subscription) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}
		for {
			s.mu.Lock()
			if s.stopped || len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			next := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			s.deliver(next)
		}
	}
}

func (s *subscription) deliver(change StateChange) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Printf("panic in auth state subscriber (event=%s): %v", change.Event, r)
		}
	}()
	s.handler(change)
}
