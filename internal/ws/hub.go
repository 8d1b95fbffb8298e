package ws

import "sync"

// Subscriber is one delivery target on an owner's event stream.
type Subscriber interface {
	Send(payload []byte) error
	Close()
}

// Hub fans task-change events out to subscribers, partitioned by owner so
// one user's events never reach another user's connections. A single loop
// goroutine owns the subscriber table; Register, Unregister, Broadcast and
// Close all talk to it through channels.
type Hub struct {
	subscribers map[string]map[Subscriber]struct{}
	attach      chan entry
	detach      chan entry
	events      chan event
	stop        chan struct{}
	done        chan struct{}
	once        sync.Once
}

type entry struct {
	owner string
	sub   Subscriber
}

type event struct {
	owner   string
	payload []byte
}

// NewHub starts an empty hub.
func NewHub() *Hub {
	h := &Hub{
		subscribers: make(map[string]map[Subscriber]struct{}),
		attach:      make(chan entry),
		detach:      make(chan entry),
		events:      make(chan event),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	go h.loop()
	return h
}

func (h *Hub) loop() {
	defer close(h.done)
	for {
		select {
		case e := <-h.attach:
			subs, ok := h.subscribers[e.owner]
			if !ok {
				subs = make(map[Subscriber]struct{})
				h.subscribers[e.owner] = subs
			}
			subs[e.sub] = struct{}{}
		case e := <-h.detach:
			h.remove(e.owner, e.sub)
		case ev := <-h.events:
			for sub := range h.subscribers[ev.owner] {
				if err := sub.Send(ev.payload); err != nil {
					sub.Close()
					h.remove(ev.owner, sub)
				}
			}
		case <-h.stop:
			for owner, subs := range h.subscribers {
				for sub := range subs {
					sub.Close()
				}
				delete(h.subscribers, owner)
			}
			return
		}
	}
}

func (h *Hub) remove(owner string, sub Subscriber) {
	subs, ok := h.subscribers[owner]
	if !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.subscribers, owner)
	}
}

// Register adds a subscriber to an owner's stream. Registering on a stopped
// hub closes the subscriber immediately.
func (h *Hub) Register(ownerID string, sub Subscriber) {
	select {
	case h.attach <- entry{owner: ownerID, sub: sub}:
	case <-h.done:
		sub.Close()
	}
}

// Unregister drops a subscriber from an owner's stream.
func (h *Hub) Unregister(ownerID string, sub Subscriber) {
	select {
	case h.detach <- entry{owner: ownerID, sub: sub}:
	case <-h.done:
	}
}

// Broadcast delivers payload to every subscriber of the owner. Events on a
// stopped hub are discarded.
func (h *Hub) Broadcast(ownerID string, payload []byte) {
	select {
	case h.events <- event{owner: ownerID, payload: payload}:
	case <-h.done:
	}
}

// Close disconnects every subscriber and stops the loop.
func (h *Hub) Close() {
	h.once.Do(func() { close(h.stop) })
	<-h.done
}
