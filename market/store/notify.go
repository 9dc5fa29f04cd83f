/*
notify.go - Change notification for the memory store

PURPOSE:
  Implements market.Watcher. UI collaborators (dashboards, unread badges,
  the SSE feed) subscribe to a collection, or to one record within it, and
  receive an Event after each commit.

DELIVERY:
  Callbacks run synchronously on the mutating goroutine, after the store's
  lock is released. Subscribers that need to block should hand the event
  off to their own goroutine/channel.
*/
package store

import (
	"sync"

	"github.com/englishhop/marketplace/market"
)

type subscription struct {
	collection market.Collection
	id         string // empty = whole collection
	fn         func(market.Event)
}

type notifier struct {
	mu   sync.Mutex
	next int
	subs map[int]*subscription
}

// Subscribe registers fn for events on collection c. An empty id observes
// every record in the collection. The returned cancel is idempotent.
func (m *Memory) Subscribe(c market.Collection, id string, fn func(market.Event)) (cancel func()) {
	return m.notifier.subscribe(c, id, fn)
}

func (n *notifier) subscribe(c market.Collection, id string, fn func(market.Event)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.subs == nil {
		n.subs = make(map[int]*subscription)
	}
	key := n.next
	n.next++
	n.subs[key] = &subscription{collection: c, id: id, fn: fn}

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, key)
			n.mu.Unlock()
		})
	}
}

func (n *notifier) emit(e market.Event) {
	n.mu.Lock()
	var targets []func(market.Event)
	for _, s := range n.subs {
		if s.collection != e.Collection {
			continue
		}
		if s.id != "" && s.id != e.ID {
			continue
		}
		targets = append(targets, s.fn)
	}
	n.mu.Unlock()

	for _, fn := range targets {
		fn(e)
	}
}
