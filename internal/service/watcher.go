package service

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"kasirponsel/backend/internal/cache"
	"kasirponsel/backend/internal/domain"
)

// Topics a watcher can follow. Every committed engine mutation notifies the
// topics it touched.
const (
	TopicTransactions = "transactions"
	TopicDrafts       = "drafts"
	TopicUnits        = "units"
	TopicStock        = "stock"
)

// publishChannel is the Redis channel mirrored events go out on.
const publishChannel = "kasirponsel:changes"

// Hub broadcasts change events to in-process subscribers and mirrors them to
// the configured publisher. Subscriber channels are buffered and sends never
// block: a slow consumer misses intermediate events but always gets a fresh
// one, which is the right behavior for "re-query on change" streams.
type Hub struct {
	mu        sync.Mutex
	nextID    int
	subs      map[int]*subscriber
	publisher cache.Publisher
}

type subscriber struct {
	topics map[string]bool
	ch     chan domain.ChangeEvent
}

func NewHub(publisher cache.Publisher) *Hub {
	if publisher == nil {
		publisher = cache.NoopPublisher{}
	}
	return &Hub{
		subs:      make(map[int]*subscriber),
		publisher: publisher,
	}
}

// Notify fans an event out. Called after the repository commit, never before.
func (h *Hub) Notify(ctx context.Context, topic string, entityID string) {
	event := domain.ChangeEvent{Topic: topic, EntityID: entityID, At: time.Now().UTC()}

	h.mu.Lock()
	for _, sub := range h.subs {
		if !sub.topics[topic] {
			continue
		}
		select {
		case sub.ch <- event:
		default:
		}
	}
	h.mu.Unlock()

	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := h.publisher.Publish(ctx, publishChannel, payload); err != nil {
		log.Printf("[hub] WARN: publish %s event: %v", topic, err)
	}
}

// Subscribe returns a channel that receives events for the given topics
// until ctx is canceled. The channel is closed on unsubscribe.
func (h *Hub) Subscribe(ctx context.Context, topics ...string) <-chan domain.ChangeEvent {
	topicSet := make(map[string]bool, len(topics))
	for _, t := range topics {
		topicSet[t] = true
	}
	sub := &subscriber{topics: topicSet, ch: make(chan domain.ChangeEvent, 16)}

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs[id] = sub
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
		close(sub.ch)
	}()

	return sub.ch
}

// watchList is the common shape of the reactive list reads: emit the current
// result set immediately, then re-query and re-emit after every relevant
// change event. The latest result wins; a consumer that lags sees only the
// freshest set.
func watchList[T any](ctx context.Context, hub *Hub, topics []string, query func(context.Context) (T, error)) (<-chan T, error) {
	initial, err := query(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan T, 1)
	out <- initial

	events := hub.Subscribe(ctx, topics...)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-events:
				if !ok {
					return
				}
				result, err := query(ctx)
				if err != nil {
					log.Printf("[watch] WARN: re-query after change: %v", err)
					continue
				}
				// Replace a pending emission rather than queueing behind it.
				select {
				case <-out:
				default:
				}
				select {
				case out <- result:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
