package mockwaapi

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/waapi-kit/waapi-kit/internal/wamp"
)

// Broker fans events out to subscribed peers. A topic keeps the same
// subscription id for every peer, as WAMP routers do.
type Broker struct {
	log zerolog.Logger

	mu          sync.RWMutex
	byTopic     map[string]wamp.ID
	topics      map[wamp.ID]string
	subscribers map[wamp.ID]map[*peer]bool

	nextSub atomic.Uint64
	nextPub atomic.Uint64
	drop    func(*peer)
}

func newBroker(log zerolog.Logger, drop func(*peer)) *Broker {
	return &Broker{
		log:         log,
		byTopic:     make(map[string]wamp.ID),
		topics:      make(map[wamp.ID]string),
		subscribers: make(map[wamp.ID]map[*peer]bool),
		drop:        drop,
	}
}

func (b *Broker) subscribe(p *peer, topic string) wamp.ID {
	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := b.byTopic[topic]
	if !ok {
		id = wamp.ID(b.nextSub.Add(1))
		b.byTopic[topic] = id
		b.topics[id] = topic
		b.subscribers[id] = make(map[*peer]bool)
	}
	b.subscribers[id][p] = true
	return id
}

func (b *Broker) unsubscribe(p *peer, id wamp.ID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs, ok := b.subscribers[id]
	if !ok || !subs[p] {
		return false
	}
	delete(subs, p)
	return true
}

// removePeer forgets every subscription held by p.
func (b *Broker) removePeer(p *peer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, subs := range b.subscribers {
		delete(subs, p)
	}
}

// SubscriberCount returns the number of peers subscribed to topic.
func (b *Broker) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	id, ok := b.byTopic[topic]
	if !ok {
		return 0
	}
	return len(b.subscribers[id])
}

// Publish sends payload as the keyword arguments of an EVENT to every
// subscriber of topic.
func (b *Broker) Publish(topic string, payload any) {
	b.mu.RLock()
	id, ok := b.byTopic[topic]
	var peers []*peer
	if ok {
		for p := range b.subscribers[id] {
			peers = append(peers, p)
		}
	}
	b.mu.RUnlock()

	if len(peers) == 0 {
		return
	}

	kwargs, err := wamp.Raw(payload)
	if err != nil {
		b.log.Error().Err(err).Str("topic", topic).Msg("event marshal error")
		return
	}
	data, err := wamp.Encode(&wamp.Event{
		Subscription: id,
		Publication:  wamp.ID(b.nextPub.Add(1)),
		Kwargs:       kwargs,
	})
	if err != nil {
		b.log.Error().Err(err).Str("topic", topic).Msg("event encode error")
		return
	}

	for _, p := range peers {
		if !p.enqueue(data) {
			b.log.Warn().Uint64("session", uint64(p.session)).Msg("peer too slow, disconnecting")
			b.drop(p)
		}
	}
}

func (b *Broker) publishAll(changes []Change) {
	for _, c := range changes {
		b.Publish(c.Topic, c.Payload)
	}
}
