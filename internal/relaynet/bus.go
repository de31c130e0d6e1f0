package relaynet

import (
	"sync"
	"time"
)

// Message is one broadcast payload. The transport only sees the
// recipient tag and opaque payload bytes; everything else about a
// message is established end to end.
type Message struct {
	ID        string
	SenderID  string
	Recipient string
	Payload   []byte
	SentAt    time.Time
}

// Subscription is a live handler registration. Cancel is idempotent.
type Subscription struct {
	cancel func()
	once   sync.Once
}

func (s *Subscription) Cancel() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}

// messageBus is the in-process transport used by the default build and
// by tests. Unlike a point-to-point queue it allows several concurrent
// subscribers per recipient tag, matching broadcast semantics: every
// subscriber sees every message for the tag and discards what is not
// addressed to its own exchange.
type messageBus struct {
	mu      sync.Mutex
	nextID  uint64
	subs    map[string]map[uint64]func(Message)
	mailbox map[string][]Message
}

func newMessageBus() *messageBus {
	return &messageBus{
		subs:    make(map[string]map[uint64]func(Message)),
		mailbox: make(map[string][]Message),
	}
}

func (b *messageBus) publish(msg Message) {
	b.mu.Lock()
	handlers := make([]func(Message), 0, len(b.subs[msg.Recipient]))
	for _, h := range b.subs[msg.Recipient] {
		handlers = append(handlers, h)
	}
	if len(handlers) == 0 {
		b.mailbox[msg.Recipient] = append(b.mailbox[msg.Recipient], msg)
	}
	b.mu.Unlock()

	for _, h := range handlers {
		go h(msg)
	}
}

func (b *messageBus) subscribe(recipient string, handler func(Message)) *Subscription {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	if b.subs[recipient] == nil {
		b.subs[recipient] = make(map[uint64]func(Message))
	}
	b.subs[recipient][id] = handler
	pending := append([]Message(nil), b.mailbox[recipient]...)
	delete(b.mailbox, recipient)
	b.mu.Unlock()

	for _, msg := range pending {
		handler(msg)
	}

	return &Subscription{cancel: func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if m := b.subs[recipient]; m != nil {
			delete(m, id)
			if len(m) == 0 {
				delete(b.subs, recipient)
			}
		}
	}}
}
