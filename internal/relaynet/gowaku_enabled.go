//go:build real_waku

package relaynet

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strconv"
	"sync"
	"time"

	wakuNode "github.com/waku-org/go-waku/waku/v2/node"
	"github.com/waku-org/go-waku/waku/v2/protocol"
	wpb "github.com/waku-org/go-waku/waku/v2/protocol/pb"
	"github.com/waku-org/go-waku/waku/v2/protocol/relay"
)

const (
	pubsubTopic  = "/waku/2/default-waku/proto"
	contentTopic = "/hearth-chat/1/key-exchange/proto"
)

type goWakuBackend struct {
	mu   sync.RWMutex
	node *wakuNode.WakuNode
}

func newGoWakuBackend() backend { return &goWakuBackend{} }

func (g *goWakuBackend) Start(ctx context.Context, cfg Config) error {
	hostAddr, err := net.ResolveTCPAddr("tcp", net.JoinHostPort("0.0.0.0", strconv.Itoa(cfg.Port)))
	if err != nil {
		return err
	}
	node, err := wakuNode.New(
		wakuNode.WithHostAddress(hostAddr),
		wakuNode.WithWakuRelay(),
	)
	if err != nil {
		return err
	}
	if err := node.Start(ctx); err != nil {
		return err
	}
	for _, addr := range cfg.BootstrapNodes {
		_ = node.DialPeer(ctx, addr)
	}

	g.mu.Lock()
	g.node = node
	g.mu.Unlock()
	return nil
}

func (g *goWakuBackend) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.node != nil {
		g.node.Stop()
		g.node = nil
	}
}

func (g *goWakuBackend) Publish(ctx context.Context, msg Message) error {
	g.mu.RLock()
	node := g.node
	g.mu.RUnlock()
	if node == nil {
		return errors.New("go-waku node is nil")
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ts := time.Now().UnixNano()
	wm := &wpb.WakuMessage{
		Payload:      payload,
		ContentTopic: contentTopic,
		Timestamp:    &ts,
	}
	_, err = node.Relay().Publish(ctx, wm, relay.WithPubSubTopic(pubsubTopic))
	return err
}

func (g *goWakuBackend) Subscribe(recipient string, handler func(Message)) (*Subscription, error) {
	g.mu.RLock()
	node := g.node
	g.mu.RUnlock()
	if node == nil {
		return nil, errors.New("go-waku node is nil")
	}

	filter := protocol.NewContentFilter(pubsubTopic, contentTopic)
	subs, err := node.Relay().Subscribe(context.Background(), filter)
	if err != nil {
		return nil, err
	}

	done := make(chan struct{})
	for _, sub := range subs {
		go func(subscription *relay.Subscription) {
			for {
				select {
				case <-done:
					return
				case env, ok := <-subscription.Ch:
					if !ok {
						return
					}
					if env == nil || env.Message() == nil {
						continue
					}
					var msg Message
					if err := json.Unmarshal(env.Message().Payload, &msg); err != nil {
						continue
					}
					if msg.Recipient != recipient {
						continue
					}
					handler(msg)
				}
			}
		}(sub)
	}

	return &Subscription{cancel: func() {
		close(done)
		for _, sub := range subs {
			sub.Unsubscribe()
		}
	}}, nil
}
