// Package relaynet is the broadcast transport: an opaque
// publish/subscribe network addressed by recipient tag. The default
// build runs on an in-process bus; the real_waku build relays over a
// go-waku node.
package relaynet

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	TransportBus    = "bus"
	TransportGoWaku = "go-waku"

	StateDisconnected = "disconnected"
	StateConnected    = "connected"
)

var (
	ErrNotConnected = errors.New("relay transport is not connected")

	publishedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hearth_relaynet_published_total",
		Help: "Messages published to the broadcast transport.",
	})
	deliveredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hearth_relaynet_delivered_total",
		Help: "Messages delivered to a local subscriber.",
	})
)

func init() {
	prometheus.MustRegister(publishedTotal, deliveredTotal)
}

// Config selects and tunes the transport backend.
type Config struct {
	Transport      string   `yaml:"transport"`
	Port           int      `yaml:"port"`
	BootstrapNodes []string `yaml:"bootstrapNodes"`
	MinPeers       int      `yaml:"minPeers"`
}

func DefaultConfig() Config {
	return Config{
		Transport: TransportBus,
		Port:      60000,
		MinPeers:  2,
	}
}

// ValidateBootstrapNodes rejects bootstrap entries that are not
// well-formed multiaddrs before any dial is attempted.
func ValidateBootstrapNodes(nodes []string) error {
	for _, addr := range nodes {
		if _, err := ma.NewMultiaddr(addr); err != nil {
			return fmt.Errorf("invalid bootstrap node %q: %w", addr, err)
		}
	}
	return nil
}

type backend interface {
	Start(ctx context.Context, cfg Config) error
	Stop()
	Publish(ctx context.Context, msg Message) error
	Subscribe(recipient string, handler func(Message)) (*Subscription, error)
}

// Node is the transport handle shared by a session. Subscriptions are
// per-recipient-tag and independently cancelable, so concurrent
// exchanges on the same node do not interfere.
type Node struct {
	mu    sync.RWMutex
	cfg   Config
	state string
	bus   *messageBus
	gw    backend
}

func NewNode(cfg Config) *Node {
	if cfg.Transport == "" {
		cfg.Transport = TransportBus
	}
	return &Node{cfg: cfg, state: StateDisconnected, bus: newMessageBus()}
}

func (n *Node) Start(ctx context.Context) error {
	if err := ValidateBootstrapNodes(n.cfg.BootstrapNodes); err != nil {
		return err
	}
	if n.cfg.Transport == TransportGoWaku {
		gw := newGoWakuBackend()
		if gw == nil {
			return errors.New("go-waku backend is not available in this build")
		}
		if err := gw.Start(ctx, n.cfg); err != nil {
			return err
		}
		n.mu.Lock()
		n.gw = gw
		n.state = StateConnected
		n.mu.Unlock()
		return nil
	}

	n.mu.Lock()
	n.state = StateConnected
	n.mu.Unlock()
	return nil
}

func (n *Node) Stop(_ context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.gw != nil {
		n.gw.Stop()
		n.gw = nil
	}
	n.state = StateDisconnected
	return nil
}

func (n *Node) State() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.state
}

func (n *Node) Publish(ctx context.Context, msg Message) error {
	n.mu.RLock()
	state := n.state
	gw := n.gw
	n.mu.RUnlock()
	if state != StateConnected {
		return ErrNotConnected
	}
	if msg.Recipient == "" {
		return errors.New("recipient is required")
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now().UTC()
	}
	publishedTotal.Inc()
	if gw != nil {
		return gw.Publish(ctx, msg)
	}
	n.bus.publish(msg)
	return nil
}

// Subscribe registers a handler for messages tagged for recipient and
// returns a cancelable subscription.
func (n *Node) Subscribe(recipient string, handler func(Message)) (*Subscription, error) {
	n.mu.RLock()
	state := n.state
	gw := n.gw
	n.mu.RUnlock()
	if state != StateConnected {
		return nil, ErrNotConnected
	}
	if recipient == "" {
		return nil, errors.New("recipient is required")
	}
	counted := func(msg Message) {
		deliveredTotal.Inc()
		handler(msg)
	}
	if gw != nil {
		return gw.Subscribe(recipient, counted)
	}
	return n.bus.subscribe(recipient, counted), nil
}
