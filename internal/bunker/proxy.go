package bunker

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"hearth-chat/go-backend/internal/identity"
	"hearth-chat/go-backend/internal/relaynet"
	"hearth-chat/go-backend/internal/signer"
)

const (
	// DefaultTimeout bounds every delegated round trip.
	DefaultTimeout = 30 * time.Second

	// responseWindow bounds how stale an inbound response may be;
	// anything older is treated as a replay and ignored.
	responseWindow = 5 * time.Minute
)

var ErrRequestTimeout = errors.New("remote signer request timed out")

// Transport is the slice of the broadcast network the proxy needs.
type Transport interface {
	Publish(ctx context.Context, msg relaynet.Message) error
	Subscribe(recipient string, handler func(relaynet.Message)) (*relaynet.Subscription, error)
}

// RemoteSigner implements signer.Signer by delegating each operation to
// the remote identity. Every call owns its own correlation id and
// subscription; there is no cross-call request table, so concurrent
// calls cannot interfere with each other's matching.
type RemoteSigner struct {
	conn       Connection
	transport  Transport
	clientKeys *identity.DerivedKeys
	convKey    []byte
	timeout    time.Duration
	now        func() time.Time

	mu            sync.RWMutex
	remoteSignPub string
	remoteEncPub  []byte
}

func NewRemoteSigner(conn Connection, transport Transport) (*RemoteSigner, error) {
	if err := conn.Validate(); err != nil {
		return nil, err
	}
	if transport == nil {
		return nil, errors.New("transport is required")
	}
	clientKeys, err := conn.ClientKeys()
	if err != nil {
		return nil, err
	}
	convKey, err := signer.ConversationKey(clientKeys.EncryptionPrivateKey, conn.RemoteEncryptionKey)
	if err != nil {
		return nil, err
	}
	return &RemoteSigner{
		conn:       conn,
		transport:  transport,
		clientKeys: clientKeys,
		convKey:    convKey,
		timeout:    DefaultTimeout,
		now:        time.Now,
	}, nil
}

// Connect performs the initial identity exchange so PublicKey and
// EncryptionPublicKey answer without a network round trip afterwards.
func (r *RemoteSigner) Connect(ctx context.Context) error {
	raw, err := r.call(ctx, methodGetIdentity, nil)
	if err != nil {
		return err
	}
	var res identityResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return fmt.Errorf("malformed identity response: %w", err)
	}
	encPub, err := hex.DecodeString(res.EncryptionPubkey)
	if err != nil || len(encPub) != 32 {
		return fmt.Errorf("malformed identity response: bad encryption key")
	}
	r.mu.Lock()
	r.remoteSignPub = res.Pubkey
	r.remoteEncPub = encPub
	r.mu.Unlock()
	return nil
}

func (r *RemoteSigner) Backend() string { return signer.BackendRemote }

func (r *RemoteSigner) PublicKey() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.remoteSignPub
}

func (r *RemoteSigner) EncryptionPublicKey() []byte {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.remoteEncPub != nil {
		return append([]byte(nil), r.remoteEncPub...)
	}
	return append([]byte(nil), r.conn.RemoteEncryptionKey...)
}

func (r *RemoteSigner) Sign(ctx context.Context, digest []byte) ([]byte, error) {
	params, _ := json.Marshal(signParams{Digest: hex.EncodeToString(digest)})
	raw, err := r.call(ctx, methodSign, params)
	if err != nil {
		return nil, err
	}
	var res signResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("malformed sign response: %w", err)
	}
	return hex.DecodeString(res.Sig)
}

func (r *RemoteSigner) Seal(ctx context.Context, plaintext, peerEncPub []byte) (string, error) {
	params, _ := json.Marshal(sealParams{
		Plaintext: base64.StdEncoding.EncodeToString(plaintext),
		Peer:      hex.EncodeToString(peerEncPub),
	})
	raw, err := r.call(ctx, methodSeal, params)
	if err != nil {
		return "", err
	}
	var res sealResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return "", fmt.Errorf("malformed seal response: %w", err)
	}
	return res.Sealed, nil
}

func (r *RemoteSigner) Open(ctx context.Context, sealed string, peerEncPub []byte) ([]byte, error) {
	params, _ := json.Marshal(openParams{
		Sealed: sealed,
		Peer:   hex.EncodeToString(peerEncPub),
	})
	raw, err := r.call(ctx, methodOpen, params)
	if err != nil {
		return nil, err
	}
	var res openResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("malformed open response: %w", err)
	}
	return base64.StdEncoding.DecodeString(res.Plaintext)
}

// call runs one delegated request to completion: seal, publish,
// subscribe for the matching response, and race the first match
// against the deadline. Teardown is deterministic on both paths.
func (r *RemoteSigner) call(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	id, err := newCorrelationID()
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(request{ID: id, Method: method, Params: params})
	if err != nil {
		return nil, err
	}
	sealed, err := signer.SealWithKey(r.convKey, raw)
	if err != nil {
		return nil, err
	}

	clientTag := hex.EncodeToString(r.clientKeys.EncryptionPublicKey)

	// Single-resolution: whichever of first-match or timeout wins,
	// later arrivals are dropped on the floor.
	matched := make(chan response, 1)
	var once sync.Once
	sub, err := r.transport.Subscribe(clientTag, func(msg relaynet.Message) {
		if !msg.SentAt.IsZero() && r.now().Sub(msg.SentAt) > responseWindow {
			return
		}
		plaintext, err := signer.OpenWithKey(r.convKey, string(msg.Payload))
		if err != nil {
			// Not for us; may belong to a concurrent exchange.
			return
		}
		var resp response
		if err := json.Unmarshal(plaintext, &resp); err != nil {
			return
		}
		if resp.ID != id {
			return
		}
		once.Do(func() { matched <- resp })
	})
	if err != nil {
		return nil, err
	}
	defer sub.Cancel()

	err = r.transport.Publish(ctx, relaynet.Message{
		ID:        id,
		SenderID:  clientTag,
		Recipient: r.conn.RemoteTag(),
		Payload:   []byte(sealed),
		SentAt:    r.now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()
	select {
	case resp := <-matched:
		if resp.Error != "" {
			return nil, &RemoteError{Method: method, Reason: resp.Error}
		}
		return resp.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("%w: %s after %s", ErrRequestTimeout, method, r.timeout)
	}
}

func newCorrelationID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
