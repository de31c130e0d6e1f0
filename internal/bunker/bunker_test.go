package bunker

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"sync"
	"testing"
	"time"

	"hearth-chat/go-backend/internal/identity"
	"hearth-chat/go-backend/internal/relaynet"
	"hearth-chat/go-backend/internal/signer"
)

func testTransport(t *testing.T) *relaynet.Node {
	t.Helper()
	n := relaynet.NewNode(relaynet.DefaultConfig())
	if err := n.Start(context.Background()); err != nil {
		t.Fatalf("transport start failed: %v", err)
	}
	t.Cleanup(func() { _ = n.Stop(context.Background()) })
	return n
}

func remoteIdentity(t *testing.T, seed string) *signer.LocalSigner {
	t.Helper()
	keys, err := identity.DeriveKeys([]byte(seed))
	if err != nil {
		t.Fatalf("derive keys failed: %v", err)
	}
	s, err := signer.NewLocalSigner(keys)
	if err != nil {
		t.Fatalf("new signer failed: %v", err)
	}
	return s
}

func pairedProxy(t *testing.T, transport *relaynet.Node, remote *signer.LocalSigner) *RemoteSigner {
	t.Helper()
	responder := NewResponder(remote, transport, nil)
	if err := responder.Serve(context.Background()); err != nil {
		t.Fatalf("responder serve failed: %v", err)
	}
	t.Cleanup(responder.Close)

	conn := Connection{
		ClientSeed:          []byte("client-ephemeral-seed"),
		RemoteEncryptionKey: remote.EncryptionPublicKey(),
	}
	proxy, err := NewRemoteSigner(conn, transport)
	if err != nil {
		t.Fatalf("new remote signer failed: %v", err)
	}
	return proxy
}

func TestConnectLearnsRemoteIdentity(t *testing.T) {
	transport := testTransport(t)
	remote := remoteIdentity(t, "bunker-seed")
	proxy := pairedProxy(t, transport, remote)

	if err := proxy.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	if proxy.PublicKey() != remote.PublicKey() {
		t.Fatalf("proxy must report the remote signing key, got %q", proxy.PublicKey())
	}
	if !bytes.Equal(proxy.EncryptionPublicKey(), remote.EncryptionPublicKey()) {
		t.Fatal("proxy must report the remote encryption key")
	}
	if proxy.Backend() != signer.BackendRemote {
		t.Fatalf("unexpected backend: %q", proxy.Backend())
	}
}

func TestDelegatedSign(t *testing.T) {
	transport := testTransport(t)
	remote := remoteIdentity(t, "bunker-seed")
	proxy := pairedProxy(t, transport, remote)

	digest := bytes.Repeat([]byte{0x42}, 32)
	sig, err := proxy.Sign(context.Background(), digest)
	if err != nil {
		t.Fatalf("delegated sign failed: %v", err)
	}
	pub, err := hex.DecodeString(remote.PublicKey())
	if err != nil {
		t.Fatalf("decode pubkey failed: %v", err)
	}
	if !ed25519.Verify(pub, digest, sig) {
		t.Fatal("delegated signature must verify under the remote key")
	}
}

func TestDelegatedSealOpenInterop(t *testing.T) {
	ctx := context.Background()
	transport := testTransport(t)
	remote := remoteIdentity(t, "bunker-seed")
	proxy := pairedProxy(t, transport, remote)
	peer := remoteIdentity(t, "peer-seed")

	// Proxy seals to a peer; the peer opens against the remote identity.
	sealed, err := proxy.Seal(ctx, []byte("wrapped channel key"), peer.EncryptionPublicKey())
	if err != nil {
		t.Fatalf("delegated seal failed: %v", err)
	}
	opened, err := peer.Open(ctx, sealed, remote.EncryptionPublicKey())
	if err != nil {
		t.Fatalf("peer open failed: %v", err)
	}
	if string(opened) != "wrapped channel key" {
		t.Fatalf("unexpected plaintext: %q", opened)
	}

	// Peer seals to the remote identity; the proxy opens it.
	sealed, err = peer.Seal(ctx, []byte("reply"), remote.EncryptionPublicKey())
	if err != nil {
		t.Fatalf("peer seal failed: %v", err)
	}
	opened, err = proxy.Open(ctx, sealed, peer.EncryptionPublicKey())
	if err != nil {
		t.Fatalf("delegated open failed: %v", err)
	}
	if string(opened) != "reply" {
		t.Fatalf("unexpected plaintext: %q", opened)
	}
}

func TestTimeoutWithoutResponderThenRecovery(t *testing.T) {
	transport := testTransport(t)
	remote := remoteIdentity(t, "bunker-seed")

	conn := Connection{
		ClientSeed:          []byte("client-ephemeral-seed"),
		RemoteEncryptionKey: remote.EncryptionPublicKey(),
	}
	proxy, err := NewRemoteSigner(conn, transport)
	if err != nil {
		t.Fatalf("new remote signer failed: %v", err)
	}
	proxy.timeout = 50 * time.Millisecond

	// No responder is serving yet: the call must reject with a timeout.
	_, err = proxy.Sign(context.Background(), bytes.Repeat([]byte{1}, 32))
	if !errors.Is(err, ErrRequestTimeout) {
		t.Fatalf("expected ErrRequestTimeout, got %v", err)
	}

	// A later call on the same connection must complete normally: the
	// timed-out call left no dangling subscription state behind.
	responder := NewResponder(remote, transport, nil)
	if err := responder.Serve(context.Background()); err != nil {
		t.Fatalf("responder serve failed: %v", err)
	}
	defer responder.Close()
	proxy.timeout = DefaultTimeout

	if _, err := proxy.Sign(context.Background(), bytes.Repeat([]byte{2}, 32)); err != nil {
		t.Fatalf("recovery sign failed: %v", err)
	}
}

func TestConcurrentCallsDoNotCrossMatch(t *testing.T) {
	transport := testTransport(t)
	remote := remoteIdentity(t, "bunker-seed")
	proxy := pairedProxy(t, transport, remote)

	const calls = 8
	var wg sync.WaitGroup
	errs := make(chan error, calls)
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			digest := bytes.Repeat([]byte{byte(i)}, 32)
			sig, err := proxy.Sign(context.Background(), digest)
			if err != nil {
				errs <- err
				return
			}
			pub, _ := hex.DecodeString(remote.PublicKey())
			if !ed25519.Verify(pub, digest, sig) {
				errs <- errors.New("signature verified against wrong digest")
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent call failed: %v", err)
	}
}

func TestRemoteErrorPassedThrough(t *testing.T) {
	transport := testTransport(t)
	remote := remoteIdentity(t, "bunker-seed")
	proxy := pairedProxy(t, transport, remote)

	_, err := proxy.call(context.Background(), "destroy_everything", nil)
	var remoteErr *RemoteError
	if !errors.As(err, &remoteErr) {
		t.Fatalf("expected RemoteError, got %v", err)
	}
}

func TestConnectionValidation(t *testing.T) {
	remote := remoteIdentity(t, "bunker-seed")
	valid := Connection{
		ClientSeed:          []byte("seed"),
		RemoteEncryptionKey: remote.EncryptionPublicKey(),
		Relays:              []string{"/dns4/relay.example.org/tcp/443/wss"},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid connection rejected: %v", err)
	}

	for name, conn := range map[string]Connection{
		"missing seed": {RemoteEncryptionKey: remote.EncryptionPublicKey()},
		"short key":    {ClientSeed: []byte("seed"), RemoteEncryptionKey: []byte{1, 2}},
		"bad relay": {
			ClientSeed:          []byte("seed"),
			RemoteEncryptionKey: remote.EncryptionPublicKey(),
			Relays:              []string{"https://not-a-multiaddr"},
		},
	} {
		if err := conn.Validate(); !errors.Is(err, ErrInvalidConnection) {
			t.Fatalf("%s: expected ErrInvalidConnection, got %v", name, err)
		}
	}
}

func TestConnectionEncodeDecodeRoundTrip(t *testing.T) {
	remote := remoteIdentity(t, "bunker-seed")
	conn := Connection{
		ClientSeed:          []byte("seed"),
		RemoteEncryptionKey: remote.EncryptionPublicKey(),
		Relays:              []string{"/dns4/relay.example.org/tcp/443/wss"},
	}
	raw, err := conn.Encode()
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	decoded, err := DecodeConnection(raw)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !bytes.Equal(decoded.ClientSeed, conn.ClientSeed) || decoded.RemoteTag() != conn.RemoteTag() {
		t.Fatal("round trip must preserve the connection")
	}
}

// backdatedTransport antedates messages published without an explicit
// SentAt, standing in for a relay that replays old traffic.
type backdatedTransport struct {
	*relaynet.Node
	skew time.Duration
}

func (b *backdatedTransport) Publish(ctx context.Context, msg relaynet.Message) error {
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now().UTC().Add(-b.skew)
	}
	return b.Node.Publish(ctx, msg)
}

func TestStaleResponseRejected(t *testing.T) {
	node := testTransport(t)
	remote := remoteIdentity(t, "bunker-seed")

	// The responder answers correctly, but its responses arrive stamped
	// well outside the freshness window. The proxy must not accept them.
	responder := NewResponder(remote, &backdatedTransport{Node: node, skew: 10 * time.Minute}, nil)
	if err := responder.Serve(context.Background()); err != nil {
		t.Fatalf("responder serve failed: %v", err)
	}
	t.Cleanup(responder.Close)

	conn := Connection{
		ClientSeed:          []byte("client-ephemeral-seed"),
		RemoteEncryptionKey: remote.EncryptionPublicKey(),
	}
	proxy, err := NewRemoteSigner(conn, node)
	if err != nil {
		t.Fatalf("new remote signer failed: %v", err)
	}
	proxy.timeout = 200 * time.Millisecond

	_, err = proxy.Sign(context.Background(), bytes.Repeat([]byte{0x42}, 32))
	if !errors.Is(err, ErrRequestTimeout) {
		t.Fatalf("expected ErrRequestTimeout for stale response, got %v", err)
	}
}
