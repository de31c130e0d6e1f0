// Package msgcodec produces and consumes the encrypted message
// envelopes exchanged over a channel: sign then encrypt on the way out,
// decrypt then classify and verify on the way in, with a legacy
// fallback for pre-signing-era content.
package msgcodec

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"hearth-chat/go-backend/internal/signer"
)

var (
	decryptFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hearth_codec_decrypt_failures_total",
		Help: "Messages that failed symmetric decryption (wrong key or tampered).",
	})
	invalidSignatures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hearth_codec_invalid_signatures_total",
		Help: "Decrypted signed events whose signature did not verify.",
	})
	legacyFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hearth_codec_legacy_fallbacks_total",
		Help: "Decrypted messages accepted through a legacy compatibility shape.",
	})
)

func init() {
	prometheus.MustRegister(decryptFailures, invalidSignatures, legacyFallbacks)
}

// Result is the outcome of decrypting one message. It is always a
// complete value: decryption or verification failures surface as
// Valid=false, never as an error or panic, so one corrupt message
// cannot take down channel rendering.
type Result struct {
	Valid     bool
	Content   string
	Sender    string
	Timestamp int64
	// Legacy marks content accepted without a signature because it
	// predates signing. Decryption success is its only authentication.
	Legacy bool
}

// Codec signs and encrypts channel messages with the active signer and
// a channel key obtained from the key channel.
type Codec struct {
	signer signer.Signer
	now    func() time.Time
}

func New(s signer.Signer) *Codec {
	return &Codec{signer: s, now: time.Now}
}

// Sign builds a complete signed event around content.
func (c *Codec) Sign(ctx context.Context, content string) (SignedEvent, error) {
	if c.signer == nil {
		return SignedEvent{}, signer.ErrNoSigner
	}
	ev := SignedEvent{
		Pubkey:    c.signer.PublicKey(),
		CreatedAt: c.now().Unix(),
		Kind:      KindChannelMessage,
		Tags:      [][]string{},
		Content:   content,
	}
	digest, err := EventDigest(ev)
	if err != nil {
		return SignedEvent{}, err
	}
	ev.ID = hex.EncodeToString(digest[:])
	sig, err := c.signer.Sign(ctx, digest[:])
	if err != nil {
		return SignedEvent{}, fmt.Errorf("sign via %s signer: %w", c.signer.Backend(), err)
	}
	ev.Sig = hex.EncodeToString(sig)
	return ev, nil
}

// Encrypt signs content, serializes the event and encrypts it under
// channelKey with a fresh nonce. Output is base64(nonce || ciphertext).
func (c *Codec) Encrypt(ctx context.Context, content string, channelKey []byte) (string, error) {
	ev, err := c.Sign(ctx, content)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return "", err
	}
	return signer.SealWithKey(channelKey, raw)
}

// Decrypt decrypts ciphertext under channelKey and classifies the
// plaintext. Signed events are verified; the two legacy shapes are
// accepted on decryption success alone and flagged as such.
func (c *Codec) Decrypt(ciphertext string, channelKey []byte) Result {
	plaintext, err := signer.OpenWithKey(channelKey, ciphertext)
	if err != nil {
		decryptFailures.Inc()
		return Result{}
	}

	kind, ev, legacy := classify(plaintext)
	switch kind {
	case shapeSignedEvent:
		valid := VerifyEvent(ev)
		if !valid {
			invalidSignatures.Inc()
		}
		return Result{
			Valid:     valid,
			Content:   ev.Content,
			Sender:    ev.Pubkey,
			Timestamp: ev.CreatedAt,
		}
	case shapeLegacyJSON:
		legacyFallbacks.Inc()
		sender := legacy.Sender
		if sender == "" {
			sender = legacy.Pubkey
		}
		return Result{
			Valid:     true,
			Content:   legacy.Content,
			Sender:    sender,
			Timestamp: legacy.CreatedAt,
			Legacy:    true,
		}
	default:
		legacyFallbacks.Inc()
		return Result{
			Valid:   true,
			Content: string(plaintext),
			Legacy:  true,
		}
	}
}
