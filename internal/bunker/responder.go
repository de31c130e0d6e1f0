package bunker

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"log/slog"

	"hearth-chat/go-backend/internal/relaynet"
	"hearth-chat/go-backend/internal/signer"
)

// Responder is the remote side of the protocol: it holds the real
// identity and answers delegated requests arriving on its own tag.
type Responder struct {
	signer    signer.Signer
	transport Transport
	logger    *slog.Logger
	sub       *relaynet.Subscription
}

func NewResponder(s signer.Signer, transport Transport, logger *slog.Logger) *Responder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Responder{signer: s, transport: transport, logger: logger}
}

// Serve subscribes to the identity's tag and answers requests until
// Close. Undecryptable messages are ignored; they may belong to other
// traffic sharing the transport.
func (r *Responder) Serve(ctx context.Context) error {
	tag := hex.EncodeToString(r.signer.EncryptionPublicKey())
	sub, err := r.transport.Subscribe(tag, func(msg relaynet.Message) {
		r.handle(ctx, msg)
	})
	if err != nil {
		return err
	}
	r.sub = sub
	return nil
}

func (r *Responder) Close() {
	if r.sub != nil {
		r.sub.Cancel()
	}
}

func (r *Responder) handle(ctx context.Context, msg relaynet.Message) {
	clientPub, err := hex.DecodeString(msg.SenderID)
	if err != nil || len(clientPub) != 32 {
		return
	}
	plaintext, err := r.signer.Open(ctx, string(msg.Payload), clientPub)
	if err != nil {
		return
	}
	var req request
	if err := json.Unmarshal(plaintext, &req); err != nil {
		return
	}

	resp := r.dispatch(ctx, req)
	raw, err := json.Marshal(resp)
	if err != nil {
		return
	}
	sealed, err := r.signer.Seal(ctx, raw, clientPub)
	if err != nil {
		r.logger.Warn("bunker response seal failed", "method", req.Method, "error", err)
		return
	}
	err = r.transport.Publish(ctx, relaynet.Message{
		ID:        req.ID,
		SenderID:  hex.EncodeToString(r.signer.EncryptionPublicKey()),
		Recipient: msg.SenderID,
		Payload:   []byte(sealed),
	})
	if err != nil {
		r.logger.Warn("bunker response publish failed", "method", req.Method, "error", err)
	}
}

func (r *Responder) dispatch(ctx context.Context, req request) response {
	result, err := r.invoke(ctx, req)
	if err != nil {
		return response{ID: req.ID, Error: err.Error()}
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return response{ID: req.ID, Error: err.Error()}
	}
	return response{ID: req.ID, Result: raw}
}

func (r *Responder) invoke(ctx context.Context, req request) (any, error) {
	switch req.Method {
	case methodGetIdentity:
		return identityResult{
			Pubkey:           r.signer.PublicKey(),
			EncryptionPubkey: hex.EncodeToString(r.signer.EncryptionPublicKey()),
		}, nil

	case methodSign:
		var p signParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, err
		}
		digest, err := hex.DecodeString(p.Digest)
		if err != nil {
			return nil, err
		}
		sig, err := r.signer.Sign(ctx, digest)
		if err != nil {
			return nil, err
		}
		return signResult{Sig: hex.EncodeToString(sig)}, nil

	case methodSeal:
		var p sealParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, err
		}
		plaintext, err := base64.StdEncoding.DecodeString(p.Plaintext)
		if err != nil {
			return nil, err
		}
		peer, err := hex.DecodeString(p.Peer)
		if err != nil {
			return nil, err
		}
		sealed, err := r.signer.Seal(ctx, plaintext, peer)
		if err != nil {
			return nil, err
		}
		return sealResult{Sealed: sealed}, nil

	case methodOpen:
		var p openParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, err
		}
		peer, err := hex.DecodeString(p.Peer)
		if err != nil {
			return nil, err
		}
		plaintext, err := r.signer.Open(ctx, p.Sealed, peer)
		if err != nil {
			return nil, err
		}
		return openResult{Plaintext: base64.StdEncoding.EncodeToString(plaintext)}, nil

	default:
		return nil, &RemoteError{Method: req.Method, Reason: "unknown method"}
	}
}
