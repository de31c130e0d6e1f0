package bunker

import (
	"encoding/json"
	"fmt"
)

// Delegated methods.
const (
	methodSign        = "sign"
	methodSeal        = "seal"
	methodOpen        = "open"
	methodGetIdentity = "get_identity"
)

type request struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type response struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

type signParams struct {
	Digest string `json:"digest"`
}

type signResult struct {
	Sig string `json:"sig"`
}

type sealParams struct {
	Plaintext string `json:"plaintext"`
	Peer      string `json:"peer"`
}

type sealResult struct {
	Sealed string `json:"sealed"`
}

type openParams struct {
	Sealed string `json:"sealed"`
	Peer   string `json:"peer"`
}

type openResult struct {
	Plaintext string `json:"plaintext"`
}

type identityResult struct {
	Pubkey           string `json:"pubkey"`
	EncryptionPubkey string `json:"encryption_pubkey"`
}

// RemoteError carries a failure reported by the remote signer itself,
// passed through verbatim.
type RemoteError struct {
	Method string
	Reason string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote signer %s: %s", e.Method, e.Reason)
}
