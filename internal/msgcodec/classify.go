package msgcodec

import "encoding/json"

type shape int

const (
	shapeSignedEvent shape = iota
	shapeLegacyJSON
	shapeLegacyText
)

// legacyPayload is the pre-signing-era message body: a bare JSON object
// with content and optional sender metadata, no signature fields.
type legacyPayload struct {
	Content   string `json:"content"`
	Sender    string `json:"sender"`
	Pubkey    string `json:"pubkey"`
	CreatedAt int64  `json:"created_at"`
}

// classify sorts a decrypted plaintext into exactly one of the three
// wire shapes. The caller applies the shape's own trust rule: signed
// events are verified, legacy shapes are trusted on decryption alone.
func classify(plaintext []byte) (shape, SignedEvent, legacyPayload) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(plaintext, &probe); err != nil {
		return shapeLegacyText, SignedEvent{}, legacyPayload{}
	}

	_, hasID := probe["id"]
	_, hasPubkey := probe["pubkey"]
	_, hasSig := probe["sig"]
	_, hasKind := probe["kind"]
	if hasID && hasPubkey && hasSig && hasKind {
		var ev SignedEvent
		if err := json.Unmarshal(plaintext, &ev); err == nil {
			return shapeSignedEvent, ev, legacyPayload{}
		}
		return shapeLegacyText, SignedEvent{}, legacyPayload{}
	}

	if _, hasContent := probe["content"]; hasContent {
		var legacy legacyPayload
		if err := json.Unmarshal(plaintext, &legacy); err == nil {
			return shapeLegacyJSON, SignedEvent{}, legacy
		}
	}
	return shapeLegacyText, SignedEvent{}, legacyPayload{}
}
