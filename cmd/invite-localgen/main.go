// invite-localgen generates invite codes offline for ops bootstrap.
// The codes themselves go to members out-of-band; the JSON bundle holds
// what the server may see (code hashes) plus the derived public keys an
// admin needs to pre-provision team anchors.
package main

import (
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"hearth-chat/go-backend/internal/invitecode"
)

type generatedInvite struct {
	Code             string `json:"code"`
	CodeHash         string `json:"code_hash"`
	DerivedPublicKey string `json:"derived_public_key,omitempty"`
}

type bundle struct {
	GeneratedAt time.Time         `json:"generated_at"`
	Team        bool              `json:"team"`
	Invites     []generatedInvite `json:"invites"`
}

func main() {
	var (
		outDir = flag.String("out-dir", "", "output directory; stdout when empty")
		count  = flag.Int("count", 1, "number of codes to generate")
		team   = flag.Bool("team", false, "include the invite-derived public key for team anchors")
	)
	flag.Parse()

	if *count <= 0 {
		fail("count must be > 0")
	}

	b := bundle{
		GeneratedAt: time.Now().UTC(),
		Team:        *team,
		Invites:     make([]generatedInvite, 0, *count),
	}
	for i := 0; i < *count; i++ {
		code, err := invitecode.Generate()
		if err != nil {
			failf("generate code: %v", err)
		}
		hash, err := invitecode.Hash(code)
		if err != nil {
			failf("hash code: %v", err)
		}
		inv := generatedInvite{Code: code, CodeHash: hash}
		if *team {
			keys, err := invitecode.DeriveKeypair(code)
			if err != nil {
				failf("derive keypair: %v", err)
			}
			inv.DerivedPublicKey = hex.EncodeToString(keys.EncryptionPublicKey)
		}
		b.Invites = append(b.Invites, inv)
	}

	raw, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		failf("marshal bundle: %v", err)
	}

	if *outDir == "" {
		writeStdoutf("%s\n", raw)
		return
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		failf("create out dir: %v", err)
	}
	path := filepath.Join(*outDir, "invites.json")
	// Codes are secrets until handed out; keep the file owner-only.
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		failf("write file %s: %v", path, err)
	}
	writeStdoutf("Generated %d invite(s): %s\n", *count, path)
}

func fail(msg string) {
	if _, err := fmt.Fprintln(os.Stderr, msg); err != nil {
		os.Exit(1)
	}
	os.Exit(1)
}

func failf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format+"\n", args...); err != nil {
		os.Exit(1)
	}
	os.Exit(1)
}

func writeStdoutf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stdout, format, args...); err != nil {
		os.Exit(1)
	}
}
