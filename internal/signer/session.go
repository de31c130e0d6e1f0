package signer

import "hearth-chat/go-backend/internal/identity"

// Unlock is the login path: it checks the password against the seed
// manager's encrypted envelope, re-derives the session keys from the
// mnemonic, and hands back a ready local signer. The mnemonic itself
// does not outlive this call.
func Unlock(sm *identity.SeedManager, password string) (*LocalSigner, error) {
	mnemonic, err := sm.Export(password)
	if err != nil {
		return nil, err
	}
	keys, err := identity.KeysFromMnemonic(mnemonic)
	if err != nil {
		return nil, err
	}
	return NewLocalSigner(keys)
}
