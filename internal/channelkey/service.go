package channelkey

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"hearth-chat/go-backend/internal/identity"
	"hearth-chat/go-backend/internal/invitecode"
	"hearth-chat/go-backend/internal/keywrap"
	"hearth-chat/go-backend/internal/msgcodec"
	"hearth-chat/go-backend/internal/platform/privacylog"
	"hearth-chat/go-backend/internal/platform/ratelimiter"
	"hearth-chat/go-backend/internal/signer"
	"hearth-chat/go-backend/pkg/models"
)

const channelKeySize = 32

var (
	redeemsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hearth_channelkey_redeems_total",
		Help: "Invite redemptions that recovered a channel key.",
	})
	wrapSkipsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hearth_channelkey_bootstrap_wrap_skips_total",
		Help: "Members excluded from a bootstrap batch because their wrap failed.",
	})
)

func init() {
	prometheus.MustRegister(redeemsTotal, wrapSkipsTotal)
}

// Config assembles a Service. Server and Signer are required.
type Config struct {
	Server KeyServer
	Signer signer.Signer
	Logger *slog.Logger

	// CacheTTL overrides the 24h session cache expiry. Zero keeps the default.
	CacheTTL time.Duration

	// ServiceIdentities are out-of-band identities (bots, archival
	// services) that receive a wrapped key copy at every bootstrap.
	ServiceIdentities []models.Member

	// RedeemRPS / RedeemBurst bound redeem attempts per code hash.
	// Zero values fall back to one attempt per two seconds, burst 5.
	RedeemRPS   float64
	RedeemBurst int
}

// Service owns the session key cache and the crypto primitives behind
// key distribution. Construct at login, Close at logout.
type Service struct {
	server  KeyServer
	signer  signer.Signer
	codec   *msgcodec.Codec
	cache   *Cache
	limiter *ratelimiter.MapLimiter
	log     *slog.Logger
	svcIDs  []models.Member
	now     func() time.Time
}

func New(cfg Config) (*Service, error) {
	if cfg.Server == nil {
		return nil, errors.New("channelkey: key server is required")
	}
	if cfg.Signer == nil {
		return nil, signer.ErrNoSigner
	}
	// All key material in this package comes from the process RNG; a
	// broken source is fatal, not retryable.
	if _, err := io.ReadFull(rand.Reader, make([]byte, channelKeySize)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInsecureContext, err)
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(privacylog.WrapHandler(slog.NewTextHandler(os.Stderr, nil)))
	}
	rps := cfg.RedeemRPS
	if rps <= 0 {
		rps = 0.5
	}
	burst := cfg.RedeemBurst
	if burst <= 0 {
		burst = 5
	}
	return &Service{
		server:  cfg.Server,
		signer:  cfg.Signer,
		codec:   msgcodec.New(cfg.Signer),
		cache:   NewCache(cfg.CacheTTL),
		limiter: ratelimiter.New(rps, burst, 30*time.Minute),
		log:     log,
		svcIDs:  cfg.ServiceIdentities,
		now:     time.Now,
	}, nil
}

// Close drops the session key cache. The Service must not be used after.
func (s *Service) Close() {
	s.cache.Clear()
}

// SelfIdentityID returns the identity id of the active signer.
func (s *Service) SelfIdentityID() (string, error) {
	pub, err := hex.DecodeString(s.signer.PublicKey())
	if err != nil {
		return "", fmt.Errorf("decode signer public key: %w", err)
	}
	return identity.BuildIdentityID(pub)
}

// Key returns the channel key for a scope, from the session cache or by
// fetching and unwrapping the caller's stored envelope.
func (s *Service) Key(ctx context.Context, scope models.Scope) ([]byte, error) {
	if cached, ok := s.cache.Get(scope.Key()); ok {
		return cached, nil
	}
	selfID, err := s.SelfIdentityID()
	if err != nil {
		return nil, err
	}
	wrapped, err := s.server.FetchWrappedKey(ctx, scope, selfID)
	if err != nil {
		return nil, fmt.Errorf("fetch wrapped key for %s: %w", scope.Key(), err)
	}
	key, err := keywrap.Unwrap(ctx, s.signer, fromWire(wrapped))
	if err != nil {
		return nil, err
	}
	s.cache.Put(scope.Key(), key)
	return key, nil
}

// Bootstrap creates the community channel key and distributes a wrapped
// copy to every member and configured service identity in one atomic
// batch. A member whose wrap fails is logged and excluded rather than
// aborting the batch; that member cannot decrypt until an admin retries.
func (s *Service) Bootstrap(ctx context.Context) error {
	scope := models.CommunityScope()
	selfID, err := s.SelfIdentityID()
	if err != nil {
		return err
	}
	members, err := s.server.ListMembers(ctx, scope)
	if err != nil {
		return fmt.Errorf("list members: %w", err)
	}

	channelKey, err := newChannelKey()
	if err != nil {
		return err
	}

	creatorEnv, err := keywrap.Wrap(ctx, s.signer, channelKey, s.signer.EncryptionPublicKey())
	if err != nil {
		return fmt.Errorf("wrap creator copy: %w", err)
	}

	batch := make(map[string]models.WrappedKey, len(members)+len(s.svcIDs))
	for _, m := range append(members, s.svcIDs...) {
		if m.IdentityID == selfID {
			continue
		}
		env, err := keywrap.Wrap(ctx, s.signer, channelKey, m.EncryptionPublicKey)
		if err != nil {
			wrapSkipsTotal.Inc()
			s.log.Warn("bootstrap wrap failed, member excluded",
				"identity_id", m.IdentityID, "error", err)
			continue
		}
		batch[m.IdentityID] = toWire(env)
	}

	req := models.BootstrapRequest{
		CreatorIdentityID: selfID,
		CreatorWrappedKey: toWire(creatorEnv),
		MemberWrappedKeys: batch,
	}
	if err := s.server.BootstrapCommunity(ctx, req); err != nil {
		return fmt.Errorf("submit bootstrap batch: %w", err)
	}
	s.cache.Put(scope.Key(), channelKey)
	s.log.Info("community key bootstrapped", "members", len(batch))
	return nil
}

// InviteOptions control server-side invite policy. The crypto is the
// same either way; the server enforces use counts and expiry.
type InviteOptions struct {
	SingleUse bool
	TTL       time.Duration
}

// CreateInvite issues a community invite: the channel key is encrypted
// under a key derived from a fresh invite code, and only the code hash
// and the ciphertext reach the server. Returns the formatted code for
// out-of-band delivery.
func (s *Service) CreateInvite(ctx context.Context, opts InviteOptions) (string, error) {
	channelKey, err := s.Key(ctx, models.CommunityScope())
	if err != nil {
		return "", err
	}

	code, err := invitecode.Generate()
	if err != nil {
		return "", err
	}
	hash, err := invitecode.Hash(code)
	if err != nil {
		return "", err
	}
	derived, err := invitecode.DeriveKey(code)
	if err != nil {
		return "", err
	}
	payload, err := signer.SealWithKey(derived, channelKey)
	zero(derived)
	if err != nil {
		return "", fmt.Errorf("seal invite payload: %w", err)
	}

	err = s.server.CreateInvite(ctx, models.InviteUpload{
		CodeHash:  hash,
		Scope:     models.CommunityScope(),
		Payload:   payload,
		SingleUse: opts.SingleUse,
		TTL:       opts.TTL,
	})
	if err != nil {
		return "", fmt.Errorf("store invite: %w", err)
	}
	return code, nil
}

// CreateTeamInvite issues a team invite. The first invite for a tenant
// bootstraps the team channel key, recording the invite-derived public
// key as the scope's encryption anchor; later invites re-wrap the
// existing key to each new invite-derived keypair.
func (s *Service) CreateTeamInvite(ctx context.Context, tenantID string, opts InviteOptions) (string, error) {
	scope := models.TeamScope(tenantID)
	if !scope.Valid() {
		return "", fmt.Errorf("invalid team scope %q", tenantID)
	}

	code, err := invitecode.Generate()
	if err != nil {
		return "", err
	}
	hash, err := invitecode.Hash(code)
	if err != nil {
		return "", err
	}
	inviteKeys, err := invitecode.DeriveKeypair(code)
	if err != nil {
		return "", err
	}

	var channelKey []byte
	_, stateErr := s.server.TeamState(ctx, scope.TenantID)
	switch {
	case errors.Is(stateErr, ErrTeamNotBootstrapped):
		channelKey, err = s.bootstrapTeam(ctx, scope, inviteKeys.EncryptionPublicKey)
		if err != nil {
			return "", err
		}
	case stateErr != nil:
		return "", fmt.Errorf("team state for %s: %w", scope.TenantID, stateErr)
	default:
		channelKey, err = s.Key(ctx, scope)
		if err != nil {
			return "", err
		}
	}

	env, err := keywrap.Wrap(ctx, s.signer, channelKey, inviteKeys.EncryptionPublicKey)
	zero(inviteKeys.SigningPrivateKey)
	zero(inviteKeys.EncryptionPrivateKey)
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("encode invite envelope: %w", err)
	}

	err = s.server.CreateInvite(ctx, models.InviteUpload{
		CodeHash:  hash,
		Scope:     scope,
		Payload:   string(payload),
		SingleUse: opts.SingleUse,
		TTL:       opts.TTL,
	})
	if err != nil {
		return "", fmt.Errorf("store invite: %w", err)
	}
	return code, nil
}

// bootstrapTeam creates a tenant's channel key, stores the creator's own
// wrapped copy, and records the anchor public key.
func (s *Service) bootstrapTeam(ctx context.Context, scope models.Scope, anchorPub []byte) ([]byte, error) {
	channelKey, err := newChannelKey()
	if err != nil {
		return nil, err
	}
	selfID, err := s.SelfIdentityID()
	if err != nil {
		return nil, err
	}
	ownEnv, err := keywrap.Wrap(ctx, s.signer, channelKey, s.signer.EncryptionPublicKey())
	if err != nil {
		return nil, fmt.Errorf("wrap creator copy: %w", err)
	}
	if err := s.server.StoreWrappedKey(ctx, scope, selfID, toWire(ownEnv)); err != nil {
		return nil, fmt.Errorf("store creator copy: %w", err)
	}
	state := models.TeamKeyState{
		TenantID:        scope.TenantID,
		AnchorPublicKey: anchorPub,
		CreatedAt:       s.now().UTC(),
	}
	if err := s.server.InitTeamState(ctx, state); err != nil {
		return nil, fmt.Errorf("init team state: %w", err)
	}
	s.cache.Put(scope.Key(), channelKey)
	s.log.Info("team key bootstrapped", "tenant_id", scope.TenantID)
	return channelKey, nil
}

// Redeem recovers the community channel key from an invite code,
// re-wraps it to the redeemer's own identity for durable storage, and
// caches it for the session.
func (s *Service) Redeem(ctx context.Context, code string) ([]byte, error) {
	normalized, err := invitecode.Normalize(code)
	if err != nil {
		return nil, err
	}
	hash, err := invitecode.Hash(normalized)
	if err != nil {
		return nil, err
	}
	if !s.limiter.Allow(hash, s.now()) {
		return nil, ErrRateLimited
	}

	payload, err := s.server.RedeemInvite(ctx, hash)
	if err != nil {
		return nil, err
	}
	derived, err := invitecode.DeriveKey(normalized)
	if err != nil {
		return nil, err
	}
	channelKey, err := signer.OpenWithKey(derived, payload)
	zero(derived)
	if err != nil {
		return nil, fmt.Errorf("decrypt invite payload: %w", err)
	}

	if err := s.adoptKey(ctx, models.CommunityScope(), channelKey); err != nil {
		return nil, err
	}
	redeemsTotal.Inc()
	return channelKey, nil
}

// RedeemTeam recovers a tenant's channel key from a team invite code.
// The invite-derived private scalar lives only for the unwrap and is
// zeroed before returning.
func (s *Service) RedeemTeam(ctx context.Context, tenantID, code string) ([]byte, error) {
	scope := models.TeamScope(tenantID)
	if !scope.Valid() {
		return nil, fmt.Errorf("invalid team scope %q", tenantID)
	}
	normalized, err := invitecode.Normalize(code)
	if err != nil {
		return nil, err
	}
	hash, err := invitecode.Hash(normalized)
	if err != nil {
		return nil, err
	}
	if !s.limiter.Allow(hash, s.now()) {
		return nil, ErrRateLimited
	}

	payload, err := s.server.RedeemInvite(ctx, hash)
	if err != nil {
		return nil, err
	}
	var env keywrap.Envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return nil, fmt.Errorf("%w: malformed invite envelope", keywrap.ErrUnsupportedEnvelope)
	}

	inviteKeys, err := invitecode.DeriveKeypair(normalized)
	if err != nil {
		return nil, err
	}
	inviteSigner, err := signer.NewLocalSigner(inviteKeys)
	if err != nil {
		return nil, err
	}
	channelKey, err := keywrap.Unwrap(ctx, inviteSigner, env)
	zero(inviteKeys.SigningPrivateKey)
	zero(inviteKeys.EncryptionPrivateKey)
	if err != nil {
		return nil, err
	}

	if err := s.adoptKey(ctx, scope, channelKey); err != nil {
		return nil, err
	}
	redeemsTotal.Inc()
	return channelKey, nil
}

// adoptKey re-wraps a freshly recovered channel key to the redeemer's
// own identity, stores that copy server-side, and caches the key.
func (s *Service) adoptKey(ctx context.Context, scope models.Scope, channelKey []byte) error {
	selfID, err := s.SelfIdentityID()
	if err != nil {
		return err
	}
	env, err := keywrap.Wrap(ctx, s.signer, channelKey, s.signer.EncryptionPublicKey())
	if err != nil {
		return err
	}
	if err := s.server.StoreWrappedKey(ctx, scope, selfID, toWire(env)); err != nil {
		return fmt.Errorf("store own wrapped key: %w", err)
	}
	s.cache.Put(scope.Key(), channelKey)
	return nil
}

// MigrationProgress reports where a paginated re-encryption run stands.
type MigrationProgress struct {
	Encrypted int
	Remaining int
	NextAfter string
}

// MigratePage fetches one page of pre-encryption messages, encrypts each
// with the scope's channel key, and submits the batch. Completion is
// never inferred from Remaining reaching zero; call CompleteMigration.
func (s *Service) MigratePage(ctx context.Context, scope models.Scope, afterID string, limit int) (MigrationProgress, error) {
	channelKey, err := s.Key(ctx, scope)
	if err != nil {
		return MigrationProgress{}, err
	}
	page, err := s.server.FetchPlaintextPage(ctx, scope, afterID, limit)
	if err != nil {
		return MigrationProgress{}, fmt.Errorf("fetch plaintext page: %w", err)
	}

	batch := make([]models.EncryptedMessage, 0, len(page.Messages))
	for _, msg := range page.Messages {
		ciphertext, err := s.codec.Encrypt(ctx, msg.Content, channelKey)
		if err != nil {
			return MigrationProgress{}, fmt.Errorf("encrypt message %s: %w", msg.ID, err)
		}
		batch = append(batch, models.EncryptedMessage{ID: msg.ID, Ciphertext: ciphertext})
	}

	remaining := page.Remaining
	if len(batch) > 0 {
		remaining, err = s.server.SubmitEncryptedBatch(ctx, scope, batch)
		if err != nil {
			return MigrationProgress{}, fmt.Errorf("submit encrypted batch: %w", err)
		}
	}
	return MigrationProgress{
		Encrypted: len(batch),
		Remaining: remaining,
		NextAfter: page.NextAfter,
	}, nil
}

// CompleteMigration marks a scope's migration done. Explicit and
// idempotent; safe to call again after a retry.
func (s *Service) CompleteMigration(ctx context.Context, scope models.Scope) error {
	if err := s.server.CompleteMigration(ctx, scope); err != nil {
		return fmt.Errorf("complete migration for %s: %w", scope.Key(), err)
	}
	s.log.Info("migration completed", "scope", scope.Key())
	return nil
}

func newChannelKey() ([]byte, error) {
	key := make([]byte, channelKeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInsecureContext, err)
	}
	return key, nil
}

func toWire(env keywrap.Envelope) models.WrappedKey {
	return models.WrappedKey{
		Version:   env.V,
		Algorithm: env.Alg,
		Key:       env.Key,
		CreatedBy: env.CreatedBy,
		CreatedAt: env.CreatedAt,
	}
}

func fromWire(w models.WrappedKey) keywrap.Envelope {
	return keywrap.Envelope{
		V:         w.Version,
		Alg:       w.Algorithm,
		Key:       w.Key,
		CreatedBy: w.CreatedBy,
		CreatedAt: w.CreatedAt,
	}
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
