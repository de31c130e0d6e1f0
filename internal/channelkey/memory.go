package channelkey

import (
	"context"
	"sync"
	"time"

	"hearth-chat/go-backend/pkg/models"
)

type storedInvite struct {
	upload    models.InviteUpload
	createdAt time.Time
	consumed  bool
}

var _ KeyServer = (*MemoryServer)(nil)

// MemoryServer is an in-process KeyServer for tests and local
// development. It stores exactly what a real backend would: code
// hashes, opaque payloads, and wrapped-key envelopes.
type MemoryServer struct {
	mu        sync.Mutex
	members   map[string][]models.Member
	wrapped   map[string]map[string]models.WrappedKey
	invites   map[string]*storedInvite
	teams     map[string]models.TeamKeyState
	plaintext map[string][]models.PlaintextMessage
	encrypted map[string]map[string]string
	completed map[string]bool
	now       func() time.Time
}

func NewMemoryServer() *MemoryServer {
	return &MemoryServer{
		members:   make(map[string][]models.Member),
		wrapped:   make(map[string]map[string]models.WrappedKey),
		invites:   make(map[string]*storedInvite),
		teams:     make(map[string]models.TeamKeyState),
		plaintext: make(map[string][]models.PlaintextMessage),
		encrypted: make(map[string]map[string]string),
		completed: make(map[string]bool),
		now:       time.Now,
	}
}

// AddMember registers a roster entry for a scope.
func (m *MemoryServer) AddMember(scope models.Scope, member models.Member) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members[scope.Key()] = append(m.members[scope.Key()], member)
}

// AddPlaintext seeds pre-encryption messages for migration.
func (m *MemoryServer) AddPlaintext(scope models.Scope, msgs ...models.PlaintextMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plaintext[scope.Key()] = append(m.plaintext[scope.Key()], msgs...)
}

// EncryptedMessages returns the migrated ciphertexts for a scope.
func (m *MemoryServer) EncryptedMessages(scope models.Scope) map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.encrypted[scope.Key()]))
	for id, ct := range m.encrypted[scope.Key()] {
		out[id] = ct
	}
	return out
}

// MigrationCompleted reports whether CompleteMigration ran for a scope.
func (m *MemoryServer) MigrationCompleted(scope models.Scope) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.completed[scope.Key()]
}

func (m *MemoryServer) BootstrapCommunity(_ context.Context, req models.BootstrapRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	scopeKey := models.CommunityScope().Key()
	bucket := m.wrapped[scopeKey]
	if bucket == nil {
		bucket = make(map[string]models.WrappedKey)
		m.wrapped[scopeKey] = bucket
	}
	bucket[req.CreatorIdentityID] = req.CreatorWrappedKey
	for id, wk := range req.MemberWrappedKeys {
		bucket[id] = wk
	}
	return nil
}

func (m *MemoryServer) FetchWrappedKey(_ context.Context, scope models.Scope, identityID string) (models.WrappedKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wk, ok := m.wrapped[scope.Key()][identityID]
	if !ok {
		return models.WrappedKey{}, ErrKeyNotFound
	}
	return wk, nil
}

func (m *MemoryServer) StoreWrappedKey(_ context.Context, scope models.Scope, identityID string, wrapped models.WrappedKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket := m.wrapped[scope.Key()]
	if bucket == nil {
		bucket = make(map[string]models.WrappedKey)
		m.wrapped[scope.Key()] = bucket
	}
	bucket[identityID] = wrapped
	return nil
}

func (m *MemoryServer) ListMembers(_ context.Context, scope models.Scope) ([]models.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Member, len(m.members[scope.Key()]))
	copy(out, m.members[scope.Key()])
	return out, nil
}

func (m *MemoryServer) CreateInvite(_ context.Context, invite models.InviteUpload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invites[invite.CodeHash] = &storedInvite{upload: invite, createdAt: m.now()}
	return nil
}

func (m *MemoryServer) RedeemInvite(_ context.Context, codeHash string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invites[codeHash]
	if !ok || inv.consumed {
		return "", ErrInviteNotFound
	}
	if inv.upload.TTL > 0 && m.now().After(inv.createdAt.Add(inv.upload.TTL)) {
		return "", ErrInviteNotFound
	}
	if inv.upload.SingleUse {
		inv.consumed = true
	}
	return inv.upload.Payload, nil
}

func (m *MemoryServer) TeamState(_ context.Context, tenantID string) (models.TeamKeyState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.teams[tenantID]
	if !ok {
		return models.TeamKeyState{}, ErrTeamNotBootstrapped
	}
	return state, nil
}

func (m *MemoryServer) InitTeamState(_ context.Context, state models.TeamKeyState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teams[state.TenantID] = state
	return nil
}

func (m *MemoryServer) FetchPlaintextPage(_ context.Context, scope models.Scope, afterID string, limit int) (models.PlaintextPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	msgs := m.plaintext[scope.Key()]
	start := 0
	if afterID != "" {
		for i, msg := range msgs {
			if msg.ID == afterID {
				start = i + 1
				break
			}
		}
	}
	end := start + limit
	if end > len(msgs) {
		end = len(msgs)
	}
	page := models.PlaintextPage{
		Messages:  append([]models.PlaintextMessage(nil), msgs[start:end]...),
		Remaining: len(msgs) - end,
	}
	if end > start {
		page.NextAfter = msgs[end-1].ID
	}
	return page, nil
}

func (m *MemoryServer) SubmitEncryptedBatch(_ context.Context, scope models.Scope, batch []models.EncryptedMessage) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket := m.encrypted[scope.Key()]
	if bucket == nil {
		bucket = make(map[string]string)
		m.encrypted[scope.Key()] = bucket
	}
	for _, msg := range batch {
		bucket[msg.ID] = msg.Ciphertext
	}
	remaining := 0
	for _, msg := range m.plaintext[scope.Key()] {
		if _, done := bucket[msg.ID]; !done {
			remaining++
		}
	}
	return remaining, nil
}

func (m *MemoryServer) CompleteMigration(_ context.Context, scope models.Scope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed[scope.Key()] = true
	return nil
}
