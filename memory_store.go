package lscauth

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process [Store] guarded by a single mutex. It suits tests and
// single-instance development servers; data does not survive a restart.
type MemoryStore struct {
	mu            sync.Mutex
	users         map[string]*User
	emails        map[string]string
	refresh       map[string]*RefreshToken
	refreshByHash map[string]string
	verification  map[string]*VerificationToken
	reset         map[string]*PasswordResetToken
	audit         []AuditLogEntry
}

// NewMemoryStore creates an empty [MemoryStore].
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[string]*User),
		emails:        make(map[string]string),
		refresh:       make(map[string]*RefreshToken),
		refreshByHash: make(map[string]string),
		verification:  make(map[string]*VerificationToken),
		reset:         make(map[string]*PasswordResetToken),
	}
}

var _ Store = (*MemoryStore)(nil)

func copyUser(u *User) *User {
	out := *u
	out.Organizations = append([]Membership(nil), u.Organizations...)
	return &out
}

func copyRefresh(t *RefreshToken) *RefreshToken {
	out := *t
	if t.RevokedAt != nil {
		at := *t.RevokedAt
		out.RevokedAt = &at
	}
	return &out
}

// FindUserByEmail implements Store.
func (s *MemoryStore) FindUserByEmail(_ context.Context, email string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.emails[email]
	if !ok {
		return nil, ErrNotFound
	}
	return copyUser(s.users[id]), nil
}

// FindUserByID implements Store.
func (s *MemoryStore) FindUserByID(_ context.Context, id string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyUser(u), nil
}

// CreateUser implements Store.
func (s *MemoryStore) CreateUser(_ context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.emails[user.Email]; taken {
		return ErrDuplicateEmail
	}
	s.users[user.ID] = copyUser(user)
	s.emails[user.Email] = user.ID
	return nil
}

// UpdateUser implements Store.
func (s *MemoryStore) UpdateUser(_ context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.users[user.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Email != user.Email {
		if _, taken := s.emails[user.Email]; taken {
			return ErrDuplicateEmail
		}
		delete(s.emails, current.Email)
		s.emails[user.Email] = user.ID
	}
	s.users[user.ID] = copyUser(user)
	return nil
}

// FindRefreshTokenByHash implements Store.
func (s *MemoryStore) FindRefreshTokenByHash(_ context.Context, tokenHash string) (*RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.refreshByHash[tokenHash]
	if !ok {
		return nil, ErrNotFound
	}
	return copyRefresh(s.refresh[id]), nil
}

// CreateRefreshToken implements Store.
func (s *MemoryStore) CreateRefreshToken(_ context.Context, token *RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.insertRefreshLocked(token)
}

func (s *MemoryStore) insertRefreshLocked(token *RefreshToken) error {
	if _, dup := s.refreshByHash[token.TokenHash]; dup {
		return ErrDuplicateToken
	}
	if _, dup := s.refresh[token.ID]; dup {
		return ErrDuplicateToken
	}
	s.refresh[token.ID] = copyRefresh(token)
	s.refreshByHash[token.TokenHash] = token.ID
	return nil
}

// RevokeRefreshToken implements Store.
func (s *MemoryStore) RevokeRefreshToken(_ context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.revokeLocked(id, at), nil
}

func (s *MemoryStore) revokeLocked(id string, at time.Time) bool {
	t, ok := s.refresh[id]
	if !ok || t.RevokedAt != nil {
		return false
	}
	t.RevokedAt = &at
	return true
}

// RotateRefreshToken implements Store.
func (s *MemoryStore) RotateRefreshToken(_ context.Context, oldID string, at time.Time, next *RefreshToken) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.refresh[oldID]
	if !ok || t.RevokedAt != nil {
		return false, nil
	}
	if err := s.insertRefreshLocked(next); err != nil {
		return false, err
	}
	t.RevokedAt = &at
	return true, nil
}

// RevokeRefreshTokens implements Store.
func (s *MemoryStore) RevokeRefreshTokens(_ context.Context, userID string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.revokeAllLocked(userID, at), nil
}

func (s *MemoryStore) revokeAllLocked(userID string, at time.Time) int64 {
	var n int64
	for id, t := range s.refresh {
		if t.UserID == userID && s.revokeLocked(id, at) {
			n++
		}
	}
	return n
}

// DeleteExpiredRefreshTokens implements Store.
func (s *MemoryStore) DeleteExpiredRefreshTokens(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, t := range s.refresh {
		if !now.Before(t.ExpiresAt) {
			delete(s.refreshByHash, t.TokenHash)
			delete(s.refresh, id)
			n++
		}
	}
	return n, nil
}

// FindVerificationTokensUnexpired implements Store.
func (s *MemoryStore) FindVerificationTokensUnexpired(_ context.Context, now time.Time) ([]VerificationToken, error) {
	return s.findVerification(func(t *VerificationToken) bool { return now.Before(t.ExpiresAt) }), nil
}

// FindVerificationTokensExpired implements Store.
func (s *MemoryStore) FindVerificationTokensExpired(_ context.Context, now time.Time) ([]VerificationToken, error) {
	return s.findVerification(func(t *VerificationToken) bool { return !now.Before(t.ExpiresAt) }), nil
}

func (s *MemoryStore) findVerification(keep func(*VerificationToken) bool) []VerificationToken {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]VerificationToken, 0, len(s.verification))
	for _, t := range s.verification {
		if keep(t) {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// CreateVerificationToken implements Store.
func (s *MemoryStore) CreateVerificationToken(_ context.Context, token *VerificationToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.verification[token.ID]; dup {
		return ErrDuplicateToken
	}
	t := *token
	s.verification[token.ID] = &t
	return nil
}

// DeleteVerificationToken implements Store.
func (s *MemoryStore) DeleteVerificationToken(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.verification, id)
	return nil
}

// DeleteVerificationTokens implements Store.
func (s *MemoryStore) DeleteVerificationTokens(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, t := range s.verification {
		if t.UserID == userID {
			delete(s.verification, id)
			n++
		}
	}
	return n, nil
}

// DeleteExpiredVerificationTokens implements Store.
func (s *MemoryStore) DeleteExpiredVerificationTokens(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, t := range s.verification {
		if !now.Before(t.ExpiresAt) {
			delete(s.verification, id)
			n++
		}
	}
	return n, nil
}

// CompleteEmailVerification implements Store.
func (s *MemoryStore) CompleteEmailVerification(_ context.Context, userID, tokenID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	if _, ok := s.verification[tokenID]; !ok {
		return ErrNotFound
	}
	u.Status = StatusActive
	u.EmailVerified = true
	u.UpdatedAt = at
	delete(s.verification, tokenID)
	return nil
}

// FindPasswordResetTokensUnexpired implements Store.
func (s *MemoryStore) FindPasswordResetTokensUnexpired(_ context.Context, now time.Time) ([]PasswordResetToken, error) {
	return s.findReset(func(t *PasswordResetToken) bool { return now.Before(t.ExpiresAt) }), nil
}

// FindPasswordResetTokensExpired implements Store.
func (s *MemoryStore) FindPasswordResetTokensExpired(_ context.Context, now time.Time) ([]PasswordResetToken, error) {
	return s.findReset(func(t *PasswordResetToken) bool { return !now.Before(t.ExpiresAt) }), nil
}

func (s *MemoryStore) findReset(keep func(*PasswordResetToken) bool) []PasswordResetToken {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]PasswordResetToken, 0, len(s.reset))
	for _, t := range s.reset {
		if !t.Used && keep(t) {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// CreatePasswordResetToken implements Store.
func (s *MemoryStore) CreatePasswordResetToken(_ context.Context, token *PasswordResetToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.reset[token.ID]; dup {
		return ErrDuplicateToken
	}
	t := *token
	s.reset[token.ID] = &t
	return nil
}

// DeletePasswordResetToken implements Store.
func (s *MemoryStore) DeletePasswordResetToken(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.reset, id)
	return nil
}

// DeletePasswordResetTokens implements Store.
func (s *MemoryStore) DeletePasswordResetTokens(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, t := range s.reset {
		if t.UserID == userID {
			delete(s.reset, id)
			n++
		}
	}
	return n, nil
}

// DeleteExpiredPasswordResetTokens implements Store.
func (s *MemoryStore) DeleteExpiredPasswordResetTokens(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, t := range s.reset {
		if !now.Before(t.ExpiresAt) {
			delete(s.reset, id)
			n++
		}
	}
	return n, nil
}

// CompletePasswordReset implements Store.
func (s *MemoryStore) CompletePasswordReset(_ context.Context, tokenID, userID, passwordHash string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.reset[tokenID]
	if !ok || t.Used {
		return false, nil
	}
	u, ok := s.users[userID]
	if !ok {
		return false, ErrNotFound
	}
	t.Used = true
	u.PasswordHash = passwordHash
	u.UpdatedAt = at
	s.revokeAllLocked(userID, at)
	return true, nil
}

// AppendAuditLog implements Store.
func (s *MemoryStore) AppendAuditLog(_ context.Context, entry AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.Metadata = cloneMetadata(entry.Metadata)
	s.audit = append(s.audit, entry)
	return nil
}

// AuditLog returns a copy of every appended entry in append order.
func (s *MemoryStore) AuditLog() []AuditLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]AuditLogEntry, len(s.audit))
	for i, e := range s.audit {
		e.Metadata = cloneMetadata(e.Metadata)
		out[i] = e
	}
	return out
}

func cloneMetadata(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
