// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.
package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	domainauth "github.com/novalabs/wa-reporting/internal/domain/auth"
	"github.com/novalabs/wa-reporting/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.OAuthProvider = (*MockOAuthProvider)(nil)
	_ ports.SessionStore  = (*MemorySessionStore)(nil)
)

// MockOAuthProvider simulates the Wild Apricot OAuth endpoints for tests.
// Each func field overrides the deterministic default behavior.
type MockOAuthProvider struct {
	BeginLoginFunc        func(ctx context.Context) (string, string, error)
	CompleteLoginFunc     func(ctx context.Context, code string) (domainauth.UserToken, error)
	FetchServiceTokenFunc func(ctx context.Context) (domainauth.ServiceToken, error)
	CheckReportAccessFunc func(ctx context.Context, user domainauth.UserToken, service domainauth.ServiceToken) (bool, error)

	mu                sync.Mutex
	serviceTokenCalls int
	accessCheckCalls  int
}

// NewMockOAuthProvider creates a MockOAuthProvider with sensible defaults:
// logins succeed, service tokens mint with a generation counter, and the
// access check passes.
func NewMockOAuthProvider() *MockOAuthProvider {
	return &MockOAuthProvider{}
}

func (m *MockOAuthProvider) BeginLogin(ctx context.Context) (string, string, error) {
	if m.BeginLoginFunc != nil {
		return m.BeginLoginFunc(ctx)
	}
	return "https://mock-idp/auth", "state-1", nil
}

func (m *MockOAuthProvider) CompleteLogin(ctx context.Context, code string) (domainauth.UserToken, error) {
	if m.CompleteLoginFunc != nil {
		return m.CompleteLoginFunc(ctx, code)
	}
	return domainauth.UserToken{
		AccessToken: "user-token-for-" + code,
		TokenType:   "Bearer",
		Expiry:      time.Now().Add(time.Hour),
	}, nil
}

func (m *MockOAuthProvider) FetchServiceToken(ctx context.Context) (domainauth.ServiceToken, error) {
	m.mu.Lock()
	m.serviceTokenCalls++
	n := m.serviceTokenCalls
	m.mu.Unlock()

	if m.FetchServiceTokenFunc != nil {
		return m.FetchServiceTokenFunc(ctx)
	}
	return domainauth.ServiceToken{
		AccessToken: fmt.Sprintf("service-token-%d", n),
		TokenType:   "Bearer",
	}, nil
}

func (m *MockOAuthProvider) CheckReportAccess(
	ctx context.Context,
	user domainauth.UserToken,
	service domainauth.ServiceToken,
) (bool, error) {
	m.mu.Lock()
	m.accessCheckCalls++
	m.mu.Unlock()

	if m.CheckReportAccessFunc != nil {
		return m.CheckReportAccessFunc(ctx, user, service)
	}
	return true, nil
}

// ServiceTokenCalls reports how many service tokens were minted.
func (m *MockOAuthProvider) ServiceTokenCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.serviceTokenCalls
}

// AccessCheckCalls reports how many access checks ran.
func (m *MockOAuthProvider) AccessCheckCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accessCheckCalls
}

// MemorySessionStore is an in-memory SessionStore for tests.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]domainauth.Session
}

// NewMemorySessionStore creates an empty in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]domainauth.Session)}
}

func (s *MemorySessionStore) Save(_ context.Context, sess domainauth.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	return nil
}

func (s *MemorySessionStore) Get(_ context.Context, id string) (domainauth.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return domainauth.Session{}, errNotFound{}
	}
	return sess, nil
}

func (s *MemorySessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// Len reports how many sessions are stored.
func (s *MemorySessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

type errNotFound struct{}

func (errNotFound) Error() string { return "session not found" }
