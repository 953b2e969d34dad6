package mocks

import (
	"errors"
	"sync"

	"shadowcal.xdoubleu.com/internal/auth"
	"shadowcal.xdoubleu.com/internal/models"
)

const (
	MockAccessToken  = "access"
	MockRefreshToken = "refresh"
	MockPassword     = "password"
)

var ErrUnknownToken = errors.New("unknown token")

// MockedIdentity accepts MockPassword for any email that maps to a user
// and hands out fixed tokens.
type MockedIdentity struct {
	mu       sync.Mutex
	users    map[string]models.User
	current  *models.User
	signOuts int
}

func NewMockedIdentity(users ...models.User) *MockedIdentity {
	byEmail := map[string]models.User{}
	for _, user := range users {
		byEmail[user.Email] = user
	}

	return &MockedIdentity{
		mu:       sync.Mutex{},
		users:    byEmail,
		current:  nil,
		signOuts: 0,
	}
}

func (m *MockedIdentity) SignIn(email string, password string) (*auth.Tokens, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[email]
	if !ok || password != MockPassword {
		return nil, auth.ErrInvalidCredentials
	}

	m.current = &user
	return &auth.Tokens{AccessToken: MockAccessToken, RefreshToken: MockRefreshToken}, nil
}

func (m *MockedIdentity) Refresh(refreshToken string) (*auth.Tokens, error) {
	if refreshToken != MockRefreshToken {
		return nil, ErrUnknownToken
	}

	return &auth.Tokens{AccessToken: MockAccessToken, RefreshToken: MockRefreshToken}, nil
}

func (m *MockedIdentity) GetUser(accessToken string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if accessToken != MockAccessToken || m.current == nil {
		return nil, ErrUnknownToken
	}

	user := *m.current
	return &user, nil
}

func (m *MockedIdentity) SignOut(accessToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if accessToken != MockAccessToken {
		return ErrUnknownToken
	}

	m.signOuts++
	return nil
}

// Login marks user as the holder of MockAccessToken without a sign-in.
func (m *MockedIdentity) Login(user models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = &user
}

func (m *MockedIdentity) SignOuts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.signOuts
}
