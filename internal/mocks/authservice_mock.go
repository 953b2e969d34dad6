package mocks

import (
	"context"
	"net/http"

	"shadowcal.xdoubleu.com/internal/auth"
	"shadowcal.xdoubleu.com/internal/constants"
	"shadowcal.xdoubleu.com/internal/models"
)

func NewMockedAuthService(userID string) auth.Service {
	return &MockedAuthService{
		userID: userID,
	}
}

// MockedAuthService lets every request through as the configured user.
type MockedAuthService struct {
	userID string
}

func (m *MockedAuthService) Access(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := models.User{
			ID:    m.userID,
			Email: "operator@example.com",
		}

		ctx := context.WithValue(r.Context(), constants.UserContextKey, user)
		next(w, r.WithContext(ctx))
	}
}
