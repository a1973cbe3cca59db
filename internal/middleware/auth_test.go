package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"marshmallow-backend/internal/models"

	"github.com/stretchr/testify/assert"
)

type staticTokens map[string]string

func (s staticTokens) ValidateJWT(token string) (string, error) {
	if id, ok := s[token]; ok {
		return id, nil
	}
	return "", errors.New("bad token")
}

func TestAuthMiddleware(t *testing.T) {
	var seen string
	h := AuthMiddleware(staticTokens{"good": "user-1"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetUserID(r.Context())
	}))

	cases := []struct {
		header string
		status int
	}{
		{"", http.StatusUnauthorized},
		{"good", http.StatusUnauthorized},
		{"Basic good", http.StatusUnauthorized},
		{"Bearer ", http.StatusUnauthorized},
		{"Bearer bad", http.StatusUnauthorized},
		{"Bearer good", http.StatusOK},
		{"bearer good", http.StatusOK},
	}
	for _, tc := range cases {
		seen = ""
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, tc.status, rec.Code, tc.header)
		if tc.status == http.StatusOK {
			assert.Equal(t, "user-1", seen)
		} else {
			assert.Empty(t, seen)
			assert.Contains(t, rec.Body.String(), `"code":"unauthorized"`)
		}
	}
}

func TestValidateWebSocketToken(t *testing.T) {
	_, err := ValidateWebSocketToken("", staticTokens{})
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	id, err := ValidateWebSocketToken("good", staticTokens{"good": "user-1"})
	assert.NoError(t, err)
	assert.Equal(t, "user-1", id)
}
