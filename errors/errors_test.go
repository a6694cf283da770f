package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"unauthorized", ErrUnauthorized, http.StatusUnauthorized},
		{"invalid token", ErrInvalidToken, http.StatusUnauthorized},
		{"forbidden wrapped", fmt.Errorf("conversation 3: %w", ErrForbidden), http.StatusForbidden},
		{"not found", ErrNotFound, http.StatusNotFound},
		{"input error", NewInputError("content", "is required"), http.StatusBadRequest},
		{"invalid operation", ErrInvalidOperation, http.StatusBadRequest},
		{"unknown", fmt.Errorf("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestInputError_MatchesInvalidInput(t *testing.T) {
	req := require.New(t)
	err := fmt.Errorf("send: %w", NewInputError("content", "must be at most 5000 characters"))

	req.ErrorIs(err, ErrInvalidInput)
	req.Equal("content", FieldOf(err))
	req.Contains(err.Error(), "content must be at most 5000 characters")
	req.Empty(FieldOf(ErrForbidden))
}
