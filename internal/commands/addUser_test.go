package commands

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"devcollab/internal/api"
	"devcollab/internal/config"
	"devcollab/internal/models"

	"github.com/stretchr/testify/require"
)

func TestAddUser(t *testing.T) {
	var got api.AddUserRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/admin/users" || json.NewDecoder(r.Body).Decode(&got) != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if got.Email == "taken@example.com" {
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"message":"Email is already registered"}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(api.AddUserResponse{
			Success:  true,
			User:     &models.User{ID: "u1", Email: got.Email},
			Password: "generated",
		})
	}))
	defer srv.Close()

	cfg := &config.Config{AdminAddr: strings.TrimPrefix(srv.URL, "http://")}

	require.NoError(t, AddUser("new@example.com", cfg))
	require.Equal(t, "new@example.com", got.Email)

	err := AddUser("taken@example.com", cfg)
	require.ErrorContains(t, err, "409")
}
