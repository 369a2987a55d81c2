package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv("AUTH_SECRET", "secret")

		cfg, err := Load(false)
		require.NoError(t, err)
		require.Equal(t, "devcollab.db", cfg.DBFile)
		require.Equal(t, ":8080", cfg.APIAddr)
		require.Equal(t, "localhost:8081", cfg.AdminAddr)
		require.Equal(t, 24*time.Hour, cfg.TokenExpiry)
		require.Equal(t, 15*time.Minute, cfg.EditWindow)
		require.Equal(t, slog.LevelInfo, cfg.LogLevel)
		require.Equal(t, "text", cfg.LogFormat)
		require.False(t, cfg.PushEnabled())
	})

	t.Run("overrides", func(t *testing.T) {
		t.Setenv("AUTH_SECRET", "secret")
		t.Setenv("DEVCOLLAB_DB", "/tmp/x.db")
		t.Setenv("EDIT_WINDOW", "5m")
		t.Setenv("LOG_LEVEL", "debug")
		t.Setenv("LOG_FORMAT", "JSON")
		t.Setenv("VAPID_PUBLIC_KEY", "pub")
		t.Setenv("VAPID_PRIVATE_KEY", "priv")

		cfg, err := Load(false)
		require.NoError(t, err)
		require.Equal(t, "/tmp/x.db", cfg.DBFile)
		require.Equal(t, 5*time.Minute, cfg.EditWindow)
		require.Equal(t, slog.LevelDebug, cfg.LogLevel)
		require.Equal(t, "json", cfg.LogFormat)
		require.True(t, cfg.PushEnabled())
	})

	t.Run("secret required outside cli mode", func(t *testing.T) {
		t.Setenv("AUTH_SECRET", "")

		_, err := Load(false)
		require.Error(t, err)

		_, err = Load(true)
		require.NoError(t, err)
	})

	t.Run("invalid values", func(t *testing.T) {
		tests := []struct {
			key, value string
		}{
			{"TOKEN_EXPIRY", "forever"},
			{"TOKEN_EXPIRY", "-1h"},
			{"EDIT_WINDOW", "0s"},
			{"LOG_LEVEL", "loud"},
			{"LOG_FORMAT", "xml"},
			{"VAPID_PUBLIC_KEY", "only-half"},
		}
		for _, tt := range tests {
			t.Run(tt.key+"="+tt.value, func(t *testing.T) {
				t.Setenv("AUTH_SECRET", "secret")
				t.Setenv(tt.key, tt.value)

				_, err := Load(false)
				require.Error(t, err)
			})
		}
	})
}
