package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("UPLOAD_MAX_FILES", "not-a-number")
	t.Setenv("WS_STRICT_ROOM_JOIN", "false")
	t.Setenv("PUBLIC_BASE_URL", "https://chat.example.com/")

	cfg := Load()

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, 10, cfg.MaxUploadFiles)
	assert.False(t, cfg.StrictRoomJoin)
	assert.Equal(t, "https://chat.example.com", cfg.PublicBaseURL)
	assert.Equal(t, "FR", cfg.PhoneRegion)
}
