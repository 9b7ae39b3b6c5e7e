package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFileDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "lobby", cfg.DefaultConference)
	assert.Equal(t, 25*time.Second, cfg.PingPeriod)
	assert.Equal(t, RoomConfig{Width: 2000, Height: 2000}, cfg.Room)
	assert.Equal(t, CommandRateConfig{Limit: 10, Interval: time.Second}, cfg.CommandRate)
	assert.Nil(t, cfg.ICEServers)
}

func TestLoadFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode: debug
port: 9000
signal_url: wss://sfu.example.com/ws
session_id: standup
link_primary: main-screen
auto_start: true
ice_servers:
  - stun:stun.example.com:3478
room:
  width: 500
command_rate:
  limit: 3
  interval: 2s
`), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Mode)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "wss://sfu.example.com/ws", cfg.SignalURL)
	assert.Equal(t, "standup", cfg.SessionID)
	assert.Equal(t, "main-screen", cfg.LinkPrimary)
	assert.True(t, cfg.AutoStart)
	assert.Equal(t, []string{"stun:stun.example.com:3478"}, cfg.ICEServers)
	assert.Equal(t, RoomConfig{Width: 500, Height: 2000}, cfg.Room)
	assert.Equal(t, CommandRateConfig{Limit: 3, Interval: 2 * time.Second}, cfg.CommandRate)
}

func TestLoadFileEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.test.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 9000\nsession_id: standup\n"), 0o644))

	t.Setenv("SHARER_SESSION_ID", "fromenv")
	t.Setenv("SHARER_LINK_PRIMARY", "peer1")
	t.Setenv("SHARER_ROOM_WIDTH", "777")
	t.Setenv("SHARER_PORT", "9999")
	t.Setenv("SHARER_COMMAND_RATE_INTERVAL", "3s")
	t.Setenv("SHARER_ICE_SERVERS", "stun:a:3478,stun:b:3478")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "fromenv", cfg.SessionID)
	assert.Equal(t, "peer1", cfg.LinkPrimary)
	assert.Equal(t, 9999, cfg.Port)
	assert.Equal(t, RoomConfig{Width: 777, Height: 2000}, cfg.Room)
	assert.Equal(t, CommandRateConfig{Limit: 10, Interval: 3 * time.Second}, cfg.CommandRate)
	assert.Equal(t, []string{"stun:a:3478", "stun:b:3478"}, cfg.ICEServers)
}
