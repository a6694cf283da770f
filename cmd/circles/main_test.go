package main

import (
	"bytes"
	"circles/domain"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConfig_FileThenEnvironment(t *testing.T) {
	req := require.New(t)
	path := filepath.Join(t.TempDir(), "config.toml")

	// Given a missing file, the defaults apply
	cfg, err := readConfig(path)
	req.NoError(err)
	req.Equal(defaultConfig(), cfg)

	// When values are set and saved
	req.NoError(setConfigValue(&cfg, "server_url", "https://chat.example.com/"))
	req.NoError(setConfigValue(&cfg, "user_id", "42"))
	req.NoError(setConfigValue(&cfg, "colours", "false"))
	req.NoError(writeConfig(path, cfg))

	// Then they read back
	cfg, err = readConfig(path)
	req.NoError(err)
	req.Equal("https://chat.example.com", cfg.ServerURL)
	req.Equal(int64(42), cfg.UserID)
	req.False(cfg.Colours)

	// And the environment wins over the file
	t.Setenv("CIRCLES_USER_ID", "7")
	t.Setenv("CIRCLES_COLOURS", "true")
	cfg, err = applyEnv(cfg)
	req.NoError(err)
	req.Equal(int64(7), cfg.UserID)
	req.True(cfg.Colours)
	req.Equal("https://chat.example.com", cfg.ServerURL)
}

func TestSetConfigValue_Rejections(t *testing.T) {
	req := require.New(t)
	cfg := defaultConfig()

	req.Error(setConfigValue(&cfg, "user_id", "abc"))
	req.Error(setConfigValue(&cfg, "colours", "maybe"))
	req.Error(setConfigValue(&cfg, "password", "x"))
}

func TestRenderConversations(t *testing.T) {
	req := require.New(t)
	var out bytes.Buffer

	renderConversations(&out, []domain.ConversationSummary{{
		ID:           3,
		Participants: []domain.User{{ID: 2, Username: "bob", Name: "Bob"}},
		LastMessage:  &domain.Message{Content: "see you tomorrow"},
		UnreadCount:  2,
		UpdatedAt:    time.Now(),
	}})

	req.Contains(out.String(), "Bob")
	req.Contains(out.String(), "see you tomorrow")
}

func TestPrinter_Message(t *testing.T) {
	req := require.New(t)
	var out bytes.Buffer
	p := newPrinter(&out, 1, false)

	p.message(domain.Message{SenderID: 1, Content: "hi"}, "failed")
	p.message(domain.Message{SenderID: 2, Content: "hello", Sender: &domain.User{Username: "bob"}}, "")

	req.Equal("[--:--] me: hi (failed)\n[--:--] bob: hello\n", out.String())
}
