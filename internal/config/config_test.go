package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "pail.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

const minimalValid = `
[engine]
chat_enabled = false
prompt_template = "Write a digest. {editorial_directive}"

[[sources]]
name = "hn"
kind = "syndication"
display_name = "Hacker News"
enabled = true
url = "https://news.ycombinator.com/rss"
poll_interval = "10m"

[[channels]]
name = "Daily Digest"
url_slug = "daily-digest"
enabled = true
schedule = "at:07:00"
prompt = "Summarize the tech news."
sources = ["hn"]
`

func TestLoadValid(t *testing.T) {
	path := writeConfig(t, minimalValid)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Sources, 1)
	require.Equal(t, 200, cfg.Sources[0].MaxItems)
}

func TestLoadRejectsChatSourceWhenChatDisabled(t *testing.T) {
	path := writeConfig(t, minimalValid+`
[[sources]]
name = "tgchan"
kind = "chat_channel"
display_name = "Some Channel"
enabled = true
chat_username = "somechannel"
`)
	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "chat_enabled")
}

func TestLoadRejectsUnknownSourceReference(t *testing.T) {
	body := `
[engine]
chat_enabled = false

[[sources]]
name = "hn"
kind = "syndication"
display_name = "Hacker News"
enabled = true
url = "https://news.ycombinator.com/rss"
poll_interval = "10m"

[[channels]]
name = "Daily Digest"
url_slug = "daily-digest"
enabled = true
schedule = "at:07:00"
prompt = "Summarize."
sources = ["does-not-exist"]
`
	path := writeConfig(t, body)
	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown source")
}

func TestLoadRejectsBadSlug(t *testing.T) {
	body := `
[engine]
chat_enabled = false

[[sources]]
name = "hn"
kind = "syndication"
display_name = "Hacker News"
enabled = true
url = "https://news.ycombinator.com/rss"
poll_interval = "10m"

[[channels]]
name = "Daily Digest"
url_slug = "Daily_Digest"
enabled = true
schedule = "at:07:00"
prompt = "Summarize."
sources = ["hn"]
`
	path := writeConfig(t, body)
	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "url_slug")
}

func TestParseDurationDayWeek(t *testing.T) {
	d, err := ParseDuration("7d")
	require.NoError(t, err)
	require.Equal(t, 7*24*60*60*1e9, float64(d))

	d, err = ParseDuration("2w")
	require.NoError(t, err)
	require.Equal(t, 14*24*60*60*1e9, float64(d))

	_, err = ParseDuration("not-a-duration")
	require.Error(t, err)
}
