// Package config loads and validates pail.toml: the set of content
// sources to ingest, the output channels that turn ingested content into
// generated articles, and the engine-wide settings that govern polling,
// generation concurrency, and retention.
package config

import (
	"os"

	"dario.cat/mergo"
	"github.com/BurntSushi/toml"
)

// SourceKind identifies what a Source ingests from.
type SourceKind string

const (
	SourceKindSyndication SourceKind = "syndication"
	SourceKindChatChannel SourceKind = "chat_channel"
	SourceKindChatGroup   SourceKind = "chat_group"
	SourceKindChatFolder  SourceKind = "chat_folder"
)

// Source is one content origin: an RSS/Atom feed, or a Telegram channel,
// group, or folder (a folder fans out to all channels currently in it).
type Source struct {
	Name        string     `toml:"name"`
	Kind        SourceKind `toml:"kind"`
	DisplayName string     `toml:"display_name"`
	Enabled     bool       `toml:"enabled"`
	Description string     `toml:"description"`

	// Syndication fields.
	URL          string `toml:"url"`
	PollInterval string `toml:"poll_interval"`
	MaxItems     int    `toml:"max_items"`
	AuthHeader   string `toml:"auth_header"`
	AuthValue    string `toml:"auth_value"`

	// Chat fields.
	ChatPeerID  int64  `toml:"chat_peer_id"`
	ChatUsername string `toml:"chat_username"`
	FolderName  string `toml:"folder_name"`

	Exclude []string `toml:"exclude"`
}

// OutputChannel turns a window of content from its Sources into a
// generated article, on its own Schedule, served as its own Atom feed.
type OutputChannel struct {
	Name          string   `toml:"name"`
	URLSlug       string   `toml:"url_slug"`
	Enabled       bool     `toml:"enabled"`
	Schedule      string   `toml:"schedule"`
	Prompt        string   `toml:"prompt"`
	Model         string   `toml:"model"`
	Language      string   `toml:"language"`
	Sources       []string `toml:"sources"`
	LastGenerated string   `toml:"-"` // populated from the store, not config
}

// Engine holds the global, non-per-source/channel daemon settings.
type Engine struct {
	DataDir               string `toml:"data_dir"`
	MinPollInterval       string `toml:"min_poll_interval"`
	DefaultMaxItems       int    `toml:"default_max_items"`
	MaxConcurrentGenerate int    `toml:"max_concurrent_generations"`
	GeneratorBinary       string `toml:"generator_binary"`
	GeneratorTimeout      string `toml:"generator_timeout"`
	PromptTemplate        string `toml:"prompt_template"`
	RetentionTTL          string `toml:"retention_ttl"`
	SweepInterval         string `toml:"sweep_interval"`
	Timezone              string `toml:"timezone"`
	ChatEnabled           bool   `toml:"chat_enabled"`
	TgAppID               int    `toml:"tg_app_id"`
	TgAppHash             string `toml:"tg_app_hash"`
	FeedToken             string `toml:"feed_token"`
	FeedListenAddr        string `toml:"feed_listen_addr"`
	RateLimitPerMinute    int    `toml:"rate_limit_per_minute"`
}

// Config is the fully parsed pail.toml.
type Config struct {
	Engine   Engine          `toml:"engine"`
	Sources  []Source        `toml:"sources"`
	Channels []OutputChannel `toml:"channels"`
}

// Defaults returns the baseline Engine values merged into any config that
// omits them.
func Defaults() Engine {
	return Engine{
		DataDir:               "./data",
		MinPollInterval:       "5m",
		DefaultMaxItems:       200,
		MaxConcurrentGenerate: 2,
		GeneratorBinary:       "opencode",
		GeneratorTimeout:      "10m",
		RetentionTTL:          "7d",
		SweepInterval:         "1h",
		Timezone:              "UTC",
		RateLimitPerMinute:    60,
	}
}

// Load reads and parses path, merges engine defaults, and validates the
// result. A non-nil error means startup must abort without mutating
// anything on disk or in the store.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	defaults := Defaults()
	if err := mergo.Merge(&cfg.Engine, defaults); err != nil {
		return nil, err
	}

	for i := range cfg.Sources {
		if cfg.Sources[i].MaxItems == 0 {
			cfg.Sources[i].MaxItems = cfg.Engine.DefaultMaxItems
		}
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
