package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/roelfdiedericks/pail/internal/perr"
	"github.com/roelfdiedericks/pail/internal/schedule"
)

var (
	displayNameRe = regexp.MustCompile(`^[A-Za-z0-9 _-]+$`)
	slugRe        = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)
	hasAlnumRe    = regexp.MustCompile(`[A-Za-z0-9]`)
	controlCharRe = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)
)

const editorialToken = "{editorial_directive}"

// Validate checks every §4.1 rule against cfg. It never mutates cfg; the
// first violation aborts with a field-pointing error.
func Validate(cfg *Config) error {
	if _, err := time.LoadLocation(cfg.Engine.Timezone); err != nil {
		return perr.Field("engine.timezone", fmt.Errorf("unknown timezone %q: %w", cfg.Engine.Timezone, err))
	}
	tz, _ := time.LoadLocation(cfg.Engine.Timezone)

	if _, err := ParseDuration(cfg.Engine.MinPollInterval); err != nil {
		return perr.Field("engine.min_poll_interval", err)
	}
	if _, err := ParseDuration(cfg.Engine.GeneratorTimeout); err != nil {
		return perr.Field("engine.generator_timeout", err)
	}
	if _, err := ParseDuration(cfg.Engine.RetentionTTL); err != nil {
		return perr.Field("engine.retention_ttl", err)
	}
	if _, err := ParseDuration(cfg.Engine.SweepInterval); err != nil {
		return perr.Field("engine.sweep_interval", err)
	}
	if cfg.Engine.MaxConcurrentGenerate < 1 {
		return perr.Field("engine.max_concurrent_generations", fmt.Errorf("must be >= 1"))
	}
	if strings.TrimSpace(cfg.Engine.PromptTemplate) != "" && !strings.Contains(cfg.Engine.PromptTemplate, editorialToken) {
		return perr.Field("engine.prompt_template", fmt.Errorf("must contain literal token %s", editorialToken))
	}

	names := map[string]bool{}
	for i, src := range cfg.Sources {
		field := fmt.Sprintf("sources[%d]", i)
		if src.Name == "" {
			return perr.Field(field+".name", fmt.Errorf("required"))
		}
		if names[src.Name] {
			return perr.Field(field+".name", fmt.Errorf("duplicate source name %q", src.Name))
		}
		names[src.Name] = true

		if err := validateDisplayName(src.DisplayName); err != nil {
			return perr.Field(field+".display_name", err)
		}
		if err := validateDescription(src.Description); err != nil {
			return perr.Field(field+".description", err)
		}

		switch src.Kind {
		case SourceKindSyndication:
			if src.URL == "" {
				return perr.Field(field+".url", fmt.Errorf("required for syndication sources"))
			}
			if _, err := ParseDuration(src.PollInterval); err != nil {
				return perr.Field(field+".poll_interval", err)
			}
			minPoll, _ := ParseDuration(cfg.Engine.MinPollInterval)
			poll, _ := ParseDuration(src.PollInterval)
			if poll < minPoll {
				return perr.Field(field+".poll_interval", fmt.Errorf("below engine.min_poll_interval (%s)", cfg.Engine.MinPollInterval))
			}
		case SourceKindChatChannel, SourceKindChatGroup, SourceKindChatFolder:
			if !cfg.Engine.ChatEnabled {
				return perr.Field(field+".kind", fmt.Errorf("chat source %q present but engine.chat_enabled is false", src.Name))
			}
			if src.Kind == SourceKindChatFolder && src.FolderName == "" {
				return perr.Field(field+".folder_name", fmt.Errorf("required for chat_folder sources"))
			}
			if src.Kind != SourceKindChatFolder && src.ChatPeerID == 0 && src.ChatUsername == "" {
				return perr.Field(field+".chat_peer_id", fmt.Errorf("chat_peer_id or chat_username required"))
			}
		default:
			return perr.Field(field+".kind", fmt.Errorf("unknown source kind %q", src.Kind))
		}
	}

	slugs := map[string]bool{}
	for i, ch := range cfg.Channels {
		field := fmt.Sprintf("channels[%d]", i)
		if ch.Name == "" {
			return perr.Field(field+".name", fmt.Errorf("required"))
		}
		if !slugRe.MatchString(ch.URLSlug) {
			return perr.Field(field+".url_slug", fmt.Errorf("must match %s", slugRe.String()))
		}
		if slugs[ch.URLSlug] {
			return perr.Field(field+".url_slug", fmt.Errorf("duplicate slug %q", ch.URLSlug))
		}
		slugs[ch.URLSlug] = true

		if strings.TrimSpace(ch.Prompt) == "" {
			return perr.Field(field+".prompt", fmt.Errorf("required"))
		}
		if len(ch.Sources) == 0 {
			return perr.Field(field+".sources", fmt.Errorf("must reference at least one source"))
		}
		for _, ref := range ch.Sources {
			if !names[ref] {
				return perr.Field(field+".sources", fmt.Errorf("references unknown source %q", ref))
			}
		}
		if _, err := schedule.Parse(ch.Schedule, tz); err != nil {
			return perr.Field(field+".schedule", err)
		}
	}

	return nil
}

func validateDisplayName(s string) error {
	if s == "" {
		return fmt.Errorf("required")
	}
	if !displayNameRe.MatchString(s) {
		return fmt.Errorf("must match %s", displayNameRe.String())
	}
	if !hasAlnumRe.MatchString(s) {
		return fmt.Errorf("must contain at least one alphanumeric character")
	}
	return nil
}

func validateDescription(s string) error {
	if controlCharRe.MatchString(s) {
		return fmt.Errorf("contains control characters")
	}
	if strings.ContainsAny(s, "\"\\") {
		return fmt.Errorf("must not contain quote or backslash characters")
	}
	return nil
}
