// Command pail is a self-hosted daemon that ingests RSS/Atom feeds and
// Telegram chat streams, periodically hands a window of that content to
// an external LLM-agent CLI, and serves the result as an authenticated
// Atom feed.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/roelfdiedericks/pail/internal/config"
	"github.com/roelfdiedericks/pail/internal/feed"
	"github.com/roelfdiedericks/pail/internal/ingest/chat"
	"github.com/roelfdiedericks/pail/internal/ingest/syndication"
	. "github.com/roelfdiedericks/pail/internal/logging"
	"github.com/roelfdiedericks/pail/internal/perr"
	"github.com/roelfdiedericks/pail/internal/pipeline"
	"github.com/roelfdiedericks/pail/internal/reconcile"
	"github.com/roelfdiedericks/pail/internal/retention"
	"github.com/roelfdiedericks/pail/internal/scheduler"
	"github.com/roelfdiedericks/pail/internal/store"
)

type cli struct {
	Config string `help:"Path to pail.toml." default:"pail.toml" short:"c"`

	Run         runCmd         `cmd:"" default:"1" help:"Run the daemon (ingest, schedule, serve)."`
	Validate    validateCmd    `cmd:"" help:"Validate the config and exit."`
	Generate    generateCmd    `cmd:"" help:"Run one generation for a channel immediately."`
	Interactive interactiveCmd `cmd:"" help:"Run one generation with output printed instead of persisted."`
	Tg          tgCmd          `cmd:"" help:"Telegram session management."`
}

type runCmd struct{}

type validateCmd struct{}

type generateCmd struct {
	Slug   string `arg:"" help:"Output channel url_slug."`
	Since  string `help:"RFC3339 window start; overrides the channel's last_generated cursor."`
	From   string `help:"RFC3339 window start, used with --to."`
	To     string `help:"RFC3339 window end, used with --from."`
	Output string `help:"Also write the generated article's markdown to this path."`
}

type interactiveCmd struct {
	Slug string `arg:"" help:"Output channel url_slug."`
}

type tgCmd struct {
	Login  tgLoginCmd  `cmd:"" help:"Report an existing Telegram session, or start the chat connection loop when none exists (no login prompt)."`
	Status tgStatusCmd `cmd:"" help:"Report whether a Telegram session exists."`
}

type tgLoginCmd struct{}
type tgStatusCmd struct{}

func main() {
	var c cli
	k := kong.Parse(&c, kong.Name("pail"), kong.Description("RSS/chat digest daemon"))

	cfg, err := config.Load(c.Config)
	if err != nil {
		L_error("config invalid", "error", err)
		os.Exit(2)
	}
	Init(nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cmdErr error
	switch k.Command() {
	case "validate":
		L_info("config valid")
		return
	case "run":
		cmdErr = runDaemon(ctx, cfg)
	case "generate <slug>":
		cmdErr = runGenerateOnce(ctx, cfg, &c.Generate)
	case "interactive <slug>":
		cmdErr = runInteractiveOnce(ctx, cfg, c.Interactive.Slug)
	case "tg login":
		cmdErr = runTgLogin(ctx, cfg)
	case "tg status":
		cmdErr = runTgStatus(ctx, cfg)
	default:
		cmdErr = fmt.Errorf("unknown command %q", k.Command())
	}

	if cmdErr != nil {
		L_error("command failed", "error", cmdErr)
		if perr.Is(cmdErr, perr.KindConfigInvalid) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func openStore(cfg *config.Config) (*store.Store, error) {
	if err := os.MkdirAll(cfg.Engine.DataDir, 0750); err != nil {
		return nil, err
	}
	return store.Open(cfg.Engine.DataDir + "/pail.db")
}

func runDaemon(ctx context.Context, cfg *config.Config) error {
	st, err := openStore(cfg)
	if err != nil {
		return perr.New(perr.KindStoreUnavailable, err)
	}
	defer st.Close()

	if err := reconcile.Apply(st, cfg); err != nil {
		return err
	}

	tz, err := time.LoadLocation(cfg.Engine.Timezone)
	if err != nil {
		tz = time.UTC
	}

	genTimeout, _ := config.ParseDuration(cfg.Engine.GeneratorTimeout)
	pl := pipeline.New(st, pipeline.Config{
		WorkspaceRoot:    cfg.Engine.DataDir + "/workspaces",
		GeneratorBinary:  cfg.Engine.GeneratorBinary,
		GeneratorTimeout: genTimeout,
		PromptTemplate:   cfg.Engine.PromptTemplate,
		Timezone:         cfg.Engine.Timezone,
	})

	sched := scheduler.New(st, tz, cfg.Engine.MaxConcurrentGenerate, pl.Run)

	feedSrv, err := feed.New(st, feed.Config{
		ListenAddr:      cfg.Engine.FeedListenAddr,
		Token:           cfg.Engine.FeedToken,
		RateLimitPerMin: cfg.Engine.RateLimitPerMinute,
	})
	if err != nil {
		return err
	}

	retentionTTL, _ := config.ParseDuration(cfg.Engine.RetentionTTL)
	sweepInterval, _ := config.ParseDuration(cfg.Engine.SweepInterval)

	poller := syndication.New(st)
	minPoll, _ := config.ParseDuration(cfg.Engine.MinPollInterval)

	errCh := make(chan error, 8)
	sweeper := retention.New(st, retentionTTL, sweepInterval)

	go func() { errCh <- sched.Run(ctx) }()
	go func() { errCh <- feedSrv.Run(ctx) }()
	go func() { errCh <- sweeper.Run(ctx) }()
	go func() { errCh <- runSyndicationPolling(ctx, st, poller, minPoll) }()

	if cfg.Engine.ChatEnabled {
		listener := chat.New(st, chat.Config{AppID: cfg.Engine.TgAppID, AppHash: cfg.Engine.TgAppHash})
		has, err := listener.HasSession(ctx)
		if err != nil {
			return perr.New(perr.KindStoreUnavailable, err)
		}
		if has {
			go func() { errCh <- listener.Run(ctx) }()
		} else {
			L_error("chat: no Telegram session, chat sources are disabled until `pail tg login`")
		}
	}

	select {
	case <-ctx.Done():
		SetShuttingDown()
		L_info("shutting down")
		return nil
	case err := <-errCh:
		return err
	}
}

func runSyndicationPolling(ctx context.Context, st *store.Store, poller *syndication.Poller, minInterval time.Duration) error {
	ticker := time.NewTicker(minInterval)
	defer ticker.Stop()

	for {
		sources, err := st.ListSources()
		if err != nil {
			L_error("polling: list sources failed", "error", err)
		} else {
			for _, src := range sources {
				if !src.Enabled || src.Kind != "syndication" {
					continue
				}
				if src.LastFetchedAt != nil && time.Since(*src.LastFetchedAt) < src.PollInterval {
					continue
				}
				newN, changedN, err := poller.Poll(ctx, src)
				if err != nil {
					L_warn("polling: source poll failed", "source", src.Name, "error", err)
					continue
				}
				if newN+changedN > 0 {
					L_info("polling: source ingested", "source", src.Name, "new", newN, "changed", changedN)
				}
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func runGenerateOnce(ctx context.Context, cfg *config.Config, args *generateCmd) error {
	st, err := openStore(cfg)
	if err != nil {
		return perr.New(perr.KindStoreUnavailable, err)
	}
	defer st.Close()

	ch, err := st.GetChannelBySlug(args.Slug)
	if err != nil {
		return fmt.Errorf("unknown channel %q", args.Slug)
	}

	from, to, err := resolveWindow(ch, args)
	if err != nil {
		return err
	}

	genTimeout, _ := config.ParseDuration(cfg.Engine.GeneratorTimeout)
	pl := pipeline.New(st, pipeline.Config{
		WorkspaceRoot:    cfg.Engine.DataDir + "/workspaces",
		GeneratorBinary:  cfg.Engine.GeneratorBinary,
		GeneratorTimeout: genTimeout,
		PromptTemplate:   cfg.Engine.PromptTemplate,
		Timezone:         cfg.Engine.Timezone,
	})

	// Manual and override runs never advance last_generated; only the
	// scheduler's own successful scheduled ticks do that.
	start := time.Now().UTC().Truncate(time.Second)
	if err := pl.Run(ctx, ch, from, to); err != nil {
		return err
	}
	if args.Output == "" {
		return nil
	}
	recent, err := st.RecentArticles(ch.ID, 1)
	if err != nil {
		return perr.New(perr.KindStoreUnavailable, err)
	}
	if len(recent) == 0 || recent[0].GeneratedAt.Before(start) {
		L_warn("generate: no article produced, nothing written", "output", args.Output)
		return nil
	}
	return os.WriteFile(args.Output, []byte(recent[0].BodyMarkdown), 0644)
}

func runInteractiveOnce(ctx context.Context, cfg *config.Config, slug string) error {
	st, err := openStore(cfg)
	if err != nil {
		return perr.New(perr.KindStoreUnavailable, err)
	}
	defer st.Close()

	ch, err := st.GetChannelBySlug(slug)
	if err != nil {
		return fmt.Errorf("unknown channel %q", slug)
	}

	from, to, err := resolveWindow(ch, &generateCmd{Slug: slug})
	if err != nil {
		return err
	}

	genTimeout, _ := config.ParseDuration(cfg.Engine.GeneratorTimeout)
	pl := pipeline.New(st, pipeline.Config{
		WorkspaceRoot:    cfg.Engine.DataDir + "/workspaces",
		GeneratorBinary:  cfg.Engine.GeneratorBinary,
		GeneratorTimeout: genTimeout,
		PromptTemplate:   cfg.Engine.PromptTemplate,
		Timezone:         cfg.Engine.Timezone,
	})

	return pl.RunInteractive(ctx, ch, from, to)
}

func resolveWindow(ch *store.OutputChannel, args *generateCmd) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	if args.From != "" && args.To != "" {
		from, err := time.Parse(time.RFC3339, args.From)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("--from: %w", err)
		}
		to, err := time.Parse(time.RFC3339, args.To)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("--to: %w", err)
		}
		return from, to, nil
	}
	if args.Since != "" {
		from, err := time.Parse(time.RFC3339, args.Since)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("--since: %w", err)
		}
		return from, now, nil
	}
	if ch.LastGenerated != nil {
		return *ch.LastGenerated, now, nil
	}
	return now.Add(-7 * 24 * time.Hour), now, nil
}

func runTgLogin(ctx context.Context, cfg *config.Config) error {
	st, err := openStore(cfg)
	if err != nil {
		return perr.New(perr.KindStoreUnavailable, err)
	}
	defer st.Close()

	listener := chat.New(st, chat.Config{AppID: cfg.Engine.TgAppID, AppHash: cfg.Engine.TgAppHash})
	has, err := listener.HasSession(ctx)
	if err != nil {
		return err
	}
	if has {
		fmt.Println("a Telegram session already exists; delete it from the store to re-login")
		return nil
	}
	fmt.Println("no Telegram session found; this command has no login prompt and only starts the chat connection loop")
	return listener.Run(ctx)
}

func runTgStatus(ctx context.Context, cfg *config.Config) error {
	st, err := openStore(cfg)
	if err != nil {
		return perr.New(perr.KindStoreUnavailable, err)
	}
	defer st.Close()

	listener := chat.New(st, chat.Config{AppID: cfg.Engine.TgAppID, AppHash: cfg.Engine.TgAppHash})
	has, err := listener.HasSession(ctx)
	if err != nil {
		return err
	}
	if has {
		fmt.Println("session: present")
	} else {
		fmt.Println("session: missing (chat sources are disabled until `pail tg login`)")
	}
	return nil
}
