// Package pipeline runs one generation: collect the content window,
// build a disposable workspace for the generator subprocess, invoke it,
// parse its output, and persist the resulting article.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/google/uuid"

	. "github.com/roelfdiedericks/pail/internal/logging"
	"github.com/roelfdiedericks/pail/internal/perr"
	"github.com/roelfdiedericks/pail/internal/store"
)

// Config holds the engine-level settings the pipeline needs on every run.
type Config struct {
	WorkspaceRoot    string
	GeneratorBinary  string
	GeneratorArgs    []string
	GeneratorTimeout time.Duration
	PromptTemplate   string
	Timezone         string
}

// Pipeline runs generations for a single process lifetime.
type Pipeline struct {
	st  *store.Store
	cfg Config
}

// New builds a Pipeline backed by st.
func New(st *store.Store, cfg Config) *Pipeline {
	return &Pipeline{st: st, cfg: cfg}
}

// Run executes one generation for ch over [from, to). A nil return means
// the caller (scheduler) may advance last_generated; for scheduled runs
// an empty window still returns nil since phase 1 explicitly permits
// advancing the cursor on an empty result.
func (p *Pipeline) Run(ctx context.Context, ch *store.OutputChannel, from, to time.Time) error {
	err := p.runOnce(ctx, ch, from, to, false)
	if err == nil {
		return nil
	}
	if perr.Is(err, perr.KindCancelled) {
		return err
	}

	L_warn("pipeline: run failed, retrying once after delay", "channel", ch.URLSlug, "error", err)
	select {
	case <-time.After(30 * time.Second):
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := p.runOnce(ctx, ch, from, to, false); err != nil {
		return perr.New(perr.KindGenerationFatal, fmt.Errorf("channel %s: %w", ch.URLSlug, err))
	}
	return nil
}

// RunInteractive prepares the same workspace as Run, but launches the
// generator attached to the controlling terminal instead of capturing
// its output, and never persists an article. The workspace is always
// removed on return.
func (p *Pipeline) RunInteractive(ctx context.Context, ch *store.OutputChannel, from, to time.Time) error {
	sources, err := p.channelSources(ch)
	if err != nil {
		return perr.New(perr.KindStoreUnavailable, err)
	}
	items, err := p.st.ItemsInWindow(ch.SourceIDs, from, to)
	if err != nil {
		return perr.New(perr.KindStoreUnavailable, err)
	}

	runID := uuid.New().String()
	ws, _, err := prepareWorkspace(p.st, p.cfg.WorkspaceRoot, runID, ch, sources, items, p.cfg.PromptTemplate, p.cfg.Timezone, from, to, true)
	if err != nil {
		return perr.New(perr.KindGenerationTransient, fmt.Errorf("workspace: %w", err))
	}
	defer func() {
		if err := os.RemoveAll(ws.Root); err != nil {
			L_warn("pipeline: workspace cleanup failed", "path", ws.Root, "error", err)
		}
	}()

	cmd := exec.CommandContext(ctx, p.cfg.GeneratorBinary, p.cfg.GeneratorArgs...)
	cmd.Dir = ws.Root
	cmd.Env = append(os.Environ(), "OPENCODE_ENABLE_EXA=1")
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func (p *Pipeline) channelSources(ch *store.OutputChannel) ([]*store.Source, error) {
	all, err := p.st.ListSources()
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*store.Source, len(all))
	for _, s := range all {
		byID[s.ID] = s
	}
	sources := make([]*store.Source, 0, len(ch.SourceIDs))
	for _, id := range ch.SourceIDs {
		if s, ok := byID[id]; ok {
			sources = append(sources, s)
		}
	}
	return sources, nil
}

func (p *Pipeline) runOnce(ctx context.Context, ch *store.OutputChannel, from, to time.Time, interactive bool) error {
	items, err := p.st.ItemsInWindow(ch.SourceIDs, from, to)
	if err != nil {
		return perr.New(perr.KindStoreUnavailable, err)
	}
	L_info("pipeline: collected window", "channel", ch.URLSlug, "items", len(items), "from", from, "to", to)

	if len(items) == 0 {
		L_warn("pipeline: empty window, skipping generation", "channel", ch.URLSlug, "from", from, "to", to)
		return nil
	}

	sources, err := p.channelSources(ch)
	if err != nil {
		return perr.New(perr.KindStoreUnavailable, err)
	}

	runID := uuid.New().String()
	ws, renderedPrompt, err := prepareWorkspace(p.st, p.cfg.WorkspaceRoot, runID, ch, sources, items, p.cfg.PromptTemplate, p.cfg.Timezone, from, to, interactive)
	if err != nil {
		return perr.New(perr.KindGenerationTransient, fmt.Errorf("workspace: %w", err))
	}
	defer func() {
		if err := os.RemoveAll(ws.Root); err != nil {
			L_warn("pipeline: workspace cleanup failed", "path", ws.Root, "error", err)
		}
	}()

	timeout := p.cfg.GeneratorTimeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}

	args := make([]string, 0, len(p.cfg.GeneratorArgs)+3)
	args = append(args, p.cfg.GeneratorArgs...)
	args = append(args, renderedPrompt)
	if ch.Model != "" {
		args = append(args, "--model", ch.Model)
	}

	log, err := invokeGenerator(ctx, p.cfg.GeneratorBinary, args, ws.Root, timeout)
	if err != nil {
		return perr.New(perr.KindGenerationTransient, fmt.Errorf("generator: %w", err))
	}

	// Regardless of exit code, output.md is read: some generators exit
	// non-zero but still produce a valid digest.
	parsed, err := parseOutput(ws.OutputPath(), log)
	if err != nil {
		return perr.New(perr.KindGenerationTransient, fmt.Errorf("parse output: %w (log: %s)", err, truncate(log, 2000)))
	}

	itemIDs := make([]int64, len(items))
	for i, it := range items {
		itemIDs[i] = it.ID
	}

	article := &store.GeneratedArticle{
		ID:              runID,
		OutputChannelID: ch.ID,
		Title:           parsed.Title,
		Topics:          parsed.Topics,
		BodyMarkdown:    parsed.Markdown,
		HTMLBody:        parsed.HTML,
		ContentItemIDs:  itemIDs,
		GenerationLog:   log,
		ModelUsed:       parsed.ModelUsed,
		WindowStart:     &from,
		WindowEnd:       &to,
		GeneratedAt:     time.Now().UTC(),
	}
	if err := p.st.InsertArticle(article); err != nil {
		return perr.New(perr.KindStoreUnavailable, err)
	}

	L_info("pipeline: article persisted", "channel", ch.URLSlug, "article_id", article.ID, "model", article.ModelUsed)
	return nil
}
