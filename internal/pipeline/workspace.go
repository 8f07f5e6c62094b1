package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roelfdiedericks/pail/internal/sandbox"
	"github.com/roelfdiedericks/pail/internal/store"
)

// Workspace is the disposable directory tree built for one generator
// subprocess invocation.
type Workspace struct {
	Root string
}

// OutputPath is where the generator is expected to have written its
// result by the time it exits.
func (w *Workspace) OutputPath() string {
	return filepath.Join(w.Root, "output.md")
}

// manifest is the machine-readable description of a run, written as
// manifest.json (§6.3).
type manifest struct {
	Channel  manifestChannel  `json:"channel"`
	Window   manifestWindow   `json:"window"`
	Timezone string           `json:"timezone"`
	Sources  []manifestSource `json:"sources"`
}

type manifestChannel struct {
	Name     string  `json:"name"`
	Slug     string  `json:"slug"`
	Language *string `json:"language"`
}

type manifestWindow struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type manifestSource struct {
	Slug      string `json:"slug"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	ItemCount int    `json:"item_count"`
}

// sourceFrontmatter is the YAML header written at the top of each
// sources/<slug>.md file (§4.5 Phase 2).
type sourceFrontmatter struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	ItemCount   int    `yaml:"item_count"`
	Description string `yaml:"description"`
}

// fileSource is one resolved sources/<slug>.md file's worth of content.
// A non-folder Source produces exactly one; a chat_folder Source is
// split into one fileSource per currently-known child channel, since the
// generator attributes content via each file's own frontmatter and a
// folder label would erase per-channel attribution.
type fileSource struct {
	name        string
	kind        string
	description string
	items       []*store.ContentItem
}

// prepareWorkspace creates <root>/<run_id>/ containing manifest.json,
// prompt.md (the rendered prompt, workspace-context block prepended),
// an empty output.md for the generator to overwrite, and one
// sources/<slug>.md per resolved file source. In interactive mode it
// also writes an AGENTS.md discovery file (workspace-context block only,
// omitting the output.md bullet, since the interactive UI is not told
// the prompt directly).
func prepareWorkspace(st *store.Store, root, runID string, ch *store.OutputChannel, sources []*store.Source, items []*store.ContentItem, promptTemplate, timezone string, from, to time.Time, interactive bool) (*Workspace, string, error) {
	wsRoot := filepath.Join(root, runID)
	if err := os.MkdirAll(filepath.Join(wsRoot, "sources"), 0750); err != nil {
		return nil, "", err
	}
	ws := &Workspace{Root: wsRoot}

	itemsBySource := map[int64][]*store.ContentItem{}
	for _, it := range items {
		itemsBySource[it.SourceID] = append(itemsBySource[it.SourceID], it)
	}

	fileSources, err := resolveFileSources(st, sources, itemsBySource)
	if err != nil {
		return nil, "", err
	}

	var manSources []manifestSource
	seenSlugs := map[string]int{}
	for _, fs := range fileSources {
		slug := slugify(fs.name)
		if n := seenSlugs[slug]; n > 0 {
			slug = fmt.Sprintf("%s-%d", slug, n+1)
		}
		seenSlugs[slug]++

		fm := sourceFrontmatter{
			Name:        fs.name,
			Type:        fs.kind,
			ItemCount:   len(fs.items),
			Description: fs.description,
		}
		fmBytes, err := yaml.Marshal(fm)
		if err != nil {
			return nil, "", err
		}

		var body strings.Builder
		body.WriteString("---\n")
		body.Write(fmBytes)
		body.WriteString("---\n\n")
		for i, it := range fs.items {
			if i > 0 {
				body.WriteString("---\n")
			}
			body.WriteString(renderItem(it))
		}

		path := filepath.Join(wsRoot, "sources", slug+".md")
		if err := sandbox.AtomicWriteFile(path, []byte(body.String()), 0640); err != nil {
			return nil, "", err
		}

		manSources = append(manSources, manifestSource{
			Slug:      slug,
			Name:      fs.name,
			Type:      fs.kind,
			ItemCount: len(fs.items),
		})
	}

	var language *string
	if ch.Language != "" {
		language = &ch.Language
	}
	man := manifest{
		Channel: manifestChannel{Name: ch.Name, Slug: ch.URLSlug, Language: language},
		Window: manifestWindow{
			From: from.UTC().Format(time.RFC3339),
			To:   to.UTC().Format(time.RFC3339),
		},
		Timezone: timezone,
		Sources:  manSources,
	}
	manBytes, err := json.MarshalIndent(man, "", "  ")
	if err != nil {
		return nil, "", err
	}
	if err := sandbox.AtomicWriteFile(filepath.Join(wsRoot, "manifest.json"), manBytes, 0640); err != nil {
		return nil, "", err
	}

	directive := strings.ReplaceAll(promptTemplate, editorialDirectiveToken, ch.Prompt)
	if directive == "" {
		directive = ch.Prompt
	}
	renderedPrompt := workspaceContextBlock(true) + "\n" + directive
	if err := sandbox.AtomicWriteFile(filepath.Join(wsRoot, "prompt.md"), []byte(renderedPrompt), 0640); err != nil {
		return nil, "", err
	}

	if err := sandbox.AtomicWriteFile(ws.OutputPath(), nil, 0640); err != nil {
		return nil, "", err
	}

	if interactive {
		agents := workspaceContextBlock(false)
		if err := sandbox.AtomicWriteFile(filepath.Join(wsRoot, "AGENTS.md"), []byte(agents), 0640); err != nil {
			return nil, "", err
		}
	}

	return ws, renderedPrompt, nil
}

const editorialDirectiveToken = "{editorial_directive}"

// workspaceContextBlock is the code-generated description of the
// workspace layout, prepended to the rendered prompt (and, in
// interactive mode, also written standalone to AGENTS.md with the
// output.md bullet omitted since there the generator discovers it
// itself rather than being told in the prompt).
func workspaceContextBlock(includeOutputBullet bool) string {
	var b strings.Builder
	b.WriteString("# Workspace\n\n")
	b.WriteString("- `manifest.json` — channel, window, timezone, and per-source item counts for this run.\n")
	b.WriteString("- `sources/*.md` — one file per source, YAML frontmatter (`name`, `type`, `item_count`, `description`) followed by that source's items, each separated by a `---` line.\n")
	if includeOutputBullet {
		b.WriteString("- `output.md` — write the finished digest here: YAML frontmatter with `title` and `topics`, then the markdown body.\n")
	}
	return b.String()
}

// resolveFileSources expands sources into the files actually written to
// sources/, splitting each chat_folder Source into one entry per
// currently-known child channel.
func resolveFileSources(st *store.Store, sources []*store.Source, itemsBySource map[int64][]*store.ContentItem) ([]fileSource, error) {
	var out []fileSource
	for _, src := range sources {
		if src.Kind != "chat_folder" {
			out = append(out, fileSource{
				name:        src.DisplayName,
				kind:        sourceType(src.Kind),
				description: src.Description,
				items:       itemsBySource[src.ID],
			})
			continue
		}

		children, err := st.ListFolderChannels(src.FolderName)
		if err != nil {
			return nil, fmt.Errorf("resolve folder %q: %w", src.FolderName, err)
		}

		byAuthor := map[string][]*store.ContentItem{}
		for _, it := range itemsBySource[src.ID] {
			byAuthor[it.Author] = append(byAuthor[it.Author], it)
		}

		for _, child := range children {
			key := strconv.FormatInt(child.ChannelPeerID, 10)
			name := child.ChannelUsername
			if name == "" {
				name = fmt.Sprintf("channel-%d", child.ChannelPeerID)
			}
			out = append(out, fileSource{
				name:        name,
				kind:        "telegram_channel",
				description: src.Description,
				items:       byAuthor[key],
			})
			delete(byAuthor, key)
		}

		// Any remaining items came from a peer no longer (or not yet)
		// reflected in tg_folder_channels; still surface them rather than
		// silently dropping content from the window.
		var leftoverKeys []string
		for key := range byAuthor {
			leftoverKeys = append(leftoverKeys, key)
		}
		sort.Strings(leftoverKeys)
		for _, key := range leftoverKeys {
			out = append(out, fileSource{
				name:        fmt.Sprintf("channel-%s", key),
				kind:        "telegram_channel",
				description: src.Description,
				items:       byAuthor[key],
			})
		}
	}
	return out, nil
}

func sourceType(kind string) string {
	switch kind {
	case "syndication":
		return "rss"
	case "chat_channel":
		return "telegram_channel"
	case "chat_group":
		return "telegram_group"
	default:
		return kind
	}
}

func renderItem(it *store.ContentItem) string {
	var b strings.Builder
	if it.Title != "" {
		fmt.Fprintf(&b, "## %s\n\n", it.Title)
	} else {
		b.WriteString("## (untitled)\n\n")
	}
	if it.URL != "" {
		fmt.Fprintf(&b, "%s\n\n", it.URL)
	}
	if it.OriginalDate != nil {
		fmt.Fprintf(&b, "_%s_\n\n", it.OriginalDate.Format(time.RFC3339))
	}
	b.WriteString(it.Body)
	b.WriteString("\n\n")
	return b.String()
}

func slugify(s string) string {
	s = strings.ToLower(s)
	var b strings.Builder
	lastDash := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}
