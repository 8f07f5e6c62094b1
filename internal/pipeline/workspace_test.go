package pipeline

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roelfdiedericks/pail/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(t.TempDir() + "/pail.db")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestPrepareWorkspaceWritesManifestAndSources(t *testing.T) {
	st := openTestStore(t)
	root := t.TempDir()
	ch := &store.OutputChannel{Name: "Digest", URLSlug: "digest", Prompt: "Be concise.", Language: "en"}
	sources := []*store.Source{{ID: 1, Name: "hn", DisplayName: "Hacker News", Kind: "syndication"}}
	now := time.Now().UTC()
	from := now.Add(-24 * time.Hour)
	items := []*store.ContentItem{
		{SourceID: 1, Title: "Item One", URL: "https://example.com/1", Body: "body one", OriginalDate: &now},
	}

	ws, prompt, err := prepareWorkspace(st, root, "run-1", ch, sources, items, "Digest this: {editorial_directive}", "UTC", from, now, false)
	require.NoError(t, err)
	require.Contains(t, prompt, "Digest this:")
	require.Contains(t, prompt, "manifest.json")

	manifestPath := filepath.Join(ws.Root, "manifest.json")
	manifestData, err := os.ReadFile(manifestPath)
	require.NoError(t, err)
	require.Contains(t, string(manifestData), `"slug": "digest"`)
	require.Contains(t, string(manifestData), `"timezone": "UTC"`)
	require.Contains(t, string(manifestData), `"type": "rss"`)

	promptData, err := os.ReadFile(filepath.Join(ws.Root, "prompt.md"))
	require.NoError(t, err)
	require.Contains(t, string(promptData), "Be concise.")

	sourceData, err := os.ReadFile(filepath.Join(ws.Root, "sources", "hacker-news.md"))
	require.NoError(t, err)
	require.Contains(t, string(sourceData), "Item One")
	require.Contains(t, string(sourceData), "name: Hacker News")

	require.FileExists(t, ws.OutputPath())
	require.NoFileExists(t, filepath.Join(ws.Root, "AGENTS.md"))
}

func TestPrepareWorkspaceInteractiveWritesAgentsFile(t *testing.T) {
	st := openTestStore(t)
	root := t.TempDir()
	ch := &store.OutputChannel{Name: "Digest", URLSlug: "digest", Prompt: "Be concise."}
	sources := []*store.Source{{ID: 1, Name: "hn", DisplayName: "Hacker News", Kind: "syndication"}}
	now := time.Now().UTC()

	ws, _, err := prepareWorkspace(st, root, "run-2", ch, sources, nil, "{editorial_directive}", "UTC", now.Add(-time.Hour), now, true)
	require.NoError(t, err)

	agentsData, err := os.ReadFile(filepath.Join(ws.Root, "AGENTS.md"))
	require.NoError(t, err)
	require.Contains(t, string(agentsData), "manifest.json")
	require.NotContains(t, string(agentsData), "output.md")
}

func TestPrepareWorkspaceSplitsFolderSourceByChildChannel(t *testing.T) {
	st := openTestStore(t)
	root := t.TempDir()
	ch := &store.OutputChannel{Name: "Digest", URLSlug: "digest", Prompt: "Be concise."}
	sources := []*store.Source{{ID: 1, Name: "news-folder", DisplayName: "News Folder", Kind: "chat_folder", FolderName: "News"}}
	require.NoError(t, st.SetFolderMembership("News", []*store.FolderChannel{
		{FolderName: "News", ChannelPeerID: 111, ChannelUsername: "channelone"},
		{FolderName: "News", ChannelPeerID: 222, ChannelUsername: "channeltwo"},
	}))
	now := time.Now().UTC()
	items := []*store.ContentItem{
		{SourceID: 1, Title: "From one", Author: "111", Body: "hello", OriginalDate: &now},
		{SourceID: 1, Title: "From two", Author: "222", Body: "world", OriginalDate: &now},
	}

	ws, _, err := prepareWorkspace(st, root, "run-3", ch, sources, items, "{editorial_directive}", "UTC", now.Add(-time.Hour), now, false)
	require.NoError(t, err)

	one, err := os.ReadFile(filepath.Join(ws.Root, "sources", "channelone.md"))
	require.NoError(t, err)
	require.Contains(t, string(one), "From one")
	require.NotContains(t, string(one), "From two")

	two, err := os.ReadFile(filepath.Join(ws.Root, "sources", "channeltwo.md"))
	require.NoError(t, err)
	require.Contains(t, string(two), "From two")

	manifestData, err := os.ReadFile(filepath.Join(ws.Root, "manifest.json"))
	require.NoError(t, err)
	require.Contains(t, string(manifestData), "channelone")
	require.Contains(t, string(manifestData), "channeltwo")
}

func TestSlugify(t *testing.T) {
	require.Equal(t, "hacker-news", slugify("Hacker News!"))
	require.Equal(t, "a-b-c", slugify("a_b__c"))
}
