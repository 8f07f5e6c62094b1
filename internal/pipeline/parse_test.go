package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeOutput(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "output.md")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestParseOutputWithFrontmatter(t *testing.T) {
	path := writeOutput(t, "---\ntitle: Weekly Roundup\nmodel: gpt-5\ntopics:\n  - ai\n  - policy\n---\n\n# Heading\n\nSome **bold** text.\n")
	out, err := parseOutput(path, "")
	require.NoError(t, err)
	require.Equal(t, "Weekly Roundup", out.Title)
	require.Equal(t, "gpt-5", out.ModelUsed)
	require.Equal(t, []string{"ai", "policy"}, out.Topics)
	require.Contains(t, out.HTML, "<strong>bold</strong>")
}

func TestParseOutputFallsBackToHeading(t *testing.T) {
	path := writeOutput(t, "# My Digest\n\nBody text.\n")
	out, err := parseOutput(path, "")
	require.NoError(t, err)
	require.Equal(t, "My Digest", out.Title)
}

func TestParseOutputFallsBackToUntitled(t *testing.T) {
	path := writeOutput(t, "Just some body text with no heading.\n")
	out, err := parseOutput(path, "")
	require.NoError(t, err)
	require.Equal(t, "Untitled Digest", out.Title)
}

func TestParseOutputAppendsShareLinkFromLog(t *testing.T) {
	path := writeOutput(t, "# My Digest\n\nBody text.\n")
	out, err := parseOutput(path, "some generator chatter\nshare this: https://share.example.com/s/abc123\nmore chatter")
	require.NoError(t, err)
	require.Contains(t, out.Markdown, "https://share.example.com/s/abc123")
	require.Contains(t, out.HTML, "https://share.example.com/s/abc123")
}

func TestParseOutputRejectsEmpty(t *testing.T) {
	path := writeOutput(t, "   \n")
	_, err := parseOutput(path, "")
	require.Error(t, err)
}
