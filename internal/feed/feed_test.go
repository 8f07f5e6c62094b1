package feed

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roelfdiedericks/pail/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir() + "/pail.db")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestConstantTimeEqual(t *testing.T) {
	require.True(t, constantTimeEqual("abc", "abc"))
	require.False(t, constantTimeEqual("abc", "abd"))
	require.False(t, constantTimeEqual("abc", "ab"))
}

func TestServerServesFeedWithValidTokenOnly(t *testing.T) {
	st := openTestStore(t)
	srcID, err := st.UpsertSource(&store.Source{Name: "s", Kind: "syndication", DisplayName: "S", Enabled: true, URL: "u", PollInterval: time.Minute})
	require.NoError(t, err)
	_, err = st.UpsertChannel(&store.OutputChannel{Name: "Digest", URLSlug: "digest", Enabled: true, Schedule: "at:00:00", Prompt: "p"}, []int64{srcID})
	require.NoError(t, err)
	ch, err := st.GetChannelBySlug("digest")
	require.NoError(t, err)
	require.NoError(t, st.InsertArticle(&store.GeneratedArticle{
		ID:              "a1",
		OutputChannelID: ch.ID,
		Title:           "T",
		Topics:          []string{"golang", "security"},
		HTMLBody:        "<p>hi</p>",
		GeneratedAt:     time.Now().UTC(),
	}))

	srv, err := New(st, Config{ListenAddr: ":0", Token: "secret-token", RateLimitPerMin: 100, PublicBaseURL: "http://localhost"})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.server.Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/feed/digest.atom")
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/feed/digest.atom", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	req.Header.Set("X-Forwarded-Proto", "https")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	doc := string(body)
	require.Contains(t, doc, "<id>urn:uuid:a1</id>")
	require.Contains(t, doc, `<category term="golang">`)
	require.Contains(t, doc, `<category term="security">`)
	require.Contains(t, doc, "<subtitle>Digest</subtitle>")
	// self link is derived from the request's Host + X-Forwarded-Proto,
	// not from the configured PublicBaseURL.
	selfHost := strings.TrimPrefix(ts.URL, "http://")
	require.Contains(t, doc, `rel="self"`)
	require.Contains(t, doc, "https://"+selfHost+"/feed/digest.atom")
	require.NotContains(t, doc, "localhost/feed/digest.atom")
}

func TestServerArticlePermalinkUnauthenticated(t *testing.T) {
	st := openTestStore(t)
	srcID, _ := st.UpsertSource(&store.Source{Name: "s", Kind: "syndication", DisplayName: "S", Enabled: true, URL: "u", PollInterval: time.Minute})
	_, _ = st.UpsertChannel(&store.OutputChannel{Name: "Digest", URLSlug: "digest", Enabled: true, Schedule: "at:00:00", Prompt: "p"}, []int64{srcID})
	ch, _ := st.GetChannelBySlug("digest")
	require.NoError(t, st.InsertArticle(&store.GeneratedArticle{ID: "a1", OutputChannelID: ch.ID, Title: "T", HTMLBody: "<p>hi</p>", GeneratedAt: time.Now().UTC()}))

	srv, err := New(st, Config{ListenAddr: ":0", Token: "secret-token", RateLimitPerMin: 100, PublicBaseURL: "http://localhost"})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.server.Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/article/a1")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestBootstrapTokenPersists(t *testing.T) {
	st := openTestStore(t)
	tok1, err := loadOrBootstrapToken(st, "")
	require.NoError(t, err)
	require.NotEmpty(t, tok1)

	tok2, err := loadOrBootstrapToken(st, "")
	require.NoError(t, err)
	require.Equal(t, tok1, tok2)
}
