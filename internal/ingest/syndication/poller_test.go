package syndication

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roelfdiedericks/pail/internal/store"
)

const sampleRSS = `<?xml version="1.0"?>
<rss version="2.0"><channel>
<item><guid>1</guid><title>Hello</title><link>https://example.com/1</link><description>World</description></item>
<item><guid>2</guid><title>Second</title><link>https://example.com/2</link><description>Body</description></item>
</channel></rss>`

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir() + "/pail.db")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPollInsertsNewItemsAndSkipsDuplicates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleRSS))
	}))
	defer srv.Close()

	st := openTestStore(t)
	srcID, err := st.UpsertSource(&store.Source{Name: "hn", Kind: "syndication", DisplayName: "HN", Enabled: true, URL: srv.URL, PollInterval: time.Minute, MaxItems: 200})
	require.NoError(t, err)
	src, err := st.GetSourceByName("hn")
	require.NoError(t, err)
	src.ID = srcID

	p := New(st)
	newN, changedN, err := p.Poll(context.Background(), src)
	require.NoError(t, err)
	require.Equal(t, 2, newN)
	require.Equal(t, 0, changedN)

	// Second poll of identical content: nothing new, nothing changed.
	newN, changedN, err = p.Poll(context.Background(), src)
	require.NoError(t, err)
	require.Equal(t, 0, newN)
	require.Equal(t, 0, changedN)
}

func TestPollMarksUpstreamChanged(t *testing.T) {
	body := sampleRSS
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	st := openTestStore(t)
	srcID, err := st.UpsertSource(&store.Source{Name: "hn", Kind: "syndication", DisplayName: "HN", Enabled: true, URL: srv.URL, PollInterval: time.Minute, MaxItems: 200})
	require.NoError(t, err)
	src, _ := st.GetSourceByName("hn")
	src.ID = srcID

	p := New(st)
	_, _, err = p.Poll(context.Background(), src)
	require.NoError(t, err)

	body = `<?xml version="1.0"?>
<rss version="2.0"><channel>
<item><guid>1</guid><title>Hello Updated</title><link>https://example.com/1</link><description>World</description></item>
</channel></rss>`

	_, changedN, err := p.Poll(context.Background(), src)
	require.NoError(t, err)
	require.Equal(t, 1, changedN)
}

func TestPollPermanentErrorOn404(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	st := openTestStore(t)
	srcID, err := st.UpsertSource(&store.Source{Name: "hn", Kind: "syndication", DisplayName: "HN", Enabled: true, URL: srv.URL, PollInterval: time.Minute, MaxItems: 200})
	require.NoError(t, err)
	src, _ := st.GetSourceByName("hn")
	src.ID = srcID

	p := New(st)
	_, _, err = p.Poll(context.Background(), src)
	require.Error(t, err)
}
