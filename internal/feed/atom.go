package feed

import (
	"encoding/xml"
	"fmt"
	"time"

	"github.com/roelfdiedericks/pail/internal/store"
)

// gorilla/feeds has no way to emit per-entry <category> elements, so the
// Atom document here is built by hand with encoding/xml, the same way
// syndication.Parse reads one on the ingest side.

type atomDocument struct {
	XMLName  xml.Name    `xml:"http://www.w3.org/2005/Atom feed"`
	Title    string      `xml:"title"`
	Subtitle string      `xml:"subtitle,omitempty"`
	ID       string      `xml:"id"`
	Updated  string      `xml:"updated"`
	Links    []atomLink  `xml:"link"`
	Entries  []atomEntry `xml:"entry"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr,omitempty"`
	Type string `xml:"type,attr,omitempty"`
}

type atomEntry struct {
	ID         string         `xml:"id"`
	Title      string         `xml:"title"`
	Link       atomLink       `xml:"link"`
	Author     atomAuthor     `xml:"author"`
	Updated    string         `xml:"updated"`
	Published  string         `xml:"published"`
	Categories []atomCategory `xml:"category"`
	Content    atomContent    `xml:"content"`
}

type atomAuthor struct {
	Name string `xml:"name"`
}

type atomCategory struct {
	Term string `xml:"term,attr"`
}

type atomContent struct {
	Type string `xml:"type,attr"`
	Body string `xml:",cdata"`
}

// buildAtomFeed renders ch's recent articles as an Atom 1.0 document.
// selfURL is the feed's own address, built by the caller from the
// incoming request rather than a configured public base URL, since the
// daemon may sit behind a reverse proxy under any hostname.
func buildAtomFeed(ch *store.OutputChannel, articles []*store.GeneratedArticle, selfURL, articleBaseURL string) *atomDocument {
	updated := ch.LastGenerated
	if updated == nil {
		now := time.Now().UTC()
		updated = &now
	}

	doc := &atomDocument{
		Title:    ch.Name,
		Subtitle: ch.Name,
		ID:       "urn:uuid:" + channelFeedUUID(ch),
		Updated:  updated.UTC().Format(time.RFC3339),
		Links: []atomLink{
			{Href: selfURL, Rel: "self", Type: "application/atom+xml"},
		},
	}

	for _, a := range articles {
		model := a.ModelUsed
		if model == "" {
			model = "unknown"
		}

		cats := make([]atomCategory, 0, len(a.Topics))
		for _, topic := range a.Topics {
			cats = append(cats, atomCategory{Term: topic})
		}

		entryLink := fmt.Sprintf("%s/article/%s", articleBaseURL, a.ID)
		doc.Entries = append(doc.Entries, atomEntry{
			ID:         "urn:uuid:" + a.ID,
			Title:      a.Title,
			Link:       atomLink{Href: entryLink, Rel: "alternate", Type: "text/html"},
			Author:     atomAuthor{Name: "pail-opencode-" + model},
			Updated:    a.GeneratedAt.UTC().Format(time.RFC3339),
			Published:  a.GeneratedAt.UTC().Format(time.RFC3339),
			Categories: cats,
			Content:    atomContent{Type: "html", Body: a.HTMLBody},
		})
	}

	return doc
}

// channelFeedUUID gives a channel's feed a stable id derived from its
// slug; channels don't otherwise carry a UUID of their own.
func channelFeedUUID(ch *store.OutputChannel) string {
	return fmt.Sprintf("00000000-0000-0000-0000-%012x", channelSlugHash(ch.URLSlug))
}

func channelSlugHash(slug string) uint64 {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(slug); i++ {
		h ^= uint64(slug[i])
		h *= 1099511628211
	}
	return h & 0xFFFFFFFFFFFF
}
