package syndication

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"
)

// Entry is one parsed feed item, RSS <item> or Atom <entry> alike.
type Entry struct {
	ID        string
	Title     string
	Link      string
	Author    string
	Body      string
	Published *time.Time
}

// rssFeed and atomFeed are deliberately minimal: pail treats exact
// RSS/Atom parsing as a thin adapter, not a domain concern, since no
// feed-parsing library is available to depend on here.
type rssFeed struct {
	XMLName xml.Name   `xml:"rss"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Items []rssItem `xml:"item"`
}

type rssItem struct {
	GUID        string `xml:"guid"`
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Author      string `xml:"author"`
	Creator     string `xml:"http://purl.org/dc/elements/1.1/ creator"`
	Description string `xml:"description"`
	Content     string `xml:"http://purl.org/rss/1.0/modules/content/ encoded"`
	PubDate     string `xml:"pubDate"`
}

type atomFeed struct {
	XMLName xml.Name    `xml:"http://www.w3.org/2005/Atom feed"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID        string      `xml:"id"`
	Title     string      `xml:"title"`
	Links     []atomLink  `xml:"link"`
	Author    atomAuthor  `xml:"author"`
	Summary   string      `xml:"summary"`
	Content   string      `xml:"content"`
	Published string      `xml:"published"`
	Updated   string      `xml:"updated"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
}

type atomAuthor struct {
	Name string `xml:"name"`
}

var timeLayouts = []string{
	time.RFC1123Z, time.RFC1123, time.RFC3339, "2006-01-02T15:04:05Z07:00",
	"Mon, 2 Jan 2006 15:04:05 -0700", "2006-01-02 15:04:05",
}

func parseTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// Parse decodes raw feed bytes as either RSS 2.0 or Atom 1.0, detected by
// root element name.
func Parse(data []byte) ([]Entry, error) {
	var probe struct {
		XMLName xml.Name
	}
	if err := xml.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("syndication: malformed xml: %w", err)
	}

	switch probe.XMLName.Local {
	case "rss":
		var f rssFeed
		if err := xml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("syndication: malformed rss: %w", err)
		}
		out := make([]Entry, 0, len(f.Channel.Items))
		for _, item := range f.Channel.Items {
			body := item.Content
			if body == "" {
				body = item.Description
			}
			author := item.Author
			if author == "" {
				author = item.Creator
			}
			out = append(out, Entry{
				ID:        item.GUID,
				Title:     item.Title,
				Link:      item.Link,
				Author:    author,
				Body:      body,
				Published: parseTime(item.PubDate),
			})
		}
		return out, nil

	case "feed":
		var f atomFeed
		if err := xml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("syndication: malformed atom: %w", err)
		}
		out := make([]Entry, 0, len(f.Entries))
		for _, e := range f.Entries {
			link := ""
			for _, l := range e.Links {
				if l.Rel == "" || l.Rel == "alternate" {
					link = l.Href
					break
				}
			}
			body := e.Content
			if body == "" {
				body = e.Summary
			}
			published := parseTime(e.Published)
			if published == nil {
				published = parseTime(e.Updated)
			}
			out = append(out, Entry{
				ID:        e.ID,
				Title:     e.Title,
				Link:      link,
				Author:    e.Author.Name,
				Body:      body,
				Published: published,
			})
		}
		return out, nil

	default:
		return nil, fmt.Errorf("syndication: unrecognized root element %q", probe.XMLName.Local)
	}
}
