package store

import "time"

// Source mirrors config.Source plus the store-managed polling cursors.
type Source struct {
	ID              int64
	Name            string
	Kind            string
	DisplayName     string
	Enabled         bool
	Description     string
	URL             string
	PollInterval    time.Duration
	MaxItems        int
	AuthHeader      string
	AuthValue       string
	ChatPeerID      int64
	ChatUsername    string
	FolderName      string
	Exclude         []string
	ETag            string
	LastModified    string
	LastFetchedAt   *time.Time
	CreatedAt       time.Time
}

// OutputChannel mirrors config.OutputChannel plus store-managed state.
type OutputChannel struct {
	ID            int64
	Name          string
	URLSlug       string
	Enabled       bool
	Schedule      string
	Prompt        string
	Model         string
	Language      string
	LastGenerated *time.Time
	SourceIDs     []int64
	CreatedAt     time.Time
}

// ContentItem is one ingested piece of content, deduplicated per source.
type ContentItem struct {
	ID              int64
	SourceID        int64
	DedupKey        string
	UpstreamID      string
	Title           string
	URL             string
	Author          string
	Body            string
	OriginalDate    *time.Time
	IngestedAt      time.Time
	UpstreamChanged bool
}

// GeneratedArticle is one completed generation run's persisted output.
// BodyMarkdown is the source of truth; HTMLBody is a derived render cache.
type GeneratedArticle struct {
	ID              string
	OutputChannelID int64
	Title           string
	Topics          []string
	BodyMarkdown    string
	HTMLBody        string
	ContentItemIDs  []int64
	GenerationLog   string
	ModelUsed       string
	WindowStart     *time.Time
	WindowEnd       *time.Time
	GeneratedAt     time.Time
}

// FolderChannel is one channel currently known to be a member of a
// Telegram folder, as observed by the chat listener.
type FolderChannel struct {
	FolderName      string
	ChannelPeerID   int64
	ChannelUsername string
	UpdatedAt       time.Time
}
