// Package models defines the data shapes shared across the discovery,
// fetch, and packaging stages: topics, book references, chapter nodes, and
// the assembled book itself.
package models

import "time"

// Topic is a single entry in the catalogue driving a crawl run. Identity is
// by Name (case-sensitive).
type Topic struct {
	Name          string `yaml:"name" json:"name"`
	ExpectedCount int    `yaml:"expected_count,omitempty" json:"expected_count,omitempty"`
}

// BookRef identifies a book discovered for a topic, before its full
// metadata has been fetched. Identity is by BookID.
type BookRef struct {
	Title        string `json:"title"`
	BookID       string `json:"id"`
	CanonicalURL string `json:"url"`
	ISBN         string `json:"isbn,omitempty"`
	Format       string `json:"format,omitempty"`
}

// TopicManifest is the durable record of a single discovery run for one
// topic. It is written atomically and never mutated in place.
type TopicManifest struct {
	TopicName      string    `json:"skill_name"`
	DiscoveredAt   time.Time `json:"discovery_timestamp"`
	TotalBooks     int       `json:"total_books"`
	Books          []BookRef `json:"books"`
}

// BookMetadata holds the descriptive fields fetched for one book, plus the
// raw provider payload so nothing is lost to a partial model.
type BookMetadata struct {
	Title       string          `json:"title"`
	Authors     []string        `json:"authors"`
	Publisher   string          `json:"publisher,omitempty"`
	ISBN        string          `json:"isbn,omitempty"`
	Description string          `json:"description,omitempty"`
	Subjects    []string        `json:"subjects,omitempty"`
	Rights      string          `json:"rights,omitempty"`
	ReleaseDate string          `json:"release_date,omitempty"`
	CoverURL    string          `json:"cover_url,omitempty"`
	Raw         map[string]any  `json:"raw,omitempty"`
}

// ChapterNode is one entry in a book's chapter manifest. Fragment is the
// in-chapter anchor id used for navigation, created if the source HTML
// doesn't carry one.
type ChapterNode struct {
	Filename       string   `json:"filename"`
	HTTPURL        string   `json:"http_url"`
	AssetBaseURL   string   `json:"asset_base_url"`
	Fragment       string   `json:"fragment,omitempty"`
	StylesheetRefs []string `json:"stylesheet_refs,omitempty"`
	ImageRefs      []string `json:"image_refs,omitempty"`

	// Title is the chapter manifest's title or, when that is empty, the
	// text of the chapter's first heading, captured while creating
	// Fragment. It is used for navigation entries and the chapter page's
	// <title>.
	Title string `json:"title,omitempty"`

	// Body holds the normalized XHTML body content once fetched; it is not
	// part of the on-disk manifest representation.
	Body string `json:"-"`
}

// Book is the fully assembled unit ready for packaging: an ordered chapter
// list plus metadata, cover, and the asset sets collected while fetching
// chapters. Chapter order is authoritative and comes from the provider's
// chapter-manifest response order.
type Book struct {
	Metadata   BookMetadata
	Chapters   []ChapterNode
	CoverPath  string
	CoverLocal string
	Stylesheets []AssetRef
	Images      []AssetRef
}

// AssetRef pairs a remote asset URL with the local name it will be saved
// under inside the book's OEBPS tree.
type AssetRef struct {
	URL       string
	LocalName string
}
