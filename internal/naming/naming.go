// Package naming implements the folder, filename, and existence-check
// rules that keep the on-disk layout stable across runs.
package naming

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// acronyms is the fixed set of tokens kept upper-case by ToTitleCase.
var acronyms = map[string]string{
	"ai": "AI", "ml": "ML", "api": "API", "ui": "UI", "ux": "UX",
	"sql": "SQL", "css": "CSS", "html": "HTML", "js": "JS",
	"aws": "AWS", "gcp": "GCP",
}

// lowercaseWords is the fixed set of conjunctions/prepositions kept
// lowercase when not the first word.
var lowercaseWords = map[string]bool{
	"and": true, "or": true, "of": true, "in": true, "on": true,
	"at": true, "to": true, "for": true, "the": true,
}

var forbiddenChars = regexp.MustCompile(`[/\\:*?"<>|]`)
var whitespaceRun = regexp.MustCompile(`\s+`)

// TopicFolder converts a topic name into its output subfolder name:
// forbidden characters become spaces, whitespace collapses, and the result
// is title-cased with the fixed acronym and lowercase-word sets preserved.
func TopicFolder(topic string) string {
	cleaned := forbiddenChars.ReplaceAllString(topic, " ")
	cleaned = strings.ReplaceAll(cleaned, "_", " ")
	cleaned = whitespaceRun.ReplaceAllString(cleaned, " ")
	cleaned = strings.TrimSpace(cleaned)

	words := strings.Split(cleaned, " ")
	out := make([]string, 0, len(words))
	for i, w := range words {
		if w == "" {
			continue
		}
		out = append(out, titleCaseWord(w, i == 0))
	}
	return strings.Join(out, " ")
}

func titleCaseWord(w string, initial bool) string {
	lower := strings.ToLower(w)
	if acr, ok := acronyms[lower]; ok {
		return acr
	}
	if !initial && lowercaseWords[lower] {
		return lower
	}
	if lower == "&" {
		return "&"
	}
	r := []rune(lower)
	if len(r) == 0 {
		return w
	}
	return strings.ToUpper(string(r[0])) + string(r[1:])
}

// SanitizeComponent replaces characters forbidden in a filesystem path
// component with an underscore, and trims trailing dots and spaces.
func SanitizeComponent(s string) string {
	cleaned := forbiddenChars.ReplaceAllString(s, "_")
	cleaned = strings.TrimRight(cleaned, " .")
	return cleaned
}

// BookFolder builds the "<sanitized-title> (<book_id>)" folder name for a
// single book.
func BookFolder(title, bookID string) string {
	return SanitizeComponent(title) + " (" + bookID + ")"
}

// Profile selects which e-book variant(s) a build targets.
type Profile string

const (
	ProfileStandard Profile = "standard"
	ProfileKindle   Profile = "kindle"
)

// EpubFilename builds the e-book filename for one profile variant.
func EpubFilename(title, firstAuthor string, profile Profile) string {
	base := SanitizeComponent(title) + " - " + SanitizeComponent(firstAuthor)
	if profile == ProfileKindle {
		return base + " (Kindle).epub"
	}
	return base + ".epub"
}

// Exists reports whether the e-book file(s) required by format already
// exist in bookDir. format is one of "legacy", "enhanced", "kindle", or
// "dual" (the epub_format setting); legacy/enhanced both map to the
// standard profile file.
func Exists(bookDir, title, firstAuthor, format string) bool {
	standard := filepath.Join(bookDir, EpubFilename(title, firstAuthor, ProfileStandard))
	kindle := filepath.Join(bookDir, EpubFilename(title, firstAuthor, ProfileKindle))

	switch format {
	case "kindle":
		return fileExists(kindle)
	case "dual":
		return fileExists(standard) && fileExists(kindle)
	default: // "legacy", "enhanced", or unset
		return fileExists(standard)
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// AnyEpubExists performs the existence check before a book's title and
// author are both known (the author only becomes available after the
// metadata fetch): it looks for any already-packaged epub in bookDir for
// the configured profile, regardless of the exact "<title> - <author>"
// stem. The job controller uses this as the pre-fetch skip check; Exists
// remains the authoritative, exact check once the full name is known.
func AnyEpubExists(bookDir, format string) bool {
	entries, err := os.ReadDir(bookDir)
	if err != nil {
		return false
	}

	hasStandard, hasKindle := false, false
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".epub") {
			continue
		}
		if strings.HasSuffix(e.Name(), " (Kindle).epub") {
			hasKindle = true
		} else {
			hasStandard = true
		}
	}

	switch format {
	case "kindle":
		return hasKindle
	case "dual":
		return hasStandard && hasKindle
	default:
		return hasStandard
	}
}

// SanitizeBasename strips query strings and forbidden characters from a
// URL path's final segment, for use as an Images/ or Styles/ local
// filename.
func SanitizeBasename(urlPath string) string {
	base := urlPath
	if i := strings.IndexAny(base, "?#"); i >= 0 {
		base = base[:i]
	}
	base = filepath.Base(base)
	base = forbiddenChars.ReplaceAllString(base, "_")
	base = strings.TrimSpace(base)
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "asset"
	}
	return base
}

// ToXHTMLName rewrites a chapter basename's extension from .html to
// .xhtml, matching the cross-chapter link rewriting the book fetcher
// applies when normalizing a chapter's HTML.
func ToXHTMLName(name string) string {
	ext := filepath.Ext(name)
	if strings.EqualFold(ext, ".html") || strings.EqualFold(ext, ".htm") {
		return strings.TrimSuffix(name, ext) + ".xhtml"
	}
	if ext == "" {
		return name + ".xhtml"
	}
	return name
}
