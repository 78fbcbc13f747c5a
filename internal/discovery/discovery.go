// Package discovery issues the paginated search requests that build a
// topic's book manifest, applying the pagination budget and relevance
// filter that keep results bounded and on-topic.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mfathy/safaribooks/internal/models"
	"github.com/mfathy/safaribooks/internal/ratelimit"
	"github.com/mfathy/safaribooks/internal/session"
)

// APIVersion selects the search dialect.
type APIVersion string

const (
	V1 APIVersion = "v1"
	V2 APIVersion = "v2"
)

const (
	minPageBudget = 5
	maxPageBudget = 200
	consecutiveEmptyStop = 3
)

// Engine runs topic discovery against one of the two search dialects.
type Engine struct {
	sess       *session.Session
	policy     *ratelimit.Policy
	baseURL    string
	version    APIVersion
	maxBooks   int // 0 means unlimited
	maxPages   int
	log        *slog.Logger
}

// Config bundles the knobs an Engine needs beyond the session and policy.
type Config struct {
	BaseURL  string
	Version  APIVersion
	MaxBooks int
	MaxPages int
	Log      *slog.Logger
}

// New creates a discovery Engine.
func New(sess *session.Session, policy *ratelimit.Policy, cfg Config) *Engine {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = maxPageBudget
	}
	return &Engine{
		sess:     sess,
		policy:   policy,
		baseURL:  cfg.BaseURL,
		version:  cfg.Version,
		maxBooks: cfg.MaxBooks,
		maxPages: maxPages,
		log:      log,
	}
}

// searchResult is the common shape both dialects' responses reduce to.
type searchResult struct {
	Title     string `json:"title"`
	ArchiveID string `json:"archive_id"`
	ISBN      string `json:"isbn"`
	Format    string `json:"format"`
	Language  string `json:"language"`
	Subjects  []string `json:"subjects"`
	Topics    []string `json:"topics"`
	URL       string `json:"url"`
}

type searchResultV1 struct {
	Results  []searchResult `json:"results"`
	Complete bool           `json:"complete"`
}

type searchResultV2 struct {
	Results  []searchResult `json:"results"`
	Total    int            `json:"total"`
	Next     *string        `json:"next"`
	Previous *string        `json:"previous"`
}

// Variants produces the topic-variants helper: the original, and
// lowercase renderings with spaces replaced by "-", "_", and "+".
func Variants(topic string) []string {
	lower := strings.ToLower(topic)
	return []string{
		topic,
		strings.ReplaceAll(lower, " ", "-"),
		strings.ReplaceAll(lower, " ", "_"),
		strings.ReplaceAll(lower, " ", "+"),
	}
}

// pageBudget estimates the page budget for a topic: ceil(E/pageSize)+2,
// clamped to [minPageBudget, ceiling]. An unknown (non-positive) expected
// count gets the full ceiling.
func pageBudget(expectedCount, pageSize, ceiling int) int {
	if expectedCount <= 0 {
		return ceiling
	}
	budget := int(math.Ceil(float64(expectedCount)/float64(pageSize))) + 2
	if budget < minPageBudget {
		budget = minPageBudget
	}
	if budget > ceiling {
		budget = ceiling
	}
	return budget
}

// Discover runs discovery for one topic and returns its manifest.
func (e *Engine) Discover(ctx context.Context, topic models.Topic) (models.TopicManifest, error) {
	switch e.version {
	case V1:
		return e.discoverV1(ctx, topic)
	default:
		return e.discoverV2(ctx, topic)
	}
}

func (e *Engine) discoverV2(ctx context.Context, topic models.Topic) (models.TopicManifest, error) {
	const pageSize = 100
	budget := pageBudget(topic.ExpectedCount, pageSize, e.maxPages)

	manifest := models.TopicManifest{
		TopicName:    topic.Name,
		DiscoveredAt: time.Now().UTC(),
	}
	seen := make(map[string]bool)
	consecutiveEmpty := 0

	for page := 0; page < budget; page++ {
		if err := e.policy.Wait(ctx, ratelimit.ClassDiscovery); err != nil {
			return manifest, err
		}

		query := url.Values{}
		query.Set("topics", topic.Name)
		query.Set("limit", strconv.Itoa(pageSize))
		query.Set("page", strconv.Itoa(page))
		searchURL := fmt.Sprintf("%s/api/v2/search/?query=*&%s", e.baseURL, query.Encode())
		resp, err := e.sess.Get(ctx, searchURL, &session.GetOptions{ExpectJSON: true})
		if err != nil {
			return manifest, err
		}

		var parsed searchResultV2
		if err := json.Unmarshal(resp.Body, &parsed); err != nil {
			return manifest, fmt.Errorf("parse v2 search response: %w", err)
		}

		accepted := e.acceptResults(parsed.Results, topic, seen, &manifest)
		if accepted == 0 {
			consecutiveEmpty++
		} else {
			consecutiveEmpty = 0
		}

		if e.maxBooks > 0 && len(manifest.Books) >= e.maxBooks {
			manifest.Books = manifest.Books[:e.maxBooks]
			break
		}
		if topic.ExpectedCount > 0 && len(manifest.Books) >= topic.ExpectedCount {
			break
		}
		if consecutiveEmpty >= consecutiveEmptyStop {
			break
		}
		if parsed.Next == nil {
			break
		}
	}

	manifest.TotalBooks = len(manifest.Books)
	return manifest, nil
}

func (e *Engine) discoverV1(ctx context.Context, topic models.Topic) (models.TopicManifest, error) {
	const pageSize = 100
	budget := pageBudget(topic.ExpectedCount, pageSize, e.maxPages)

	manifest := models.TopicManifest{
		TopicName:    topic.Name,
		DiscoveredAt: time.Now().UTC(),
	}
	seen := make(map[string]bool)
	consecutiveEmpty := 0

	for page := 1; page <= budget; page++ {
		if err := e.policy.Wait(ctx, ratelimit.ClassDiscovery); err != nil {
			return manifest, err
		}

		query := url.Values{}
		query.Set("q", topic.Name)
		query.Set("rows", strconv.Itoa(pageSize))
		query.Set("page", strconv.Itoa(page))
		searchURL := fmt.Sprintf("%s/api/v1/search/?%s", e.baseURL, query.Encode())
		resp, err := e.sess.Get(ctx, searchURL, &session.GetOptions{ExpectJSON: true})
		if err != nil {
			return manifest, err
		}

		var parsed searchResultV1
		if err := json.Unmarshal(resp.Body, &parsed); err != nil {
			return manifest, fmt.Errorf("parse v1 search response: %w", err)
		}

		accepted := e.acceptResults(parsed.Results, topic, seen, &manifest)
		if accepted == 0 {
			consecutiveEmpty++
		} else {
			consecutiveEmpty = 0
		}

		if e.maxBooks > 0 && len(manifest.Books) >= e.maxBooks {
			manifest.Books = manifest.Books[:e.maxBooks]
			break
		}
		if topic.ExpectedCount > 0 && len(manifest.Books) >= topic.ExpectedCount {
			break
		}
		if consecutiveEmpty >= consecutiveEmptyStop {
			break
		}
		if parsed.Complete {
			break
		}
	}

	manifest.TotalBooks = len(manifest.Books)
	return manifest, nil
}

// acceptResults applies the relevance filter to each candidate and
// appends accepted, not-yet-seen books to manifest. Returns the count
// accepted from this page.
func (e *Engine) acceptResults(results []searchResult, topic models.Topic, seen map[string]bool, manifest *models.TopicManifest) int {
	accepted := 0
	for _, r := range results {
		bookID := r.ArchiveID
		if bookID == "" {
			bookID = r.ISBN
		}
		if bookID == "" || seen[bookID] {
			continue
		}
		if !passesRelevanceFilter(r, topic) {
			continue
		}
		seen[bookID] = true
		manifest.Books = append(manifest.Books, models.BookRef{
			Title:        r.Title,
			BookID:       bookID,
			CanonicalURL: r.URL,
			ISBN:         r.ISBN,
			Format:       r.Format,
		})
		accepted++
	}
	return accepted
}

var rejectTitlePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^chapter `),
	regexp.MustCompile(`(?i)^section `),
	regexp.MustCompile(`(?i)^lesson `),
	regexp.MustCompile(`(?i)^unit `),
	regexp.MustCompile(`(?i)^module `),
	regexp.MustCompile(`(?i)chapter \d+:`),
	regexp.MustCompile(`(?i)part [ivIV]+:`),
	regexp.MustCompile(`(?i)part [1-5]:`),
	regexp.MustCompile(`(?i)section \d+:`),
	regexp.MustCompile(`(?i)lesson \d+:`),
	regexp.MustCompile(`(?i)appendix`),
	regexp.MustCompile(`(?i)glossary`),
	regexp.MustCompile(`(?i)bibliography`),
	regexp.MustCompile(`(?i)foreword`),
	regexp.MustCompile(`(?i)preface`),
	regexp.MustCompile(`(?i)acknowledgments`),
	regexp.MustCompile(`(?i)wrap-up`),
}

// passesRelevanceFilter applies the format, language, title-shape, and
// topic-match checks that decide whether a search hit belongs in the
// manifest.
func passesRelevanceFilter(r searchResult, topic models.Topic) bool {
	switch strings.ToLower(r.Format) {
	case "book", "ebook", "":
	default:
		return false
	}

	if r.Language != "" && !strings.HasPrefix(strings.ToLower(r.Language), "en") {
		return false
	}

	hasISBN := isNumericISBN(r.ISBN)
	minLen := 10
	if hasISBN {
		minLen = 5
	}
	if len(strings.TrimSpace(r.Title)) < minLen {
		return false
	}

	for _, pat := range rejectTitlePatterns {
		if pat.MatchString(r.Title) {
			return false
		}
	}

	if hasISBN {
		return true
	}
	return matchesTopic(r, topic)
}

func isNumericISBN(isbn string) bool {
	if isbn == "" {
		return false
	}
	for _, c := range isbn {
		if c < '0' || c > '9' {
			if c != '-' && c != 'X' && c != 'x' {
				return false
			}
		}
	}
	return true
}

func matchesTopic(r searchResult, topic models.Topic) bool {
	fields := append(append([]string{}, r.Subjects...), r.Topics...)
	variants := Variants(topic.Name)
	for _, f := range fields {
		lf := strings.ToLower(f)
		for _, v := range variants {
			if strings.Contains(lf, strings.ToLower(v)) {
				return true
			}
		}
	}
	return false
}
