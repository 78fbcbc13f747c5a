// Package bookfetch retrieves one book's metadata, chapter manifest, and
// per-chapter HTML, normalizing every chapter into self-contained XHTML
// with rewritten asset and cross-chapter references.
package bookfetch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/mfathy/safaribooks/internal/models"
	"github.com/mfathy/safaribooks/internal/naming"
	"github.com/mfathy/safaribooks/internal/ratelimit"
	"github.com/mfathy/safaribooks/internal/safarierr"
	"github.com/mfathy/safaribooks/internal/session"
)

// Fetcher retrieves and normalizes one book at a time.
type Fetcher struct {
	sess    *session.Session
	policy  *ratelimit.Policy
	baseURL string
	log     *slog.Logger
}

// New creates a Fetcher.
func New(sess *session.Session, policy *ratelimit.Policy, baseURL string, log *slog.Logger) *Fetcher {
	if log == nil {
		log = slog.Default()
	}
	return &Fetcher{sess: sess, policy: policy, baseURL: baseURL, log: log}
}

type bookInfoResponse struct {
	Title     string          `json:"title"`
	Authors   []authorPayload `json:"authors"`
	Publisher json.RawMessage `json:"publishers"`
	ISBN      string          `json:"isbn"`
	Description string        `json:"description"`
	Subjects  []subjectPayload `json:"subjects"`
	Rights    string          `json:"rights"`
	Issued    string          `json:"issued"`
	Cover     string          `json:"cover"`
	Chapters  string          `json:"chapters"`
	Raw       map[string]any  `json:"-"`
}

type authorPayload struct {
	Name string `json:"name"`
}

type subjectPayload struct {
	Name string `json:"name"`
}

type chapterManifestResponse struct {
	Results []chapterPayload `json:"results"`
	Next    *string          `json:"next"`
}

type chapterPayload struct {
	Title     string `json:"title"`
	Filename  string `json:"filename"`
	Content   string `json:"content"`
	FullPath  string `json:"full_path"`
	AssetBase string `json:"asset_base_url"`
}

// FetchMetadata retrieves a book's descriptive metadata.
func (f *Fetcher) FetchMetadata(ctx context.Context, bookID string) (models.BookMetadata, error) {
	if err := f.policy.Wait(ctx, ratelimit.ClassDownload); err != nil {
		return models.BookMetadata{}, err
	}

	url := fmt.Sprintf("%s/api/v1/book/%s/", f.baseURL, bookID)
	var meta models.BookMetadata
	err := ratelimit.Do(ctx, func() error {
		resp, err := f.sess.Get(ctx, url, &session.GetOptions{ExpectJSON: true})
		if err != nil {
			return err
		}
		var raw bookInfoResponse
		var rawMap map[string]any
		if err := json.Unmarshal(resp.Body, &rawMap); err != nil {
			return safarierr.New(safarierr.ParseError, "decode book metadata", err)
		}
		if err := json.Unmarshal(resp.Body, &raw); err != nil {
			return safarierr.New(safarierr.ParseError, "decode book metadata", err)
		}

		authors := make([]string, 0, len(raw.Authors))
		for _, a := range raw.Authors {
			authors = append(authors, a.Name)
		}
		subjects := make([]string, 0, len(raw.Subjects))
		for _, s := range raw.Subjects {
			subjects = append(subjects, s.Name)
		}

		meta = models.BookMetadata{
			Title:       raw.Title,
			Authors:     authors,
			ISBN:        raw.ISBN,
			Description: raw.Description,
			Subjects:    subjects,
			Rights:      raw.Rights,
			ReleaseDate: raw.Issued,
			CoverURL:    raw.Cover,
			Raw:         rawMap,
		}
		return nil
	})
	return meta, err
}

// chapterManifestURL resolves the chapter-manifest endpoint for a book.
func (f *Fetcher) chapterManifestURL(bookID string) string {
	return fmt.Sprintf("%s/api/v1/book/%s/chapter/", f.baseURL, bookID)
}

// FetchChapterManifest retrieves the ordered list of chapter URLs for a
// book, following pagination until exhausted.
func (f *Fetcher) FetchChapterManifest(ctx context.Context, bookID string) ([]chapterPayload, error) {
	var all []chapterPayload
	url := f.chapterManifestURL(bookID)

	for url != "" {
		if err := f.policy.Wait(ctx, ratelimit.ClassDownload); err != nil {
			return nil, err
		}

		var page chapterManifestResponse
		err := ratelimit.Do(ctx, func() error {
			resp, err := f.sess.Get(ctx, url, &session.GetOptions{ExpectJSON: true})
			if err != nil {
				return err
			}
			if err := json.Unmarshal(resp.Body, &page); err != nil {
				return safarierr.New(safarierr.ParseError, "decode chapter manifest", err)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}

		all = append(all, page.Results...)
		if page.Next == nil {
			break
		}
		url = *page.Next
	}
	return all, nil
}

// FetchChapter retrieves and normalizes a single chapter's HTML into a
// ChapterNode with its Body already rewritten to self-contained XHTML.
func (f *Fetcher) FetchChapter(ctx context.Context, payload chapterPayload) (models.ChapterNode, error) {
	if err := f.policy.Wait(ctx, ratelimit.ClassDownload); err != nil {
		return models.ChapterNode{}, err
	}

	chapterURL := payload.FullPath
	if base, err := url.Parse(f.baseURL); err == nil {
		chapterURL = resolveAssetURL(base, payload.FullPath)
	}

	node := models.ChapterNode{
		Filename:     naming.ToXHTMLName(naming.SanitizeBasename(payload.Filename)),
		HTTPURL:      chapterURL,
		AssetBaseURL: payload.AssetBase,
		Title:        payload.Title,
	}

	err := ratelimit.Do(ctx, func() error {
		resp, err := f.sess.Get(ctx, chapterURL, &session.GetOptions{})
		if err != nil {
			return err
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(resp.Body)))
		if err != nil {
			return safarierr.New(safarierr.ParseError, "parse chapter html", err)
		}
		normalizeChapter(doc, &node)
		return nil
	})
	return node, err
}

// normalizeChapter rewrites image/stylesheet/cross-chapter references to
// their local, sanitized names, extracts (or assigns) the chapter's
// fragment id and title, and renders the resulting body markup.
func normalizeChapter(doc *goquery.Document, node *models.ChapterNode) {
	base, err := url.Parse(node.AssetBaseURL)
	if err != nil {
		base = nil
	}

	seenImages := map[string]bool{}
	doc.Find("img[src]").Each(func(_ int, img *goquery.Selection) {
		src, _ := img.Attr("src")
		if src == "" {
			return
		}
		local := "Images/" + naming.SanitizeBasename(src)
		img.SetAttr("src", local)
		resolved := resolveAssetURL(base, src)
		if !seenImages[resolved] {
			seenImages[resolved] = true
			node.ImageRefs = append(node.ImageRefs, resolved)
		}
	})

	seenStyles := map[string]bool{}
	doc.Find("link[rel='stylesheet']").Each(func(_ int, link *goquery.Selection) {
		href, _ := link.Attr("href")
		if href == "" {
			return
		}
		localName := naming.SanitizeBasename(href)
		if !strings.HasSuffix(strings.ToLower(localName), ".css") {
			localName += ".css"
		}
		link.SetAttr("href", "Styles/"+localName)
		resolved := resolveAssetURL(base, href)
		if !seenStyles[resolved] {
			seenStyles[resolved] = true
			node.StylesheetRefs = append(node.StylesheetRefs, resolved)
		}
	})

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if href == "" || strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
			return
		}
		fragment := ""
		path := href
		if i := strings.IndexByte(href, '#'); i >= 0 {
			path = href[:i]
			fragment = href[i:]
		}
		if path == "" {
			return
		}
		rewritten := naming.ToXHTMLName(naming.SanitizeBasename(path)) + fragment
		a.SetAttr("href", rewritten)
	})

	if node.Fragment == "" {
		if heading := doc.Find("h1, h2, h3").First(); heading.Length() > 0 {
			if id, ok := heading.Attr("id"); ok && id != "" {
				node.Fragment = id
			} else {
				node.Fragment = "chapter-anchor"
				heading.SetAttr("id", node.Fragment)
			}
			if node.Title == "" {
				node.Title = strings.TrimSpace(heading.Text())
			}
		}
	}

	body := doc.Find("body")
	if body.Length() > 0 {
		html, _ := body.Html()
		node.Body = html
	} else {
		html, _ := doc.Html()
		node.Body = html
	}
}

// resolveAssetURL resolves a chapter-relative asset reference against the
// chapter's asset_base_url, so a relative src/href (the normal case for
// this provider's chapter HTML) turns into a fetchable absolute URL. If
// base is nil or ref does not parse, ref is returned unchanged.
func resolveAssetURL(base *url.URL, ref string) string {
	if base == nil {
		return ref
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(refURL).String()
}
