package bookfetch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mfathy/safaribooks/internal/ratelimit"
	"github.com/mfathy/safaribooks/internal/session"
)

func newTestFetcher(t *testing.T, server *httptest.Server) *Fetcher {
	t.Helper()
	sess, err := session.New(session.WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatal(err)
	}
	policy := ratelimit.New(time.Millisecond, time.Millisecond, 0, 1, slog.Default())
	return New(sess, policy, server.URL, slog.Default())
}

func TestFetchMetadata(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"title":   "Learning Go",
			"authors": []map[string]string{{"name": "Jon Bodner"}},
			"isbn":    "9781492077213",
			"cover":   "https://covers.example.com/9781492077213/w=200",
		})
	}))
	defer server.Close()

	f := newTestFetcher(t, server)
	meta, err := f.FetchMetadata(context.Background(), "123")
	if err != nil {
		t.Fatal(err)
	}
	if meta.Title != "Learning Go" {
		t.Errorf("unexpected title: %q", meta.Title)
	}
	if len(meta.Authors) != 1 || meta.Authors[0] != "Jon Bodner" {
		t.Errorf("unexpected authors: %v", meta.Authors)
	}
}

func TestFetchChapterManifest_Paginates(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			next := fmt.Sprintf("http://%s/page2", r.Host)
			json.NewEncoder(w).Encode(chapterManifestResponse{
				Results: []chapterPayload{{Title: "Ch1", Filename: "ch1.html"}},
				Next:    &next,
			})
			return
		}
		json.NewEncoder(w).Encode(chapterManifestResponse{
			Results: []chapterPayload{{Title: "Ch2", Filename: "ch2.html"}},
			Next:    nil,
		})
	}))
	defer server.Close()

	f := newTestFetcher(t, server)
	chapters, err := f.FetchChapterManifest(context.Background(), "123")
	if err != nil {
		t.Fatal(err)
	}
	if len(chapters) != 2 {
		t.Errorf("expected 2 chapters across pages, got %d", len(chapters))
	}
}

func TestFetchChapter_RewritesAssetsAndFragment(t *testing.T) {
	html := `<html><body><h2>Intro to Go</h2><p>hello</p>
<img src="https://cdn.example.com/img/fig1.png">
<link rel="stylesheet" href="https://cdn.example.com/css/style.css">
<a href="chapter2.html#sec">next</a>
</body></html>`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(html))
	}))
	defer server.Close()

	f := newTestFetcher(t, server)
	node, err := f.FetchChapter(context.Background(), chapterPayload{
		Title:    "",
		Filename: "chapter1.html",
		FullPath: server.URL + "/chapter1.html",
	})
	if err != nil {
		t.Fatal(err)
	}

	if node.Filename != "chapter1.xhtml" {
		t.Errorf("expected filename rewritten to xhtml, got %q", node.Filename)
	}
	if node.Fragment == "" {
		t.Error("expected a fragment id to be assigned from the first heading")
	}
	if node.Title != "Intro to Go" {
		t.Errorf("expected title derived from first heading, got %q", node.Title)
	}
	if len(node.ImageRefs) != 1 {
		t.Errorf("expected one image ref recorded, got %v", node.ImageRefs)
	}
	if len(node.StylesheetRefs) != 1 {
		t.Errorf("expected one stylesheet ref recorded, got %v", node.StylesheetRefs)
	}
	if !strings.Contains(node.Body, `src="Images/fig1.png"`) {
		t.Errorf("expected image src rewritten, got body: %s", node.Body)
	}
	if !strings.Contains(node.Body, `href="Styles/style.css"`) {
		t.Errorf("expected stylesheet href rewritten, got body: %s", node.Body)
	}
	if !strings.Contains(node.Body, `href="chapter2.xhtml#sec"`) {
		t.Errorf("expected cross-chapter link rewritten, got body: %s", node.Body)
	}
}

func TestFetchChapter_ResolvesRelativeAssetsAgainstBaseURL(t *testing.T) {
	html := `<html><body><h2>Intro</h2>
<img src="images/fig1.png">
<link rel="stylesheet" href="css/style.css">
</body></html>`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(html))
	}))
	defer server.Close()

	f := newTestFetcher(t, server)
	node, err := f.FetchChapter(context.Background(), chapterPayload{
		Filename:  "chapter1.html",
		FullPath:  server.URL + "/chapter1.html",
		AssetBase: "https://cdn.example.com/book/123/files/",
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(node.ImageRefs) != 1 || node.ImageRefs[0] != "https://cdn.example.com/book/123/files/images/fig1.png" {
		t.Errorf("expected image ref resolved against asset_base_url, got %v", node.ImageRefs)
	}
	if len(node.StylesheetRefs) != 1 || node.StylesheetRefs[0] != "https://cdn.example.com/book/123/files/css/style.css" {
		t.Errorf("expected stylesheet ref resolved against asset_base_url, got %v", node.StylesheetRefs)
	}
}

func TestCoverCandidates_ProgressiveUpscale(t *testing.T) {
	got := coverCandidates("https://covers.example.com/book/w=200")
	if len(got) != 2 || got[0] != "https://covers.example.com/book/w=800" {
		t.Errorf("unexpected candidate sequence: %v", got)
	}

	got = coverCandidates("https://covers.example.com/small/book.jpg")
	if len(got) != 2 || got[0] != "https://covers.example.com/large/book.jpg" {
		t.Errorf("unexpected candidate sequence: %v", got)
	}

	got = coverCandidates("https://covers.example.com/book.jpg")
	if len(got) != 1 || got[0] != "https://covers.example.com/book.jpg" {
		t.Errorf("expected a single fallback candidate, got %v", got)
	}
}

func TestFetchCover_AcceptsFirstLargeEnoughCandidate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "w=800") {
			w.Write(make([]byte, minCoverSize+1))
			return
		}
		w.Write(make([]byte, 10))
	}))
	defer server.Close()

	f := newTestFetcher(t, server)
	acceptedURL, body, err := f.FetchCover(context.Background(), server.URL+"/cover/w=200")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(acceptedURL, "w=800") {
		t.Errorf("expected the upscaled candidate to be accepted, got %q", acceptedURL)
	}
	if len(body) != minCoverSize+1 {
		t.Errorf("unexpected body length: %d", len(body))
	}
}
