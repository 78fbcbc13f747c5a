package assets

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mfathy/safaribooks/internal/models"
	"github.com/mfathy/safaribooks/internal/ratelimit"
	"github.com/mfathy/safaribooks/internal/session"
)

func newTestDownloader(t *testing.T, server *httptest.Server) *Downloader {
	t.Helper()
	sess, err := session.New(session.WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatal(err)
	}
	policy := ratelimit.New(time.Millisecond, time.Millisecond, 0, 1, slog.Default())
	return New(sess, policy, slog.Default())
}

func TestDownloadAll_WritesImagesAndStylesheets(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "/fail"):
			w.WriteHeader(http.StatusNotFound)
		default:
			w.Write([]byte("asset-bytes"))
		}
	}))
	defer server.Close()

	d := newTestDownloader(t, server)
	book := &models.Book{
		Images: []models.AssetRef{
			{URL: server.URL + "/img/fig1.png", LocalName: "fig1.png"},
			{URL: server.URL + "/fail/fig2.png", LocalName: "fig2.png"},
		},
		Stylesheets: []models.AssetRef{
			{URL: server.URL + "/css/style.css", LocalName: "style.css"},
		},
		CoverLocal: "cover.jpg",
	}

	bookDir := t.TempDir()
	result, err := d.DownloadAll(context.Background(), book, bookDir, []byte("cover-bytes"))
	if err != nil {
		t.Fatal(err)
	}

	if result.ImagesWritten != 1 {
		t.Errorf("expected 1 image written, got %d", result.ImagesWritten)
	}
	if len(result.ImagesSkipped) != 1 {
		t.Errorf("expected 1 image skipped, got %v", result.ImagesSkipped)
	}
	if result.StylesheetsWritten != 1 {
		t.Errorf("expected 1 stylesheet written, got %d", result.StylesheetsWritten)
	}
	if len(result.WrittenImages) != 1 || result.WrittenImages[0].LocalName != "fig1.png" {
		t.Errorf("expected WrittenImages to contain only fig1.png, got %v", result.WrittenImages)
	}
	if len(result.WrittenStylesheets) != 1 || result.WrittenStylesheets[0].LocalName != "style.css" {
		t.Errorf("expected WrittenStylesheets to contain only style.css, got %v", result.WrittenStylesheets)
	}

	if data, err := os.ReadFile(filepath.Join(bookDir, "Images", "fig1.png")); err != nil || string(data) != "asset-bytes" {
		t.Errorf("expected image file written with fetched bytes, got err=%v data=%q", err, data)
	}
	if _, err := os.Stat(filepath.Join(bookDir, "Images", "fig2.png")); !os.IsNotExist(err) {
		t.Error("expected failed image to not be written")
	}
	if data, err := os.ReadFile(filepath.Join(bookDir, "Images", "cover.jpg")); err != nil || string(data) != "cover-bytes" {
		t.Errorf("expected cover file written with provided bytes, got err=%v data=%q", err, data)
	}
}

func TestDownloadAll_NeverFailsOnAssetErrors(t *testing.T) {
	old := ratelimit.BaseDelay
	ratelimit.BaseDelay = time.Millisecond
	defer func() { ratelimit.BaseDelay = old }()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	d := newTestDownloader(t, server)
	book := &models.Book{
		Images: []models.AssetRef{{URL: server.URL + "/fig1.png", LocalName: "fig1.png"}},
	}

	result, err := d.DownloadAll(context.Background(), book, t.TempDir(), nil)
	if err != nil {
		t.Fatalf("expected asset failures to never be fatal, got %v", err)
	}
	if len(result.ImagesSkipped) != 1 {
		t.Errorf("expected the failing image to be recorded as skipped, got %v", result.ImagesSkipped)
	}
}
