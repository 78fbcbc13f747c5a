// Package assets downloads the image and stylesheet files a book's
// chapters reference, writing them into the book's on-disk OEBPS layout
// the packager reads from.
package assets

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mfathy/safaribooks/internal/models"
	"github.com/mfathy/safaribooks/internal/ratelimit"
	"github.com/mfathy/safaribooks/internal/session"
)

// Downloader fetches the asset files a Book references into bookDir's
// Images/ and Styles/ subdirectories.
type Downloader struct {
	sess   *session.Session
	policy *ratelimit.Policy
	log    *slog.Logger
}

// New creates a Downloader.
func New(sess *session.Session, policy *ratelimit.Policy, log *slog.Logger) *Downloader {
	if log == nil {
		log = slog.Default()
	}
	return &Downloader{sess: sess, policy: policy, log: log}
}

// Result summarizes one download pass over a book's assets.
// WrittenImages and WrittenStylesheets hold only the refs that were
// actually written to disk, so the caller can reconcile the book model
// before packaging: a ref left out of these slices has no file on disk
// and must not appear in the EPUB's manifest.
type Result struct {
	ImagesWritten      int
	ImagesSkipped      []string
	WrittenImages      []models.AssetRef
	StylesheetsWritten int
	StylesheetsSkipped []string
	WrittenStylesheets []models.AssetRef
}

// DownloadAll fetches every image and stylesheet referenced by book into
// bookDir. Image failures (after retry) are logged and skipped, never
// fatal to the book; stylesheet failures are likewise skipped, and the
// packager already tolerates a missing stylesheet file. The cover is not
// fetched here: coverBytes, when non-empty, is written under
// book.CoverLocal. Only failures to create the asset directories or to
// write the cover file are returned to the caller.
func (d *Downloader) DownloadAll(ctx context.Context, book *models.Book, bookDir string, coverBytes []byte) (Result, error) {
	var result Result

	imagesDir := filepath.Join(bookDir, "Images")
	stylesDir := filepath.Join(bookDir, "Styles")
	if err := os.MkdirAll(imagesDir, 0o755); err != nil {
		return result, fmt.Errorf("create images directory: %w", err)
	}
	if err := os.MkdirAll(stylesDir, 0o755); err != nil {
		return result, fmt.Errorf("create styles directory: %w", err)
	}

	for _, img := range book.Images {
		dest := filepath.Join(imagesDir, img.LocalName)
		if err := d.fetchIndependent(ctx, img.URL, dest); err != nil {
			d.log.Warn("image asset failed after retries, skipping", "url", img.URL, "err", err)
			result.ImagesSkipped = append(result.ImagesSkipped, img.URL)
			continue
		}
		result.ImagesWritten++
		result.WrittenImages = append(result.WrittenImages, img)
	}

	for _, style := range book.Stylesheets {
		dest := filepath.Join(stylesDir, style.LocalName)
		if err := d.fetchIndependent(ctx, style.URL, dest); err != nil {
			d.log.Warn("stylesheet asset failed after retries, skipping", "url", style.URL, "err", err)
			result.StylesheetsSkipped = append(result.StylesheetsSkipped, style.URL)
			continue
		}
		result.StylesheetsWritten++
		result.WrittenStylesheets = append(result.WrittenStylesheets, style)
	}

	if book.CoverLocal != "" && len(coverBytes) > 0 {
		dest := filepath.Join(imagesDir, book.CoverLocal)
		if err := os.WriteFile(dest, coverBytes, 0o644); err != nil {
			return result, fmt.Errorf("write cover image: %w", err)
		}
	}

	return result, nil
}

// fetchIndependent downloads one asset under the independent retry
// policy (an image or stylesheet failure never fails the enclosing book)
// and writes it to dest.
func (d *Downloader) fetchIndependent(ctx context.Context, url, dest string) error {
	if err := d.policy.Wait(ctx, ratelimit.ClassDownload); err != nil {
		return err
	}

	var body []byte
	err := ratelimit.DoIndependent(ctx, func() error {
		resp, err := d.sess.Get(ctx, url, &session.GetOptions{})
		if err != nil {
			return err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &ratelimit.HTTPStatusError{StatusCode: resp.StatusCode}
		}
		body = resp.Body
		return nil
	})
	if err != nil {
		return err
	}

	return os.WriteFile(dest, body, 0o644)
}
