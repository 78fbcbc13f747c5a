package bookfetch

import (
	"context"

	"github.com/mfathy/safaribooks/internal/models"
	"github.com/mfathy/safaribooks/internal/naming"
)

// FetchBook retrieves everything needed to package one book: metadata,
// every chapter (normalized to self-contained XHTML), and the cover
// image, collapsing the per-chapter image and stylesheet references into
// the book-level deduplicated asset lists the packager expects. The
// cover's bytes are returned alongside the Book since, unlike the image
// and stylesheet assets, they have already been fetched while resolving
// the best available size tier; the caller is responsible for writing
// them to the book's Images directory under CoverLocal.
func (f *Fetcher) FetchBook(ctx context.Context, bookID string) (models.Book, []byte, error) {
	meta, err := f.FetchMetadata(ctx, bookID)
	if err != nil {
		return models.Book{}, nil, err
	}

	manifest, err := f.FetchChapterManifest(ctx, bookID)
	if err != nil {
		return models.Book{}, nil, err
	}

	book := models.Book{Metadata: meta}

	seenImages := map[string]bool{}
	seenStyles := map[string]bool{}

	for _, payload := range manifest {
		node, err := f.FetchChapter(ctx, payload)
		if err != nil {
			return models.Book{}, nil, err
		}
		book.Chapters = append(book.Chapters, node)

		for _, ref := range node.ImageRefs {
			if seenImages[ref] {
				continue
			}
			seenImages[ref] = true
			book.Images = append(book.Images, models.AssetRef{
				URL:       ref,
				LocalName: naming.SanitizeBasename(ref),
			})
		}
		for _, ref := range node.StylesheetRefs {
			if seenStyles[ref] {
				continue
			}
			seenStyles[ref] = true
			localName := naming.SanitizeBasename(ref)
			book.Stylesheets = append(book.Stylesheets, models.AssetRef{
				URL:       ref,
				LocalName: localName,
			})
		}
	}

	var coverBody []byte
	if meta.CoverURL != "" {
		coverURL, body, err := f.FetchCover(ctx, meta.CoverURL)
		if err == nil && len(body) > 0 {
			book.CoverPath = coverURL
			book.CoverLocal = naming.SanitizeBasename(coverURL)
			coverBody = body
		}
	}

	return book, coverBody, nil
}
