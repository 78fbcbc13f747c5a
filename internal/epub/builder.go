// Package epub packages a fetched book into an EPUB3 container: mimetype,
// container.xml, content.opf, nav.xhtml, toc.ncx, chapters, images, and
// stylesheets, in two optional profile variants.
package epub

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/mfathy/safaribooks/internal/models"
	"github.com/mfathy/safaribooks/internal/naming"
)

// Builder assembles one EPUB container from an already-fetched Book. A
// single Builder can be asked to write either profile variant, or both via
// BuildDual; the chapter, image, and stylesheet data is shared between
// variants exactly as discovered, only the bundled CSS differs.
type Builder struct {
	book    *models.Book
	bookDir string // directory holding the downloaded Images/ and Styles/ trees
}

// NewBuilder creates a Builder for the given book. bookDir is the book's
// output folder, the same directory the asset downloader wrote Images/
// and Styles/ into.
func NewBuilder(book *models.Book, bookDir string) *Builder {
	return &Builder{book: book, bookDir: bookDir}
}

// Build writes the standard-profile EPUB to outputPath. Use BuildProfile or
// BuildDual to control the profile explicitly.
func (b *Builder) Build(outputPath string) error {
	return b.BuildProfile(outputPath, naming.ProfileStandard)
}

// BuildProfile writes one profile variant's EPUB to outputPath.
func (b *Builder) BuildProfile(outputPath string, profile naming.Profile) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()

	return b.WriteTo(f, profile)
}

// BuildDual writes both profile variants, sharing the same chapter, image,
// and stylesheet data extracted during fetch; only the bundled CSS and
// page-break rules differ between the two files.
func (b *Builder) BuildDual(standardPath, kindlePath string) error {
	if err := b.BuildProfile(standardPath, naming.ProfileStandard); err != nil {
		return fmt.Errorf("standard profile: %w", err)
	}
	if err := b.BuildProfile(kindlePath, naming.ProfileKindle); err != nil {
		return fmt.Errorf("kindle profile: %w", err)
	}
	return nil
}

// WriteTo writes the EPUB container to w for the given profile.
func (b *Builder) WriteTo(w io.Writer, profile naming.Profile) error {
	zw := zip.NewWriter(w)
	defer zw.Close()

	if err := b.writeMimetype(zw); err != nil {
		return err
	}
	if err := b.writeContainer(zw); err != nil {
		return err
	}
	if err := b.writePackage(zw); err != nil {
		return err
	}
	if err := b.writeNavigation(zw); err != nil {
		return err
	}
	if err := b.writeNCX(zw); err != nil {
		return err
	}
	if err := b.writeStylesheet(zw, profile); err != nil {
		return err
	}
	if err := b.writeCover(zw, profile); err != nil {
		return err
	}
	for _, img := range b.book.Images {
		local := filepath.Join(b.bookDir, "Images", img.LocalName)
		if err := b.writeAssetFile(zw, "OEBPS/Images/"+img.LocalName, local); err != nil {
			// A missing image does not break the book; its file is left
			// out of the container. The manifest still lists every entry
			// of book.Images, so callers pass only images that were
			// actually downloaded.
			continue
		}
	}
	for _, css := range b.book.Stylesheets {
		local := filepath.Join(b.bookDir, "Styles", css.LocalName)
		if err := b.writeAssetFile(zw, "OEBPS/Styles/"+css.LocalName, local); err != nil {
			// A missing stylesheet does not break the book; its file is
			// left out of the container. The manifest still lists every
			// entry of book.Stylesheets, so callers pass only stylesheets
			// that were actually downloaded.
			continue
		}
	}

	for _, ch := range b.book.Chapters {
		if err := b.writeChapter(zw, ch, profile); err != nil {
			return fmt.Errorf("failed to write chapter %s: %w", ch.Filename, err)
		}
	}

	return nil
}

// writeMimetype writes the mimetype file; it must be first and uncompressed.
func (b *Builder) writeMimetype(zw *zip.Writer) error {
	header := &zip.FileHeader{Name: "mimetype", Method: zip.Store}
	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to create mimetype: %w", err)
	}
	_, err = w.Write([]byte("application/epub+zip"))
	return err
}

// writeContainer writes META-INF/container.xml.
func (b *Builder) writeContainer(zw *zip.Writer) error {
	content := `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

	w, err := zw.Create("META-INF/container.xml")
	if err != nil {
		return fmt.Errorf("failed to create container.xml: %w", err)
	}
	_, err = w.Write([]byte(content))
	return err
}

func (b *Builder) writePackage(zw *zip.Writer) error {
	w, err := zw.Create("OEBPS/content.opf")
	if err != nil {
		return fmt.Errorf("failed to create content.opf: %w", err)
	}
	_, err = w.Write([]byte(b.generatePackage()))
	return err
}

func (b *Builder) writeNavigation(zw *zip.Writer) error {
	w, err := zw.Create("OEBPS/nav.xhtml")
	if err != nil {
		return fmt.Errorf("failed to create nav.xhtml: %w", err)
	}
	_, err = w.Write([]byte(b.generateNavigation()))
	return err
}

func (b *Builder) writeNCX(zw *zip.Writer) error {
	w, err := zw.Create("OEBPS/toc.ncx")
	if err != nil {
		return fmt.Errorf("failed to create toc.ncx: %w", err)
	}
	_, err = w.Write([]byte(b.generateNCX()))
	return err
}

func (b *Builder) writeStylesheet(zw *zip.Writer, profile naming.Profile) error {
	w, err := zw.Create("OEBPS/Styles/style.css")
	if err != nil {
		return fmt.Errorf("failed to create style.css: %w", err)
	}
	css := standardStylesheet
	if profile == naming.ProfileKindle {
		css = readerStylesheet
	}
	_, err = w.Write([]byte(css))
	return err
}

func (b *Builder) writeChapter(zw *zip.Writer, ch models.ChapterNode, profile naming.Profile) error {
	name := "OEBPS/" + ch.Filename
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	_, err = w.Write([]byte(b.generateChapterXHTML(ch, profile)))
	return err
}

// writeAssetFile copies a pre-fetched asset into the package under name,
// reading its bytes from localPath, the file the asset downloader wrote
// (see internal/assets). Nothing is fetched over the network here.
func (b *Builder) writeAssetFile(zw *zip.Writer, name, localPath string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("failed to read asset %s: %w", localPath, err)
	}
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	_, err = w.Write(data)
	return err
}

func (b *Builder) writeCover(zw *zip.Writer, profile naming.Profile) error {
	if b.book.CoverLocal == "" {
		return nil
	}

	local := filepath.Join(b.bookDir, "Images", b.book.CoverLocal)
	if err := b.writeAssetFile(zw, "OEBPS/Images/"+b.book.CoverLocal, local); err != nil {
		return err
	}

	w, err := zw.Create("OEBPS/cover.xhtml")
	if err != nil {
		return fmt.Errorf("failed to create cover.xhtml: %w", err)
	}
	_, err = w.Write([]byte(b.generateCoverXHTML()))
	return err
}

// generateUUID produces the package's unique identifier: the book's ISBN
// when known, otherwise a fresh UUID.
func (b *Builder) generateUUID() string {
	if b.book.Metadata.ISBN != "" {
		return "urn:isbn:" + b.book.Metadata.ISBN
	}
	return "urn:uuid:" + uuid.New().String()
}

// BuildToBuffer generates the EPUB and returns it as a byte buffer, useful
// for tests that want to inspect the resulting zip without touching disk.
func (b *Builder) BuildToBuffer(profile naming.Profile) (*bytes.Buffer, error) {
	buf := new(bytes.Buffer)
	if err := b.WriteTo(buf, profile); err != nil {
		return nil, err
	}
	return buf, nil
}
