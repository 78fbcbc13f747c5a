package epub

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mfathy/safaribooks/internal/models"
	"github.com/mfathy/safaribooks/internal/naming"
)

func sampleBook() *models.Book {
	return &models.Book{
		Metadata: models.BookMetadata{
			Title:   "Learning Go",
			Authors: []string{"Jon Bodner"},
			ISBN:    "9781492077213",
		},
		Chapters: []models.ChapterNode{
			{Filename: "ch01.xhtml", Title: "Setting Up Your Go Environment", Fragment: "p1", Body: "<h1 id=\"p1\">Setting Up Your Go Environment</h1><p>Hello.</p>"},
			{Filename: "ch02.xhtml", Title: "Predeclared Types and Declarations", Body: "<h1>Predeclared Types and Declarations</h1><p>More.</p>"},
		},
		CoverLocal: "cover.jpg",
	}
}

func writeFixtureAssets(t *testing.T, dir string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(dir, "Images"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "Images", "cover.jpg"), []byte("fake-jpeg-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestBuildToBuffer_MimetypeFirstAndUncompressed(t *testing.T) {
	dir := t.TempDir()
	writeFixtureAssets(t, dir)
	b := NewBuilder(sampleBook(), dir)

	buf, err := b.BuildToBuffer(naming.ProfileStandard)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("failed to open zip: %v", err)
	}
	if len(zr.File) == 0 {
		t.Fatal("empty archive")
	}
	first := zr.File[0]
	if first.Name != "mimetype" {
		t.Fatalf("expected mimetype to be the first entry, got %s", first.Name)
	}
	if first.Method != zip.Store {
		t.Error("expected mimetype to be stored uncompressed")
	}
}

func TestBuildToBuffer_ManifestAndSpine(t *testing.T) {
	dir := t.TempDir()
	writeFixtureAssets(t, dir)
	b := NewBuilder(sampleBook(), dir)

	buf, err := b.BuildToBuffer(naming.ProfileStandard)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatal(err)
	}

	names := map[string]bool{}
	for _, f := range zr.File {
		names[f.Name] = true
	}
	for _, want := range []string{
		"META-INF/container.xml", "OEBPS/content.opf", "OEBPS/nav.xhtml",
		"OEBPS/toc.ncx", "OEBPS/Styles/style.css", "OEBPS/ch01.xhtml",
		"OEBPS/ch02.xhtml", "OEBPS/cover.xhtml", "OEBPS/Images/cover.jpg",
	} {
		if !names[want] {
			t.Errorf("missing expected entry %s", want)
		}
	}

	opf := readZipFile(t, zr, "OEBPS/content.opf")
	if !strings.Contains(opf, `<itemref idref="chapter-0"/>`) || !strings.Contains(opf, `<itemref idref="chapter-1"/>`) {
		t.Error("spine missing chapter entries in order")
	}
	if strings.Index(opf, `idref="chapter-0"`) > strings.Index(opf, `idref="chapter-1"`) {
		t.Error("spine order is not canonical")
	}
}

func TestBuildToBuffer_NavigationFragments(t *testing.T) {
	dir := t.TempDir()
	writeFixtureAssets(t, dir)
	b := NewBuilder(sampleBook(), dir)

	buf, err := b.BuildToBuffer(naming.ProfileStandard)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatal(err)
	}

	nav := readZipFile(t, zr, "OEBPS/nav.xhtml")
	if !strings.Contains(nav, `href="ch01.xhtml#p1"`) {
		t.Error("expected fragment-qualified link for chapter with a fragment")
	}
	if !strings.Contains(nav, `href="ch02.xhtml"`) {
		t.Error("expected plain link for chapter without a fragment")
	}
	if strings.Contains(nav, "ch02.xhtml#") {
		t.Error("chapter without a fragment should not carry a trailing #")
	}
}

func TestBuildToBuffer_MissingImageFileDoesNotFailTheBuild(t *testing.T) {
	dir := t.TempDir()
	writeFixtureAssets(t, dir)

	book := sampleBook()
	book.Images = []models.AssetRef{
		{URL: "https://example.com/fig1.png", LocalName: "fig1.png"},
	}
	b := NewBuilder(book, dir)

	buf, err := b.BuildToBuffer(naming.ProfileStandard)
	if err != nil {
		t.Fatalf("a missing image file must not fail the build, got: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range zr.File {
		if f.Name == "OEBPS/Images/fig1.png" {
			t.Error("expected the missing image to be omitted from the container")
		}
	}
}

func TestBuildDual_DistinctStylesheets(t *testing.T) {
	dir := t.TempDir()
	writeFixtureAssets(t, dir)
	b := NewBuilder(sampleBook(), dir)

	standardBuf, err := b.BuildToBuffer(naming.ProfileStandard)
	if err != nil {
		t.Fatal(err)
	}
	kindleBuf, err := b.BuildToBuffer(naming.ProfileKindle)
	if err != nil {
		t.Fatal(err)
	}

	zrStd, _ := zip.NewReader(bytes.NewReader(standardBuf.Bytes()), int64(standardBuf.Len()))
	zrKindle, _ := zip.NewReader(bytes.NewReader(kindleBuf.Bytes()), int64(kindleBuf.Len()))

	stdCSS := readZipFile(t, zrStd, "OEBPS/Styles/style.css")
	kindleCSS := readZipFile(t, zrKindle, "OEBPS/Styles/style.css")
	if stdCSS == kindleCSS {
		t.Error("expected distinct bundled CSS between profiles")
	}
	if !strings.Contains(kindleCSS, "page-break-before") {
		t.Error("reader-optimized stylesheet should set page-break-before on headings")
	}
}

func readZipFile(t *testing.T, zr *zip.Reader, name string) string {
	t.Helper()
	for _, f := range zr.File {
		if f.Name == name {
			rc, err := f.Open()
			if err != nil {
				t.Fatal(err)
			}
			defer rc.Close()
			buf := new(bytes.Buffer)
			if _, err := buf.ReadFrom(rc); err != nil {
				t.Fatal(err)
			}
			return buf.String()
		}
	}
	t.Fatalf("zip entry %s not found", name)
	return ""
}
