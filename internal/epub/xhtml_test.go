package epub

import (
	"encoding/xml"
	"io"
	"strings"
	"testing"

	"github.com/mfathy/safaribooks/internal/models"
	"github.com/mfathy/safaribooks/internal/naming"
)

func TestSelfCloseVoidElements(t *testing.T) {
	cases := map[string]string{
		`<p>hi</p><img src="fig1.png">`: `<p>hi</p><img src="fig1.png" />`,
		`line one<br>line two`:          `line one<br />line two`,
		`<img src="a.png"/>`:             `<img src="a.png" />`,
		`<hr><p>text</p>`:                `<hr /><p>text</p>`,
		`<IMG SRC="a.png">`:              `<IMG SRC="a.png" />`,
	}
	for in, want := range cases {
		if got := selfCloseVoidElements(in); got != want {
			t.Errorf("selfCloseVoidElements(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGenerateChapterXHTML_IsWellFormed(t *testing.T) {
	dir := t.TempDir()
	book := sampleBook()
	b := NewBuilder(book, dir)

	ch := models.ChapterNode{
		Filename: "ch01.xhtml",
		Title:    "Intro",
		Body:     `<h1>Intro</h1><p>hello</p><img src="Images/fig1.png"><br><hr>`,
	}

	doc := b.generateChapterXHTML(ch, naming.ProfileStandard)

	if strings.Contains(doc, "<img src=\"Images/fig1.png\">") {
		t.Error("expected the bare img tag to be self-closed")
	}

	dec := xml.NewDecoder(strings.NewReader(doc))
	for {
		_, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("generated chapter XHTML is not well-formed: %v", err)
		}
	}
}
