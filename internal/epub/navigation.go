package epub

import (
	"fmt"
	"strings"

	"github.com/mfathy/safaribooks/internal/models"
)

// generateNavigation creates the nav.xhtml navigation document. Every
// chapter is listed by its title as a hyperlink of the form
// "chapter-file#fragment"; empty fragments are omitted.
func (b *Builder) generateNavigation() string {
	var sb strings.Builder

	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">
<head>
  <title>Table of Contents</title>
  <link rel="stylesheet" type="text/css" href="Styles/style.css"/>
</head>
<body>
  <nav epub:type="toc" id="toc">
    <h1>Table of Contents</h1>
    <ol>
`)

	for _, ch := range b.book.Chapters {
		sb.WriteString(b.navEntry(ch))
	}

	sb.WriteString(`    </ol>
  </nav>
</body>
</html>
`)

	return sb.String()
}

func (b *Builder) navHref(ch models.ChapterNode) string {
	if ch.Fragment != "" {
		return ch.Filename + "#" + ch.Fragment
	}
	return ch.Filename
}

func (b *Builder) navEntry(ch models.ChapterNode) string {
	return fmt.Sprintf("      <li><a href=\"%s\">%s</a></li>\n", b.navHref(ch), escapeXML(chapterTitle(ch)))
}

// chapterTitle derives a display title for a chapter: the heading text
// captured during fetch, falling back to the filename stem when parsing
// found no heading.
func chapterTitle(ch models.ChapterNode) string {
	if ch.Title != "" {
		return ch.Title
	}
	name := strings.TrimSuffix(ch.Filename, ".xhtml")
	name = strings.TrimSuffix(name, ".html")
	return name
}

// generateNCX creates toc.ncx, emitted for EPUB2 reader compatibility
// alongside the EPUB3 nav.xhtml.
func (b *Builder) generateNCX() string {
	var sb strings.Builder

	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">
  <head>
    <meta name="dtb:uid" content="`)
	sb.WriteString(b.generateUUID())
	sb.WriteString(`"/>
    <meta name="dtb:depth" content="1"/>
    <meta name="dtb:totalPageCount" content="0"/>
    <meta name="dtb:maxPageNumber" content="0"/>
  </head>
  <docTitle>
    <text>`)
	sb.WriteString(escapeXML(b.book.Metadata.Title))
	sb.WriteString(`</text>
  </docTitle>
  <navMap>
`)

	for i, ch := range b.book.Chapters {
		sb.WriteString(fmt.Sprintf("    <navPoint id=\"navpoint-%d\" playOrder=\"%d\">\n", i+1, i+1))
		sb.WriteString(fmt.Sprintf("      <navLabel><text>%s</text></navLabel>\n", escapeXML(chapterTitle(ch))))
		sb.WriteString(fmt.Sprintf("      <content src=\"%s\"/>\n", b.navHref(ch)))
		sb.WriteString("    </navPoint>\n")
	}

	sb.WriteString(`  </navMap>
</ncx>
`)

	return sb.String()
}
