package epub

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// generatePackage creates the content.opf package document.
func (b *Builder) generatePackage() string {
	var sb strings.Builder

	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="pub-id">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
`)

	md := b.book.Metadata
	sb.WriteString(fmt.Sprintf("    <dc:identifier id=\"pub-id\">%s</dc:identifier>\n", b.generateUUID()))
	sb.WriteString(fmt.Sprintf("    <dc:title>%s</dc:title>\n", escapeXML(md.Title)))
	for _, author := range md.Authors {
		sb.WriteString(fmt.Sprintf("    <dc:creator>%s</dc:creator>\n", escapeXML(author)))
	}
	sb.WriteString("    <dc:language>en</dc:language>\n")
	if md.Publisher != "" {
		sb.WriteString(fmt.Sprintf("    <dc:publisher>%s</dc:publisher>\n", escapeXML(md.Publisher)))
	}
	if md.Description != "" {
		sb.WriteString(fmt.Sprintf("    <dc:description>%s</dc:description>\n", escapeXML(md.Description)))
	}
	if md.Rights != "" {
		sb.WriteString(fmt.Sprintf("    <dc:rights>%s</dc:rights>\n", escapeXML(md.Rights)))
	}
	for _, subject := range md.Subjects {
		sb.WriteString(fmt.Sprintf("    <dc:subject>%s</dc:subject>\n", escapeXML(subject)))
	}
	if b.book.CoverLocal != "" {
		sb.WriteString("    <meta name=\"cover\" content=\"cover-img\"/>\n")
	}

	// Modified timestamp, required for EPUB3.
	sb.WriteString(fmt.Sprintf("    <meta property=\"dcterms:modified\">%s</meta>\n",
		time.Now().UTC().Format("2006-01-02T15:04:05Z")))

	sb.WriteString("  </metadata>\n\n")

	sb.WriteString("  <manifest>\n")
	sb.WriteString("    <item id=\"nav\" href=\"nav.xhtml\" media-type=\"application/xhtml+xml\" properties=\"nav\"/>\n")
	sb.WriteString("    <item id=\"ncx\" href=\"toc.ncx\" media-type=\"application/x-dtbncx+xml\"/>\n")
	sb.WriteString("    <item id=\"style\" href=\"Styles/style.css\" media-type=\"text/css\"/>\n")

	if b.book.CoverLocal != "" {
		sb.WriteString("    <item id=\"cover-xhtml\" href=\"cover.xhtml\" media-type=\"application/xhtml+xml\"/>\n")
		sb.WriteString(fmt.Sprintf("    <item id=\"cover-img\" href=\"Images/%s\" media-type=\"%s\" properties=\"cover-image\"/>\n",
			b.book.CoverLocal, mediaTypeForExt(filepath.Ext(b.book.CoverLocal))))
	}

	for i, ch := range b.book.Chapters {
		sb.WriteString(fmt.Sprintf("    <item id=\"chapter-%d\" href=\"%s\" media-type=\"application/xhtml+xml\"/>\n",
			i, ch.Filename))
	}
	for i, css := range b.book.Stylesheets {
		sb.WriteString(fmt.Sprintf("    <item id=\"chstyle-%d\" href=\"Styles/%s\" media-type=\"text/css\"/>\n",
			i, css.LocalName))
	}
	for i, img := range b.book.Images {
		sb.WriteString(fmt.Sprintf("    <item id=\"img-%d\" href=\"Images/%s\" media-type=\"%s\"/>\n",
			i, img.LocalName, mediaTypeForExt(filepath.Ext(img.LocalName))))
	}

	sb.WriteString("  </manifest>\n\n")

	sb.WriteString("  <spine toc=\"ncx\">\n")
	if b.book.CoverLocal != "" {
		sb.WriteString("    <itemref idref=\"cover-xhtml\" linear=\"no\"/>\n")
	}
	for i := range b.book.Chapters {
		sb.WriteString(fmt.Sprintf("    <itemref idref=\"chapter-%d\"/>\n", i))
	}
	sb.WriteString("  </spine>\n")

	if b.book.CoverLocal != "" {
		sb.WriteString(fmt.Sprintf("  <guide>\n    <reference type=\"cover\" title=\"Cover\" href=\"cover.xhtml\"/>\n  </guide>\n"))
	}

	sb.WriteString("</package>\n")

	return sb.String()
}

// mediaTypeForExt returns the OPF media-type for a file extension,
// defaulting to a generic octet stream for anything unrecognized.
func mediaTypeForExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".svg":
		return "image/svg+xml"
	case ".webp":
		return "image/webp"
	case ".css":
		return "text/css"
	default:
		return "application/octet-stream"
	}
}

// escapeXML escapes special XML characters.
func escapeXML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	s = strings.ReplaceAll(s, "'", "&apos;")
	return s
}
