package epub

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mfathy/safaribooks/internal/models"
	"github.com/mfathy/safaribooks/internal/naming"
)

// voidElementPattern matches the void HTML elements goquery/x-net-html
// serializes without a self-closing slash (e.g. "<img src=\"x.png\">",
// "<br>"). XHTML requires every element to be closed, so these are
// rewritten to "<img src=\"x.png\" />" / "<br />" here, at the package
// boundary, rather than during the lenient HTML parse.
var voidElementPattern = regexp.MustCompile(`(?i)<(img|br|hr|input|meta|link|area|base|col|embed|source|track|wbr)((?:\s+[^<>]*?)?)\s*/?>`)

// selfCloseVoidElements rewrites bare void-element tags into their
// self-closed XHTML form.
func selfCloseVoidElements(html string) string {
	return voidElementPattern.ReplaceAllString(html, `<$1$2 />`)
}

// generateChapterXHTML wraps a chapter's already-normalized XHTML body
// (produced by the book fetcher's HTML normalization) in the document
// shell, adding the profile-specific class used by the bundled
// stylesheet's page-break rules.
func (b *Builder) generateChapterXHTML(ch models.ChapterNode, profile naming.Profile) string {
	var sb strings.Builder

	title := chapterTitle(ch)
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml">
<head>
  <title>`)
	sb.WriteString(escapeXML(title))
	sb.WriteString(`</title>
  <link rel="stylesheet" type="text/css" href="Styles/style.css"/>
</head>
<body`)

	if profile == naming.ProfileKindle {
		sb.WriteString(` class="reader-optimized"`)
	}
	sb.WriteString(">\n")

	sb.WriteString(selfCloseVoidElements(ch.Body))

	sb.WriteString("\n</body>\n</html>\n")

	return sb.String()
}

// generateCoverXHTML wraps the cover image, constrained to at most 90vh,
// in its own document.
func (b *Builder) generateCoverXHTML() string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml">
<head>
  <title>Cover</title>
  <link rel="stylesheet" type="text/css" href="Styles/style.css"/>
</head>
<body class="cover-page">
  <img src="Images/%s" alt="Cover" class="cover-image"/>
</body>
</html>
`, escapeXML(b.book.CoverLocal))
}

// standardStylesheet is the bundled CSS for the standard profile.
const standardStylesheet = `/* safaribooks standard stylesheet */

body {
  font-family: Georgia, "Times New Roman", serif;
  font-size: 1em;
  line-height: 1.6;
  margin: 1em;
  text-align: left;
}

h1, h2, h3, h4, h5, h6 {
  font-family: "Helvetica Neue", Helvetica, Arial, sans-serif;
  font-weight: bold;
  margin-top: 1.5em;
  margin-bottom: 0.5em;
}

h1 {
  font-size: 1.8em;
  border-bottom: 1px solid #ccc;
  padding-bottom: 0.3em;
}

h2 {
  font-size: 1.4em;
}

h3 {
  font-size: 1.2em;
}

p {
  margin: 0.5em 0;
}

blockquote {
  margin: 1em 2em;
  font-style: italic;
  border-left: 3px solid #ccc;
  padding-left: 1em;
}

.cover-page {
  text-align: center;
  margin: 0;
}

.cover-image {
  max-height: 90vh;
  max-width: 100%;
}
`

// readerStylesheet is the bundled CSS for the reader-optimized ("Kindle")
// profile: headings start a new page, justified text with widow/orphan
// control, and no first-line indent on the paragraph following a heading.
const readerStylesheet = `/* safaribooks reader-optimized stylesheet */

body.reader-optimized {
  font-family: Georgia, "Times New Roman", serif;
  font-size: 1em;
  line-height: 1.6;
  margin: 1em;
  text-align: justify;
  orphans: 2;
  widows: 2;
}

body.reader-optimized h1,
body.reader-optimized h2,
body.reader-optimized h3,
body.reader-optimized h4,
body.reader-optimized h5,
body.reader-optimized h6 {
  font-family: "Helvetica Neue", Helvetica, Arial, sans-serif;
  font-weight: bold;
  margin-top: 1.5em;
  margin-bottom: 0.5em;
  page-break-before: always;
  page-break-after: avoid;
}

body.reader-optimized h1 + p,
body.reader-optimized h2 + p,
body.reader-optimized h3 + p,
body.reader-optimized h4 + p,
body.reader-optimized h5 + p,
body.reader-optimized h6 + p {
  text-indent: 0;
}

body.reader-optimized p {
  margin: 0.5em 0;
  text-indent: 1.5em;
  orphans: 2;
  widows: 2;
}

body.reader-optimized blockquote {
  margin: 1em 2em;
  font-style: italic;
  border-left: 3px solid #ccc;
  padding-left: 1em;
}

.cover-page {
  text-align: center;
  margin: 0;
}

.cover-image {
  max-height: 90vh;
  max-width: 100%;
}
`
