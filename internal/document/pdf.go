package document

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
)

const pageMarginPt = 28

// MaterialFilename returns the stored-material name for a plan PDF,
// material_{yyyy-mm-dd}_{slug}.pdf.
func MaterialFilename(t time.Time, slug string) string {
	return fmt.Sprintf("material_%s_%s.pdf", t.Format("2006-01-02"), slug)
}

// RenderPDF paginates the document's current HTML onto A4 pages with the
// standard margins and returns the PDF bytes. The content is taken as an
// explicit string from the document state, so the output always reflects
// user edits.
func RenderPDF(d *Document) ([]byte, error) {
	pdf := fpdf.New("P", "pt", "A4", "")
	pdf.SetMargins(pageMarginPt, pageMarginPt, pageMarginPt)
	pdf.SetAutoPageBreak(true, pageMarginPt)
	pdf.AddPage()
	pdf.SetFont("Helvetica", "", 11)

	tr := pdf.UnicodeTranslatorFromDescriptor("")
	writer := pdf.HTMLBasicNew()
	writer.Write(14, tr(simplifyHTML(d.HTML())))

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

var (
	headingOpen  = regexp.MustCompile(`(?i)<h[1-6][^>]*>`)
	headingClose = regexp.MustCompile(`(?i)</h[1-6]>`)
	listItem     = regexp.MustCompile(`(?i)<li[^>]*>`)
	paraClose    = regexp.MustCompile(`(?i)</p>`)
	otherTags    = regexp.MustCompile(`(?i)</?(?:p|ul|ol|li|div|span|blockquote|pre|code|table|thead|tbody|tr|td|th|h[1-6])[^>]*>`)
)

// simplifyHTML reduces sanitized rich-text HTML to the tag subset the PDF
// writer understands, mapping block structure to bold runs, bullets, and
// line breaks.
func simplifyHTML(html string) string {
	s := strings.ReplaceAll(html, "\n", " ")
	s = headingOpen.ReplaceAllString(s, "<br><b>")
	s = headingClose.ReplaceAllString(s, "</b><br>")
	s = listItem.ReplaceAllString(s, "<br>• ")
	s = paraClose.ReplaceAllString(s, "<br><br>")
	s = otherTags.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
