// Package document extracts analyzable page text from uploaded files.
package document

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// MaxPages bounds how many pages one upload may carry. Larger documents
// are rejected before any extraction work.
const MaxPages = 2000

// ExtractPages returns one string per PDF page, in reading order. Pages
// with no extractable text come back as empty strings rather than being
// dropped, so indices in the result always equal the document's own page
// numbering minus one.
func ExtractPages(data []byte) ([]string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("document: open pdf: %w", err)
	}

	total := reader.NumPage()
	if total > MaxPages {
		return nil, fmt.Errorf("document: %d pages exceeds limit of %d", total, MaxPages)
	}

	pages := make([]string, total)
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// Unextractable pages stay blank; the page count is preserved.
			continue
		}
		pages[i-1] = text
	}
	return pages, nil
}
