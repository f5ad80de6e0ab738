package ocr

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PageCount parses the document and returns its number of pages.
func PageCount(doc *Document) (int, error) {
	const op = "PageCount"

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	n, err := api.PageCount(bytes.NewReader(doc.Content), conf)
	if err != nil {
		return 0, WrapOCRError(op, ErrInvalidPDF, fmt.Sprintf("pdfcpu: %v", err))
	}
	if n == 0 {
		return 0, WrapOCRError(op, ErrEmptyDocument, "document has no pages")
	}
	return n, nil
}
