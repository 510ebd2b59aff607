package documents

import (
	"bytes"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PDFPageCounter counts pages with pdfcpu in relaxed validation mode, since
// utility providers emit plenty of slightly malformed PDFs.
type PDFPageCounter struct{}

func (PDFPageCounter) PageCount(data []byte) (int, error) {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return api.PageCount(bytes.NewReader(data), cfg)
}
