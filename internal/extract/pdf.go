package extract

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"

	"github.com/xxxsen/examrag/internal/model"
)

type pdfExtractor struct{}

func (pdfExtractor) ContentType() string {
	return model.ContentTypePDF
}

func (pdfExtractor) Extract(data []byte) (text string, err error) {
	// the pdf reader panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()
	rdr, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	var sb bytes.Buffer
	for i := 1; i <= rdr.NumPage(); i++ {
		page := rdr.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("read page %d: %w", i, err)
		}
		sb.WriteString(content)
		sb.WriteString("\n")
	}
	if sb.Len() == 0 {
		plain, err := rdr.GetPlainText()
		if err != nil {
			return "", fmt.Errorf("read pdf text: %w", err)
		}
		if _, err := io.Copy(&sb, plain); err != nil {
			return "", fmt.Errorf("read pdf buffer: %w", err)
		}
	}
	return sb.String(), nil
}

func init() {
	Register(".pdf", pdfExtractor{})
}
