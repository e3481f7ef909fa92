package decoder

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"
)

// decodePDF extracts the plain text layer from a PDF document.
func decodePDF(data []byte) (*Result, error) {
	rdr, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: open pdf: %v", ErrDecoding, err)
	}

	plain, err := rdr.GetPlainText()
	if err != nil {
		return nil, fmt.Errorf("%w: read pdf text: %v", ErrDecoding, err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return nil, fmt.Errorf("%w: copy pdf text: %v", ErrDecoding, err)
	}

	text := normalize(buf.String())
	if text == "" {
		return nil, ErrEmptyDocument
	}
	return &Result{Text: text}, nil
}
