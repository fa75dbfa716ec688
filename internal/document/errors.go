package document

import (
	"errors"
	"fmt"
)

// ErrUnsupported is returned for files the extractor cannot read at all.
var ErrUnsupported = errors.New("only .docx files are supported; convert the file before processing")

// ExtractionError reports a supported file that could not be read.
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("failed to read document %s: %v", e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}
