// Package document extracts plain text and structural metadata from source
// documents.
//
// Only Office Open XML word processing files (.docx) are supported. The
// extractor reads word/document.xml straight from the zip container, joins
// body paragraphs line by line, and renders tables as pipe-delimited rows.
// Legacy .doc files and every other extension are rejected with
// ErrUnsupported so the scheduler can mark them skipped instead of failed.
package document
