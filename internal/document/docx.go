package document

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// wordNS is the WordprocessingML main namespace.
const wordNS = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"

const bodyPart = "word/document.xml"

// Extractor turns a document on disk into text plus metadata.
type Extractor interface {
	Extract(path string, includeTables bool) (string, Meta, error)
}

// DOCX extracts text from .docx files.
type DOCX struct{}

var _ Extractor = DOCX{}

// Extract reads the document body. The returned Meta has TokenEst unset;
// callers size the text with their own estimator.
func (DOCX) Extract(path string, includeTables bool) (string, Meta, error) {
	if !strings.EqualFold(filepath.Ext(path), ".docx") {
		return "", Meta{}, ErrUnsupported
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", Meta{}, &ExtractionError{Path: path, Err: err}
	}
	defer zr.Close()

	var part *zip.File
	for _, f := range zr.File {
		if f.Name == bodyPart {
			part = f
			break
		}
	}
	if part == nil {
		return "", Meta{}, &ExtractionError{Path: path, Err: fmt.Errorf("missing %s", bodyPart)}
	}

	rc, err := part.Open()
	if err != nil {
		return "", Meta{}, &ExtractionError{Path: path, Err: err}
	}
	defer rc.Close()

	body, err := parseBody(rc)
	if err != nil {
		return "", Meta{}, &ExtractionError{Path: path, Err: err}
	}

	lines := cleanLines(body.paragraphs)
	if includeTables && len(body.tableLines) > 0 {
		lines = append(lines, "")
		lines = append(lines, body.tableLines...)
	}
	text := strings.TrimSpace(strings.Join(lines, "\n"))

	meta := NewMeta()
	meta.ParagraphCount = len(body.paragraphs)
	meta.TableCount = body.tableCount
	meta.CharCount = utf8.RuneCountInString(text)
	return text, meta, nil
}

type docBody struct {
	paragraphs []string
	tableLines []string
	tableCount int
}

// parseBody walks document.xml once. Paragraphs outside tables become body
// lines; paragraphs inside a top-level table cell are folded into that cell.
func parseBody(r io.Reader) (docBody, error) {
	var (
		body      docBody
		para      strings.Builder
		cell      strings.Builder
		cellParas int
		row       []string
		tblDepth  int
	)

	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return body, fmt.Errorf("parsing %s: %w", bodyPart, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Space != wordNS {
				continue
			}
			switch t.Name.Local {
			case "tbl":
				tblDepth++
				if tblDepth == 1 {
					body.tableCount++
				}
			case "tr":
				if tblDepth == 1 {
					row = row[:0]
				}
			case "tc":
				if tblDepth == 1 {
					cell.Reset()
					cellParas = 0
				}
			case "p":
				para.Reset()
			case "t":
				var s string
				if err := dec.DecodeElement(&s, &t); err != nil {
					return body, fmt.Errorf("parsing %s: %w", bodyPart, err)
				}
				para.WriteString(s)
			case "tab":
				para.WriteByte('\t')
			case "br", "cr":
				para.WriteByte('\n')
			}

		case xml.EndElement:
			if t.Name.Space != wordNS {
				continue
			}
			switch t.Name.Local {
			case "p":
				if tblDepth == 0 {
					body.paragraphs = append(body.paragraphs, para.String())
					continue
				}
				if cellParas > 0 {
					cell.WriteByte('\n')
				}
				cell.WriteString(para.String())
				cellParas++
			case "tc":
				if tblDepth == 1 {
					text := strings.ReplaceAll(strings.TrimSpace(cell.String()), "\n", " ")
					row = append(row, text)
				}
			case "tr":
				if tblDepth == 1 {
					body.tableLines = append(body.tableLines, "| "+strings.Join(row, " | ")+" |")
				}
			case "tbl":
				if tblDepth == 1 {
					body.tableLines = append(body.tableLines, "")
				}
				tblDepth--
			}
		}
	}
	return body, nil
}

// cleanLines trims every line and collapses runs of blank lines into one.
// Leading blank lines are dropped.
func cleanLines(lines []string) []string {
	cleaned := make([]string, 0, len(lines))
	lastBlank := true
	for _, line := range lines {
		s := strings.TrimSpace(line)
		if s == "" {
			if !lastBlank {
				cleaned = append(cleaned, "")
			}
			lastBlank = true
			continue
		}
		cleaned = append(cleaned, s)
		lastBlank = false
	}
	return cleaned
}
