package output

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dshills/wordbatch/internal/config"
	"github.com/dshills/wordbatch/internal/llm"
)

// File and directory names inside a run's output directory.
const (
	ResultsDirName  = "results"
	LogsDirName     = "logs"
	LogFileName     = "run.log"
	SummaryFileName = "summary.csv"
	RunFileName     = "run.json"
	ReportExt       = ".md"
)

// SummaryHeader is the fixed column order of summary.csv.
var SummaryHeader = []string{
	"filename",
	"filepath",
	"status",
	"elapsed_sec",
	"input_chars",
	"input_tokens_est",
	"mode",
	"output_path",
	"error_message",
}

// SummaryRow is one line of summary.csv.
type SummaryRow struct {
	Filename       string  `json:"filename"`
	Filepath       string  `json:"filepath"`
	Status         string  `json:"status"`
	ElapsedSec     float64 `json:"elapsed_sec"`
	InputChars     int     `json:"input_chars"`
	InputTokensEst int     `json:"input_tokens_est"`
	Mode           string  `json:"mode"`
	OutputPath     string  `json:"output_path"`
	ErrorMessage   string  `json:"error_message"`
}

func (r SummaryRow) record() []string {
	return []string{
		r.Filename,
		r.Filepath,
		r.Status,
		strconv.FormatFloat(r.ElapsedSec, 'f', 2, 64),
		strconv.Itoa(r.InputChars),
		strconv.Itoa(r.InputTokensEst),
		r.Mode,
		r.OutputPath,
		r.ErrorMessage,
	}
}

// RunMetadata is the content of run.json.
type RunMetadata struct {
	RunID       string        `json:"run_id"`
	StartTime   time.Time     `json:"start_time"`
	EndTime     time.Time     `json:"end_time"`
	DurationSec float64       `json:"duration_sec"`
	Total       int           `json:"total"`
	Success     int           `json:"success"`
	Failed      int           `json:"failed"`
	Skipped     int           `json:"skipped"`
	Cancelled   int           `json:"cancelled"`
	Usage       llm.Totals    `json:"usage"`
	Config      config.Config `json:"config"`
}

// Store writes one run's outputs under a base directory. It is safe for
// concurrent use.
type Store struct {
	baseDir string

	mu                 sync.Mutex
	summaryInitialized bool
}

// NewStore returns a Store rooted at baseDir. Call Prepare before writing.
func NewStore(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// BaseDir returns the output root.
func (s *Store) BaseDir() string { return s.baseDir }

// ResultsDir returns the directory holding per-document reports.
func (s *Store) ResultsDir() string { return filepath.Join(s.baseDir, ResultsDirName) }

// LogsDir returns the directory holding run logs.
func (s *Store) LogsDir() string { return filepath.Join(s.baseDir, LogsDirName) }

// SummaryPath returns the path of summary.csv.
func (s *Store) SummaryPath() string { return filepath.Join(s.baseDir, SummaryFileName) }

// MetadataPath returns the path of run.json.
func (s *Store) MetadataPath() string { return filepath.Join(s.baseDir, RunFileName) }

// Prepare creates the results and logs directories.
func (s *Store) Prepare() error {
	for _, dir := range []string{s.ResultsDir(), s.LogsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}
	return nil
}

// ReportName maps a document name to its report file name.
func ReportName(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ReportExt
}

// WriteResult stores content as the report for the named document,
// replacing any previous report, and returns its path.
func (s *Store) WriteResult(name, content string) (string, error) {
	path := filepath.Join(s.ResultsDir(), ReportName(name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating results directory: %w", err)
	}
	if err := writeFileAtomic(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("writing result %s: %w", path, err)
	}
	return path, nil
}

// AppendSummary adds one row to summary.csv. The first append through a
// Store starts a fresh file with the header; later appends add rows.
func (s *Store) AppendSummary(row SummaryRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if !s.summaryInitialized {
		flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	}
	if err := os.MkdirAll(s.baseDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	f, err := os.OpenFile(s.SummaryPath(), flags, 0o644)
	if err != nil {
		return fmt.Errorf("opening summary: %w", err)
	}

	w := csv.NewWriter(f)
	if !s.summaryInitialized {
		if err := w.Write(SummaryHeader); err != nil {
			f.Close()
			return fmt.Errorf("writing summary header: %w", err)
		}
	}
	if err := w.Write(row.record()); err != nil {
		f.Close()
		return fmt.Errorf("writing summary row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("writing summary row: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing summary: %w", err)
	}
	s.summaryInitialized = true
	return nil
}

// WriteRunMetadata replaces run.json. The configuration is sanitized
// before it is written.
func (s *Store) WriteRunMetadata(meta RunMetadata) error {
	meta.Config = meta.Config.Sanitized()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return fmt.Errorf("marshaling run metadata: %w", err)
	}
	if err := os.MkdirAll(s.baseDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	if err := writeFileAtomic(s.MetadataPath(), buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing run metadata: %w", err)
	}
	return nil
}

// ReadSummary parses a summary.csv. Header rows are skipped wherever they
// appear.
func ReadSummary(path string) ([]SummaryRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(SummaryHeader)
	var rows []SummaryRow
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return rows, fmt.Errorf("parsing %s: %w", path, err)
		}
		if rec[0] == SummaryHeader[0] && rec[2] == SummaryHeader[2] {
			continue
		}
		row, err := parseRow(rec)
		if err != nil {
			return rows, fmt.Errorf("parsing %s: %w", path, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseRow(rec []string) (SummaryRow, error) {
	elapsed, err := strconv.ParseFloat(rec[3], 64)
	if err != nil {
		return SummaryRow{}, fmt.Errorf("elapsed_sec: %w", err)
	}
	chars, err := strconv.Atoi(rec[4])
	if err != nil {
		return SummaryRow{}, fmt.Errorf("input_chars: %w", err)
	}
	tokens, err := strconv.Atoi(rec[5])
	if err != nil {
		return SummaryRow{}, fmt.Errorf("input_tokens_est: %w", err)
	}
	return SummaryRow{
		Filename:       rec[0],
		Filepath:       rec[1],
		Status:         rec[2],
		ElapsedSec:     elapsed,
		InputChars:     chars,
		InputTokensEst: tokens,
		Mode:           rec[6],
		OutputPath:     rec[7],
		ErrorMessage:   rec[8],
	}, nil
}

// ReadRunMetadata parses a run.json. A missing file yields fs.ErrNotExist.
func ReadRunMetadata(path string) (RunMetadata, error) {
	var meta RunMetadata
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return meta, err
		}
		return meta, fmt.Errorf("reading run metadata: %w", err)
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("parsing run metadata: %w", err)
	}
	return meta, nil
}
