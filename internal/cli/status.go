package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dshills/wordbatch/internal/output"
)

var (
	flagStatusDir    string
	flagStatusFormat string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the outcome of the last run in an output folder",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagStatusDir == "" {
			return errors.New("--output-dir is required")
		}
		dir, err := filepath.Abs(flagStatusDir)
		if err != nil {
			return err
		}
		report, err := loadStatus(dir)
		if err != nil {
			return err
		}
		w, err := output.GetWriter(flagStatusFormat)
		if err != nil {
			return err
		}
		return w.Write(os.Stdout, report)
	},
}

// loadStatus reads the summary and run metadata from an output folder. A
// missing run.json is tolerated; a missing summary is not.
func loadStatus(dir string) (*output.StatusReport, error) {
	store := output.NewStore(dir)
	rows, err := output.ReadSummary(store.SummaryPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("no run found in %s", dir)
		}
		return nil, err
	}
	report := &output.StatusReport{OutputDir: dir, Rows: rows}
	meta, err := output.ReadRunMetadata(store.MetadataPath())
	switch {
	case err == nil:
		report.Metadata = &meta
	case !errors.Is(err, fs.ErrNotExist):
		return nil, err
	}
	return report, nil
}

func init() {
	statusCmd.Flags().StringVar(&flagStatusDir, "output-dir", "", "Output folder of a previous run")
	statusCmd.Flags().StringVar(&flagStatusFormat, "format", "text", "Output format (text, json)")
}
