package consolidate

import (
	"sort"
	"time"

	gferrors "github.com/logflow/geoflow/pkg/errors"
	"github.com/logflow/geoflow/pkg/ingest/core"
)

// Diagnostic is one skipped file or row.
type Diagnostic struct {
	Path    string
	Row     int64 // 0 for file-level skips
	Code    gferrors.Code
	Message string
}

// Summary reports the outcome of one run.
type Summary struct {
	RunID   string
	DataDir string

	FilesSeen   int
	FilesParsed int
	// Skipped counts skipped files and walk entries by reason.
	Skipped map[string]int

	RowsEmitted int
	RowsSkipped int
	Columns     []string

	// Formats counts parsed files per format.
	Formats map[string]int
	// Degraded lists files where a disabled capability left values null.
	Degraded []string

	Artifacts   []*core.SinkResult
	Uploaded    []string
	Diagnostics []Diagnostic
	Notices     []string

	Duration time.Duration

	// Failed is set when an optional artifact or the upload failed. The
	// CSV still exists, but the run should exit non-zero.
	Failed bool
}

func newSummary(runID, dataDir string) *Summary {
	return &Summary{
		RunID:   runID,
		DataDir: dataDir,
		Skipped: make(map[string]int),
		Formats: make(map[string]int),
	}
}

// skipFile records a file-level skip.
func (s *Summary) skipFile(path string, err error) {
	code := gferrors.GetCode(err)
	s.Skipped[code.Reason()]++
	s.Diagnostics = append(s.Diagnostics, Diagnostic{Path: path, Code: code, Message: err.Error()})
}

// skipRow records a row-level skip.
func (s *Summary) skipRow(path string, re core.RowError) {
	s.RowsSkipped++
	code := gferrors.GetCode(re.Error)
	if code == gferrors.CodeUnknown {
		code = gferrors.CodeRowShape
	}
	s.Diagnostics = append(s.Diagnostics, Diagnostic{
		Path:    path,
		Row:     re.RowNumber,
		Code:    code,
		Message: re.Error.Error(),
	})
}

// SkippedFiles returns the total number of skipped files.
func (s *Summary) SkippedFiles() int {
	n := 0
	for _, c := range s.Skipped {
		n += c
	}
	return n
}

// SkipReasons returns the skip reasons in sorted order.
func (s *Summary) SkipReasons() []string {
	reasons := make([]string, 0, len(s.Skipped))
	for r := range s.Skipped {
		reasons = append(reasons, r)
	}
	sort.Strings(reasons)
	return reasons
}

// Artifact returns the written artifact of the given format, or nil.
func (s *Summary) Artifact(format string) *core.SinkResult {
	for _, a := range s.Artifacts {
		if a.Format == format {
			return a
		}
	}
	return nil
}
