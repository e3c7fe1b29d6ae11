// Package results reads and writes the files a run leaves in its output directory. File names are fixed so
// that the output of two runs can be diffed.
package results

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/armadaproject/renderbench/internal/common/benchmarkerrors"
)

const (
	JobIdsFile                 = "job_ids.txt"
	LoadTestResultsFile        = "load_test_results.json"
	VerificationResultsFile    = "verification_results.json"
	PerformanceTestResultsFile = "performance_test_results.json"
	LogFile                    = "renderbench.log"
)

// Writer writes result files into a single directory, creating it on first use.
type Writer struct {
	dir string
}

func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

func (w *Writer) Dir() string {
	return w.dir
}

// Path returns where a file of the given name is written.
func (w *Writer) Path(name string) string {
	return filepath.Join(w.dir, name)
}

// WriteJobIds writes one job id per line.
func (w *Writer) WriteJobIds(jobIds []string) error {
	var buf bytes.Buffer
	for _, id := range jobIds {
		buf.WriteString(id)
		buf.WriteByte('\n')
	}
	return w.write(JobIdsFile, buf.Bytes())
}

// WriteJSON writes v as indented JSON.
func (w *Writer) WriteJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.WithStack(err)
	}
	return w.write(name, append(data, '\n'))
}

// write replaces the file in one rename, so readers never see a partially written file.
func (w *Writer) write(name string, data []byte) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return errors.WithStack(err)
	}
	tmp, err := os.CreateTemp(w.dir, "."+name+".*")
	if err != nil {
		return errors.WithStack(err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.WithStack(err)
	}
	if err := tmp.Close(); err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(os.Rename(tmp.Name(), w.Path(name)))
}

// ReadJobIds reads a job id list written by WriteJobIds. Blank lines and surrounding whitespace are ignored.
// An empty list is an error, since there would be nothing to verify.
func ReadJobIds(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WithStack(&benchmarkerrors.ErrNotFound{Type: "job id file", Value: path})
		}
		return nil, errors.WithStack(err)
	}
	defer f.Close()

	var jobIds []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if id := strings.TrimSpace(scanner.Text()); id != "" {
			jobIds = append(jobIds, id)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.WithStack(err)
	}
	if len(jobIds) == 0 {
		return nil, errors.WithStack(&benchmarkerrors.ErrInvalidArgument{
			Name:    "jobIdsFile",
			Value:   path,
			Message: "file contains no job ids",
		})
	}
	return jobIds, nil
}
