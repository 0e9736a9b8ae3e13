package job

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

// FormatFor picks the job list format from a file name. Anything that is not
// .yaml or .yml is JSON; the checkpoint's historical name has no extension.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

func Encode(w io.Writer, jobs []Job, f Format) error {
	if jobs == nil {
		jobs = []Job{}
	}
	switch f {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		if err := enc.Encode(jobs); err != nil {
			return err
		}
		return enc.Close()
	default:
		return json.NewEncoder(w).Encode(jobs)
	}
}

func Decode(r io.Reader, f Format) ([]Job, error) {
	var jobs []Job
	var err error
	switch f {
	case FormatYAML:
		err = yaml.NewDecoder(r).Decode(&jobs)
		if err == io.EOF {
			err = nil
		}
	default:
		err = json.NewDecoder(r).Decode(&jobs)
	}
	if err != nil {
		return nil, err
	}
	for i, j := range jobs {
		if err := j.Validate(); err != nil {
			return nil, fmt.Errorf("job %d: %w", i, err)
		}
	}
	return jobs, nil
}

// LoadFile reads a job list, e.g. a queue checkpoint, for resuming a batch.
func LoadFile(path string) ([]Job, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	jobs, err := Decode(f, FormatFor(path))
	if err != nil {
		return nil, fmt.Errorf("reading job list %s: %w", path, err)
	}
	return jobs, nil
}
