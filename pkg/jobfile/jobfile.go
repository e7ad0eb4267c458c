// Package jobfile loads job definitions from YAML or HCL files.
//
// YAML files hold a top-level "jobs" list whose entries use the same field
// names as the JSON API. HCL files hold one labelled block per job:
//
//	job "backup-database" {
//	  name     = "Database Backup"
//	  schedule = "daily at 2 AM"
//	  command  = "backup"
//	  priority = "high"
//	  args     = { database = "production" }
//
//	  retry {
//	    kind        = "exponential"
//	    max_retries = 3
//	    base_delay  = "2s"
//	  }
//	}
package jobfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jdziat/simple-cron-jobs/pkg/core"
)

// Format identifies a job file syntax.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatHCL  Format = "hcl"
)

// ErrUnknownFormat is returned for file extensions with no decoder.
var ErrUnknownFormat = errors.New("jobfile: unknown format")

// FormatOf picks the format from the file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".hcl":
		return FormatHCL, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, filepath.Ext(path))
}

// Load reads and decodes the job file at path.
func Load(path string) ([]core.JobSpec, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("jobfile: %w", err)
	}
	return Parse(data, format, path)
}

// Parse decodes data in the given format. filename is used in diagnostics.
func Parse(data []byte, format Format, filename string) ([]core.JobSpec, error) {
	var (
		specs []core.JobSpec
		err   error
	)
	switch format {
	case FormatYAML:
		specs, err = ParseYAML(data)
	case FormatHCL:
		specs, err = ParseHCL(data, filename)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if err != nil {
		return nil, err
	}
	if err := checkUnique(specs); err != nil {
		return nil, err
	}
	return specs, nil
}

type yamlFile struct {
	Jobs []core.JobSpec `yaml:"jobs"`
}

// ParseYAML decodes a YAML job file. Unknown keys are rejected.
func ParseYAML(data []byte) ([]core.JobSpec, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var file yamlFile
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("jobfile: decode yaml: %w", err)
	}
	for i := range file.Jobs {
		file.Jobs[i].Args = normalizeYAML(file.Jobs[i].Args)
	}
	return file.Jobs, nil
}

// normalizeYAML turns nested map[any]any values into map[string]any so the
// args survive JSON encoding.
func normalizeYAML(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return normalizeYAML(t)
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[fmt.Sprint(k)] = normalizeValue(val)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, val := range t {
			s[i] = normalizeValue(val)
		}
		return s
	}
	return v
}

func checkUnique(specs []core.JobSpec) error {
	seen := make(map[string]struct{}, len(specs))
	for _, s := range specs {
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("%w: %q defined twice", core.ErrDuplicateJob, s.ID)
		}
		seen[s.ID] = struct{}{}
	}
	return nil
}
