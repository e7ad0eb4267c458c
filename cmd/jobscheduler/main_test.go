package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = "../../examples/jobs/jobs.yaml"

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// ---------------------------------------------------------------------------
// validate
// ---------------------------------------------------------------------------

func TestValidate_SampleFile(t *testing.T) {
	out, err := run(t, "validate", sampleYAML)
	require.NoError(t, err)
	assert.Contains(t, out, "7 jobs OK")
}

func TestValidate_ReportsProblems(t *testing.T) {
	path := writeFile(t, "bad.yaml", `
jobs:
  - id: a
    name: A
    schedule: every 5 minutes
    command: echo
    dependencies: [b]
  - id: b
    name: B
    schedule: every 5 minutes
    command: echo
    dependencies: [a]
  - id: c
    name: C
    schedule: every 90 minutes
    command: echo
  - id: d
    name: D
    schedule: every 5 minutes
    command: no_such_command
  - id: e
    name: E
    schedule: every 5 minutes
    command: echo
    dependencies: [ghost]
`)
	out, err := run(t, "validate", path)
	require.ErrorIs(t, err, errInvalidJobFile)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	var invalid, depends int
	for _, l := range lines {
		switch {
		case strings.HasPrefix(l, "INVALID"):
			invalid++
		case strings.HasPrefix(l, "DEPENDS"):
			depends++
		}
	}
	assert.Equal(t, 2, invalid, out)
	assert.Equal(t, 3, depends, out)
	assert.Contains(t, out, "ghost")
}

func TestValidate_MissingFile(t *testing.T) {
	_, err := run(t, "validate", filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

// ---------------------------------------------------------------------------
// next
// ---------------------------------------------------------------------------

func TestNext_SampleFile(t *testing.T) {
	orig := now
	now = func() time.Time { return time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { now = orig })

	out, err := run(t, "next", "-n", "3", sampleYAML)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5, out)
	assert.True(t, strings.HasPrefix(lines[2], "health-check"), out)
	assert.Contains(t, lines[2], "10 minutes from now")
	assert.True(t, strings.HasPrefix(lines[3], "process-logs"), out)
	assert.True(t, strings.HasPrefix(lines[4], "sync-data"), out)
}

func TestNext_SkipsDisabled(t *testing.T) {
	path := writeFile(t, "off.yaml", `
jobs:
  - id: off
    name: Off
    schedule: every 5 minutes
    command: echo
    enabled: false
`)
	out, err := run(t, "next", path)
	require.NoError(t, err)
	assert.Contains(t, out, "No enabled jobs.")
}

func TestNext_BadTimezone(t *testing.T) {
	_, err := run(t, "next", "--timezone", "Mars/Olympus", sampleYAML)
	assert.Error(t, err)
}

// ---------------------------------------------------------------------------
// flags
// ---------------------------------------------------------------------------

func TestRootFlags_Level(t *testing.T) {
	f := rootFlags{}
	assert.Equal(t, "info", f.level("info"))
	assert.Equal(t, "text", f.format("text"))

	f = rootFlags{logLevel: "error", logFormat: "json"}
	assert.Equal(t, "error", f.level("info"))
	assert.Equal(t, "json", f.format("text"))

	f.debug = true
	assert.Equal(t, "debug", f.level("info"))
}
