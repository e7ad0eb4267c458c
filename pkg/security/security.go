// Package security provides validation, sanitization, and limits for the scheduler.
package security

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/jdziat/simple-cron-jobs/pkg/core"
)

// Security limits and configuration
const (
	// MaxJobIDLength is the maximum length for job ids
	MaxJobIDLength = 255

	// MaxJobNameLength is the maximum length for display names
	MaxJobNameLength = 255

	// MaxCommandNameLength is the maximum length for command names
	MaxCommandNameLength = 255

	// MaxJobArgsSize is the maximum size in bytes for encoded job arguments (1MB)
	MaxJobArgsSize = 1 << 20

	// MaxRetries is the hard limit for retry attempts
	MaxRetries = 100

	// MaxWorkerCapacity is the hard limit for a single worker's capacity
	MaxWorkerCapacity = 1000

	// MaxDependencies is the maximum number of dependencies per job
	MaxDependencies = 100

	// MaxErrorMessageLength is the maximum length for stored error messages
	MaxErrorMessageLength = 4096
)

// validIdentifier matches alphanumeric, hyphens, underscores, and dots
var validIdentifier = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_\-\.]*$`)

// validCommandName must start with a letter
var validCommandName = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_\-\.]*$`)

// ValidateJobID validates a job id
func ValidateJobID(id string) error {
	if id == "" {
		return core.Invalid("id", "required")
	}
	if len(id) > MaxJobIDLength {
		return core.Invalid("id", fmt.Sprintf("longer than %d characters", MaxJobIDLength))
	}
	if !validIdentifier.MatchString(id) {
		return core.Invalid("id", "must be alphanumeric with - _ or .")
	}
	return nil
}

// ValidateJobName validates a display name
func ValidateJobName(name string) error {
	if strings.TrimSpace(name) == "" {
		return core.Invalid("name", "required")
	}
	if utf8.RuneCountInString(name) > MaxJobNameLength {
		return core.Invalid("name", fmt.Sprintf("longer than %d characters", MaxJobNameLength))
	}
	return nil
}

// ValidateCommandName validates a registered command name
func ValidateCommandName(name string) error {
	if name == "" {
		return core.Invalid("command", "required")
	}
	if len(name) > MaxCommandNameLength {
		return core.Invalid("command", fmt.Sprintf("longer than %d characters", MaxCommandNameLength))
	}
	if !validCommandName.MatchString(name) {
		return core.Invalid("command", fmt.Sprintf("invalid command name %q", name))
	}
	return nil
}

// ValidateArgs enforces the encoded size limit on a job's arguments
func ValidateArgs(args map[string]any) error {
	if args == nil {
		return nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return core.Invalid("args", err.Error())
	}
	if len(data) > MaxJobArgsSize {
		return core.ErrJobArgsTooLarge
	}
	return nil
}

// ValidateDependencies rejects self references, duplicates and oversize lists.
// Unknown ids are allowed; dependency existence is advisory.
func ValidateDependencies(jobID string, deps []string) error {
	if len(deps) > MaxDependencies {
		return core.Invalid("dependencies", fmt.Sprintf("more than %d entries", MaxDependencies))
	}
	seen := make(map[string]struct{}, len(deps))
	for _, dep := range deps {
		if err := ValidateJobID(dep); err != nil {
			return core.Invalid("dependencies", fmt.Sprintf("invalid id %q", dep))
		}
		if dep == jobID {
			return core.Invalid("dependencies", "job cannot depend on itself")
		}
		if _, dup := seen[dep]; dup {
			return core.Invalid("dependencies", fmt.Sprintf("duplicate dependency %q", dep))
		}
		seen[dep] = struct{}{}
	}
	return nil
}

// SanitizeErrorMessage truncates and sanitizes error messages for storage
func SanitizeErrorMessage(msg string) string {
	if msg == "" {
		return ""
	}

	// Remove any null bytes or control characters (except newlines)
	var sanitized strings.Builder
	sanitized.Grow(len(msg))

	for _, r := range msg {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			sanitized.WriteRune(r)
		}
	}

	result := sanitized.String()

	if utf8.RuneCountInString(result) > MaxErrorMessageLength {
		runes := []rune(result)
		result = string(runes[:MaxErrorMessageLength-3]) + "..."
	}

	return result
}

// ClampRetries ensures retry count is within limits
func ClampRetries(n int) int {
	if n < 0 {
		return 0
	}
	if n > MaxRetries {
		return MaxRetries
	}
	return n
}

// ClampCapacity ensures worker capacity is within limits
func ClampCapacity(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxWorkerCapacity {
		return MaxWorkerCapacity
	}
	return n
}
