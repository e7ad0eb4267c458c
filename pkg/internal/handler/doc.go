// Package handler provides internal reflection-based command invocation.
//
// This package is internal and should not be imported directly.
// It provides:
//   - Handler: signature checks and metadata for typed command functions
//   - Conversion of a job's argument map into the function's argument type
package handler
