// Package storage provides the job and execution repository.
//
// This package includes:
//   - GormStorage: a GORM-based implementation of core.Storage
//   - OpenMemory: a private, volatile in-memory SQLite store
//   - Connection pool tuning for file-backed databases
//
// The Storage interface is defined in pkg/core and must be implemented
// by any custom storage backend.
package storage
