package errors

import "errors"

// Startup errors. Any of these aborts the process before the first cycle.
var (
	ErrMetadataDirMissing  = errors.New("metadata directory not found")
	ErrConfigFileMissing   = errors.New("config file not found")
	ErrRemoteNotConfigured = errors.New("remote not set in config")
	ErrRemoteUnknown       = errors.New("remote not present in rclone config")
	ErrBackendUnavailable  = errors.New("rclone not available")
)

// Cycle errors. These fail the current cycle only; the loop continues.
var (
	ErrModTimeMissing = errors.New("no modification time for path")
)
