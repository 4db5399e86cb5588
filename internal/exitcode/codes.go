package exitcode

// Exit codes for the roll-up CLI.
// The scheduler can use these to decide whether a rerun makes sense.
const (
	// Success - every partition was published (or there was nothing to do)
	Success = 0

	// ConfigError - missing or invalid configuration
	// Don't retry: fix the config first
	ConfigError = 1

	// StorageError - listing, downloading or uploading objects failed
	// Rerun is safe but may leave duplicate monthly files with random naming
	StorageError = 2

	// DataError - an input object could not be decoded or its schema
	// does not match the others
	// Don't retry: investigate the data
	DataError = 3

	// ScratchError - writing partitioned files to local scratch failed
	// Check free disk space
	ScratchError = 4
)
