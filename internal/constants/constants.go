// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Search constants
const (
	// MaxSearchLimit caps the limit query parameter of the search endpoint
	MaxSearchLimit = 200
)

// Ingest constants
const (
	// ImportConcurrency is the number of objects downloaded in parallel during an import
	ImportConcurrency = 8

	// GazetteerLoadBatch is the number of parsed GeoNames rows sent to the database at once
	GazetteerLoadBatch = 5000
)

// HTTP constants
const (
	// MaxUploadSize is the maximum file upload size in bytes (100MB)
	MaxUploadSize = 100 << 20

	// RequestTimeout bounds every API request, uploads included
	RequestTimeout = 5 * time.Minute

	// ShutdownTimeout is how long in-flight requests and passes get on SIGINT/SIGTERM
	ShutdownTimeout = 30 * time.Second
)
