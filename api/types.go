// types.go - Wire-Typen der Import-API
// Enthaelt: StatusError, ImportRequest/Response, Artefakte, Metadaten, Formate, Protokoll
package api

import (
	"fmt"
	"time"
)

// StatusError is an error with an HTTP status code and message.
type StatusError struct {
	StatusCode   int    `json:"-"`
	Status       string `json:"-"`
	ErrorMessage string `json:"error"`
	Kind         string `json:"kind,omitempty"`
}

func (e StatusError) Error() string {
	switch {
	case e.Status != "" && e.ErrorMessage != "":
		return fmt.Sprintf("%s: %s", e.Status, e.ErrorMessage)
	case e.Status != "":
		return e.Status
	case e.ErrorMessage != "":
		return e.ErrorMessage
	default:
		return "something went wrong, please see the pims server logs for details"
	}
}

// =============================================================================
// Import
// =============================================================================

// ImportRequest is the request passed to [Client.Import].
type ImportRequest struct {
	// Path of the file, inside the server's pending area
	Path string `json:"path"`

	// Name overrides the file name inside the upload directory
	Name string `json:"name,omitempty"`

	// PreferCopy copies the pending file instead of moving it
	PreferCopy bool `json:"prefer_copy,omitempty"`
}

// ArtifactInfo describes one file in the processed directory.
type ArtifactInfo struct {
	Role      string `json:"role"`
	Path      string `json:"path"`
	Format    string `json:"format,omitempty"`
	Reference bool   `json:"reference,omitempty"`
}

// MetadataInfo carries the main metadata of an imported image.
type MetadataInfo struct {
	Width           int        `json:"width"`
	Height          int        `json:"height"`
	Channels        int        `json:"channels"`
	SignificantBits int        `json:"significant_bits"`
	PhysicalSizeX   string     `json:"physical_size_x,omitempty"`
	PhysicalSizeY   string     `json:"physical_size_y,omitempty"`
	AcquisitionTime *time.Time `json:"acquisition_time,omitempty"`
	Description     string     `json:"description,omitempty"`
}

// ImportResponse is the response returned from [Client.Import].
type ImportResponse struct {
	ID              string        `json:"id"`
	State           string        `json:"state"`
	FailedAt        string        `json:"failed_at,omitempty"`
	UploadDir       string        `json:"upload_dir"`
	Upload          string        `json:"upload"`
	Format          string        `json:"format"`
	NeedsConversion bool          `json:"needs_conversion"`
	Original        *ArtifactInfo `json:"original,omitempty"`
	Spatial         *ArtifactInfo `json:"spatial,omitempty"`
	Histogram       *ArtifactInfo `json:"histogram,omitempty"`
	Metadata        *MetadataInfo `json:"metadata,omitempty"`
}

// =============================================================================
// Formate
// =============================================================================

// FormatInfo describes a registered image format.
type FormatInfo struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Spatial          bool   `json:"spatial"`
	Readable         bool   `json:"readable"`
	ConversionTarget string `json:"conversion_target,omitempty"`
}

// FormatsResponse is the response from [Client.Formats].
type FormatsResponse struct {
	Formats []FormatInfo `json:"formats"`
}

// =============================================================================
// Protokoll
// =============================================================================

// ImportRecord is a recorded import from the server's ledger.
type ImportRecord struct {
	ID         string     `json:"id"`
	Pending    string     `json:"pending"`
	Upload     string     `json:"upload,omitempty"`
	Format     string     `json:"format,omitempty"`
	State      string     `json:"state"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// ImportsResponse is the response from [Client.Imports].
type ImportsResponse struct {
	Imports []ImportRecord `json:"imports"`
}

// EventRecord is one recorded lifecycle event.
type EventRecord struct {
	Type      string    `json:"type"`
	Path      string    `json:"path,omitempty"`
	Target    string    `json:"target,omitempty"`
	Format    string    `json:"format,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// EventsResponse is the response from [Client.Events].
type EventsResponse struct {
	ID     string        `json:"id"`
	Events []EventRecord `json:"events"`
}
