// MODUL: events
// ZWECK: Lebenszyklus-Ereignisse eines Imports und Pipeline-Zustaende
// INPUT: keine
// OUTPUT: EventType, Event, State
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: keine (nur Standardbibliothek)
// HINWEISE: Events sind Werte und werden nach dem Versand nicht veraendert

package importer

import "time"

// EventType benennt eine Stufe im Import-Ablauf.
type EventType string

const (
	EventStartDataExtraction  EventType = "start_data_extraction"
	EventFileNotFound         EventType = "file_not_found"
	EventMovedPendingFile     EventType = "moved_pending_file"
	EventEndDataExtraction    EventType = "end_data_extraction"
	EventStartFormatDetection EventType = "start_format_detection"
	EventErrorNoFormat        EventType = "error_no_format"
	EventEndFormatDetection   EventType = "end_format_detection"
	EventStartUnpacking       EventType = "start_unpacking"
	EventErrorUnpacking       EventType = "error_unpacking"
	EventEndUnpacking         EventType = "end_unpacking"
	EventStartIntegrityCheck  EventType = "start_integrity_check"
	EventErrorIntegrityCheck  EventType = "error_integrity_check"
	EventEndIntegrityCheck    EventType = "end_integrity_check"
	EventStartSpatialDeploy   EventType = "start_spatial_deploy"
	EventStartConversion      EventType = "start_conversion"
	EventErrorConversion      EventType = "error_conversion"
	EventEndConversion        EventType = "end_conversion"
	EventEndSpatialDeploy     EventType = "end_spatial_deploy"
	EventStartHistogramDeploy EventType = "start_histogram_deploy"
	EventErrorHistogram       EventType = "error_histogram"
	EventEndHistogramDeploy   EventType = "end_histogram_deploy"
	EventEndSuccessfulImport  EventType = "end_successful_import"
	EventFileError            EventType = "file_error"
	EventFileNotMoved         EventType = "file_not_moved"
)

// EventTypes gibt alle Ereignisarten in Ablauf-Reihenfolge zurueck.
func EventTypes() []EventType {
	return []EventType{
		EventStartDataExtraction, EventFileNotFound, EventMovedPendingFile, EventEndDataExtraction,
		EventStartFormatDetection, EventErrorNoFormat, EventEndFormatDetection,
		EventStartUnpacking, EventErrorUnpacking, EventEndUnpacking,
		EventStartIntegrityCheck, EventErrorIntegrityCheck, EventEndIntegrityCheck,
		EventStartSpatialDeploy, EventStartConversion, EventErrorConversion, EventEndConversion, EventEndSpatialDeploy,
		EventStartHistogramDeploy, EventErrorHistogram, EventEndHistogramDeploy,
		EventEndSuccessfulImport, EventFileError, EventFileNotMoved,
	}
}

// IsError meldet ob das Ereignis einen Fehler beschreibt.
func (t EventType) IsError() bool {
	switch t {
	case EventFileNotFound, EventErrorNoFormat, EventErrorUnpacking, EventErrorIntegrityCheck,
		EventErrorConversion, EventErrorHistogram, EventFileError, EventFileNotMoved:
		return true
	}
	return false
}

// Event ist eine Benachrichtigung ueber eine Stufe.
type Event struct {
	Type     EventType
	Time     time.Time
	ImportID string

	Path   string // Hauptdatei der Stufe
	Target string // zweite Datei (Ziel einer Verschiebung, Quelle einer Konvertierung)
	Format string // erkannter Format-Kurzname

	Collection      bool    // EndUnpacking: Inhalt ist eine Sammlung mehrerer Dateien
	IntegrityErrors []error // ErrorIntegrityCheck
	Err             error
}

// ============================================================================
// Pipeline-Zustaende
// ============================================================================

// State ist der Fortschritt eines Imports.
type State int

const (
	StateStart State = iota
	StateMoved
	StateFormatDetected
	StateArchiveExtracted
	StateOriginalVerified
	StateSpatialDeployed
	StateHistogramDeployed
	StateSuccess
	StateFailed
)

var stateNames = [...]string{
	StateStart:             "start",
	StateMoved:             "moved",
	StateFormatDetected:    "format_detected",
	StateArchiveExtracted:  "archive_extracted",
	StateOriginalVerified:  "original_verified",
	StateSpatialDeployed:   "spatial_deployed",
	StateHistogramDeployed: "histogram_deployed",
	StateSuccess:           "success",
	StateFailed:            "failed",
}

// String implementiert Stringer Interface
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal meldet ob kein weiterer Uebergang moeglich ist.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateFailed
}
