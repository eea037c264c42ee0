// MODUL: listener
// ZWECK: Beobachter-Vertrag fuer Import-Ereignisse
// INPUT: Events aus dem Import-Ablauf
// OUTPUT: Aufrufe der passenden Listener-Methode
// NEBENEFFEKTE: LogListener schreibt Log-Zeilen
// ABHAENGIGKEITEN: log/slog
// HINWEISE: Fehler und Panics eines Listeners werden geloggt und verworfen,
//           sie aendern nie das Ergebnis des Imports

package importer

import (
	"fmt"
	"log/slog"
)

// Listener bekommt eine Methode pro Ereignisart.
// NopListener einbetten, um nur einzelne Methoden zu implementieren.
type Listener interface {
	StartDataExtraction(Event) error
	FileNotFound(Event) error
	MovedPendingFile(Event) error
	EndDataExtraction(Event) error
	StartFormatDetection(Event) error
	ErrorNoFormat(Event) error
	EndFormatDetection(Event) error
	StartUnpacking(Event) error
	ErrorUnpacking(Event) error
	EndUnpacking(Event) error
	StartIntegrityCheck(Event) error
	ErrorIntegrityCheck(Event) error
	EndIntegrityCheck(Event) error
	StartSpatialDeploy(Event) error
	StartConversion(Event) error
	ErrorConversion(Event) error
	EndConversion(Event) error
	EndSpatialDeploy(Event) error
	StartHistogramDeploy(Event) error
	ErrorHistogram(Event) error
	EndHistogramDeploy(Event) error
	EndSuccessfulImport(Event) error
	FileError(Event) error
	FileNotMoved(Event) error
}

// NopListener ignoriert alle Ereignisse.
type NopListener struct{}

func (NopListener) StartDataExtraction(Event) error  { return nil }
func (NopListener) FileNotFound(Event) error         { return nil }
func (NopListener) MovedPendingFile(Event) error     { return nil }
func (NopListener) EndDataExtraction(Event) error    { return nil }
func (NopListener) StartFormatDetection(Event) error { return nil }
func (NopListener) ErrorNoFormat(Event) error        { return nil }
func (NopListener) EndFormatDetection(Event) error   { return nil }
func (NopListener) StartUnpacking(Event) error       { return nil }
func (NopListener) ErrorUnpacking(Event) error       { return nil }
func (NopListener) EndUnpacking(Event) error         { return nil }
func (NopListener) StartIntegrityCheck(Event) error  { return nil }
func (NopListener) ErrorIntegrityCheck(Event) error  { return nil }
func (NopListener) EndIntegrityCheck(Event) error    { return nil }
func (NopListener) StartSpatialDeploy(Event) error   { return nil }
func (NopListener) StartConversion(Event) error      { return nil }
func (NopListener) ErrorConversion(Event) error      { return nil }
func (NopListener) EndConversion(Event) error        { return nil }
func (NopListener) EndSpatialDeploy(Event) error     { return nil }
func (NopListener) StartHistogramDeploy(Event) error { return nil }
func (NopListener) ErrorHistogram(Event) error       { return nil }
func (NopListener) EndHistogramDeploy(Event) error   { return nil }
func (NopListener) EndSuccessfulImport(Event) error  { return nil }
func (NopListener) FileError(Event) error            { return nil }
func (NopListener) FileNotMoved(Event) error         { return nil }

// ListenerFunc leitet jedes Ereignis an eine Funktion weiter.
type ListenerFunc func(Event) error

func (f ListenerFunc) StartDataExtraction(e Event) error  { return f(e) }
func (f ListenerFunc) FileNotFound(e Event) error         { return f(e) }
func (f ListenerFunc) MovedPendingFile(e Event) error     { return f(e) }
func (f ListenerFunc) EndDataExtraction(e Event) error    { return f(e) }
func (f ListenerFunc) StartFormatDetection(e Event) error { return f(e) }
func (f ListenerFunc) ErrorNoFormat(e Event) error        { return f(e) }
func (f ListenerFunc) EndFormatDetection(e Event) error   { return f(e) }
func (f ListenerFunc) StartUnpacking(e Event) error       { return f(e) }
func (f ListenerFunc) ErrorUnpacking(e Event) error       { return f(e) }
func (f ListenerFunc) EndUnpacking(e Event) error         { return f(e) }
func (f ListenerFunc) StartIntegrityCheck(e Event) error  { return f(e) }
func (f ListenerFunc) ErrorIntegrityCheck(e Event) error  { return f(e) }
func (f ListenerFunc) EndIntegrityCheck(e Event) error    { return f(e) }
func (f ListenerFunc) StartSpatialDeploy(e Event) error   { return f(e) }
func (f ListenerFunc) StartConversion(e Event) error      { return f(e) }
func (f ListenerFunc) ErrorConversion(e Event) error      { return f(e) }
func (f ListenerFunc) EndConversion(e Event) error        { return f(e) }
func (f ListenerFunc) EndSpatialDeploy(e Event) error     { return f(e) }
func (f ListenerFunc) StartHistogramDeploy(e Event) error { return f(e) }
func (f ListenerFunc) ErrorHistogram(e Event) error       { return f(e) }
func (f ListenerFunc) EndHistogramDeploy(e Event) error   { return f(e) }
func (f ListenerFunc) EndSuccessfulImport(e Event) error  { return f(e) }
func (f ListenerFunc) FileError(e Event) error            { return f(e) }
func (f ListenerFunc) FileNotMoved(e Event) error         { return f(e) }

// dispatch ruft die zum Ereignis passende Methode auf
func dispatch(l Listener, e Event) error {
	switch e.Type {
	case EventStartDataExtraction:
		return l.StartDataExtraction(e)
	case EventFileNotFound:
		return l.FileNotFound(e)
	case EventMovedPendingFile:
		return l.MovedPendingFile(e)
	case EventEndDataExtraction:
		return l.EndDataExtraction(e)
	case EventStartFormatDetection:
		return l.StartFormatDetection(e)
	case EventErrorNoFormat:
		return l.ErrorNoFormat(e)
	case EventEndFormatDetection:
		return l.EndFormatDetection(e)
	case EventStartUnpacking:
		return l.StartUnpacking(e)
	case EventErrorUnpacking:
		return l.ErrorUnpacking(e)
	case EventEndUnpacking:
		return l.EndUnpacking(e)
	case EventStartIntegrityCheck:
		return l.StartIntegrityCheck(e)
	case EventErrorIntegrityCheck:
		return l.ErrorIntegrityCheck(e)
	case EventEndIntegrityCheck:
		return l.EndIntegrityCheck(e)
	case EventStartSpatialDeploy:
		return l.StartSpatialDeploy(e)
	case EventStartConversion:
		return l.StartConversion(e)
	case EventErrorConversion:
		return l.ErrorConversion(e)
	case EventEndConversion:
		return l.EndConversion(e)
	case EventEndSpatialDeploy:
		return l.EndSpatialDeploy(e)
	case EventStartHistogramDeploy:
		return l.StartHistogramDeploy(e)
	case EventErrorHistogram:
		return l.ErrorHistogram(e)
	case EventEndHistogramDeploy:
		return l.EndHistogramDeploy(e)
	case EventEndSuccessfulImport:
		return l.EndSuccessfulImport(e)
	case EventFileError:
		return l.FileError(e)
	case EventFileNotMoved:
		return l.FileNotMoved(e)
	}
	return fmt.Errorf("unknown event type %q", e.Type)
}

// notifyOne ruft einen Listener auf und faengt Fehler und Panics ab
func notifyOne(logger *slog.Logger, l Listener, e Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("import listener panicked", "event", e.Type, "listener", fmt.Sprintf("%T", l), "panic", r)
		}
	}()
	if err := dispatch(l, e); err != nil {
		logger.Warn("import listener failed", "event", e.Type, "listener", fmt.Sprintf("%T", l), "error", err)
	}
}

// ============================================================================
// LogListener
// ============================================================================

// LogListener schreibt jedes Ereignis als strukturierte Log-Zeile.
type LogListener struct {
	Logger *slog.Logger
}

func (l LogListener) log(e Event) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}

	attrs := []any{"id", e.ImportID, "path", e.Path}
	if e.Target != "" {
		attrs = append(attrs, "target", e.Target)
	}
	if e.Format != "" {
		attrs = append(attrs, "format", e.Format)
	}
	if e.Type == EventEndUnpacking {
		attrs = append(attrs, "collection", e.Collection)
	}
	if len(e.IntegrityErrors) > 0 {
		attrs = append(attrs, "integrity_errors", len(e.IntegrityErrors))
	}
	if e.Err != nil {
		attrs = append(attrs, "error", e.Err)
	}

	if e.Type.IsError() {
		logger.Warn(string(e.Type), attrs...)
	} else {
		logger.Info(string(e.Type), attrs...)
	}
	return nil
}

func (l LogListener) StartDataExtraction(e Event) error  { return l.log(e) }
func (l LogListener) FileNotFound(e Event) error         { return l.log(e) }
func (l LogListener) MovedPendingFile(e Event) error     { return l.log(e) }
func (l LogListener) EndDataExtraction(e Event) error    { return l.log(e) }
func (l LogListener) StartFormatDetection(e Event) error { return l.log(e) }
func (l LogListener) ErrorNoFormat(e Event) error        { return l.log(e) }
func (l LogListener) EndFormatDetection(e Event) error   { return l.log(e) }
func (l LogListener) StartUnpacking(e Event) error       { return l.log(e) }
func (l LogListener) ErrorUnpacking(e Event) error       { return l.log(e) }
func (l LogListener) EndUnpacking(e Event) error         { return l.log(e) }
func (l LogListener) StartIntegrityCheck(e Event) error  { return l.log(e) }
func (l LogListener) ErrorIntegrityCheck(e Event) error  { return l.log(e) }
func (l LogListener) EndIntegrityCheck(e Event) error    { return l.log(e) }
func (l LogListener) StartSpatialDeploy(e Event) error   { return l.log(e) }
func (l LogListener) StartConversion(e Event) error      { return l.log(e) }
func (l LogListener) ErrorConversion(e Event) error      { return l.log(e) }
func (l LogListener) EndConversion(e Event) error        { return l.log(e) }
func (l LogListener) EndSpatialDeploy(e Event) error     { return l.log(e) }
func (l LogListener) StartHistogramDeploy(e Event) error { return l.log(e) }
func (l LogListener) ErrorHistogram(e Event) error       { return l.log(e) }
func (l LogListener) EndHistogramDeploy(e Event) error   { return l.log(e) }
func (l LogListener) EndSuccessfulImport(e Event) error  { return l.log(e) }
func (l LogListener) FileError(e Event) error            { return l.log(e) }
func (l LogListener) FileNotMoved(e Event) error         { return l.log(e) }
