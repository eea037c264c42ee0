// Package importer - Import-Ablauf fuer hochgeladene Bilddateien.
//
// MODUL: importer
// ZWECK: Verschiebt eine Datei aus dem Wartebereich in die Ablage, erkennt das
//        Format (auch in Archiven), prueft die Metadaten, erzeugt die raeumliche
//        Darstellung (bei Bedarf per Konvertierung) und das Histogramm
// INPUT: Pfad im Wartebereich, RunOptions (Name, PreferCopy)
// OUTPUT: *Result mit allen Artefakten oder *Error mit genau einer Kind
// NEBENEFFEKTE: Legt <root>/upload-<id>/ samt processed/ an, verschiebt die Quelle
// ABHAENGIGKEITEN: formats, archive, histogram, log/slog
// HINWEISE: Jeder Run ist ein sequentieller Ablauf ohne geteilten Zustand.
//           Nach einem Fehler bleiben angelegte Verzeichnisse liegen.
package importer

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pimsgo/pims/archive"
	"github.com/pimsgo/pims/formats"
	"github.com/pimsgo/pims/formats/common"
	"github.com/pimsgo/pims/formats/metadata"
	"github.com/pimsgo/pims/histogram"
)

// Namen im Upload-Verzeichnis
const (
	UploadDirPrefix = "upload-"
	ProcessedDir    = "processed"
	OriginalStem    = "original"
	SpatialStem     = "spatial"
	HistogramStem   = "histogram"
)

// ============================================================================
// Importer
// ============================================================================

// Importer fuehrt Imports mit fester Konfiguration aus.
// Nach New wird er nur gelesen und ist fuer parallele Runs sicher.
type Importer struct {
	cfg Config

	formats        Matcher
	spatialFormats Matcher
	openArchive    ArchiveOpener
	histograms     HistogramBuilder
	listeners      []Listener
	newID          IDGenerator
	logger         *slog.Logger
}

// New erstellt einen Importer. Wurzel und Wartebereich werden absolut aufgeloest.
func New(cfg Config, opts ...Option) (*Importer, error) {
	if cfg.Root == "" {
		return nil, ErrNoRoot
	}
	if cfg.Pending == "" {
		return nil, ErrNoPending
	}

	var err error
	if cfg.Root, err = filepath.Abs(cfg.Root); err != nil {
		return nil, err
	}
	if cfg.Pending, err = filepath.Abs(cfg.Pending); err != nil {
		return nil, err
	}
	if cfg.HistogramKind == "" {
		cfg.HistogramKind = histogram.KindFast
	}

	im := &Importer{
		cfg:         cfg,
		openArchive: openArchive,
		histograms:  histogram.Builder{},
		newID:       uuidV7,
	}
	for _, opt := range opts {
		opt(im)
	}

	if im.formats == nil {
		r := common.Registry(common.DefaultConversionThreshold)
		im.formats = r
		if im.spatialFormats == nil {
			im.spatialFormats = r.SpatialReadable()
		}
	}
	if im.spatialFormats == nil {
		if r, ok := im.formats.(*formats.Registry); ok {
			im.spatialFormats = r.SpatialReadable()
		} else {
			im.spatialFormats = common.Registry(common.DefaultConversionThreshold).SpatialReadable()
		}
	}
	if im.logger == nil {
		im.logger = slog.Default()
	}

	return im, nil
}

// Config gibt die aufgeloeste Konfiguration zurueck.
func (im *Importer) Config() Config {
	return im.cfg
}

// RunOptions steuert einen einzelnen Import.
type RunOptions struct {
	Name       string // Dateiname im Upload-Verzeichnis, leer = Name der Quelle
	PreferCopy bool   // Quelle kopieren statt verschieben
}

// ============================================================================
// Result
// ============================================================================

// Role kennzeichnet die Aufgabe eines Artefakts.
type Role string

const (
	RoleOriginal  Role = "original"
	RoleSpatial   Role = "spatial"
	RoleHistogram Role = "histogram"
)

// Artifact ist eine Datei in processed/ mit genau einer Rolle.
type Artifact struct {
	Role      Role
	Path      string
	Format    string // Format-Kurzname, leer beim Histogramm
	Reference bool   // Symlink auf eine andere Datei
}

// Result beschreibt einen Import. Bei einem Fehler ist Result teilweise befuellt
// und State ist StateFailed, FailedAt nennt den letzten erreichten Zustand.
type Result struct {
	ID        string
	State     State
	FailedAt  State
	UploadDir string
	Upload    string // uebertragene Datei

	Original  *Artifact
	Spatial   *Artifact
	Histogram *Artifact

	Metadata        metadata.ImageMetadata // Metadaten des Originals
	NeedsConversion bool
}

// Paths gibt die erzeugten Pfade der obersten Ebene zurueck.
func (r *Result) Paths() []string {
	if r == nil || r.Upload == "" {
		return nil
	}
	return []string{r.Upload}
}

// ============================================================================
// Run
// ============================================================================

// Run importiert die Datei pending aus dem Wartebereich.
// Fehler sind immer *Error. Kein Fehler fuehrt zu einem Aufraeumen.
func (im *Importer) Run(pending string, o RunOptions) (*Result, error) {
	run := &importRun{im: im, res: &Result{State: StateStart}}

	id, err := im.newID()
	if err != nil {
		return run.fail(newError(KindIOFailure, "allocate", im.cfg.Root, err))
	}
	run.res.ID = id

	if err := run.execute(pending, o); err != nil {
		return run.fail(err)
	}

	run.res.State = StateSuccess
	run.notify(Event{Type: EventEndSuccessfulImport, Path: run.res.Upload, Format: run.res.Original.Format})
	im.logger.Info("import finished", "id", id, "upload", run.res.Upload, "format", run.res.Original.Format,
		"converted", run.res.NeedsConversion)
	return run.res, nil
}

// importRun haelt den Zustand genau eines Imports
type importRun struct {
	im  *Importer
	res *Result

	processed string
}

func (r *importRun) notify(e Event) {
	e.ImportID = r.res.ID
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	for _, l := range r.im.listeners {
		notifyOne(r.im.logger, l, e)
	}
}

func (r *importRun) advance(s State) {
	r.res.State = s
}

func (r *importRun) fail(err error) (*Result, error) {
	var ierr *Error
	if !errors.As(err, &ierr) {
		ierr = newError(KindIOFailure, "import", r.res.Upload, err)
	}

	r.res.FailedAt = r.res.State
	r.res.State = StateFailed
	r.notify(Event{Type: EventFileError, Path: r.res.Upload, Err: ierr})
	r.im.logger.Error("import failed", "id", r.res.ID, "state", r.res.FailedAt, "kind", ierr.Kind, "error", ierr)
	return r.res, ierr
}

func (r *importRun) execute(pending string, o RunOptions) error {
	if err := r.relocate(pending, o); err != nil {
		return err
	}

	d, arc, err := r.detect()
	if err != nil {
		return err
	}

	r.processed = filepath.Join(r.res.UploadDir, ProcessedDir)
	if err := r.mkdir(r.processed); err != nil {
		return err
	}

	if d, err = r.deployOriginal(d, arc); err != nil {
		return err
	}

	if !d.IsSpatial() {
		return newError(KindUnimplemented, "spatial", r.res.Original.Path, fmt.Errorf("format %s has no spatial representation", d.ID))
	}

	spatial, err := r.deploySpatial(d)
	if err != nil {
		return err
	}

	return r.deployHistogram(spatial)
}

// ============================================================================
// Schritt 1: Pruefen und Uebertragen
// ============================================================================

func (r *importRun) relocate(pending string, o RunOptions) error {
	r.notify(Event{Type: EventStartDataExtraction, Path: pending})

	abs, err := filepath.Abs(pending)
	if err != nil || filepath.Dir(abs) != r.im.cfg.Pending || !isRegular(abs) {
		r.notify(Event{Type: EventFileNotFound, Path: pending})
		return newError(KindNotFound, "validate", pending, err)
	}

	dir := filepath.Join(r.im.cfg.Root, UploadDirPrefix+r.res.ID)
	if err := r.mkdir(dir); err != nil {
		return err
	}
	r.res.UploadDir = dir

	name := filepath.Base(abs)
	if o.Name != "" {
		name = filepath.Base(filepath.Clean(o.Name))
	}
	upload := filepath.Join(dir, name)

	if err := transferFile(abs, upload, o.PreferCopy); err != nil {
		r.notify(Event{Type: EventFileNotMoved, Path: abs, Err: err})
		return newError(KindIOFailure, "move", abs, err)
	}
	r.res.Upload = upload

	r.notify(Event{Type: EventMovedPendingFile, Path: abs, Target: upload})
	r.notify(Event{Type: EventEndDataExtraction, Path: upload})
	r.advance(StateMoved)
	return nil
}

// ============================================================================
// Schritt 2: Format erkennen
// ============================================================================

func (r *importRun) detect() (*formats.Descriptor, Archive, error) {
	upload := r.res.Upload
	r.notify(Event{Type: EventStartFormatDetection, Path: upload})

	d, err := r.im.formats.Match(upload)
	var arc Archive
	if errors.Is(err, formats.ErrNoMatch) {
		arc, err = r.im.openArchive(upload)
		if err == nil {
			d = arc.Format()
		} else if errors.Is(err, archive.ErrNotArchive) {
			err = formats.ErrNoMatch
		}
	}

	switch {
	case errors.Is(err, formats.ErrNoMatch):
		r.notify(Event{Type: EventErrorNoFormat, Path: upload})
		return nil, nil, newError(KindNoMatchingFormat, "detect", upload, nil)
	case err != nil:
		r.notify(Event{Type: EventErrorNoFormat, Path: upload, Err: err})
		return nil, nil, newError(KindIOFailure, "detect", upload, err)
	}

	r.notify(Event{Type: EventEndFormatDetection, Path: upload, Format: d.ID})
	r.advance(StateFormatDetected)
	return d, arc, nil
}

// ============================================================================
// Schritt 3: Original-Artefakt
// ============================================================================

func (r *importRun) artifactPath(stem, id string) string {
	return filepath.Join(r.processed, stem+"."+id)
}

func (r *importRun) deployOriginal(d *formats.Descriptor, arc Archive) (*formats.Descriptor, error) {
	path := r.artifactPath(OriginalStem, d.ID)
	reference := false

	if arc != nil {
		var err error
		if d, path, err = r.unpack(arc, path); err != nil {
			return nil, err
		}
	} else {
		linked, err := createLink(path, r.res.Upload)
		if err != nil {
			r.notify(Event{Type: EventFileError, Path: path, Err: err})
			return nil, newError(KindIOFailure, "link", path, err)
		}
		reference = linked
	}
	r.res.Original = &Artifact{Role: RoleOriginal, Path: path, Format: d.ID, Reference: reference}

	imd, err := r.verify(d, path)
	if err != nil {
		return nil, err
	}
	r.res.Metadata = imd
	r.advance(StateOriginalVerified)
	return d, nil
}

// unpack entpackt den Container nach extracted und sucht ein einzelnes Bild darin
func (r *importRun) unpack(arc Archive, extracted string) (*formats.Descriptor, string, error) {
	upload := r.res.Upload
	r.notify(Event{Type: EventStartUnpacking, Path: upload})

	if err := arc.Extract(extracted); err != nil {
		r.notify(Event{Type: EventErrorUnpacking, Path: upload, Err: err})
		return nil, "", newError(KindArchive, "unpack", upload, err)
	}

	files, err := archive.Payload(extracted)
	if err != nil {
		r.notify(Event{Type: EventErrorUnpacking, Path: upload, Err: err})
		return nil, "", newError(KindArchive, "unpack", upload, err)
	}

	if len(files) == 1 {
		d, err := r.im.formats.Match(files[0])
		if err == nil {
			path := r.artifactPath(OriginalStem, d.ID)
			if err := os.Rename(files[0], path); err != nil {
				r.notify(Event{Type: EventFileNotMoved, Path: files[0], Err: err})
				return nil, "", newError(KindIOFailure, "move", files[0], err)
			}
			if err := os.RemoveAll(extracted); err != nil {
				r.im.logger.Warn("unable to remove extraction directory", "path", extracted, "error", err)
			}
			r.notify(Event{Type: EventEndUnpacking, Path: upload, Target: path, Format: d.ID})
			r.advance(StateArchiveExtracted)
			return d, path, nil
		}
		if !errors.Is(err, formats.ErrNoMatch) {
			return nil, "", newError(KindIOFailure, "detect", files[0], err)
		}
	}

	r.notify(Event{Type: EventEndUnpacking, Path: upload, Target: extracted, Collection: true})
	return nil, "", newError(KindUnimplemented, "unpack", extracted,
		fmt.Errorf("archive payload with %d files is a collection", len(files)))
}

// verify parst die Metadaten eines Artefakts und sammelt alle Fehler
func (r *importRun) verify(d *formats.Descriptor, path string) (metadata.ImageMetadata, error) {
	r.notify(Event{Type: EventStartIntegrityCheck, Path: path, Format: d.ID})

	var errs []error
	imd, err := parseSafely(d, path)
	if err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		r.notify(Event{Type: EventErrorIntegrityCheck, Path: path, Format: d.ID, IntegrityErrors: errs})
		return metadata.ImageMetadata{}, newError(KindMetadataParsing, "verify", path, errors.Join(errs...))
	}

	r.notify(Event{Type: EventEndIntegrityCheck, Path: path, Format: d.ID})
	return imd, nil
}

// parseSafely wandelt eine Panic im Parser in einen Fehler um
func parseSafely(d *formats.Descriptor, path string) (imd metadata.ImageMetadata, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("parser %s panicked: %v", d.ID, rec)
		}
	}()
	return d.Parse(path)
}

// ============================================================================
// Schritt 4: Raeumliches Artefakt
// ============================================================================

func (r *importRun) deploySpatial(d *formats.Descriptor) (*formats.Descriptor, error) {
	original := r.res.Original.Path
	r.notify(Event{Type: EventStartSpatialDeploy, Path: original, Format: d.ID})

	// Einmal pro Import aus den Metadaten des Originals bestimmt
	r.res.NeedsConversion = d.NeedsConversion(r.res.Metadata)

	var spatial *formats.Descriptor
	if r.res.NeedsConversion {
		path := r.artifactPath(SpatialStem, d.ConversionTarget())
		if err := r.convert(d, path); err != nil {
			return nil, err
		}

		r.notify(Event{Type: EventStartFormatDetection, Path: path})
		sd, err := r.im.spatialFormats.Match(path)
		if err != nil {
			r.notify(Event{Type: EventErrorNoFormat, Path: path, Err: err})
			if errors.Is(err, formats.ErrNoMatch) {
				return nil, newError(KindNoMatchingFormat, "detect", path, nil)
			}
			return nil, newError(KindIOFailure, "detect", path, err)
		}
		r.notify(Event{Type: EventEndFormatDetection, Path: path, Format: sd.ID})

		if _, err := r.verify(sd, path); err != nil {
			return nil, err
		}
		spatial = sd
		r.res.Spatial = &Artifact{Role: RoleSpatial, Path: path, Format: sd.ID}
	} else {
		path := r.artifactPath(SpatialStem, d.ID)
		linked, err := createLink(path, original)
		if err != nil {
			r.notify(Event{Type: EventFileError, Path: path, Err: err})
			return nil, newError(KindIOFailure, "link", path, err)
		}
		spatial = d
		r.res.Spatial = &Artifact{Role: RoleSpatial, Path: path, Format: d.ID, Reference: linked}
	}

	r.notify(Event{Type: EventEndSpatialDeploy, Path: r.res.Spatial.Path, Format: spatial.ID})
	r.advance(StateSpatialDeployed)
	return spatial, nil
}

// convert ruft den Convertor auf. Erfolg heisst: true gemeldet und Ziel existiert.
func (r *importRun) convert(d *formats.Descriptor, path string) error {
	r.notify(Event{Type: EventStartConversion, Path: path, Target: r.res.Upload, Format: d.ID})

	ok, err := convertSafely(d, r.res.Original.Path, path)
	if err == nil && (!ok || !isRegular(path)) {
		err = fmt.Errorf("convertor %s reported success=%t", d.ID, ok)
	}
	if err != nil {
		r.notify(Event{Type: EventErrorConversion, Path: path, Err: err})
		return newError(KindConversion, "convert", path, err)
	}

	r.notify(Event{Type: EventEndConversion, Path: path, Format: d.ConversionTarget()})
	return nil
}

// convertSafely wandelt eine Panic im Convertor in einen Fehler um
func convertSafely(d *formats.Descriptor, src, dst string) (ok bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			ok, err = false, fmt.Errorf("convertor %s panicked: %v", d.ID, rec)
		}
	}()
	return d.Convert(src, dst)
}

// ============================================================================
// Schritt 5: Histogramm
// ============================================================================

func (r *importRun) deployHistogram(spatial *formats.Descriptor) error {
	path := filepath.Join(r.processed, HistogramStem)
	src := r.res.Spatial.Path
	r.notify(Event{Type: EventStartHistogramDeploy, Path: path, Target: src})

	if _, err := r.im.histograms.Build(histogram.Source{Path: src, Reader: spatial}, path, r.im.cfg.HistogramKind); err != nil {
		r.notify(Event{Type: EventErrorHistogram, Path: path, Target: src, Err: err})
		return newError(KindIOFailure, "histogram", path, err)
	}
	r.res.Histogram = &Artifact{Role: RoleHistogram, Path: path}

	r.notify(Event{Type: EventEndHistogramDeploy, Path: path, Target: src})
	r.advance(StateHistogramDeployed)
	return nil
}

// ============================================================================
// Hilfsfunktionen
// ============================================================================

// mkdir legt genau ein neues Verzeichnis an, vorhandene werden nie wiederverwendet
func (r *importRun) mkdir(dir string) error {
	if err := os.Mkdir(dir, 0o755); err != nil {
		r.notify(Event{Type: EventFileError, Path: dir, Err: err})
		return newError(KindIOFailure, "mkdir", dir, err)
	}
	return nil
}
