// Package formats - Format-Registry fuer die Erkennung per Signatur.
//
// MODUL: registry
// ZWECK: Geordnete, nach dem Aufbau unveraenderliche Tabelle aller Format-Deskriptoren
// INPUT: Deskriptoren beim Aufbau, Dateipfade oder Signatur-Bytes bei der Erkennung
// OUTPUT: Passender Descriptor oder ErrNoMatch
// NEBENEFFEKTE: Match liest die fuehrenden Bytes einer Datei
// ABHAENGIGKEITEN: github.com/agnivade/levenshtein (extern) fuer Namensvorschlaege
// HINWEISE: Registrierungs-Reihenfolge entscheidet, der erste passende Checker gewinnt
package formats

import (
	"errors"
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"
)

// ============================================================================
// Registry Errors
// ============================================================================

var (
	// ErrNoMatch wird zurueckgegeben wenn kein Deskriptor passt.
	ErrNoMatch = errors.New("formats: no matching format")
	// ErrDuplicate wird beim Aufbau mit doppeltem Kurznamen zurueckgegeben.
	ErrDuplicate = errors.New("formats: duplicate format identifier")
	// ErrUnknown wird von Lookup fuer unbekannte Kurznamen zurueckgegeben.
	ErrUnknown = errors.New("formats: unknown format")
)

// RegistryError repraesentiert einen Registry-spezifischen Fehler.
type RegistryError struct {
	Op   string // Operation (z.B. "match", "lookup")
	Name string // Pfad oder Kurzname
	Err  error  // Urspruenglicher Fehler
}

// Error implementiert das error Interface.
func (e *RegistryError) Error() string {
	return "formats: " + e.Op + " '" + e.Name + "': " + e.Err.Error()
}

// Unwrap gibt den urspruenglichen Fehler zurueck.
func (e *RegistryError) Unwrap() error {
	return e.Err
}

// ============================================================================
// Registry
// ============================================================================

// Registry haelt Deskriptoren in Registrierungs-Reihenfolge.
// Sie wird einmal aufgebaut und danach nur gelesen, daher ohne Locks.
type Registry struct {
	descriptors []*Descriptor
	byID        map[string]*Descriptor
	window      int
}

// NewRegistry baut eine Registry aus den Deskriptoren in der angegebenen Reihenfolge.
func NewRegistry(descriptors ...*Descriptor) (*Registry, error) {
	r := &Registry{
		descriptors: make([]*Descriptor, 0, len(descriptors)),
		byID:        make(map[string]*Descriptor, len(descriptors)),
		window:      DefaultSignatureSize,
	}

	for _, d := range descriptors {
		if d == nil || d.ID == "" {
			return nil, errors.New("formats: descriptor without identifier")
		}
		if _, exists := r.byID[d.ID]; exists {
			return nil, &RegistryError{Op: "register", Name: d.ID, Err: ErrDuplicate}
		}
		if s, ok := d.Checker.(SignatureSizer); ok && s.SignatureSize() > r.window {
			r.window = s.SignatureSize()
		}
		r.descriptors = append(r.descriptors, d)
		r.byID[d.ID] = d
	}

	return r, nil
}

// MustRegistry ist wie NewRegistry, bricht aber bei Fehlern ab.
// Nur fuer statische Tabellen beim Programmstart gedacht.
func MustRegistry(descriptors ...*Descriptor) *Registry {
	r, err := NewRegistry(descriptors...)
	if err != nil {
		panic(err)
	}
	return r
}

// SignatureWindow gibt die Groesse des gelesenen Signatur-Fensters zurueck.
func (r *Registry) SignatureWindow() int {
	return r.window
}

// ============================================================================
// Registry Methoden - Erkennung
// ============================================================================

// MatchBytes prueft die Signatur-Bytes gegen alle Deskriptoren in Reihenfolge.
// Reine Funktion der Bytes: gleiche Bytes liefern immer denselben Deskriptor.
func (r *Registry) MatchBytes(sig []byte) (*Descriptor, bool) {
	for _, d := range r.descriptors {
		if d.MatchSignature(sig) {
			return d, true
		}
	}
	return nil, false
}

// Match liest das Signatur-Fenster der Datei und sucht den passenden Deskriptor.
// Gibt einen Fehler mit ErrNoMatch zurueck wenn kein Format passt.
func (r *Registry) Match(path string) (*Descriptor, error) {
	sig, err := ReadSignature(path, r.window)
	if err != nil {
		return nil, &RegistryError{Op: "match", Name: path, Err: err}
	}
	d, ok := r.MatchBytes(sig)
	if !ok {
		return nil, &RegistryError{Op: "match", Name: path, Err: ErrNoMatch}
	}
	return d, nil
}

// SpatialReadable gibt die eingeschraenkte Registry zurueck: nur raeumliche,
// direkt lesbare Formate, die selbst keine weitere Konvertierung ausloesen.
func (r *Registry) SpatialReadable() *Registry {
	var out []*Descriptor
	for _, d := range r.descriptors {
		if d.Spatial && d.Readable && d.Convertor == nil {
			out = append(out, d)
		}
	}
	// Teilmenge einer gueltigen Registry, kann nicht fehlschlagen
	return MustRegistry(out...)
}

// ============================================================================
// Registry Methoden - Abfrage
// ============================================================================

// Lookup gibt den Deskriptor zum Kurznamen zurueck.
func (r *Registry) Lookup(id string) (*Descriptor, error) {
	if d, ok := r.byID[strings.ToLower(id)]; ok {
		return d, nil
	}
	err := error(ErrUnknown)
	if s := r.Suggest(id); s != "" {
		err = fmt.Errorf("%w (did you mean %q?)", ErrUnknown, s)
	}
	return nil, &RegistryError{Op: "lookup", Name: id, Err: err}
}

// Suggest gibt den aehnlichsten Kurznamen zurueck oder "" wenn keiner nah genug ist.
func (r *Registry) Suggest(id string) string {
	id = strings.ToLower(id)
	best, bestDist := "", 3
	for _, d := range r.descriptors {
		if dist := levenshtein.ComputeDistance(id, d.ID); dist < bestDist {
			best, bestDist = d.ID, dist
		}
	}
	return best
}

// List gibt alle Deskriptoren in Registrierungs-Reihenfolge zurueck.
func (r *Registry) List() []*Descriptor {
	out := make([]*Descriptor, len(r.descriptors))
	copy(out, r.descriptors)
	return out
}

// Count gibt die Anzahl registrierter Formate zurueck.
func (r *Registry) Count() int {
	return len(r.descriptors)
}
