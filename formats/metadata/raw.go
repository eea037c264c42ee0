// MODUL: raw
// ZWECK: Roh-Tag-Speicher mit Namespaces (z.B. "PNG.PixelUnits", "EXIF.XResolution")
// INPUT: Tags aus formatspezifischen Lesern
// OUTPUT: RawStore mit stabiler Einfuege-Reihenfolge
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: github.com/wk8/go-ordered-map/v2 (extern)
// HINWEISE: Reihenfolge bleibt erhalten, damit JSON-Ausgaben deterministisch sind

package metadata

import (
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// RawStore speichert herstellerspezifische Tags unter "<Namespace>.<Key>".
type RawStore struct {
	tags *orderedmap.OrderedMap[string, any]
}

// NewRawStore erstellt einen leeren Speicher.
func NewRawStore() *RawStore {
	return &RawStore{tags: orderedmap.New[string, any]()}
}

// Key setzt Namespace und Tag-Name zusammen.
func Key(namespace, key string) string {
	if namespace == "" {
		return key
	}
	return namespace + "." + key
}

// Set speichert einen Wert. Ein bereits vorhandener Schluessel wird ueberschrieben.
func (s *RawStore) Set(namespace, key string, value any) {
	s.tags.Set(Key(namespace, key), value)
}

// Get gibt den Wert zum vollstaendigen Schluessel zurueck.
func (s *RawStore) Get(key string) (any, bool) {
	if s == nil {
		return nil, false
	}
	return s.tags.Get(key)
}

// Value gibt den Wert oder nil zurueck.
func (s *RawStore) Value(key string) any {
	v, _ := s.Get(key)
	return v
}

// FirstValue gibt den ersten vorhandenen, nicht-leeren Wert in der angegebenen
// Reihenfolge zurueck. Die Reihenfolge der Schluessel ist Teil des Vertrags.
func (s *RawStore) FirstValue(keys ...string) any {
	for _, k := range keys {
		v, ok := s.Get(k)
		if !ok || v == nil {
			continue
		}
		if str, isString := v.(string); isString && strings.TrimSpace(str) == "" {
			continue
		}
		return v
	}
	return nil
}

// Namespace gibt alle Tags eines Namespaces (ohne Praefix) zurueck.
func (s *RawStore) Namespace(namespace string) map[string]any {
	out := make(map[string]any)
	if s == nil {
		return out
	}
	prefix := namespace + "."
	for pair := s.tags.Oldest(); pair != nil; pair = pair.Next() {
		if after, ok := strings.CutPrefix(pair.Key, prefix); ok {
			out[after] = pair.Value
		}
	}
	return out
}

// Keys gibt alle Schluessel in Einfuege-Reihenfolge zurueck.
func (s *RawStore) Keys() []string {
	if s == nil {
		return nil
	}
	keys := make([]string, 0, s.tags.Len())
	for pair := s.tags.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Len gibt die Anzahl der Tags zurueck.
func (s *RawStore) Len() int {
	if s == nil {
		return 0
	}
	return s.tags.Len()
}

// MarshalJSON implementiert json.Marshaler in Einfuege-Reihenfolge.
func (s *RawStore) MarshalJSON() ([]byte, error) {
	return s.tags.MarshalJSON()
}

// UnmarshalJSON implementiert json.Unmarshaler.
func (s *RawStore) UnmarshalJSON(data []byte) error {
	if s.tags == nil {
		s.tags = orderedmap.New[string, any]()
	}
	return s.tags.UnmarshalJSON(data)
}
