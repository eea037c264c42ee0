// MODUL: signature
// ZWECK: Magic-Byte-Checker fuer die Formaterkennung
// INPUT: Fuehrende Bytes einer Datei
// OUTPUT: bool (Signatur passt / passt nicht)
// NEBENEFFEKTE: keine
// ABHAENGIGKEITEN: keine (nur Standardbibliothek)
// HINWEISE: '?' in einem Pattern-Checker passt auf jedes Byte (wie "RIFF????WEBP")

package formats

import (
	"io"
	"os"
)

// DefaultSignatureSize ist die Mindestgroesse des gelesenen Signatur-Fensters.
const DefaultSignatureSize = 512

// Magic prueft ob die Daten an Offset mit der Signatur beginnen.
type Magic struct {
	Offset int
	Bytes  []byte
}

// Match implementiert Checker.
func (m Magic) Match(sig []byte) bool {
	return matchesMagic(sig, m.Offset, m.Bytes)
}

// SignatureSize implementiert SignatureSizer.
func (m Magic) SignatureSize() int {
	return m.Offset + len(m.Bytes)
}

// AnyOf passt, sobald einer der Checker passt.
type AnyOf []Checker

// Match implementiert Checker.
func (a AnyOf) Match(sig []byte) bool {
	for _, c := range a {
		if c.Match(sig) {
			return true
		}
	}
	return false
}

// SignatureSize implementiert SignatureSizer.
func (a AnyOf) SignatureSize() int {
	return maxSignatureSize(a)
}

// AllOf passt nur, wenn alle Checker passen.
type AllOf []Checker

// Match implementiert Checker.
func (a AllOf) Match(sig []byte) bool {
	for _, c := range a {
		if !c.Match(sig) {
			return false
		}
	}
	return len(a) > 0
}

// SignatureSize implementiert SignatureSizer.
func (a AllOf) SignatureSize() int {
	return maxSignatureSize(a)
}

// Pattern prueft ein Muster ab Offset 0, '?' passt auf jedes Byte.
type Pattern string

// Match implementiert Checker.
func (p Pattern) Match(sig []byte) bool {
	if len(sig) < len(p) {
		return false
	}
	for i := 0; i < len(p); i++ {
		if p[i] != '?' && p[i] != sig[i] {
			return false
		}
	}
	return true
}

// SignatureSize implementiert SignatureSizer.
func (p Pattern) SignatureSize() int {
	return len(p)
}

// CheckerFunc macht eine Funktion zum Checker.
type CheckerFunc func(sig []byte) bool

// Match implementiert Checker.
func (f CheckerFunc) Match(sig []byte) bool {
	return f(sig)
}

// matchesMagic prueft ob die Daten mit der Signatur beginnen
func matchesMagic(data []byte, offset int, magic []byte) bool {
	if len(data) < offset+len(magic) {
		return false
	}
	for i, b := range magic {
		if data[offset+i] != b {
			return false
		}
	}
	return true
}

func maxSignatureSize(cs []Checker) int {
	n := 0
	for _, c := range cs {
		if s, ok := c.(SignatureSizer); ok && s.SignatureSize() > n {
			n = s.SignatureSize()
		}
	}
	return n
}

// ReadSignature liest bis zu n fuehrende Bytes einer Datei.
// Kuerzere Dateien liefern entsprechend weniger Bytes.
func ReadSignature(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, n)
	read, err := io.ReadFull(f, buf)
	switch {
	case err == io.ErrUnexpectedEOF, err == io.EOF:
		return buf[:read], nil
	case err != nil:
		return nil, err
	}
	return buf, nil
}
