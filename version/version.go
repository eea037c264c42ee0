// Package version enthaelt die Build-Version, gesetzt per -ldflags.
package version

var Version string = "0.0.0"
