// cmd_import.go - Import Command
// Hauptfunktionen: ImportHandler, importerFor, resolveArg
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/pimsgo/pims/api"
	"github.com/pimsgo/pims/envconfig"
	"github.com/pimsgo/pims/logutil"
	"github.com/pimsgo/pims/server"
)

// importFunc fuehrt einen einzelnen Import aus, lokal oder ueber den Server
type importFunc func(ctx context.Context, req api.ImportRequest) (*api.ImportResponse, error)

// importOutcome ist das Ergebnis eines Imports fuer die Tabelle
type importOutcome struct {
	path string
	resp *api.ImportResponse
	err  error
}

// ImportHandler - Importiert Dateien aus dem Wartebereich.
// Jede Datei ist ein unabhaengiger Import, Fehler brechen die anderen nicht ab.
func ImportHandler(cmd *cobra.Command, args []string) error {
	local, _ := cmd.Flags().GetBool("local")
	preferCopy, _ := cmd.Flags().GetBool("copy")
	name, _ := cmd.Flags().GetString("name")
	parallel, _ := cmd.Flags().GetInt("parallel")

	if name != "" && len(args) > 1 {
		return errors.New("--name requires exactly one file")
	}
	if parallel <= 0 {
		parallel = runtime.GOMAXPROCS(0)
	}

	run, closer, err := importerFor(cmd, local)
	if err != nil {
		return err
	}
	defer closer()

	outcomes := make([]importOutcome, len(args))
	progress := newProgress(cmd.ErrOrStderr(), len(args))

	var g errgroup.Group
	g.SetLimit(parallel)
	for i, arg := range args {
		g.Go(func() error {
			req := api.ImportRequest{Path: resolveArg(arg), Name: name, PreferCopy: preferCopy}
			resp, err := run(cmd.Context(), req)
			outcomes[i] = importOutcome{path: arg, resp: resp, err: err}
			progress.done(arg, err)
			return nil
		})
	}
	_ = g.Wait()

	failed := renderImports(cmd.OutOrStdout(), outcomes)
	if failed > 0 {
		return fmt.Errorf("%d of %d imports failed", failed, len(args))
	}
	return nil
}

// importerFor gibt die Import-Funktion fuer den gewaehlten Modus zurueck
func importerFor(cmd *cobra.Command, local bool) (importFunc, func(), error) {
	if !local {
		client, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, nil, err
		}
		run := func(ctx context.Context, req api.ImportRequest) (*api.ImportResponse, error) {
			return client.Import(ctx, &req)
		}
		return run, func() {}, nil
	}

	logger := logutil.NewLogger(cmd.ErrOrStderr(), envconfig.LogLevel())
	s, err := server.NewLocal(logger)
	if err != nil {
		return nil, nil, err
	}
	run := func(_ context.Context, req api.ImportRequest) (*api.ImportResponse, error) {
		return s.Import(req)
	}
	closer := func() {
		if err := s.Close(); err != nil {
			slog.Warn("close import ledger", "error", err)
		}
	}
	return run, closer, nil
}

// resolveArg macht Pfade absolut, die relativ zum Arbeitsverzeichnis existieren.
// Alle anderen bleiben relativ zum Wartebereich.
func resolveArg(arg string) string {
	if filepath.IsAbs(arg) {
		return arg
	}
	if _, err := os.Stat(arg); err != nil {
		return arg
	}
	if abs, err := filepath.Abs(arg); err == nil {
		return abs
	}
	return arg
}

// =============================================================================
// Fortschritt
// =============================================================================

// progress meldet fertige Imports, nur wenn stderr ein Terminal ist
type progress struct {
	mu    sync.Mutex
	w     io.Writer
	total int
	count atomic.Int32
	tty   bool
}

func newProgress(w io.Writer, total int) *progress {
	p := &progress{w: w, total: total}
	if f, ok := w.(*os.File); ok {
		p.tty = term.IsTerminal(int(f.Fd()))
	}
	return p
}

func (p *progress) done(path string, err error) {
	n := p.count.Add(1)
	if !p.tty {
		return
	}

	status := "ok"
	if err != nil {
		status = "failed"
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "[%d/%d] %s %s\n", n, p.total, path, status)
}

// newImportCmd - Erstellt den import Command
func newImportCmd() *cobra.Command {
	importCmd := &cobra.Command{
		Use:   "import FILE [FILE...]",
		Short: "Import image files from the pending area",
		Long: `Import image files from the pending area into the managed root.

Relative paths that do not exist in the working directory are resolved
inside the pending area.`,
		Args: cobra.MinimumNArgs(1),
		RunE: ImportHandler,
	}

	importCmd.Flags().Bool("local", false, "Run the import in this process instead of on the server")
	importCmd.Flags().Bool("copy", false, "Copy the pending file instead of moving it")
	importCmd.Flags().String("name", "", "File name inside the upload directory (single file only)")
	importCmd.Flags().IntP("parallel", "p", 4, "Maximum number of concurrent imports")

	return importCmd
}
