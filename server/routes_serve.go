// routes_serve.go - Server-Start und Lifecycle-Management
// Enthaelt: Serve() - baut Registry, Protokoll und Importer und startet den HTTP-Server

package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pimsgo/pims/envconfig"
	"github.com/pimsgo/pims/formats/common"
	"github.com/pimsgo/pims/histogram"
	"github.com/pimsgo/pims/importer"
	"github.com/pimsgo/pims/logutil"
	"github.com/pimsgo/pims/store"
	"github.com/pimsgo/pims/version"
)

// Serve startet den HTTP-Server auf ln und blockiert bis SIGINT/SIGTERM
func Serve(ln net.Listener) error {
	logger := logutil.NewLogger(os.Stderr, envconfig.LogLevel())
	slog.SetDefault(logger)
	slog.Info("server config", "env", envconfig.Values())

	s, err := newServer(ln.Addr(), logger)
	if err != nil {
		return err
	}
	defer s.Close()

	h, err := s.GenerateRoutes()
	if err != nil {
		return err
	}

	ctx, done := context.WithCancel(context.Background())
	srvr := &http.Server{Handler: h}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signals
		srvr.Close()
		done()
	}()

	slog.Info(fmt.Sprintf("Listening on %s (version %s)", ln.Addr(), version.Version))
	err = srvr.Serve(ln)
	// Nach dem Signal-Handler sauber beenden, sonst sofort mit Fehler
	if err != http.ErrServerClosed {
		return err
	}
	<-ctx.Done()
	return nil
}

// NewLocal baut die Komponenten ohne HTTP-Listener (pims import --local)
func NewLocal(logger *slog.Logger) (*Server, error) {
	return newServer(nil, logger)
}

// Close schliesst das Protokoll
func (s *Server) Close() error {
	if s.ledger == nil {
		return nil
	}
	return s.ledger.Close()
}

// newServer liest die Konfiguration einmal und baut alle Komponenten
func newServer(addr net.Addr, logger *slog.Logger) (*Server, error) {
	kind, err := histogram.ParseKind(envconfig.Histogram())
	if err != nil {
		return nil, err
	}

	cfg := importer.Config{
		Root:          envconfig.Root(),
		Pending:       envconfig.Pending(),
		HistogramKind: kind,
	}
	for _, dir := range []string{cfg.Root, cfg.Pending} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	registry := common.Registry(int(envconfig.ConversionThreshold()))
	listeners := []importer.Listener{importer.LogListener{Logger: logger}}

	s := &Server{addr: addr, formats: registry, logger: logger}
	if !envconfig.NoLedger() {
		ledger, err := store.Open(envconfig.DB())
		if err != nil {
			return nil, fmt.Errorf("open import ledger: %w", err)
		}
		s.ledger = ledger
		listeners = append(listeners, ledger.Listener())
	}

	s.importer, err = importer.New(cfg,
		importer.WithFormats(registry),
		importer.WithListeners(listeners...),
		importer.WithLogger(logger),
	)
	if err != nil {
		if s.ledger != nil {
			s.ledger.Close()
		}
		return nil, err
	}

	slog.Info("importer ready", "root", cfg.Root, "pending", cfg.Pending, "formats", registry.Count(), "histogram", kind)
	return s, nil
}
