// Package server - Haupt-Router des Import-Servers
// Beinhaltet: Server-Struct, Router-Registrierung, Handler fuer Import, Formate und Protokoll
package server

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/pimsgo/pims/api"
	"github.com/pimsgo/pims/envconfig"
	"github.com/pimsgo/pims/formats"
	"github.com/pimsgo/pims/importer"
	"github.com/pimsgo/pims/store"
	"github.com/pimsgo/pims/version"
)

var mode string = gin.DebugMode

// Server haelt die einmal beim Start gebauten Komponenten
type Server struct {
	addr     net.Addr
	importer *importer.Importer
	formats  *formats.Registry
	ledger   *store.Ledger // nil wenn PIMS_NOLEDGER gesetzt ist
	logger   *slog.Logger
}

func init() {
	switch mode {
	case gin.DebugMode:
	case gin.ReleaseMode:
	case gin.TestMode:
	default:
		mode = gin.DebugMode
	}

	gin.SetMode(mode)
}

// GenerateRoutes erstellt und konfiguriert den HTTP-Router
func (s *Server) GenerateRoutes() (http.Handler, error) {
	if s.logger == nil {
		s.logger = slog.Default()
	}

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowWildcard = true
	corsConfig.AllowBrowserExtensions = true
	corsConfig.AllowHeaders = []string{
		"Authorization",
		"Content-Type",
		"User-Agent",
		"Accept",
		"X-Requested-With",
	}
	corsConfig.AllowOrigins = envconfig.AllowedOrigins()

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(
		gin.Recovery(),
		requestLogger(s.logger),
		cors.New(corsConfig),
		allowedHostsMiddleware(s.addr),
	)

	r.HEAD("/", func(c *gin.Context) { c.String(http.StatusOK, "PIMS is running") })
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "PIMS is running") })
	r.HEAD("/api/version", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"version": version.Version}) })
	r.GET("/api/version", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"version": version.Version}) })

	r.GET("/api/formats", s.FormatsHandler)
	r.GET("/api/formats/:id", s.FormatHandler)
	r.POST("/api/import", s.ImportHandler)
	r.GET("/api/imports", s.ImportsHandler)
	r.GET("/api/imports/:id/events", s.EventsHandler)

	return r, nil
}

// ============================================================================
// Import
// ============================================================================

// ImportHandler importiert eine Datei aus dem Wartebereich.
// Relative Pfade beziehen sich auf den Wartebereich.
func (s *Server) ImportHandler(c *gin.Context) {
	var req api.ImportRequest
	if err := c.ShouldBindJSON(&req); errors.Is(err, io.EOF) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing request body"})
		return
	} else if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Path == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "path is required"})
		return
	}

	resp, err := s.Import(req)
	if err != nil {
		body := gin.H{"error": err.Error(), "kind": importer.KindOf(err).String()}
		if resp != nil {
			body["id"] = resp.ID
			body["failed_at"] = resp.FailedAt
		}
		c.JSON(statusFromError(err), body)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Import fuehrt einen Import aus. Bei einem Fehler ist die Antwort teilweise
// befuellt, sofern der Import begonnen hat.
func (s *Server) Import(req api.ImportRequest) (*api.ImportResponse, error) {
	path := req.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.importer.Config().Pending, path)
	}

	res, err := s.importer.Run(path, importer.RunOptions{Name: req.Name, PreferCopy: req.PreferCopy})
	if res == nil {
		return nil, err
	}
	resp := importResponse(res)
	return &resp, err
}

// statusFromError bildet die Fehlerart auf einen HTTP-Status ab
func statusFromError(err error) int {
	switch importer.KindOf(err) {
	case importer.KindNotFound:
		return http.StatusNotFound
	case importer.KindNoMatchingFormat, importer.KindMetadataParsing, importer.KindConversion, importer.KindArchive:
		return http.StatusUnprocessableEntity
	case importer.KindUnimplemented:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func importResponse(res *importer.Result) api.ImportResponse {
	resp := api.ImportResponse{
		ID:              res.ID,
		State:           res.State.String(),
		UploadDir:       res.UploadDir,
		Upload:          res.Upload,
		NeedsConversion: res.NeedsConversion,
		Original:        artifactInfo(res.Original),
		Spatial:         artifactInfo(res.Spatial),
		Histogram:       artifactInfo(res.Histogram),
	}
	if res.Original != nil {
		resp.Format = res.Original.Format
	}
	if res.State == importer.StateFailed {
		resp.FailedAt = res.FailedAt.String()
	}

	m := res.Metadata
	info := &api.MetadataInfo{
		Width:           m.Width,
		Height:          m.Height,
		Channels:        m.Channels,
		SignificantBits: m.SignificantBits,
		AcquisitionTime: m.AcquisitionTime,
		Description:     m.Description,
	}
	if m.PhysicalSizeX != nil {
		info.PhysicalSizeX = m.PhysicalSizeX.String()
	}
	if m.PhysicalSizeY != nil {
		info.PhysicalSizeY = m.PhysicalSizeY.String()
	}
	resp.Metadata = info

	return resp
}

func artifactInfo(a *importer.Artifact) *api.ArtifactInfo {
	if a == nil {
		return nil
	}
	return &api.ArtifactInfo{Role: string(a.Role), Path: a.Path, Format: a.Format, Reference: a.Reference}
}

// ============================================================================
// Formate
// ============================================================================

// FormatsHandler listet die Formate in Erkennungsreihenfolge
func (s *Server) FormatsHandler(c *gin.Context) {
	descriptors := s.formats.List()
	resp := api.FormatsResponse{Formats: make([]api.FormatInfo, 0, len(descriptors))}
	for _, d := range descriptors {
		resp.Formats = append(resp.Formats, formatInfo(d))
	}
	c.JSON(http.StatusOK, resp)
}

// FormatHandler gibt ein einzelnes Format zurueck, mit Vorschlag bei Tippfehlern
func (s *Server) FormatHandler(c *gin.Context) {
	d, err := s.formats.Lookup(c.Param("id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, formatInfo(d))
}

func formatInfo(d *formats.Descriptor) api.FormatInfo {
	return api.FormatInfo{
		ID:               d.ID,
		Name:             d.Name,
		Spatial:          d.Spatial,
		Readable:         d.Readable,
		ConversionTarget: d.ConversionTarget(),
	}
}

// ============================================================================
// Protokoll
// ============================================================================

// ImportsHandler listet protokollierte Imports, neueste zuerst
func (s *Server) ImportsHandler(c *gin.Context) {
	if s.ledger == nil {
		c.AbortWithStatusJSON(http.StatusNotImplemented, gin.H{"error": "import ledger is disabled"})
		return
	}

	limit := 0
	if q := c.Query("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid limit " + strconv.Quote(q)})
			return
		}
		limit = n
	}

	imports, err := s.ledger.Imports(limit)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := api.ImportsResponse{Imports: make([]api.ImportRecord, 0, len(imports))}
	for _, imp := range imports {
		resp.Imports = append(resp.Imports, api.ImportRecord{
			ID:         imp.ID,
			Pending:    imp.Pending,
			Upload:     imp.Upload,
			Format:     imp.Format,
			State:      imp.State,
			Error:      imp.Error,
			StartedAt:  imp.StartedAt,
			FinishedAt: imp.FinishedAt,
		})
	}
	c.JSON(http.StatusOK, resp)
}

// EventsHandler listet die Ereignisse eines Imports
func (s *Server) EventsHandler(c *gin.Context) {
	if s.ledger == nil {
		c.AbortWithStatusJSON(http.StatusNotImplemented, gin.H{"error": "import ledger is disabled"})
		return
	}

	id := c.Param("id")
	events, err := s.ledger.Events(id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := api.EventsResponse{ID: id, Events: make([]api.EventRecord, 0, len(events))}
	for _, e := range events {
		resp.Events = append(resp.Events, api.EventRecord{
			Type:      e.Type,
			Path:      e.Path,
			Target:    e.Target,
			Format:    e.Format,
			Error:     e.Error,
			CreatedAt: e.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, resp)
}
