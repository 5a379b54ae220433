// SPDX-License-Identifier: MIT
//
// Package server provides the Echo HTTP API that runs extractions on
// uploaded audio files.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"featex/internal/app"
	"featex/internal/audio"
	"featex/internal/config"
	"featex/internal/feature"
	"featex/internal/log"
	"featex/internal/report"
	"featex/internal/transport"
	"featex/pkg/build"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
)

// ExtractResponse is the body of a successful POST /api/extract.
type ExtractResponse struct {
	Input      string  `json:"input"`
	Format     string  `json:"format"`
	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
	Frames     int64   `json:"frames"`
	BlockSize  int     `json:"block_size"`
	HopSize    int     `json:"hop_size"`
	ElapsedMS  float64 `json:"elapsed_ms"`
	report.Document
}

// Health is the body of GET /api/health.
type Health struct {
	Status  string `json:"status"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Server wraps an Echo instance. Each request runs its own pipeline.
type Server struct {
	e     *echo.Echo
	cfg   *config.Config
	sink  transport.Transport
	entry *logrus.Entry
}

// New builds the router. When ws is non-nil its endpoint is mounted at /ws
// and every extraction publishes to it.
func New(cfg *config.Config, ws *transport.WebSocketTransport) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{e: e, cfg: cfg, entry: log.WithComponent("server")}

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			entry := s.entry.WithFields(logrus.Fields{
				"method":  v.Method,
				"uri":     v.URI,
				"status":  v.Status,
				"latency": v.Latency,
			})
			if v.Error != nil {
				entry.WithError(v.Error).Warn("request failed")
				return nil
			}
			entry.Debug("request")
			return nil
		},
	}))

	// Routes
	e.GET("/api/health", s.health)
	e.GET("/api/features", s.listFeatures)
	e.POST("/api/extract", s.extract)
	if ws != nil {
		s.sink = ws
		e.GET("/ws", echo.WrapHandler(ws.Handler()))
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.e }

// Start listens on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.entry.Infof("listening on %s", addr)
	if err := s.e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for running ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}

func (s *Server) health(c echo.Context) error {
	info := build.GetBuildFlags()
	return c.JSON(http.StatusOK, Health{Status: "ok", Name: info.Name, Version: info.Version})
}

// listFeatures returns the feature catalog.
func (s *Server) listFeatures(c echo.Context) error {
	return c.JSON(http.StatusOK, feature.Catalog())
}

// extract runs the pipeline on the multipart "file" upload. Form fields
// override the server configuration for this request only.
func (s *Server) extract(c echo.Context) error {
	req := c.Request()
	req.Body = http.MaxBytesReader(c.Response(), req.Body, s.cfg.Server.MaxUploadBytes)

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "upload exceeds "+strconv.FormatInt(tooLarge.Limit, 10)+" bytes")
		}
		return echo.NewHTTPError(http.StatusBadRequest, "missing multipart field 'file'")
	}

	cfg, err := s.requestConfig(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	path, err := saveUpload(header, cfg)
	if err != nil {
		return httpError(err)
	}
	defer os.Remove(path)

	res, err := app.NewRunner(cfg, s.sink).ExtractFile(req.Context(), path)
	if err != nil {
		return httpError(err)
	}

	doc, err := report.NewDocument(res.Matrix, res.Names)
	if err != nil {
		return err
	}
	if doc.Summary, err = report.Summarize(res.Matrix, res.Names); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ExtractResponse{
		Input:      header.Filename,
		Format:     res.Spec.Format.String(),
		SampleRate: res.Spec.SampleRate,
		Channels:   res.Spec.Channels,
		Frames:     res.Frames,
		BlockSize:  cfg.Analysis.BlockSize,
		HopSize:    cfg.Analysis.HopSize,
		ElapsedMS:  float64(res.Elapsed) / float64(time.Millisecond),
		Document:   doc,
	})
}

// requestConfig copies the server configuration and applies form overrides.
func (s *Server) requestConfig(c echo.Context) (*config.Config, error) {
	cfg := *s.cfg
	cfg.Analysis.Features = append([]string(nil), s.cfg.Analysis.Features...)
	cfg.Interactive = false

	ints := []struct {
		field string
		dst   *int
	}{
		{"block_size", &cfg.Analysis.BlockSize},
		{"hop_size", &cfg.Analysis.HopSize},
		{"zero_pad", &cfg.Analysis.ZeroPad},
		{"raw_rate", &cfg.Input.RawSampleRate},
		{"raw_channels", &cfg.Input.RawChannels},
	}
	for _, f := range ints {
		v := c.FormValue(f.field)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %q is not an integer", f.field, v)
		}
		*f.dst = n
	}
	if v := c.FormValue("kappa"); v != "" {
		k, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("kappa: %q is not a number", v)
		}
		cfg.Analysis.Kappa = k
	}
	if v := c.FormValue("window"); v != "" {
		cfg.Analysis.Window = v
	}
	if v := c.FormValue("windowing"); v != "" {
		cfg.Analysis.Windowing = v
	}
	if v := c.FormValue("format"); v != "" {
		cfg.Input.Format = v
	}
	if v := c.FormValue("raw_encoding"); v != "" {
		cfg.Input.RawEncoding = v
	}
	if form, err := c.MultipartForm(); err == nil {
		if values := form.Value["features"]; len(values) > 0 {
			cfg.Analysis.Features = values
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// saveUpload copies the upload to a temporary file whose extension lets the
// decoder be chosen.
func saveUpload(header *multipart.FileHeader, cfg *config.Config) (string, error) {
	ext := strings.ToLower(filepath.Ext(header.Filename))
	if cfg.Input.Format == "" {
		if _, err := audio.FormatFromPath(header.Filename); err != nil {
			return "", err
		}
	}

	src, err := header.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	dst, err := os.CreateTemp("", "featex-upload-*"+ext)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", err
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return "", err
	}
	return dst.Name(), nil
}

// httpError maps extraction failures onto status codes.
func httpError(err error) error {
	switch {
	case errors.Is(err, audio.ErrUnsupportedFormat),
		errors.Is(err, audio.ErrInvalidArgument),
		errors.Is(err, config.ErrInvalidConfig),
		errors.Is(err, feature.ErrInvalidArgument),
		errors.Is(err, app.ErrNoFeatures):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, context.Canceled):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
