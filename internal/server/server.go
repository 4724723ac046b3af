package server

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/menta2k/headshot"
	"github.com/menta2k/headshot/pkg/background"
	"github.com/menta2k/headshot/pkg/types"
)

// multipart framing allowance on top of the photo limit
const formOverhead = 1 << 20

type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Logger       *zerolog.Logger
	OnReady      func(addr string)
}

type Server struct {
	studio       *headshot.Studio
	config       Config
	logger       zerolog.Logger
	app          *fiber.App
	shutdownCh   chan struct{}
	shutdownOnce sync.Once
}

func New(studio *headshot.Studio, config Config) *Server {
	logger := zerolog.Nop()
	if config.Logger != nil {
		logger = *config.Logger
	}

	s := &Server{
		studio:     studio,
		config:     config,
		logger:     logger,
		shutdownCh: make(chan struct{}),
	}

	s.app = fiber.New(fiber.Config{
		Immutable:             true,
		DisableStartupMessage: true,
		BodyLimit:             int(studio.MaxBytes()) + formOverhead,
		ReadTimeout:           config.ReadTimeout,
		WriteTimeout:          config.WriteTimeout,
		ErrorHandler:          s.handleError,
	})
	s.routes()
	return s
}

// App exposes the fiber application, mainly for tests
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Shutdown() {
	s.shutdownOnce.Do(func() {
		close(s.shutdownCh)
	})
}

// Run serves until ctx is cancelled or Shutdown is called
func (s *Server) Run(ctx context.Context) error {
	s.app.Hooks().OnListen(func(listen fiber.ListenData) error {
		if fn := s.config.OnReady; fn != nil {
			fn(fmt.Sprintf("http://%s:%s", listen.Host, listen.Port))
		}
		return nil
	})

	go func() {
		select {
		case <-ctx.Done():
		case <-s.shutdownCh:
		}
		if err := s.app.ShutdownWithTimeout(5 * time.Second); err != nil {
			s.logger.Error().Err(err).Msg("Failed to shutdown HTTP server")
		}
	}()

	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return errors.Wrap(err, "failed to listen")
	}

	if err := s.app.Listener(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server error")
	}
	return nil
}

func (s *Server) routes() {
	s.app.Use(func(c *fiber.Ctx) error {
		logger := s.logger.With().
			Str("method", c.Method()).
			Str("path", c.Path()).
			Logger()
		c.SetUserContext(logger.WithContext(c.UserContext()))

		start := time.Now()
		err := c.Next()
		logger.Debug().Dur("took", time.Since(start)).Msg("Request handled")
		return err
	})

	api := s.app.Group("/api")

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "version": headshot.Version})
	})
	api.Get("/presets", func(c *fiber.Ctx) error {
		return c.JSON(s.studio.Presets())
	})
	api.Get("/backgrounds", func(c *fiber.Ctx) error {
		return c.JSON(s.studio.Backgrounds())
	})
	api.Get("/filters", func(c *fiber.Ctx) error {
		return c.JSON(s.studio.Filters())
	})
	api.Post("/render", s.render)
	api.Post("/suggest-crop", s.suggestCrop)
}

func (s *Server) render(c *fiber.Ctx) error {
	data, err := s.readPhoto(c)
	if err != nil {
		return err
	}
	opts, err := renderOptions(c)
	if err != nil {
		return err
	}

	result, err := s.studio.Render(c.UserContext(), data, opts)
	if err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, result.MimeType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", result.Filename()))
	return c.Send(result.Data)
}

func (s *Server) suggestCrop(c *fiber.Ctx) error {
	data, err := s.readPhoto(c)
	if err != nil {
		return err
	}

	suggestion, err := s.studio.SuggestCrop(c.UserContext(), data)
	if err != nil {
		return err
	}
	return c.JSON(suggestion)
}

// readPhoto returns the bytes of the "image" form file
func (s *Server) readPhoto(c *fiber.Ctx) ([]byte, error) {
	fh, err := c.FormFile("image")
	if err != nil {
		return nil, errors.Wrap(types.ErrInvalidInput, "image file is required")
	}

	f, err := fh.Open()
	if err != nil {
		return nil, errors.Wrap(err, "open upload")
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, s.studio.MaxBytes()+1))
	if err != nil {
		return nil, errors.Wrap(err, "read upload")
	}
	return data, nil
}

// renderOptions parses the render form fields. Absent fields keep their
// defaults.
func renderOptions(c *fiber.Ctx) (headshot.RenderOptions, error) {
	opts := headshot.DefaultRenderOptions()
	var err error

	if opts.Background, err = background.Parse(c.FormValue("background")); err != nil {
		return opts, err
	}
	if opts.Filter, err = types.ParseFilterKind(c.FormValue("filter")); err != nil {
		return opts, err
	}

	sliders := []struct {
		name string
		dst  *int
	}{
		{"brightness", &opts.Adjustments.Brightness},
		{"contrast", &opts.Adjustments.Contrast},
		{"saturation", &opts.Adjustments.Saturation},
	}
	for _, sl := range sliders {
		v := c.FormValue(sl.name)
		if v == "" {
			continue
		}
		if *sl.dst, err = strconv.Atoi(v); err != nil {
			return opts, errors.Wrapf(types.ErrInvalidInput, "%s must be an integer, got %q", sl.name, v)
		}
	}

	if opts.Crop, err = cropRect(c); err != nil {
		return opts, err
	}

	opts.Preset = c.FormValue("preset")
	if v := c.FormValue("format"); v != "" {
		if opts.Encoding, err = types.ParseEncoding(v); err != nil {
			return opts, err
		}
	}
	if v := c.FormValue("auto_crop"); v != "" {
		if opts.AutoCrop, err = strconv.ParseBool(v); err != nil {
			return opts, errors.Wrapf(types.ErrInvalidInput, "auto_crop must be a boolean, got %q", v)
		}
	}
	return opts, nil
}

// cropRect reads crop_x, crop_y, crop_width and crop_height. They are all
// required once any of them is set.
func cropRect(c *fiber.Ctx) (*types.Rect, error) {
	names := []string{"crop_x", "crop_y", "crop_width", "crop_height"}
	values := make([]float64, len(names))

	present := 0
	for _, name := range names {
		if c.FormValue(name) != "" {
			present++
		}
	}
	if present == 0 {
		return nil, nil
	}
	if present != len(names) {
		return nil, errors.Wrap(types.ErrInvalidInput, "crop needs crop_x, crop_y, crop_width and crop_height")
	}

	for i, name := range names {
		v, err := strconv.ParseFloat(c.FormValue(name), 64)
		if err != nil {
			return nil, errors.Wrapf(types.ErrInvalidInput, "%s must be a number", name)
		}
		values[i] = v
	}
	return &types.Rect{X: values[0], Y: values[1], Width: values[2], Height: values[3]}, nil
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "Internal Server Error"
	}

	logger := zerolog.Ctx(c.UserContext())
	event := logger.Warn()
	if status >= http.StatusInternalServerError {
		event = logger.Error()
	}
	event.Err(err).Int("status", status).Msg("Request failed")

	return c.Status(status).JSON(fiber.Map{"error": message})
}

func statusFor(err error) int {
	var fiberErr *fiber.Error
	switch {
	case errors.As(err, &fiberErr):
		return fiberErr.Code
	case errors.Is(err, types.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrEncoding):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
