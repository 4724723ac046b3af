package main

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"os"
	"os/signal"
	"path"
	"runtime"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"

	"github.com/menta2k/headshot"
	"github.com/menta2k/headshot/internal/config"
	"github.com/menta2k/headshot/internal/server"
	"github.com/menta2k/headshot/internal/utils"
	"github.com/menta2k/headshot/pkg/background"
	"github.com/menta2k/headshot/pkg/cropper"
	"github.com/menta2k/headshot/pkg/types"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Send()
	}
}

func run() error {
	var args cliArgs
	cliCtx := kong.Parse(
		&args,
		kong.Name("headshot"),
		kong.Description("Turn portrait photos into styled square headshots."),
		kong.UsageOnError(),
		kong.Vars{"version": headshot.Version},
	)
	return cliCtx.Run(&args.Globals)
}

type cliArgs struct {
	Globals

	Render     renderCmd        `cmd:"" help:"Render headshots from a photo or a directory of photos"`
	Suggest    suggestCmd       `cmd:"" help:"Print the suggested square crop for a photo as JSON"`
	Presets    presetsCmd       `cmd:"" help:"List export presets, backgrounds and filters"`
	Serve      serveCmd         `cmd:"" help:"Serve the HTTP render API"`
	InitConfig initConfigCmd    `cmd:"" name:"init-config" help:"Write the default configuration file"`
	Version    kong.VersionFlag `help:"Print the version and exit"`
}

// Globals are the flags shared by every command
type Globals struct {
	Config  string `help:"Configuration file (JSON or YAML)" type:"path"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`
}

// setup loads the configuration, installs the logger and returns a context
// cancelled on interrupt
func (g *Globals) setup() (context.Context, context.CancelFunc, *config.Config, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, errors.Wrap(err, "invalid configuration")
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	if g.Verbose {
		level = zerolog.DebugLevel
	}
	if cfg.Log.Format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger().Level(level)
	} else {
		log.Logger = log.Output(zerolog.NewConsoleWriter()).Level(level)
	}
	zerolog.DefaultContextLogger = &log.Logger

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	return log.Logger.WithContext(ctx), cancel, cfg, nil
}

func (g *Globals) loadConfig() (*config.Config, error) {
	if g.Config != "" {
		return config.LoadFromFile(g.Config)
	}
	if path := config.GetConfigPath(); utils.FileExists(path) {
		return config.LoadFromFile(path)
	}
	return config.Default(), nil
}

type renderCmd struct {
	Input      string    `arg:"" help:"Photo file, directory of photos or http(s) URL"`
	Out        string    `short:"o" help:"Output directory (defaults to export.output_dir)"`
	Preset     string    `short:"p" help:"Export preset: linkedin, resume, passport or email (defaults to export.default_preset)"`
	Format     string    `short:"f" help:"Override the preset encoding: png, jpg or webp"`
	Background string    `short:"b" help:"Hex color, linear-gradient(...) or catalog name"`
	Filter     string    `help:"none, professional, warm, cool or bw" default:"none"`
	Brightness int       `help:"Brightness 0-100" default:"50"`
	Contrast   int       `help:"Contrast 0-100" default:"50"`
	Saturation int       `help:"Saturation 0-100" default:"50"`
	AutoCrop   bool      `help:"Crop around detected faces before compositing"`
	Crop       []float64 `help:"Explicit crop as x,y,width,height in source pixels" sep:","`
	Workers    int       `short:"w" help:"Photos rendered in parallel (0 uses every CPU)"`
}

func (cmd *renderCmd) options() (headshot.RenderOptions, error) {
	opts := headshot.DefaultRenderOptions()
	var err error

	if opts.Background, err = background.Parse(cmd.Background); err != nil {
		return opts, err
	}
	if opts.Filter, err = types.ParseFilterKind(cmd.Filter); err != nil {
		return opts, err
	}
	opts.Adjustments = types.AdjustmentSettings{
		Brightness: cmd.Brightness,
		Contrast:   cmd.Contrast,
		Saturation: cmd.Saturation,
	}
	if err := opts.Adjustments.Validate(); err != nil {
		return opts, err
	}

	switch len(cmd.Crop) {
	case 0:
	case 4:
		opts.Crop = &types.Rect{X: cmd.Crop[0], Y: cmd.Crop[1], Width: cmd.Crop[2], Height: cmd.Crop[3]}
	default:
		return opts, errors.Wrap(types.ErrInvalidInput, "--crop takes x,y,width,height")
	}

	opts.Preset = cmd.Preset
	if cmd.Format != "" {
		if opts.Encoding, err = types.ParseEncoding(cmd.Format); err != nil {
			return opts, err
		}
	}
	opts.AutoCrop = cmd.AutoCrop
	return opts, nil
}

func (cmd *renderCmd) Run(g *Globals) error {
	ctx, cancel, cfg, err := g.setup()
	if err != nil {
		return err
	}
	defer cancel()

	opts, err := cmd.options()
	if err != nil {
		return err
	}

	studio, err := headshot.NewWithConfig(cfg.ToStudio())
	if err != nil {
		return err
	}

	files := []string{cmd.Input}
	switch {
	case isURL(cmd.Input), utils.FileExists(cmd.Input):
	case utils.DirExists(cmd.Input):
		if files, err = utils.ListImageFiles(cmd.Input); err != nil {
			return err
		}
	default:
		return errors.Errorf("%s does not exist", cmd.Input)
	}
	if len(files) == 0 {
		log.Ctx(ctx).Warn().Str("input", cmd.Input).Msg("No photos to render")
		return nil
	}

	outDir := cmd.Out
	if outDir == "" {
		outDir = cfg.Export.OutputDir
	}
	if err := utils.EnsureDir(outDir); err != nil {
		return err
	}

	workers := cmd.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	pooler := pool.New().WithErrors().WithContext(ctx).WithMaxGoroutines(workers)

	for _, file := range files {
		pooler.Go(func(ctx context.Context) error {
			if err := renderFile(ctx, studio, file, outDir, opts); err != nil {
				log.Ctx(ctx).Error().Err(err).Str("file", file).Msg("Failed to render photo")
				return errors.Wrap(err, file)
			}
			return nil
		})
	}

	if err := pooler.Wait(); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("Finished with errors")
		return err
	}

	log.Ctx(ctx).Info().Int("photos", len(files)).Str("out", outDir).Msg("Done")
	return nil
}

// renderFile renders one photo into its own buffer and writes the export
func renderFile(ctx context.Context, studio *headshot.Studio, file, outDir string, opts headshot.RenderOptions) error {
	img, err := loadPhoto(ctx, studio, file)
	if err != nil {
		return err
	}

	result, err := studio.RenderImage(ctx, img, opts)
	if err != nil {
		return err
	}

	name := file
	if isURL(file) {
		name = path.Base(strings.SplitN(file, "?", 2)[0])
	}
	outPath := utils.GenerateOutputFilename(name, outDir, result.Preset, result.Encoding.Extension())
	if err := os.WriteFile(outPath, result.Data, 0o644); err != nil {
		return errors.Wrap(err, "write headshot")
	}

	log.Ctx(ctx).Info().
		Str("file", file).
		Str("out", outPath).
		Str("size", utils.FormatFileSize(int64(len(result.Data)))).
		Msg("Wrote headshot")
	return nil
}

// loadPhoto reads a photo from disk or downloads it
func loadPhoto(ctx context.Context, studio *headshot.Studio, input string) (image.Image, error) {
	if isURL(input) {
		return studio.LoadURL(ctx, input)
	}
	data, err := os.ReadFile(input)
	if err != nil {
		return nil, errors.Wrap(err, "read photo")
	}
	return studio.Load(data)
}

func isURL(input string) bool {
	return strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://")
}

type suggestCmd struct {
	Input   string `arg:"" help:"Photo file or http(s) URL"`
	Overlay string `help:"Also write the photo with faces and crop drawn on it to this file"`
}

func (cmd *suggestCmd) Run(g *Globals) error {
	ctx, cancel, cfg, err := g.setup()
	if err != nil {
		return err
	}
	defer cancel()

	studio, err := headshot.NewWithConfig(cfg.ToStudio())
	if err != nil {
		return err
	}

	img, err := loadPhoto(ctx, studio, cmd.Input)
	if err != nil {
		return err
	}
	suggestion, err := studio.SuggestCropImage(ctx, img)
	if err != nil {
		return err
	}

	if cmd.Overlay != "" {
		if err := imaging.Save(cropper.Overlay(img, suggestion), cmd.Overlay); err != nil {
			return errors.Wrap(err, "save overlay")
		}
		log.Ctx(ctx).Info().Str("out", cmd.Overlay).Msg("Wrote overlay")
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(suggestion)
}

type presetsCmd struct {
	JSON bool `help:"Print the catalogs as JSON"`
}

func (cmd *presetsCmd) Run() error {
	studio := headshot.New()
	presets := studio.Presets()

	if cmd.JSON {
		return json.NewEncoder(os.Stdout).Encode(map[string]any{
			"presets":     presets,
			"backgrounds": studio.Backgrounds(),
			"filters":     studio.Filters(),
		})
	}

	fmt.Println("Presets:")
	for _, p := range presets {
		fmt.Printf("  %-10s %-16s %dx%d %s\n", p.Name, p.Label, p.TargetWidth, p.TargetHeight, p.Encoding)
	}
	fmt.Println("Backgrounds:")
	for _, b := range studio.Backgrounds() {
		fmt.Printf("  %-16s %s\n", b.Name, b.Value)
	}
	fmt.Println("Filters:")
	names := make([]string, 0, 5)
	for _, f := range studio.Filters() {
		names = append(names, f.Value.String())
	}
	fmt.Printf("  %s\n", strings.Join(names, ", "))
	return nil
}

type serveCmd struct {
	Addr string `help:"Listen address (defaults to server.addr)"`
}

func (cmd *serveCmd) Run(g *Globals) error {
	ctx, cancel, cfg, err := g.setup()
	if err != nil {
		return err
	}
	defer cancel()

	studio, err := headshot.NewWithConfig(cfg.ToStudio())
	if err != nil {
		return err
	}

	addr := cmd.Addr
	if addr == "" {
		addr = cfg.Server.Addr
	}

	srv := server.New(studio, server.Config{
		Addr:         addr,
		ReadTimeout:  cfg.Server.ReadTimeout.Std(),
		WriteTimeout: cfg.Server.WriteTimeout.Std(),
		Logger:       &log.Logger,
		OnReady: func(addr string) {
			log.Ctx(ctx).Info().Str("backend", cfg.Detector.Backend).Msgf("Server started at %s", addr)
		},
	})
	return srv.Run(ctx)
}

type initConfigCmd struct {
	Path  string `arg:"" optional:"" help:"Where to write the file (defaults to the user config path)"`
	Force bool   `help:"Overwrite an existing file"`
}

func (cmd *initConfigCmd) Run() error {
	path := cmd.Path
	if path == "" {
		path = config.GetConfigPath()
	}
	if utils.FileExists(path) && !cmd.Force {
		return errors.Errorf("%s already exists, use --force to overwrite", path)
	}
	if err := config.Default().SaveToFile(path); err != nil {
		return err
	}
	fmt.Println("wrote", path)
	return nil
}
