package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"spheretrace/visualizer/internal/config"
	"spheretrace/visualizer/internal/httpapi"
	"spheretrace/visualizer/internal/logging"
	"spheretrace/visualizer/internal/render"
	"spheretrace/visualizer/internal/simulation"
	"spheretrace/visualizer/internal/viewer"
	"spheretrace/visualizer/web"
)

const shutdownTimeout = 5 * time.Second

// sceneFlags are the flags shared by the one-shot trace and render commands.
type sceneFlags struct {
	source string
	target string
	scene  string
	seed   uint64
	width  int
	height int
}

func (f *sceneFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.source, "source", "", "Ray source as x,y (default: viewport center)")
	flags.StringVar(&f.target, "target", "", "Ray target as x,y")
	flags.StringVar(&f.scene, "scene", "", "Scene mode: random, static or custom (default from config)")
	flags.Uint64Var(&f.seed, "seed", 0, "Seed for random scenes (default: config seed, else random)")
	flags.IntVar(&f.width, "width", 0, "Viewport width (default from config)")
	flags.IntVar(&f.height, "height", 0, "Viewport height (default from config)")
	_ = cmd.MarkFlagRequired("target")
}

// job is one resolved trace request.
type job struct {
	cfg      *config.Config
	viewport simulation.Viewport
	scene    *simulation.Scene
	source   simulation.Point
	target   simulation.Point
}

func (f *sceneFlags) resolve(opts *rootOptions) (*job, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	//1.- Flags override the loaded configuration.
	if f.scene != "" {
		if _, err := simulation.ParseSceneMode(f.scene); err != nil {
			return nil, err
		}
		cfg.Scene.Mode = f.scene
	}
	if f.seed != 0 {
		cfg.Scene.Seed = f.seed
	}
	viewport := cfg.ViewportSize()
	if f.width != 0 || f.height != 0 {
		if f.width <= 0 || f.height <= 0 {
			return nil, fmt.Errorf("viewport must be positive, got %dx%d", f.width, f.height)
		}
		viewport = simulation.Viewport{Width: f.width, Height: f.height}
	}

	//2.- Resolve the endpoints; the source defaults to the viewport center.
	source := viewport.Center()
	if f.source != "" {
		if source, err = parsePoint(f.source); err != nil {
			return nil, fmt.Errorf("--source: %w", err)
		}
	}
	target, err := parsePoint(f.target)
	if err != nil {
		return nil, fmt.Errorf("--target: %w", err)
	}

	scene, err := cfg.BuildScene(viewport, rand.Uint64())
	if err != nil {
		return nil, err
	}
	return &job{cfg: cfg, viewport: viewport, scene: scene, source: source, target: target}, nil
}

func (j *job) trace() simulation.Trace {
	return simulation.NewTracer(j.scene, j.viewport, j.cfg.Trace.TracerOptions()).Trace(j.source, j.target)
}

// parsePoint reads an "x,y" pair.
func parsePoint(raw string) (simulation.Point, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 2 {
		return simulation.Point{}, fmt.Errorf("want x,y, got %q", raw)
	}
	var coords [2]float64
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return simulation.Point{}, fmt.Errorf("parse %q: %w", raw, err)
		}
		coords[i] = v
	}
	return simulation.Pt(coords[0], coords[1]), nil
}

func newTraceCommand(opts *rootOptions) *cobra.Command {
	flags := &sceneFlags{}
	cmd := &cobra.Command{
		Use:   "trace",
		Short: "March one ray and print the trace as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			j, err := flags.resolve(opts)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(j.trace())
		},
	}
	flags.register(cmd)
	return cmd
}

func newRenderCommand(opts *rootOptions) *cobra.Command {
	flags := &sceneFlags{}
	var out string
	cmd := &cobra.Command{
		Use:   "render",
		Short: "March one ray and paint the frame as PNG",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			j, err := flags.resolve(opts)
			if err != nil {
				return err
			}
			frame := render.Frame{Viewport: j.viewport, Scene: j.scene, Trace: j.trace()}
			if out == "-" {
				return render.New(render.DefaultStyle).EncodePNG(cmd.OutOrStdout(), frame)
			}
			return writeFrame(out, frame)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&out, "out", "o", "frame.png", "Output PNG path, - for stdout")
	return cmd
}

func writeFrame(path string, frame render.Frame) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()
	return render.New(render.DefaultStyle).EncodePNG(f, frame)
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the interactive viewer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Logging)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ln, err := net.Listen("tcp", cfg.Server.Addr)
			if err != nil {
				return fmt.Errorf("listen %s: %w", cfg.Server.Addr, err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg, logger, ln)
		},
	}
}

// runServer serves the viewer on ln until ctx is cancelled, then drains the
// HTTP server and ends every viewer session.
func runServer(ctx context.Context, cfg *config.Config, logger *zap.Logger, ln net.Listener) error {
	monitor := simulation.NewFrameMonitor()
	sessions := viewer.NewServer(viewer.Options{
		Config:  cfg,
		Logger:  logger,
		Monitor: monitor,
		Seed:    rand.Uint64,
	})
	scene, err := cfg.BuildScene(cfg.ViewportSize(), rand.Uint64())
	if err != nil {
		_ = ln.Close()
		return err
	}
	handlers := httpapi.NewHandlerSet(httpapi.Options{
		Logger:   logger,
		Scene:    scene,
		Viewport: cfg.ViewportSize(),
		Tracer:   cfg.Trace.TracerOptions(),
		Renderer: render.New(render.DefaultStyle),
		Monitor:  monitor,
		Viewer:   sessions,
		Sessions: sessions,
		Limiter:  httpapi.NewKeyedLimiter(cfg.Server.SnapshotWindow, cfg.Server.SnapshotLimit, nil),
		Page:     web.Index,
		// Snapshots allocate width*height*4 bytes.
		MaxSnapshotPixels: cfg.Server.MaxSnapshotPixels,
	})
	srv := &http.Server{
		Handler:           handlers.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("viewer listening",
			zap.String("url", listenerURL(ln.Addr().String())),
			zap.Int("shapes", scene.Len()),
			zap.String("stepping", cfg.Trace.Stepping),
		)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		//1.- Hijacked websocket connections are not tracked by Shutdown; end them explicitly.
		sessions.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		logger.Info("viewer stopped", zap.Int("frames", monitor.Snapshot().Frames))
		return nil
	})
	return g.Wait()
}
