package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nvr-ai/go-multiview/capture"
	"github.com/nvr-ai/go-multiview/config"
	"github.com/nvr-ai/go-multiview/dataset"
	"github.com/nvr-ai/go-multiview/detector"
	"github.com/nvr-ai/go-multiview/features"
	"github.com/nvr-ai/go-multiview/fusion"
	"github.com/nvr-ai/go-multiview/images"
	"github.com/nvr-ai/go-multiview/logging"
	"github.com/nvr-ai/go-multiview/profiler"
	"github.com/nvr-ai/go-multiview/report"
	"github.com/nvr-ai/go-multiview/server"
)

const (
	defaultInterval = time.Second
	shutdownTimeout = 10 * time.Second
)

// session is the state shared by every command.
type session struct {
	cfg    *config.Config
	logger *zap.Logger
}

func setup(c *cli.Context) (*session, error) {
	cfg, err := config.Load(c.String(flagConfig), c.StringSlice(flagEnvFile)...)
	if err != nil {
		return nil, err
	}
	if s := c.String(flagStrategy); s != "" {
		cfg.Fusion.Strategy = s
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	logger, err := logging.New("multiview", cfg.Log)
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, logger: logger}, nil
}

// engine builds the fusion engine. With withDetector the ONNX model is
// loaded; the returned close function releases it.
func (r *session) engine(withDetector bool, concurrency int) (*fusion.Engine, func() error, error) {
	cfg := r.cfg
	opts := []fusion.Option{
		fusion.WithStrategy(cfg.Strategy()),
		fusion.WithThresholds(cfg.Thresholds),
		fusion.WithVocabulary(cfg.Vocabulary()),
		fusion.WithReservedLabels(cfg.Fusion.Reserved),
		fusion.WithClassAwareDedup(cfg.Fusion.ClassAwareDedup),
		fusion.WithOneToOneDedup(cfg.Fusion.OneToOneDedup),
		fusion.WithConcurrency(concurrency),
		fusion.WithLogger(r.logger),
		fusion.WithMatcher(features.NewSIFTMatcher(features.Config{
			MaxFeatures: cfg.Fusion.MaxFeatures,
			Ratio:       cfg.Thresholds.RatioTest,
		})),
	}

	closer := func() error { return nil }
	if withDetector {
		yolo, err := detector.NewYOLO(cfg.Model.Detector(), r.logger)
		if err != nil {
			return nil, nil, errors.Wrap(err, "loading detector")
		}
		handle := detector.NewHandle(yolo)
		opts = append(opts, fusion.WithDetector(handle))
		closer = handle.Close
	}

	return fusion.NewEngine(opts...), closer, nil
}

func serveAction(c *cli.Context) error {
	rt, err := setup(c)
	if err != nil {
		return err
	}
	defer rt.logger.Sync() //nolint:errcheck

	engine, closeEngine, err := rt.engine(true, 0)
	if err != nil {
		return err
	}
	defer closeEngine() //nolint:errcheck

	srv := &http.Server{
		Addr:              rt.cfg.Server.Addr,
		Handler:           server.New(engine, rt.cfg.Server, rt.logger).SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rt.logger.Info("listening",
			zap.String("addr", srv.Addr),
			zap.String("strategy", string(engine.Strategy())),
			zap.Strings("cameras", rt.cfg.Server.Cameras),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "serving")
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func fuseAction(c *cli.Context) error {
	rt, err := setup(c)
	if err != nil {
		return err
	}
	defer rt.logger.Sync() //nolint:errcheck

	var batches []batch
	if dir := c.String(flagDir); dir != "" {
		groups, err := dataset.LoadGroups(dir)
		if err != nil {
			return err
		}
		for _, g := range groups {
			frames, err := g.Frames()
			if err != nil {
				rt.logger.Warn("undecodable capture", zap.String("timestamp", g.Timestamp), zap.Error(err))
			}
			batches = append(batches, batch{name: g.Timestamp, frames: frames})
		}
	} else {
		frames, err := loadFrames(c.Args().Slice())
		if err != nil {
			return err
		}
		batches = append(batches, batch{frames: frames})
	}
	if len(batches) == 0 {
		return errors.New("no images to fuse")
	}

	engine, closeEngine, err := rt.engine(true, 0)
	if err != nil {
		return err
	}
	defer closeEngine() //nolint:errcheck

	prof := profiler.New(profiler.Options{}, rt.logger)
	for _, b := range batches {
		out, errs := engine.Run(c.Context, b.frames)
		if out == nil {
			return errs
		}
		prof.Observe(out)
		if err := rt.print(c.Bool(flagJSON), b.name, out, errs); err != nil {
			return err
		}
	}
	if len(batches) > 1 && !c.Bool(flagJSON) {
		fmt.Println(prof.Table())
	}
	return nil
}

func watchAction(c *cli.Context) error {
	rt, err := setup(c)
	if err != nil {
		return err
	}
	defer rt.logger.Sync() //nolint:errcheck

	engine, closeEngine, err := rt.engine(true, c.Int(flagConcurrency))
	if err != nil {
		return err
	}
	defer closeEngine() //nolint:errcheck

	cameras, err := openCameras(rt.cfg.Cameras)
	if err != nil {
		return err
	}
	rig, err := capture.NewRig(cameras, capture.DefaultRigConfig(), rt.logger)
	if err != nil {
		return err
	}

	prof := profiler.New(profiler.Options{}, rt.logger)
	prof.Start()
	defer prof.Stop()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return rig.Run(gctx) })
	g.Go(func() error {
		defer cancel()
		if err := rig.WaitReady(gctx, 50*time.Millisecond); err != nil {
			return nil
		}

		ticker := time.NewTicker(c.Duration(flagInterval))
		defer ticker.Stop()
		for cycle := 1; ; cycle++ {
			done := prof.StartOperation("cycle")
			out, errs := engine.Run(gctx, rig.Snapshot())
			done()
			if out == nil {
				if gctx.Err() != nil {
					return nil
				}
				return errs
			}
			prof.Observe(out)
			if err := rt.print(false, fmt.Sprintf("cycle %d", cycle), out, errs); err != nil {
				return err
			}

			if n := c.Int(flagCycles); n > 0 && cycle >= n {
				return nil
			}
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})

	err = g.Wait()
	fmt.Println(prof.Table())
	return err
}

func countsAction(c *cli.Context) error {
	rt, err := setup(c)
	if err != nil {
		return err
	}
	defer rt.logger.Sync() //nolint:errcheck

	sets, err := parseCounts(c.Args().Slice())
	if err != nil {
		return err
	}
	engine, _, err := rt.engine(false, 0)
	if err != nil {
		return err
	}
	out, errs := engine.FuseCounts(sets)
	return rt.print(c.Bool(flagJSON), "", out, errs)
}

type batch struct {
	name   string
	frames []fusion.Frame
}

func (r *session) print(asJSON bool, name string, out *fusion.Outcome, errs error) error {
	if asJSON {
		resp := report.NewResponse(out, r.cfg.Fusion.Reserved, errs)
		data, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return errors.Wrap(err, "encoding response")
		}
		fmt.Println(string(data))
		return nil
	}

	if name != "" {
		fmt.Printf("== %s ==\n", name)
	}
	fmt.Println(report.RenderTable(out))
	for _, err := range multierr.Errors(errs) {
		fmt.Println("Camera error:", err)
	}
	return nil
}

// loadFrames reads camera=path arguments, in order.
func loadFrames(args []string) ([]fusion.Frame, error) {
	pairs, err := parsePairs(args)
	if err != nil {
		return nil, err
	}
	frames := make([]fusion.Frame, 0, len(pairs))
	for _, p := range pairs {
		data, err := os.ReadFile(p.value)
		if err != nil {
			return nil, errors.Wrapf(err, "reading image for %s", p.key)
		}
		img, _, err := images.Decode(data)
		if err != nil {
			return nil, errors.Wrapf(err, "decoding %s", p.value)
		}
		frames = append(frames, fusion.Frame{Camera: p.key, Image: img})
	}
	return frames, nil
}

func openCameras(cfgs []config.CameraConfig) ([]capture.Camera, error) {
	cameras := make([]capture.Camera, 0, len(cfgs))
	closeAll := func() {
		for _, opened := range cameras {
			opened.Source.Close() //nolint:errcheck
		}
	}
	for _, cc := range cfgs {
		width, height, err := cc.Size()
		if err != nil {
			closeAll()
			return nil, err
		}
		src, err := capture.OpenDevice(capture.Device{
			Camera: cc.ID,
			Path:   cc.Device,
			Width:  width,
			Height: height,
		})
		if err != nil {
			closeAll()
			return nil, err
		}
		cameras = append(cameras, capture.Camera{ID: cc.ID, Source: src})
	}
	return cameras, nil
}
