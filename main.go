package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/matt-g-everett/bustx/api"
	"github.com/matt-g-everett/bustx/config"
	"github.com/matt-g-everett/bustx/geolocate"
	"github.com/matt-g-everett/bustx/logging"
	"github.com/matt-g-everett/bustx/route"
	"github.com/matt-g-everett/bustx/stream"
	"github.com/matt-g-everett/bustx/transport"
	"github.com/matt-g-everett/bustx/util"
)

type app struct {
	Config     *config.Config
	Log        *logging.Logger
	Transport  transport.Transport
	Controller *stream.Controller
	Pages      *api.Api
}

func newApp(cfg *config.Config, log *logging.Logger) *app {
	a := new(app)
	a.Config = cfg
	a.Log = log
	return a
}

func (a *app) setup(busID, routePath string) error {
	cfg := a.Config

	if routePath == "" {
		routePath = cfg.Route.File
	}
	r, err := route.Load(routePath)
	if err != nil {
		return err
	}
	a.Log.Info().Int("waypoints", len(r)).Str("file", routePath).Msg("Route loaded")

	transport.SetPahoLogger(a.Log.Component("paho"))
	a.Transport, err = transport.New(cfg, a.Log.Component("transport"))
	if err != nil {
		return err
	}

	surfaceOpts := stream.SurfaceOptions{
		CommandsTopic:         cfg.Topics.Commands,
		ReadyTopic:            cfg.Topics.Ready,
		VehiclePositionsTopic: cfg.Topics.VehiclePositions,
		APIKey:                cfg.Map.APIKey,
		ReadyOnCreate:         cfg.Map.ReadyOnCreate,
		Route:                 r,
	}
	if cfg.Glide.Enabled {
		easing, err := util.LookupEasing(cfg.Glide.Easing)
		if err != nil {
			return err
		}
		surfaceOpts.Glide = stream.NewGlide(cfg.Glide.FrameRate, easing)
	}
	surface := stream.NewSurface(a.Transport, surfaceOpts, a.Log.Component("surface"))

	locator, err := geolocate.New(cfg, a.Transport, a.Log.Component("geolocate"))
	if err != nil {
		return err
	}

	animator := stream.NewAnimator(stream.AnimatorOptions{
		Interval:    cfg.Animator.Interval,
		PanDuration: cfg.Animator.PanDuration,
	}, a.Log.Component("animator"))

	a.Controller = stream.NewController(
		stream.ControllerOptionsFromConfig(cfg, busID),
		surface, locator, animator, r, a.Log.Component("controller"))

	if cfg.Pages.Enabled {
		a.Pages = api.NewApi(cfg.Pages.Addr, cfg.Pages.Dir, a.Log.Component("api"))
	}
	return nil
}

func (a *app) run(ctx context.Context) error {
	if a.Pages != nil {
		go func() {
			if err := a.Pages.Serve(); err != nil {
				a.Log.Error().Err(err).Msg("Page host stopped")
			}
		}()
	}

	return a.Controller.Run(ctx)
}

func (a *app) close() {
	if a.Pages != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Pages.Shutdown(ctx); err != nil {
			a.Log.Warn().Err(err).Msg("Page host shutdown failed")
		}
	}
	if a.Transport != nil {
		if err := a.Transport.Close(); err != nil {
			a.Log.Warn().Err(err).Msg("Transport close failed")
		}
	}
}

func main() {
	// Parse command line parameters
	configPath := flag.String("config", "bustx.yaml", "YAML or JSON config file.")
	busID := flag.String("bus", "", "Bus id to show. Logged, does not select a route.")
	routePath := flag.String("route", "", "YAML route file. Overrides route.file.")
	flag.Parse()

	os.Exit(start(*configPath, *busID, *routePath))
}

func start(configPath, busID, routePath string) int {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	graylog := ""
	if cfg.Graylog.Enabled {
		graylog = cfg.Graylog.Address
	}
	log, err := logging.Setup(logging.Options{
		Level:   cfg.LogLevel,
		LogsDir: cfg.LogsDir,
		Graylog: graylog,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer log.Close()

	a := newApp(cfg, log)
	defer a.close()

	if err := a.setup(busID, routePath); err != nil {
		log.Error().Err(err).Msg("Startup failed")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.run(ctx); err != nil {
		return 1
	}
	log.Info().Msg("Shut down")
	return 0
}
