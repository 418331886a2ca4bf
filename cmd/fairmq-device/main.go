// Command fairmq-device is the generic device launcher of §6: it parses
// the CLI/JSON configuration surface, wires the configured transports and
// channels onto a device.Device, and drives it under either the static or
// interactive controller until a shutdown signal arrives.
//
// It carries no domain task logic of its own (§1's plugin loader is out
// of scope) — PreRun/Run/PostRun stay the framework's no-op defaults, so
// a bare fairmq-device simply exercises the lifecycle and messaging paths
// configured on its channels.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/FairRootGroup/fairmq-go/pkg/config"
	"github.com/FairRootGroup/fairmq-go/pkg/device"
	"github.com/FairRootGroup/fairmq-go/pkg/fairmqlog"
	"github.com/FairRootGroup/fairmq-go/pkg/metrics"
	"github.com/FairRootGroup/fairmq-go/pkg/property"
	"github.com/FairRootGroup/fairmq-go/pkg/transport"
	"github.com/FairRootGroup/fairmq-go/pkg/transport/ofi"
	"github.com/FairRootGroup/fairmq-go/pkg/transport/shmem"
	"github.com/FairRootGroup/fairmq-go/pkg/transport/zeromq"
)

var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, config.ErrParse) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "fairmq-device",
	Short:   "Generic FairMQ-Go device launcher",
	Version: version,
	RunE:    run,
}

func init() {
	config.BindFlags(rootCmd)
	rootCmd.SetVersionTemplate("fairmq-device {{.Version}}\n")
}

func run(cmd *cobra.Command, args []string) error {
	flags, err := config.FromCommand(cmd)
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrParse, err)
	}

	fairmqlog.Init(fairmqlog.Config{Level: fairmqlog.InfoLevel})

	channelOpts, err := config.Resolve(flags)
	if err != nil {
		return err
	}

	if flags.PrintChannels {
		return config.PrintChannels(os.Stdout, channelOpts)
	}
	if flags.PrintOptions {
		return config.PrintOptions(os.Stdout, flags)
	}

	d, shmFactory, closeFactories, err := buildDevice(flags, channelOpts)
	if err != nil {
		return err
	}
	defer closeFactories()

	collector := metrics.NewCollector(d)
	if shmFactory != nil {
		collector.WithManagementDB(shmFactory.ManagementDB())
	}
	collector.Start()
	defer collector.Stop()

	metrics.SetVersion(version)
	metrics.RegisterComponent("device", true, "constructed")
	metrics.RegisterComponent("transport", true, "factories registered")
	metrics.RegisterComponent("channels", true, "built")

	if flags.MetricsAddress != "" {
		defer serveMetrics(flags.MetricsAddress)()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.Run(gctx) })
	g.Go(func() error {
		if flags.Control == "interactive" {
			return runInteractiveController(gctx, d)
		}
		return runStaticController(gctx, d)
	})
	return g.Wait()
}

// buildDevice constructs a Device wired per flags/channelOpts: the
// zeromq factory is always registered (§4.3's default transport), shmem
// and ofi are registered only when a channel actually asks for them.
// closeFactories releases shmem's segments/heartbeat loop on return
// unless --shm-no-cleanup was given.
func buildDevice(flags *config.Flags, channelOpts []config.ChannelOptions) (*device.Device, *shmem.Factory, func(), error) {
	id := flags.ID
	if id == "" {
		id = "fairmq-device"
	}

	props := property.New()
	d := device.New(id, props, device.Hooks{})

	zmq := zeromq.New()
	d.RegisterTransport("zeromq", zmq)

	factories := map[string]transport.Factory{"zeromq": zmq}
	var shmFactory *shmem.Factory

	needsTransport := func(tag string) bool {
		if flags.Transport == tag {
			return true
		}
		for _, o := range channelOpts {
			if o.Transport == tag {
				return true
			}
		}
		return false
	}

	if needsTransport("shmem") {
		f, err := shmem.New(flags.ShmemConfig())
		if err != nil {
			return nil, nil, nil, fmt.Errorf("fairmq-device: shmem factory: %w", err)
		}
		shmFactory = f
		factories["shmem"] = f
		d.RegisterTransport("shmem", f)
	}
	if needsTransport("ofi") {
		f := ofi.New()
		factories["ofi"] = f
		d.RegisterTransport("ofi", f)
	}

	chans, err := config.BuildChannels(channelOpts, flags.Transport, func(tag string) (transport.Factory, error) {
		f, ok := factories[tag]
		if !ok {
			return nil, fmt.Errorf("%w: no transport registered for %q", config.ErrParse, tag)
		}
		return f, nil
	})
	if err != nil {
		return nil, nil, nil, err
	}
	for name, subs := range chans {
		for _, ch := range subs {
			d.AddChannel(name, ch)
		}
	}

	closeFn := func() {
		zmq.Close()
		if shmFactory != nil && !flags.ShmNoCleanup {
			_ = shmFactory.Close()
		}
	}
	return d, shmFactory, closeFn, nil
}

// serveMetrics starts the /metrics, /health, /ready, /live endpoints on
// addr in the background, grounded on the teacher's cmd/warren launcher
// (http.Handle + http.ListenAndServe run from a goroutine, started right
// after the metrics collector). It returns a stop function that shuts the
// server down; errors from a server that is already gone are swallowed,
// matching the teacher's "best effort, don't fail the run over it" stance
// on the metrics endpoint.
func serveMetrics(addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/ready", metrics.ReadyHandler())
	mux.Handle("/live", metrics.LivenessHandler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fairmqlog.Errorf("fairmq-device: metrics server on "+addr, err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
