// Command atlas-ingest runs the ingestion worker: the
// Version Poller (C1), Scan Dispatcher (C2) wrapping the Build Scanner
// (C3), Tile Materialiser (C4), and LOD Synthesiser (C5), all sharing one
// database pool and one bounded tile-write queue.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jimbomcb/wow-minimaps/blobstore"
	"github.com/jimbomcb/wow-minimaps/buildscan"
	"github.com/jimbomcb/wow-minimaps/config"
	"github.com/jimbomcb/wow-minimaps/eventlog"
	"github.com/jimbomcb/wow-minimaps/keystore"
	"github.com/jimbomcb/wow-minimaps/listfile"
	"github.com/jimbomcb/wow-minimaps/lod"
	"github.com/jimbomcb/wow-minimaps/metrics"
	"github.com/jimbomcb/wow-minimaps/obslog"
	"github.com/jimbomcb/wow-minimaps/oracle"
	"github.com/jimbomcb/wow-minimaps/pipeline"
	"github.com/jimbomcb/wow-minimaps/ratelimit"
	"github.com/jimbomcb/wow-minimaps/resolver"
	"github.com/jimbomcb/wow-minimaps/scandispatch"
	"github.com/jimbomcb/wow-minimaps/sql"
	"github.com/jimbomcb/wow-minimaps/tile"
	"github.com/jimbomcb/wow-minimaps/version"

	// A concrete resolver.Resolver driver package must be blank-imported
	// here so its init() registers under the name resolver_driver names.
)

// Exit codes.
const (
	exitOK            = 0
	exitConfigError   = 1
	exitFatalDatabase = 2
)

func main() {
	var configPath string
	code := exitOK

	root := &cobra.Command{
		Use:   "atlas-ingest",
		Short: "Runs the minimap tile ingestion worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			code = run(configPath)
			return nil
		},
	}
	root.Flags().StringVar(&configPath, "config", "", "path to the worker configuration file")
	_ = root.MarkFlagRequired("config")

	if err := root.Execute(); err != nil {
		os.Exit(exitConfigError)
	}
	os.Exit(code)
}

// run wires every component and blocks until a shutdown signal or a fatal
// error, returning the process exit code.
func run(configPath string) int {
	cfg, err := config.Load(configPath)
	if err != nil {
		obslog.Errorf("loading config: %s", err)
		return exitConfigError
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return exitConfigError
	}
	obslog.SetLogger(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := sql.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		obslog.Errorf("opening database pool: %s", err)
		return exitFatalDatabase
	}
	defer pool.Close()

	products := sql.NewProductStore(pool)
	scans := sql.NewScanStore(pool)
	versions := sql.NewVersionStore(pool)
	maps := sql.NewMapStore(pool)
	comps := sql.NewCompositionStore(pool)
	tiles := sql.NewTileStore(pool)
	events := sql.NewEventStore(pool)

	log := eventlog.New(events)

	oracleClient := oracle.New(cfg.OracleURL, http.DefaultClient)
	poller := version.New(oracleClient, versions, log, cfg.ProductGlobs, cfg.ProductExcludes)

	blobsRoot := filepath.Join(cfg.CachePath, "blobs")
	if cfg.BlobStoreEndpoint != "" {
		blobsRoot = cfg.BlobStoreEndpoint
	}
	blobs := blobstore.NewFSStore(blobsRoot)

	metricsReg := prometheus.NewRegistry()
	if err := metrics.Register(metricsReg); err != nil {
		obslog.Errorf("registering metrics: %s", err)
		return exitConfigError
	}
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{})}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			obslog.Errorf("metrics server exited: %s", err)
		}
	}()
	defer metricsServer.Shutdown(context.Background())

	listfileCache, err := listfile.New(&listfile.HTTPFetcher{}, cfg.ListfileURL)
	if err != nil {
		obslog.Errorf("building listfile cache: %s", err)
		return exitConfigError
	}
	var listfileResolver buildscan.ListfileResolver = listfileCache
	if cfg.Cache.RedisAddr != "" {
		listfileResolver = listfile.NewRedisBacked(listfileCache, cfg.Cache.RedisAddr, "listfile")
	}

	res, err := resolver.Open(cfg.ResolverDriver, cfg.ResolverConfig)
	if err != nil {
		obslog.Errorf("opening content resolver: %s", err)
		return exitConfigError
	}

	limiter := ratelimit.New(ratelimit.DefaultConfig())
	queue := pipeline.NewQueue()

	materialiser, err := tile.NewMaterialiser(limiter, blobs, queue, cfg.BaselineSpec())
	if err != nil {
		obslog.Errorf("configuring tile materialiser: %s", err)
		return exitConfigError
	}
	synth := lod.NewSynthesiser(blobs, queue, cfg.LODSpec())

	keys, err := keystore.Load(filepath.Join(cfg.CachePath, "tact_keys"))
	if err != nil {
		obslog.Errorf("loading key cache: %s", err)
		return exitConfigError
	}

	scanner := buildscan.New(
		res, keys, listfileResolver, maps, comps, tiles, tiles, blobs,
		materialiser, synth,
		buildscan.Config{
			GeneratedLevels: cfg.GeneratedLevels(),
			SingleThread:    cfg.SingleThread,
			SpecificMaps:    cfg.SpecificMaps,
		},
	)

	scannerFunc := func(ctx context.Context, cs sql.ClaimedScan) (scandispatch.Result, error) {
		r, _, sources, err := products.Sources(ctx, cs.ProductID)
		if err != nil {
			return scandispatch.Result{}, err
		}
		return scanner.Scan(ctx, cs.ProductID, r, sources)
	}
	dispatcher := scandispatch.New(scans, scannerFunc, log, cfg.CatchScanExceptions)

	// The drain loop is the queue's single consumer and
	// outlives any one scan: it runs for the process lifetime, closed
	// only once both producer loops below have returned.
	drainDone := make(chan error, 1)
	go func() { drainDone <- pipeline.Drain(context.Background(), queue, tiles) }()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return poller.Run(gctx, cfg.PollInterval) })
	g.Go(func() error { return dispatcher.Run(gctx, cfg.PollInterval) })

	runErr := g.Wait()
	queue.Close()
	drainErr := <-drainDone

	if runErr != nil {
		obslog.Errorf("worker loop exited: %s", runErr)
		return exitFatalDatabase
	}
	if drainErr != nil {
		obslog.Errorf("tile queue drain exited: %s", drainErr)
		return exitFatalDatabase
	}
	return exitOK
}
