// Command worldhost is a reference process wiring the region lifecycle
// engine together: it loads a YAML config, brings up one region store per
// configured dimension, drives a fixed-rate tick loop against all of them,
// and exposes an ops HTTP surface (/healthz, /metrics) alongside graceful
// shutdown on SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/stabilise/worldcore/internal/config"
	"github.com/stabilise/worldcore/internal/loader"
	"github.com/stabilise/worldcore/internal/region"
	"github.com/stabilise/worldcore/internal/regionindex"
	"github.com/stabilise/worldcore/internal/regionlog"
	"github.com/stabilise/worldcore/internal/regionmirror"
	"github.com/stabilise/worldcore/internal/regionstore"
	"github.com/stabilise/worldcore/internal/regiontiles"
	"github.com/stabilise/worldcore/internal/scheduler"
	"github.com/stabilise/worldcore/internal/worldgen"
	"github.com/stabilise/worldcore/internal/worldhost"
	"github.com/stabilise/worldcore/internal/worldsnapshot"
)

// referenceTiles is the fixed tile id assignment the reference generator
// writes. A real deployment would source these from its own tile registry
// (see internal/worldgen's doc comment); worldhost hardcodes one so the
// demo process has something concrete to generate and persist.
var referenceTiles = worldgen.TileIDs{
	Air: 0, Dirt: 1, Grass: 2, Sand: 3, Stone: 4, Gravel: 5, Log: 6,
	CoalOre: 7, IronOre: 8, CopperOre: 9, CrystalOre: 10,
}

// dimensionRuntime bundles one dimension's scheduler pool, loader, region
// store and host façade, plus the world seed used to fill in worldsnapshot
// manifests.
type dimensionRuntime struct {
	pool   *scheduler.Pool
	loader *loader.Loader
	store  *regionstore.Store
	host   *worldhost.Host
	seed   int64
}

func main() {
	var (
		configPath = flag.String("config", "./worldcore.yaml", "path to the world config file")
		addr       = flag.String("addr", ":8080", "ops http listen address")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[worldhost] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if len(cfg.Storage.Dimensions) == 0 {
		logger.Fatalf("config lists no dimensions")
	}
	if cfg.UnloadGraceTicks > 0 {
		region.UnloadGraceTicks = int32(cfg.UnloadGraceTicks)
	}
	if cfg.TicksPerSecond > 0 {
		region.TicksPerSecond = int64(cfg.TicksPerSecond)
	}

	regionLogger := regionlog.New(cfg.Storage.WorldDir)
	defer regionLogger.Close()

	var index *regionindex.Index
	if cfg.Storage.IndexDBPath != "" {
		index, err = regionindex.Open(cfg.Storage.IndexDBPath)
		if err != nil {
			logger.Fatalf("open region index: %v", err)
		}
		defer index.Close()
	}

	var mirror *regionmirror.Mirror
	if cfg.Mirror != nil {
		client, err := regionmirror.NewBucketClient(cfg.Mirror.Endpoint, cfg.Mirror.Bucket, cfg.Mirror.AccessKeyID, cfg.Mirror.SecretAccessKey)
		if err != nil {
			logger.Fatalf("build mirror client: %v", err)
		}
		mirror = regionmirror.New(client, cfg.Storage.WorldDir, cfg.Mirror.Prefix,
			cfg.Mirror.Workers, cfg.Mirror.QueueCapacity,
			time.Duration(cfg.Mirror.EnqueueWaitMs)*time.Millisecond, logger)
		defer mirror.Close()
	}

	dims := make(map[string]*dimensionRuntime, len(cfg.Storage.Dimensions))
	for _, name := range cfg.Storage.Dimensions {
		dims[name] = buildDimension(cfg, name, logger, regionLogger, index, mirror)
	}

	ctx, cancel := signalContext()
	defer cancel()

	tickInterval := time.Second / time.Duration(cfg.TicksPerSecond)
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	var worldAge uint64
	tickDone := make(chan struct{})
	go func() {
		defer close(tickDone)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				worldAge++
				runTick(worldAge, cfg, dims, logger)
			}
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		writeMetrics(rw, cfg.WorldID, worldAge, dims, index, mirror)
	})

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s (world %s, %d dimensions, tps=%d)", *addr, cfg.WorldID, len(dims), cfg.TicksPerSecond)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Printf("ListenAndServe: %v", err)
	}

	<-tickDone
	logger.Printf("tick loop stopped, shutting down %d dimensions", len(dims))
	for name, d := range dims {
		d.store.Shutdown()
		d.pool.Close(scheduler.DefaultShutdownTimeout)
		logger.Printf("dimension %s drained", name)
	}
}

func buildDimension(cfg config.Config, name string, logger *log.Logger, regionLogger *regionlog.Logger, index *regionindex.Index, mirror *regionmirror.Mirror) *dimensionRuntime {
	dimDir := filepath.Join(cfg.Storage.WorldDir, "dimensions", name)
	pool := scheduler.New(cfg.Scheduler.Workers, logger)

	ld := loader.New(dimDir, pool, logger)
	ld.AddLoaderAndSaver(regiontiles.TileCodec{})
	ld.AddLoaderAndSaver(regiontiles.StructureCodec{})
	ld.AddLoaderAndSaver(regiontiles.NewTileEntityStep())

	if mirror != nil {
		ld.SetOnSaved(mirror.Enqueue)
	}
	ld.SetOnLoadResult(func(r *region.Region, ok bool) {
		recordLifecycleEvent(regionLogger, index, name, r, ok, regionlog.EventLoaded, regionlog.EventLoadFailed)
	})
	ld.SetOnSaveResult(func(r *region.Region, ok bool) {
		recordLifecycleEvent(regionLogger, index, name, r, ok, regionlog.EventSaved, regionlog.EventSaveFailed)
	})

	gen := &worldgen.ReferenceGenerator{Params: worldgen.Params{
		Seed:                            cfg.WorldGen.Seed,
		Tiles:                           referenceTiles,
		BiomeRegionSize:                 cfg.WorldGen.BiomeRegionSize,
		SpawnClearRadius:                cfg.WorldGen.SpawnClearRadius,
		OreClusterProbScalePermille:     cfg.WorldGen.OreClusterProbScalePermille,
		TerrainClusterProbScalePermille: cfg.WorldGen.TerrainClusterProbScalePermille,
		SprinkleStonePermille:           cfg.WorldGen.SprinkleStonePermille,
		SprinkleDirtPermille:            cfg.WorldGen.SprinkleDirtPermille,
		SprinkleLogPermille:             cfg.WorldGen.SprinkleLogPermille,
	}}

	store := regionstore.New(ld, gen)
	return &dimensionRuntime{
		pool:   pool,
		loader: ld,
		store:  store,
		host:   worldhost.New(store),
		seed:   cfg.WorldGen.Seed,
	}
}

func recordLifecycleEvent(regionLogger *regionlog.Logger, index *regionindex.Index, dimension string, r *region.Region, ok bool, successKind, failKind regionlog.EventKind) {
	kind := successKind
	if !ok {
		kind = failKind
	}
	regionLogger.Log(regionlog.Event{Kind: kind, RX: r.RX, RY: r.RY})

	if index != nil {
		index.Upsert(regionindex.RegionUpdate{
			Dimension:      dimension,
			RX:             r.RX,
			RY:             r.RY,
			Lifecycle:      r.Lifecycle().String(),
			Generated:      r.Generated(),
			LastSavedTick:  r.LastSaved(),
			AnchoredSlices: r.AnchoredSlices(),
		})
	}
}

// runTick advances every dimension by one tick, then runs whichever
// periodic sweeps (autosave, whole-world snapshot) are due at worldAge.
func runTick(worldAge uint64, cfg config.Config, dims map[string]*dimensionRuntime, logger *log.Logger) {
	for _, d := range dims {
		d.host.Step(func(r *region.Region) {
			d.loader.SaveRegion(r, false, nil)
		})
	}

	if cfg.Save.AutosaveIntervalTicks > 0 && worldAge%cfg.Save.AutosaveIntervalTicks == 0 {
		for _, d := range dims {
			d.store.RequestSaveAll(cfg.Save.UseCurrentThread)
		}
	}

	if cfg.Snapshot.EveryTicks > 0 && worldAge%cfg.Snapshot.EveryTicks == 0 {
		writeSnapshot(cfg, worldAge, dims, logger)
	}
}

func writeSnapshot(cfg config.Config, worldAge uint64, dims map[string]*dimensionRuntime, logger *log.Logger) {
	manifest := worldsnapshot.Manifest{
		Header: worldsnapshot.Header{Version: 1, WorldID: cfg.WorldID, Tick: worldAge},
	}
	for name, d := range dims {
		manifest.Dimensions = append(manifest.Dimensions, worldsnapshot.DimensionManifest{
			Name: name,
			Seed: d.seed,
		})
	}
	path := worldsnapshot.PathFor(cfg.Storage.WorldDir, worldAge)
	if err := worldsnapshot.Write(path, manifest); err != nil {
		logger.Printf("write snapshot %s: %v", path, err)
		return
	}
	if err := worldsnapshot.Retain(cfg.Storage.WorldDir, cfg.Snapshot.Retain); err != nil {
		logger.Printf("retain snapshots: %v", err)
	}
}

func writeMetrics(rw http.ResponseWriter, worldID string, tick uint64, dims map[string]*dimensionRuntime, index *regionindex.Index, mirror *regionmirror.Mirror) {
	rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

	fmt.Fprintf(rw, "# HELP worldcore_tick Current world tick.\n")
	fmt.Fprintf(rw, "# TYPE worldcore_tick gauge\n")
	fmt.Fprintf(rw, "worldcore_tick{world=%q} %d\n", worldID, tick)

	fmt.Fprintf(rw, "# HELP worldcore_resident_regions Currently resident region count.\n")
	fmt.Fprintf(rw, "# TYPE worldcore_resident_regions gauge\n")
	for name, d := range dims {
		fmt.Fprintf(rw, "worldcore_resident_regions{world=%q,dimension=%q} %d\n", worldID, name, d.store.Len())
	}

	fmt.Fprintf(rw, "# HELP worldcore_scheduler_queue_depth Loader scheduler pool queue depth.\n")
	fmt.Fprintf(rw, "# TYPE worldcore_scheduler_queue_depth gauge\n")
	for name, d := range dims {
		fmt.Fprintf(rw, "worldcore_scheduler_queue_depth{world=%q,dimension=%q} %d\n", worldID, name, d.pool.QueueDepth())
	}

	if index != nil {
		fmt.Fprintf(rw, "# HELP worldcore_index_dropped_updates_total Region index updates dropped because the writer fell behind.\n")
		fmt.Fprintf(rw, "# TYPE worldcore_index_dropped_updates_total counter\n")
		fmt.Fprintf(rw, "worldcore_index_dropped_updates_total{world=%q} %d\n", worldID, index.Dropped())
	}

	if mirror != nil {
		stats := mirror.Stats()
		fmt.Fprintf(rw, "# HELP worldcore_mirror_queue_depth Off-site mirror upload queue depth.\n")
		fmt.Fprintf(rw, "# TYPE worldcore_mirror_queue_depth gauge\n")
		fmt.Fprintf(rw, "worldcore_mirror_queue_depth{world=%q} %d\n", worldID, stats.QueueDepth)

		fmt.Fprintf(rw, "# HELP worldcore_mirror_upload_success_total Off-site mirror uploads that succeeded.\n")
		fmt.Fprintf(rw, "# TYPE worldcore_mirror_upload_success_total counter\n")
		fmt.Fprintf(rw, "worldcore_mirror_upload_success_total{world=%q} %d\n", worldID, stats.UploadSuccessTotal)

		fmt.Fprintf(rw, "# HELP worldcore_mirror_upload_fail_total Off-site mirror uploads that failed after retries.\n")
		fmt.Fprintf(rw, "# TYPE worldcore_mirror_upload_fail_total counter\n")
		fmt.Fprintf(rw, "worldcore_mirror_upload_fail_total{world=%q} %d\n", worldID, stats.UploadFailTotal)

		fmt.Fprintf(rw, "# HELP worldcore_mirror_dropped_total Off-site mirror uploads dropped because the queue was saturated.\n")
		fmt.Fprintf(rw, "# TYPE worldcore_mirror_dropped_total counter\n")
		fmt.Fprintf(rw, "worldcore_mirror_dropped_total{world=%q} %d\n", worldID, stats.DroppedTotal)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
