package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/boltdb/bolt"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/gops/agent"
	"github.com/nicolagi/gridserve/dispatch"
	"github.com/nicolagi/gridserve/resolve"
	"github.com/nicolagi/gridserve/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

func main() {
	defaultConfigFile := os.ExpandEnv("$HOME/lib/gridserve/gridserve.config")
	configFile := flag.String("config", defaultConfigFile, "location of configuration file")
	flag.Parse()

	opts, err := loadConfig(*configFile)
	if err != nil {
		log.WithFields(log.Fields{
			"err":  err,
			"path": *configFile,
		}).Fatal("Could not load configuration")
	}
	opts.applyDefaultsForMissingProperties()
	s, err := opts.settings()
	if err != nil {
		log.WithFields(log.Fields{
			"err":  err,
			"path": *configFile,
		}).Fatal("Invalid configuration")
	}

	if opts.Debug {
		log.SetLevel(log.DebugLevel)
	}

	if err := agent.Listen(agent.Options{
		ShutdownCleanup: true,
	}); err != nil {
		log.WithField("err", err).Warn("Could not start gops agent")
	} else {
		defer agent.Close()
	}

	bucket, closeBucket := openBucket(opts)
	defer closeBucket()

	if opts.LookupsPerSecond > 0 {
		bucket = storage.NewThrottled(bucket, opts.LookupsPerSecond, int(opts.LookupsPerSecond)+1)
	}
	fallback := bucket
	if opts.FallbackCacheSize > 0 {
		fallback = storage.NewCached(bucket, opts.FallbackCacheSize, s.cacheTTL, storage.DefaultMaxCachedObjectSize)
	}
	resolver := resolve.New(bucket,
		resolve.WithRuleset(s.ruleset),
		resolve.WithFallbackBucket(fallback),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	files := dispatch.New(resolver,
		dispatch.WithPrefix(opts.Prefix),
		dispatch.WithMode(s.mode),
		dispatch.WithFallbackStatus(s.fallbackStatus),
		dispatch.WithMetrics(dispatch.NewMetrics(reg)),
	)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(files.Wrap)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              opts.Listen,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Shutdown makes ListenAndServe return, which lets the deferred clean-up
	// functions run.
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-c
		log.WithField("signal", sig).Info("Shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.WithField("err", err).Warn("Could not shut down the server cleanly")
		}
	}()

	log.WithFields(log.Fields{
		"addr":     opts.Listen,
		"backend":  opts.Backend,
		"prefix":   opts.Prefix,
		"lookup":   s.mode,
		"fallback": s.ruleset.Name,
		"status":   s.fallbackStatus,
	}).Info("Listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithField("err", err).Error("Could not listen and serve")
	}
}

// openBucket connects to the configured backend, exiting if that's not
// possible. The returned function releases the backend.
func openBucket(opts *config) (storage.Bucket, func()) {
	switch opts.Backend {
	case "gridfs":
		gfs, err := storage.Dial(context.Background(), storage.GridFSConfig{
			Hostname: opts.Hostname,
			Port:     opts.Port,
			Database: opts.Database,
			Bucket:   opts.Bucket,
			Username: opts.Username,
			Password: opts.Password,
			Timeout:  storage.DefaultConnectTimeout,
		})
		if err != nil {
			log.WithField("err", err).Fatal("Could not connect to GridFS")
		}
		return gfs, func() {
			ctx, cancel := context.WithTimeout(context.Background(), storage.DefaultConnectTimeout)
			defer cancel()
			if err := gfs.Close(ctx); err != nil {
				log.WithField("err", err).Warn("Could not disconnect from GridFS")
			}
		}
	case "s3":
		s3, err := storage.NewS3(opts.S3Profile, opts.S3Region, opts.S3Bucket)
		if err != nil {
			log.WithField("err", err).Fatal("Could not create S3 session")
		}
		return s3, func() {}
	case "bolt":
		file := os.ExpandEnv(opts.BoltFile)
		if err := os.MkdirAll(filepath.Dir(file), 0700); err != nil {
			log.Fatalf("Could not ensure directory for %q exists: %v", file, err)
		}
		db, err := bolt.Open(file, 0600, &bolt.Options{Timeout: storage.DefaultConnectTimeout})
		if err != nil {
			log.Fatalf("Could not open database %q: %v", file, err)
		}
		store, err := storage.NewBoltStore(db)
		if err != nil {
			log.Fatalf("Could not instantiate boltdb store at %q: %v", file, err)
		}
		return store, func() {
			if err := db.Close(); err != nil {
				log.Warnf("Could not close boltdb database: %v", err)
			}
		}
	default:
		dir := os.ExpandEnv(opts.DiskDir)
		log.Infof("Will use a disk-based backend serving data at %s", dir)
		return storage.NewDiskStore(dir), func() {}
	}
}
