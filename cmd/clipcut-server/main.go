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

	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"

	"github.com/clipcut/clipcut-api/blob"
	"github.com/clipcut/clipcut-api/config"
	"github.com/clipcut/clipcut-api/eventbus"
	"github.com/clipcut/clipcut-api/httpapi"
	"github.com/clipcut/clipcut-api/jobstore"
	"github.com/clipcut/clipcut-api/log"
	"github.com/clipcut/clipcut-api/pipeline"
	"github.com/clipcut/clipcut-api/scheduler"
	"github.com/clipcut/clipcut-api/upload"
	"github.com/clipcut/clipcut-api/video"
)

func main() {
	if err := flag.Set("logtostderr", "true"); err != nil {
		glog.Fatal(err)
	}

	cli, err := config.ParseFlags(os.Args[1:])
	if err != nil {
		glog.Fatalf("error parsing cli: %s", err)
	}

	if err := os.MkdirAll(cli.DataDir, 0o755); err != nil {
		glog.Fatalf("error creating data dir: %s", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := jobstore.Open(ctx, filepath.Join(cli.DataDir, "clipcut.db"))
	if err != nil {
		glog.Fatalf("error opening job store: %s", err)
	}
	defer db.Close()

	storageURL := cli.StorageURL
	if storageURL == "" {
		storageURL = "file://" + filepath.Join(cli.DataDir, "blobs")
	}
	blobs, err := blob.New(storageURL)
	if err != nil {
		glog.Fatalf("error opening blob store: %s", err)
	}

	bus := eventbus.New(cli.EventRingSize)

	uploadRepo, err := jobstore.NewUploadRepository(db, filepath.Join(cli.DataDir, "upload-chunks"))
	if err != nil {
		glog.Fatalf("error opening upload repository: %s", err)
	}
	assembler := upload.NewAssembler(uploadRepo, blobs, cli.MaxUploadBytes, cli.DefaultChunkBytes, cli.UploadTTL, cli.AllowedExtensions)

	coordinator := pipeline.New(blobs, db, video.Probe{}, pipeline.NewSilenceDetectTranscriber(), filepath.Join(cli.DataDir, "work"), cli.DefaultClipCount)

	// No external billing/metering collaborator is wired in this deployment;
	// creditHook stays nil, so Scheduler skips the pre-COMPLETED hook entirely.
	sched := scheduler.New(db, bus, blobs, coordinator, nil, nil, scheduler.Config{
		WorkerConcurrency:       cli.WorkerConcurrency,
		PerPrincipalConcurrency: cli.PerPrincipalConcurrency,
		MaxAttempts:             cli.MaxAttempts,
		RetryBaseSeconds:        cli.RetryBaseSeconds,
		RetryFactor:             cli.RetryFactor,
		RetryJitter:             cli.RetryJitter,
		JobDeadline:             cli.JobDeadline,
		LeaseTTL:                cli.LeaseTTL,
	})
	if err := sched.Start(ctx); err != nil {
		glog.Fatalf("error starting scheduler: %s", err)
	}
	defer sched.Stop()

	handlers := &httpapi.Handlers{Assembler: assembler, Scheduler: sched, DB: db, Blobs: blobs, Bus: bus}
	router := httpapi.NewRouter(cli, handlers)

	apiServer := &http.Server{Addr: cli.HTTPAddr, Handler: router}
	debugServer := &http.Server{Addr: cli.DebugAddr, Handler: httpapi.NewDebugMux()}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.LogNoJobID("starting clipcut-api", "version", config.Version, "addr", cli.HTTPAddr)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		log.LogNoJobID("starting debug listener", "version", config.Version, "addr", cli.DebugAddr)
		if err := debugServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		return sweepExpiredUploads(ctx, assembler)
	})
	group.Go(func() error {
		return waitForShutdownSignal(ctx)
	})

	if werr := group.Wait(); werr != nil {
		glog.Infof("shutting down: %s", werr)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = apiServer.Shutdown(shutdownCtx)
	_ = debugServer.Shutdown(shutdownCtx)
}

// sweepExpiredUploads periodically deletes upload sessions past their TTL,
// bounding staged-chunk disk usage.
func sweepExpiredUploads(ctx context.Context, assembler *upload.Assembler) error {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := assembler.SweepExpired(ctx)
			if err != nil {
				log.LogNoJobID("error sweeping expired uploads", "err", err)
				continue
			}
			if n > 0 {
				log.LogNoJobID("swept expired upload sessions", "count", n)
			}
		}
	}
}

func waitForShutdownSignal(ctx context.Context) error {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGINT)
	select {
	case s := <-c:
		return errors.New("caught signal " + s.String())
	case <-ctx.Done():
		return nil
	}
}
