package config

import (
	"flag"

	"github.com/peterbourgon/ff/v3"
)

// ParseFlags binds Cli fields to CLI flags / env vars (CLIPCUT_*).
func ParseFlags(args []string) (Cli, error) {
	cli := Defaults()

	fs := flag.NewFlagSet("clipcut-server", flag.ContinueOnError)
	fs.StringVar(&cli.HTTPAddr, "http-addr", cli.HTTPAddr, "public HTTP listen address")
	fs.StringVar(&cli.DebugAddr, "debug-addr", cli.DebugAddr, "internal debug/metrics listen address")
	fs.StringVar(&cli.APIToken, "api-token", cli.APIToken, "shared bearer token accepted as a verified principal credential")
	fs.StringVar(&cli.DataDir, "data-dir", cli.DataDir, "directory for the sqlite job store and local blob storage")
	fs.StringVar(&cli.StorageURL, "storage-url", cli.StorageURL, "blob backend URL (file:// or s3://); empty defaults to <data-dir>/blobs")
	fs.Int64Var(&cli.MaxUploadBytes, "max-upload-bytes", cli.MaxUploadBytes, "maximum accepted upload size in bytes")
	fs.DurationVar(&cli.UploadTTL, "upload-ttl", cli.UploadTTL, "TTL for an incomplete upload session")
	fs.Int64Var(&cli.DefaultChunkBytes, "default-chunk-bytes", cli.DefaultChunkBytes, "default chunk size when the client doesn't request one")
	fs.IntVar(&cli.WorkerConcurrency, "worker-concurrency", cli.WorkerConcurrency, "max concurrent RUNNING jobs per process")
	fs.IntVar(&cli.PerPrincipalConcurrency, "per-principal-concurrency", cli.PerPrincipalConcurrency, "max concurrent RUNNING jobs per principal")
	fs.IntVar(&cli.MaxAttempts, "max-attempts", cli.MaxAttempts, "max retry attempts for a retryable failure")
	fs.IntVar(&cli.RetryBaseSeconds, "retry-base-seconds", cli.RetryBaseSeconds, "base retry backoff in seconds")
	fs.Float64Var(&cli.RetryFactor, "retry-factor", cli.RetryFactor, "exponential retry backoff factor")
	fs.Float64Var(&cli.RetryJitter, "retry-jitter", cli.RetryJitter, "retry backoff jitter fraction")
	fs.DurationVar(&cli.JobDeadline, "job-deadline", cli.JobDeadline, "global per-job deadline")
	fs.DurationVar(&cli.LeaseTTL, "lease-ttl", cli.LeaseTTL, "worker lease TTL")
	fs.IntVar(&cli.EventRingSize, "event-ring-size", cli.EventRingSize, "per-job progress event ring buffer size")
	fs.IntVar(&cli.DefaultClipCount, "default-clip-count", cli.DefaultClipCount, "default number of clips to select per job")

	err := ff.Parse(fs, args, ff.WithEnvVarPrefix("CLIPCUT"))
	return cli, err
}
