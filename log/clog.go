// Package log provides job-scoped structured logging.
package log

import (
	"context"
	"flag"
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/golang/glog"
)

type clogContextKeyType struct{}

var clogContextKey = clogContextKeyType{}

var defaultLogLevel glog.Level = 3

// metadata is immutable after creation, so no locking is needed once attached to a context.
type metadata map[string]any

func init() {
	vFlag := flag.Lookup("v")
	if vFlag != nil {
		// nolint:errcheck
		vFlag.Value.Set(fmt.Sprintf("%d", defaultLogLevel))
	}
}

type VerboseLogger struct {
	level glog.Level
}

func V(level glog.Level) *VerboseLogger {
	return &VerboseLogger{level: level}
}

func (m metadata) Flat() []any {
	out := []any{}
	for k, v := range m {
		out = append(out, k, v)
	}
	return out
}

// WithLogValues returns a new context with the given key/value pairs merged into the logging metadata.
func WithLogValues(ctx context.Context, args ...string) context.Context {
	oldMetadata, _ := ctx.Value(clogContextKey).(metadata)
	newMetadata := metadata{}
	for k, v := range oldMetadata {
		newMetadata[k] = v
	}
	for i := 1; i < len(args); i += 2 {
		newMetadata[args[i-1]] = args[i]
	}
	return context.WithValue(ctx, clogContextKey, newMetadata)
}

func (v *VerboseLogger) logCtx(ctx context.Context, message string, args ...any) {
	if !glog.V(v.level) {
		return
	}
	var jobID string
	meta, _ := ctx.Value(clogContextKey).(metadata)
	if meta != nil {
		jobID, _ = meta["job_id"].(string)
	}
	allArgs := append([]any{}, meta.Flat()...)
	allArgs = append(allArgs, args...)
	allArgs = append(allArgs, "caller", caller(3))
	if jobID == "" {
		LogNoJobID(message, allArgs...)
	} else {
		Log(jobID, message, allArgs...)
	}
}

func (v *VerboseLogger) LogCtx(ctx context.Context, message string, args ...any) {
	v.logCtx(ctx, message, args...)
}

func LogCtx(ctx context.Context, message string, args ...any) {
	V(defaultLogLevel).logCtx(ctx, message, args...)
}

// caller returns a file:line relative to the module root, e.g. pipeline/pipeline.go:58
func caller(depth int) string {
	_, myfile, _, _ := runtime.Caller(0)
	rootDir := filepath.Join(filepath.Dir(myfile), "..")
	_, file, line, _ := runtime.Caller(depth)
	rel, _ := filepath.Rel(rootDir, file)
	return rel + ":" + strconv.Itoa(line)
}
