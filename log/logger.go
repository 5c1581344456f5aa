package log

import (
	"net/url"
	"os"
	"strings"
	"time"

	kitlog "github.com/go-kit/log"
	"github.com/patrickmn/go-cache"
)

var loggerCache *cache.Cache
var defaultLoggerCacheExpiry = 6 * time.Hour

func init() {
	loggerCache = cache.New(defaultLoggerCacheExpiry, 10*time.Minute)
}

// AddContext permanently attaches keyvals to every future log line for this job ID.
func AddContext(jobID string, keyvals ...interface{}) {
	logger := kitlog.With(getLogger(jobID), redactKeyvals(keyvals...)...)
	if err := loggerCache.Replace(jobID, logger, defaultLoggerCacheExpiry); err != nil {
		_ = logger.Log("msg", "error replacing logger in cache: "+err.Error())
	}
}

func Log(jobID string, message string, keyvals ...interface{}) {
	_ = kitlog.With(getLogger(jobID), "msg", message).Log(redactKeyvals(keyvals...)...)
}

// LogNoJobID logs in situations where no job ID is available yet (e.g. before a job is admitted).
func LogNoJobID(message string, keyvals ...interface{}) {
	_ = kitlog.With(newLogger(), "msg", message).Log(redactKeyvals(keyvals...)...)
}

func LogError(jobID string, message string, err error, keyvals ...interface{}) {
	msgLogger := kitlog.With(getLogger(jobID), "msg", message)
	errLogger := kitlog.With(msgLogger, "err", err.Error())
	_ = errLogger.Log(redactKeyvals(keyvals...)...)
}

func getLogger(jobID string) kitlog.Logger {
	if logger, found := loggerCache.Get(jobID); found {
		return logger.(kitlog.Logger)
	}
	l := kitlog.With(newLogger(), "job_id", jobID)
	if err := loggerCache.Add(jobID, l, defaultLoggerCacheExpiry); err != nil {
		_ = l.Log("msg", "error adding logger to cache", "job_id", jobID, "err", err.Error())
	}
	return l
}

func newLogger() kitlog.Logger {
	base := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stderr))
	return kitlog.With(base, "ts", kitlog.DefaultTimestampUTC)
}

// redactKeyvals scrubs URL-shaped values (which may carry pre-signed credentials) before logging.
func redactKeyvals(keyvals ...interface{}) []interface{} {
	var res []interface{}
	for i := 1; i < len(keyvals); i += 2 {
		k, v := keyvals[i-1], keyvals[i]
		res = append(res, k)
		switch s := v.(type) {
		case string:
			res = append(res, RedactURL(s))
		case url.URL:
			res = append(res, s.Redacted())
		case *url.URL:
			if s != nil {
				res = append(res, s.Redacted())
			}
		default:
			res = append(res, v)
		}
	}
	return res
}

func RedactURL(str string) string {
	strLower := strings.ToLower(str)
	if !strings.HasPrefix(strLower, "http") && !strings.HasPrefix(strLower, "s3") {
		return str
	}
	u, err := url.Parse(str)
	if err != nil {
		return "REDACTED"
	}
	return u.Redacted()
}
