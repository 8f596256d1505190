package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyPath       = "path"
	KeySource     = "source"
	KeyPrefix     = "prefix"
	KeyName       = "name"
	KeyURL        = "url"
	KeyAttempts   = "attempts"
	KeyFiles      = "files"
	KeyBytes      = "bytes"
	KeyDurationMS = "duration_ms"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Source(s string) slog.Attr       { return slog.String(KeySource, s) }
func Prefix(p string) slog.Attr       { return slog.String(KeyPrefix, p) }
func Name(n string) slog.Attr         { return slog.String(KeyName, n) }
func URL(u string) slog.Attr          { return slog.String(KeyURL, u) }
func Attempts(n int) slog.Attr        { return slog.Int(KeyAttempts, n) }
func Files(n int64) slog.Attr         { return slog.Int64(KeyFiles, n) }
func Bytes(n int64) slog.Attr         { return slog.Int64(KeyBytes, n) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
