package reactor

import (
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Severity is this module's diagnostic-severity enum (spec §7/§10.1):
// DEBUG/INFO/WARN/ERROR for ordinary structured diagnostics, plus META
// for the reactor's own introspection events (a fiber kill request, the
// reactor closing) that callers may want routed or filtered separately
// from application-level logging.
type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarn
	SeverityError
	SeverityMeta
)

// level maps Severity onto logiface's syslog-derived Level scale.
// SeverityMeta lands on LevelNotice: strictly above routine INFO
// traffic but below an actual WARN, matching syslog's own use of
// "notice" for administrative/operational events that aren't problems.
func (s Severity) level() logiface.Level {
	switch s {
	case SeverityDebug:
		return logiface.LevelDebug
	case SeverityWarn:
		return logiface.LevelWarning
	case SeverityError:
		return logiface.LevelError
	case SeverityMeta:
		return logiface.LevelNotice
	default:
		return logiface.LevelInformational
	}
}

// NewStumpyLogger builds a *logiface.Logger[*stumpy.Event] writing
// newline-delimited JSON to w at the given minimum level, using the
// zero-allocation stumpy sink (see SPEC_FULL.md §10.1 / §11's domain
// stack). Pass the result to [WithLogger].
func NewStumpyLogger(w stumpyWriter, minLevel Severity) *logiface.Logger[*stumpy.Event] {
	return logiface.New[*stumpy.Event](
		stumpy.WithStumpy(stumpy.WithWriter(w)),
		logiface.WithLevel[*stumpy.Event](minLevel.level()),
	)
}

// stumpyWriter is io.Writer, named locally so NewStumpyLogger's
// signature doesn't force every caller to import io just for this.
type stumpyWriter interface {
	Write(p []byte) (n int, err error)
}

// logEvent emits one structured diagnostic at the given severity,
// tagged with the reactor's identity and whatever key/value pairs are
// passed (interpreted as alternating string keys and values - an
// odd-length or non-string-keyed trailing pair is dropped rather than
// panicking, since a malformed logging call must never be allowed to
// crash the reactor it's trying to describe).
func (r *Reactor) logEvent(sev Severity, msg string, kv ...any) {
	b := r.logger.Build(sev.level())
	if !b.Enabled() {
		b.Release()
		return
	}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		b.Any(key, kv[i+1])
	}
	b.Log(msg)
}
