package logger

import (
	"log/slog"
)

// Standard field keys for structured logging.
// These keys are shared by the name server, the storage server, and the
// client so that logs from all three roles can be aggregated and queried
// uniformly.
const (
	// ========================================================================
	// Request correlation
	// ========================================================================
	KeyTraceID = "trace_id" // Per-session trace ID for request correlation

	// ========================================================================
	// Protocol & Operation
	// ========================================================================
	KeyVerb      = "verb"       // Wire verb: CREATE, READ, WRITE, DELETE, ...
	KeyStatus    = "status"     // Wire error code (0 on success)
	KeyStatusMsg = "status_msg" // Human-readable status message

	// ========================================================================
	// File operations
	// ========================================================================
	KeyFilename = "filename" // File name in the catalog / storage root
	KeyOwner    = "owner"    // File owner username
	KeySentence = "sentence" // Sentence index for write sessions
	KeyWordIdx  = "word_idx" // Word index inside a locked sentence
	KeyTag      = "tag"      // Checkpoint tag

	// ========================================================================
	// Peers
	// ========================================================================
	KeyUsername = "username" // Session username
	KeyClientIP = "client_ip"
	KeyEndpoint = "endpoint" // Storage server endpoint ip:port

	// ========================================================================
	// Operation metadata
	// ========================================================================
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeySource     = "source" // Lookup source: cache, index
	KeyEvicted    = "evicted"
)

// ============================================================================
// Field constructors for type safety
// ============================================================================

// TraceID returns a slog.Attr for the session trace ID.
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// Verb returns a slog.Attr for the wire verb being handled.
func Verb(v string) slog.Attr {
	return slog.String(KeyVerb, v)
}

// Status returns a slog.Attr for a wire error code.
func Status(code int) slog.Attr {
	return slog.Int(KeyStatus, code)
}

// StatusMsg returns a slog.Attr for a human-readable status message.
func StatusMsg(msg string) slog.Attr {
	return slog.String(KeyStatusMsg, msg)
}

// Filename returns a slog.Attr for a catalog filename.
func Filename(name string) slog.Attr {
	return slog.String(KeyFilename, name)
}

// Owner returns a slog.Attr for a file owner.
func Owner(name string) slog.Attr {
	return slog.String(KeyOwner, name)
}

// Sentence returns a slog.Attr for a sentence index.
func Sentence(n int) slog.Attr {
	return slog.Int(KeySentence, n)
}

// WordIdx returns a slog.Attr for a word index.
func WordIdx(n int) slog.Attr {
	return slog.Int(KeyWordIdx, n)
}

// Tag returns a slog.Attr for a checkpoint tag.
func Tag(tag string) slog.Attr {
	return slog.String(KeyTag, tag)
}

// Username returns a slog.Attr for the session username.
func Username(name string) slog.Attr {
	return slog.String(KeyUsername, name)
}

// ClientIP returns a slog.Attr for the client IP address.
func ClientIP(addr string) slog.Attr {
	return slog.String(KeyClientIP, addr)
}

// Endpoint returns a slog.Attr for a storage server endpoint.
func Endpoint(ep string) slog.Attr {
	return slog.String(KeyEndpoint, ep)
}

// DurationMs returns a slog.Attr for duration in milliseconds.
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Source returns a slog.Attr for a lookup source (cache, index).
func Source(src string) slog.Attr {
	return slog.String(KeySource, src)
}

// Evicted returns a slog.Attr for the number of cache entries evicted.
func Evicted(n int) slog.Attr {
	return slog.Int(KeyEvicted, n)
}
