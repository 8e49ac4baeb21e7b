package core

// Status is the numeric result code delivered with every callback invocation
// that crosses the bridge. Zero means success; nonzero values identify the
// failure class. The set mirrors the engine's generation error taxonomy and
// is closed: hosts may switch exhaustively over it.
type Status int

// Callback status codes.
const (
	StatusOK                          Status = 0
	StatusExceededContextWindowSize   Status = 1
	StatusAssetsUnavailable           Status = 2
	StatusGuardrailViolation          Status = 3
	StatusUnsupportedGuide            Status = 4
	StatusUnsupportedLanguageOrLocale Status = 5
	StatusDecodingFailure             Status = 6
	StatusRateLimited                 Status = 7
	StatusConcurrentRequests          Status = 8
	StatusRefusal                     Status = 9
	StatusInvalidSchema               Status = 10
	// StatusCancelled is reported when a task is cancelled before its
	// terminal delivery. Cancelled tasks always fire their callback with
	// this status; they are never silently dropped.
	StatusCancelled Status = 11
	StatusUnknown   Status = 255
)

// OK reports whether s is the success status.
func (s Status) OK() bool { return s == StatusOK }

// String returns the symbolic name of the status code.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusExceededContextWindowSize:
		return "exceeded_context_window_size"
	case StatusAssetsUnavailable:
		return "assets_unavailable"
	case StatusGuardrailViolation:
		return "guardrail_violation"
	case StatusUnsupportedGuide:
		return "unsupported_guide"
	case StatusUnsupportedLanguageOrLocale:
		return "unsupported_language_or_locale"
	case StatusDecodingFailure:
		return "decoding_failure"
	case StatusRateLimited:
		return "rate_limited"
	case StatusConcurrentRequests:
		return "concurrent_requests"
	case StatusRefusal:
		return "refusal"
	case StatusInvalidSchema:
		return "invalid_schema"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}
