package domain

import "errors"

// Error taxonomy shared by every stage. The orchestrator classifies stage
// errors against these sentinels: transient ones are retried with backoff,
// fatal ones terminate the unit of work (or a single language/style).
var (
	// ErrNotFound covers deleted or private videos and missing rows. Fatal.
	ErrNotFound = errors.New("not found")
	// ErrRateLimited is returned when an upstream throttles us. Retryable.
	ErrRateLimited = errors.New("rate limited")
	// ErrPartialDownload means a media artifact failed integrity checks and
	// must be re-downloaded from scratch. Retryable.
	ErrPartialDownload = errors.New("partial download")
	// ErrUnsupportedLanguage is fatal for the requested language only.
	ErrUnsupportedLanguage = errors.New("unsupported language")
	// ErrTranscriptionTimeout means the speech-to-text job did not finish in
	// time. Retryable.
	ErrTranscriptionTimeout = errors.New("transcription timeout")
	// ErrLowConfidence flags a stored transcript of doubtful quality.
	// Non-fatal; downstream may quality-gate on it.
	ErrLowConfidence = errors.New("low confidence transcript")
	// ErrGenerationQuality means generated output failed validation.
	// Retryable with adjusted parameters, bounded attempts.
	ErrGenerationQuality = errors.New("generation quality below threshold")
	// ErrServiceUnavailable covers transient upstream outages. Retryable.
	ErrServiceUnavailable = errors.New("service unavailable")
	// ErrIntegrity signals inconsistent references between rows. Fatal and
	// loud, never silently repaired.
	ErrIntegrity = errors.New("referential integrity violation")
	// ErrAlreadyExists is returned by the store on uniqueness conflicts.
	ErrAlreadyExists = errors.New("already exists")
)

// Retryable reports whether an error is transient and worth retrying.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrRateLimited),
		errors.Is(err, ErrTranscriptionTimeout),
		errors.Is(err, ErrPartialDownload),
		errors.Is(err, ErrServiceUnavailable):
		return true
	}
	return false
}

// Fatal reports whether an error must terminate the unit of work without
// retry.
func Fatal(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrUnsupportedLanguage),
		errors.Is(err, ErrIntegrity):
		return true
	}
	return false
}
