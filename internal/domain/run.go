package domain

import "time"

// RunState is the pipeline position of one unit of work.
type RunState string

const (
	StatePending     RunState = "pending"
	StateAcquired    RunState = "acquired"
	StateTranscribed RunState = "transcribed"
	StateAnalyzed    RunState = "analyzed"
	StateGenerating  RunState = "generating"
	StateComplete    RunState = "complete"
	StateFailed      RunState = "failed"
)

// Stage names the pipeline phase an error originated from.
type Stage string

const (
	StageAcquire    Stage = "acquire"
	StageTranscribe Stage = "transcribe"
	StageAnalyze    Stage = "analyze"
	StageGenerate   Stage = "generate"
)

// StyleStatus is the terminal outcome of one style's generation attempt.
type StyleStatus string

const (
	StylePending StyleStatus = "pending"
	StyleDone    StyleStatus = "done"
	StyleFailed  StyleStatus = "failed"
)

// StyleResult records per-style outcome inside a run.
type StyleResult struct {
	Status    StyleStatus `json:"status"`
	ArticleID string      `json:"article_id,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// Run is the persisted state machine record for one (video, style set)
// unit of work. The orchestrator advances State only after the stage's
// output row is durably stored, which is what makes restarts resumable.
type Run struct {
	ID           string
	VideoID      string
	TranscriptID string
	Language     string
	State        RunState
	FailedStage  Stage
	Styles       []Style
	StyleResults map[Style]StyleResult
	LastError    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Terminal reports whether the run reached an end state.
func (r Run) Terminal() bool {
	return r.State == StateComplete || r.State == StateFailed
}
