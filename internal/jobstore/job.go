package jobstore

import "time"

// Status is the job lifecycle state. Completed and failed are terminal:
// once reached, further transitions are ignored.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status absorbs further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Phase is one ordered stage of the pipeline.
type Phase string

const (
	PhaseExtract      Phase = "extract"
	PhaseSynthesize   Phase = "synthesize"
	PhaseAlign        Phase = "align"
	PhaseMaster       Phase = "master"
	PhaseReconcile    Phase = "reconcile"
	PhaseRender       Phase = "render"
	PhaseMux          Phase = "mux"
	PhaseSummarize    Phase = "summarize"
	PhaseSummaryVideo Phase = "summary_video"
)

// ArtifactKind names a retrievable job output.
type ArtifactKind string

const (
	ArtifactVideo        ArtifactKind = "video"
	ArtifactSummaryText  ArtifactKind = "summary_text"
	ArtifactSummaryVideo ArtifactKind = "summary_video"
)

// Job is the registry record for one pipeline execution. Only the owning
// pipeline goroutine writes a job after creation; API readers see whatever
// the last committed update was.
type Job struct {
	ID        string            `json:"id"`
	Status    Status            `json:"status"`
	Phase     Phase             `json:"phase,omitempty"`
	Progress  int               `json:"progress_percent"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Artifact returns the recorded path for a produced artifact, if any.
func (j *Job) Artifact(kind ArtifactKind) (string, bool) {
	p, ok := j.Metadata[string(kind)]
	return p, ok
}
