package align

import (
	"context"
	"errors"
	"fmt"

	"github.com/voxpage/voxpage/internal/audio"
	"github.com/voxpage/voxpage/internal/timestamps"
)

// SyncError means the post-mastering timestamps violate the model
// invariants. It is fatal for the job: rendering with a model that fails
// reconciliation would produce a silently-misaligned video.
type SyncError struct {
	Reason string
}

func (e *SyncError) Error() string {
	return "sync validation failed: " + e.Reason
}

// Reconcile guarantees the timestamp model used for rendering matches the
// exact audio that will be muxed. It always re-runs the aligner against the
// mastered asset with the same transcript; it never scales the raw model by
// a global ratio, because mastering can trim non-uniformly (leading silence,
// inter-sentence gaps) and a single ratio cannot express that.
func Reconcile(ctx context.Context, a *Aligner, mastered audio.Asset, transcript string) (*timestamps.Model, error) {
	if mastered.Stage != audio.StageMastered {
		return nil, &SyncError{Reason: fmt.Sprintf("asset stage is %s, want mastered", mastered.Stage)}
	}

	model, err := a.Align(ctx, mastered, transcript)
	if err != nil {
		var mismatch *MismatchError
		if errors.As(err, &mismatch) {
			return nil, &SyncError{Reason: mismatch.Error()}
		}
		return nil, fmt.Errorf("re-align mastered audio: %w", err)
	}

	if err := model.Validate(transcript); err != nil {
		var verr *timestamps.ValidationError
		if errors.As(err, &verr) {
			return nil, &SyncError{Reason: verr.Reason}
		}
		return nil, err
	}

	return model, nil
}
