package domain

import "errors"

// Sentinel errors used across layers. Transient and detector-internal
// failures are not modelled as sentinel errors — they are absorbed by
// the fallback chains in internal/detect and never surface past the
// arbiter. These are the ones that do cross a package boundary.
var (
	ErrNotFound          = errors.New("not found")
	ErrSessionNotActive  = errors.New("session is not active")
	ErrSessionTornDown   = errors.New("session has been torn down")
	ErrAlreadyExists     = errors.New("already exists")
	ErrExerciseComplete  = errors.New("exercise already complete")
	ErrUnknownNote       = errors.New("unknown note name")
	ErrNegativeTimestamp = errors.New("negative timestamp")
	ErrEmptyExercise     = errors.New("exercise has no groups")
	ErrModelAssetMissing = errors.New("model asset missing")
	ErrUnresolvableResample = errors.New("unresolvable resample ratio")
)
