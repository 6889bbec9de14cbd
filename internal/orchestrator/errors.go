package orchestrator

import (
	"errors"
	"fmt"
)

// Kind classifies a stage failure by the collaborator that caused it.
type Kind string

const (
	KindMediaIO       Kind = "media_io"
	KindTranscription Kind = "transcription"
	KindGeneration    Kind = "generation"
	KindExport        Kind = "export"
	KindCanceled      Kind = "canceled"
)

var (
	ErrMediaIO       = errors.New("media i/o failed")
	ErrTranscription = errors.New("transcription failed")
	ErrGeneration    = errors.New("guide generation failed")
	ErrExport        = errors.New("export failed")
)

var kindSentinels = map[Kind]error{
	KindMediaIO:       ErrMediaIO,
	KindTranscription: ErrTranscription,
	KindGeneration:    ErrGeneration,
	KindExport:        ErrExport,
}

// StageError is the single failure a pipeline run reports. errors.Is matches
// both the kind sentinel and the wrapped cause.
type StageError struct {
	Stage State
	Kind  Kind
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s during %s: %v", e.Kind, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func (e *StageError) Is(target error) bool {
	s, ok := kindSentinels[e.Kind]
	return ok && s == target
}
