package usecase

import "fmt"

// Stage names one step of a pipeline run.
type Stage string

const (
	StageScrape         Stage = "scrape"
	StageDedupe         Stage = "dedupe"
	StageScoreFilter    Stage = "score_filter"
	StagePersistArchive Stage = "persist_archive"
	StagePersistSeen    Stage = "persist_seen"
	StageIssues         Stage = "issues"
	StageDocuments      Stage = "documents"
	StageCatalog        Stage = "catalog"
	StageModelDocuments Stage = "model_documents"
	StageNotify         Stage = "notify"
)

// ErrorKind decides whether a stage failure aborts the run.
type ErrorKind int

const (
	// KindTransient is a network or rate-limit failure that survived its retries.
	KindTransient ErrorKind = iota
	// KindStorage is a failed durable write.
	KindStorage
	// KindFatal is a misconfiguration or other failure that ends the run.
	KindFatal
	// KindIsolated is contained to its stage; the run continues.
	KindIsolated
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindStorage:
		return "storage"
	case KindFatal:
		return "fatal"
	case KindIsolated:
		return "isolated"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Aborts reports whether the run stops on this kind of failure.
func (k ErrorKind) Aborts() bool {
	return k != KindIsolated
}

// StageError wraps a failure with the stage that produced it.
type StageError struct {
	Stage Stage
	Kind  ErrorKind
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
