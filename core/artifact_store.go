package core

// ArtifactStore keeps documents produced by runs, such as the final document
// and the transcript export. Artifacts are scoped by run id. Implementations
// must be safe for concurrent use.
type ArtifactStore interface {
	Save(runID, name string, data []byte) error
	Get(runID, name string) ([]byte, error)
	List(runID string) ([]string, error)
	Delete(runID, name string) error
}
