package domain

// ListingItem is one structured output item (ODS result) produced by a job.
type ListingItem map[string]any

// Artifact names one independently fetched piece of a job's output.
type Artifact string

const (
	ArtifactLog     Artifact = "log"
	ArtifactListing Artifact = "listing"
	ArtifactTable   Artifact = "table"
)

// ResultsBundle is assembled fresh on every results call.
// A failed artifact leaves its field empty and records the reason in Errors.
type ResultsBundle struct {
	Log     string              `json:"log"`
	Listing []ListingItem       `json:"listing"`
	Table   *TableResult        `json:"table,omitempty"`
	Answer  *string             `json:"answer,omitempty"`
	Errors  map[Artifact]string `json:"artifact_errors,omitempty"`
}

// Failed reports whether the named artifact could not be fetched.
func (b ResultsBundle) Failed(a Artifact) bool {
	_, ok := b.Errors[a]
	return ok
}
