package ports

import (
	"context"

	"github.com/manthysbr/viyaOS/internal/core/domain"
)

// ComputeGateway abstracts the remote compute engine (SAS Viya Compute REST).
// Every method is one remote round trip, or a short fixed sequence of them.
// Reads are idempotent; OpenSession and SubmitJob are not and must never be
// retried blindly.
type ComputeGateway interface {
	// ResolveContext looks up a compute context by name.
	// Returns domain.ErrContextNotFound when the lookup has zero matches.
	ResolveContext(ctx context.Context, name string) (domain.ExecutionContextRef, error)

	// OpenSession creates a session inside a resolved context.
	OpenSession(ctx context.Context, ref domain.ExecutionContextRef) (domain.Session, error)

	// SubmitJob sends code to a session. Rejections wrap domain.ErrJobSubmission
	// and carry the raw remote payload.
	SubmitJob(ctx context.Context, sessionID domain.SessionID, code string) (domain.Job, error)

	// FetchJob reads the current state and condition code of a job.
	FetchJob(ctx context.Context, sessionID domain.SessionID, jobID domain.JobID) (domain.Job, error)

	// FetchLog returns the job log, lines joined by newlines. Empty is not an error.
	FetchLog(ctx context.Context, sessionID domain.SessionID, jobID domain.JobID) (string, error)

	// FetchListing returns the job's structured output items. None is not an error.
	FetchListing(ctx context.Context, sessionID domain.SessionID, jobID domain.JobID) ([]domain.ListingItem, error)

	// FetchTable reads column metadata then rows for a library table.
	// Returns domain.ErrTableNotFound when either read is rejected.
	FetchTable(ctx context.Context, sessionID domain.SessionID, ref domain.TableRef) (domain.TableResult, error)
}

// CredentialProvider supplies the bearer token and base URL for remote calls.
type CredentialProvider interface {
	Token(ctx context.Context) (string, error)
	ServerURL() string
}

// PromptKind is the coarse category a classifier assigns to a prompt.
type PromptKind string

const (
	PromptKindMath PromptKind = "math"
	PromptKindSAS  PromptKind = "sas"
)

// Classifier decides whether a natural-language prompt is plain arithmetic.
type Classifier interface {
	Classify(ctx context.Context, prompt string) (PromptKind, error)
}
