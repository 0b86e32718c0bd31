package services

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/manthysbr/viyaOS/internal/core/domain"
	"github.com/manthysbr/viyaOS/internal/core/ports"
)

// answerPattern matches the well-known output variable written by generated
// snippets ("put x=;" prints "x=8").
var answerPattern = regexp.MustCompile(`\bx=\s*([\w.+-]+)`)

// ResultAssembler gathers the artifacts of a finished job. Each artifact is
// fetched on its own; one failing does not hide the others.
type ResultAssembler struct {
	logger  *slog.Logger
	gateway ports.ComputeGateway
}

func NewResultAssembler(logger *slog.Logger, gateway ports.ComputeGateway) *ResultAssembler {
	return &ResultAssembler{logger: logger, gateway: gateway}
}

// Assemble fetches log, listing and, when ref is non-nil, table data.
// Failures are recorded per artifact in bundle.Errors.
func (a *ResultAssembler) Assemble(ctx context.Context, sessionID domain.SessionID, jobID domain.JobID, ref *domain.TableRef) domain.ResultsBundle {
	bundle := domain.ResultsBundle{Listing: []domain.ListingItem{}}
	fail := func(artifact domain.Artifact, err error) {
		if bundle.Errors == nil {
			bundle.Errors = map[domain.Artifact]string{}
		}
		bundle.Errors[artifact] = domain.ErrorTag(err) + ": " + domain.RemoteMessage(err)
		a.logger.Warn("artifact fetch failed", "job_id", jobID, "artifact", artifact, "error", err)
	}

	if log, err := a.gateway.FetchLog(ctx, sessionID, jobID); err != nil {
		fail(domain.ArtifactLog, err)
	} else {
		bundle.Log = log
		bundle.Answer = ExtractAnswer(log)
	}

	if listing, err := a.gateway.FetchListing(ctx, sessionID, jobID); err != nil {
		fail(domain.ArtifactListing, err)
	} else if listing != nil {
		bundle.Listing = listing
	}

	if ref != nil {
		if table, err := a.gateway.FetchTable(ctx, sessionID, *ref); err != nil {
			fail(domain.ArtifactTable, err)
		} else {
			bundle.Table = &table
		}
	}

	return bundle
}

// ExtractAnswer returns the value printed for the output variable, or nil.
// Lines echoing submitted source (they carry ';') are only used when no
// printed value exists.
func ExtractAnswer(log string) *string {
	var fallback *string
	for _, line := range strings.Split(log, "\n") {
		m := answerPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		v := m[1]
		if !strings.Contains(line, ";") {
			return &v
		}
		if fallback == nil {
			fallback = &v
		}
	}
	return fallback
}
