package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/manthysbr/viyaOS/internal/core/domain"
)

func TestResultAssembler_AllArtifacts(t *testing.T) {
	gw := new(MockGateway)
	ref := domain.TableRef{Library: "work", Name: "results"}
	gw.On("FetchLog", mock.Anything, domain.SessionID("sess-1"), domain.JobID("job-1")).
		Return("1    data work.results; x=5+3; put x=; output; run;\nx=8\nNOTE: done", nil)
	gw.On("FetchListing", mock.Anything, domain.SessionID("sess-1"), domain.JobID("job-1")).
		Return([]domain.ListingItem{{"name": "results"}}, nil)
	gw.On("FetchTable", mock.Anything, domain.SessionID("sess-1"), ref).
		Return(domain.TableResult{Columns: []string{"x"}, Rows: [][]any{{8.0}}}, nil)

	bundle := NewResultAssembler(testLogger(), gw).Assemble(context.Background(), "sess-1", "job-1", &ref)

	assert.Empty(t, bundle.Errors)
	require.NotNil(t, bundle.Answer)
	assert.Equal(t, "8", *bundle.Answer)
	assert.Len(t, bundle.Listing, 1)
	require.NotNil(t, bundle.Table)
	assert.Equal(t, []string{"x"}, bundle.Table.Columns)
}

func TestResultAssembler_PartialFailureIsolation(t *testing.T) {
	gw := new(MockGateway)
	gw.On("FetchLog", mock.Anything, mock.Anything, mock.Anything).
		Return("", &domain.GatewayError{Op: "fetch log", StatusCode: 500, Body: "boom"})
	gw.On("FetchListing", mock.Anything, mock.Anything, mock.Anything).
		Return([]domain.ListingItem{{"name": "means"}}, nil)

	bundle := NewResultAssembler(testLogger(), gw).Assemble(context.Background(), "sess-1", "job-1", nil)

	assert.True(t, bundle.Failed(domain.ArtifactLog))
	assert.False(t, bundle.Failed(domain.ArtifactListing))
	assert.Contains(t, bundle.Errors[domain.ArtifactLog], "boom")
	assert.Len(t, bundle.Listing, 1)
	assert.Nil(t, bundle.Answer)
	assert.Nil(t, bundle.Table)
	gw.AssertNotCalled(t, "FetchTable", mock.Anything, mock.Anything, mock.Anything)
}

func TestResultAssembler_EmptyOutputsAreNotErrors(t *testing.T) {
	gw := new(MockGateway)
	gw.On("FetchLog", mock.Anything, mock.Anything, mock.Anything).Return("", nil)
	gw.On("FetchListing", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)

	bundle := NewResultAssembler(testLogger(), gw).Assemble(context.Background(), "sess-1", "job-1", nil)

	assert.Empty(t, bundle.Errors)
	assert.NotNil(t, bundle.Listing)
	assert.Empty(t, bundle.Listing)
	assert.Nil(t, bundle.Answer)
}

func TestExtractAnswer(t *testing.T) {
	tests := []struct {
		name string
		log  string
		want *string
	}{
		{"printed value", "NOTE: x\nx=8\n", strPtr("8")},
		{"printed after source echo", "12   x=5+3; put x=;\nx=8", strPtr("8")},
		{"only source echo", "12   x=5+3;", strPtr("5+3")},
		{"spaces after equals", "x= 3.5", strPtr("3.5")},
		{"no match", "NOTE: The data set WORK.A has 1 observations.", nil},
		{"other variable", "max=10", nil},
		{"empty", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractAnswer(tt.log)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.want, *got)
		})
	}
}

func strPtr(s string) *string { return &s }
