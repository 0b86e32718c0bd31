package services

import (
	"context"
	"log/slog"
	"os"

	"github.com/stretchr/testify/mock"

	"github.com/manthysbr/viyaOS/internal/core/domain"
)

// MockGateway implements ports.ComputeGateway
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) ResolveContext(ctx context.Context, name string) (domain.ExecutionContextRef, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(domain.ExecutionContextRef), args.Error(1)
}
func (m *MockGateway) OpenSession(ctx context.Context, ref domain.ExecutionContextRef) (domain.Session, error) {
	args := m.Called(ctx, ref)
	return args.Get(0).(domain.Session), args.Error(1)
}
func (m *MockGateway) SubmitJob(ctx context.Context, sessionID domain.SessionID, code string) (domain.Job, error) {
	args := m.Called(ctx, sessionID, code)
	return args.Get(0).(domain.Job), args.Error(1)
}
func (m *MockGateway) FetchJob(ctx context.Context, sessionID domain.SessionID, jobID domain.JobID) (domain.Job, error) {
	args := m.Called(ctx, sessionID, jobID)
	return args.Get(0).(domain.Job), args.Error(1)
}
func (m *MockGateway) FetchLog(ctx context.Context, sessionID domain.SessionID, jobID domain.JobID) (string, error) {
	args := m.Called(ctx, sessionID, jobID)
	return args.String(0), args.Error(1)
}
func (m *MockGateway) FetchListing(ctx context.Context, sessionID domain.SessionID, jobID domain.JobID) ([]domain.ListingItem, error) {
	args := m.Called(ctx, sessionID, jobID)
	items, _ := args.Get(0).([]domain.ListingItem)
	return items, args.Error(1)
}
func (m *MockGateway) FetchTable(ctx context.Context, sessionID domain.SessionID, ref domain.TableRef) (domain.TableResult, error) {
	args := m.Called(ctx, sessionID, ref)
	return args.Get(0).(domain.TableResult), args.Error(1)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}

func stubJob(id, state string) domain.Job {
	return domain.Job{ID: domain.JobID(id), SessionID: "sess-1", State: domain.JobState(state)}
}
