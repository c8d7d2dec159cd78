package reconciliation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/elyphant/backend/internal/domain/order"
	"github.com/elyphant/backend/internal/domain/security"
	"github.com/elyphant/backend/internal/domain/shared"
)

var baseTime = time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)

func zincOrder(t *testing.T, zincID string, created time.Time) *order.Order {
	t.Helper()
	o, err := order.NewOrder(uuid.New(), "ORD-"+uuid.NewString()[:8], decimal.NewFromInt(25), "usd")
	require.NoError(t, err)
	o.ZincOrderID = zincID
	o.ZincStatus = order.ZincStatusPlaced
	o.CreatedAt = created
	o.UpdatedAt = created
	return o
}

type cleanupFixture struct {
	orders  *MockOrderRepository
	logs    *MockSecurityLogRepository
	reports *MockReportStore
	lock    *fakeLock
	rec     *recordingRecorder
	svc     *DuplicateCleanupService
}

func newCleanupFixture(withReports bool) *cleanupFixture {
	f := &cleanupFixture{
		orders: new(MockOrderRepository),
		logs:   new(MockSecurityLogRepository),
		lock:   &fakeLock{},
		rec:    &recordingRecorder{},
	}
	cfg := DuplicateCleanupServiceConfig{
		Orders:       f.orders,
		SecurityLogs: f.logs,
		Lock:         f.lock,
		StaleAfter:   30 * time.Minute,
		Recorder:     f.rec,
		Logger:       zap.NewNop(),
	}
	if withReports {
		f.reports = new(MockReportStore)
		cfg.Reports = f.reports
	}
	f.svc = NewDuplicateCleanupService(cfg)
	f.svc.now = func() time.Time { return baseTime.Add(2 * time.Hour) }
	return f
}

func TestDuplicateCleanupService_InvalidMode(t *testing.T) {
	f := newCleanupFixture(false)

	report, err := f.svc.Run(context.Background(), CleanupRequest{Mode: "purge"})

	assert.Nil(t, report)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
	assert.Contains(t, err.Error(), "purge")
	f.orders.AssertNotCalled(t, "FindActiveWithZincOrderID", mock.Anything)
}

func TestDuplicateCleanupService_ReportMode(t *testing.T) {
	f := newCleanupFixture(true)

	first := zincOrder(t, "z-1", baseTime)
	second := zincOrder(t, "z-1", baseTime.Add(time.Minute))
	third := zincOrder(t, "z-1", baseTime.Add(2*time.Minute))
	single := zincOrder(t, "z-2", baseTime)

	f.orders.On("FindActiveWithZincOrderID", mock.Anything).Return([]*order.Order{third, single, second, first}, nil)
	f.orders.On("FindSubmittingWithoutZincID", mock.Anything).Return([]*order.Order{}, nil)
	f.logs.On("Save", mock.Anything, mock.MatchedBy(func(l *security.Log) bool {
		return l.EventType == security.EventDuplicateCleanup && l.Details["mode"] == ModeReport
	})).Return(nil)

	report, err := f.svc.Run(context.Background(), CleanupRequest{Mode: ModeReport, CancelDuplicates: true})
	require.NoError(t, err)

	assert.Equal(t, 1, report.DuplicateGroups)
	assert.Equal(t, 2, report.DuplicateOrders)
	assert.Equal(t, 0, report.Cancelled)
	assert.Empty(t, report.Actions)
	require.Len(t, report.Groups, 1)
	assert.Equal(t, first.ID, report.Groups[0].KeptOrderID)
	assert.Equal(t, []uuid.UUID{second.ID, third.ID}, report.Groups[0].DuplicateIDs)
	assert.Empty(t, report.ArchiveKey)

	f.orders.AssertNotCalled(t, "CancelDuplicates", mock.Anything, mock.Anything)
	f.reports.AssertNotCalled(t, "PutJSON", mock.Anything, mock.Anything, mock.Anything)
	f.logs.AssertExpectations(t)
	assert.Equal(t, 1, f.lock.releases)
}

func TestDuplicateCleanupService_CleanupCancelsExtras(t *testing.T) {
	f := newCleanupFixture(true)

	kept := zincOrder(t, "z-1", baseTime)
	extra := zincOrder(t, "z-1", baseTime.Add(time.Second))

	f.orders.On("FindActiveWithZincOrderID", mock.Anything).Return([]*order.Order{extra, kept}, nil)
	f.orders.On("FindSubmittingWithoutZincID", mock.Anything).Return([]*order.Order{}, nil)
	f.orders.On("CancelDuplicates", mock.Anything, []order.Cancellation{{
		OrderID:     extra.ID,
		KeptOrderID: kept.ID,
	}}).Return([]uuid.UUID{extra.ID}, nil)
	f.logs.On("Save", mock.Anything, mock.MatchedBy(func(l *security.Log) bool {
		return l.Severity == security.SeverityWarning && l.Details["cancelled"] == 1
	})).Return(nil)
	f.reports.On("PutJSON", mock.Anything, mock.MatchedBy(func(key string) bool {
		return strings.HasPrefix(key, "reports/duplicate-cleanup/2026-01-02/")
	}), mock.AnythingOfType("*reconciliation.CleanupReport")).Return(nil)

	report, err := f.svc.Run(context.Background(), CleanupRequest{Mode: ModeCleanup, CancelDuplicates: true})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Cancelled)
	require.Len(t, report.Actions, 1)
	assert.Equal(t, CleanupAction{
		OrderID:     extra.ID,
		ZincOrderID: "z-1",
		KeptOrderID: kept.ID,
		Action:      ActionCancelled,
	}, report.Actions[0])
	assert.Equal(t, "reports/duplicate-cleanup/2026-01-02/"+report.RunID.String()+".json", report.ArchiveKey)

	f.orders.AssertExpectations(t)
	f.reports.AssertExpectations(t)
	assert.Equal(t, 1, f.rec.cleanupRuns)
}

func TestDuplicateCleanupService_DryRunWritesNothing(t *testing.T) {
	f := newCleanupFixture(false)

	kept := zincOrder(t, "z-9", baseTime)
	extra := zincOrder(t, "z-9", baseTime.Add(time.Hour))

	f.orders.On("FindActiveWithZincOrderID", mock.Anything).Return([]*order.Order{kept, extra}, nil)
	f.orders.On("FindSubmittingWithoutZincID", mock.Anything).Return([]*order.Order{}, nil)
	f.logs.On("Save", mock.Anything, mock.Anything).Return(nil)

	report, err := f.svc.Run(context.Background(), CleanupRequest{Mode: ModeCleanup, CancelDuplicates: false})
	require.NoError(t, err)

	assert.Equal(t, 0, report.Cancelled)
	require.Len(t, report.Actions, 1)
	assert.Equal(t, ActionWouldCancel, report.Actions[0].Action)
	assert.Equal(t, extra.ID, report.Actions[0].OrderID)
	f.orders.AssertNotCalled(t, "CancelDuplicates", mock.Anything, mock.Anything)
}

func TestDuplicateCleanupService_SecondRunFindsNothing(t *testing.T) {
	f := newCleanupFixture(false)

	kept := zincOrder(t, "z-1", baseTime)
	extra := zincOrder(t, "z-1", baseTime.Add(time.Minute))

	// the repository only returns active orders, so the cancelled extra drops out
	f.orders.On("FindActiveWithZincOrderID", mock.Anything).Return([]*order.Order{kept, extra}, nil).Once()
	f.orders.On("FindActiveWithZincOrderID", mock.Anything).Return([]*order.Order{kept}, nil).Once()
	f.orders.On("FindSubmittingWithoutZincID", mock.Anything).Return([]*order.Order{}, nil)
	f.orders.On("CancelDuplicates", mock.Anything, mock.Anything).Return([]uuid.UUID{extra.ID}, nil).Once()
	f.logs.On("Save", mock.Anything, mock.Anything).Return(nil)

	first, err := f.svc.Run(context.Background(), CleanupRequest{Mode: ModeCleanup, CancelDuplicates: true})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Cancelled)

	second, err := f.svc.Run(context.Background(), CleanupRequest{Mode: ModeCleanup, CancelDuplicates: true})
	require.NoError(t, err)
	assert.Equal(t, 0, second.DuplicateGroups)
	assert.Equal(t, 0, second.Cancelled)
	assert.Empty(t, second.Actions)
	f.orders.AssertNumberOfCalls(t, "CancelDuplicates", 1)
}

func TestDuplicateCleanupService_CancelFailureAborts(t *testing.T) {
	f := newCleanupFixture(true)

	kept := zincOrder(t, "z-1", baseTime)
	extra := zincOrder(t, "z-1", baseTime.Add(time.Minute))

	f.orders.On("FindActiveWithZincOrderID", mock.Anything).Return([]*order.Order{kept, extra}, nil)
	f.orders.On("CancelDuplicates", mock.Anything, mock.Anything).Return(nil, errors.New("deadlock detected"))

	report, err := f.svc.Run(context.Background(), CleanupRequest{Mode: ModeCleanup, CancelDuplicates: true})

	assert.Nil(t, report)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deadlock detected")
	f.logs.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	f.reports.AssertNotCalled(t, "PutJSON", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, 1, f.lock.releases)
}

func TestDuplicateCleanupService_ConcurrentRunConflicts(t *testing.T) {
	f := newCleanupFixture(false)

	release, err := f.lock.Acquire(context.Background(), cleanupLockName, time.Minute)
	require.NoError(t, err)
	defer func() { _ = release(context.Background()) }()

	_, err = f.svc.Run(context.Background(), CleanupRequest{Mode: ModeReport})
	assert.ErrorIs(t, err, shared.ErrConflict)
	f.orders.AssertNotCalled(t, "FindActiveWithZincOrderID", mock.Anything)
}

func TestDuplicateCleanupService_ListsStaleAtRiskOrders(t *testing.T) {
	f := newCleanupFixture(false)

	stale := zincOrder(t, "", baseTime)
	stale.ZincStatus = order.ZincStatusSubmitting
	fresh := zincOrder(t, "", baseTime.Add(110*time.Minute))
	fresh.ZincStatus = order.ZincStatusSubmitting

	f.orders.On("FindActiveWithZincOrderID", mock.Anything).Return([]*order.Order{}, nil)
	f.orders.On("FindSubmittingWithoutZincID", mock.Anything).Return([]*order.Order{stale, fresh}, nil)
	f.logs.On("Save", mock.Anything, mock.Anything).Return(nil)

	report, err := f.svc.Run(context.Background(), CleanupRequest{Mode: ModeReport})
	require.NoError(t, err)

	require.Len(t, report.AtRisk, 1)
	assert.Equal(t, stale.ID, report.AtRisk[0].OrderID)
	assert.Equal(t, order.ZincStatusSubmitting, report.AtRisk[0].ZincStatus)
	f.orders.AssertNotCalled(t, "UpdateFulfillment", mock.Anything, mock.Anything)
}

func TestDuplicateCleanupService_ArchiveFailureDoesNotFailRun(t *testing.T) {
	f := newCleanupFixture(true)

	f.orders.On("FindActiveWithZincOrderID", mock.Anything).Return([]*order.Order{}, nil)
	f.orders.On("FindSubmittingWithoutZincID", mock.Anything).Return([]*order.Order{}, nil)
	f.logs.On("Save", mock.Anything, mock.Anything).Return(errors.New("log table missing"))
	f.reports.On("PutJSON", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("bucket unreachable"))

	report, err := f.svc.Run(context.Background(), CleanupRequest{Mode: ModeCleanup, CancelDuplicates: true})
	require.NoError(t, err)
	assert.Empty(t, report.ArchiveKey)
	assert.Equal(t, 0, report.DuplicateGroups)
}

func TestDuplicateCleanupService_AuditCarriesCaller(t *testing.T) {
	f := newCleanupFixture(false)
	admin := uuid.New()

	f.orders.On("FindActiveWithZincOrderID", mock.Anything).Return([]*order.Order{}, nil)
	f.orders.On("FindSubmittingWithoutZincID", mock.Anything).Return([]*order.Order{}, nil)
	f.logs.On("Save", mock.Anything, mock.MatchedBy(func(l *security.Log) bool {
		return l.UserID != nil && *l.UserID == admin && l.IPAddress == "10.0.0.1" && l.UserAgent == "curl/8"
	})).Return(nil)

	_, err := f.svc.Run(context.Background(), CleanupRequest{
		Mode:   ModeReport,
		Caller: &Caller{UserID: admin, IsAdmin: true, IPAddress: "10.0.0.1", UserAgent: "curl/8"},
	})
	require.NoError(t, err)
	f.logs.AssertExpectations(t)
}
