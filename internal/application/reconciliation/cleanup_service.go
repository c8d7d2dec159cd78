package reconciliation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/elyphant/backend/internal/domain/order"
	"github.com/elyphant/backend/internal/domain/security"
	"github.com/elyphant/backend/internal/domain/shared"
)

// Cleanup modes
const (
	ModeReport  = "report"
	ModeCleanup = "cleanup"
)

// Cleanup actions
const (
	ActionCancelled   = "cancelled"
	ActionWouldCancel = "would_cancel"
)

const cleanupLockName = "order-duplicate-cleanup"

// CleanupRequest selects what a cleanup run does
type CleanupRequest struct {
	Mode             string
	CancelDuplicates bool
	Caller           *Caller
}

// CleanupAction describes one duplicate handled by a run
type CleanupAction struct {
	OrderID     uuid.UUID `json:"order_id"`
	ZincOrderID string    `json:"zinc_order_id"`
	KeptOrderID uuid.UUID `json:"kept_order_id"`
	Action      string    `json:"action"`
}

// DuplicateGroupSummary lists a group of orders sharing one Zinc order id
type DuplicateGroupSummary struct {
	ZincOrderID  string      `json:"zinc_order_id"`
	KeptOrderID  uuid.UUID   `json:"kept_order_id"`
	DuplicateIDs []uuid.UUID `json:"duplicate_order_ids"`
}

// AtRiskOrder is an order stuck submitting to Zinc without a Zinc order id
type AtRiskOrder struct {
	OrderID     uuid.UUID `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	ZincStatus  string    `json:"zinc_status"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CleanupReport is the outcome of one run
type CleanupReport struct {
	RunID            uuid.UUID               `json:"run_id"`
	Mode             string                  `json:"mode"`
	CancelDuplicates bool                    `json:"cancel_duplicates"`
	DuplicateGroups  int                     `json:"duplicate_groups"`
	DuplicateOrders  int                     `json:"duplicate_orders"`
	Cancelled        int                     `json:"cancelled"`
	Groups           []DuplicateGroupSummary `json:"groups"`
	Actions          []CleanupAction         `json:"actions"`
	AtRisk           []AtRiskOrder           `json:"at_risk"`
	ArchiveKey       string                  `json:"archive_key,omitempty"`
	StartedAt        time.Time               `json:"started_at"`
	FinishedAt       time.Time               `json:"finished_at"`
}

// DuplicateCleanupService finds orders sharing a Zinc order id and cancels all but the earliest
type DuplicateCleanupService struct {
	orders       order.Repository
	securityLogs security.Repository
	lock         shared.RunLock
	reports      ReportStore
	reportPrefix string
	lockTTL      time.Duration
	staleAfter   time.Duration
	recorder     Recorder
	logger       *zap.Logger
	now          func() time.Time
}

// DuplicateCleanupServiceConfig contains configuration for DuplicateCleanupService
type DuplicateCleanupServiceConfig struct {
	Orders       order.Repository
	SecurityLogs security.Repository
	Lock         shared.RunLock
	Reports      ReportStore // optional
	ReportPrefix string
	LockTTL      time.Duration
	StaleAfter   time.Duration
	Recorder     Recorder // optional
	Logger       *zap.Logger
}

// NewDuplicateCleanupService creates a new DuplicateCleanupService
func NewDuplicateCleanupService(cfg DuplicateCleanupServiceConfig) *DuplicateCleanupService {
	s := &DuplicateCleanupService{
		orders:       cfg.Orders,
		securityLogs: cfg.SecurityLogs,
		lock:         cfg.Lock,
		reports:      cfg.Reports,
		reportPrefix: strings.TrimRight(cfg.ReportPrefix, "/"),
		lockTTL:      cfg.LockTTL,
		staleAfter:   cfg.StaleAfter,
		recorder:     cfg.Recorder,
		logger:       cfg.Logger,
		now:          time.Now,
	}
	if s.reportPrefix == "" {
		s.reportPrefix = "reports/duplicate-cleanup"
	}
	if s.lockTTL <= 0 {
		s.lockTTL = 10 * time.Minute
	}
	if s.staleAfter <= 0 {
		s.staleAfter = 30 * time.Minute
	}
	if s.recorder == nil {
		s.recorder = nopRecorder{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Run executes one cleanup run. Report mode and dry runs write nothing but the audit log.
// In cleanup mode with CancelDuplicates every extra is cancelled in a single transaction.
func (s *DuplicateCleanupService) Run(ctx context.Context, req CleanupRequest) (*CleanupReport, error) {
	if req.Mode != ModeReport && req.Mode != ModeCleanup {
		return nil, shared.NewValidationError(
			fmt.Sprintf("Invalid mode %q: must be %q or %q", req.Mode, ModeReport, ModeCleanup),
			map[string]any{"mode": req.Mode},
		)
	}

	release, err := s.lock.Acquire(ctx, cleanupLockName, s.lockTTL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rerr := release(context.WithoutCancel(ctx)); rerr != nil {
			s.logger.Warn("Failed to release cleanup lock", zap.Error(rerr))
		}
	}()

	report, err := s.run(ctx, req)
	if err != nil {
		s.recorder.RecordCleanupRun(ctx, req.Mode, 0, 0, err)
		s.logger.Error("Duplicate cleanup failed",
			zap.String("mode", req.Mode),
			zap.Bool("cancel_duplicates", req.CancelDuplicates),
			zap.Error(err))
		return nil, err
	}
	s.recorder.RecordCleanupRun(ctx, req.Mode, report.DuplicateGroups, report.Cancelled, nil)

	s.audit(ctx, req, report)

	if report.Mode == ModeCleanup && s.reports != nil {
		key := fmt.Sprintf("%s/%s/%s.json", s.reportPrefix, report.StartedAt.UTC().Format("2006-01-02"), report.RunID)
		if err := s.reports.PutJSON(ctx, key, report); err != nil {
			s.logger.Warn("Failed to archive cleanup report",
				zap.String("run_id", report.RunID.String()),
				zap.String("key", key),
				zap.Error(err))
		} else {
			report.ArchiveKey = key
		}
	}

	s.logger.Info("Duplicate cleanup finished",
		zap.String("run_id", report.RunID.String()),
		zap.String("mode", report.Mode),
		zap.Int("duplicate_groups", report.DuplicateGroups),
		zap.Int("duplicate_orders", report.DuplicateOrders),
		zap.Int("cancelled", report.Cancelled),
		zap.Int("at_risk", len(report.AtRisk)))

	return report, nil
}

func (s *DuplicateCleanupService) run(ctx context.Context, req CleanupRequest) (*CleanupReport, error) {
	report := &CleanupReport{
		RunID:            uuid.New(),
		Mode:             req.Mode,
		CancelDuplicates: req.CancelDuplicates,
		Groups:           []DuplicateGroupSummary{},
		Actions:          []CleanupAction{},
		AtRisk:           []AtRiskOrder{},
		StartedAt:        s.now(),
	}

	active, err := s.orders.FindActiveWithZincOrderID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load orders: %w", err)
	}

	groups := order.GroupDuplicates(active)
	report.DuplicateGroups = len(groups)
	report.DuplicateOrders = order.ExtraCount(groups)

	var cancellations []order.Cancellation
	zincByOrder := make(map[uuid.UUID]string)
	for _, g := range groups {
		summary := DuplicateGroupSummary{ZincOrderID: g.ZincOrderID, KeptOrderID: g.Kept.ID}
		for _, extra := range g.Extras {
			summary.DuplicateIDs = append(summary.DuplicateIDs, extra.ID)
			cancellations = append(cancellations, order.Cancellation{
				OrderID:     extra.ID,
				KeptOrderID: g.Kept.ID,
			})
			zincByOrder[extra.ID] = g.ZincOrderID
		}
		report.Groups = append(report.Groups, summary)
	}

	if req.Mode == ModeCleanup && len(cancellations) > 0 {
		if req.CancelDuplicates {
			changed, err := s.orders.CancelDuplicates(ctx, cancellations)
			if err != nil {
				return nil, fmt.Errorf("failed to cancel duplicates: %w", err)
			}
			keptBy := make(map[uuid.UUID]uuid.UUID, len(cancellations))
			for _, c := range cancellations {
				keptBy[c.OrderID] = c.KeptOrderID
			}
			for _, id := range changed {
				report.Actions = append(report.Actions, CleanupAction{
					OrderID:     id,
					ZincOrderID: zincByOrder[id],
					KeptOrderID: keptBy[id],
					Action:      ActionCancelled,
				})
			}
			report.Cancelled = len(changed)
		} else {
			for _, c := range cancellations {
				report.Actions = append(report.Actions, CleanupAction{
					OrderID:     c.OrderID,
					ZincOrderID: zincByOrder[c.OrderID],
					KeptOrderID: c.KeptOrderID,
					Action:      ActionWouldCancel,
				})
			}
		}
	}

	submitting, err := s.orders.FindSubmittingWithoutZincID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load submitting orders: %w", err)
	}
	for _, o := range order.StaleSubmitting(submitting, report.StartedAt, s.staleAfter) {
		report.AtRisk = append(report.AtRisk, AtRiskOrder{
			OrderID:     o.ID,
			OrderNumber: o.OrderNumber,
			ZincStatus:  o.ZincStatus,
			UpdatedAt:   o.UpdatedAt,
		})
	}

	report.FinishedAt = s.now()
	return report, nil
}

// audit writes the security log row. The run has already committed, so a failure is only logged.
func (s *DuplicateCleanupService) audit(ctx context.Context, req CleanupRequest, report *CleanupReport) {
	severity := security.SeverityInfo
	if report.Cancelled > 0 {
		severity = security.SeverityWarning
	}

	entry := security.NewLog(security.EventDuplicateCleanup, severity, req.Caller.userID(), map[string]any{
		"run_id":            report.RunID.String(),
		"mode":              report.Mode,
		"cancel_duplicates": report.CancelDuplicates,
		"duplicate_groups":  report.DuplicateGroups,
		"duplicate_orders":  report.DuplicateOrders,
		"cancelled":         report.Cancelled,
		"at_risk":           len(report.AtRisk),
	})
	if req.Caller != nil {
		entry.IPAddress = req.Caller.IPAddress
		entry.UserAgent = req.Caller.UserAgent
	}

	if err := s.securityLogs.Save(ctx, entry); err != nil {
		s.logger.Error("Failed to write cleanup security log",
			zap.String("run_id", report.RunID.String()),
			zap.Error(err))
	}
}
