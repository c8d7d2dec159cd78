package commands

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/elyphant/backend/internal/application/reconciliation"
)

// InitReconciliationCommands registers cleanup, verify-payment and check-order-status.
// Commands run as the system: no caller is attached, so ownership checks are skipped.
func InitReconciliationCommands(root *cobra.Command, open Opener) error {
	if open == nil {
		return errors.New("commands: opener is required")
	}
	root.AddCommand(newCleanupCmd(open), newVerifyPaymentCmd(open), newCheckOrderStatusCmd(open))
	return nil
}

func newCleanupCmd(open Opener) *cobra.Command {
	var (
		mode             string
		cancelDuplicates bool
	)
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Find orders sharing a Zinc order id and cancel all but the earliest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if mode != reconciliation.ModeReport && mode != reconciliation.ModeCleanup {
				return fmt.Errorf("--mode must be %q or %q", reconciliation.ModeReport, reconciliation.ModeCleanup)
			}
			svc, closeFn, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			report, err := svc.Cleanup.Run(cmd.Context(), reconciliation.CleanupRequest{
				Mode:             mode,
				CancelDuplicates: cancelDuplicates,
			})
			if err != nil {
				return fmt.Errorf("cleanup: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", reconciliation.ModeReport, "report or cleanup")
	cmd.Flags().BoolVar(&cancelDuplicates, "cancel-duplicates", false, "cancel duplicates (cleanup mode only)")
	return cmd
}

func newVerifyPaymentCmd(open Opener) *cobra.Command {
	var (
		sessionID       string
		paymentIntentID string
		retry           bool
	)
	cmd := &cobra.Command{
		Use:   "verify-payment",
		Short: "Ask Stripe for a payment's status and write it into the order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if sessionID == "" && paymentIntentID == "" {
				return errors.New("one of --session-id or --payment-intent-id is required")
			}
			svc, closeFn, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			verify := svc.Payments.VerifyPayment
			if retry {
				verify = svc.Payments.VerifyWithRetry
			}
			result, err := verify(cmd.Context(), reconciliation.VerifyRequest{
				SessionID:       sessionID,
				PaymentIntentID: paymentIntentID,
			})
			if err != nil {
				return fmt.Errorf("verify payment: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().StringVar(&sessionID, "session-id", "", "Stripe checkout session id (cs_...)")
	cmd.Flags().StringVar(&paymentIntentID, "payment-intent-id", "", "Stripe payment intent id (pi_...)")
	cmd.Flags().BoolVar(&retry, "retry", false, "retry transient failures after 0s, 5s and 15s")
	return cmd
}

// statusLine is one order's outcome in the check-order-status output
type statusLine struct {
	OrderID string                       `json:"order_id"`
	Result  *reconciliation.StatusResult `json:"result,omitempty"`
	Error   string                       `json:"error,omitempty"`
}

func newCheckOrderStatusCmd(open Opener) *cobra.Command {
	var (
		orderIDs    []string
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "check-order-status",
		Short: "Refresh the Zinc status of one or more orders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(orderIDs) == 0 {
				return errors.New("at least one --order-id is required")
			}
			if concurrency < 1 {
				return errors.New("--concurrency must be at least 1")
			}
			ids := make([]uuid.UUID, len(orderIDs))
			for i, raw := range orderIDs {
				id, err := uuid.Parse(raw)
				if err != nil {
					return fmt.Errorf("invalid --order-id %q: %w", raw, err)
				}
				ids[i] = id
			}

			svc, closeFn, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			lines, failed := checkAll(cmd.Context(), svc.Statuses, ids, concurrency)
			if err := writeJSON(cmd.OutOrStdout(), lines); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d status checks failed", failed, len(ids))
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&orderIDs, "order-id", nil, "order id to check; repeat or comma-separate for several")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "maximum concurrent Zinc requests")
	return cmd
}

// checkAll checks every order with at most limit requests in flight. One failure
// does not stop the others; results keep the input order.
func checkAll(ctx context.Context, checker StatusChecker, ids []uuid.UUID, limit int) ([]statusLine, int) {
	lines := make([]statusLine, len(ids))
	var (
		mu     sync.Mutex
		failed int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, id := range ids {
		g.Go(func() error {
			line := statusLine{OrderID: id.String()}
			result, err := checker.CheckOrderStatus(gctx, id, nil)
			if err != nil {
				line.Error = err.Error()
				mu.Lock()
				failed++
				mu.Unlock()
			} else {
				line.Result = result
			}
			lines[i] = line
			return nil
		})
	}
	_ = g.Wait()
	return lines, failed
}
