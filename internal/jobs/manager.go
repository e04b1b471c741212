package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/example/orderledger/internal/store"
)

// DefaultDigestSchedule runs the manual refund digest every morning at 09:00.
const DefaultDigestSchedule = "0 0 9 * * *"

// PayoutSource lists MANUAL refunds still waiting on an operator.
type PayoutSource interface {
	PendingPayouts(ctx context.Context) ([]store.PendingPayout, error)
}

// Reporter delivers a digest to operators.
type Reporter interface {
	SendToAdmin(ctx context.Context, text string) error
}

// Manager owns scheduled jobs. Jobs only report; they never change order state.
type Manager struct {
	cron     *cron.Cron
	payouts  PayoutSource
	reporter Reporter
	logger   *zap.Logger
	schedule string
}

// NewManager creates a cron manager with seconds precision.
func NewManager(payouts PayoutSource, reporter Reporter, logger *zap.Logger, schedule string) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(schedule) == "" {
		schedule = DefaultDigestSchedule
	}
	return &Manager{
		cron:     cron.New(cron.WithSeconds()),
		payouts:  payouts,
		reporter: reporter,
		logger:   logger,
		schedule: schedule,
	}
}

// Start registers every job and starts the scheduler.
func (m *Manager) Start() error {
	if _, err := m.cron.AddFunc(m.schedule, func() {
		m.logJobStart("manual_refund_digest")
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := m.RunManualRefundDigest(ctx); err != nil {
			m.logger.Error("manual refund digest failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("jobs: schedule manual refund digest: %w", err)
	}

	m.cron.Start()
	m.logger.Info("cron jobs started", zap.String("manual_refund_digest", m.schedule))
	return nil
}

// Stop waits for running jobs to finish.
func (m *Manager) Stop() {
	ctx := m.cron.Stop()
	<-ctx.Done()
	m.logger.Info("cron jobs stopped")
}

// RunManualRefundDigest reports MANUAL refunds and whether payout details have been supplied.
func (m *Manager) RunManualRefundDigest(ctx context.Context) error {
	payouts, err := m.payouts.PendingPayouts(ctx)
	if err != nil {
		return err
	}
	if len(payouts) == 0 {
		m.logger.Info("no pending manual refunds")
		return nil
	}

	message := FormatDigest(payouts)
	m.logger.Info("pending manual refunds", zap.Int("count", len(payouts)))
	if m.reporter == nil {
		return nil
	}
	return m.reporter.SendToAdmin(ctx, message)
}

// FormatDigest renders pending payouts as a Telegram HTML message.
func FormatDigest(payouts []store.PendingPayout) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("<b>💸 PENDING MANUAL REFUNDS: %d</b>\n", len(payouts)))
	for i, p := range payouts {
		status := "awaiting payout details"
		if p.Detail != nil {
			if p.Detail.UPIID != "" {
				status = "UPI " + p.Detail.UPIID
			} else {
				status = fmt.Sprintf("%s %s", p.Detail.BankName, p.Detail.IFSC)
			}
		}
		b.WriteString(fmt.Sprintf("%d. %s %s (%s) since %s: %s\n",
			i+1,
			p.Refund.OrderID,
			p.Refund.Amount.StringFixed(2),
			p.Refund.Scenario,
			p.Refund.CreatedAt.Format("2006-01-02"),
			status,
		))
	}
	return strings.TrimSpace(b.String())
}

func (m *Manager) logJobStart(name string) {
	m.logger.Info("cron job started", zap.String("job", name))
}
