// internal/service/scanner/scanner.go
package scanner

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"tainment-service/internal/domain/notification"
	"tainment-service/internal/domain/subscription"
	"tainment-service/internal/metrics"
	xerrors "tainment-service/internal/pkg/errors"
	"tainment-service/internal/pkg/lock"
	"tainment-service/internal/service/lifecycle"
	subsvc "tainment-service/internal/service/subscription"
)

type Sweep string

const (
	SweepNotice Sweep = "notice"
	SweepExpiry Sweep = "expiry"
)

// ParseSweep accepts "notice" or "expiry".
func ParseSweep(s string) (Sweep, error) {
	switch Sweep(s) {
	case SweepNotice, SweepExpiry:
		return Sweep(s), nil
	}
	return "", xerrors.Validation("unknown sweep; choose notice or expiry", "sweep", s)
}

type Config struct {
	NoticeInterval time.Duration
	ExpiryInterval time.Duration
	ReminderWindow time.Duration
	LockTTL        time.Duration
}

// Report summarizes one sweep.
type Report struct {
	Sweep     Sweep         `json:"sweep"`
	Skipped   bool          `json:"skipped"`
	Scanned   int           `json:"scanned"`
	Applied   int           `json:"applied"`
	InGrace   int           `json:"in_grace"`
	Stale     int           `json:"stale"`
	Failed    int           `json:"failed"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Scanner runs the periodic reconciliation sweeps. A failure on one account
// is logged and left for the next cycle; it never aborts the sweep.
type Scanner struct {
	store    subscription.Store
	subs     *subsvc.SubscriptionService
	notifier notification.Notifier
	locks    lock.Locker
	metrics  *metrics.Collector
	logger   *zap.Logger
	cfg      Config
}

func NewScanner(
	store subscription.Store,
	subs *subsvc.SubscriptionService,
	notifier notification.Notifier,
	locks lock.Locker,
	collector *metrics.Collector,
	cfg Config,
	logger *zap.Logger,
) *Scanner {
	if cfg.NoticeInterval <= 0 {
		cfg.NoticeInterval = 24 * time.Hour
	}
	if cfg.ExpiryInterval <= 0 {
		cfg.ExpiryInterval = 12 * time.Hour
	}
	if cfg.ReminderWindow <= 0 {
		cfg.ReminderWindow = subscription.GraceWindow
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	return &Scanner{
		store:    store,
		subs:     subs,
		notifier: notifier,
		locks:    locks,
		metrics:  collector,
		logger:   logger,
		cfg:      cfg,
	}
}

// Run sweeps once at start and then on each cadence until ctx is done. A
// sweep in progress finishes before Run returns.
func (s *Scanner) Run(ctx context.Context) error {
	s.logger.Info("scanner started",
		zap.Duration("notice_interval", s.cfg.NoticeInterval),
		zap.Duration("expiry_interval", s.cfg.ExpiryInterval),
	)

	s.runLogged(ctx, SweepExpiry)
	s.runLogged(ctx, SweepNotice)

	notice := time.NewTicker(s.cfg.NoticeInterval)
	defer notice.Stop()
	expiry := time.NewTicker(s.cfg.ExpiryInterval)
	defer expiry.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scanner stopped")
			return nil
		case <-notice.C:
			s.runLogged(ctx, SweepNotice)
		case <-expiry.C:
			s.runLogged(ctx, SweepExpiry)
		}
	}
}

func (s *Scanner) runLogged(ctx context.Context, sweep Sweep) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.RunSweep(ctx, sweep); err != nil {
		s.logger.Error("sweep failed", zap.String("sweep", string(sweep)), zap.Error(err))
	}
}

// RunSweep runs one sweep under its lock. When another holder has the lock
// the report is marked Skipped.
func (s *Scanner) RunSweep(ctx context.Context, sweep Sweep) (*Report, error) {
	release, ok, err := s.locks.TryAcquire(ctx, "sweep:"+string(sweep), s.cfg.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire %s sweep lock: %w", sweep, err)
	}
	if !ok {
		s.metrics.RecordSweep(string(sweep), "skipped", 0)
		s.logger.Info("sweep already running elsewhere", zap.String("sweep", string(sweep)))
		return &Report{Sweep: sweep, Skipped: true, StartedAt: s.subs.Now()}, nil
	}
	defer release()

	report := &Report{Sweep: sweep, StartedAt: s.subs.Now()}
	start := time.Now()

	switch sweep {
	case SweepNotice:
		err = s.notice(ctx, report)
	case SweepExpiry:
		err = s.expiry(ctx, report)
	default:
		err = xerrors.Validation("unknown sweep; choose notice or expiry", "sweep", sweep)
	}
	report.Duration = time.Since(start)

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	s.metrics.RecordSweep(string(sweep), outcome, report.Duration)
	if err != nil {
		return report, err
	}

	s.logger.Info("sweep completed",
		zap.String("sweep", string(sweep)),
		zap.Int("scanned", report.Scanned),
		zap.Int("applied", report.Applied),
		zap.Int("in_grace", report.InGrace),
		zap.Int("stale", report.Stale),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

// NoticeSweep queues an expiring-soon reminder for each paid record ending
// within the reminder window. The flag is set only after the notifier has
// accepted the event, so a failed send is retried next cycle.
func (s *Scanner) NoticeSweep(ctx context.Context) (*Report, error) {
	return s.RunSweep(ctx, SweepNotice)
}

// ExpirySweep classifies records in grace and downgrades those past it.
func (s *Scanner) ExpirySweep(ctx context.Context) (*Report, error) {
	return s.RunSweep(ctx, SweepExpiry)
}

func (s *Scanner) notice(ctx context.Context, r *Report) error {
	now := s.subs.Now()
	due, err := s.store.DueForReminder(ctx, now.Add(s.cfg.ReminderWindow))
	if err != nil {
		return err
	}

	for i := range due {
		if err := ctx.Err(); err != nil {
			return err
		}
		sub := &due[i]
		r.Scanned++

		ev := lifecycle.ExpiringSoon(sub, now)
		ev.ID = ulid.Make().String()
		if s.notifier == nil {
			s.fail(r, sub, "no notification sink configured", nil)
			continue
		}
		if err := s.notifier.Notify(ctx, ev); err != nil {
			s.fail(r, sub, "failed to queue expiry reminder", err)
			continue
		}
		marked, err := s.subs.MarkReminded(ctx, sub)
		if err != nil {
			s.fail(r, sub, "failed to mark reminder sent", err)
			continue
		}
		if !marked {
			// Extended or replaced after the scan; the next sweep sees the new window.
			r.Stale++
			s.metrics.RecordSweepAccount(string(SweepNotice), "stale")
			s.logger.Debug("subscription moved during notice sweep", zap.Int64("account_id", sub.AccountID))
			continue
		}
		r.Applied++
		s.metrics.RecordSweepAccount(string(SweepNotice), "applied")
	}
	return nil
}

func (s *Scanner) expiry(ctx context.Context, r *Report) error {
	now := s.subs.Now()

	grace, err := s.store.InGrace(ctx, now)
	if err != nil {
		return err
	}
	for _, sub := range grace {
		r.InGrace++
		s.metrics.RecordSweepAccount(string(SweepExpiry), "grace")
		s.logger.Debug("subscription in grace",
			zap.Int64("account_id", sub.AccountID),
			zap.String("tier", string(sub.Tier)),
			zap.Int("grace_days_left", subscription.DaysRemaining(&subscription.Subscription{EndAt: sub.GraceEndAt}, now)),
		)
	}

	expired, err := s.store.GraceExpired(ctx, now)
	if err != nil {
		return err
	}
	r.Scanned = len(grace) + len(expired)

	for i := range expired {
		if err := ctx.Err(); err != nil {
			return err
		}
		sub := &expired[i]
		applied, err := s.subs.ExpireGrace(ctx, sub.AccountID)
		if err != nil {
			s.fail(r, sub, "failed to expire subscription", err)
			continue
		}
		if !applied {
			s.metrics.RecordSweepAccount(string(SweepExpiry), "skipped")
			continue
		}
		r.Applied++
		s.metrics.RecordSweepAccount(string(SweepExpiry), "applied")
	}
	return nil
}

func (s *Scanner) fail(r *Report, sub *subscription.Subscription, msg string, err error) {
	r.Failed++
	s.metrics.RecordSweepAccount(string(r.Sweep), "failed")
	s.logger.Warn(msg,
		zap.String("sweep", string(r.Sweep)),
		zap.Int64("account_id", sub.AccountID),
		zap.Error(err),
	)
}
