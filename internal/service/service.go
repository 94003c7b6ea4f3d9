// Package service implements the ledger operations on top of the
// workbook. Every mutation reads the sheets it needs, appends to one
// sheet, then recomputes the main table and takes a backup. Failures of
// those two follow-up steps are reported as warnings, never as the
// operation's error.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"gym-ledger-bot/internal/backup"
	"gym-ledger-bot/internal/ledger"
	"gym-ledger-bot/internal/metrics"
	"gym-ledger-bot/internal/model"
	"gym-ledger-bot/internal/pkg/lock"
	"gym-ledger-bot/internal/repository"
	"gym-ledger-bot/internal/sheet"
)

// Service-level errors.
var (
	ErrWrongPassword = errors.New("wrong summary password")
	ErrSummaryLocked = errors.New("summary password is not configured")
	// ErrStalePreview means the balance changed between a refund preview
	// and its confirmation.
	ErrStalePreview = errors.New("balance changed since the preview, start over")
)

const defaultLockTimeout = 30 * time.Second

// Options configures a LedgerService.
type Options struct {
	Store        sheet.Store
	Sheets       repository.Names
	Coaches      *repository.CoachRepository
	Menu         *repository.MenuRepository
	Backups      *backup.Manager // nil disables automatic backups
	BackupPrefix string
	Lock         *lock.KeyedLock
	LockKey      string
	LockTimeout  time.Duration
	Metrics      *metrics.LedgerMetrics
	// SummaryPasswordHash is a bcrypt hash gating the summary view.
	SummaryPasswordHash string
	Location            *time.Location
	Now                 func() time.Time
}

// LedgerService runs the ledger operations.
type LedgerService struct {
	store        sheet.Store
	events       *repository.EventRepository
	members      *repository.MemberRepository
	coaches      *repository.CoachRepository
	menu         *repository.MenuRepository
	mainTable    *repository.MainTableRepository
	backups      *backup.Manager
	backupPrefix string
	lock         *lock.KeyedLock
	lockKey      string
	lockTimeout  time.Duration
	metrics      *metrics.LedgerMetrics
	summaryHash  []byte
	loc          *time.Location
	now          func() time.Time
}

// NewLedgerService creates a LedgerService.
func NewLedgerService(opts Options) *LedgerService {
	s := &LedgerService{
		store:        opts.Store,
		events:       repository.NewEventRepository(opts.Store, opts.Sheets.Events),
		members:      repository.NewMemberRepository(opts.Store, opts.Sheets.Members),
		coaches:      opts.Coaches,
		menu:         opts.Menu,
		mainTable:    repository.NewMainTableRepository(opts.Store, opts.Sheets.Main),
		backups:      opts.Backups,
		backupPrefix: opts.BackupPrefix,
		lock:         opts.Lock,
		lockKey:      opts.LockKey,
		lockTimeout:  opts.LockTimeout,
		metrics:      opts.Metrics,
		summaryHash:  []byte(opts.SummaryPasswordHash),
		loc:          opts.Location,
		now:          opts.Now,
	}
	if s.coaches == nil {
		s.coaches = repository.NewCoachRepository(opts.Store, opts.Sheets.Coaches, nil)
	}
	if s.menu == nil {
		s.menu = repository.NewMenuRepository(opts.Store, opts.Sheets.Menu, nil)
	}
	if s.lock == nil {
		s.lock = lock.New()
	}
	if s.metrics == nil {
		s.metrics = metrics.NewLedgerMetrics(prometheus.NewRegistry())
	}
	if s.lockTimeout <= 0 {
		s.lockTimeout = defaultLockTimeout
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.backupPrefix == "" {
		s.backupPrefix = "members"
	}
	return s
}

// Result is the outcome of a mutation.
type Result struct {
	OpID     string
	Events   []model.Event
	Member   *model.Member
	Warnings []error
}

// clock returns the current time in the ledger's time zone.
func (s *LedgerService) clock() time.Time {
	return s.now().In(s.loc)
}

// Now returns the current time in the ledger's time zone.
func (s *LedgerService) Now() time.Time {
	return s.clock()
}

// mutate runs a write operation under the workbook lock, then refreshes
// the main table and takes a backup.
func (s *LedgerService) mutate(ctx context.Context, op string, fn func(ctx context.Context) (Result, error)) (Result, error) {
	opID := uuid.NewString()
	logger := log.With().Str("op", op).Str("op_id", opID).Logger()
	ctx = logger.WithContext(ctx)
	start := time.Now()

	var res Result
	err := s.lock.WithLockContext(ctx, s.lockKey, s.lockTimeout, func() error {
		var err error
		res, err = fn(ctx)
		if err != nil {
			return err
		}
		res.Warnings = append(res.Warnings, s.afterWrite(ctx)...)
		return nil
	})
	res.OpID = opID

	s.observe(op, err, start)
	if err != nil {
		logEvent(&logger, err).Err(err).Msg("Operation failed")
		return res, err
	}

	for _, e := range res.Events {
		s.metrics.EventsAppended.WithLabelValues(string(e.PaymentMethod)).Inc()
	}
	logger.Info().
		Int("events", len(res.Events)).
		Int("warnings", len(res.Warnings)).
		Dur("elapsed", time.Since(start)).
		Msg("Operation completed")
	return res, nil
}

// afterWrite recomputes the main table and backs up the workbook. Both
// are best effort.
func (s *LedgerService) afterWrite(ctx context.Context) []error {
	var warnings []error
	logger := zerolog.Ctx(ctx)

	if _, err := s.recompute(ctx); err != nil {
		logger.Warn().Err(err).Msg("Main table recompute failed after write")
		s.metrics.Warnings.WithLabelValues("recompute").Inc()
		warnings = append(warnings, fmt.Errorf("main table not refreshed: %w", err))
	}

	if s.backups != nil {
		if _, err := s.backup(ctx); err != nil {
			logger.Warn().Err(err).Msg("Backup failed after write")
			s.metrics.Warnings.WithLabelValues("backup").Inc()
			warnings = append(warnings, fmt.Errorf("backup not written: %w", err))
		}
	}
	return warnings
}

// balances derives the current main table from the event and member
// sheets. It never trusts the persisted main table, which may be stale
// when an earlier recompute failed.
func (s *LedgerService) balances(ctx context.Context) ([]model.MainRow, error) {
	events, err := s.events.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	members, err := s.members.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read members: %w", err)
	}
	return ledger.MainTable(events, members), nil
}

// recompute rebuilds and persists the main table.
func (s *LedgerService) recompute(ctx context.Context) ([]model.MainRow, error) {
	rows, err := s.balances(ctx)
	if err != nil {
		s.metrics.RecomputeTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if err := s.mainTable.Replace(ctx, rows); err != nil {
		s.metrics.RecomputeTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	s.metrics.RecomputeTotal.WithLabelValues("ok").Inc()
	s.metrics.MainTableRows.Set(float64(len(rows)))
	outstanding := lo.Reduce(rows, func(acc decimal.Decimal, r model.MainRow, _ int) decimal.Decimal {
		return acc.Add(r.RemainingPrepaid)
	}, decimal.Zero)
	s.metrics.OutstandingAmount.Set(outstanding.InexactFloat64())
	return rows, nil
}

func (s *LedgerService) backup(ctx context.Context) (backup.Result, error) {
	res, err := s.backups.Backup(ctx, s.store, s.backupPrefix)
	if err != nil {
		s.metrics.BackupTotal.WithLabelValues("error").Inc()
		return res, err
	}
	s.metrics.BackupTotal.WithLabelValues("ok").Inc()
	return res, nil
}

func (s *LedgerService) observe(op string, err error, start time.Time) {
	s.metrics.ObserveOperation(op, Kind(err).String(), time.Since(start))
}

// logEvent picks the level for a failed operation: user mistakes are
// routine, storage failures are not.
func logEvent(logger *zerolog.Logger, err error) *zerolog.Event {
	switch Kind(err) {
	case KindStorage, KindInternal:
		return logger.Error()
	default:
		return logger.Info()
	}
}

// ErrorKind classifies an operation error for the reply shown to staff.
type ErrorKind int

// Error kinds.
const (
	KindNone ErrorKind = iota
	KindInput
	KindNotFound
	KindRule
	KindStorage
	KindInternal
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "ok"
	case KindInput:
		return "input"
	case KindNotFound:
		return "not_found"
	case KindRule:
		return "rule"
	case KindStorage:
		return "storage"
	default:
		return "internal"
	}
}

// Kind classifies err. Storage errors win over everything else since a
// half-read workbook makes any other verdict unreliable. A rejected
// consumption batch is a rule violation whatever its members' causes.
func Kind(err error) ErrorKind {
	var batch *ledger.BatchError
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, sheet.ErrLocked), errors.Is(err, sheet.ErrUnavailable),
		errors.Is(err, sheet.ErrSheetNotFound), errors.Is(err, lock.ErrLockTimeout),
		errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindStorage
	case errors.As(err, &batch):
		return KindRule
	case errors.Is(err, ledger.ErrInvalidInput):
		return KindInput
	case errors.Is(err, ledger.ErrMemberNotFound), errors.Is(err, ledger.ErrCoachNotFound),
		errors.Is(err, ledger.ErrPriceNotFound), errors.Is(err, ledger.ErrNoBalanceRecord):
		return KindNotFound
	case errors.Is(err, ledger.ErrDuplicateMember), errors.Is(err, ledger.ErrInsufficientSessions),
		errors.Is(err, ledger.ErrGroupTierLimit), errors.Is(err, ledger.ErrNothingToRefund),
		errors.Is(err, ledger.ErrNegativeBalance), errors.Is(err, ErrWrongPassword),
		errors.Is(err, ErrSummaryLocked), errors.Is(err, ErrStalePreview):
		return KindRule
	default:
		return KindInternal
	}
}
