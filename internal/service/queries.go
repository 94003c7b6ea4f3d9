package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"gym-ledger-bot/internal/backup"
	"gym-ledger-bot/internal/ledger"
	"gym-ledger-bot/internal/model"
)

// MemberBalance is one member's identity and balances per plan.
type MemberBalance struct {
	Member model.Member
	Rows   []model.MainRow
}

// Balance returns the current balances of one member. A member without
// any events has no rows.
func (s *LedgerService) Balance(ctx context.Context, memberID string) (MemberBalance, error) {
	member, err := s.members.Get(ctx, memberID)
	if err != nil {
		return MemberBalance{}, err
	}
	rows, err := s.balances(ctx)
	if err != nil {
		return MemberBalance{}, err
	}
	return MemberBalance{Member: member, Rows: ledger.ForMember(rows, member.MemberID)}, nil
}

// PlanTotal sums the main table for one plan.
type PlanTotal struct {
	Plan     model.Plan
	Members  int
	Sessions int
	Prepaid  decimal.Decimal
}

// Summary is the password-gated overview of the main table.
type Summary struct {
	Rows         []model.MainRow
	Plans        []PlanTotal
	Members      int
	TotalPrepaid decimal.Decimal
	GeneratedAt  time.Time
}

// Summary returns the main table with per-plan totals after checking the
// summary password.
func (s *LedgerService) Summary(ctx context.Context, password string) (Summary, error) {
	if len(s.summaryHash) == 0 {
		return Summary{}, ErrSummaryLocked
	}
	if err := bcrypt.CompareHashAndPassword(s.summaryHash, []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			log.Warn().Msg("Summary requested with a wrong password")
			return Summary{}, ErrWrongPassword
		}
		return Summary{}, err
	}

	rows, err := s.balances(ctx)
	if err != nil {
		return Summary{}, err
	}
	return summarize(rows, s.clock()), nil
}

func summarize(rows []model.MainRow, now time.Time) Summary {
	byPlan := lo.GroupBy(rows, func(r model.MainRow) model.Plan { return r.Plan })
	plans := make([]PlanTotal, 0, len(byPlan))
	for _, p := range append(model.StandardPlans(), model.PlanCustom) {
		group, ok := byPlan[p]
		if !ok {
			continue
		}
		total := PlanTotal{Plan: p, Members: len(group), Prepaid: decimal.Zero}
		for _, r := range group {
			total.Sessions += r.RemainingSessions
			total.Prepaid = total.Prepaid.Add(r.RemainingPrepaid)
		}
		plans = append(plans, total)
	}

	return Summary{
		Rows:  rows,
		Plans: plans,
		Members: len(lo.UniqBy(rows, func(r model.MainRow) string {
			return r.MemberID
		})),
		TotalPrepaid: lo.Reduce(rows, func(acc decimal.Decimal, r model.MainRow, _ int) decimal.Decimal {
			return acc.Add(r.RemainingPrepaid)
		}, decimal.Zero),
		GeneratedAt: now,
	}
}

// Birthdays lists members with history whose birthday falls in the
// current month, one row per member.
func (s *LedgerService) Birthdays(ctx context.Context) ([]model.MainRow, error) {
	rows, err := s.balances(ctx)
	if err != nil {
		return nil, err
	}
	month := s.clock().Month()
	return lo.UniqBy(ledger.BirthdaysIn(rows, month), func(r model.MainRow) string {
		return r.MemberID
	}), nil
}

// Recompute rebuilds the main table from the event and member sheets.
func (s *LedgerService) Recompute(ctx context.Context) ([]model.MainRow, error) {
	start := time.Now()
	var rows []model.MainRow
	err := s.lock.WithLockContext(ctx, s.lockKey, s.lockTimeout, func() error {
		var err error
		rows, err = s.recompute(ctx)
		return err
	})
	s.observe("recompute", err, start)
	if err != nil {
		log.Error().Err(err).Msg("Main table recompute failed")
		return nil, err
	}
	log.Info().Int("rows", len(rows)).Msg("Main table recomputed")
	return rows, nil
}

// Backup snapshots the workbook now.
func (s *LedgerService) Backup(ctx context.Context) (backup.Result, error) {
	if s.backups == nil {
		return backup.Result{}, errors.New("backups are disabled")
	}
	start := time.Now()
	var res backup.Result
	err := s.lock.WithLockContext(ctx, s.lockKey, s.lockTimeout, func() error {
		var err error
		res, err = s.backup(ctx)
		return err
	})
	s.observe("backup", err, start)
	return res, err
}

// Reload drops the cached coach directory and price menu.
func (s *LedgerService) Reload() {
	s.coaches.Invalidate()
	s.menu.Invalidate()
	log.Info().Msg("Coach directory and menu reloaded")
}

// Coaches lists the coach directory.
func (s *LedgerService) Coaches(ctx context.Context) ([]model.Coach, error) {
	return s.coaches.List(ctx)
}

// RosterEntry is one directory member and the plans with sessions left.
type RosterEntry struct {
	Member      model.Member
	ActivePlans []model.Plan
}

// Roster lists the member directory in sheet order, including members
// who never bought a course. A duplicated ID is listed once.
func (s *LedgerService) Roster(ctx context.Context) ([]RosterEntry, error) {
	members, err := s.members.List(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := s.balances(ctx)
	if err != nil {
		return nil, err
	}

	active := lo.GroupBy(
		lo.Filter(rows, func(r model.MainRow, _ int) bool { return r.RemainingSessions > 0 }),
		func(r model.MainRow) string { return r.MemberID },
	)
	members = lo.UniqBy(members, func(m model.Member) string { return m.MemberID })
	return lo.Map(members, func(m model.Member, _ int) RosterEntry {
		return RosterEntry{
			Member:      m,
			ActivePlans: lo.Map(active[m.MemberID], func(r model.MainRow, _ int) model.Plan { return r.Plan }),
		}
	}), nil
}
