// Package ledger holds the balance rules of the membership ledger: the
// per-(member, plan) aggregation, the main-table join and the event
// builders for purchases, consumption and refunds.
//
// Everything here is pure. Callers read the sheets, pass the rows in and
// persist whatever comes back.
package ledger

import (
	"sort"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"gym-ledger-bot/internal/model"
)

// groupKey identifies one balance: a member's sessions under one plan.
type groupKey struct {
	memberID string
	plan     model.Plan
}

// Aggregate groups events by (member, plan) and sums them.
// The result is sorted by member ID, then plan. An empty input yields an
// empty, non-nil slice.
func Aggregate(events []model.Event) []model.Aggregate {
	groups := lo.GroupBy(events, func(e model.Event) groupKey {
		return groupKey{memberID: e.MemberID, plan: e.Plan}
	})

	out := make([]model.Aggregate, 0, len(groups))
	for key, rows := range groups {
		agg := model.Aggregate{
			MemberID:         key.memberID,
			Plan:             key.plan,
			RemainingPrepaid: decimal.Zero,
		}
		for _, e := range rows {
			agg.RemainingSessions += e.SessionDelta
			agg.RemainingPrepaid = agg.RemainingPrepaid.Add(e.TotalAmount)
			if e.Date.After(agg.LastTransactionDate) {
				agg.LastTransactionDate = e.Date
			}
		}
		agg.AverageUnitPrice = AverageUnitPrice(agg.RemainingPrepaid, agg.RemainingSessions)
		out = append(out, agg)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].MemberID != out[j].MemberID {
			return out[i].MemberID < out[j].MemberID
		}
		return out[i].Plan < out[j].Plan
	})
	return out
}

// AverageUnitPrice returns prepaid/sessions rounded to 2 places, or 0
// when there are no sessions left.
func AverageUnitPrice(prepaid decimal.Decimal, sessions int) decimal.Decimal {
	if sessions == 0 {
		return decimal.Zero
	}
	return prepaid.DivRound(decimal.NewFromInt(int64(sessions)), 2)
}

// Join inner-joins aggregates with the member directory on member ID.
// Members without events and aggregates without a member are dropped, so
// the main table is not a full roster. Rows are ordered by member ID.
func Join(aggs []model.Aggregate, members []model.Member) []model.MainRow {
	directory := make(map[string]model.Member, len(members))
	for _, m := range members {
		// The first row wins if the directory was edited by hand and holds duplicates.
		if _, seen := directory[m.MemberID]; !seen {
			directory[m.MemberID] = m
		}
	}

	rows := make([]model.MainRow, 0, len(aggs))
	for _, agg := range aggs {
		m, ok := directory[agg.MemberID]
		if !ok {
			continue
		}
		rows = append(rows, model.MainRow{
			MemberID:            agg.MemberID,
			Name:                m.Name,
			Birthday:            m.Birthday,
			Phone:               m.Phone,
			Plan:                agg.Plan,
			RemainingSessions:   agg.RemainingSessions,
			AverageUnitPrice:    agg.AverageUnitPrice,
			RemainingPrepaid:    agg.RemainingPrepaid,
			LastTransactionDate: agg.LastTransactionDate,
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].MemberID < rows[j].MemberID
	})
	return rows
}

// MainTable recomputes the main table from the full event and member sheets.
func MainTable(events []model.Event, members []model.Member) []model.MainRow {
	return Join(Aggregate(events), members)
}

// Find returns the main-table row of a member's plan.
func Find(rows []model.MainRow, memberID string, plan model.Plan) (model.MainRow, bool) {
	return lo.Find(rows, func(r model.MainRow) bool {
		return r.MemberID == memberID && r.Plan == plan
	})
}

// ForMember returns all main-table rows of one member.
func ForMember(rows []model.MainRow, memberID string) []model.MainRow {
	return lo.Filter(rows, func(r model.MainRow, _ int) bool {
		return r.MemberID == memberID
	})
}

// BirthdaysIn returns the main-table rows of members born in the given month.
func BirthdaysIn(rows []model.MainRow, month time.Month) []model.MainRow {
	return lo.Filter(rows, func(r model.MainRow, _ int) bool {
		return !r.Birthday.IsZero() && r.Birthday.Month() == month
	})
}
