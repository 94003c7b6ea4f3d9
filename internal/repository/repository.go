// Package repository maps the workbook sheets onto ledger models.
// Each repository reads or writes one sheet as a whole.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/patrickmn/go-cache"

	"gym-ledger-bot/internal/ledger"
	"gym-ledger-bot/internal/model"
	"gym-ledger-bot/internal/sheet"
)

// readOrEmpty reads a sheet, treating a missing sheet as empty.
func readOrEmpty(ctx context.Context, store sheet.Store, name string, header []string) (*sheet.Table, error) {
	table, err := store.ReadSheet(ctx, name)
	if errors.Is(err, sheet.ErrSheetNotFound) {
		return sheet.NewTable(header...), nil
	}
	if err != nil {
		return nil, err
	}
	if len(table.Header) == 0 {
		table.Header = append([]string(nil), header...)
	}
	return table, nil
}

// decodeAll decodes every non-blank row of a table.
func decodeAll[T any](name string, table *sheet.Table, required []string, decode func(sheet.Record) (T, error)) ([]T, error) {
	if table.Len() > 0 {
		if err := table.Require(required...); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}
	out := make([]T, 0, table.Len())
	for i := range table.Rows {
		r := table.Record(i)
		if r.Blank() {
			continue
		}
		v, err := decode(r)
		if err != nil {
			return nil, rowError(name, i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// EventRepository reads and appends ledger events.
type EventRepository struct {
	store sheet.Store
	name  string
}

// NewEventRepository creates an EventRepository over the named sheet.
func NewEventRepository(store sheet.Store, name string) *EventRepository {
	return &EventRepository{store: store, name: name}
}

// List returns every event in sheet order.
func (r *EventRepository) List(ctx context.Context) ([]model.Event, error) {
	table, err := readOrEmpty(ctx, r.store, r.name, EventHeader)
	if err != nil {
		return nil, err
	}
	return decodeAll(r.name, table, eventRequired, decodeEvent)
}

// Append adds events at the end of the sheet. Existing rows are written
// back untouched.
func (r *EventRepository) Append(ctx context.Context, events ...model.Event) error {
	if len(events) == 0 {
		return nil
	}
	table, err := readOrEmpty(ctx, r.store, r.name, EventHeader)
	if err != nil {
		return err
	}
	if table.Len() > 0 {
		if err := table.Require(eventRequired...); err != nil {
			return fmt.Errorf("%s: %w", r.name, err)
		}
	}
	for _, e := range events {
		table.Append(encodeEvent(table, e)...)
	}
	table.Types = eventTypes
	if err := r.store.WriteSheet(ctx, r.name, table); err != nil {
		return fmt.Errorf("failed to append %d events: %w", len(events), err)
	}
	return nil
}

// MemberRepository reads and extends the member directory.
type MemberRepository struct {
	store sheet.Store
	name  string
}

// NewMemberRepository creates a MemberRepository over the named sheet.
func NewMemberRepository(store sheet.Store, name string) *MemberRepository {
	return &MemberRepository{store: store, name: name}
}

// List returns every member.
func (r *MemberRepository) List(ctx context.Context) ([]model.Member, error) {
	table, err := readOrEmpty(ctx, r.store, r.name, MemberHeader)
	if err != nil {
		return nil, err
	}
	return decodeAll(r.name, table, memberRequired, decodeMember)
}

// Get returns one member by ID.
func (r *MemberRepository) Get(ctx context.Context, memberID string) (model.Member, error) {
	members, err := r.List(ctx)
	if err != nil {
		return model.Member{}, err
	}
	memberID = ledger.NormalizeID(memberID)
	for _, m := range members {
		if m.MemberID == memberID {
			return m, nil
		}
	}
	return model.Member{}, fmt.Errorf("%w: %s", ledger.ErrMemberNotFound, memberID)
}

// Insert appends a member. It fails with ledger.ErrDuplicateMember when
// the ID is already taken.
func (r *MemberRepository) Insert(ctx context.Context, m model.Member) error {
	table, err := readOrEmpty(ctx, r.store, r.name, MemberHeader)
	if err != nil {
		return err
	}
	existing, err := decodeAll(r.name, table, memberRequired, decodeMember)
	if err != nil {
		return err
	}
	for _, e := range existing {
		if e.MemberID == m.MemberID {
			return fmt.Errorf("%w: %s (%s)", ledger.ErrDuplicateMember, m.MemberID, e.Name)
		}
	}
	table.Append(encodeMember(table, m)...)
	table.Types = memberTypes
	if err := r.store.WriteSheet(ctx, r.name, table); err != nil {
		return fmt.Errorf("failed to insert member %s: %w", m.MemberID, err)
	}
	return nil
}

// directoryKey is the cache key of a whole directory sheet.
func directoryKey(kind, name string) string {
	return kind + ":" + name
}

// CoachRepository reads the coach directory. Results are cached since
// the directory rarely changes; Invalidate drops the cache.
type CoachRepository struct {
	store sheet.Store
	name  string
	cache *cache.Cache
}

// NewCoachRepository creates a CoachRepository. A nil cache disables caching.
func NewCoachRepository(store sheet.Store, name string, c *cache.Cache) *CoachRepository {
	return &CoachRepository{store: store, name: name, cache: c}
}

// List returns every coach.
func (r *CoachRepository) List(ctx context.Context) ([]model.Coach, error) {
	key := directoryKey("coaches", r.name)
	if r.cache != nil {
		if v, ok := r.cache.Get(key); ok {
			return v.([]model.Coach), nil
		}
	}

	table, err := readOrEmpty(ctx, r.store, r.name, CoachHeader)
	if err != nil {
		return nil, err
	}
	coaches, err := decodeAll(r.name, table, coachRequired, func(rec sheet.Record) (model.Coach, error) {
		return decodeCoach(rec), nil
	})
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		r.cache.SetDefault(key, coaches)
	}
	return coaches, nil
}

// FindByName resolves a coach by name.
func (r *CoachRepository) FindByName(ctx context.Context, name string) (model.Coach, error) {
	coaches, err := r.List(ctx)
	if err != nil {
		return model.Coach{}, err
	}
	name = strings.TrimSpace(name)
	for _, c := range coaches {
		if c.Name == name {
			return c, nil
		}
	}
	return model.Coach{}, fmt.Errorf("%w: %s", ledger.ErrCoachNotFound, name)
}

// Invalidate drops the cached directory.
func (r *CoachRepository) Invalidate() {
	if r.cache != nil {
		r.cache.Delete(directoryKey("coaches", r.name))
	}
}

// MenuRepository reads the price menu, cached like the coach directory.
type MenuRepository struct {
	store sheet.Store
	name  string
	cache *cache.Cache
}

// NewMenuRepository creates a MenuRepository. A nil cache disables caching.
func NewMenuRepository(store sheet.Store, name string, c *cache.Cache) *MenuRepository {
	return &MenuRepository{store: store, name: name, cache: c}
}

// List returns every menu row.
func (r *MenuRepository) List(ctx context.Context) ([]model.MenuItem, error) {
	key := directoryKey("menu", r.name)
	if r.cache != nil {
		if v, ok := r.cache.Get(key); ok {
			return v.([]model.MenuItem), nil
		}
	}

	table, err := readOrEmpty(ctx, r.store, r.name, MenuHeader)
	if err != nil {
		return nil, err
	}
	items, err := decodeAll(r.name, table, menuRequired, decodeMenuItem)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		r.cache.SetDefault(key, items)
	}
	return items, nil
}

// Invalidate drops the cached menu.
func (r *MenuRepository) Invalidate() {
	if r.cache != nil {
		r.cache.Delete(directoryKey("menu", r.name))
	}
}

// MainTableRepository reads and replaces the derived main table.
type MainTableRepository struct {
	store sheet.Store
	name  string
}

// NewMainTableRepository creates a MainTableRepository over the named sheet.
func NewMainTableRepository(store sheet.Store, name string) *MainTableRepository {
	return &MainTableRepository{store: store, name: name}
}

// List returns the persisted main table.
func (r *MainTableRepository) List(ctx context.Context) ([]model.MainRow, error) {
	table, err := readOrEmpty(ctx, r.store, r.name, MainHeader)
	if err != nil {
		return nil, err
	}
	return decodeAll(r.name, table, mainRequired, decodeMainRow)
}

// Replace overwrites the main table with the given rows.
func (r *MainTableRepository) Replace(ctx context.Context, rows []model.MainRow) error {
	table := sheet.NewTable(MainHeader...)
	table.Types = mainTypes
	for _, row := range rows {
		table.Append(encodeMainRow(table, row)...)
	}
	if err := r.store.WriteSheet(ctx, r.name, table); err != nil {
		return fmt.Errorf("failed to write main table: %w", err)
	}
	return nil
}

// EnsureSheets creates every missing sheet with its header.
func EnsureSheets(ctx context.Context, store sheet.Store, names Names) error {
	for _, s := range []struct {
		name   string
		header []string
	}{
		{names.Events, EventHeader},
		{names.Members, MemberHeader},
		{names.Coaches, CoachHeader},
		{names.Menu, MenuHeader},
		{names.Main, MainHeader},
	} {
		if err := store.EnsureSheet(ctx, s.name, s.header); err != nil {
			return fmt.Errorf("failed to ensure sheet %s: %w", s.name, err)
		}
	}
	return nil
}

// Names holds the sheet names of a workbook.
type Names struct {
	Events  string
	Members string
	Coaches string
	Menu    string
	Main    string
}
