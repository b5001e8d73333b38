package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/khoahotran/prospect-sync/internal/domain/prospect"
	"github.com/khoahotran/prospect-sync/pkg/apperror"
	"github.com/khoahotran/prospect-sync/pkg/logger"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// One table per collection kind; the name never comes from input.
var prospectTables = map[prospect.Kind]string{
	prospect.KindVisit: "visits",
	prospect.KindScan:  "scans",
}

var prospectColumns = []string{
	"id", "captured_at", "first_name", "last_name", "profile_url", "public_profile_url",
	"title", "company", "industry", "location", "thumbnail",
	"positions", "schools", "skills", "extra", "created_at", "updated_at",
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type postgresProspectRepo struct {
	db     *pgxpool.Pool
	logger logger.Logger
	now    func() time.Time
}

func NewPostgresProspectRepo(db *pgxpool.Pool, log logger.Logger) prospect.Repository {
	return &postgresProspectRepo{
		db:     db,
		logger: log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func tableFor(kind prospect.Kind) (string, error) {
	t, ok := prospectTables[kind]
	if !ok {
		return "", apperror.NewInvalidInput(fmt.Sprintf("unknown collection kind %q", kind), nil)
	}
	return t, nil
}

func (r *postgresProspectRepo) scanRecord(row pgx.Row, kind prospect.Kind) (*prospect.Record, error) {
	rec := &prospect.Record{Kind: kind}
	var positions, schools, skills, extra []byte

	err := row.Scan(
		&rec.ID,
		&rec.CapturedAt,
		&rec.FirstName,
		&rec.LastName,
		&rec.ProfileURL,
		&rec.PublicProfileURL,
		&rec.Title,
		&rec.Company,
		&rec.Industry,
		&rec.Location,
		&rec.Thumbnail,
		&positions,
		&schools,
		&skills,
		&extra,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, prospect.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to scan %s row: %w", kind, err)
	}

	if err := json.Unmarshal(positions, &rec.Positions); err != nil {
		r.logger.Warn("Failed to unmarshal positions", zap.String("id", rec.ID), zap.Error(err))
		rec.Positions = []prospect.Position{}
	}
	if err := json.Unmarshal(schools, &rec.Schools); err != nil {
		r.logger.Warn("Failed to unmarshal schools", zap.String("id", rec.ID), zap.Error(err))
		rec.Schools = []prospect.School{}
	}
	if err := json.Unmarshal(skills, &rec.Skills); err != nil {
		r.logger.Warn("Failed to unmarshal skills", zap.String("id", rec.ID), zap.Error(err))
		rec.Skills = []string{}
	}
	if err := json.Unmarshal(extra, &rec.Extra); err != nil {
		r.logger.Warn("Failed to unmarshal extra", zap.String("id", rec.ID), zap.Error(err))
		rec.Extra = map[string]any{}
	}
	rec.CapturedAt = rec.CapturedAt.UTC()
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return rec, nil
}

func (r *postgresProspectRepo) FindByID(ctx context.Context, kind prospect.Kind, id string) (*prospect.Record, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	query, args, err := psql.Select(prospectColumns...).From(table).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, apperror.NewInternal("failed to build query", err)
	}
	rec, err := r.scanRecord(r.db.QueryRow(ctx, query, args...), kind)
	if err != nil && !errors.Is(err, prospect.ErrRecordNotFound) {
		return nil, apperror.NewInternal("failed to query record", err)
	}
	return rec, err
}

func (r *postgresProspectRepo) findForUpdate(ctx context.Context, q querier, table string, kind prospect.Kind, id string) (*prospect.Record, error) {
	query, args, err := psql.Select(prospectColumns...).From(table).Where(sq.Eq{"id": id}).Suffix("FOR UPDATE").ToSql()
	if err != nil {
		return nil, err
	}
	return r.scanRecord(q.QueryRow(ctx, query, args...), kind)
}

// Upsert creates the record or merges it into the stored row inside one
// transaction. The stored row is locked while the merge is computed; a
// concurrent first insert of the same id falls back to the merge path.
func (r *postgresProspectRepo) Upsert(ctx context.Context, kind prospect.Kind, rec *prospect.Record) (prospect.UpsertResult, error) {
	table, err := tableFor(kind)
	if err != nil {
		return prospect.UpsertResult{}, err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return prospect.UpsertResult{}, apperror.NewInternal("failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	now := r.now()
	existing, err := r.findForUpdate(ctx, tx, table, kind, rec.ID)
	if err != nil && !errors.Is(err, prospect.ErrRecordNotFound) {
		return prospect.UpsertResult{}, apperror.NewInternal("failed to lock record", err)
	}

	created := false
	if existing == nil {
		fresh := *rec
		fresh.Kind = kind
		fresh.PrepareForCreate(now)
		inserted, err := r.insert(ctx, tx, table, &fresh)
		if err != nil {
			return prospect.UpsertResult{}, apperror.NewInternal("failed to insert record", err)
		}
		if inserted {
			existing = &fresh
			created = true
		} else {
			existing, err = r.findForUpdate(ctx, tx, table, kind, rec.ID)
			if err != nil {
				return prospect.UpsertResult{}, apperror.NewInternal("failed to lock record after insert race", err)
			}
		}
	}

	if !created {
		existing.Merge(rec)
		existing.UpdatedAt = now
		if err := r.update(ctx, tx, table, existing); err != nil {
			return prospect.UpsertResult{}, apperror.NewInternal("failed to update record", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return prospect.UpsertResult{}, apperror.NewInternal("failed to commit upsert", err)
	}
	return prospect.UpsertResult{Record: existing, Created: created}, nil
}

type jsonColumns struct {
	positions, schools, skills, extra []byte
}

func marshalColumns(rec *prospect.Record) (jsonColumns, error) {
	var c jsonColumns
	var err error
	if c.positions, err = marshalOr(rec.Positions, "[]"); err != nil {
		return c, err
	}
	if c.schools, err = marshalOr(rec.Schools, "[]"); err != nil {
		return c, err
	}
	if c.skills, err = marshalOr(rec.Skills, "[]"); err != nil {
		return c, err
	}
	if c.extra, err = marshalOr(rec.Extra, "{}"); err != nil {
		return c, err
	}
	return c, nil
}

func marshalOr(v any, empty string) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(b) == "null" {
		return []byte(empty), nil
	}
	return b, nil
}

func (r *postgresProspectRepo) insert(ctx context.Context, tx pgx.Tx, table string, rec *prospect.Record) (bool, error) {
	cols, err := marshalColumns(rec)
	if err != nil {
		return false, err
	}
	query, args, err := psql.Insert(table).
		Columns(prospectColumns...).
		Values(
			rec.ID, rec.CapturedAt, rec.FirstName, rec.LastName, rec.ProfileURL, rec.PublicProfileURL,
			rec.Title, rec.Company, rec.Industry, rec.Location, rec.Thumbnail,
			cols.positions, cols.schools, cols.skills, cols.extra, rec.CreatedAt, rec.UpdatedAt,
		).
		Suffix("ON CONFLICT (id) DO NOTHING").
		ToSql()
	if err != nil {
		return false, err
	}
	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *postgresProspectRepo) update(ctx context.Context, tx pgx.Tx, table string, rec *prospect.Record) error {
	cols, err := marshalColumns(rec)
	if err != nil {
		return err
	}
	query, args, err := psql.Update(table).
		SetMap(map[string]any{
			"captured_at":        rec.CapturedAt,
			"first_name":         rec.FirstName,
			"last_name":          rec.LastName,
			"profile_url":        rec.ProfileURL,
			"public_profile_url": rec.PublicProfileURL,
			"title":              rec.Title,
			"company":            rec.Company,
			"industry":           rec.Industry,
			"location":           rec.Location,
			"thumbnail":          rec.Thumbnail,
			"positions":          cols.positions,
			"schools":            cols.schools,
			"skills":             cols.skills,
			"extra":              cols.extra,
			"updated_at":         rec.UpdatedAt,
		}).
		Where(sq.Eq{"id": rec.ID}).
		ToSql()
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, query, args...)
	return err
}

func (r *postgresProspectRepo) CountSince(ctx context.Context, kind prospect.Kind, since time.Time) (int, error) {
	table, err := tableFor(kind)
	if err != nil {
		return 0, err
	}
	query, args, err := psql.Select("COUNT(*)").From(table).Where(sq.GtOrEq{"captured_at": since}).ToSql()
	if err != nil {
		return 0, apperror.NewInternal("failed to build count query", err)
	}
	var n int
	if err := r.db.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, apperror.NewInternal("failed to count records", err)
	}
	return n, nil
}

// List returns records newest first.
func (r *postgresProspectRepo) List(ctx context.Context, kind prospect.Kind, f prospect.ListFilter) ([]*prospect.Record, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	b := psql.Select(prospectColumns...).From(table).OrderBy("captured_at DESC", "id ASC")
	if f.Company != "" {
		b = b.Where(sq.Eq{"company": f.Company})
	}
	if !f.Since.IsZero() {
		b = b.Where(sq.GtOrEq{"captured_at": f.Since})
	}
	if !f.Before.IsZero() {
		b = b.Where(sq.Lt{"captured_at": f.Before})
	}
	if f.Limit > 0 {
		b = b.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		b = b.Offset(uint64(f.Offset))
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, apperror.NewInternal("failed to build list query", err)
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, apperror.NewInternal("failed to list records", err)
	}
	defer rows.Close()

	out := make([]*prospect.Record, 0)
	for rows.Next() {
		rec, err := r.scanRecord(rows, kind)
		if err != nil {
			return nil, apperror.NewInternal("failed to scan record", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.NewInternal("failed to iterate records", err)
	}
	return out, nil
}

func (r *postgresProspectRepo) SetExtra(ctx context.Context, kind prospect.Kind, id, key string, value any) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return apperror.NewInternal("failed to marshal extra value", err)
	}
	query, args, err := psql.Update(table).
		Set("extra", sq.Expr("COALESCE(extra, '{}'::jsonb) || jsonb_build_object(?::text, ?::jsonb)", key, raw)).
		Set("updated_at", r.now()).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return apperror.NewInternal("failed to build update", err)
	}
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return apperror.NewInternal("failed to set extra attribute", err)
	}
	if tag.RowsAffected() == 0 {
		return prospect.ErrRecordNotFound
	}
	return nil
}
