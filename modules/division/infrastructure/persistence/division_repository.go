package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/orgforge/divisions/modules/division/services"
	"github.com/orgforge/divisions/pkg/composables"
)

var _ services.DivisionRepository = (*DivisionRepository)(nil)

const divisionColumns = `id, code, name, short_name, parent_id, sort_order, is_internal, is_active, is_deleted, created_at, updated_at`

type DivisionRepository struct{}

func NewDivisionRepository() *DivisionRepository {
	return &DivisionRepository{}
}

func scanDivision(row pgx.Row) (*services.Division, error) {
	var d services.Division
	err := row.Scan(
		&d.ID,
		&d.Code,
		&d.Name,
		&d.ShortName,
		&d.ParentID,
		&d.SortOrder,
		&d.IsInternal,
		&d.IsActive,
		&d.IsDeleted,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func collectDivisions(rows pgx.Rows) ([]services.Division, error) {
	defer rows.Close()
	out := make([]services.Division, 0)
	for rows.Next() {
		d, err := scanDivision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (r *DivisionRepository) Find(ctx context.Context, id int64, includeDeleted bool) (*services.Division, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	q := `SELECT ` + divisionColumns + ` FROM divisions WHERE id = $1`
	if !includeDeleted {
		q += ` AND is_deleted = false`
	}
	d, err := scanDivision(tx.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return d, err
}

func (r *DivisionRepository) FindByCode(ctx context.Context, code string, includeDeleted bool) (*services.Division, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	q := `SELECT ` + divisionColumns + ` FROM divisions WHERE UPPER(code) = UPPER($1)`
	if !includeDeleted {
		q += ` AND is_deleted = false`
	}
	q += ` LIMIT 1`
	d, err := scanDivision(tx.QueryRow(ctx, q, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return d, err
}

func (r *DivisionRepository) FindByParent(ctx context.Context, parentID *int64, includeDeleted bool) ([]services.Division, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	var rows pgx.Rows
	q := `SELECT ` + divisionColumns + ` FROM divisions WHERE `
	tail := ` ORDER BY sort_order, name`
	deleted := ``
	if !includeDeleted {
		deleted = ` AND is_deleted = false`
	}
	if parentID == nil {
		rows, err = tx.Query(ctx, q+`parent_id IS NULL`+deleted+tail)
	} else {
		rows, err = tx.Query(ctx, q+`parent_id = $1`+deleted+tail, *parentID)
	}
	if err != nil {
		return nil, err
	}
	return collectDivisions(rows)
}

func (r *DivisionRepository) FindRoots(ctx context.Context, includeDeleted bool) ([]services.Division, error) {
	return r.FindByParent(ctx, nil, includeDeleted)
}

func (r *DivisionRepository) Search(ctx context.Context, filters services.SearchFilters) ([]services.Division, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	where := make([]string, 0, 3)
	args := make([]interface{}, 0, 3)
	if !filters.IncludeDeleted {
		where = append(where, `is_deleted = false`)
	}
	if filters.ActiveOnly {
		where = append(where, `is_active = true`)
	}
	if q := strings.TrimSpace(filters.Query); q != "" {
		args = append(args, "%"+q+"%")
		n := len(args)
		where = append(where, fmt.Sprintf(`(code ILIKE $%d OR name ILIKE $%d OR short_name ILIKE $%d)`, n, n, n))
	}

	query := `SELECT ` + divisionColumns + ` FROM divisions`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY sort_order, name`
	if filters.Limit > 0 {
		args = append(args, filters.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
		args = append(args, filters.Skip)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectDivisions(rows)
}

func (r *DivisionRepository) MaxSortOrder(ctx context.Context, parentID *int64) (int, bool, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, false, err
	}

	var max *int
	if parentID == nil {
		err = tx.QueryRow(ctx, `SELECT MAX(sort_order) FROM divisions WHERE parent_id IS NULL AND is_deleted = false`).Scan(&max)
	} else {
		err = tx.QueryRow(ctx, `SELECT MAX(sort_order) FROM divisions WHERE parent_id = $1 AND is_deleted = false`, *parentID).Scan(&max)
	}
	if err != nil {
		return 0, false, err
	}
	if max == nil {
		return 0, false, nil
	}
	return *max, true, nil
}

func (r *DivisionRepository) CountChildren(ctx context.Context, id int64) (int, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}

	var count int
	err = tx.QueryRow(ctx, `SELECT COUNT(*) FROM divisions WHERE parent_id = $1 AND is_deleted = false`, id).Scan(&count)
	return count, err
}

func (r *DivisionRepository) Count(ctx context.Context) (int, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}

	var count int
	err = tx.QueryRow(ctx, `SELECT COUNT(*) FROM divisions`).Scan(&count)
	return count, err
}

func (r *DivisionRepository) ActiveCodes(ctx context.Context, prefix string) ([]string, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	var rows pgx.Rows
	if prefix == "" {
		rows, err = tx.Query(ctx, `SELECT code FROM divisions WHERE is_deleted = false AND is_active = true ORDER BY code`)
	} else {
		rows, err = tx.Query(ctx, `SELECT code FROM divisions WHERE is_deleted = false AND is_active = true AND code LIKE $1 ORDER BY code`, prefix+"%")
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	codes := make([]string, 0)
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

func (r *DivisionRepository) Insert(ctx context.Context, d *services.Division) (*services.Division, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	err = tx.QueryRow(ctx, `
INSERT INTO divisions (code, name, short_name, parent_id, sort_order, is_internal, is_active, is_deleted, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING id
`,
		d.Code,
		d.Name,
		d.ShortName,
		d.ParentID,
		d.SortOrder,
		d.IsInternal,
		d.IsActive,
		d.IsDeleted,
		d.CreatedAt,
		d.UpdatedAt,
	).Scan(&d.ID)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (r *DivisionRepository) Update(ctx context.Context, d *services.Division) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
UPDATE divisions
SET code = $2,
    name = $3,
    short_name = $4,
    parent_id = $5,
    sort_order = $6,
    is_internal = $7,
    is_active = $8,
    is_deleted = $9,
    updated_at = $10
WHERE id = $1
`,
		d.ID,
		d.Code,
		d.Name,
		d.ShortName,
		d.ParentID,
		d.SortOrder,
		d.IsInternal,
		d.IsActive,
		d.IsDeleted,
		d.UpdatedAt,
	)
	return err
}

func (r *DivisionRepository) SetSortOrder(ctx context.Context, id int64, sortOrder int) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `UPDATE divisions SET sort_order = $2, updated_at = now() WHERE id = $1`, id, sortOrder)
	return err
}

func (r *DivisionRepository) Delete(ctx context.Context, id int64) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `DELETE FROM divisions WHERE id = $1`, id)
	return err
}
