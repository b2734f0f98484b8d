package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"lot_registry/internal/model"

	"github.com/jackc/pgx/v5"
)

// lotColumns is the select list shared by every lot query: the lot row plus
// the creator's name and the stored photo count.
const lotColumns = `l.id, l.neighborhood, l.micro_area, l.address, l.reference_note, l.has_trash, l.has_standing_water,
            l.risk, l.status, l.notes, l.latitude, l.longitude, l.created_by, u.name,
            (SELECT COUNT(*) FROM lot_photos p WHERE p.lot_id = l.id), l.created_at, l.updated_at`

// LotRepository defines operations for lot data
type LotRepository interface {
	Create(ctx context.Context, lot *model.Lot) error
	FindByID(ctx context.Context, id int64) (*model.Lot, error)
	Update(ctx context.Context, lot *model.Lot) error
	Delete(ctx context.Context, id int64) ([]string, error)
	FindScoped(ctx context.Context, scope model.Scope, filters model.LotFilters) ([]model.Lot, error)
	DistinctNeighborhoods(ctx context.Context, scope model.Scope) ([]string, error)
	CountByStatus(ctx context.Context, scope model.Scope) (map[string]int64, error)
	CountByRisk(ctx context.Context, scope model.Scope) (map[string]int64, error)
	CountAll(ctx context.Context, scope model.Scope) (int64, error)
	ChangeStatus(ctx context.Context, lotID int64, previous, next string, actorID int) (*model.StatusChange, error)
	InsertPhoto(ctx context.Context, photo *model.Photo) error
	CountPhotos(ctx context.Context, lotID int64) (int, error)
	ListPhotos(ctx context.Context, lotID int64) ([]model.Photo, error)
	ListStatusChanges(ctx context.Context, lotID int64) ([]model.StatusChange, error)
}

type lotRepository struct {
	db DB
}

// NewLotRepository creates a new LotRepository
func NewLotRepository(db DB) LotRepository {
	return &lotRepository{db: db}
}

func scanLot(row pgx.Row, l *model.Lot) error {
	return row.Scan(
		&l.ID, &l.Neighborhood, &l.MicroArea, &l.Address, &l.ReferenceNote, &l.HasTrash, &l.HasStandingWater,
		&l.Risk, &l.Status, &l.Notes, &l.Latitude, &l.Longitude, &l.CreatedBy, &l.CreatedByName,
		&l.PhotoCount, &l.CreatedAt, &l.UpdatedAt,
	)
}

// Create inserts a new lot into the database
func (r *lotRepository) Create(ctx context.Context, l *model.Lot) error {
	sql := `INSERT INTO lots (neighborhood, micro_area, address, reference_note, has_trash, has_standing_water,
                risk, status, notes, latitude, longitude, created_by)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) RETURNING id, created_at, updated_at`
	err := r.db.QueryRow(ctx, sql,
		l.Neighborhood, l.MicroArea, l.Address, l.ReferenceNote, l.HasTrash, l.HasStandingWater,
		l.Risk, l.Status, l.Notes, l.Latitude, l.Longitude, l.CreatedBy,
	).Scan(&l.ID, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create lot: %w", err)
	}
	return nil
}

// FindByID retrieves a lot by its ID
func (r *lotRepository) FindByID(ctx context.Context, id int64) (*model.Lot, error) {
	l := &model.Lot{}
	sql := fmt.Sprintf(`SELECT %s FROM lots l LEFT JOIN users u ON l.created_by = u.id WHERE l.id = $1`, lotColumns)
	err := scanLot(r.db.QueryRow(ctx, sql, id), l)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to find lot by ID: %w", err)
	}
	return l, nil
}

// Update persists the editable fields of an existing lot. Status is not
// touched here: it only changes through ChangeStatus so that every change
// leaves an audit record.
func (r *lotRepository) Update(ctx context.Context, l *model.Lot) error {
	sql := `UPDATE lots
            SET neighborhood = $1, micro_area = $2, address = $3, reference_note = $4, has_trash = $5,
                has_standing_water = $6, risk = $7, notes = $8, latitude = $9, longitude = $10, updated_at = NOW()
            WHERE id = $11 RETURNING updated_at`
	err := r.db.QueryRow(ctx, sql,
		l.Neighborhood, l.MicroArea, l.Address, l.ReferenceNote, l.HasTrash,
		l.HasStandingWater, l.Risk, l.Notes, l.Latitude, l.Longitude, l.ID,
	).Scan(&l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("lot not found for update")
		}
		return fmt.Errorf("failed to update lot: %w", err)
	}
	return nil
}

// Delete removes a lot and its owned photos and status history in a single
// transaction, children first. It returns the stored filenames of the
// removed photos so the caller can clean up the blobs after commit.
func (r *lotRepository) Delete(ctx context.Context, id int64) ([]string, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin delete transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `SELECT stored_filename FROM lot_photos WHERE lot_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list photo filenames for deletion: %w", err)
	}
	var filenames []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan photo filename: %w", err)
		}
		filenames = append(filenames, name)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating photo filenames: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM lot_photos WHERE lot_id = $1`, id); err != nil {
		return nil, fmt.Errorf("failed to delete lot photos: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM lot_status_changes WHERE lot_id = $1`, id); err != nil {
		return nil, fmt.Errorf("failed to delete lot status history: %w", err)
	}
	cmdTag, err := tx.Exec(ctx, `DELETE FROM lots WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to delete lot: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return nil, fmt.Errorf("lot not found for deletion")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit delete transaction: %w", err)
	}
	return filenames, nil
}

// scopeConditions appends the visibility predicate of the scope, if any.
func scopeConditions(scope model.Scope, conditions []string, args []interface{}, argCount int) ([]string, []interface{}, int) {
	if scope.CreatedBy != nil {
		conditions = append(conditions, fmt.Sprintf("l.created_by = $%d", argCount))
		args = append(args, *scope.CreatedBy)
		argCount++
	}
	return conditions, args, argCount
}

// FindScoped retrieves the lots visible within the scope, narrowed by the
// optional exact-match filters, newest id first.
func (r *lotRepository) FindScoped(ctx context.Context, scope model.Scope, filters model.LotFilters) ([]model.Lot, error) {
	var queryBuilder strings.Builder
	queryBuilder.WriteString(fmt.Sprintf(`SELECT %s FROM lots l LEFT JOIN users u ON l.created_by = u.id`, lotColumns))

	args := []interface{}{}
	argCount := 1
	var conditions []string

	conditions, args, argCount = scopeConditions(scope, conditions, args, argCount)

	if filters.Neighborhood != nil && *filters.Neighborhood != "" {
		conditions = append(conditions, fmt.Sprintf("l.neighborhood = $%d", argCount))
		args = append(args, *filters.Neighborhood)
		argCount++
	}
	if filters.Risk != nil && *filters.Risk != "" {
		conditions = append(conditions, fmt.Sprintf("l.risk = $%d", argCount))
		args = append(args, *filters.Risk)
		argCount++
	}
	if filters.Status != nil && *filters.Status != "" {
		conditions = append(conditions, fmt.Sprintf("l.status = $%d", argCount))
		args = append(args, *filters.Status)
	}

	if len(conditions) > 0 {
		queryBuilder.WriteString(" WHERE ")
		queryBuilder.WriteString(strings.Join(conditions, " AND "))
	}
	queryBuilder.WriteString(" ORDER BY l.id DESC")

	rows, err := r.db.Query(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query lots: %w", err)
	}
	defer rows.Close()

	var lots []model.Lot
	for rows.Next() {
		var l model.Lot
		if err := scanLot(rows, &l); err != nil {
			return nil, fmt.Errorf("failed to scan lot row: %w", err)
		}
		lots = append(lots, l)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating lot rows: %w", err)
	}
	return lots, nil
}

// DistinctNeighborhoods lists the distinct neighborhoods of the scope,
// sorted ascending. Filters never apply here: the list feeds the filter
// choices themselves.
func (r *lotRepository) DistinctNeighborhoods(ctx context.Context, scope model.Scope) ([]string, error) {
	sql := `SELECT DISTINCT l.neighborhood FROM lots l`
	args := []interface{}{}
	if scope.CreatedBy != nil {
		sql += ` WHERE l.created_by = $1`
		args = append(args, *scope.CreatedBy)
	}
	sql += ` ORDER BY l.neighborhood`

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query distinct neighborhoods: %w", err)
	}
	defer rows.Close()

	var neighborhoods []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to scan neighborhood: %w", err)
		}
		neighborhoods = append(neighborhoods, n)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating neighborhoods: %w", err)
	}
	return neighborhoods, nil
}

func (r *lotRepository) countGrouped(ctx context.Context, scope model.Scope, column string) (map[string]int64, error) {
	sql := fmt.Sprintf(`SELECT l.%s, COUNT(l.id) FROM lots l`, column)
	args := []interface{}{}
	if scope.CreatedBy != nil {
		sql += ` WHERE l.created_by = $1`
		args = append(args, *scope.CreatedBy)
	}
	sql += fmt.Sprintf(` GROUP BY l.%s`, column)

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query totals by %s: %w", column, err)
	}
	defer rows.Close()

	totals := make(map[string]int64)
	for rows.Next() {
		var value string
		var count int64
		if err := rows.Scan(&value, &count); err != nil {
			return nil, fmt.Errorf("failed to scan totals by %s: %w", column, err)
		}
		totals[value] = count
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating totals by %s: %w", column, err)
	}
	return totals, nil
}

// CountByStatus computes per-status totals over the whole scope.
func (r *lotRepository) CountByStatus(ctx context.Context, scope model.Scope) (map[string]int64, error) {
	return r.countGrouped(ctx, scope, "status")
}

// CountByRisk computes per-risk totals over the whole scope.
func (r *lotRepository) CountByRisk(ctx context.Context, scope model.Scope) (map[string]int64, error) {
	return r.countGrouped(ctx, scope, "risk")
}

// CountAll counts every lot in the scope.
func (r *lotRepository) CountAll(ctx context.Context, scope model.Scope) (int64, error) {
	sql := `SELECT COUNT(l.id) FROM lots l`
	args := []interface{}{}
	if scope.CreatedBy != nil {
		sql += ` WHERE l.created_by = $1`
		args = append(args, *scope.CreatedBy)
	}
	var count int64
	if err := r.db.QueryRow(ctx, sql, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count lots: %w", err)
	}
	return count, nil
}

// ChangeStatus applies a status transition and appends its audit record in
// one transaction: both commit together or neither does.
func (r *lotRepository) ChangeStatus(ctx context.Context, lotID int64, previous, next string, actorID int) (*model.StatusChange, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin status change transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	cmdTag, err := tx.Exec(ctx, `UPDATE lots SET status = $1, updated_at = NOW() WHERE id = $2`, next, lotID)
	if err != nil {
		return nil, fmt.Errorf("failed to update lot status: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return nil, fmt.Errorf("lot not found for status change")
	}

	change := &model.StatusChange{
		LotID:          lotID,
		PreviousStatus: previous,
		NewStatus:      next,
		ActorID:        &actorID,
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO lot_status_changes (lot_id, previous_status, new_status, actor_id)
         VALUES ($1, $2, $3, $4) RETURNING id, changed_at`,
		lotID, previous, next, actorID,
	).Scan(&change.ID, &change.ChangedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert status change record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit status change transaction: %w", err)
	}
	return change, nil
}

// InsertPhoto records the metadata row of a stored photo
func (r *lotRepository) InsertPhoto(ctx context.Context, photo *model.Photo) error {
	sql := `INSERT INTO lot_photos (lot_id, stored_filename) VALUES ($1, $2) RETURNING id, created_at`
	err := r.db.QueryRow(ctx, sql, photo.LotID, photo.StoredFilename).Scan(&photo.ID, &photo.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert photo metadata: %w", err)
	}
	return nil
}

// CountPhotos returns how many photos a lot currently has
func (r *lotRepository) CountPhotos(ctx context.Context, lotID int64) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM lot_photos WHERE lot_id = $1`, lotID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count photos: %w", err)
	}
	return count, nil
}

// ListPhotos retrieves the photos of a lot in insertion order
func (r *lotRepository) ListPhotos(ctx context.Context, lotID int64) ([]model.Photo, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, lot_id, stored_filename, created_at FROM lot_photos WHERE lot_id = $1 ORDER BY id`, lotID)
	if err != nil {
		return nil, fmt.Errorf("failed to query photos: %w", err)
	}
	defer rows.Close()

	var photos []model.Photo
	for rows.Next() {
		var p model.Photo
		if err := rows.Scan(&p.ID, &p.LotID, &p.StoredFilename, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan photo row: %w", err)
		}
		photos = append(photos, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating photo rows: %w", err)
	}
	return photos, nil
}

// ListStatusChanges retrieves the status history of a lot, newest first
func (r *lotRepository) ListStatusChanges(ctx context.Context, lotID int64) ([]model.StatusChange, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, lot_id, previous_status, new_status, actor_id, changed_at
         FROM lot_status_changes WHERE lot_id = $1 ORDER BY changed_at DESC, id DESC`, lotID)
	if err != nil {
		return nil, fmt.Errorf("failed to query status history: %w", err)
	}
	defer rows.Close()

	var changes []model.StatusChange
	for rows.Next() {
		var c model.StatusChange
		if err := rows.Scan(&c.ID, &c.LotID, &c.PreviousStatus, &c.NewStatus, &c.ActorID, &c.ChangedAt); err != nil {
			return nil, fmt.Errorf("failed to scan status change row: %w", err)
		}
		changes = append(changes, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating status change rows: %w", err)
	}
	return changes, nil
}
