package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"lot_registry/internal/model"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func lotRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "neighborhood", "micro_area", "address", "reference_note", "has_trash", "has_standing_water",
		"risk", "status", "notes", "latitude", "longitude", "created_by", "name",
		"count", "created_at", "updated_at",
	})
}

func addLotRow(rows *pgxmock.Rows, id int64, neighborhood, risk, status string) *pgxmock.Rows {
	creator := 1
	name := "Ana"
	return rows.AddRow(
		id, neighborhood, (*string)(nil), "Rua A, 10", (*string)(nil), true, false,
		risk, status, (*string)(nil), (*string)(nil), (*string)(nil), &creator, &name,
		0, time.Now(), time.Now(),
	)
}

func TestLotRepository_ChangeStatus_CommitsMutationAndAuditTogether(t *testing.T) {
	mock := newMockPool(t)
	repo := NewLotRepository(mock)

	changedAt := time.Now()
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE lots SET status").
		WithArgs(model.StatusCleaning, int64(7)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery("INSERT INTO lot_status_changes").
		WithArgs(int64(7), model.StatusPending, model.StatusCleaning, 3).
		WillReturnRows(pgxmock.NewRows([]string{"id", "changed_at"}).AddRow(int64(42), changedAt))
	mock.ExpectCommit()

	change, err := repo.ChangeStatus(context.Background(), 7, model.StatusPending, model.StatusCleaning, 3)

	require.NoError(t, err)
	assert.Equal(t, int64(42), change.ID)
	assert.Equal(t, model.StatusPending, change.PreviousStatus)
	assert.Equal(t, model.StatusCleaning, change.NewStatus)
	require.NotNil(t, change.ActorID)
	assert.Equal(t, 3, *change.ActorID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLotRepository_ChangeStatus_RollsBackWhenAuditInsertFails(t *testing.T) {
	mock := newMockPool(t)
	repo := NewLotRepository(mock)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE lots SET status").
		WithArgs(model.StatusClean, int64(7)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery("INSERT INTO lot_status_changes").
		WithArgs(int64(7), model.StatusCleaning, model.StatusClean, 3).
		WillReturnError(errors.New("insert failed"))
	mock.ExpectRollback()

	_, err := repo.ChangeStatus(context.Background(), 7, model.StatusCleaning, model.StatusClean, 3)

	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLotRepository_ChangeStatus_UnknownLot(t *testing.T) {
	mock := newMockPool(t)
	repo := NewLotRepository(mock)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE lots SET status").
		WithArgs(model.StatusClean, int64(99)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	_, err := repo.ChangeStatus(context.Background(), 99, model.StatusCleaning, model.StatusClean, 3)

	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLotRepository_Delete_RemovesChildrenFirst(t *testing.T) {
	mock := newMockPool(t)
	repo := NewLotRepository(mock)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT stored_filename FROM lot_photos").
		WithArgs(int64(5)).
		WillReturnRows(pgxmock.NewRows([]string{"stored_filename"}).AddRow("5_0_a.png").AddRow("5_1_b.jpg"))
	mock.ExpectExec("DELETE FROM lot_photos").
		WithArgs(int64(5)).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec("DELETE FROM lot_status_changes").
		WithArgs(int64(5)).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("DELETE FROM lots").
		WithArgs(int64(5)).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	filenames, err := repo.Delete(context.Background(), 5)

	require.NoError(t, err)
	assert.Equal(t, []string{"5_0_a.png", "5_1_b.jpg"}, filenames)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLotRepository_Delete_UnknownLotRollsBack(t *testing.T) {
	mock := newMockPool(t)
	repo := NewLotRepository(mock)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT stored_filename FROM lot_photos").
		WithArgs(int64(99)).
		WillReturnRows(pgxmock.NewRows([]string{"stored_filename"}))
	mock.ExpectExec("DELETE FROM lot_photos").
		WithArgs(int64(99)).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec("DELETE FROM lot_status_changes").
		WithArgs(int64(99)).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec("DELETE FROM lots").
		WithArgs(int64(99)).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectRollback()

	_, err := repo.Delete(context.Background(), 99)

	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLotRepository_FindScoped_AppliesScopeBeforeFilters(t *testing.T) {
	mock := newMockPool(t)
	repo := NewLotRepository(mock)

	risk := model.RiskHigh
	creator := 4
	rows := addLotRow(lotRows(), 12, "Centro", model.RiskHigh, model.StatusPending)
	mock.ExpectQuery("FROM lots l LEFT JOIN users u ON l.created_by = u.id WHERE l.created_by = \\$1 AND l.risk = \\$2 ORDER BY l.id DESC").
		WithArgs(creator, risk).
		WillReturnRows(rows)

	lots, err := repo.FindScoped(context.Background(), model.Scope{CreatedBy: &creator}, model.LotFilters{Risk: &risk})

	require.NoError(t, err)
	require.Len(t, lots, 1)
	assert.Equal(t, int64(12), lots[0].ID)
	assert.Equal(t, model.RiskHigh, lots[0].Risk)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLotRepository_FindScoped_AdminHasNoScopePredicate(t *testing.T) {
	mock := newMockPool(t)
	repo := NewLotRepository(mock)

	rows := addLotRow(lotRows(), 2, "Centro", model.RiskLow, model.StatusClean)
	rows = addLotRow(rows, 1, "Vila Nova", model.RiskMedium, model.StatusPending)
	mock.ExpectQuery("FROM lots l LEFT JOIN users u ON l.created_by = u.id ORDER BY l.id DESC").
		WillReturnRows(rows)

	lots, err := repo.FindScoped(context.Background(), model.Scope{}, model.LotFilters{})

	require.NoError(t, err)
	require.Len(t, lots, 2)
	assert.Equal(t, int64(2), lots[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLotRepository_DistinctNeighborhoods_Scoped(t *testing.T) {
	mock := newMockPool(t)
	repo := NewLotRepository(mock)

	creator := 4
	mock.ExpectQuery("SELECT DISTINCT l.neighborhood FROM lots l WHERE l.created_by = \\$1 ORDER BY l.neighborhood").
		WithArgs(creator).
		WillReturnRows(pgxmock.NewRows([]string{"neighborhood"}).AddRow("Centro").AddRow("Vila Nova"))

	neighborhoods, err := repo.DistinctNeighborhoods(context.Background(), model.Scope{CreatedBy: &creator})

	require.NoError(t, err)
	assert.Equal(t, []string{"Centro", "Vila Nova"}, neighborhoods)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLotRepository_CountByStatus(t *testing.T) {
	mock := newMockPool(t)
	repo := NewLotRepository(mock)

	mock.ExpectQuery("SELECT l.status, COUNT\\(l.id\\) FROM lots l GROUP BY l.status").
		WillReturnRows(pgxmock.NewRows([]string{"status", "count"}).
			AddRow(model.StatusPending, int64(3)).
			AddRow(model.StatusClean, int64(1)))

	totals, err := repo.CountByStatus(context.Background(), model.Scope{})

	require.NoError(t, err)
	assert.Equal(t, map[string]int64{model.StatusPending: 3, model.StatusClean: 1}, totals)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLotRepository_InsertPhoto(t *testing.T) {
	mock := newMockPool(t)
	repo := NewLotRepository(mock)

	mock.ExpectQuery("INSERT INTO lot_photos").
		WithArgs(int64(7), "7_0_front.png").
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), time.Now()))

	photo := &model.Photo{LotID: 7, StoredFilename: "7_0_front.png"}
	err := repo.InsertPhoto(context.Background(), photo)

	require.NoError(t, err)
	assert.Equal(t, int64(1), photo.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLotRepository_ListStatusChanges_NewestFirstQuery(t *testing.T) {
	mock := newMockPool(t)
	repo := NewLotRepository(mock)

	actor := 3
	now := time.Now()
	mock.ExpectQuery("FROM lot_status_changes WHERE lot_id = \\$1 ORDER BY changed_at DESC, id DESC").
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "lot_id", "previous_status", "new_status", "actor_id", "changed_at"}).
			AddRow(int64(2), int64(7), model.StatusCleaning, model.StatusClean, &actor, now).
			AddRow(int64(1), int64(7), model.StatusPending, model.StatusCleaning, &actor, now.Add(-time.Hour)))

	changes, err := repo.ListStatusChanges(context.Background(), 7)

	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, model.StatusClean, changes[0].NewStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}
