package opdb_test

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Subaru-PFS/ics-testsActor/opdb"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*opdb.OpDB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return opdb.New(db), mock
}

func TestLatestSequence(t *testing.T) {
	o, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("select visit_set_id, sequence_type from sps_sequence")).
		WillReturnRows(sqlmock.NewRows([]string{"visit_set_id", "sequence_type"}).AddRow(42, "biases"))

	s, err := o.LatestSequence(context.Background())
	require.NoError(t, err)
	require.Equal(t, opdb.Sequence{VisitSetID: 42, Type: "biases"}, s)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVisitOfSetIsParameterised(t *testing.T) {
	o, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("select pfs_visit_id from visit_set where visit_set_id = $1")).
		WithArgs(42).
		WillReturnRows(sqlmock.NewRows([]string{"pfs_visit_id"}).AddRow(12345))

	v, err := o.VisitOfSet(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, 12345, v)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExposure(t *testing.T) {
	o, mock := newMock(t)
	mock.ExpectQuery("select exp_type, exptime, sps_module_id, arm_num from sps_exposure").
		WithArgs(12345).
		WillReturnRows(sqlmock.NewRows([]string{"exp_type", "exptime", "sps_module_id", "arm_num"}).
			AddRow("dark", 10.0, 1, 2))

	e, err := o.Exposure(context.Background(), 12345)
	require.NoError(t, err)
	require.Equal(t, opdb.Exposure{ExpType: "dark", Exptime: 10, SpecNum: 1, ArmNum: 2}, e)
}

func TestNoRows(t *testing.T) {
	o, mock := newMock(t)
	mock.ExpectQuery("select pfs_visit_id from visit_set").
		WithArgs(7).
		WillReturnError(sql.ErrNoRows)

	_, err := o.VisitOfSet(context.Background(), 7)
	require.Error(t, err)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.Contains(t, err.Error(), "visit_set 7")
}
