// Package opdb reads the exposure book-keeping of the operations database.
package opdb

import (
	"context"
	"database/sql"
	"time"

	// postgres driver
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
)

const (
	qLatestSequence = `select visit_set_id, sequence_type from sps_sequence
where visit_set_id = (select max(visit_set_id) from sps_sequence)`

	qVisitOfSet = `select pfs_visit_id from visit_set where visit_set_id = $1`

	qExposure = `select exp_type, exptime, sps_module_id, arm_num from sps_exposure
inner join sps_visit on sps_exposure.pfs_visit_id = sps_visit.pfs_visit_id
inner join sps_camera on sps_exposure.sps_camera_id = sps_camera.sps_camera_id
where sps_exposure.pfs_visit_id = $1`
)

// Sequence is an sps_sequence row
type Sequence struct {
	VisitSetID int
	Type       string
}

// Exposure is the book-keeping of one sps exposure
type Exposure struct {
	ExpType string
	Exptime float64
	SpecNum int
	ArmNum  int
}

// Reader is the read-only view of opDB used by the exposure tests
type Reader interface {
	LatestSequence(ctx context.Context) (Sequence, error)
	VisitOfSet(ctx context.Context, visitSetID int) (int, error)
	Exposure(ctx context.Context, pfsVisitID int) (Exposure, error)
}

// OpDB is a Reader backed by database/sql
type OpDB struct {
	db *sql.DB

	// Timeout bounds each query
	Timeout time.Duration
}

// Open returns an OpDB for a postgres DSN.  No connection is made until the first query.
func Open(dsn string) (*OpDB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "opdb")
	}
	return New(db), nil
}

// New wraps an existing handle
func New(db *sql.DB) *OpDB {
	return &OpDB{db: db, Timeout: 10 * time.Second}
}

// Close the underlying handle
func (o *OpDB) Close() error {
	return o.db.Close()
}

func (o *OpDB) ctx(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.Timeout)
}

// LatestSequence returns the sps_sequence with the highest visit_set_id
func (o *OpDB) LatestSequence(ctx context.Context) (Sequence, error) {
	ctx, cancel := o.ctx(ctx)
	defer cancel()
	var s Sequence
	err := o.db.QueryRowContext(ctx, qLatestSequence).Scan(&s.VisitSetID, &s.Type)
	if err != nil {
		return s, errors.Wrap(err, "opdb latest sps_sequence")
	}
	return s, nil
}

// VisitOfSet returns the pfs_visit_id of a visit set
func (o *OpDB) VisitOfSet(ctx context.Context, visitSetID int) (int, error) {
	ctx, cancel := o.ctx(ctx)
	defer cancel()
	var v int
	err := o.db.QueryRowContext(ctx, qVisitOfSet, visitSetID).Scan(&v)
	if err != nil {
		return 0, errors.Wrapf(err, "opdb visit_set %d", visitSetID)
	}
	return v, nil
}

// Exposure returns the exposure book-keeping of a visit
func (o *OpDB) Exposure(ctx context.Context, pfsVisitID int) (Exposure, error) {
	ctx, cancel := o.ctx(ctx)
	defer cancel()
	var e Exposure
	err := o.db.QueryRowContext(ctx, qExposure, pfsVisitID).Scan(&e.ExpType, &e.Exptime, &e.SpecNum, &e.ArmNum)
	if err != nil {
		return e, errors.Wrapf(err, "opdb sps_exposure of visit %d", pfsVisitID)
	}
	return e, nil
}
