// Package repositories implements the compliance data readers on PostgreSQL.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/digirix/Apexsaas-sub009/internal/infrastructure/database/postgres"
	"github.com/digirix/Apexsaas-sub009/internal/infrastructure/monitoring/logging"
	"github.com/digirix/Apexsaas-sub009/internal/infrastructure/monitoring/prometheus"
)

// queryExecutor abstracts sql.DB and sql.Tx
type queryExecutor interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// scanner abstracts sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

type baseRepo struct {
	conn    *postgres.Connection
	log     logging.Logger
	metrics *prometheus.AppMetrics
}

func newBaseRepo(conn *postgres.Connection, log logging.Logger, metrics *prometheus.AppMetrics) baseRepo {
	if log == nil {
		log = logging.NewNopLogger()
	}
	if metrics == nil {
		metrics = prometheus.NewNoopAppMetrics()
	}
	return baseRepo{conn: conn, log: log, metrics: metrics}
}

func (r *baseRepo) executor() queryExecutor {
	return r.conn.DB()
}

// observe records the duration of one repository operation. Use as
// defer r.observe("op", time.Now(), &err).
func (r *baseRepo) observe(op string, start time.Time, err *error) {
	prometheus.RecordDBQuery(r.metrics, op, time.Since(start), *err)
	if *err != nil {
		r.log.Debug("query failed", logging.String("op", op), logging.Err(*err))
	}
}

func nullTimePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
