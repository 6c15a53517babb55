// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package sink

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/apd/v3"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/sinkexec/pkg/stream/chunk"
	"github.com/cockroachdb/sinkexec/pkg/stream/vnode"
	"github.com/cockroachdb/sinkexec/pkg/util/log"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresConnector is the name of the postgres connector.
const PostgresConnector = "postgres"

func init() {
	Register(PostgresConnector, func(param SinkParam, opts Options) (Sink, error) {
		return buildPostgresSink(param, opts, connectPostgres)
	})
}

// pgTx is the part of pgx.Tx the sink uses.
type pgTx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// pgConn is the part of *pgx.Conn the sink uses.
type pgConn interface {
	begin(ctx context.Context) (pgTx, error)
	close(ctx context.Context) error
}

type pgxConn struct {
	conn *pgx.Conn
}

func (c pgxConn) begin(ctx context.Context) (pgTx, error) {
	return c.conn.Begin(ctx)
}

func (c pgxConn) close(ctx context.Context) error {
	return c.conn.Close(ctx)
}

func connectPostgres(ctx context.Context, url string) (pgConn, error) {
	conn, err := pgx.Connect(ctx, url)
	if err != nil {
		return nil, err
	}
	return pgxConn{conn: conn}, nil
}

// postgresSink applies changes to a table. Every checkpoint interval is one
// transaction: append-only sinks insert rows, upsert sinks insert or update
// by primary key and delete by primary key.
type postgresSink struct {
	url     string
	table   string
	connect func(ctx context.Context, url string) (pgConn, error)

	insertSQL string
	deleteSQL string
	pk        []int
	sinkType  SinkType
}

var _ Sink = (*postgresSink)(nil)

func buildPostgresSink(
	param SinkParam, opts Options, connect func(context.Context, string) (pgConn, error),
) (*postgresSink, error) {
	url, err := opts.Required(OptPostgresURL)
	if err != nil {
		return nil, err
	}
	table, err := opts.Required(OptPostgresTable)
	if err != nil {
		return nil, err
	}
	s := &postgresSink{
		url:      url,
		table:    table,
		connect:  connect,
		pk:       param.DownstreamPk,
		sinkType: param.SinkType,
	}
	s.insertSQL, s.deleteSQL = postgresStatements(table, param.Schema().Names(), param.DownstreamPk, param.SinkType)
	return s, nil
}

func quoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func postgresStatements(
	table string, columns []string, pk []int, sinkType SinkType,
) (insertSQL, deleteSQL string) {
	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = quoteIdent(c)
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	tableName := pgx.Identifier(strings.Split(table, ".")).Sanitize()
	insertSQL = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		tableName, strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
	if sinkType != Upsert {
		return insertSQL, ""
	}

	pkCols := make([]string, len(pk))
	conds := make([]string, len(pk))
	isPk := make(map[int]bool, len(pk))
	for i, idx := range pk {
		pkCols[i] = quoted[idx]
		conds[i] = fmt.Sprintf("%s = $%d", quoted[idx], i+1)
		isPk[idx] = true
	}
	var sets []string
	for i, q := range quoted {
		if !isPk[i] {
			sets = append(sets, fmt.Sprintf("%s = excluded.%s", q, q))
		}
	}
	conflict := "DO NOTHING"
	if len(sets) > 0 {
		conflict = "DO UPDATE SET " + strings.Join(sets, ", ")
	}
	insertSQL += fmt.Sprintf(" ON CONFLICT (%s) %s", strings.Join(pkCols, ", "), conflict)
	deleteSQL = fmt.Sprintf("DELETE FROM %s WHERE %s", tableName, strings.Join(conds, " AND "))
	return insertSQL, deleteSQL
}

// Connector implements Sink.
func (s *postgresSink) Connector() string {
	return PostgresConnector
}

// NewWriter implements Sink.
func (s *postgresSink) NewWriter(ctx context.Context, param SinkWriterParam) (SinkWriter, error) {
	conn, err := s.connect(ctx, s.url)
	if err != nil {
		return nil, errors.Wrapf(err, "connecting to postgres for table %s", s.table)
	}
	log.Infof(ctx, "postgres sink writer %d writing to %s", param.ExecutorID, s.table)
	return &postgresWriter{s: s, conn: conn}, nil
}

type postgresWriter struct {
	s    *postgresSink
	conn pgConn
	// tx is open from the first write of a checkpoint interval until its
	// commit.
	tx pgTx
}

var _ SinkWriter = (*postgresWriter)(nil)

func pgArg(d chunk.Datum) any {
	if dec, ok := d.(*apd.Decimal); ok {
		return dec.String()
	}
	return d
}

func pgArgs(row []chunk.Datum, indices []int) []any {
	if indices == nil {
		args := make([]any, len(row))
		for i, d := range row {
			args[i] = pgArg(d)
		}
		return args
	}
	args := make([]any, len(indices))
	for i, idx := range indices {
		args[i] = pgArg(row[idx])
	}
	return args
}

func (w *postgresWriter) BeginEpoch(context.Context, uint64) error {
	return nil
}

func (w *postgresWriter) WriteBatch(ctx context.Context, c *chunk.StreamChunk) error {
	if w.tx == nil {
		tx, err := w.conn.begin(ctx)
		if err != nil {
			return errors.Wrap(err, "beginning transaction")
		}
		w.tx = tx
	}
	c = c.Compact()
	for i := 0; i < c.Capacity(); i++ {
		op, row := c.Op(i), c.Row(i)
		var err error
		switch {
		case op.IsInsertion():
			_, err = w.tx.Exec(ctx, w.s.insertSQL, pgArgs(row, nil)...)
		case w.s.sinkType.IsAppendOnly():
			return errors.Newf("%s postgres sink received %s", w.s.sinkType, op)
		case op == chunk.UpdateDelete && i+1 < c.Capacity() &&
			chunk.RowsEqual(projectRow(row, w.s.pk), projectRow(c.Row(i+1), w.s.pk)):
			// The following UpdateInsert upserts the same key.
			continue
		default:
			_, err = w.tx.Exec(ctx, w.s.deleteSQL, pgArgs(row, w.s.pk)...)
		}
		if err != nil {
			return errors.Wrapf(err, "applying %s to %s", op, w.s.table)
		}
	}
	return nil
}

func (w *postgresWriter) Barrier(ctx context.Context, isCheckpoint bool) error {
	if !isCheckpoint || w.tx == nil {
		return nil
	}
	tx := w.tx
	w.tx = nil
	return errors.Wrap(tx.Commit(ctx), "committing transaction")
}

func (w *postgresWriter) Abort(ctx context.Context) error {
	if w.tx == nil {
		return nil
	}
	tx := w.tx
	w.tx = nil
	return errors.Wrap(tx.Rollback(ctx), "rolling back transaction")
}

func (w *postgresWriter) UpdateVnodeBitmap(context.Context, vnode.Bitmap) error {
	return nil
}

func (w *postgresWriter) Close() error {
	ctx := context.Background()
	var err error
	if w.tx != nil {
		err = w.tx.Rollback(ctx)
		w.tx = nil
	}
	return errors.CombineErrors(err, w.conn.close(ctx))
}
