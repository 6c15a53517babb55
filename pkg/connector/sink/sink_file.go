// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package sink

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path"

	"github.com/apache/arrow/go/v11/arrow"
	"github.com/apache/arrow/go/v11/arrow/array"
	"github.com/apache/arrow/go/v11/arrow/memory"
	"github.com/apache/arrow/go/v11/parquet"
	"github.com/apache/arrow/go/v11/parquet/compress"
	"github.com/apache/arrow/go/v11/parquet/pqarrow"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/sinkexec/pkg/stream/catalog"
	"github.com/cockroachdb/sinkexec/pkg/stream/chunk"
	"github.com/cockroachdb/sinkexec/pkg/stream/vnode"
	"github.com/cockroachdb/sinkexec/pkg/util/log"
	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// FileConnector is the name of the file connector.
const FileConnector = "file"

func init() {
	Register(FileConnector, func(param SinkParam, opts Options) (Sink, error) {
		return buildFileSink(afero.NewOsFs(), param, opts)
	})
}

// fileSink writes the rows of every checkpoint interval into a new file of
// the target directory. Rows are staged in a hidden file that is renamed
// into place when the checkpoint commits, so readers never observe rows of
// an uncommitted checkpoint.
type fileSink struct {
	fs     afero.Fs
	dir    string
	format string
	schema catalog.Schema
}

var _ Sink = (*fileSink)(nil)

func buildFileSink(fs afero.Fs, param SinkParam, opts Options) (*fileSink, error) {
	if param.SinkType == Upsert {
		return nil, errors.Newf("the %s connector only supports %s sinks", FileConnector, TypeAppendOnly)
	}
	dir, err := opts.Required(OptFilePath)
	if err != nil {
		return nil, err
	}
	format := opts.Get(OptFileFormat)
	switch format {
	case "":
		format = FormatCSV
	case FormatCSV, FormatParquet:
	default:
		return nil, errors.Newf("unknown file format %q, expected %q or %q", format, FormatCSV, FormatParquet)
	}
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "creating %s", dir)
	}
	return &fileSink{fs: fs, dir: dir, format: format, schema: param.Schema()}, nil
}

// Connector implements Sink.
func (s *fileSink) Connector() string {
	return FileConnector
}

// NewWriter implements Sink.
func (s *fileSink) NewWriter(_ context.Context, param SinkWriterParam) (SinkWriter, error) {
	w := &fileWriter{s: s, executorID: param.ExecutorID}
	if s.format == FormatParquet {
		w.rows = &parquetRows{schema: arrowSchema(s.schema)}
	} else {
		w.rows = &csvRows{enc: newRowEncoder(s.schema)}
	}
	return w, nil
}

// stagedRows accumulate the rows of one checkpoint interval into a file.
type stagedRows interface {
	open(f afero.File)
	append(row []chunk.Datum) error
	// flush makes appended rows durable in the staging file.
	flush() error
	// finish completes the file. The file is closed by the caller.
	finish() error
	reset()
}

type fileWriter struct {
	s          *fileSink
	executorID uint64
	rows       stagedRows

	// staging is open between the first epoch of a checkpoint interval and
	// its commit.
	staging    afero.File
	firstEpoch uint64
	epoch      uint64
}

var _ SinkWriter = (*fileWriter)(nil)

func (w *fileWriter) stagingPath() string {
	return path.Join(w.s.dir, fmt.Sprintf(".staging-%d-%d", w.executorID, w.firstEpoch))
}

func (w *fileWriter) BeginEpoch(_ context.Context, epoch uint64) error {
	w.epoch = epoch
	if w.staging != nil {
		return nil
	}
	w.firstEpoch = epoch
	f, err := w.s.fs.Create(w.stagingPath())
	if err != nil {
		return errors.Wrap(err, "creating staging file")
	}
	w.staging = f
	w.rows.open(f)
	return nil
}

func (w *fileWriter) WriteBatch(_ context.Context, c *chunk.StreamChunk) error {
	if w.staging == nil {
		return errors.AssertionFailedf("write outside of an epoch")
	}
	var err error
	c.ForEachVisible(func(_ int, op chunk.Op, row []chunk.Datum) {
		if err != nil {
			return
		}
		if op != chunk.Insert {
			err = errors.Newf("file sink received %s", op)
			return
		}
		err = w.rows.append(row)
	})
	return err
}

func (w *fileWriter) Barrier(ctx context.Context, isCheckpoint bool) error {
	if w.staging == nil {
		return nil
	}
	if !isCheckpoint {
		return w.rows.flush()
	}
	staging := w.stagingPath()
	final := path.Join(w.s.dir, fmt.Sprintf("part-%020d-%d-%s.%s",
		w.firstEpoch, w.executorID, uuid.New().String(), w.s.format))
	err := w.rows.finish()
	err = errors.CombineErrors(err, w.staging.Close())
	w.staging = nil
	w.rows.reset()
	if err != nil {
		return errors.Wrapf(err, "writing %s", staging)
	}
	if err := w.s.fs.Rename(staging, final); err != nil {
		return errors.Wrapf(err, "committing %s", final)
	}
	log.VEventf(ctx, 2, "committed epochs %d-%d to %s", w.firstEpoch, w.epoch, final)
	return nil
}

func (w *fileWriter) Abort(ctx context.Context) error {
	if w.staging == nil {
		return nil
	}
	staging := w.stagingPath()
	err := w.staging.Close()
	w.staging = nil
	w.rows.reset()
	if rmErr := w.s.fs.Remove(staging); rmErr != nil {
		err = errors.CombineErrors(err, rmErr)
	}
	log.Warningf(ctx, "aborted writes staged in %s", staging)
	return err
}

func (w *fileWriter) UpdateVnodeBitmap(context.Context, vnode.Bitmap) error {
	return nil
}

func (w *fileWriter) Close() error {
	if w.staging == nil {
		return nil
	}
	// Uncommitted rows stay in the staging file.
	err := w.staging.Close()
	w.staging = nil
	return err
}

type csvRows struct {
	enc rowEncoder
	w   *csv.Writer
}

func (r *csvRows) open(f afero.File) {
	r.w = csv.NewWriter(f)
}

func (r *csvRows) append(row []chunk.Datum) error {
	return r.w.Write(r.enc.csvRecord(row))
}

func (r *csvRows) flush() error {
	r.w.Flush()
	return r.w.Error()
}

func (r *csvRows) finish() error {
	return r.flush()
}

func (r *csvRows) reset() {
	r.w = nil
}

// parquetRows buffers rows in an arrow record and writes them as a single
// parquet file on finish; parquet files cannot be appended to.
type parquetRows struct {
	schema  *arrow.Schema
	f       afero.File
	builder *array.RecordBuilder
}

func arrowType(t chunk.Type) arrow.DataType {
	switch t {
	case chunk.TypeInt64:
		return arrow.PrimitiveTypes.Int64
	case chunk.TypeFloat64:
		return arrow.PrimitiveTypes.Float64
	case chunk.TypeBool:
		return arrow.FixedWidthTypes.Boolean
	case chunk.TypeBytea:
		return arrow.BinaryTypes.Binary
	default:
		// Decimals are written in their textual form.
		return arrow.BinaryTypes.String
	}
}

func arrowSchema(s catalog.Schema) *arrow.Schema {
	fields := make([]arrow.Field, len(s.Fields))
	for i, f := range s.Fields {
		fields[i] = arrow.Field{Name: f.Name, Type: arrowType(f.Type), Nullable: true}
	}
	return arrow.NewSchema(fields, nil)
}

func (r *parquetRows) open(f afero.File) {
	r.f = f
	r.builder = array.NewRecordBuilder(memory.NewGoAllocator(), r.schema)
}

func (r *parquetRows) append(row []chunk.Datum) error {
	// Check every column first so that a bad row leaves no partial record.
	for i, d := range row {
		if d == nil {
			continue
		}
		var ok bool
		switch fb := r.builder.Field(i); fb.(type) {
		case *array.Int64Builder:
			_, ok = d.(int64)
		case *array.Float64Builder:
			_, ok = d.(float64)
		case *array.BooleanBuilder:
			_, ok = d.(bool)
		case *array.BinaryBuilder:
			_, ok = d.([]byte)
		case *array.StringBuilder:
			ok = true
		default:
			return errors.AssertionFailedf("unexpected arrow builder %T", fb)
		}
		if !ok {
			return errors.AssertionFailedf("column %s: %T datum for %s",
				r.schema.Field(i).Name, d, r.schema.Field(i).Type)
		}
	}
	for i, d := range row {
		fb := r.builder.Field(i)
		if d == nil {
			fb.AppendNull()
			continue
		}
		switch b := fb.(type) {
		case *array.Int64Builder:
			b.Append(d.(int64))
		case *array.Float64Builder:
			b.Append(d.(float64))
		case *array.BooleanBuilder:
			b.Append(d.(bool))
		case *array.BinaryBuilder:
			b.Append(d.([]byte))
		case *array.StringBuilder:
			b.Append(chunk.FormatDatum(d))
		}
	}
	return nil
}

func (r *parquetRows) flush() error {
	return nil
}

func (r *parquetRows) finish() error {
	rec := r.builder.NewRecord()
	defer rec.Release()
	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))
	// The parquet writer closes its sink; the staging file is closed by the
	// caller.
	sink := struct{ io.Writer }{r.f}
	pw, err := pqarrow.NewFileWriter(r.schema, sink, props, pqarrow.DefaultWriterProps())
	if err != nil {
		return err
	}
	if err := pw.Write(rec); err != nil {
		return errors.CombineErrors(err, pw.Close())
	}
	return pw.Close()
}

func (r *parquetRows) reset() {
	if r.builder != nil {
		r.builder.Release()
	}
	r.builder, r.f = nil, nil
}
