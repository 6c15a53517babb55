// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package sink

import (
	"context"
	"math"
	"strings"

	"github.com/IBM/sarama"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/logtags"
	"github.com/cockroachdb/sinkexec/pkg/stream/chunk"
	"github.com/cockroachdb/sinkexec/pkg/stream/vnode"
	"github.com/cockroachdb/sinkexec/pkg/util/log"
)

// KafkaConnector is the name of the kafka connector.
const KafkaConnector = "kafka"

func init() {
	// sarama only has a global logger hook.
	ctx := logtags.AddTag(context.Background(), "kafka-producer", nil)
	sarama.Logger = log.NewStdLogger(ctx, log.SeverityInfo, "")

	// The log store bounds what is buffered; sarama should not reject
	// messages based on its own limits.
	sarama.MaxRequestSize = math.MaxInt32

	Register(KafkaConnector, buildKafkaSink)
}

// kafkaKnobs allow tests to replace the producer.
type kafkaKnobs struct {
	OverrideSyncProducer func(brokers []string, config *sarama.Config) (sarama.SyncProducer, error)
}

type kafkaSink struct {
	param   SinkParam
	brokers []string
	topic   string
	config  *sarama.Config
	knobs   kafkaKnobs
}

var _ Sink = (*kafkaSink)(nil)

func buildKafkaSink(param SinkParam, opts Options) (Sink, error) {
	brokers, err := opts.Required(OptKafkaBrokers)
	if err != nil {
		return nil, err
	}
	topic, err := opts.Required(OptKafkaTopic)
	if err != nil {
		return nil, err
	}
	config, err := buildKafkaConfig(opts)
	if err != nil {
		return nil, err
	}
	return &kafkaSink{
		param:   param,
		brokers: strings.Split(brokers, ","),
		topic:   topic,
		config:  config,
	}, nil
}

func buildKafkaConfig(opts Options) (*sarama.Config, error) {
	config := sarama.NewConfig()
	config.ClientID = "sinkexec"
	config.Producer.Return.Successes = true
	config.Producer.Partitioner = sarama.NewHashPartitioner
	config.Producer.MaxMessageBytes = int(sarama.MaxRequestSize - 1)
	if v := opts.Get(OptKafkaVersion); v != "" {
		version, err := sarama.ParseKafkaVersion(v)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing option %q", OptKafkaVersion)
		}
		config.Version = version
	}
	if v := opts.Get(OptKafkaRequiredAcks); v != "" {
		acks, err := parseRequiredAcks(v)
		if err != nil {
			return nil, err
		}
		config.Producer.RequiredAcks = acks
	}
	return config, errors.Wrap(config.Validate(), "validating kafka config")
}

func parseRequiredAcks(a string) (sarama.RequiredAcks, error) {
	switch strings.ToUpper(a) {
	case "0", "NONE":
		return sarama.NoResponse, nil
	case "1", "ONE":
		return sarama.WaitForLocal, nil
	case "-1", "ALL":
		return sarama.WaitForAll, nil
	default:
		return sarama.WaitForLocal,
			errors.Newf(`invalid acks value %q, must be "NONE"/"0", "ONE"/"1", or "ALL"/"-1"`, a)
	}
}

// Connector implements Sink.
func (s *kafkaSink) Connector() string {
	return KafkaConnector
}

// NewWriter implements Sink.
func (s *kafkaSink) NewWriter(ctx context.Context, param SinkWriterParam) (SinkWriter, error) {
	newProducer := sarama.NewSyncProducer
	if s.knobs.OverrideSyncProducer != nil {
		newProducer = s.knobs.OverrideSyncProducer
	}
	producer, err := newProducer(s.brokers, s.config)
	if err != nil {
		return nil, errors.Wrapf(err, "connecting to kafka brokers %v", s.brokers)
	}
	log.Infof(ctx, "kafka sink writer %d producing to topic %s", param.ExecutorID, s.topic)
	return &kafkaWriter{
		producer: producer,
		topic:    s.topic,
		enc:      newRowEncoder(s.param.Schema()),
		pk:       s.param.DownstreamPk,
		sinkType: s.param.SinkType,
	}, nil
}

// kafkaWriter buffers the messages of an epoch and produces them on the
// barrier closing it. Append-only sinks produce one message per inserted
// row. Upsert sinks key every message by the primary key and produce a
// tombstone (a nil value) for deleted rows.
type kafkaWriter struct {
	producer sarama.SyncProducer
	topic    string
	enc      rowEncoder
	pk       []int
	sinkType SinkType
	pending  []*sarama.ProducerMessage
}

var _ SinkWriter = (*kafkaWriter)(nil)

func (w *kafkaWriter) BeginEpoch(context.Context, uint64) error {
	return nil
}

func (w *kafkaWriter) key(row []chunk.Datum) (sarama.Encoder, error) {
	if len(w.pk) == 0 {
		return nil, nil
	}
	k, err := w.enc.encodeJSON(row, w.pk)
	return sarama.ByteEncoder(k), err
}

func (w *kafkaWriter) WriteBatch(_ context.Context, c *chunk.StreamChunk) error {
	c = c.Compact()
	for i := 0; i < c.Capacity(); i++ {
		op, row := c.Op(i), c.Row(i)
		key, err := w.key(row)
		if err != nil {
			return err
		}
		msg := &sarama.ProducerMessage{Topic: w.topic, Key: key}
		switch {
		case op.IsInsertion():
			value, err := w.enc.encodeJSON(row, nil)
			if err != nil {
				return err
			}
			msg.Value = sarama.ByteEncoder(value)
		case w.sinkType.IsAppendOnly():
			return errors.Newf("%s kafka sink received %s", w.sinkType, op)
		case op == chunk.UpdateDelete && i+1 < c.Capacity() &&
			chunk.RowsEqual(projectRow(row, w.pk), projectRow(c.Row(i+1), w.pk)):
			// The following UpdateInsert overwrites the same key.
			continue
		}
		w.pending = append(w.pending, msg)
	}
	return nil
}

func projectRow(row []chunk.Datum, indices []int) []chunk.Datum {
	res := make([]chunk.Datum, len(indices))
	for i, idx := range indices {
		res[i] = row[idx]
	}
	return res
}

func (w *kafkaWriter) Barrier(ctx context.Context, isCheckpoint bool) error {
	if len(w.pending) == 0 {
		return nil
	}
	if err := w.producer.SendMessages(w.pending); err != nil {
		return errors.Wrapf(err, "producing %d messages to %s", len(w.pending), w.topic)
	}
	log.VEventf(ctx, 2, "produced %d messages to %s (checkpoint=%t)", len(w.pending), w.topic, isCheckpoint)
	w.pending = w.pending[:0]
	return nil
}

func (w *kafkaWriter) Abort(context.Context) error {
	w.pending = nil
	return nil
}

func (w *kafkaWriter) UpdateVnodeBitmap(context.Context, vnode.Bitmap) error {
	// Messages are partitioned by key, not by vnode.
	return nil
}

func (w *kafkaWriter) Close() error {
	return w.producer.Close()
}
