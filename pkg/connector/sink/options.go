// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package sink

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// Option keys understood by ParseOptions.
const (
	OptConnector       = `connector`
	OptType            = `type`
	OptForceAppendOnly = `force_append_only`

	OptKafkaBrokers      = `kafka.brokers`
	OptKafkaTopic        = `kafka.topic`
	OptKafkaRequiredAcks = `kafka.required_acks`
	OptKafkaVersion      = `kafka.version`

	OptFilePath   = `file.path`
	OptFileFormat = `file.format`

	OptPostgresURL   = `postgres.url`
	OptPostgresTable = `postgres.table`
)

// Values of OptType.
const (
	TypeAppendOnly = `append-only`
	TypeUpsert     = `upsert`
)

// Values of OptFileFormat.
const (
	FormatCSV     = `csv`
	FormatParquet = `parquet`
)

var knownOptions = map[string]struct{}{
	OptConnector: {}, OptType: {}, OptForceAppendOnly: {},
	OptKafkaBrokers: {}, OptKafkaTopic: {}, OptKafkaRequiredAcks: {}, OptKafkaVersion: {},
	OptFilePath: {}, OptFileFormat: {},
	OptPostgresURL: {}, OptPostgresTable: {},
}

// Options are validated sink properties.
type Options struct {
	Connector string
	Type      SinkType
	// raw holds every property, including connector specific ones.
	raw map[string]string
}

// Get returns a property.
func (o Options) Get(key string) string {
	return o.raw[key]
}

// Required returns a property or an error if it is unset.
func (o Options) Required(key string) (string, error) {
	v := strings.TrimSpace(o.raw[key])
	if v == "" {
		return "", errors.Newf("option %q is required by the %s connector", key, o.Connector)
	}
	return v, nil
}

// ParseOptions validates sink properties.
func ParseOptions(props map[string]string) (Options, error) {
	for k := range props {
		if _, ok := knownOptions[k]; !ok {
			return Options{}, errors.Newf("unknown sink option %q", k)
		}
	}
	opts := Options{Connector: strings.ToLower(strings.TrimSpace(props[OptConnector])), raw: props}
	if opts.Connector == "" {
		return Options{}, errors.Newf("option %q is required", OptConnector)
	}
	t, err := ParseSinkType(props)
	if err != nil {
		return Options{}, err
	}
	opts.Type = t
	return opts, nil
}

// ParseSinkType derives the sink type from the type and force_append_only
// properties. force_append_only is only valid for append-only sinks.
func ParseSinkType(props map[string]string) (SinkType, error) {
	force := false
	if v, ok := props[OptForceAppendOnly]; ok {
		var err error
		if force, err = strconv.ParseBool(v); err != nil {
			return 0, errors.Wrapf(err, "parsing option %q", OptForceAppendOnly)
		}
	}
	switch t := props[OptType]; t {
	case "", TypeAppendOnly:
		if force {
			return ForceAppendOnly, nil
		}
		return AppendOnly, nil
	case TypeUpsert:
		if force {
			return 0, errors.Newf("option %q is only valid with %s=%s",
				OptForceAppendOnly, OptType, TypeAppendOnly)
		}
		return Upsert, nil
	default:
		return 0, errors.Newf("unknown sink type %q, expected %q or %q", t, TypeAppendOnly, TypeUpsert)
	}
}
