// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package executor

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/sinkexec/pkg/stream/chunk"
	"github.com/cockroachdb/sinkexec/pkg/stream/vnode"
)

// ParseScript parses a textual message stream. Every message starts on an
// unindented line:
//
//	barrier <epoch> [kind=initial|barrier|checkpoint] [vnodes=<actor>:<bitmap>]...
//	watermark <column> <type code> <value>
//	chunk
//	    I I I
//	   + 1 2 3
//
// The indented lines following "chunk" are a chunk in the pretty format. A
// barrier is a checkpoint unless stated otherwise. Lines starting with "#"
// are ignored.
func ParseScript(script string) ([]Message, error) {
	var msgs []Message
	lines := strings.Split(script, "\n")
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		fields := strings.Fields(line)
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		if line[0] == ' ' || line[0] == '\t' {
			return nil, errors.Newf("line %d: unexpected indented line %q", i+1, line)
		}
		switch fields[0] {
		case "barrier":
			b, err := parseBarrier(fields[1:])
			if err != nil {
				return nil, errors.Wrapf(err, "line %d", i+1)
			}
			msgs = append(msgs, b)
		case "watermark":
			w, err := parseWatermark(fields[1:])
			if err != nil {
				return nil, errors.Wrapf(err, "line %d", i+1)
			}
			msgs = append(msgs, w)
		case "chunk":
			var body []string
			for i+1 < len(lines) && len(lines[i+1]) > 0 &&
				(lines[i+1][0] == ' ' || lines[i+1][0] == '\t') {
				i++
				body = append(body, lines[i])
			}
			c, err := chunk.FromPretty(strings.Join(body, "\n"))
			if err != nil {
				return nil, errors.Wrapf(err, "line %d", i+1)
			}
			msgs = append(msgs, &ChunkMessage{Chunk: c})
		default:
			return nil, errors.Newf("line %d: unknown message %q", i+1, fields[0])
		}
	}
	return msgs, nil
}

func parseBarrier(args []string) (*Barrier, error) {
	if len(args) == 0 {
		return nil, errors.New("barrier requires an epoch")
	}
	epoch, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return nil, errors.Wrap(err, "parsing epoch")
	}
	b := NewTestBarrier(epoch)
	for _, arg := range args[1:] {
		k, v, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, errors.Newf("invalid barrier argument %q", arg)
		}
		switch k {
		case "kind":
			switch v {
			case "initial":
				b.Kind = BarrierKindInitial
			case "barrier":
				b.Kind = BarrierKindBarrier
			case "checkpoint":
				b.Kind = BarrierKindCheckpoint
			default:
				return nil, errors.Newf("unknown barrier kind %q", v)
			}
		case "vnodes":
			actor, bitmap, ok := strings.Cut(v, ":")
			if !ok {
				return nil, errors.Newf("invalid vnodes %q, expected <actor>:<bitmap>", v)
			}
			id, err := strconv.ParseUint(actor, 10, 32)
			if err != nil {
				return nil, errors.Wrap(err, "parsing actor")
			}
			bm, err := vnode.Parse(bitmap)
			if err != nil {
				return nil, err
			}
			if b.Mutation == nil {
				b.Mutation = &Mutation{VnodeBitmaps: map[ActorID]vnode.Bitmap{}}
			}
			b.Mutation.VnodeBitmaps[ActorID(id)] = bm
		default:
			return nil, errors.Newf("unknown barrier argument %q", k)
		}
	}
	return b, nil
}

func parseWatermark(args []string) (*Watermark, error) {
	if len(args) != 3 {
		return nil, errors.New("watermark requires a column, a type code and a value")
	}
	col, err := strconv.Atoi(args[0])
	if err != nil {
		return nil, errors.Wrap(err, "parsing column")
	}
	c, err := chunk.FromPretty(args[1])
	if err != nil {
		return nil, err
	}
	val, err := chunk.ParseDatum(c.Types()[0], args[2])
	if err != nil {
		return nil, err
	}
	return &Watermark{ColIdx: col, Val: val}, nil
}

// FormatMessages renders msgs one per line, chunks spanning several.
func FormatMessages(msgs []Message) string {
	var b strings.Builder
	for i, m := range msgs {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(m.String())
	}
	return b.String()
}
