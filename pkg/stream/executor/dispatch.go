// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package executor

import (
	"sort"

	"github.com/bits-and-blooms/bitset"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/sinkexec/pkg/stream/chunk"
	"github.com/cockroachdb/sinkexec/pkg/stream/vnode"
)

// HashDispatcher routes the rows of a stream to the parallel actors owning
// their vnodes. Rows sharing a key always go to the same actor, so an update
// pair is never split.
type HashDispatcher struct {
	key     []int
	actors  []ActorID
	bitmaps map[ActorID]vnode.Bitmap
}

// NewHashDispatcher returns a dispatcher over actors with the given vnode
// ownership. The bitmaps must be disjoint.
func NewHashDispatcher(key []int, bitmaps map[ActorID]vnode.Bitmap) *HashDispatcher {
	d := &HashDispatcher{key: key, bitmaps: make(map[ActorID]vnode.Bitmap, len(bitmaps))}
	for actor, b := range bitmaps {
		d.actors = append(d.actors, actor)
		d.bitmaps[actor] = b
	}
	sort.Slice(d.actors, func(i, j int) bool { return d.actors[i] < d.actors[j] })
	return d
}

// Actors returns the actors in ascending order.
func (d *HashDispatcher) Actors() []ActorID {
	return d.actors
}

// Bitmap returns the vnodes currently owned by actor.
func (d *HashDispatcher) Bitmap(actor ActorID) vnode.Bitmap {
	return d.bitmaps[actor]
}

// Dispatch splits c by vnode owner. Every actor gets a chunk, possibly with
// no visible row, sharing c's rows under its own visibility.
func (d *HashDispatcher) Dispatch(c *chunk.StreamChunk) (map[ActorID]*chunk.StreamChunk, error) {
	vis := make(map[ActorID]*bitset.BitSet, len(d.actors))
	for _, actor := range d.actors {
		vis[actor] = bitset.New(uint(c.Capacity()))
	}
	var err error
	c.ForEachVisible(func(i int, _ chunk.Op, row []chunk.Datum) {
		if err != nil {
			return
		}
		v := vnode.Compute(row, d.key)
		for _, actor := range d.actors {
			if d.bitmaps[actor].Contains(v) {
				vis[actor].Set(uint(i))
				return
			}
		}
		err = errors.AssertionFailedf("vnode %d of row %d is not owned by any actor", v, i)
	})
	if err != nil {
		return nil, err
	}
	res := make(map[ActorID]*chunk.StreamChunk, len(d.actors))
	for actor, v := range vis {
		res[actor] = c.WithVisibility(v)
	}
	return res, nil
}

// ApplyBarrier adopts the vnode ownership changes carried by b.
func (d *HashDispatcher) ApplyBarrier(b *Barrier) {
	for _, actor := range d.actors {
		if bitmap, ok := b.AsUpdateVnodeBitmap(actor); ok {
			d.bitmaps[actor] = bitmap
		}
	}
}
