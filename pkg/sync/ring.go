package sync

import (
	"encoding/binary"
	"fmt"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/utils"
	"github.com/spaolacci/murmur3"
)

// ring consistently hashes keys onto a fixed set of slots
type ring struct {
	points *treemap.Map

	// Wrap-around slot, cached since treemap.Map.Min is O(log n)
	first int
}

// newRing places replicas points for each of slots slots on the ring
func newRing(slots int, replicas uint) *ring {
	points := treemap.NewWith(utils.Int64Comparator)
	for slot := 0; slot < slots; slot++ {
		seed, _ := murmur3.Sum128([]byte(fmt.Sprintf("slot%d", slot)))

		var buf [12]byte
		binary.LittleEndian.PutUint64(buf[:8], seed)
		for i := uint(0); i < replicas; i++ {
			binary.LittleEndian.PutUint32(buf[8:], uint32(i))
			point, _ := murmur3.Sum128(buf[:])
			points.Put(int64(point), slot)
		}
	}

	r := &ring{points: points}
	if _, first := points.Min(); first != nil {
		r.first = first.(int)
	}
	return r
}

// shard returns the slot owning key
func (r *ring) shard(key []byte) int {
	hash, _ := murmur3.Sum128(key)
	if _, slot := r.points.Ceiling(int64(hash)); slot != nil {
		return slot.(int)
	}
	return r.first
}
