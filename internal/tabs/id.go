package tabs

import (
	"strconv"
	"sync/atomic"
)

// ID identifies a tab. Valid ids are positive; NoID marks an absent tab.
type ID int64

const NoID ID = -1

func (id ID) Valid() bool { return id > 0 }

func (id ID) String() string { return strconv.FormatInt(int64(id), 10) }

// IDGenerator hands out monotonically increasing tab ids. A TabControl is
// given one at construction so restores and tests can control numbering.
type IDGenerator struct {
	next atomic.Int64
}

func NewIDGenerator() *IDGenerator {
	g := &IDGenerator{}
	g.next.Store(1)
	return g
}

// Next returns a fresh id.
func (g *IDGenerator) Next() ID {
	return ID(g.next.Add(1) - 1)
}

// AdvancePast guarantees that ids handed out from now on are greater than max.
func (g *IDGenerator) AdvancePast(max ID) {
	for {
		cur := g.next.Load()
		if int64(max) < cur {
			return
		}
		if g.next.CompareAndSwap(cur, int64(max)+1) {
			return
		}
	}
}
