package tabs

// table resolves tab ids to tabs. Parent and child links are stored as ids
// and looked up here, so tabs never hold pointers to each other.
type table struct {
	byID map[ID]*Tab
}

func newTable() *table {
	return &table{byID: make(map[ID]*Tab)}
}

func (tb *table) get(id ID) *Tab {
	if tb == nil || !id.Valid() {
		return nil
	}
	return tb.byID[id]
}

func (tb *table) put(t *Tab) {
	tb.byID[t.id] = t
}

func (tb *table) remove(t *Tab) {
	if cur, ok := tb.byID[t.id]; ok && cur == t {
		delete(tb.byID, t.id)
	}
}
