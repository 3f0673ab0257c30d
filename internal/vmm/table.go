package vmm

import "github.com/google/btree"

type tableEntry struct {
	key MappingKey
	val MappingValue
}

func lessEntry(a, b tableEntry) bool { return a.key.Less(b.key) }

// Table maps a MappingKey to the page pair bound at it. Entries are ordered by
// key. Table is not safe for concurrent use; the Manager guards it.
type Table struct {
	tree *btree.BTreeG[tableEntry]
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{tree: btree.NewG[tableEntry](16, lessEntry)}
}

// Get returns the value stored at key.
func (t *Table) Get(key MappingKey) (MappingValue, bool) {
	e, ok := t.tree.Get(tableEntry{key: key})
	return e.val, ok
}

// Has reports whether key is present.
func (t *Table) Has(key MappingKey) bool {
	return t.tree.Has(tableEntry{key: key})
}

// Insert stores val at key. It reports false and leaves the table untouched
// when key is already present.
func (t *Table) Insert(key MappingKey, val MappingValue) bool {
	if t.Has(key) {
		return false
	}
	t.tree.ReplaceOrInsert(tableEntry{key: key, val: val})
	return true
}

// Len returns the number of entries.
func (t *Table) Len() int { return t.tree.Len() }

// Ascend calls fn for every entry in key order until fn returns false.
func (t *Table) Ascend(fn func(MappingKey, MappingValue) bool) {
	t.tree.Ascend(func(e tableEntry) bool { return fn(e.key, e.val) })
}

// Clear removes every entry.
func (t *Table) Clear() { t.tree.Clear(false) }
