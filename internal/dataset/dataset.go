package dataset

import (
	"sync"
	"time"
)

// Dataset is an immutable snapshot of records produced by one load. Its
// version increases with each load started by a Manager.
type Dataset struct {
	version  uint64
	source   string
	fallback bool
	loadErr  error
	loadedAt time.Time

	records []Record
	index   map[string]int

	mu     sync.Mutex
	ranges map[rangeKey]Range
}

type rangeKey struct {
	key      string
	fallback Range
}

// New snapshots records. The slice is owned by the Dataset afterwards.
func New(version uint64, source string, records []Record) *Dataset {
	idx := make(map[string]int, len(records))
	for i, r := range records {
		if _, dup := idx[r.ID]; !dup {
			idx[r.ID] = i
		}
	}
	return &Dataset{
		version:  version,
		source:   source,
		loadedAt: time.Now(),
		records:  records,
		index:    idx,
		ranges:   make(map[rangeKey]Range),
	}
}

func newFallback(version uint64, records []Record, cause error) *Dataset {
	ds := New(version, "fallback", cloneRecords(records))
	ds.fallback = true
	ds.loadErr = cause
	return ds
}

// Version is the load sequence number.
func (d *Dataset) Version() uint64 { return d.version }

// Source names where the records came from.
func (d *Dataset) Source() string { return d.source }

// IsFallback reports whether the load failed and the sample set was used.
func (d *Dataset) IsFallback() bool { return d.fallback }

// LoadErr is the failure that caused a fallback, or nil.
func (d *Dataset) LoadErr() error { return d.loadErr }

// LoadedAt is when the snapshot was built.
func (d *Dataset) LoadedAt() time.Time { return d.loadedAt }

// Len is the record count.
func (d *Dataset) Len() int { return len(d.records) }

// Records returns the records in load order. Callers must not modify them.
func (d *Dataset) Records() []Record { return d.records }

// Lookup finds a record by cell id. The first of any duplicates wins.
func (d *Dataset) Lookup(id string) (Record, bool) {
	i, ok := d.index[id]
	if !ok {
		return Record{}, false
	}
	return d.records[i], true
}

// Range is FindRange over this snapshot, memoised per key.
func (d *Dataset) Range(key string, fallback Range) Range {
	k := rangeKey{key: key, fallback: fallback}
	d.mu.Lock()
	defer d.mu.Unlock()
	if r, ok := d.ranges[k]; ok {
		return r
	}
	r := FindRange(d.records, key, fallback)
	d.ranges[k] = r
	return r
}
