package diagnostics

import (
	"bytes"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"translator/pkg/errors"
)

// Set is a group of dumps from one compiler run.
type Set string

const (
	SetBase   Set = "base"
	SetDiff   Set = "diff"
	SetBaseIR Set = "base-ir"
	SetDiffIR Set = "diff-ir"
)

var Sets = []Set{SetBase, SetDiff, SetBaseIR, SetDiffIR}

func ParseSet(name string) (Set, error) {
	for _, set := range Sets {
		if string(set) == name {
			return set, nil
		}
	}
	return "", fmt.Errorf("unknown dump set %q", name)
}

const metaPrefix = "meta/"

// Record is one stored dump.
type Record struct {
	// Fingerprint is the blake2b-256 of the machine code, zero for IR dumps.
	Fingerprint [32]byte
	Text        string
}

// DumpStore keeps dumps in pebble under "<set>/<unit>". Each value is the
// 32-byte fingerprint followed by the dump text.
type DumpStore struct {
	db *pebble.DB
}

func OpenDumpStore(path string) (*DumpStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "opening dump store %s", path)
	}
	return &DumpStore{db: db}, nil
}

// OpenMemDumpStore opens a store that lives only in memory.
func OpenMemDumpStore() (*DumpStore, error) {
	db, err := pebble.Open("", &pebble.Options{FS: vfs.NewMem()})
	if err != nil {
		return nil, errors.Wrap(err, "opening in-memory dump store")
	}
	return &DumpStore{db: db}, nil
}

func unitKey(set Set, unit string) []byte {
	return []byte(string(set) + "/" + unit)
}

// Put stores text for unit. code may be nil for dumps that are not machine
// code.
func (s *DumpStore) Put(set Set, unit string, code []byte, text string) error {
	var fingerprint [32]byte
	if code != nil {
		fingerprint = blake2b.Sum256(code)
	}

	value := make([]byte, 0, len(fingerprint)+len(text))
	value = append(value, fingerprint[:]...)
	value = append(value, text...)

	return s.db.Set(unitKey(set, unit), value, pebble.NoSync)
}

func (s *DumpStore) Get(set Set, unit string) (Record, bool, error) {
	value, closer, err := s.db.Get(unitKey(set, unit))
	if errors.Is(err, pebble.ErrNotFound) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	defer closer.Close()

	if len(value) < 32 {
		return Record{}, false, fmt.Errorf("dump %s/%s is truncated", set, unit)
	}

	var record Record
	copy(record.Fingerprint[:], value[:32])
	record.Text = string(value[32:])
	return record, true, nil
}

func (s *DumpStore) Has(set Set, unit string) (bool, error) {
	_, closer, err := s.db.Get(unitKey(set, unit))
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	closer.Close()
	return true, nil
}

// List returns the unit names in set, sorted.
func (s *DumpStore) List(set Set) ([]string, error) {
	prefix := []byte(string(set) + "/")

	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var units []string
	for iter.First(); iter.Valid(); iter.Next() {
		units = append(units, string(bytes.TrimPrefix(iter.Key(), prefix)))
	}
	return units, iter.Error()
}

// IsEmpty reports whether set holds no dumps.
func (s *DumpStore) IsEmpty(set Set) (bool, error) {
	prefix := []byte(string(set) + "/")

	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return false, err
	}
	defer iter.Close()

	return !iter.First(), iter.Error()
}

// SetRunID records which run last wrote to set.
func (s *DumpStore) SetRunID(set Set, id uuid.UUID) error {
	return s.db.Set([]byte(metaPrefix+string(set)), id[:], pebble.Sync)
}

func (s *DumpStore) RunID(set Set) (uuid.UUID, bool, error) {
	value, closer, err := s.db.Get([]byte(metaPrefix + string(set)))
	if errors.Is(err, pebble.ErrNotFound) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, err
	}
	defer closer.Close()

	id, err := uuid.FromBytes(value)
	if err != nil {
		return uuid.Nil, false, err
	}
	return id, true, nil
}

func (s *DumpStore) Flush() error {
	return s.db.Flush()
}

func (s *DumpStore) Close() error {
	return s.db.Close()
}

func prefixUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	end[len(end)-1]++
	return end
}
