package diagnostics

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"translator/pkg/ir"
)

const (
	DefaultDumpConcurrency = 4
	DefaultDumpQueueSize   = 1024
)

// dumpJob is one pending write. Code dumps are disassembled by the writer.
type dumpJob struct {
	baseSet Set
	set     Set
	unit    string
	code    []byte
	text    string
}

// Dumper writes disassembly and IR dumps in the background.
//
// The first run against an empty store is the base run and dumps every
// unit. Later runs are diff runs and only dump units the base run also
// dumped, so the two sets line up name for name.
//
// Queueing never blocks. When the queue is full the dump is dropped and
// counted.
type Dumper struct {
	store  *DumpStore
	isBase bool
	runID  uuid.UUID

	put func(set Set, unit string, code []byte, text string) error

	mu      sync.RWMutex
	closed  bool
	jobs    chan dumpJob
	group   errgroup.Group
	dropped atomic.Int64
}

func NewDumper(store *DumpStore, concurrency int) (*Dumper, error) {
	return newDumper(store, concurrency, DefaultDumpQueueSize)
}

func newDumper(store *DumpStore, concurrency, queueSize int) (*Dumper, error) {
	isBase, err := store.IsEmpty(SetBase)
	if err != nil {
		return nil, err
	}

	d := &Dumper{
		store:  store,
		isBase: isBase,
		runID:  uuid.New(),
		put:    store.Put,
		jobs:   make(chan dumpJob, queueSize),
	}

	if err := store.SetRunID(d.codeSet(), d.runID); err != nil {
		return nil, err
	}

	if concurrency <= 0 {
		concurrency = DefaultDumpConcurrency
	}
	for i := 0; i < concurrency; i++ {
		d.group.Go(d.writer)
	}

	log.Printf("[Dump] Dumping %s set, run %s", d.codeSet(), d.runID)
	return d, nil
}

func (d *Dumper) IsBase() bool {
	return d.isBase
}

func (d *Dumper) IsDiff() bool {
	return !d.isBase
}

func (d *Dumper) RunID() uuid.UUID {
	return d.runID
}

// Dropped returns how many dumps were discarded because the queue was full.
func (d *Dumper) Dropped() int64 {
	return d.dropped.Load()
}

func (d *Dumper) codeSet() Set {
	if d.isBase {
		return SetBase
	}
	return SetDiff
}

func (d *Dumper) irSet() Set {
	if d.isBase {
		return SetBaseIR
	}
	return SetDiffIR
}

// DumpCode queues the disassembly of code under unit.
func (d *Dumper) DumpCode(unit string, code []byte) {
	d.enqueue(dumpJob{
		baseSet: SetBase,
		set:     d.codeSet(),
		unit:    unit,
		code:    append([]byte(nil), code...),
	})
}

// DumpIR queues the IR of cfg as it stands after pass. The text is rendered
// before returning since the graph keeps changing.
func (d *Dumper) DumpIR(unit string, pass PassName, cfg *ir.ControlFlowGraph) {
	d.enqueue(dumpJob{
		baseSet: SetBaseIR,
		set:     d.irSet(),
		unit:    fmt.Sprintf("%s-%v.ir", unit, pass),
		text:    ir.Dump(cfg),
	})
}

// Wait stops accepting dumps and blocks until every queued one has been
// written. Later dumps are dropped.
func (d *Dumper) Wait() error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.mu.Unlock()

	return d.group.Wait()
}

func (d *Dumper) enqueue(job dumpJob) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.dropped.Add(1)
		return
	}

	select {
	case d.jobs <- job:
	default:
		d.dropped.Add(1)
		log.Printf("[Dump] Queue full, dropping %s/%s", job.set, job.unit)
	}
}

func (d *Dumper) writer() error {
	for job := range d.jobs {
		if !d.shouldDump(job.baseSet, job.unit) {
			continue
		}

		text := job.text
		if job.code != nil {
			text = Disassemble(job.code)
		}

		if err := d.put(job.set, job.unit, job.code, text); err != nil {
			log.Printf("[Dump] Failed to write dump %s/%s: %v", job.set, job.unit, err)
		}
	}
	return nil
}

func (d *Dumper) shouldDump(baseSet Set, name string) bool {
	if d.isBase {
		return true
	}

	exists, err := d.store.Has(baseSet, name)
	if err != nil {
		log.Printf("[Dump] Failed to look up base dump %s/%s: %v", baseSet, name, err)
		return false
	}
	return exists
}
