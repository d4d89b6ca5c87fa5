package diagnostics

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// PassName identifies a compiler pass for timing.
type PassName int

const (
	Decoding PassName = iota
	Translation
	RegisterUsage
	Dominance
	SsaConstruction
	RegisterToLocal
	Optimization
	RegisterAllocation
	CodeGeneration

	PassCount
)

var passNames = [PassCount]string{
	Decoding:           "Decoding",
	Translation:        "Translation",
	RegisterUsage:      "RegisterUsage",
	Dominance:          "Dominance",
	SsaConstruction:    "SsaConstruction",
	RegisterToLocal:    "RegisterToLocal",
	Optimization:       "Optimization",
	RegisterAllocation: "RegisterAllocation",
	CodeGeneration:     "CodeGeneration",
}

func (p PassName) String() string {
	if p >= 0 && p < PassCount {
		return passNames[p]
	}
	return fmt.Sprintf("PassName(%d)", int(p))
}

// PassLogger accumulates the time spent in each pass across all
// compilations and, when enabled, logs every pass start and end.
// A nil *PassLogger is valid and does nothing.
type PassLogger struct {
	verbose bool

	mu          sync.Mutex
	accumulated [PassCount]time.Duration
}

func NewPassLogger(verbose bool) *PassLogger {
	return &PassLogger{verbose: verbose}
}

// Pass is one running pass, returned by StartPass.
type Pass struct {
	logger *PassLogger
	name   PassName
	start  time.Time
}

func (l *PassLogger) StartPass(name PassName) Pass {
	if l != nil && l.verbose {
		log.Printf("%v pass started...", name)
	}
	return Pass{logger: l, name: name, start: time.Now()}
}

// End records the pass and returns the total time spent in passes of the
// same name so far.
func (p Pass) End() time.Duration {
	l := p.logger
	if l == nil {
		return 0
	}

	elapsed := time.Since(p.start)

	l.mu.Lock()
	l.accumulated[p.name] += elapsed
	total := l.accumulated[p.name]
	l.mu.Unlock()

	if l.verbose {
		log.Printf("%v pass ended after %d ms...", p.name, total.Milliseconds())
	}
	return total
}

// Accumulated returns the total time recorded for name.
func (l *PassLogger) Accumulated(name PassName) time.Duration {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.accumulated[name]
}
