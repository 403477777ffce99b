// Package sim wires a core's branch predictor, Fetch Target Queue,
// decoupled front end, uop cache, uop queue and confidence estimator
// together and drives the cooperative, single-threaded multi-core cycle
// loop. Grounded on timing/core/core.go's thin Core-wrapping-Pipeline
// style, generalized to N cores sharing one cooperative scheduler.
package sim

import (
	"fmt"
	"io"

	"github.com/sarchlab/frontendsim/bp"
	"github.com/sarchlab/frontendsim/confidence"
	"github.com/sarchlab/frontendsim/config"
	"github.com/sarchlab/frontendsim/dfe"
	"github.com/sarchlab/frontendsim/ftq"
	"github.com/sarchlab/frontendsim/op"
	"github.com/sarchlab/frontendsim/stats"
	"github.com/sarchlab/frontendsim/uopcache"
	"github.com/sarchlab/frontendsim/uopqueue"
)

// Core is one simulated core's front-end context: every component a DFE
// needs, plus any secondary DFEs for NUM_BPS > 1.
type Core struct {
	ProcID uint32

	Pool       *op.Pool
	Predictor  *bp.Predictor
	Queue      *ftq.FTQ
	DFE        *dfe.DFE
	UopCache   *uopcache.Cache
	UopQueue   *uopqueue.Queue
	Confidence *confidence.Estimator
	Counters   *stats.Counters

	secondary []*Core

	trace io.Writer // nil unless verbose tracing is enabled
}

// NewCore builds a fully-wired core from cfg, with source supplying the
// op stream starting at startPC.
func NewCore(procID uint32, cfg *config.Config, source dfe.OpSource, startPC uint64) *Core {
	pool := op.NewPool()
	predictor := bp.New(cfg.BPConfig())
	queue := ftq.New(cfg.FTQCapacity)
	conf := confidence.New(cfg.ConfidenceConfig())

	d := dfe.New(cfg.DFEConfig(), queue, predictor, conf, pool, source, startPC)

	return &Core{
		ProcID:     procID,
		Pool:       pool,
		Predictor:  predictor,
		Queue:      queue,
		DFE:        d,
		UopCache:   uopcache.New(cfg.UopCacheConfig()),
		UopQueue:   uopqueue.New(cfg.UopQueueConfig(), pool),
		Confidence: conf,
		Counters:   stats.NewCounters(),
	}
}

// Trace enables per-event diagnostic output to w, mirroring the C
// original's DEBUG(proc_id, ...) macro discipline: a conditional,
// formatted line, never a logging library dependency.
func (c *Core) Trace(w io.Writer) { c.trace = w }

func (c *Core) tracef(format string, args ...any) {
	if c.trace == nil {
		return
	}
	fmt.Fprintf(c.trace, "core %d: "+format+"\n", append([]any{c.ProcID}, args...)...)
}

// Start activates the core's front end at startPC.
func (c *Core) Start(startPC uint64) {
	c.DFE.Start(startPC)
	c.tracef("started at pc=0x%x", startPC)
}

// Tick runs one cycle of this core's front end: the DFE's build loop,
// draining completed Fetch Targets into the uop cache/queue. Mirrors
// timing/core/core.go's Tick delegating straight to its Pipeline, except
// here the "pipeline" is the DFE's fetch-side FSM.
func (c *Core) Tick() {
	defer c.recoverFatal()

	c.DFE.Update()

	for c.Queue.Len() > 0 && c.UopQueue.CanPush(len(c.Queue.At(0).Ops)) {
		f := c.Queue.PopHead()
		if _, hit := c.UopCache.Lookup(f.Static); !hit {
			c.UopCache.Insert(f)
			c.Counters.Inc("uop_cache_insertions", 1)
		} else {
			c.Counters.Inc("uop_cache_hits", 1)
		}
		for _, o := range f.Ops {
			c.UopQueue.Push(o)
		}
		c.Counters.Inc("fts_drained", 1)
	}
}

// recoverFatal turns any invariant-violation panic raised deep inside this
// cycle's component calls into a counted, fatal-on-report condition:
// invariant violations are programmer errors, not recoverable runtime
// conditions, so Core doesn't try to paper over them — it records that
// one happened and re-panics so the caller (cmd/frontendsim) can report
// it and exit.
func (c *Core) recoverFatal() {
	if r := recover(); r != nil {
		c.Counters.Inc("fatal_invariant_violations", 1)
		panic(r)
	}
}

// Retire signals the front end that op o has retired architecturally,
// clearing the recovery snapshot it held.
func (c *Core) Retire(o *op.Op) {
	c.DFE.Retire(o)
	c.Pool.Free(o)
}

// Recover signals a scheduled recovery for op o, resolved to
// resolvedTarget, flushing speculative state downstream of it.
func (c *Core) Recover(o *op.Op, resolvedTarget uint64) {
	c.UopQueue.Flush()
	c.DFE.Recover(o, resolvedTarget)
	c.Counters.Inc("recoveries", 1)
	c.tracef("recovered to pc=0x%x", resolvedTarget)
}

// Sim is the top-level cooperative, single-threaded multi-core simulator:
// every core ticks once per global cycle, in index order, with no locks
// and no cross-core concurrency.
type Sim struct {
	Cores []*Core
	Cycle uint64
}

// New builds a Sim over cores.
func New(cores ...*Core) *Sim {
	return &Sim{Cores: cores}
}

// Tick advances every core by one cycle, in a fixed order.
func (s *Sim) Tick() {
	s.Cycle++
	for _, c := range s.Cores {
		c.Tick()
	}
}

// Run ticks the simulator until every core's front end is inactive or
// maxCycles is reached (0 means unbounded).
func (s *Sim) Run(maxCycles uint64) {
	for maxCycles == 0 || s.Cycle < maxCycles {
		s.Tick()
		if s.allInactive() {
			return
		}
	}
}

func (s *Sim) allInactive() bool {
	for _, c := range s.Cores {
		if c.DFE.State() != dfe.Inactive {
			return false
		}
	}
	return true
}
