// Package engine owns the per-step lifecycle: collect the minimum
// next-step time by tree reduction, drift particles, decide whether to
// rebuild the cell tree or just refresh it, rebuild the task graph
// when needed, launch the worker pool against it, and reduce
// statistics across ranks. It is the only package that calls into
// every other internal package at once; everything it does is
// orchestration, never a kernel computation of its own.
package engine

import (
	"log/slog"
	"runtime"

	"github.com/fjeanquartier/swiftsim/internal/cellgrid"
	"github.com/fjeanquartier/swiftsim/internal/kernel"
	"github.com/fjeanquartier/swiftsim/internal/part"
	"github.com/fjeanquartier/swiftsim/internal/partition"
	"github.com/fjeanquartier/swiftsim/internal/proxy"
	"github.com/fjeanquartier/swiftsim/internal/restart"
	"github.com/fjeanquartier/swiftsim/internal/runner"
	"github.com/fjeanquartier/swiftsim/internal/sched"
	"github.com/fjeanquartier/swiftsim/internal/swifterr"
	"github.com/fjeanquartier/swiftsim/internal/task"
	"github.com/fjeanquartier/swiftsim/internal/telemetry"
)

// Config bundles every tunable the step loop needs, sourced from a
// loaded paramfile.Set by the driver rather than read directly here.
type Config struct {
	Cell  cellgrid.Params
	Build sched.BuildOptions

	NumWorkers int
	MaxSteal   int
	NoSteal    bool
	Pin        bool

	// DriftAll forces every task active every step instead of pruning
	// by per-cell ti_end, backing the driver's -drift-all flag.
	DriftAll bool

	// Cosmological, Stars and ExternalGravity are carried through for
	// logging only; the driver does not pick a different kernel.Set for
	// them, and the engine does not change the task graph it builds
	// based on them, beyond the Gravity/Cooling toggles already in Build.
	Cosmological    bool
	Stars           bool
	ExternalGravity bool

	// DumpTasksEvery, if nonzero, writes a task_timings.csv row for
	// every task in the graph every that many steps.
	DumpTasksEvery int

	TimeBegin, TimeEnd float64
	DtMin, DtMax       float64

	// FixedDtTicks is the number of integer timeline ticks every active
	// particle advances by once kicked, standing in for the adaptive
	// time-step criterion a force kernel would normally compute (out of
	// scope here -- see internal/kernel). This is the "fixed-dt mode"
	// the testable scenarios name explicitly.
	FixedDtTicks int64

	SnapshotDir       string
	SnapshotDeltaTime float64

	StatisticsDir string

	RestartSubdir   string
	RestartBasename string
	RestartEvery    int
	StopFileName    string

	RepartitionEvery   int
	ImbalanceThreshold float64

	// MetisMaxWeight is the ratio between a top cell's task-time share
	// and its particle-count share of the domain above which every
	// repartition vertex time weight is scaled down by the same factor
	// (see internal/partition.RescaleVertexWeights).
	MetisMaxWeight float64
}

// DefaultConfig mirrors the reference implementation's documented
// defaults where SPEC_FULL.md names them, and picks reasonable values
// for the rest.
func DefaultConfig() Config {
	return Config{
		Cell:               cellgrid.DefaultParams(),
		NumWorkers:         runtime.NumCPU(),
		MaxSteal:           4,
		TimeBegin:          0,
		TimeEnd:            1,
		DtMin:              1.0 / float64(int64(1)<<20),
		DtMax:              1.0 / float64(int64(1)<<4),
		FixedDtTicks:       1 << 16,
		ImbalanceThreshold: 1.5,
		MetisMaxWeight:     partition.DefaultMetisMaxWeight,
		StopFileName:       "stop",
	}
}

// edgeKey identifies one undirected top-cell neighbor pair in the
// running repartition weight estimator.
type edgeKey struct{ a, b task.CellRef }

func edgeKeyOf(a, b task.CellRef) edgeKey {
	if a > b {
		a, b = b, a
	}
	return edgeKey{a, b}
}

// Engine drives one rank's local simulation through the step loop.
type Engine struct {
	cfg       Config
	kernels   kernel.Set
	transport proxy.Transport
	rank, size int

	Logger *slog.Logger

	store      *part.Store
	prevParts  []part.Particle
	tree       *cellgrid.Tree
	box        [3]float64
	periodic   bool
	entropyICs bool

	pool      *task.Pool
	scheduler *sched.Scheduler
	runner    *runner.Pool

	step             int
	time             float64
	tiCurrent        int64
	nextSnapshotTime float64

	telemetry *telemetry.Collector

	vertexTime       map[task.CellRef]float64
	edgeTime         map[edgeKey]float64
	stepsSinceRepart int
}

// New loads particles via loader and wires a fresh engine: initial
// cell-tree build, initial task graph, scheduler and worker pool.
func New(loader part.Loader, cfg Config, kernels kernel.Set, transport proxy.Transport) (*Engine, error) {
	store, _, box, periodic, entropyICs, err := loader.Load()
	if err != nil {
		return nil, swifterr.Wrap(swifterr.Configuration, "loading initial conditions", err)
	}
	e, err := wire(&store, box, periodic, entropyICs, cfg, kernels, transport)
	if err != nil {
		return nil, err
	}
	e.assignInitialTimebins()
	e.nextSnapshotTime = cfg.TimeBegin + cfg.SnapshotDeltaTime
	return e, nil
}

// Resume rebuilds an engine from a restart file rather than an
// initial-conditions loader. The task graph is never restored; it is
// rebuilt fresh on the first post-restart step like any other rebuild.
func Resume(cfg Config, kernels kernel.Set, transport proxy.Transport) (*Engine, error) {
	rank, _ := transport.Rank()
	state, err := restart.Load(cfg.RestartSubdir, cfg.RestartBasename, rank)
	if err != nil {
		return nil, err
	}
	store := state.Store
	e, err := wire(&store, state.Box, state.Periodic, state.EntropyICs, cfg, kernels, transport)
	if err != nil {
		return nil, err
	}
	e.step = state.Step
	e.time = state.Time
	e.nextSnapshotTime = state.Time + cfg.SnapshotDeltaTime
	return e, nil
}

func wire(store *part.Store, box [3]float64, periodic, entropyICs bool, cfg Config, kernels kernel.Set, transport proxy.Transport) (*Engine, error) {
	if cfg.NumWorkers < 1 {
		cfg.NumWorkers = 1
	}
	globalMaxH := maxH(store.Parts)
	tree := cellgrid.Rebuild(store, box, periodic, globalMaxH, cfg.Cell)

	pool := task.NewPool(tree.NumCells()*4, tree.NumCells()*16)
	sched.Build(pool, tree, cfg.Build)
	pool.Compact()
	if err := pool.Rank(); err != nil {
		return nil, swifterr.Wrap(swifterr.Invariant, "ranking initial task graph", err)
	}

	rank, size := transport.Rank()

	e := &Engine{
		cfg:        cfg,
		kernels:    kernels,
		transport:  transport,
		rank:       rank,
		size:       size,
		Logger:     slog.Default(),
		store:      store,
		tree:       tree,
		box:        box,
		periodic:   periodic,
		entropyICs: entropyICs,
		pool:       pool,
		vertexTime: make(map[task.CellRef]float64),
		edgeTime:   make(map[edgeKey]float64),
	}
	e.prevParts = append([]part.Particle(nil), store.Parts...)

	pool.Reweight(e.taskCounts, e.taskIsLocal)
	e.scheduler = sched.New(pool, tree, cfg.NumWorkers, task.MaskAll, task.MaskAll, cfg.MaxSteal, cfg.NoSteal)
	e.runner = runner.NewPool(e.scheduler, tree, store, kernels)
	e.runner.Pin = cfg.Pin

	telemetryCollector, err := telemetry.NewCollector(cfg.StatisticsDir)
	if err != nil {
		return nil, err
	}
	e.telemetry = telemetryCollector

	return e, nil
}

// Store returns the particle arrays this engine is driving, for
// callers (tests, the driver's -dump flags) that need direct access.
func (e *Engine) Store() *part.Store { return e.store }

// Tree returns the current cell tree.
func (e *Engine) Tree() *cellgrid.Tree { return e.tree }

// Step returns the run's current step index.
func (e *Engine) Step() int { return e.step }

// Time returns the run's current simulation time.
func (e *Engine) Time() float64 { return e.time }

// Close releases the engine's open telemetry files.
func (e *Engine) Close() error {
	if e.telemetry != nil {
		return e.telemetry.Close()
	}
	return nil
}

// Advance runs exactly one step of the fixed ten-step sequence.
func (e *Engine) Advance() error {
	minTi := e.reduceMinTiEnd()
	candidateTime := e.timeOf(minTi)

	if err := e.maybeSnapshot(candidateTime); err != nil {
		return err
	}

	dt := candidateTime - e.time
	driftStore(e.store, dt)
	e.time = candidateTime
	e.tiCurrent = minTi

	for _, top := range e.tree.TopCells() {
		e.tree.RefreshDrift(top, e.store, e.prevParts)
	}

	if e.shouldForceRepart() {
		e.repartition()
	} else {
		e.accumulateWeights()
	}

	if e.needsRebuild() {
		if err := e.rebuildAll(); err != nil {
			return err
		}
	} else {
		e.markSkips()
	}

	e.scheduler.Start(e.cfg.NumWorkers)
	e.runner.Launch(e.cfg.NumWorkers)

	if err := e.checkInvariants(); err != nil {
		return err
	}

	stats := e.reduceStatistics()
	if e.telemetry != nil {
		if err := e.telemetry.WriteStep(stats, 0); err != nil {
			return err
		}
		if e.cfg.DumpTasksEvery > 0 && e.step%e.cfg.DumpTasksEvery == 0 {
			if err := e.telemetry.WriteTasks(e.taskTimings()); err != nil {
				return err
			}
		}
	}

	e.advanceActiveTimebins()
	e.step++
	return nil
}

// Run drives Advance in a loop until maxSteps is reached (0 means
// unbounded), the configured time end is reached, or the stop-file
// protocol fires.
func (e *Engine) Run(maxSteps int) error {
	for {
		if maxSteps > 0 && e.step >= maxSteps {
			return nil
		}
		if e.time >= e.cfg.TimeEnd {
			return nil
		}
		if err := e.Advance(); err != nil {
			return err
		}
		if e.Logger != nil {
			e.Logger.Info("step complete", "step", e.step, "time", e.time, "waiting", e.scheduler.Waiting())
		}
		if e.cfg.RestartEvery > 0 && e.step%e.cfg.RestartEvery == 0 {
			if err := e.saveRestart(); err != nil {
				return err
			}
		}
		if e.cfg.StopFileName != "" && restart.StopFilePresent(e.cfg.RestartSubdir, e.cfg.StopFileName) {
			if err := e.saveRestart(); err != nil {
				return err
			}
			return restart.ClearStopFile(e.cfg.RestartSubdir, e.cfg.StopFileName)
		}
	}
}

func (e *Engine) saveRestart() error {
	state := restart.State{
		Step:       e.step,
		Time:       e.time,
		Box:        e.box,
		Periodic:   e.periodic,
		EntropyICs: e.entropyICs,
		Store:      *e.store,
	}
	return restart.Save(e.cfg.RestartSubdir, e.cfg.RestartBasename, e.rank, state)
}
