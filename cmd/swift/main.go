// Command swift drives a single-rank (or, given a real MPI Transport,
// multi-rank) run of the cell-and-task engine from a parameter file
// and initial conditions, following the reference implementation's
// own flag-driven driver.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fjeanquartier/swiftsim/internal/cellgrid"
	"github.com/fjeanquartier/swiftsim/internal/engine"
	"github.com/fjeanquartier/swiftsim/internal/kernel"
	"github.com/fjeanquartier/swiftsim/internal/part"
	"github.com/fjeanquartier/swiftsim/internal/paramfile"
	"github.com/fjeanquartier/swiftsim/internal/proxy"
	"github.com/fjeanquartier/swiftsim/internal/swifterr"
	"github.com/fjeanquartier/swiftsim/internal/task"
)

var (
	paramPath = flag.String("params", "", "YAML parameter file (required unless -restart is set)")
	overrides stringList

	pinAffinity   = flag.Bool("pin", false, "pin each worker goroutine to its own CPU")
	cosmological  = flag.Bool("cosmology", false, "run in cosmological (comoving) mode")
	cooling       = flag.Bool("cooling", false, "enable the cooling task")
	dryRun        = flag.Bool("dry-run", false, "build the task graph and exit without running it")
	driftAll      = flag.Bool("drift-all", false, "drift every particle every step, not just active ones")
	selfGravity   = flag.Bool("gravity", false, "enable self-gravity tasks")
	extGravity    = flag.Bool("external-gravity", false, "enable the external-gravity kernel")
	hydro         = flag.Bool("hydro", true, "enable hydro (density/force) tasks")
	stars         = flag.Bool("stars", false, "enable star-formation bookkeeping")
	fixedSteps    = flag.Int("steps", 0, "stop after this many steps (0 = run to time end)")
	dumpParams    = flag.Bool("dump-parameters", false, "print the resolved parameter set and exit")
	restartResume = flag.Bool("restart", false, "resume from the restart directory instead of loading initial conditions")
	threads       = flag.Int("threads", 0, "worker thread count (0 = GOMAXPROCS)")
	verbose       = flag.Int("verbose", 0, "verbosity level: 0, 1 or 2")
	dumpTasksEvery = flag.Int("dump-tasks-every", 0, "write a task-timing CSV row every N steps (0 = never)")
	dumpCellsDir   = flag.String("dump-cells-dir", "", "directory to write periodic cell-grid JSON snapshots into (cmd/cellviz input)")
	dumpCellsEvery = flag.Int("dump-cells-every", 0, "write a cell-grid JSON snapshot every N steps (0 = never)")
	logFile       = flag.String("logfile", "", "write progress log to this file instead of stderr")
)

type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func init() {
	flag.Var(&overrides, "P", "override one Section:Key=Value parameter (repeatable)")
}

func main() {
	flag.Parse()

	logWriter := os.Stderr
	if *logFile != "" {
		f, err := os.Create(*logFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create log file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		logWriter = f
	}
	logger := slog.New(slog.NewTextHandler(logWriter, &slog.HandlerOptions{Level: verbosityLevel(*verbose)}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("run failed", "error", err)
		os.Exit(1)
	}
}

func verbosityLevel(v int) slog.Level {
	switch {
	case v >= 2:
		return slog.LevelDebug
	case v == 1:
		return slog.LevelInfo
	default:
		return slog.LevelWarn
	}
}

func run(logger *slog.Logger) error {
	if *paramPath == "" && !*restartResume {
		return swifterr.New(swifterr.Configuration, "missing -params (or pass -restart to resume)")
	}

	var params *paramfile.Set
	var err error
	if *paramPath != "" {
		params, err = paramfile.LoadYAML(*paramPath)
	} else {
		params, err = paramfile.LoadYAML("")
	}
	if err != nil {
		return err
	}
	for _, kv := range overrides {
		key, val, ok := strings.Cut(kv, "=")
		if !ok {
			return swifterr.New(swifterr.Configuration, fmt.Sprintf("-P %q: expected Section:Key=Value", kv))
		}
		params.Set(strings.TrimSpace(key), strings.TrimSpace(val))
	}

	if *dumpParams {
		w := bufio.NewWriter(os.Stdout)
		return params.Dump(w)
	}

	cfg := configFromParams(params)
	cfg.Pin = *pinAffinity
	cfg.DriftAll = *driftAll
	cfg.Cosmological = *cosmological
	cfg.Stars = *stars
	cfg.ExternalGravity = *extGravity
	cfg.DumpTasksEvery = *dumpTasksEvery
	if *threads > 0 {
		cfg.NumWorkers = *threads
	}
	if !*hydro {
		logger.Warn("hydro disabled: density/force tasks will still be built but run no kernel")
	}

	kernels := kernel.Identity()
	if !*hydro {
		self, pair := kernels.Self, kernels.Pair
		kernels.Self = func(c *cellgrid.Cell, sub task.Subtype) {
			if sub == task.SubtypeGrav {
				self(c, sub)
			}
		}
		kernels.Pair = func(ci, cj *cellgrid.Cell, sub task.Subtype, sid int) {
			if sub == task.SubtypeGrav {
				pair(ci, cj, sub, sid)
			}
		}
	}
	transport := proxy.NewLocalTransport()

	logger.Info("configuration", "cosmological", cfg.Cosmological, "stars", cfg.Stars,
		"external_gravity", cfg.ExternalGravity, "gravity", cfg.Build.Gravity, "cooling", cfg.Build.Cooling,
		"workers", cfg.NumWorkers, "pin", cfg.Pin)

	var eng *engine.Engine
	if *restartResume {
		eng, err = engine.Resume(cfg, kernels, transport)
	} else {
		eng, err = engine.New(loaderFromParams(params), cfg, kernels, transport)
	}
	if err != nil {
		return err
	}
	defer eng.Close()

	if *dryRun {
		logger.Info("dry run: task graph built, exiting", "step", eng.Step(), "time", eng.Time())
		return nil
	}

	start := time.Now()
	lastReport := start
	reportInterval := 10 * time.Second

	maxSteps := *fixedSteps
	for {
		if maxSteps > 0 && eng.Step() >= maxSteps {
			break
		}
		if eng.Time() >= cfg.TimeEnd {
			break
		}
		if err := eng.Advance(); err != nil {
			return err
		}
		if time.Since(lastReport) >= reportInterval {
			elapsed := time.Since(start)
			rate := float64(eng.Step()) / elapsed.Seconds()
			logger.Info("progress", "step", eng.Step(), "time", eng.Time(), "steps_per_sec", rate, "elapsed", elapsed.Round(time.Second))
			lastReport = time.Now()
		}
		if *dumpCellsDir != "" && *dumpCellsEvery > 0 && eng.Step()%*dumpCellsEvery == 0 {
			if err := writeCellDump(eng, *dumpCellsDir); err != nil {
				logger.Warn("cell-grid dump failed", "error", err)
			}
		}
	}

	elapsed := time.Since(start)
	logger.Info("run complete", "steps", eng.Step(), "time", eng.Time(), "elapsed", elapsed.Round(time.Millisecond))
	return nil
}

// configFromParams maps the flattened parameter set onto an
// engine.Config, following the same Section:Key layout
// internal/paramfile/defaults.yaml documents.
func configFromParams(p *paramfile.Set) engine.Config {
	cfg := engine.DefaultConfig()
	cfg.TimeBegin = p.Float("TimeIntegration:time_begin", cfg.TimeBegin)
	cfg.TimeEnd = p.Float("TimeIntegration:time_end", cfg.TimeEnd)
	cfg.DtMin = p.Float("TimeIntegration:dt_min", cfg.DtMin)
	cfg.DtMax = p.Float("TimeIntegration:dt_max", cfg.DtMax)

	cfg.Cell.SplitSize = p.Int("Scheduler:split_size", cfg.Cell.SplitSize)
	cfg.Cell.Stretch = p.Float("Scheduler:stretch", cfg.Cell.Stretch)
	cfg.Cell.MaxRelDx = p.Float("Scheduler:maxreldx", cfg.Cell.MaxRelDx)

	cfg.Build.Gravity = p.Bool("Scheduler:enable_gravity", *selfGravity)
	cfg.Build.Cooling = p.Bool("Scheduler:enable_cooling", *cooling)
	cfg.Build.ExtraGhost = p.Bool("Scheduler:enable_extra_ghost", false)

	cfg.SnapshotDir = p.String("Snapshots:basename", "snapshots")
	cfg.SnapshotDeltaTime = p.Float("Snapshots:delta_time", 0)

	cfg.StatisticsDir = p.String("Statistics:basename", "statistics")

	cfg.RestartSubdir = p.String("Restarts:subdir", "restart")
	cfg.RestartBasename = p.String("Restarts:basename", "swift")
	cfg.RestartEvery = p.Int("Restarts:every", 0)
	cfg.StopFileName = p.String("Restarts:stop_file", cfg.StopFileName)

	cfg.RepartitionEvery = p.Int("DomainDecomposition:repartition_every", 0)
	cfg.ImbalanceThreshold = p.Float("Scheduler:repartition_threshold", cfg.ImbalanceThreshold)
	cfg.MetisMaxWeight = p.Float("Scheduler:metis_maxweight", cfg.MetisMaxWeight)

	return cfg
}

// loaderFromParams builds the initial-conditions loader. No real IC
// reader exists in this module (see DESIGN.md: no HDF5 binding is
// reachable without cgo), so every run is seeded from a procedural
// lattice sized by the parameter file.
func loaderFromParams(p *paramfile.Set) part.Loader {
	return part.LatticeLoader{
		N:       p.Int("InitialConditions:lattice_n", 8),
		Spacing: p.Float("InitialConditions:spacing", 1.0),
		HFactor: p.Float("InitialConditions:h_factor", 1.23),
		Jitter:  p.Float("InitialConditions:jitter", 0.05),
		Seed:    int64(p.Int("InitialConditions:seed", 1)),
	}
}
