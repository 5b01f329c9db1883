package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/daniacca/reactorsim/internal/montecarlo"
	"github.com/daniacca/reactorsim/internal/suggest"
	"github.com/daniacca/reactorsim/internal/transport"
)

var modes = []string{"transport", "pi"}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("reactorsim-sim", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		mode       = fs.String("mode", "transport", "simulation to run: transport or pi")
		configFile = fs.String("config", "", "path to a gcfg run file (optional)")
		ticks      = fs.Int("ticks", 1000, "number of ticks to run (transport)")
		particles  = fs.Int("particles", 0, "initial particle count; overrides the run file when > 0")
		fission    = fs.Float64("fission", -1, "fission probability in [0, 0.5]; overrides the run file when >= 0")
		seed       = fs.Int64("seed", 0, "random seed; overrides the run file when non-zero")
		every      = fs.Int("every", 0, "print a progress line every N ticks; 0 disables")
		samples    = fs.Int("samples", 100000, "number of points to sample (pi)")
	)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	switch *mode {
	case "transport":
		cfg := transport.DefaultReactorConfig()
		if *configFile != "" {
			loaded, err := transport.LoadReactorConfigFile(*configFile)
			if err != nil {
				fmt.Fprintf(stderr, "error loading run file: %v\n", err)
				return 1
			}
			cfg = loaded
		}
		if *particles > 0 {
			cfg.InitialParticles = *particles
			cfg.Particles = nil
		}
		if *fission >= 0 {
			cfg.FissionProbability = *fission
		}
		if *seed != 0 {
			cfg.Seed = *seed
		}
		if *ticks < 0 {
			fmt.Fprintf(stderr, "error: -ticks must not be negative\n")
			return 1
		}
		if err := runTransport(cfg, *ticks, *every, stdout); err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return 1
		}
	case "pi":
		if *samples <= 0 {
			fmt.Fprintf(stderr, "error: -samples must be positive\n")
			return 1
		}
		runPi(*seed, *samples, stdout)
	default:
		fmt.Fprintf(stderr, "error: unknown mode %q%s\n", *mode, suggest.Hint(*mode, modes))
		return 1
	}
	return 0
}

func runTransport(cfg transport.ReactorConfig, ticks, every int, out io.Writer) error {
	r, err := transport.NewReactor("simulation", cfg)
	if err != nil {
		return err
	}

	peak := r.State().Population
	for i := 0; i < ticks; i++ {
		res := r.Step()
		peak = max(peak, len(res.Population))
		if every > 0 && res.Tick%int64(every) == 0 {
			fmt.Fprintf(out, "tick=%d population=%d fissions=%d captures=%d extinctions=%d\n",
				res.Tick, len(res.Population), res.Totals.Fissions, res.Totals.Captures, res.Totals.Extinctions)
		}
	}

	printSummary(out, r.State(), peak)
	return nil
}

func printSummary(out io.Writer, st transport.ReactorState, peak int) {
	fmt.Fprintf(out, "Simulation finished (ticks=%d, fission=%.3f)\n", st.Tick, st.FissionProbability)
	fmt.Fprintf(out, "  population:  %d (peak %d)\n", st.Population, peak)
	fmt.Fprintf(out, "  k_eff:       %.3f\n", st.KEff)
	fmt.Fprintf(out, "  scatters:    %d\n", st.Tally.Scatters)
	fmt.Fprintf(out, "  fissions:    %d\n", st.Tally.Fissions)
	fmt.Fprintf(out, "  captures:    %d\n", st.Tally.Captures)
	fmt.Fprintf(out, "  extinctions: %d\n", st.Tally.Extinctions)
}

func runPi(seed int64, samples int, out io.Writer) {
	e := montecarlo.NewSeededEstimator(seed)
	c := e.SampleN(samples)
	fmt.Fprintf(out, "Estimated pi = %.6f (inside=%d, total=%d)\n", c.Estimate(), c.Inside, c.Total)
}
