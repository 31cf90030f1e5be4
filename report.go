package gpuprobe

import (
	"fmt"
	"io"
	"math/big"
	"os"

	"gonum.org/v1/gonum/stat"
	"gopkg.in/yaml.v3"

	"github.com/devicelab/gpuprobe/accel"
)

// Report holds everything one probe run learned about a device.
type Report struct {
	Props               accel.DeviceProps
	ThreadSweep         SweepResult
	GridSweep           SweepResult
	Limits              TheoreticalLimits
	ProblemSize         int64
	MemoryCeiling       uint64
	GridThreadsPerBlock int32
}

// Render prints the human-readable report: the capability block, both
// sweeps candidate by candidate, the theoretical multiplication chain, and
// the closing six-line summary.
func (r *Report) Render(w io.Writer) {
	renderProps(w, r.Props)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Thread-block sweep (%d elements):\n", r.ProblemSize)
	for _, o := range r.ThreadSweep.Outcomes {
		if o.Succeeded {
			fmt.Fprintf(w, "  Block size %d: upload %.3f ms, kernel %.3f ms, download %.3f ms\n",
				o.Candidate, o.Times.UploadMs, o.Times.KernelMs, o.Times.DownloadMs)
			fmt.Fprintf(w, "  Block size %d: OK\n", o.Candidate)
		} else {
			fmt.Fprintf(w, "  Block size %d: FAILED (%s): %s\n", o.Candidate, o.Failure, o.Error)
		}
	}
	fmt.Fprintf(w, "Max threads per block demonstrated: %d\n", r.ThreadSweep.Max)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Grid sweep (%d threads per block, ceiling %s):\n",
		r.GridThreadsPerBlock, formatMiB(r.MemoryCeiling))
	for _, o := range r.GridSweep.Outcomes {
		if o.Skipped {
			fmt.Fprintf(w, "  Grid size %d: skipped (non-positive)\n", o.Candidate)
			continue
		}
		if o.Clamped {
			fmt.Fprintf(w, "  Grid size %d: memory clamp, using %d elements (%s)\n",
				o.Candidate, o.ProblemSize, formatMiB(o.MemBytes))
		}
		if o.Succeeded {
			fmt.Fprintf(w, "  Grid size %d: launch blocks %d, kernel %.3f ms: OK\n",
				o.Candidate, o.LaunchBlocks, o.Times.KernelMs)
		} else {
			fmt.Fprintf(w, "  Grid size %d: launch blocks %d: FAILED (%s): %s\n",
				o.Candidate, o.LaunchBlocks, o.Failure, o.Error)
		}
	}
	if r.GridSweep.Aborted {
		fmt.Fprintln(w, "  Sweep aborted: no larger candidate can succeed")
	}
	fmt.Fprintf(w, "Max blocks per grid demonstrated: %d\n", r.GridSweep.Max)
	fmt.Fprintln(w)

	renderChain(w, r.Props)
	fmt.Fprintln(w)

	total := r.Limits.MaxThreadsTotal
	if total == nil {
		total = new(big.Int)
	}
	fmt.Fprintln(w, "Summary:")
	fmt.Fprintf(w, "  Max threads per block demonstrated: %d\n", r.ThreadSweep.Max)
	fmt.Fprintf(w, "  Max blocks per grid demonstrated:   %d\n", r.GridSweep.Max)
	fmt.Fprintf(w, "  Theoretical max grid X dimension:   %d\n", r.Props.MaxGridDim[0])
	fmt.Fprintf(w, "  Theoretical max total threads:      %s\n", total.String())
	fmt.Fprintf(w, "  Max concurrent threads:             %d × %d = %d\n",
		r.Props.MultiprocessorCount, r.Props.MaxThreadsPerMP, r.Limits.MaxConcurrentThreads)
	fmt.Fprintf(w, "  Total global memory:                %s\n", formatGB(r.Props.TotalGlobalMem))
}

// RenderLimits prints the capability block and the theoretical derivation
// without any sweep results.
func RenderLimits(w io.Writer, props accel.DeviceProps) {
	renderProps(w, props)
	fmt.Fprintln(w)
	renderChain(w, props)
	limits := ComputeTheoreticalLimits(props)
	fmt.Fprintf(w, "Max concurrent threads: %d × %d = %d\n",
		props.MultiprocessorCount, props.MaxThreadsPerMP, limits.MaxConcurrentThreads)
}

func renderProps(w io.Writer, p accel.DeviceProps) {
	fmt.Fprintf(w, "Device: %s\n", p.Name)
	fmt.Fprintf(w, "  Compute capability:       %d.%d\n", p.ComputeMajor, p.ComputeMinor)
	fmt.Fprintf(w, "  Max threads per block:    %d\n", p.MaxThreadsPerBlock)
	fmt.Fprintf(w, "  Max grid dimensions:      %d x %d x %d\n",
		p.MaxGridDim[0], p.MaxGridDim[1], p.MaxGridDim[2])
	fmt.Fprintf(w, "  Total global memory:      %s\n", formatGB(p.TotalGlobalMem))
	fmt.Fprintf(w, "  Warp size:                %d\n", p.WarpSize)
	fmt.Fprintf(w, "  Multiprocessors:          %d\n", p.MultiprocessorCount)
	fmt.Fprintf(w, "  Max threads per MP:       %d\n", p.MaxThreadsPerMP)
	fmt.Fprintf(w, "  Total concurrent threads: %d\n",
		int64(p.MultiprocessorCount)*int64(p.MaxThreadsPerMP))
}

// renderChain shows all four factors combined progressively, in exact
// arithmetic.
func renderChain(w io.Writer, p accel.DeviceProps) {
	fmt.Fprintln(w, "Theoretical maximum threads:")
	fmt.Fprintf(w, "  %d threads/block\n", p.MaxThreadsPerBlock)
	prod := big.NewInt(int64(p.MaxThreadsPerBlock))
	labels := [3]string{"grid X", "grid Y", "grid Z"}
	for i, dim := range p.MaxGridDim {
		prod.Mul(prod, big.NewInt(int64(dim)))
		fmt.Fprintf(w, "  × %d (%s) = %s\n", dim, labels[i], prod.String())
	}
}

func formatGB(bytes uint64) string {
	return fmt.Sprintf("%.2f GB", float64(bytes)/(1<<30))
}

func formatMiB(bytes uint64) string {
	return fmt.Sprintf("%.2f MiB", float64(bytes)/(1<<20))
}

type yamlPhaseStats struct {
	Count    int     `yaml:"count"`
	MeanMs   float64 `yaml:"mean_ms"`
	StddevMs float64 `yaml:"stddev_ms"`
}

type yamlSweep struct {
	Max      int32           `yaml:"max_successful"`
	Aborted  bool            `yaml:"aborted,omitempty"`
	Outcomes []Outcome       `yaml:"outcomes"`
	Upload   *yamlPhaseStats `yaml:"upload_stats,omitempty"`
	Kernel   *yamlPhaseStats `yaml:"kernel_stats,omitempty"`
	Download *yamlPhaseStats `yaml:"download_stats,omitempty"`
}

type yamlDevice struct {
	Name               string   `yaml:"name"`
	ComputeCapability  string   `yaml:"compute_capability"`
	MaxThreadsPerBlock int32    `yaml:"max_threads_per_block"`
	MaxGridDim         [3]int32 `yaml:"max_grid_dim"`
	TotalGlobalMem     uint64   `yaml:"total_global_mem_bytes"`
	WarpSize           int32    `yaml:"warp_size"`
	Multiprocessors    int32    `yaml:"multiprocessors"`
	MaxThreadsPerMP    int32    `yaml:"max_threads_per_mp"`
}

type yamlReport struct {
	Device               yamlDevice `yaml:"device"`
	ProblemSize          int64      `yaml:"problem_size"`
	MemoryCeiling        uint64     `yaml:"memory_ceiling_bytes"`
	GridThreadsPerBlock  int32      `yaml:"grid_threads_per_block"`
	ThreadSweep          yamlSweep  `yaml:"thread_sweep"`
	GridSweep            yamlSweep  `yaml:"grid_sweep"`
	MaxThreadsTotal      string     `yaml:"max_threads_total"`
	MaxConcurrentThreads int64      `yaml:"max_concurrent_threads"`
}

// WriteYAML exports the structured report for downstream tooling. The exact
// thread total is emitted as a decimal string since it does not fit any
// fixed-width integer.
func (r *Report) WriteYAML(path string) error {
	data, err := yaml.Marshal(r.yamlDoc())
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

func (r *Report) yamlDoc() yamlReport {
	total := r.Limits.MaxThreadsTotal
	if total == nil {
		total = new(big.Int)
	}
	doc := yamlReport{
		Device: yamlDevice{
			Name:               r.Props.Name,
			ComputeCapability:  fmt.Sprintf("%d.%d", r.Props.ComputeMajor, r.Props.ComputeMinor),
			MaxThreadsPerBlock: r.Props.MaxThreadsPerBlock,
			MaxGridDim:         r.Props.MaxGridDim,
			TotalGlobalMem:     r.Props.TotalGlobalMem,
			WarpSize:           r.Props.WarpSize,
			Multiprocessors:    r.Props.MultiprocessorCount,
			MaxThreadsPerMP:    r.Props.MaxThreadsPerMP,
		},
		ProblemSize:         r.ProblemSize,
		MemoryCeiling:       r.MemoryCeiling,
		GridThreadsPerBlock: r.GridThreadsPerBlock,
		ThreadSweep: yamlSweep{
			Max:      r.ThreadSweep.Max,
			Aborted:  r.ThreadSweep.Aborted,
			Outcomes: r.ThreadSweep.Outcomes,
			Upload:   phaseStats(r.ThreadSweep.Outcomes, func(t PhaseTimes) float64 { return t.UploadMs }),
			Kernel:   phaseStats(r.ThreadSweep.Outcomes, func(t PhaseTimes) float64 { return t.KernelMs }),
			Download: phaseStats(r.ThreadSweep.Outcomes, func(t PhaseTimes) float64 { return t.DownloadMs }),
		},
		GridSweep: yamlSweep{
			Max:      r.GridSweep.Max,
			Aborted:  r.GridSweep.Aborted,
			Outcomes: r.GridSweep.Outcomes,
			Kernel:   phaseStats(r.GridSweep.Outcomes, func(t PhaseTimes) float64 { return t.KernelMs }),
		},
		MaxThreadsTotal:      total.String(),
		MaxConcurrentThreads: r.Limits.MaxConcurrentThreads,
	}
	return doc
}

// phaseStats summarizes one timed phase across the successful outcomes.
// Nil when nothing succeeded; stddev stays 0 for a single sample.
func phaseStats(outcomes []Outcome, sel func(PhaseTimes) float64) *yamlPhaseStats {
	var xs []float64
	for _, o := range outcomes {
		if o.Succeeded {
			xs = append(xs, sel(o.Times))
		}
	}
	if len(xs) == 0 {
		return nil
	}
	s := &yamlPhaseStats{Count: len(xs), MeanMs: stat.Mean(xs, nil)}
	if len(xs) > 1 {
		s.StddevMs = stat.StdDev(xs, nil)
	}
	return s
}
