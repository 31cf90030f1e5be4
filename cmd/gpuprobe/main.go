// Command gpuprobe discovers a compute accelerator's execution limits by
// sweeping launch configurations against a real kernel. With no flags it
// runs the fixed probe procedure on the best available device and prints
// the report to stdout.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/devicelab/gpuprobe"
	"github.com/devicelab/gpuprobe/accel"
	"github.com/devicelab/gpuprobe/accel/cpu"
	"github.com/devicelab/gpuprobe/accel/cuda"
	"github.com/devicelab/gpuprobe/accel/detect"
)

var (
	backend     string // Device backend: auto, cpu, or cuda
	deviceIndex int    // CUDA device index
	profileName string // Software device profile: preset name or YAML path
	seed        int64  // Seed for host input generation
	reportPath  string // Optional YAML report destination
	logLevel    string // Log verbosity level
)

var rootCmd = &cobra.Command{
	Use:     "gpuprobe",
	Short:   "Empirical launch-limit probe for compute accelerators",
	Version: gpuprobe.Version(),
}

// runCmd executes the full probe procedure: both sweeps plus the
// theoretical derivation.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full probe and print the report",
	Run: func(cmd *cobra.Command, args []string) {
		setupLogging()

		dev, err := openDevice()
		if err != nil {
			logrus.Fatalf("Opening device: %v", err)
		}
		defer func() {
			if cerr := dev.Close(); cerr != nil {
				logrus.Warnf("Closing device: %v", cerr)
			}
		}()
		logrus.Infof("Probing %s", dev.Props().Name)

		report, err := gpuprobe.Run(dev, gpuprobe.Options{Seed: seed})
		if err != nil {
			logrus.Fatalf("Probe failed: %v", err)
		}
		report.Render(os.Stdout)

		if reportPath != "" {
			if err := report.WriteYAML(reportPath); err != nil {
				logrus.Fatalf("Exporting report: %v", err)
			}
			logrus.Infof("Report written to %s", reportPath)
		}
	},
}

// limitsCmd reads capabilities and derives the theoretical maxima without
// launching anything.
var limitsCmd = &cobra.Command{
	Use:   "limits",
	Short: "Print device capabilities and theoretical limits, no sweeps",
	Run: func(cmd *cobra.Command, args []string) {
		setupLogging()

		dev, err := openDevice()
		if err != nil {
			logrus.Fatalf("Opening device: %v", err)
		}
		defer func() {
			if cerr := dev.Close(); cerr != nil {
				logrus.Warnf("Closing device: %v", cerr)
			}
		}()

		gpuprobe.RenderLimits(os.Stdout, dev.Props())
	},
}

// detectCmd lists GPUs visible to the management library.
var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "List GPUs visible to the management library",
	Run: func(cmd *cobra.Command, args []string) {
		setupLogging()

		gpus, err := detect.Probe()
		if err != nil {
			logrus.Fatalf("GPU discovery failed: %v", err)
		}
		if len(gpus) == 0 {
			fmt.Println("No GPUs detected; the software backend is available.")
			return
		}
		for _, g := range gpus {
			fmt.Printf("GPU %d: %s (compute %d.%d, %.2f GB, driver %s)\n",
				g.Index, g.Name, g.ComputeMajor, g.ComputeMinor,
				float64(g.MemoryBytes)/(1<<30), g.DriverVersion)
		}
	},
}

func setupLogging() {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", logLevel)
	}
	logrus.SetLevel(level)
	logrus.SetOutput(os.Stderr)
}

// openDevice resolves the backend selection. Auto prefers a real GPU when
// discovery finds one and the CUDA driver opens it, and otherwise falls
// back to the software device.
func openDevice() (accel.Device, error) {
	switch strings.ToLower(backend) {
	case "cpu":
		return openCPU()
	case "cuda":
		return cuda.Open(deviceIndex)
	case "auto":
		if profileName == "" && detect.Available() {
			dev, err := cuda.Open(deviceIndex)
			if err == nil {
				return dev, nil
			}
			logrus.Warnf("CUDA device unavailable, using software device: %v", err)
		}
		return openCPU()
	default:
		return nil, fmt.Errorf("unknown backend %q (want auto, cpu, or cuda)", backend)
	}
}

func openCPU() (accel.Device, error) {
	profile, err := cpu.ResolveProfile(profileName)
	if err != nil {
		return nil, err
	}
	return cpu.Open(profile)
}

func init() {
	for _, cmd := range []*cobra.Command{runCmd, limitsCmd} {
		cmd.Flags().StringVar(&backend, "backend", "auto", "Device backend (auto, cpu, cuda)")
		cmd.Flags().IntVar(&deviceIndex, "device", 0, "CUDA device index")
		cmd.Flags().StringVar(&profileName, "profile", "",
			fmt.Sprintf("Software device profile: preset (%s) or YAML path", strings.Join(cpu.Presets(), ", ")))
	}
	runCmd.Flags().Int64Var(&seed, "seed", gpuprobe.DefaultSeed, "Seed for host input generation")
	runCmd.Flags().StringVar(&reportPath, "report", "", "Write the structured report to this YAML file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "warning",
		"Log level (trace, debug, info, warn, error, fatal, panic)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(limitsCmd)
	rootCmd.AddCommand(detectCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
