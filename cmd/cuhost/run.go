package main

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/GreatValueCreamSoda/gocuhost/cuda"
	"github.com/GreatValueCreamSoda/gocuhost/hostsim"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

type runSettings struct {
	count      int
	iterations int
	fill       uint32
	modulePath string
	kernel     string
	noProgress bool
	noVerify   bool
}

func newRunCommand() *cobra.Command {
	var s runSettings

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Copy a filled buffer through a (src, dst) kernel and time it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCopy(cmd, s)
		},
	}

	flags := cmd.Flags()
	flags.SortFlags = false
	flags.IntVarP(&s.count, "count", "n", 1024, "Number of uint32 elements in each buffer")
	flags.Uint32Var(&s.fill, "fill", 7, "Value the input buffer is filled with")
	flags.IntVarP(&s.iterations, "iterations", "i", 1, "Number of launches to time")

	var kernelSectionName string = "Kernel Options"
	flags.StringVarP(&s.modulePath, "module", "m", "", "PTX file to load. Empty uses the built-in copy module")
	addFlagToHelpGroup(flags, "module", kernelSectionName)

	flags.StringVarP(&s.kernel, "kernel", "k", "copy", "Entry point taking (src, dst) device pointers")
	addFlagToHelpGroup(flags, "kernel", kernelSectionName)

	var outputSectionName string = "Output Options"
	flags.BoolVar(&s.noProgress, "no-progress", false, "Disable the progress bar")
	addFlagToHelpGroup(flags, "no-progress", outputSectionName)

	flags.BoolVar(&s.noVerify, "no-verify", false, "Skip checking that the output matches the input")
	addFlagToHelpGroup(flags, "no-verify", outputSectionName)

	return cmd
}

func runCopy(cmd *cobra.Command, s runSettings) error {
	if s.count < cuda.BatchSize {
		return errors.Errorf("--count must be at least %d", cuda.BatchSize)
	}
	if s.iterations < 1 {
		return errors.New("--iterations must be at least 1")
	}

	drv, backend, err := openDriver()
	if err != nil {
		return err
	}
	logger.Info("using driver", "backend", backend)

	// Buffer allocation needs the context current on this OS thread, and
	// NewBuffer does not go through the Context.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	ctx, err := cuda.NewContext(drv, settings.device, cuda.SchedBlockingSync)
	if err != nil {
		return errors.WithMessage(err, "create context")
	}
	defer ctx.Close()

	var mod *cuda.Module
	if s.modulePath == "" {
		mod, err = ctx.LoadModule(hostsim.CopyPTX)
	} else {
		mod, err = ctx.LoadModuleFile(s.modulePath)
	}
	if err != nil {
		return errors.WithMessage(err, "load module")
	}
	defer mod.Close()

	fn, err := mod.Function(s.kernel)
	if err != nil {
		return errors.WithMessagef(err, "resolve kernel %s", s.kernel)
	}

	in, err := cuda.NewBuffer[uint32](drv, s.count)
	if err != nil {
		return errors.WithMessage(err, "allocate input")
	}
	defer in.Close()

	out, err := cuda.NewBuffer[uint32](drv, s.count)
	if err != nil {
		return errors.WithMessage(err, "allocate output")
	}
	defer out.Close()

	in.Fill(s.fill)

	bar := progressbar.NewOptions(
		s.iterations,
		progressbar.OptionSetDescription("Launching "+s.kernel),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetVisibility(!s.noProgress),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
	)

	latencies := make([]float64, 0, s.iterations)
	for range s.iterations {
		out.Truncate(0)

		start := time.Now()
		if err := cuda.LaunchSimple(fn, in, out); err != nil {
			return errors.WithMessagef(err, "launch %s", s.kernel)
		}
		latencies = append(latencies,
			float64(time.Since(start).Microseconds())/1000)

		_ = bar.Add(1)
	}
	_ = bar.Finish()

	if !s.noVerify {
		if err := verifyCopy(out.Slice(), s.fill); err != nil {
			return err
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d elements, %d launches, output length %d\n",
		s.kernel, in.Len(), s.iterations, out.Len())
	printSummary(os.Stderr, "Launch latency (ms)", latencies)
	return nil
}

// verifyCopy checks the whole batches of out. The tail past the last full
// batch is not written by the launch.
func verifyCopy(out []uint32, want uint32) error {
	covered := len(out) / cuda.BatchSize * cuda.BatchSize
	for i, v := range out[:covered] {
		if v != want {
			return errors.Errorf("verification failed: out[%d] = %d, expected %d",
				i, v, want)
		}
	}
	return nil
}
