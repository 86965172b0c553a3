// Command cuhost drives a CUDA device through the gocuhost runtime, falling
// back to the hostsim software device when no NVIDIA driver is installed.
package main

import (
	"log/slog"
	"os"
	"runtime"

	"github.com/GreatValueCreamSoda/gocuhost/c/libcuda"
	"github.com/GreatValueCreamSoda/gocuhost/cuda"
	"github.com/GreatValueCreamSoda/gocuhost/hostsim"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

const (
	driverAuto = "auto"
	driverCUDA = "cuda"
	driverSim  = "sim"

	driverEnv = "CUHOST_DRIVER"
)

type globalSettings struct {
	driver     string
	logLevel   string
	device     int
	workers    int
	strictLock bool
}

var (
	settings globalSettings
	logger   = slog.New(slog.DiscardHandler)
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "cuhost",
		Short: "Run kernels on a CUDA device or the host simulator",
		// Errors are printed once by cobra; usage only on flag errors.
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(settings.logLevel)
		},
	}

	flags := root.PersistentFlags()
	flags.SortFlags = false

	flags.StringVar(&settings.driver, "driver", envOr(driverEnv, driverAuto), "Driver backend [auto, cuda, sim]. Defaults to $"+driverEnv)
	flags.IntVar(&settings.device, "device", 0, "Ordinal of the device to use")
	flags.StringVar(&settings.logLevel, "log-level", "warn", "Log level [debug, info, warn, error]")

	var simulatorSectionName string = "Simulator Options"
	flags.IntVar(&settings.workers, "sim-workers", runtime.GOMAXPROCS(0), "Blocks the simulator runs in parallel")
	addFlagToHelpGroup(flags, "sim-workers", simulatorSectionName)

	flags.BoolVar(&settings.strictLock, "sim-strict-lock", false, "Fail allocations that cannot be page-locked instead of warning")
	addFlagToHelpGroup(flags, "sim-strict-lock", simulatorSectionName)

	root.SetUsageFunc(cliUsage)
	root.AddCommand(newInfoCommand(), newRunCommand())
	return root
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func setupLogging(level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return errors.Wrapf(err, "invalid --log-level %q", level)
	}

	logger = slog.New(slog.NewTextHandler(os.Stderr,
		&slog.HandlerOptions{Level: lvl}))
	cuda.SetLogger(logger.With("pkg", "cuda"))
	return nil
}

func newSimulator() libcuda.Driver {
	return hostsim.New(hostsim.Options{
		Workers:    settings.workers,
		StrictLock: settings.strictLock,
		Logger:     logger.With("pkg", "hostsim"),
	})
}

// openDriver returns the backend selected by --driver and its name. In auto
// mode the NVIDIA driver is preferred and the simulator is used when the
// library cannot be loaded or reports no device.
func openDriver() (libcuda.Driver, string, error) {
	switch settings.driver {
	case driverSim:
		return newSimulator(), driverSim, nil
	case driverCUDA:
		drv, err := libcuda.Open()
		if err != nil {
			return nil, "", err
		}
		return drv, driverCUDA, nil
	case driverAuto:
		drv, err := libcuda.Open()
		if err == nil {
			err = checkDevice(drv)
		}
		if err != nil {
			logger.Warn("falling back to the host simulator", "err", err)
			return newSimulator(), driverSim, nil
		}
		return drv, driverCUDA, nil
	default:
		return nil, "", errors.Errorf("unknown driver %q", settings.driver)
	}
}

func checkDevice(drv libcuda.Driver) error {
	if r := drv.Init(0); !r.IsNone() {
		return errors.Wrap(r, "cuInit")
	}
	count, r := drv.DeviceGetCount()
	if !r.IsNone() {
		return errors.Wrap(r, "cuDeviceGetCount")
	}
	if count == 0 {
		return errors.Wrap(libcuda.ErrorNoDevice, "cuDeviceGetCount")
	}
	return nil
}
