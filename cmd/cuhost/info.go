package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print the driver version and the devices it reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printInfo(cmd)
		},
	}
}

func printInfo(cmd *cobra.Command) error {
	drv, backend, err := openDriver()
	if err != nil {
		return err
	}

	if r := drv.Init(0); !r.IsNone() {
		return errors.Wrap(r, "cuInit")
	}
	version, r := drv.DriverGetVersion()
	if !r.IsNone() {
		return errors.Wrap(r, "cuDriverGetVersion")
	}
	count, r := drv.DeviceGetCount()
	if !r.IsNone() {
		return errors.Wrap(r, "cuDeviceGetCount")
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "backend        : %s\n", backend)
	fmt.Fprintf(out, "driver version : %d.%d\n", version/1000, version%1000/10)
	fmt.Fprintf(out, "devices        : %d\n", count)

	for i := range count {
		dev, r := drv.DeviceGet(i)
		if !r.IsNone() {
			return errors.Wrapf(r, "cuDeviceGet(%d)", i)
		}
		name, r := drv.DeviceGetName(dev)
		if !r.IsNone() {
			return errors.Wrapf(r, "cuDeviceGetName(%d)", i)
		}
		fmt.Fprintf(out, "  [%d] %s\n", i, name)
	}
	return nil
}
