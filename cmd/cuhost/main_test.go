package main

import (
	"bytes"
	"math"
	"strings"
	"testing"
)

func executeRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv(driverEnv, "")

	var out bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func Test_Run_SimulatorCopy(t *testing.T) {
	out, err := executeRoot(t, "--driver", "sim", "run", "--no-progress",
		"-n", "1024", "-i", "3", "--fill", "9")
	if err != nil {
		t.Fatalf("run failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "copy: 1024 elements, 3 launches, output length 1024") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func Test_Run_RejectsShortCount(t *testing.T) {
	if _, err := executeRoot(t, "--driver", "sim", "run", "-n", "100"); err == nil {
		t.Fatal("a count below one batch should be rejected")
	}
}

func Test_Run_UnknownKernel(t *testing.T) {
	_, err := executeRoot(t, "--driver", "sim", "run", "--no-progress",
		"--kernel", "missing")
	if err == nil || !strings.Contains(err.Error(), "CUDA_ERROR_NOT_FOUND") {
		t.Fatalf("expected a not-found error, got %v", err)
	}
}

func Test_Info_Simulator(t *testing.T) {
	out, err := executeRoot(t, "--driver", "sim", "info")
	if err != nil {
		t.Fatalf("info failed: %v", err)
	}
	for _, want := range []string{"backend        : sim", "driver version : 12.4", "devices        : 1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("info output is missing %q:\n%s", want, out)
		}
	}
}

func Test_Root_UnknownDriver(t *testing.T) {
	if _, err := executeRoot(t, "--driver", "opencl", "info"); err == nil {
		t.Fatal("an unknown driver should be rejected")
	}
}

func Test_Root_EnvSelectsDriverDefault(t *testing.T) {
	t.Setenv(driverEnv, "sim")
	if got := envOr(driverEnv, driverAuto); got != driverSim {
		t.Fatalf("expected %q, got %q", driverSim, got)
	}
}

func Test_VerifyCopy_IgnoresTail(t *testing.T) {
	out := make([]uint32, 600)
	for i := range 512 {
		out[i] = 7
	}
	if err := verifyCopy(out, 7); err != nil {
		t.Fatalf("tail past the last batch should be ignored, got %v", err)
	}

	out[100] = 0
	if err := verifyCopy(out, 7); err == nil {
		t.Fatal("a mismatch inside a batch should fail verification")
	}
}

func Test_Summarize(t *testing.T) {
	s := summarize([]float64{4, 1, 3, 2})

	if s.min != 1 || s.max != 4 {
		t.Fatalf("min/max wrong: %+v", s)
	}
	if s.avg != 2.5 || s.median != 2.5 {
		t.Fatalf("average/median wrong: %+v", s)
	}
	if math.Abs(s.stddev-math.Sqrt(1.25)) > 1e-12 {
		t.Fatalf("stddev wrong: %v", s.stddev)
	}

	if odd := summarize([]float64{5, 1, 9}); odd.median != 5 {
		t.Fatalf("odd median should be 5, got %v", odd.median)
	}
}
