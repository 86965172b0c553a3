package libcuda_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/GreatValueCreamSoda/gocuhost/c/libcuda"
)

func Test_Result_IsNone(t *testing.T) {
	if !libcuda.Success.IsNone() {
		t.Fatal("Success should report IsNone() == true")
	}

	if libcuda.ErrorInvalidValue.IsNone() {
		t.Fatal("non-zero Result should report IsNone() == false")
	}
}

func Test_Result_Name(t *testing.T) {
	if got := libcuda.ErrorNotFound.Name(); got != "CUDA_ERROR_NOT_FOUND" {
		t.Fatalf("unexpected name %q", got)
	}
	if got := libcuda.Result(12345).Name(); got != "CUDA_ERROR(12345)" {
		t.Fatalf("unknown codes should render numerically, got %q", got)
	}
}

func Test_Result_Error(t *testing.T) {
	var err error = libcuda.ErrorLaunchFailed

	if !strings.Contains(err.Error(), "CUDA_ERROR_LAUNCH_FAILED") ||
		!strings.Contains(err.Error(), "719") {
		t.Fatalf("error text should carry name and code, got %q", err.Error())
	}

	var r libcuda.Result
	if !errors.As(err, &r) || r != libcuda.ErrorLaunchFailed {
		t.Fatal("a Result should be recoverable with errors.As")
	}
}

func Test_Open_UnavailableIsTyped(t *testing.T) {
	drv, err := libcuda.Open()
	if err != nil {
		if !errors.Is(err, libcuda.ErrDriverUnavailable) {
			t.Fatalf("Open failures should wrap ErrDriverUnavailable, got %v", err)
		}
		t.Skip("no CUDA driver on this host")
	}

	again, err := libcuda.Open()
	if err != nil || again != drv {
		t.Fatal("Open should return the same driver on every call")
	}
}
