package libcuda

import "fmt"

// Result is a CUresult status code as returned by every driver entry point.
// The zero value is success. Result implements error so a failing status can
// be wrapped and later matched with errors.Is.
type Result int32

const (
	Success Result = 0

	ErrorInvalidValue   Result = 1
	ErrorOutOfMemory    Result = 2
	ErrorNotInitialized Result = 3
	ErrorDeinitialized  Result = 4
	ErrorNoDevice       Result = 100
	ErrorInvalidDevice  Result = 101
	ErrorInvalidImage   Result = 200
	ErrorInvalidContext Result = 201
	ErrorMapFailed      Result = 205
	ErrorNoBinaryForGPU Result = 209
	ErrorInvalidPTX     Result = 218
	ErrorInvalidSource  Result = 300
	ErrorFileNotFound   Result = 301
	ErrorInvalidHandle  Result = 400
	ErrorNotFound       Result = 500
	ErrorNotReady       Result = 600
	ErrorIllegalAddress Result = 700
	ErrorLaunchOutOfRes Result = 701
	ErrorLaunchTimeout  Result = 702
	ErrorLaunchFailed   Result = 719
	ErrorNotPermitted   Result = 800
	ErrorNotSupported   Result = 801
	ErrorUnknown        Result = 999
)

var resultNames = map[Result]string{
	Success:             "CUDA_SUCCESS",
	ErrorInvalidValue:   "CUDA_ERROR_INVALID_VALUE",
	ErrorOutOfMemory:    "CUDA_ERROR_OUT_OF_MEMORY",
	ErrorNotInitialized: "CUDA_ERROR_NOT_INITIALIZED",
	ErrorDeinitialized:  "CUDA_ERROR_DEINITIALIZED",
	ErrorNoDevice:       "CUDA_ERROR_NO_DEVICE",
	ErrorInvalidDevice:  "CUDA_ERROR_INVALID_DEVICE",
	ErrorInvalidImage:   "CUDA_ERROR_INVALID_IMAGE",
	ErrorInvalidContext: "CUDA_ERROR_INVALID_CONTEXT",
	ErrorMapFailed:      "CUDA_ERROR_MAP_FAILED",
	ErrorNoBinaryForGPU: "CUDA_ERROR_NO_BINARY_FOR_GPU",
	ErrorInvalidPTX:     "CUDA_ERROR_INVALID_PTX",
	ErrorInvalidSource:  "CUDA_ERROR_INVALID_SOURCE",
	ErrorFileNotFound:   "CUDA_ERROR_FILE_NOT_FOUND",
	ErrorInvalidHandle:  "CUDA_ERROR_INVALID_HANDLE",
	ErrorNotFound:       "CUDA_ERROR_NOT_FOUND",
	ErrorNotReady:       "CUDA_ERROR_NOT_READY",
	ErrorIllegalAddress: "CUDA_ERROR_ILLEGAL_ADDRESS",
	ErrorLaunchOutOfRes: "CUDA_ERROR_LAUNCH_OUT_OF_RESOURCES",
	ErrorLaunchTimeout:  "CUDA_ERROR_LAUNCH_TIMEOUT",
	ErrorLaunchFailed:   "CUDA_ERROR_LAUNCH_FAILED",
	ErrorNotPermitted:   "CUDA_ERROR_NOT_PERMITTED",
	ErrorNotSupported:   "CUDA_ERROR_NOT_SUPPORTED",
	ErrorUnknown:        "CUDA_ERROR_UNKNOWN",
}

// IsNone reports whether the status is CUDA_SUCCESS.
func (r Result) IsNone() bool { return r == Success }

// Name returns the symbolic CUresult name, or CUDA_ERROR(<code>) for codes
// this package does not know about.
func (r Result) Name() string {
	if name, ok := resultNames[r]; ok {
		return name
	}
	return fmt.Sprintf("CUDA_ERROR(%d)", int32(r))
}

func (r Result) Error() string {
	return fmt.Sprintf("%s (%d)", r.Name(), int32(r))
}
