// Package ffi binds the peer-connection subset of the libwebrtc shim through
// purego. No cgo is required.
package ffi

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
)

var (
	// ErrLibraryNotLoaded is returned when the shim library hasn't been loaded.
	ErrLibraryNotLoaded = errors.New("libwebrtc_shim library not loaded")

	// ErrLibraryNotFound is returned when the shim library cannot be found.
	ErrLibraryNotFound = errors.New("libwebrtc_shim library not found")

	// FFI error sentinels matching shim error codes.
	ErrInvalidParam        = errors.New("invalid parameter")
	ErrInitFailed          = errors.New("initialization failed")
	ErrOutOfMemory         = errors.New("out of memory")
	ErrNotSupported        = errors.New("not supported")
	ErrBufferTooSmall      = errors.New("buffer too small")
	ErrNotFound            = errors.New("not found")
	ErrRenegotiationNeeded = errors.New("renegotiation needed")
)

// Error codes from shim (int32 to match C int)
const (
	ShimOK                     int32 = 0
	ShimErrInvalidParam        int32 = -1
	ShimErrInitFailed          int32 = -2
	ShimErrOutOfMemory         int32 = -5
	ShimErrNotSupported        int32 = -6
	ShimErrBufferTooSmall      int32 = -8
	ShimErrNotFound            int32 = -9
	ShimErrRenegotiationNeeded int32 = -10
)

// CodecType matches ShimCodecType in shim.h (int32 to match C int)
type CodecType int32

const (
	CodecH264 CodecType = 0
	CodecVP8  CodecType = 1
	CodecVP9  CodecType = 2
	CodecAV1  CodecType = 3
	CodecOpus CodecType = 10
)

// EnvLibraryPath overrides the library search.
const EnvLibraryPath = "LIBWEBRTC_SHIM_PATH"

var (
	libHandle uintptr
	libLoaded atomic.Bool
	libMu     sync.Mutex
)

// LoadLibrary loads the libwebrtc_shim shared library.
// It searches in the following locations:
// 1. Path specified by LIBWEBRTC_SHIM_PATH environment variable
// 2. ./lib/{os}_{arch}/ relative to the executable and working directory
// 3. System library paths
func LoadLibrary() error {
	libMu.Lock()
	defer libMu.Unlock()

	if libLoaded.Load() {
		return nil
	}

	libPath, ok := findLocalLibrary()
	if !ok {
		libPath = getLibraryName()
	}

	handle, err := dlopenLibrary(libPath)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrLibraryNotFound, libPath, err)
	}

	if err := registerFunctions(handle); err != nil {
		_ = dlcloseLibrary(handle)
		return err
	}

	libHandle = handle
	libLoaded.Store(true)
	return nil
}

// IsLoaded returns true if the shim library is loaded.
func IsLoaded() bool {
	return libLoaded.Load()
}

// Close unloads the shim library.
func Close() error {
	libMu.Lock()
	defer libMu.Unlock()

	if !libLoaded.Load() {
		return nil
	}
	if err := dlcloseLibrary(libHandle); err != nil {
		return err
	}
	libLoaded.Store(false)
	libHandle = 0
	return nil
}

// ShimVersion returns the shim library version, or "" if not loaded.
func ShimVersion() string {
	if !libLoaded.Load() || shimVersion == nil {
		return ""
	}
	return GoString(shimVersion())
}

func findLocalLibrary() (string, bool) {
	if path := os.Getenv(EnvLibraryPath); path != "" {
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}

	libName := getLibraryName()
	platformDir := fmt.Sprintf("%s_%s", runtime.GOOS, runtime.GOARCH)

	var searchPaths []string
	if execPath, err := os.Executable(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(filepath.Dir(execPath), "lib", platformDir, libName))
	}
	if wd, err := os.Getwd(); err == nil {
		searchPaths = append(searchPaths,
			filepath.Join(wd, "lib", platformDir, libName),
			filepath.Join(wd, "..", "lib", platformDir, libName),
			filepath.Join(wd, "..", "..", "lib", platformDir, libName),
		)
	}

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			absPath, _ := filepath.Abs(path)
			return absPath, true
		}
	}
	return "", false
}

func getLibraryName() string {
	return getLibraryNameFor(runtime.GOOS)
}

func getLibraryNameFor(goos string) string {
	switch goos {
	case "darwin":
		return "libwebrtc_shim.dylib"
	case "windows":
		return "libwebrtc_shim.dll"
	default:
		return "libwebrtc_shim.so"
	}
}

// ShimError converts a shim error code to a Go error.
// Returns sentinel errors that support errors.Is() comparisons.
func ShimError(code int32) error {
	switch code {
	case ShimOK:
		return nil
	case ShimErrInvalidParam:
		return ErrInvalidParam
	case ShimErrInitFailed:
		return ErrInitFailed
	case ShimErrOutOfMemory:
		return ErrOutOfMemory
	case ShimErrNotSupported:
		return ErrNotSupported
	case ShimErrBufferTooSmall:
		return ErrBufferTooSmall
	case ShimErrNotFound:
		return ErrNotFound
	case ShimErrRenegotiationNeeded:
		return ErrRenegotiationNeeded
	default:
		return fmt.Errorf("unknown shim error: %d", code)
	}
}
