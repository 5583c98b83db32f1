//go:build windows

package ffi

import (
	"fmt"

	"golang.org/x/sys/windows"
)

func dlopenLibrary(path string) (uintptr, error) {
	h, err := windows.LoadLibrary(path)
	if err != nil {
		return 0, fmt.Errorf("LoadLibrary: %w", err)
	}
	return uintptr(h), nil
}

func dlsymLibrary(handle uintptr, name string) (uintptr, error) {
	addr, err := windows.GetProcAddress(windows.Handle(handle), name)
	if err != nil {
		return 0, fmt.Errorf("GetProcAddress(%s): %w", name, err)
	}
	return addr, nil
}

func dlcloseLibrary(handle uintptr) error {
	return windows.FreeLibrary(windows.Handle(handle))
}
