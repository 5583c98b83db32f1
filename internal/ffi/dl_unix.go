//go:build !windows

package ffi

import "github.com/ebitengine/purego"

const dlopenFlags = purego.RTLD_NOW | purego.RTLD_GLOBAL

func dlopenLibrary(path string) (uintptr, error) {
	return purego.Dlopen(path, dlopenFlags)
}

func dlsymLibrary(handle uintptr, name string) (uintptr, error) {
	return purego.Dlsym(handle, name)
}

func dlcloseLibrary(handle uintptr) error {
	return purego.Dlclose(handle)
}
