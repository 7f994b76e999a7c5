// Package firmware loads the two on-disk images the CLI wires into guest memory before the vCPU
// starts: a raw firmware binary and a compiled device-tree blob. Locating or building those files
// is an external concern; this package only knows how to read bytes from a fixed relative path.
package firmware

import "os"

const (
	// DefaultFirmwarePath is where the raw firmware image (e.g. u-boot.bin) is read from.
	DefaultFirmwarePath = "u-boot.bin"

	// DefaultDeviceTreePath is where the compiled device-tree blob is read from.
	DefaultDeviceTreePath = "virt.dtb"
)

// Loader reads the bytes of a named image. The default implementation reads a file from disk;
// tests can substitute an in-memory Loader.
type Loader interface {
	Load(path string) ([]byte, error)
}

// FileLoader reads images from the local filesystem.
type FileLoader struct{}

func (FileLoader) Load(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// LoadFirmware reads the firmware image using loader, defaulting to DefaultFirmwarePath.
func LoadFirmware(loader Loader, path string) ([]byte, error) {
	if path == "" {
		path = DefaultFirmwarePath
	}

	return loader.Load(path)
}

// LoadDeviceTree reads the device-tree blob using loader, defaulting to DefaultDeviceTreePath.
func LoadDeviceTree(loader Loader, path string) ([]byte, error) {
	if path == "" {
		path = DefaultDeviceTreePath
	}

	return loader.Load(path)
}
