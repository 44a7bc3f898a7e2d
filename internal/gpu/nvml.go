//go:build cuda

package gpu

import (
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

// Library is what the detector needs from NVML: versions and one Device per
// index. Any nvml.Return other than SUCCESS is a failure.
type Library interface {
	Init() nvml.Return
	Shutdown() nvml.Return
	Versions() (driver string, cuda int, ret nvml.Return)
	DeviceCount() (int, nvml.Return)
	Device(index int) (Device, nvml.Return)
}

// systemLibrary reads the NVML shared library installed with the driver.
type systemLibrary struct{}

// SystemLibrary returns the NVML binding of the running system.
func SystemLibrary() Library {
	return systemLibrary{}
}

func (systemLibrary) Init() nvml.Return     { return nvml.Init() }
func (systemLibrary) Shutdown() nvml.Return { return nvml.Shutdown() }

func (systemLibrary) DeviceCount() (int, nvml.Return) { return nvml.DeviceGetCount() }

// Versions reports the driver and CUDA versions. A missing CUDA version is
// reported as 0 rather than failing the call.
func (systemLibrary) Versions() (string, int, nvml.Return) {
	driver, ret := nvml.SystemGetDriverVersion()
	if ret != nvml.SUCCESS {
		return "", 0, ret
	}
	cuda, ret := nvml.SystemGetCudaDriverVersion()
	if ret != nvml.SUCCESS {
		cuda = 0
	}
	return driver, cuda, nvml.SUCCESS
}

// Device fills what the handle exposes; unreadable attributes stay zero.
func (systemLibrary) Device(index int) (Device, nvml.Return) {
	handle, ret := nvml.DeviceGetHandleByIndex(index)
	if ret != nvml.SUCCESS {
		return Device{}, ret
	}

	dev := Device{Index: index}
	if name, ret := handle.GetName(); ret == nvml.SUCCESS {
		dev.Name = name
	}
	if uuid, ret := handle.GetUUID(); ret == nvml.SUCCESS {
		dev.UUID = uuid
	}
	if mem, ret := handle.GetMemoryInfo(); ret == nvml.SUCCESS {
		dev.MemoryMB = mem.Total / bytesPerMB
		dev.FreeMemoryMB = mem.Free / bytesPerMB
	}
	return dev, nvml.SUCCESS
}
