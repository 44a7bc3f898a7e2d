//go:build cuda

package gpu

import (
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

// fakeLibrary is a scripted Library
type fakeLibrary struct {
	initReturn     nvml.Return
	shutdownCalls  int
	driver         string
	cuda           int
	versionsReturn nvml.Return
	countReturn    nvml.Return
	devices        []fakeDevice
}

type fakeDevice struct {
	device Device
	ret    nvml.Return
}

func newFakeLibrary(devices ...fakeDevice) *fakeLibrary {
	return &fakeLibrary{
		initReturn:     nvml.SUCCESS,
		versionsReturn: nvml.SUCCESS,
		countReturn:    nvml.SUCCESS,
		devices:        devices,
	}
}

func (f *fakeLibrary) Init() nvml.Return { return f.initReturn }

func (f *fakeLibrary) Shutdown() nvml.Return {
	f.shutdownCalls++
	return nvml.SUCCESS
}

func (f *fakeLibrary) Versions() (string, int, nvml.Return) {
	return f.driver, f.cuda, f.versionsReturn
}

func (f *fakeLibrary) DeviceCount() (int, nvml.Return) {
	return len(f.devices), f.countReturn
}

func (f *fakeLibrary) Device(index int) (Device, nvml.Return) {
	if index < 0 || index >= len(f.devices) {
		return Device{}, nvml.ERROR_INVALID_ARGUMENT
	}
	d := f.devices[index]
	d.device.Index = index
	return d.device, d.ret
}
