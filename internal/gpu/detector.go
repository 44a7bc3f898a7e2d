//go:build cuda

package gpu

import (
	"fmt"

	"github.com/NVIDIA/go-nvml/pkg/nvml"

	"cookia/internal/logging"
)

const bytesPerMB = 1024 * 1024

// Detector probes NVIDIA accelerators through NVML
type Detector struct {
	lib    Library
	logger *logging.Logger
}

// NewDetector creates a detector bound to the system NVML library
func NewDetector(logger *logging.Logger) *Detector {
	return NewDetectorWithLibrary(SystemLibrary(), logger)
}

// NewDetectorWithLibrary creates a detector reading from lib
func NewDetectorWithLibrary(lib Library, logger *logging.Logger) *Detector {
	return &Detector{lib: lib, logger: logger}
}

// Detect initializes NVML, lists the devices and shuts NVML down again.
// Failures are recorded in the report rather than returned.
func (d *Detector) Detect() Report {
	d.logger.Info("gpu.detect.start", "Starting accelerator detection", nil)

	report := Report{Devices: make([]Device, 0)}

	if ret := d.lib.Init(); ret != nvml.SUCCESS {
		report.ErrorMessage = fmt.Sprintf("Failed to initialize NVML: %v", nvml.ErrorString(ret))
		d.logger.Warn("gpu.nvml.init.failed", "NVML initialization failed", map[string]interface{}{
			"error": report.ErrorMessage,
		})
		return report
	}
	defer d.lib.Shutdown()

	report.NVMLOk = true

	if driver, cuda, ret := d.lib.Versions(); ret == nvml.SUCCESS {
		report.DriverVersion = driver
		report.CUDAVersion = cuda
	} else {
		d.logger.Warn("gpu.driver.version.failed", "Failed to read driver version", map[string]interface{}{
			"error": nvml.ErrorString(ret),
		})
	}

	count, ret := d.lib.DeviceCount()
	if ret != nvml.SUCCESS {
		report.ErrorMessage = fmt.Sprintf("Failed to get device count: %v", nvml.ErrorString(ret))
		d.logger.Error("gpu.device.count.failed", "Failed to get device count", map[string]interface{}{
			"error": report.ErrorMessage,
		})
		return report
	}

	for i := 0; i < count; i++ {
		dev, ret := d.lib.Device(i)
		if ret != nvml.SUCCESS {
			d.logger.Warn("gpu.device.read.failed", "Skipping unreadable device", map[string]interface{}{
				"index": i,
				"error": nvml.ErrorString(ret),
			})
			continue
		}
		report.Devices = append(report.Devices, dev)

		d.logger.Info("gpu.device.detected", "Accelerator detected", map[string]interface{}{
			"index":     i,
			"name":      dev.Name,
			"memory_mb": dev.MemoryMB,
		})
	}

	return report
}

// SaveReport persists a report to disk
func (d *Detector) SaveReport(report Report, path string) error {
	return saveReportToFile(d.logger, report, path)
}
