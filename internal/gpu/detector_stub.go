//go:build !cuda

package gpu

import "cookia/internal/logging"

// Detector reports no accelerator when built without NVML.
type Detector struct {
	logger *logging.Logger
}

// NewDetector creates a detector that skips NVML when CUDA support is disabled.
func NewDetector(logger *logging.Logger) *Detector {
	return &Detector{logger: logger}
}

// NewDetectorWithLibrary ignores lib when CUDA support is disabled.
func NewDetectorWithLibrary(_ Library, logger *logging.Logger) *Detector {
	return NewDetector(logger)
}

// Detect returns a report stating that NVML is unavailable in this build.
func (d *Detector) Detect() Report {
	d.logger.Debug("gpu.detect.disabled", "Skipping NVML detection (built without cuda tag)", nil)

	return Report{
		Devices:      []Device{},
		NVMLOk:       false,
		ErrorMessage: "NVML disabled: rebuild with -tags cuda",
	}
}

// SaveReport persists a report to disk.
func (d *Detector) SaveReport(report Report, path string) error {
	return saveReportToFile(d.logger, report, path)
}
