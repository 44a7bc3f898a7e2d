package gpu

import (
	"encoding/json"
	"fmt"

	"cookia/internal/fsutil"
	"cookia/internal/logging"
)

// ReportFileName is the report written under the files root by gpu-check
const ReportFileName = "accelerator_report.json"

// Summary renders the report as one line for status displays
func (r Report) Summary() string {
	if !r.NVMLOk {
		if r.ErrorMessage != "" {
			return "CPU only (" + r.ErrorMessage + ")"
		}
		return "CPU only"
	}
	if len(r.Devices) == 0 {
		return "CPU only (no NVIDIA devices)"
	}

	d := r.Devices[0]
	summary := fmt.Sprintf("%s, %d/%d MB free", d.Name, d.FreeMemoryMB, d.MemoryMB)
	if len(r.Devices) > 1 {
		summary += fmt.Sprintf(" (+%d more)", len(r.Devices)-1)
	}
	if r.CUDAVersion > 0 {
		summary += fmt.Sprintf(", CUDA %d.%d", r.CUDAVersion/1000, (r.CUDAVersion%1000)/10)
	}
	return summary
}

func saveReportToFile(logger *logging.Logger, report Report, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	if err := fsutil.AtomicWriteFile(path, data, fsutil.DefaultFilePermissions, logger); err != nil {
		return fmt.Errorf("failed to write report file: %w", err)
	}

	logger.Info("gpu.report.saved", "Accelerator report saved", map[string]interface{}{
		"path": path,
	})

	return nil
}
