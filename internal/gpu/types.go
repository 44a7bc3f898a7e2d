package gpu

// Device describes one accelerator visible to the inference engine
type Device struct {
	Index        int    `json:"index"`
	Name         string `json:"name"`
	UUID         string `json:"uuid"`
	MemoryMB     uint64 `json:"memory_mb"`
	FreeMemoryMB uint64 `json:"free_memory_mb"`
}

// Report is the accelerator probe result written by gpu-check
type Report struct {
	DriverVersion string   `json:"driver_version"`
	CUDAVersion   int      `json:"cuda_version"`
	NVMLOk        bool     `json:"nvml_ok"`
	Devices       []Device `json:"devices"`
	ErrorMessage  string   `json:"error_message,omitempty"`
}
