package types

// ResourceSnapshot is the payload returned by GET /resources and the
// pluggable ResourceProbe contract (spec.md §9).
type ResourceSnapshot struct {
	CPUPercent   float64 `json:"cpu_percent"`
	MemPercent   float64 `json:"mem_percent"`
	NetworkBytes uint64  `json:"network_bytes"`
	DiskBytes    uint64  `json:"disk_bytes"`
}
