package handlers

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// HealthHandler serves the health endpoint.
type HealthHandler struct {
	version    string
	startTime  time.Time
	supervisor SupervisorService
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(version string, supervisor SupervisorService) *HealthHandler {
	return &HealthHandler{
		version:    version,
		startTime:  time.Now(),
		supervisor: supervisor,
	}
}

// CPUInfo reports load averages normalised by core count.
type CPUInfo struct {
	Cores              int     `json:"cores"`
	Load1Min           float64 `json:"load_1min"`
	Load5Min           float64 `json:"load_5min"`
	Load15Min          float64 `json:"load_15min"`
	LoadPercentage1Min float64 `json:"load_percentage_1min"`
}

// MemoryInfo reports system and process memory usage.
type MemoryInfo struct {
	TotalMemoryMB     float64 `json:"total_memory_mb"`
	UsedMemoryMB      float64 `json:"used_memory_mb"`
	AvailableMemoryMB float64 `json:"available_memory_mb"`
	ProcessMB         float64 `json:"process_mb"`
	ChildProcessCount int     `json:"child_process_count"`
	ChildProcessesMB  float64 `json:"child_processes_mb"`
}

// HealthResponse is the /health body.
type HealthResponse struct {
	Status           string     `json:"status"`
	Timestamp        string     `json:"timestamp"`
	Version          string     `json:"version"`
	Uptime           string     `json:"uptime"`
	UptimeSeconds    float64    `json:"uptime_seconds"`
	Mode             string     `json:"mode"`
	ConnectedClients int        `json:"connected_clients"`
	CPUInfo          CPUInfo    `json:"cpu"`
	Memory           MemoryInfo `json:"memory"`
}

// HealthOutput wraps the health body.
type HealthOutput struct {
	Body HealthResponse
}

// Register registers the health route with the API.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns service health including system metrics and the encoder state",
		Tags:        []string{"System"},
	}, h.GetHealth)
}

// GetHealth returns the health status of the service.
func (h *HealthHandler) GetHealth(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
	now := time.Now()
	uptime := now.Sub(h.startTime)
	st := h.supervisor.Status()

	return &HealthOutput{
		Body: HealthResponse{
			Status:           "healthy",
			Timestamp:        now.UTC().Format(time.RFC3339),
			Version:          h.version,
			Uptime:           uptime.Round(time.Second).String(),
			UptimeSeconds:    uptime.Seconds(),
			Mode:             string(st.Mode),
			ConnectedClients: st.ConnectedClients,
			CPUInfo:          h.getCPUInfo(),
			Memory:           h.getMemoryInfo(),
		},
	}, nil
}

func (h *HealthHandler) getCPUInfo() CPUInfo {
	cores := runtime.NumCPU()
	info := CPUInfo{Cores: cores}

	loadAvg, err := load.Avg()
	if err == nil && loadAvg != nil {
		info.Load1Min = loadAvg.Load1
		info.Load5Min = loadAvg.Load5
		info.Load15Min = loadAvg.Load15
		if cores > 0 {
			info.LoadPercentage1Min = (loadAvg.Load1 / float64(cores)) * 100
		}
	}
	return info
}

func (h *HealthHandler) getMemoryInfo() MemoryInfo {
	info := MemoryInfo{}

	vmStat, err := mem.VirtualMemory()
	if err == nil && vmStat != nil {
		info.TotalMemoryMB = float64(vmStat.Total) / 1024 / 1024
		info.UsedMemoryMB = float64(vmStat.Used) / 1024 / 1024
		info.AvailableMemoryMB = float64(vmStat.Available) / 1024 / 1024
	}

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return info
	}
	if memInfo, err := proc.MemoryInfo(); err == nil && memInfo != nil {
		info.ProcessMB = float64(memInfo.RSS) / 1024 / 1024
	}
	// the encoder runs as a child; its memory shows up here
	if children, err := proc.Children(); err == nil {
		info.ChildProcessCount = len(children)
		for _, child := range children {
			if childMem, err := child.MemoryInfo(); err == nil && childMem != nil {
				info.ChildProcessesMB += float64(childMem.RSS) / 1024 / 1024
			}
		}
	}
	return info
}
