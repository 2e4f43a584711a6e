package api

import (
	"net/http"
	"os"
	"runtime"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/process"
)

type processStats struct {
	RSSBytes   uint64  `json:"rssBytes"`
	CPUPercent float64 `json:"cpuPercent"`
	Goroutines int     `json:"goroutines"`
}

type processSampler func() processStats

// newProcessSampler reads resource usage of the running process. Fields the
// platform cannot report stay zero.
func newProcessSampler() processSampler {
	proc, err := process.NewProcess(int32(os.Getpid()))
	return func() processStats {
		stats := processStats{Goroutines: runtime.NumGoroutine()}
		if err != nil {
			return stats
		}
		if mem, err := proc.MemoryInfo(); err == nil {
			stats.RSSBytes = mem.RSS
		}
		if cpu, err := proc.CPUPercent(); err == nil {
			stats.CPUPercent = cpu
		}
		return stats
	}
}

type healthResponse struct {
	Status              string       `json:"status"`
	Timestamp           string       `json:"timestamp"`
	ConnectedDashboards int          `json:"connectedDashboards"`
	Process             processStats `json:"process"`
}

// GET /health
func (h *handler) health(c *gin.Context) {
	resp := healthResponse{
		Status:    "healthy",
		Timestamp: h.now().UTC().Format(timestampLayout),
		Process:   h.process(),
	}
	if h.dashboards != nil {
		resp.ConnectedDashboards = h.dashboards.ClientCount()
	}
	c.JSON(http.StatusOK, resp)
}

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"
