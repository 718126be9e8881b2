package app

import (
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/womat/debug"
)

// HandleHealth returns data about the health of myself.
// output example:
//  {"NumGoroutines":11,"NumCPU":4,"CPUCores":4,"Load1Min":0.12,"HeapAllocatedBytes":332256360,"HeapAllocatedMB":316,
//   "SysMemoryBytes":360290312,"SysMemoryMB":343,"Version":"1.0.10+20261001","ProgLang":"go1.23.2",
//   "HostName":"garage","Time":"2026-10-18T12:00:00Z","LastFrame":"2026-10-18T11:58:03Z"}
func (app *App) HandleHealth() fiber.Handler {
	bToMb := func(b uint64) uint64 {
		return b / 1024 / 1024
	}

	host, _ := os.Hostname()

	// sum cores across all cpus (for multi-socket systems)
	cpuCores := 0
	if info, err := cpu.Info(); err == nil {
		for _, i := range info {
			cpuCores += int(i.Cores)
		}
	}

	return func(ctx *fiber.Ctx) error {
		debug.InfoLog.Print("web request health")

		var m runtime.MemStats
		runtime.ReadMemStats(&m)

		hab := m.Alloc
		smb := m.Sys

		healthData := struct {
			NumGoroutines      int
			NumCPU             int
			CPUCores           int
			Load1Min           float64
			HeapAllocatedBytes uint64
			HeapAllocatedMB    uint64
			SysMemoryBytes     uint64
			SysMemoryMB        uint64
			Version            string
			ProgLang           string
			HostName           string
			Time               string
			LastFrame          string
		}{
			NumGoroutines:      runtime.NumGoroutine(),
			NumCPU:             runtime.NumCPU(),
			CPUCores:           cpuCores,
			HeapAllocatedBytes: hab,
			HeapAllocatedMB:    bToMb(hab),
			SysMemoryBytes:     smb,
			SysMemoryMB:        bToMb(smb),
			ProgLang:           runtime.Version(),
			Version:            VERSION,
			HostName:           host,
			Time:               time.Now().Format(time.RFC3339),
		}
		if avg, err := load.Avg(); err == nil {
			healthData.Load1Min = avg.Load1
		}
		if f := app.frames.get(); len(f) > 0 {
			healthData.LastFrame = f[0].TimeStamp.Format(time.RFC3339)
		}

		ctx.Status(http.StatusOK)
		return ctx.JSON(healthData)
	}
}
