// Package machine gathers the host facts reported in the orchestrator
// heartbeat: hostname, reachable IP, OS, memory and CPU shape.
package machine

import (
	"context"
	"net"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// Info describes the host this process runs on.
type Info struct {
	Hostname string
	IP       string
	OS       string
	RAMGB    float64
	CPUCores int
}

// Collect gathers host facts. Every probe degrades independently so a
// restricted environment still yields a usable heartbeat.
func Collect(ctx context.Context) Info {
	info := Info{
		OS:       runtime.GOOS,
		CPUCores: runtime.NumCPU(),
	}

	if hostname, err := os.Hostname(); err == nil {
		info.Hostname = hostname
	} else {
		info.Hostname = "unknown"
	}

	info.IP = localIP()

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info.RAMGB = float64(vm.Total) / (1 << 30)
	}
	if counts, err := cpu.CountsWithContext(ctx, true); err == nil && counts > 0 {
		info.CPUCores = counts
	}

	return info
}

// localIP finds the address the host would use for outbound traffic. The
// dial never sends a packet; UDP connect only resolves the local endpoint.
func localIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer func() { _ = conn.Close() }()
	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return "127.0.0.1"
}
