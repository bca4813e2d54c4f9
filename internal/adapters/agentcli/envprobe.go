package agentcli

import (
	"context"
	"encoding/json"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// EnvProber answers environment-role invocations with a local system
// probe instead of an external model. Individual probe failures are
// omitted from the payload rather than failing the invocation.
type EnvProber struct{}

// NewEnvProber creates a prober.
func NewEnvProber() *EnvProber {
	return &EnvProber{}
}

// Probe collects host, cpu, memory and disk facts as a JSON payload.
func (p *EnvProber) Probe(ctx context.Context) (json.RawMessage, error) {
	info := map[string]interface{}{
		"role":    "environment",
		"summary": "local environment probe",
		"os":      runtime.GOOS,
		"arch":    runtime.GOARCH,
	}

	if hi, err := host.InfoWithContext(ctx); err == nil {
		info["host"] = map[string]interface{}{
			"hostname":       hi.Hostname,
			"platform":       hi.Platform,
			"kernel_version": hi.KernelVersion,
			"uptime_sec":     hi.Uptime,
		}
	}
	if counts, err := cpu.CountsWithContext(ctx, true); err == nil {
		info["cpu_count"] = counts
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info["memory"] = map[string]interface{}{
			"total_bytes":     vm.Total,
			"available_bytes": vm.Available,
			"used_percent":    vm.UsedPercent,
		}
	}
	if du, err := disk.UsageWithContext(ctx, "/"); err == nil {
		info["disk"] = map[string]interface{}{
			"total_bytes":  du.Total,
			"free_bytes":   du.Free,
			"used_percent": du.UsedPercent,
		}
	}

	return json.Marshal(info)
}
