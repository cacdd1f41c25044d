package sampler

import (
	"context"
	"os"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
)

func (s *HostSampler) SetCPUPercent(f func(ctx context.Context, interval time.Duration, percpu bool) ([]float64, error)) {
	s.cpuPercent = f
}

func (s *HostSampler) SetCPUInfo(f func(ctx context.Context) ([]cpu.InfoStat, error)) {
	s.cpuInfo = f
}

func (s *HostSampler) SetVirtualMemory(f func(ctx context.Context) (*mem.VirtualMemoryStat, error)) {
	s.virtualMemory = f
}

func (s *HostSampler) SetDiskUsage(f func(ctx context.Context, path string) (*disk.UsageStat, error)) {
	s.diskUsage = f
}

func (s *HostSampler) SetStat(f func(path string) (os.FileInfo, error)) {
	s.stat = f
}

func (n *NvidiaSMI) SetLookPath(f func(string) (string, error)) {
	n.lookPath = f
}

func (n *NvidiaSMI) SetRun(f func(ctx context.Context, name string, args ...string) ([]byte, error)) {
	n.run = f
}
