package sampler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"code.cloudfoundry.org/lager/v3"
	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/healthmonitor/agent/models"
)

// CPUSampleInterval is the window over which CPU utilization is measured.
const CPUSampleInterval = time.Second

// Sampler reads current utilization for one resource kind. devices lists
// the disks to read. Host-wide kinds get the host name, GPU kinds nil for
// every GPU present.
//
// An error wrapping models.ErrSamplingUnavailable means the kind, or some of
// its devices, cannot be read on this host. Readings returned with it are
// still valid. Any other error is fatal to the monitor.
type Sampler interface {
	Sample(ctx context.Context, kind models.ResourceKind, devices []string) ([]models.Reading, error)
}

type HostSampler struct {
	logger lager.Logger
	gpus   GPUReader

	cpuPercent    func(ctx context.Context, interval time.Duration, percpu bool) ([]float64, error)
	cpuInfo       func(ctx context.Context) ([]cpu.InfoStat, error)
	virtualMemory func(ctx context.Context) (*mem.VirtualMemoryStat, error)
	diskUsage     func(ctx context.Context, path string) (*disk.UsageStat, error)
	stat          func(path string) (os.FileInfo, error)
}

var _ Sampler = &HostSampler{}

func NewHostSampler(logger lager.Logger, gpus GPUReader) *HostSampler {
	return &HostSampler{
		logger:        logger.Session("sampler"),
		gpus:          gpus,
		cpuPercent:    cpu.PercentWithContext,
		cpuInfo:       cpu.InfoWithContext,
		virtualMemory: mem.VirtualMemoryWithContext,
		diskUsage:     disk.UsageWithContext,
		stat:          os.Stat,
	}
}

func (s *HostSampler) Sample(ctx context.Context, kind models.ResourceKind, devices []string) ([]models.Reading, error) {
	switch kind {
	case models.ResourceCPU:
		return s.sampleCPU(ctx, host(devices))
	case models.ResourceRAM:
		return s.sampleRAM(ctx, host(devices))
	case models.ResourceDisk:
		return s.sampleDisks(ctx, devices)
	case models.ResourceGPUUtil, models.ResourceGPUMem, models.ResourceGPUTemp:
		return s.sampleGPUs(ctx, kind, devices)
	default:
		return nil, fmt.Errorf("%w: unknown resource kind %q", models.ErrSamplerFailed, kind)
	}
}

func host(devices []string) string {
	if len(devices) == 0 {
		return ""
	}
	return devices[0]
}

func (s *HostSampler) sampleCPU(ctx context.Context, device string) ([]models.Reading, error) {
	percents, err := s.cpuPercent(ctx, CPUSampleInterval, false)
	if err != nil {
		return nil, fmt.Errorf("%w: cpu: %w", models.ErrSamplerFailed, err)
	}
	if len(percents) == 0 {
		return nil, fmt.Errorf("%w: cpu: no utilization reported", models.ErrSamplerFailed)
	}
	return []models.Reading{{
		Kind:   models.ResourceCPU,
		Device: device,
		Value:  percents[0],
		Unit:   models.UnitPercentage,
		Detail: s.cpuModel(ctx),
	}}, nil
}

func (s *HostSampler) cpuModel(ctx context.Context) string {
	infos, err := s.cpuInfo(ctx)
	if err != nil || len(infos) == 0 {
		return ""
	}
	return infos[0].ModelName
}

func (s *HostSampler) sampleRAM(ctx context.Context, device string) ([]models.Reading, error) {
	vm, err := s.virtualMemory(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: ram: %w", models.ErrSamplerFailed, err)
	}
	return []models.Reading{{
		Kind:   models.ResourceRAM,
		Device: device,
		Value:  vm.UsedPercent,
		Unit:   models.UnitPercentage,
		Detail: fmt.Sprintf("total %s, available %s", humanize.IBytes(vm.Total), humanize.IBytes(vm.Available)),
	}}, nil
}

// sampleDisks reports free space as a percentage of the filesystem size.
// Missing mounts are skipped, the rest are still read.
func (s *HostSampler) sampleDisks(ctx context.Context, mounts []string) ([]models.Reading, error) {
	readings := []models.Reading{}
	var unavailable []error
	for _, mount := range mounts {
		if info, err := s.stat(mount); err != nil || !info.IsDir() {
			if err == nil {
				err = errors.New("not a directory")
			}
			unavailable = append(unavailable, models.SamplingUnavailable(models.ResourceDisk, mount, err))
			continue
		}
		usage, err := s.diskUsage(ctx, mount)
		if err != nil {
			unavailable = append(unavailable, models.SamplingUnavailable(models.ResourceDisk, mount, err))
			continue
		}
		if usage.Total == 0 {
			unavailable = append(unavailable, models.SamplingUnavailable(models.ResourceDisk, mount, errors.New("filesystem reports zero size")))
			continue
		}
		readings = append(readings, models.Reading{
			Kind:   models.ResourceDisk,
			Device: mount,
			Value:  float64(usage.Free) / float64(usage.Total) * 100,
			Unit:   models.UnitPercentage,
			Detail: fmt.Sprintf("total %s, free %s", humanize.IBytes(usage.Total), humanize.IBytes(usage.Free)),
		})
	}
	return readings, errors.Join(unavailable...)
}

func (s *HostSampler) sampleGPUs(ctx context.Context, kind models.ResourceKind, devices []string) ([]models.Reading, error) {
	if s.gpus == nil {
		return nil, models.SamplingUnavailable(kind, "", errors.New("no gpu reader"))
	}
	stats, err := s.gpus.GPUs(ctx)
	if err != nil {
		return nil, err
	}
	wanted := map[string]bool{}
	for _, d := range devices {
		wanted[d] = true
	}

	readings := []models.Reading{}
	for _, gpu := range stats {
		if len(wanted) > 0 && !wanted[gpu.Index] {
			continue
		}
		reading, ok := gpu.Reading(kind)
		if !ok {
			s.logger.Debug("gpu-field-not-supported", lager.Data{"gpu": gpu.Index, "resource": kind})
			continue
		}
		readings = append(readings, reading)
	}
	if len(readings) == 0 {
		return nil, models.SamplingUnavailable(kind, "", errors.New("no gpu reported a value"))
	}
	return readings, nil
}
