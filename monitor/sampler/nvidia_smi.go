package sampler

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"code.cloudfoundry.org/lager/v3"
	"github.com/dustin/go-humanize"
	"github.com/patrickmn/go-cache"

	"github.com/healthmonitor/agent/models"
)

const (
	NvidiaSMIBinary = "nvidia-smi"
	// gpuStatsTTL lets the three GPU kinds of one cycle share a query.
	gpuStatsTTL = 2 * time.Second
	gpuStatsKey = "gpus"
)

var nvidiaSMIArgs = []string{
	"--query-gpu=index,name,utilization.gpu,memory.used,memory.total,temperature.gpu",
	"--format=csv,noheader,nounits",
}

type GPUReader interface {
	GPUs(ctx context.Context) ([]GPUStat, error)
}

// GPUStat is one device as reported by the driver. A nil field is one the
// device does not support.
type GPUStat struct {
	Index          string
	Name           string
	Utilization    *float64
	MemoryUsedMiB  *float64
	MemoryTotalMiB *float64
	Temperature    *float64
}

func (g GPUStat) Reading(kind models.ResourceKind) (models.Reading, bool) {
	reading := models.Reading{Kind: kind, Device: g.Index, Unit: kind.Unit(), Detail: g.Name}
	switch kind {
	case models.ResourceGPUUtil:
		if g.Utilization == nil {
			return reading, false
		}
		reading.Value = *g.Utilization
	case models.ResourceGPUMem:
		if g.MemoryUsedMiB == nil || g.MemoryTotalMiB == nil || *g.MemoryTotalMiB == 0 {
			return reading, false
		}
		reading.Value = *g.MemoryUsedMiB / *g.MemoryTotalMiB * 100
		reading.Detail = fmt.Sprintf("%s, %s total", g.Name, humanize.IBytes(uint64(*g.MemoryTotalMiB)*humanize.MiByte))
	case models.ResourceGPUTemp:
		if g.Temperature == nil {
			return reading, false
		}
		reading.Value = *g.Temperature
	default:
		return reading, false
	}
	return reading, true
}

// NvidiaSMI queries NVIDIA GPUs through the nvidia-smi tool that ships with
// the driver. Hosts without the tool or a working driver have no GPUs.
type NvidiaSMI struct {
	logger   lager.Logger
	lookPath func(string) (string, error)
	run      func(ctx context.Context, name string, args ...string) ([]byte, error)
	stats    *cache.Cache
}

var _ GPUReader = &NvidiaSMI{}

func NewNvidiaSMI(logger lager.Logger) *NvidiaSMI {
	return &NvidiaSMI{
		logger:   logger.Session("nvidia-smi"),
		lookPath: exec.LookPath,
		run:      runCommand,
		stats:    cache.New(gpuStatsTTL, time.Minute),
	}
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil && stderr.Len() > 0 {
		return out, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return out, err
}

func (n *NvidiaSMI) GPUs(ctx context.Context) ([]GPUStat, error) {
	if cached, found := n.stats.Get(gpuStatsKey); found {
		return cached.([]GPUStat), nil
	}

	path, err := n.lookPath(NvidiaSMIBinary)
	if err != nil {
		return nil, models.SamplingUnavailable("gpu", "", err)
	}
	out, err := n.run(ctx, path, nvidiaSMIArgs...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, models.SamplingUnavailable("gpu", "", err)
	}
	stats, err := ParseNvidiaSMI(out)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrSamplerFailed, err)
	}
	if len(stats) == 0 {
		return nil, models.SamplingUnavailable("gpu", "", errors.New("no gpu found"))
	}
	n.stats.SetDefault(gpuStatsKey, stats)
	n.logger.Debug("queried", lager.Data{"gpus": len(stats)})
	return stats, nil
}

// ParseNvidiaSMI reads the csv,noheader,nounits output of the gpu query.
// Fields the device does not support ("[N/A]", "[Not Supported]") are left
// nil.
func ParseNvidiaSMI(out []byte) ([]GPUStat, error) {
	r := csv.NewReader(bytes.NewReader(out))
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = 6
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse nvidia-smi output: %w", err)
	}

	stats := make([]GPUStat, 0, len(records))
	for _, record := range records {
		fields := make([]*float64, 4)
		for i, raw := range record[2:] {
			v, err := optionalFloat(raw)
			if err != nil {
				return nil, fmt.Errorf("failed to parse nvidia-smi output for gpu %s: %w", record[0], err)
			}
			fields[i] = v
		}
		stats = append(stats, GPUStat{
			Index:          strings.TrimSpace(record[0]),
			Name:           strings.TrimSpace(record[1]),
			Utilization:    fields[0],
			MemoryUsedMiB:  fields[1],
			MemoryTotalMiB: fields[2],
			Temperature:    fields[3],
		})
	}
	return stats, nil
}

func optionalFloat(raw string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "[") || raw == "" || strings.EqualFold(raw, "N/A") {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
