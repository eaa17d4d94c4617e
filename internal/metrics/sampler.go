package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/process"
)

// Sample holds CPU and memory figures for the sidecar process.
type Sample struct {
	PID        int32     `json:"pid"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryMB   float64   `json:"memory_mb"`
	MemoryRSS  uint64    `json:"memory_rss"`
	MemoryVMS  uint64    `json:"memory_vms"`
	NumThreads int32     `json:"num_threads"`
	NumFDs     int32     `json:"num_fds,omitempty"` // Unix only
	Timestamp  time.Time `json:"timestamp"`
}

// PIDFunc reports the pid to sample; ok is false while nothing is running.
type PIDFunc func() (pid int, ok bool)

// Sampler periodically samples resource usage of the running sidecar.
type Sampler struct {
	interval time.Duration
	pid      PIDFunc

	mu   sync.RWMutex
	last Sample
	have bool
	proc *process.Process

	cpuPercent *prometheus.GaugeVec
	memoryMB   *prometheus.GaugeVec
	numThreads *prometheus.GaugeVec
	numFDs     *prometheus.GaugeVec
}

// NewSampler creates a sampler. A non-positive interval defaults to 5s.
func NewSampler(interval time.Duration, pid PIDFunc) *Sampler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	gauge := func(name, help string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "chicken",
			Subsystem: "sidecar",
			Name:      name,
			Help:      help,
		}, []string{"pid"})
	}
	return &Sampler{
		interval:   interval,
		pid:        pid,
		cpuPercent: gauge("cpu_percent", "CPU usage percentage of the sidecar."),
		memoryMB:   gauge("memory_mb", "Resident memory of the sidecar in MB."),
		numThreads: gauge("num_threads", "Thread count of the sidecar."),
		numFDs:     gauge("num_fds", "Open file descriptors of the sidecar (Unix only)."),
	}
}

// Register registers the sampler gauges.
func (s *Sampler) Register(r prometheus.Registerer) error {
	collectors := []prometheus.Collector{s.cpuPercent, s.memoryMB, s.numThreads}
	if runtime.GOOS != "windows" {
		collectors = append(collectors, s.numFDs)
	}
	for _, c := range collectors {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// Run samples on every tick until ctx is done.
func (s *Sampler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.SampleOnce(); err != nil {
				slog.Debug("sidecar sample failed", "error", err)
			}
		}
	}
}

// SampleOnce takes one sample. It returns ok=false when no sidecar is running.
func (s *Sampler) SampleOnce() (bool, error) {
	pid, ok := s.pid()
	if !ok || pid <= 0 {
		s.reset()
		return false, nil
	}
	smp, err := s.collect(int32(pid))
	if err != nil {
		s.reset()
		return false, err
	}
	label := fmt.Sprint(pid)
	s.cpuPercent.WithLabelValues(label).Set(smp.CPUPercent)
	s.memoryMB.WithLabelValues(label).Set(smp.MemoryMB)
	s.numThreads.WithLabelValues(label).Set(float64(smp.NumThreads))
	if runtime.GOOS != "windows" && smp.NumFDs > 0 {
		s.numFDs.WithLabelValues(label).Set(float64(smp.NumFDs))
	}
	s.mu.Lock()
	s.last, s.have = smp, true
	s.mu.Unlock()
	return true, nil
}

// Last returns the most recent sample.
func (s *Sampler) Last() (Sample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, s.have
}

func (s *Sampler) collect(pid int32) (Sample, error) {
	s.mu.Lock()
	proc := s.proc
	if proc == nil || proc.Pid != pid {
		// CPUPercent is relative to the previous call on the same handle
		p, err := process.NewProcess(pid)
		if err != nil {
			s.mu.Unlock()
			return Sample{}, fmt.Errorf("failed to create process handle: %w", err)
		}
		s.proc, proc = p, p
	}
	s.mu.Unlock()

	cpu, err := proc.CPUPercent()
	if err != nil {
		slog.Debug("Failed to get CPU percent", "pid", pid, "error", err)
		cpu = 0
	}
	mem, err := proc.MemoryInfo()
	if err != nil {
		return Sample{}, fmt.Errorf("failed to get memory info: %w", err)
	}
	threads, err := proc.NumThreads()
	if err != nil {
		threads = 0
	}
	smp := Sample{
		PID:        pid,
		CPUPercent: cpu,
		MemoryMB:   float64(mem.RSS) / 1024 / 1024,
		MemoryRSS:  mem.RSS,
		MemoryVMS:  mem.VMS,
		NumThreads: threads,
		Timestamp:  time.Now(),
	}
	if runtime.GOOS != "windows" {
		if fds, err := proc.NumFDs(); err == nil {
			smp.NumFDs = fds
		}
	}
	return smp, nil
}

func (s *Sampler) reset() {
	s.mu.Lock()
	s.last, s.have, s.proc = Sample{}, false, nil
	s.mu.Unlock()
	s.cpuPercent.Reset()
	s.memoryMB.Reset()
	s.numThreads.Reset()
	s.numFDs.Reset()
}
