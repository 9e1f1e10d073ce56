package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/ivlev/apngtool/internal/system"
)

// Report summarizes one build or extract run.
type Report struct {
	Operation    string
	Input        string
	Output       string
	Pages        int // pages read, or frames decoded
	Frames       int // animation frames written, or images composited
	Bytes        int
	Total        time.Duration
	Render       time.Duration // render+encode, or decode+composite
	Assemble     time.Duration // builder, or file writes
	BuildVersion string
	Memory       *system.MemoryStats
}

// BenchmarkLog collects one line per run when stats are enabled.
const BenchmarkLog = "benchmark.log"

func (p *Project) finish(r *Report) {
	if !p.Config.ShowStats {
		return
	}
	if mem, err := system.MemoryUsage(); err == nil {
		r.Memory = &mem
	} else {
		p.Logger.Warn("cannot sample memory usage", zap.Error(err))
	}

	fields := []zap.Field{
		zap.String("build", r.BuildVersion),
		zap.Duration("total", r.Total),
		zap.Duration("render", r.Render),
		zap.Duration("assemble", r.Assemble),
		zap.Float64("frames_per_second", r.rate()),
	}
	if r.Memory != nil {
		fields = append(fields,
			zap.Uint64("rss_bytes", r.Memory.ProcessRSS),
			zap.Float64("host_mem_used_percent", r.Memory.UsedPercent))
	}
	p.Logger.Info("performance report", fields...)

	dir := filepath.Dir(r.Output)
	if r.Operation == "extract" {
		dir = r.Output
	}
	path := filepath.Join(dir, BenchmarkLog)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		p.Logger.Warn("cannot write benchmark log", zap.String("path", path), zap.Error(err))
		return
	}
	defer f.Close()
	fmt.Fprintln(f, r.line(time.Now()))
}

func (r *Report) rate() float64 {
	if r.Total <= 0 {
		return 0
	}
	return float64(r.Frames) / r.Total.Seconds()
}

func (r *Report) line(now time.Time) string {
	s := fmt.Sprintf("[%s] Build: %s | Op: %s | Input: %s | Pages: %d | Frames: %d | Total: %.2fs | Render: %.2fs | Assemble: %.2fs | FPS: %.2f",
		now.Format("2006-01-02 15:04:05"),
		r.BuildVersion,
		r.Operation,
		filepath.Base(r.Input),
		r.Pages,
		r.Frames,
		r.Total.Seconds(),
		r.Render.Seconds(),
		r.Assemble.Seconds(),
		r.rate(),
	)
	if r.Memory != nil {
		s += fmt.Sprintf(" | RSS: %dMB", r.Memory.ProcessRSS>>20)
	}
	return s
}
