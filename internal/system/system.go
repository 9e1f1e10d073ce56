package system

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
)

var (
	ImageExtensions     = []string{".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".webp"}
	AnimationExtensions = []string{".png", ".apng"}
)

// InitResourceLimits raises the open file limit; extraction writes many
// frames concurrently.
func InitResourceLimits(logger *zap.Logger) {
	var rLimit syscall.Rlimit
	err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit)
	if err != nil {
		logger.Warn("cannot read open file limit", zap.Error(err))
		return
	}

	rLimit.Cur = 2048
	if rLimit.Cur > rLimit.Max {
		rLimit.Cur = rLimit.Max
	}

	err = syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit)
	if err != nil {
		logger.Warn("cannot raise open file limit", zap.Error(err))
	} else {
		logger.Debug("open file limit raised", zap.Uint64("limit", rLimit.Cur))
	}
}

// HasExtension reports whether path ends in one of exts, ignoring case.
func HasExtension(path string, exts ...string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

// FindLatestFile returns the most recently modified regular file in dir
// with one of the given extensions.
func FindLatestFile(dir string, exts ...string) (string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	var latestFile string
	var latestTime time.Time

	for _, f := range files {
		if f.IsDir() || !HasExtension(f.Name(), exts...) {
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(latestTime) {
			latestTime = info.ModTime()
			latestFile = filepath.Join(dir, f.Name())
		}
	}

	if latestFile == "" {
		return "", fmt.Errorf("no %s files found in %s", strings.Join(exts, "/"), dir)
	}

	return latestFile, nil
}

// FindLatestPDF returns the newest PDF in dir.
func FindLatestPDF(dir string) (string, error) {
	return FindLatestFile(dir, ".pdf")
}

// FindLatestAnimation returns the newest PNG/APNG in dir.
func FindLatestAnimation(dir string) (string, error) {
	return FindLatestFile(dir, AnimationExtensions...)
}

// MemoryStats is a snapshot of process and host memory.
type MemoryStats struct {
	ProcessRSS  uint64
	HostUsed    uint64
	HostTotal   uint64
	UsedPercent float64
}

// MemoryUsage samples memory usage of the current process and the host.
func MemoryUsage() (MemoryStats, error) {
	var stats MemoryStats

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return stats, fmt.Errorf("opening process: %w", err)
	}
	info, err := proc.MemoryInfo()
	if err != nil {
		return stats, fmt.Errorf("reading process memory: %w", err)
	}
	stats.ProcessRSS = info.RSS

	vm, err := mem.VirtualMemory()
	if err != nil {
		return stats, fmt.Errorf("reading host memory: %w", err)
	}
	stats.HostUsed = vm.Used
	stats.HostTotal = vm.Total
	stats.UsedPercent = vm.UsedPercent
	return stats, nil
}
