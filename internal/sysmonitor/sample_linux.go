//go:build linux

package sysmonitor

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sys/unix"
)

// LinuxSampler reads host memory via unix.Sysinfo, disk via unix.Statfs,
// and CPU usage by differencing /proc/stat's aggregate jiffie counters
// across successive calls.
type LinuxSampler struct {
	mu       sync.Mutex
	lastIdle uint64
	lastAll  uint64
}

func NewLinuxSampler() *LinuxSampler {
	return &LinuxSampler{}
}

func (s *LinuxSampler) Sample(diskPath string) (Sample, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return Sample{}, fmt.Errorf("sysinfo: %w", err)
	}
	unit := uint64(info.Unit)
	if unit == 0 {
		unit = 1
	}
	total := float64(info.Totalram) * float64(unit)
	free := float64(info.Freeram) * float64(unit)

	var stat unix.Statfs_t
	var diskFree, diskTotal float64
	if diskPath != "" {
		if err := unix.Statfs(diskPath, &stat); err == nil {
			diskTotal = float64(stat.Blocks) * float64(stat.Bsize)
			diskFree = float64(stat.Bfree) * float64(stat.Bsize)
		}
	}

	cpuPct, err := s.cpuPercent()
	if err != nil {
		cpuPct = 0
	}

	return Sample{
		MemUsedBytes:   total - free,
		MemTotalBytes:  total,
		CPUPercent:     cpuPct,
		DiskFreeBytes:  diskFree,
		DiskTotalBytes: diskTotal,
	}, nil
}

func (s *LinuxSampler) cpuPercent() (float64, error) {
	idle, all, err := readProcStat()
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var pct float64
	if s.lastAll > 0 && all > s.lastAll {
		deltaAll := all - s.lastAll
		deltaIdle := idle - s.lastIdle
		if deltaAll > 0 {
			pct = (1 - float64(deltaIdle)/float64(deltaAll)) * 100
		}
	}
	s.lastIdle = idle
	s.lastAll = all
	return pct, nil
}

func readProcStat() (idle, all uint64, err error) {
	f, err := os.Open("/proc/stat")
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return 0, 0, fmt.Errorf("empty /proc/stat")
	}
	fields := strings.Fields(scanner.Text())
	if len(fields) < 5 || fields[0] != "cpu" {
		return 0, 0, fmt.Errorf("unexpected /proc/stat format")
	}
	for i, f := range fields[1:] {
		v, err := strconv.ParseUint(f, 10, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("parse /proc/stat field %d: %w", i, err)
		}
		all += v
		if i == 3 { // idle is the 4th field
			idle = v
		}
	}
	return idle, all, nil
}
