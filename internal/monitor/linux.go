//go:build linux

package monitor

import (
	"bufio"
	"errors"
	"os"
	"strconv"
	"strings"
)

// readCPUStat parses the aggregate "cpu" line of /proc/stat into
// (idle, total) jiffies across all cores, the input sampleCPU deltas
// between calls.
func readCPUStat() (idle, total uint64, err error) {
	f, err := os.Open("/proc/stat")
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || fields[0] != "cpu" {
			continue
		}
		var sum uint64
		for i, v := range fields[1:] {
			n, perr := strconv.ParseUint(v, 10, 64)
			if perr != nil {
				continue
			}
			sum += n
			if i == 3 { // idle is the 4th field
				idle = n
			}
		}
		return idle, sum, nil
	}
	return 0, 0, errors.New("monitor: no cpu line in /proc/stat")
}

// readMeminfo parses MemTotal/MemAvailable from /proc/meminfo, in kB.
func readMeminfo() (total, free uint64, err error) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		switch strings.TrimSuffix(fields[0], ":") {
		case "MemTotal":
			total, _ = strconv.ParseUint(fields[1], 10, 64)
		case "MemAvailable":
			free, _ = strconv.ParseUint(fields[1], 10, 64)
		}
	}
	return total, free, nil
}
