//go:build !linux

package monitor

// readCPUStat and readMeminfo have no portable equivalent outside
// /proc; non-Linux builds report zero values, as the disk sampler does
// when Statfs fails.
func readCPUStat() (idle, total uint64, err error) { return 0, 0, nil }

func readMeminfo() (total, free uint64, err error) { return 0, 0, nil }
