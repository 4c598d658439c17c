package internal

import (
	"os"
	"runtime"
)

type HostInfo struct {
	Hostname string `json:"hostname"`
	OS       string `json:"os"`
	Arch     string `json:"arch"`
	CPUs     int    `json:"cpus"`
	RAMBytes uint64 `json:"ram_bytes"`
}

func GetHostInfo() HostInfo {
	name, err := os.Hostname()
	if err != nil {
		name = "unknown"
	}
	return HostInfo{
		Hostname: name,
		OS:       runtime.GOOS,
		Arch:     runtime.GOARCH,
		CPUs:     runtime.NumCPU(),
		RAMBytes: TotalRAM(),
	}
}
