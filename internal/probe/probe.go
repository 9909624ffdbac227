// Package probe looks for running Wwise authoring processes so a failed
// connect can be explained ("Wwise is not running" versus "WAAPI disabled").
package probe

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

type Process struct {
	PID       int32
	Name      string
	Exe       string
	CmdLine   string
	StartTime time.Time
}

var executables = []string{"wwise", "wwise.exe", "wwiseconsole", "wwiseconsole.exe"}

// FindWwise lists local processes that look like a Wwise authoring
// application, oldest first.
func FindWwise(ctx context.Context) ([]Process, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing processes: %w", err)
	}

	var results []Process
	for _, p := range procs {
		// Processes can exit between listing and inspection; skip them.
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		args, _ := p.CmdlineSliceWithContext(ctx)
		if !IsWwise(name, args) {
			continue
		}

		exe, _ := p.ExeWithContext(ctx)
		info := Process{
			PID:     p.Pid,
			Name:    name,
			Exe:     exe,
			CmdLine: strings.Join(args, " "),
		}
		if ms, err := p.CreateTimeWithContext(ctx); err == nil {
			info.StartTime = time.UnixMilli(ms)
		}
		results = append(results, info)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].StartTime.Before(results[j].StartTime)
	})
	return results, nil
}

// IsWwise reports whether a process with this name and argument list is a
// Wwise authoring application, including one launched through Wine.
func IsWwise(name string, args []string) bool {
	if matchExecutable(name) {
		return true
	}
	if len(args) == 0 {
		return false
	}
	if matchExecutable(args[0]) {
		return true
	}

	switch strings.ToLower(baseName(args[0])) {
	case "wine", "wine64", "wine-preloader", "wine64-preloader":
		for _, arg := range args[1:] {
			if matchExecutable(arg) {
				return true
			}
		}
	}
	return false
}

func matchExecutable(path string) bool {
	base := strings.ToLower(baseName(path))
	for _, exe := range executables {
		if base == exe {
			return true
		}
	}
	return false
}

// baseName handles both separators; Wine reports Windows paths.
func baseName(path string) string {
	path = strings.ReplaceAll(path, `\`, "/")
	return filepath.Base(path)
}
