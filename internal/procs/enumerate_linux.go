//go:build linux

package procs

import (
	"os"
	"strconv"
	"strings"

	"github.com/madhurdeepjain/privacyradar-core/internal/model"
)

// EnumerateProcesses reads /proc to list every visible process with its
// name, executable path and parent pid (§4.4 step 1).
func EnumerateProcesses() ([]model.ProcessEntry, error) {
	dirEntries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, err
	}

	entries := make([]model.ProcessEntry, 0, len(dirEntries))
	for _, de := range dirEntries {
		pid, err := strconv.Atoi(de.Name())
		if err != nil {
			continue
		}
		entry, ok := readProcessEntry(int32(pid))
		if !ok {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func readProcessEntry(pid int32) (model.ProcessEntry, bool) {
	statData, err := os.ReadFile("/proc/" + strconv.Itoa(int(pid)) + "/stat")
	if err != nil {
		return model.ProcessEntry{}, false
	}
	name, ppid, startTime, hasStartTime, ok := parseStat(string(statData))
	if !ok {
		return model.ProcessEntry{}, false
	}

	entry := model.ProcessEntry{
		PID:          pid,
		Name:         name,
		PPID:         ppid,
		HasPPID:      true,
		StartTime:    startTime,
		HasStartTime: hasStartTime,
	}

	if exe, err := os.Readlink("/proc/" + strconv.Itoa(int(pid)) + "/exe"); err == nil {
		entry.ExePath = exe
		entry.HasExePath = true
	}

	return entry, true
}

// parseStat extracts comm, ppid and starttime from a /proc/<pid>/stat line.
// The comm field is parenthesized and may itself contain spaces or parens,
// so it's located by the last ")" rather than naive field splitting.
func parseStat(line string) (name string, ppid int32, startTime uint64, hasStartTime bool, ok bool) {
	open := strings.IndexByte(line, '(')
	close := strings.LastIndexByte(line, ')')
	if open < 0 || close < 0 || close < open {
		return "", 0, 0, false, false
	}
	name = line[open+1 : close]

	rest := strings.Fields(line[close+1:])
	// rest[0] = state (field 3), rest[1] = ppid (field 4), rest[19] =
	// starttime (field 22) - the discriminator a reused pid needs.
	if len(rest) < 2 {
		return name, 0, 0, false, false
	}
	p, err := strconv.Atoi(rest[1])
	if err != nil {
		return name, 0, 0, false, false
	}
	if len(rest) >= 20 {
		if st, err := strconv.ParseUint(rest[19], 10, 64); err == nil {
			startTime, hasStartTime = st, true
		}
	}
	return name, int32(p), startTime, hasStartTime, true
}
