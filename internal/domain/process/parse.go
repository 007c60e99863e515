package process

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// parseTasklist reads `tasklist /V /FO CSV /NH` output. Columns:
// image name, pid, session name, session#, mem usage, status, user,
// cpu time, window title.
func parseTasklist(r io.Reader) ([]Info, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	var infos []Info
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse tasklist output: %w", err)
		}
		if len(record) < 9 {
			continue
		}
		pid, err := strconv.Atoi(strings.TrimSpace(record[1]))
		if err != nil {
			continue
		}
		title := strings.TrimSpace(record[8])
		if title == "N/A" {
			title = ""
		}
		infos = append(infos, Info{
			PID:         pid,
			Name:        strings.TrimSpace(record[0]),
			WindowTitle: title,
			Responding:  !strings.EqualFold(strings.TrimSpace(record[5]), "Not Responding"),
		})
	}
	return infos, nil
}

// parsePS reads `ps -eo pid=,stat=,comm=` output. Stopped (T) and
// zombie (Z) processes are reported as not responding.
func parsePS(r io.Reader) ([]Info, error) {
	var infos []Info
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		pid, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		stat := fields[1]
		infos = append(infos, Info{
			PID:        pid,
			Name:       strings.Join(fields[2:], " "),
			Responding: !strings.HasPrefix(stat, "T") && !strings.HasPrefix(stat, "Z"),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to parse ps output: %w", err)
	}
	return infos, nil
}
