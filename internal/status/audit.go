package status

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// appendAudit writes ev to the audit log. The log is diagnostic only, so a
// failure is logged and never fails the transition.
func (s *Store) appendAudit(ev Event) {
	line, err := json.Marshal(ev)
	if err != nil {
		s.logger.Warn("marshal audit entry", "unit", ev.Unit, "error", err)
		return
	}

	f, err := os.OpenFile(s.AuditPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		s.logger.Warn("open audit log", "path", s.AuditPath(), "error", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		s.logger.Warn("append audit entry", "unit", ev.Unit, "error", err)
	}
}

// ReadAudit returns the entries of an audit log, oldest first. Lines that do
// not parse are skipped. Only used for display.
func ReadAudit(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return events, fmt.Errorf("read audit log: %w", err)
	}
	return events, nil
}
