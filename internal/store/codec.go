package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rickgao/boss-relay/internal/model"
)

// Hash field names of the redis record layout.
const (
	fieldToken       = "token"
	fieldUsername    = "username"
	fieldPassword    = "password"
	fieldStatus      = "status"
	fieldBattleSteps = "battleSteps"
	fieldLogs        = "logs"
	fieldStopBattle  = "stopBattle"
)

// encodeRecord flattens a record into hash fields.
func encodeRecord(rec model.AccountRecord) (map[string]any, error) {
	events, err := encodeEvents(rec.RecentEvents)
	if err != nil {
		return nil, err
	}
	logs, err := encodeLogs(rec.RecentLogs)
	if err != nil {
		return nil, err
	}
	status := rec.Status
	if status == "" {
		status = model.StatusOffline
	}
	return map[string]any{
		fieldToken:       rec.AuthToken,
		fieldUsername:    rec.Credentials.Username,
		fieldPassword:    rec.Credentials.Password,
		fieldStatus:      string(status),
		fieldBattleSteps: events,
		fieldLogs:        logs,
		fieldStopBattle:  strconv.FormatBool(rec.StopRequested),
	}, nil
}

// decodeRecord rebuilds a record from hash fields. Missing history fields
// decode as empty. A history field that is not a JSON array also decodes as
// empty; the record is still returned, together with the decode error.
func decodeRecord(id string, fields map[string]string) (model.AccountRecord, error) {
	events, evErr := decodeEvents(fields[fieldBattleSteps])
	if evErr != nil {
		evErr = fmt.Errorf("%s: %w", fieldBattleSteps, evErr)
	}
	logs, logErr := decodeLogs(fields[fieldLogs])
	if logErr != nil {
		logErr = fmt.Errorf("%s: %w", fieldLogs, logErr)
	}
	return model.AccountRecord{
		AccountID: id,
		Credentials: model.Credentials{
			Username: fields[fieldUsername],
			Password: fields[fieldPassword],
		},
		AuthToken:     fields[fieldToken],
		Status:        model.Status(fields[fieldStatus]),
		StopRequested: fields[fieldStopBattle] == "true",
		RecentEvents:  events,
		RecentLogs:    logs,
	}, errors.Join(evErr, logErr)
}

func encodeEvents(events []model.Event) (string, error) {
	if events == nil {
		events = []model.Event{}
	}
	b, err := json.Marshal(events)
	if err != nil {
		return "", fmt.Errorf("encode events: %w", err)
	}
	return string(b), nil
}

func decodeEvents(raw string) ([]model.Event, error) {
	if raw == "" {
		return nil, nil
	}
	var events []model.Event
	if err := json.Unmarshal([]byte(raw), &events); err != nil {
		return nil, err
	}
	return events, nil
}

// Logs are stored as "hh:mm:ss message" strings.
func encodeLogs(logs []model.LogEntry) (string, error) {
	lines := make([]string, len(logs))
	for i, l := range logs {
		lines[i] = l.String()
	}
	b, err := json.Marshal(lines)
	if err != nil {
		return "", fmt.Errorf("encode logs: %w", err)
	}
	return string(b), nil
}

func decodeLogs(raw string) ([]model.LogEntry, error) {
	if raw == "" {
		return nil, nil
	}
	var lines []string
	if err := json.Unmarshal([]byte(raw), &lines); err != nil {
		return nil, err
	}
	logs := make([]model.LogEntry, len(lines))
	for i, line := range lines {
		logs[i] = parseLogLine(line)
	}
	return logs, nil
}

// parseLogLine splits a stored line into its clock time and message. Lines
// without a leading clock keep the whole text as the message and a zero time,
// so they encode back unchanged.
func parseLogLine(line string) model.LogEntry {
	n := len(time.TimeOnly)
	if len(line) > n && line[n] == ' ' {
		if at, err := time.Parse(time.TimeOnly, line[:n]); err == nil {
			return model.LogEntry{At: at, Message: line[n+1:]}
		}
	}
	return model.LogEntry{Message: line}
}
