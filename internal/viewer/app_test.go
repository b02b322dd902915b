package viewer

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleLog = `{"asctime":"2026-03-01T10:05:00.000Z","message":"Process started: sshd (PID: 10)","levelname":"PROCESS_STARTED"}
{"asctime":"2026-03-01T10:06:00.000Z","message":"Current process count: 120","levelname":"INFO"}
{"asctime":"2026-03-01T11:01:00.000Z","message":"File changed: /home/a.txt","levelname":"FILE_CHANGED"}
`

func writeLog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "system_audit.log")
	require.NoError(t, os.WriteFile(path, []byte(sampleLog), 0644))
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewCommand(context.Background(), nil)
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestFilterCommand(t *testing.T) {
	path := writeLog(t)

	out, errOut, err := execute(t, "filter", "--log-path", path, "--keyword", "a.txt", "--level", "FILE_CHANGED")
	require.NoError(t, err)
	assert.Contains(t, out, "File changed: /home/a.txt")
	assert.NotContains(t, out, "sshd")
	assert.Contains(t, errOut, "1 matching lines")
}

func TestFilterCommandDefaultsToAllLevels(t *testing.T) {
	path := writeLog(t)

	out, _, err := execute(t, "filter", "--log-path", path)
	require.NoError(t, err)
	assert.Equal(t, sampleLog, out)
}

func TestFilterCommandMissingLog(t *testing.T) {
	_, _, err := execute(t, "filter", "--log-path", filepath.Join(t.TempDir(), "absent.log"))
	assert.Error(t, err)
}

func TestReportCommand(t *testing.T) {
	path := writeLog(t)

	out, _, err := execute(t, "report", "--log-path", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Events: 3")
	assert.Contains(t, out, "PROCESS_STARTED")
	assert.Contains(t, out, "2026-03-01 10:00")
}

func TestReportCommandJSON(t *testing.T) {
	path := writeLog(t)

	out, _, err := execute(t, "report", "--log-path", path, "--json")
	require.NoError(t, err)

	var report struct {
		Total int `json:"total"`
		Hours []struct {
			Count int `json:"count"`
		} `json:"hours"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 3, report.Total)
	assert.Len(t, report.Hours, 2)
}

func TestUnknownCommand(t *testing.T) {
	_, _, err := execute(t, "bogus")
	assert.Error(t, err)
}
