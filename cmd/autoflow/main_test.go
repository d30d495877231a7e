package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, databaseURL string, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer

	cmd := newRootCommand()
	cmd.Writer = &out
	cmd.ErrWriter = &out

	argv := append([]string{"autoflow", "--database-url", databaseURL, "--log-level", "error"}, args...)
	err := cmd.Run(context.Background(), argv)

	return out.String(), err
}

func TestCLI_WorkflowLifecycle(t *testing.T) {
	db := "sqlite://" + filepath.Join(t.TempDir(), "autoflow.db")

	out, err := runCLI(t, db, "workflows", "add",
		"--name", "Low battery",
		"--trigger", "battery_level",
		"--value", "15",
		"--action", "toggle_wifi",
		"--action-value", "off",
	)
	require.NoError(t, err)
	assert.Equal(t, "added workflow 1\n", out)

	out, err = runCLI(t, db, "workflows", "list")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "TRIGGER")
	assert.Contains(t, lines[1], "Low battery")
	assert.Contains(t, lines[1], "BATTERY_LEVEL")
	assert.Contains(t, lines[1], "Toggle WiFi")

	out, err = runCLI(t, db, "workflows", "disable", "1")
	require.NoError(t, err)
	assert.Equal(t, "workflow 1 disabled\n", out)

	out, err = runCLI(t, db, "workflows", "check", "1")
	require.NoError(t, err)
	assert.Equal(t, "NOT_FIRED: workflow disabled\n", out)

	out, err = runCLI(t, db, "workflows", "delete", "1")
	require.NoError(t, err)
	assert.Equal(t, "deleted workflow 1\n", out)

	out, err = runCLI(t, db, "workflows", "delete", "1")
	require.NoError(t, err)
	assert.Equal(t, "workflow 1 not found\n", out)
}

func TestCLI_RejectsInvalidWorkflow(t *testing.T) {
	_, err := runCLI(t, "memory://", "workflows", "add",
		"--trigger", "BATTERY_LEVEL",
		"--value", "150",
		"--action", "TOGGLE_WIFI",
	)
	assert.ErrorContains(t, err, "battery")
}

func TestCLI_CheckAdHocTrigger(t *testing.T) {
	out, err := runCLI(t, "memory://", "workflows", "check", "--trigger", "HEADPHONE_CONNECTION", "--value", "CONNECTED")
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(out, "NOT_FIRED: "), out)
}

func TestCLI_RequiresID(t *testing.T) {
	_, err := runCLI(t, "memory://", "workflows", "enable")
	assert.ErrorContains(t, err, "workflow id is required")

	_, err = runCLI(t, "memory://", "workflows", "enable", "abc")
	assert.ErrorContains(t, err, "invalid workflow id")
}

func TestCLI_InvalidConfig(t *testing.T) {
	_, err := runCLI(t, "memory://", "--event-bus", "carrier-pigeon", "workflows", "list")
	assert.ErrorContains(t, err, "invalid configuration")
}
