package main

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validPipelineYAML = `
name: demo
retry:
  max_retries: 3
  initial_interval: 1ms
timeout:
  duration: 1s
`

const invalidPipelineYAML = `
name: demo
timeout:
  duration: 0
`

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestValidateCommand_ValidConfig(t *testing.T) {
	path := writeTempConfig(t, validPipelineYAML)

	app := createApp()
	err := app.Run(context.Background(), []string{"faultlinectl", "validate", "--config", path})
	require.NoError(t, err)
}

func TestValidateCommand_InvalidConfig(t *testing.T) {
	path := writeTempConfig(t, invalidPipelineYAML)

	app := createApp()
	err := app.Run(context.Background(), []string{"faultlinectl", "validate", "--config", path})
	require.Error(t, err)

	var exitErr *exitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 1, exitErr.code)
}

func TestRunCommand_NoCommandGivenFails(t *testing.T) {
	path := writeTempConfig(t, validPipelineYAML)

	app := createApp()
	err := app.Run(context.Background(), []string{"faultlinectl", "run", "--config", path})
	require.Error(t, err)

	var exitErr *exitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.code)
}

func TestRunCommand_SucceedingCommand(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on a POSIX shell")
	}
	path := writeTempConfig(t, validPipelineYAML)

	app := createApp()
	err := app.Run(context.Background(), []string{
		"faultlinectl", "run", "--config", path, "--", "true",
	})
	require.NoError(t, err)
}

func TestRunCommand_FailingCommandExhaustsRetriesAndFails(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on a POSIX shell")
	}
	path := writeTempConfig(t, validPipelineYAML)

	app := createApp()
	err := app.Run(context.Background(), []string{
		"faultlinectl", "run", "--config", path, "--", "false",
	})
	require.Error(t, err)

	var exitErr *exitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 1, exitErr.code)
}

func TestRunCommand_InvalidConfigFails(t *testing.T) {
	path := writeTempConfig(t, invalidPipelineYAML)

	app := createApp()
	err := app.Run(context.Background(), []string{
		"faultlinectl", "run", "--config", path, "--", "true",
	})
	require.Error(t, err)

	var exitErr *exitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 1, exitErr.code)
}
