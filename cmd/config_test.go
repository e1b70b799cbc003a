package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/taskboard/internal/output"
)

// testEnv sets up isolated config dir, viper, and output for testing.
func testEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	// Override configDirFunc for tests
	origFunc := configDirFunc
	configDirFunc = func() (string, error) { return dir, nil }
	t.Cleanup(func() { configDirFunc = origFunc })

	// Reset viper
	viper.Reset()
	setDefaults(dir)
	viper.Set("data_dir", filepath.Join(dir, "data"))
	viper.Set("tasks_dir", filepath.Join(dir, "tasks"))

	// Initialize output and drop any cached store
	ui = output.New()
	dataStore = nil
	t.Cleanup(func() { dataStore = nil })

	return dir
}

func TestConfigInit_CreatesFile(t *testing.T) {
	dir := testEnv(t)

	err := configInitRun()
	require.NoError(t, err)

	cfgPath := filepath.Join(dir, "config.yaml")
	_, err = os.Stat(cfgPath)
	assert.NoError(t, err, "config file should exist")

	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "taskboard configuration")
	assert.Contains(t, string(data), "retry_interval: 1s")
	assert.Contains(t, string(data), "port: 8080")
}

func TestConfigInit_RefusesOverwrite(t *testing.T) {
	dir := testEnv(t)

	// Create existing file
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("existing"), 0644))

	configForce = false
	err := configInitRun()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestConfigInit_ForceOverwrite(t *testing.T) {
	dir := testEnv(t)

	// Create existing file
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("existing"), 0644))

	configForce = true
	err := configInitRun()
	require.NoError(t, err)

	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "taskboard configuration")
}

func TestConfigShow_NoFile(t *testing.T) {
	testEnv(t)

	err := configShowRun()
	assert.NoError(t, err)
}

func TestConfigShow_WithFile(t *testing.T) {
	testEnv(t)

	// Create config first
	require.NoError(t, configInitRun())

	err := configShowRun()
	assert.NoError(t, err)
}

func TestConfigEdit_NoEditor(t *testing.T) {
	testEnv(t)

	// Unset EDITOR and VISUAL
	origEditor := os.Getenv("EDITOR")
	origVisual := os.Getenv("VISUAL")
	_ = os.Unsetenv("EDITOR")
	_ = os.Unsetenv("VISUAL")
	t.Cleanup(func() {
		if origEditor != "" {
			_ = os.Setenv("EDITOR", origEditor)
		}
		if origVisual != "" {
			_ = os.Setenv("VISUAL", origVisual)
		}
	})

	err := configEditRun()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "$EDITOR is not set")
}

func TestConfigEdit_NoConfigFile(t *testing.T) {
	testEnv(t)

	_ = os.Setenv("EDITOR", "echo") // harmless command
	t.Cleanup(func() { _ = os.Unsetenv("EDITOR") })

	err := configEditRun()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestDetectSource(t *testing.T) {
	fileValues := map[string]bool{"key_a": true}

	t.Setenv("TASKBOARD_TEST_KEY", "val")
	assert.Equal(t, "env TASKBOARD_TEST_KEY", detectSource(configKey{Key: "test_key"}, fileValues))
	assert.Equal(t, "file", detectSource(configKey{Key: "key_a"}, fileValues))
	assert.Equal(t, "default", detectSource(configKey{Key: "key_b"}, fileValues))
}

func TestConfigKey_EnvVar(t *testing.T) {
	assert.Equal(t, "TASKBOARD_WATCH_RETRY_INTERVAL", configKey{Key: "watch.retry_interval"}.envVar())
	assert.Equal(t, "TASKBOARD_DATA_DIR", configKey{Key: "data_dir"}.envVar())
}

func TestConfigShow_FormatsValues(t *testing.T) {
	dir := testEnv(t)
	out := captureUI(t)
	viper.Set("watch.retry_interval", "250ms")
	viper.Set("tasks_dir", "relative/tasks")

	require.NoError(t, configShowRun())

	text := out.String()
	assert.Contains(t, text, "250ms")
	assert.Contains(t, text, filepath.Join(dir, "data"))
	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Contains(t, text, filepath.Join(wd, "relative", "tasks"))
	assert.NotContains(t, text, "must be a positive duration")
}

func TestConfigShow_WarnsOnInvalidValues(t *testing.T) {
	testEnv(t)
	out := captureUI(t)
	viper.Set("watch.retry_interval", "soon")

	require.NoError(t, configShowRun())
	assert.Contains(t, out.String(), `watch.retry_interval must be a positive duration, got "soon"`)
}

func TestCheckConfig(t *testing.T) {
	testEnv(t)
	assert.NoError(t, checkConfig())

	viper.Set("port", 70000)
	viper.Set("watch.retry_interval", "0s")
	err := checkConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port 70000 out of range")
	assert.Contains(t, err.Error(), "watch.retry_interval")
}

func TestFlattenKeys(t *testing.T) {
	input := map[string]any{
		"top": "val",
		"nested": map[string]any{
			"a": "1",
			"b": "2",
		},
	}

	result := make(map[string]bool)
	flattenKeys("", input, result)

	assert.True(t, result["top"])
	assert.True(t, result["nested.a"])
	assert.True(t, result["nested.b"])
	assert.False(t, result["nested"])
}

func TestConfigInit_RoundTrip(t *testing.T) {
	dir := testEnv(t)
	require.NoError(t, configInitRun())

	viper.Reset()
	viper.SetConfigFile(filepath.Join(dir, "config.yaml"))
	require.NoError(t, viper.ReadInConfig())
	assert.Equal(t, 8080, viper.GetInt("port"))
	assert.Equal(t, time.Second, viper.GetDuration("watch.retry_interval"))
	assert.Equal(t, filepath.Join(dir, "data"), viper.GetString("data_dir"))
}
