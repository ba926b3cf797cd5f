package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command with fresh flag values
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	cfgFile, logLevel = "", "info"
	listJSON, initForce = false, false

	cmd := GetRootCmd()
	output := &bytes.Buffer{}
	cmd.SetOut(output)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)

	err := cmd.Execute()
	return output.String(), err
}

// setupHome initializes a configuration under a temporary home directory
func setupHome(t *testing.T) string {
	t.Helper()

	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENWEATHER_API_KEY", "")

	configPath := filepath.Join(home, ".toolgate", "toolgate.json")
	_, err := execute(t, "", "init", "--config", configPath)
	require.NoError(t, err)
	return configPath
}

func TestRootCommand(t *testing.T) {
	t.Run("version flag", func(t *testing.T) {
		output, err := execute(t, "", "--version")
		require.NoError(t, err)
		assert.Equal(t, "toolgate version "+GetVersion()+"\n", output)
	})

	t.Run("global flags", func(t *testing.T) {
		cmd := GetRootCmd()

		configFlag := cmd.PersistentFlags().Lookup("config")
		require.NotNil(t, configFlag)
		assert.Equal(t, "", configFlag.DefValue)

		logLevelFlag := cmd.PersistentFlags().Lookup("log-level")
		require.NotNil(t, logLevelFlag)
		assert.Equal(t, "info", logLevelFlag.DefValue)
	})

	t.Run("subcommands", func(t *testing.T) {
		names := map[string]bool{}
		for _, c := range GetRootCmd().Commands() {
			names[c.Name()] = true
		}
		for _, want := range []string{"serve", "stdio", "list", "call", "init", "status", "stop", "version"} {
			assert.True(t, names[want], "%s command should exist", want)
		}
	})
}

func TestVersionCommand(t *testing.T) {
	output, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(output, "toolgate "+GetVersion()+" (go"))
}

func TestInitCommand(t *testing.T) {
	configPath := setupHome(t)

	_, err := os.Stat(configPath)
	require.NoError(t, err)

	sample, err := os.ReadFile(filepath.Join(filepath.Dir(configPath), "tools", "echo.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(sample), "kind: echo")

	_, err = execute(t, "", "init", "--config", configPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	output, err := execute(t, "", "init", "--config", configPath, "--force")
	require.NoError(t, err)
	assert.Contains(t, output, "Configuration saved to: "+configPath)
	assert.NotContains(t, output, "Sample tool written")
}

func TestListCommand(t *testing.T) {
	configPath := setupHome(t)

	t.Run("table", func(t *testing.T) {
		output, err := execute(t, "", "list", "--config", configPath)
		require.NoError(t, err)
		assert.Contains(t, output, "NAME")
		assert.Contains(t, output, "echo")
		assert.Contains(t, output, "Echo the given arguments back")
	})

	t.Run("json", func(t *testing.T) {
		output, err := execute(t, "", "list", "--config", configPath, "--json")
		require.NoError(t, err)

		var descriptors []map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(output), &descriptors))
		require.Len(t, descriptors, 1)
		assert.Equal(t, "echo", descriptors[0]["name"])
		assert.Contains(t, descriptors[0], "inputSchema")
	})

	t.Run("empty directory", func(t *testing.T) {
		require.NoError(t, os.Remove(filepath.Join(filepath.Dir(configPath), "tools", "echo.yaml")))

		output, err := execute(t, "", "list", "--config", configPath)
		require.NoError(t, err)
		assert.Equal(t, "No tools found\n", output)
	})
}

func TestCallCommand(t *testing.T) {
	configPath := setupHome(t)

	t.Run("inline arguments", func(t *testing.T) {
		output, err := execute(t, "", "call", "--config", configPath, "echo", `{"x":1}`)
		require.NoError(t, err)

		var envelope map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(output), &envelope))
		assert.Equal(t, "echo", envelope["tool"])
		assert.Equal(t, map[string]interface{}{"x": 1.0}, envelope["result"])
	})

	t.Run("arguments from stdin", func(t *testing.T) {
		output, err := execute(t, `{"city":"Paris"}`, "call", "--config", configPath, "echo", "-")
		require.NoError(t, err)
		assert.Contains(t, output, `"city": "Paris"`)
	})

	t.Run("unknown tool", func(t *testing.T) {
		output, err := execute(t, "", "call", "--config", configPath, "missing")
		require.Error(t, err)
		assert.Contains(t, output, `"error": "Tool 'missing' not found."`)
	})

	t.Run("invalid arguments", func(t *testing.T) {
		_, err := execute(t, "", "call", "--config", configPath, "echo", `[1,2]`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "arguments must be a JSON object")
	})
}

func TestStdioCommand(t *testing.T) {
	configPath := setupHome(t)

	input := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05"}}` + "\n" +
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}` + "\n"

	output, err := execute(t, input, "stdio", "--config", configPath)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(output), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"protocolVersion":"2024-11-05"`)
	assert.Contains(t, lines[1], `"name":"echo"`)
}

func TestStatusAndStopCommands(t *testing.T) {
	configPath := setupHome(t)

	output, err := execute(t, "", "status", "--config", configPath)
	require.NoError(t, err)
	assert.Equal(t, "Status: stopped\n", output)

	output, err = execute(t, "", "stop", "--config", configPath)
	require.NoError(t, err)
	assert.Equal(t, "toolgate is not running\n", output)
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		expected string
	}{
		{"seconds only", 45 * time.Second, "45s"},
		{"minutes and seconds", 2*time.Minute + 30*time.Second, "2m30s"},
		{"hours minutes seconds", 3*time.Hour + 15*time.Minute + 20*time.Second, "3h15m20s"},
		{"rounds to seconds", 1500 * time.Millisecond, "2s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatDuration(tt.duration))
		})
	}
}

func TestParseArgs(t *testing.T) {
	args, err := parseArgs(nil)
	require.NoError(t, err)
	assert.Empty(t, args)

	args, err = parseArgs([]byte(`  {"a": [1, "b"]} `))
	require.NoError(t, err)
	assert.Equal(t, []interface{}{json.Number("1"), "b"}, args["a"])

	args, err = parseArgs([]byte(`{"x": 9007199254740993}`))
	require.NoError(t, err)
	assert.Equal(t, json.Number("9007199254740993"), args["x"])

	_, err = parseArgs([]byte(`null`))
	assert.Error(t, err)

	_, err = parseArgs([]byte(`{`))
	assert.Error(t, err)
}
