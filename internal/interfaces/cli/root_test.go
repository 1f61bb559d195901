package cli

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/mapsync/internal/config"
	"github.com/turtacn/mapsync/internal/testutil"
)

func TestNewRootCommand_Structure(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "mapsync", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.NotEmpty(t, cmd.Long)

	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"serve", "fetch", "events", "version"} {
		assert.True(t, names[want], want)
	}
}

func TestNewRootCommand_GlobalFlags(t *testing.T) {
	pf := NewRootCommand().PersistentFlags()
	for _, name := range []string{"config", "env-file", "log-level", "output", "verbose", "no-color", "timeout"} {
		assert.NotNil(t, pf.Lookup(name), name)
	}
	assert.Equal(t, "text", pf.Lookup("output").DefValue)
	assert.Equal(t, "30s", pf.Lookup("timeout").DefValue)
}

func TestVersionCommand_NeedsNoConfig(t *testing.T) {
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config", "/does/not/exist.yaml", "version", "--json"})

	require.NoError(t, cmd.Execute())

	var info BuildInfo
	require.NoError(t, json.Unmarshal(out.Bytes(), &info))
	assert.Equal(t, Version, info.Version)
	assert.Equal(t, GitCommit, info.Commit)
	assert.NotEmpty(t, info.GoVersion)
}

func TestPersistentPreRun_LoadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mapsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fetch:\n  status: pending\nlog:\n  level: warn\n  format: console\n"), 0o600))

	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	require.NoError(t, persistentPreRun(cmd, &RootOptions{ConfigPath: path, OutputFormat: "json"}))

	cliCtx, err := GetCLIContext(cmd)
	require.NoError(t, err)
	assert.Equal(t, path, cliCtx.ConfigPath)
	assert.Equal(t, "pending", cliCtx.Config.Fetch.Status)
	assert.Equal(t, "warn", cliCtx.Config.Log.Level)
	assert.Equal(t, "json", cliCtx.OutputFormat)
	assert.NotNil(t, cliCtx.Logger)
}

func TestPersistentPreRun_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("MAPSYNC_FETCH_STATUS=sold\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("MAPSYNC_FETCH_STATUS") })

	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	require.NoError(t, persistentPreRun(cmd, &RootOptions{EnvFile: path}))

	cliCtx, err := GetCLIContext(cmd)
	require.NoError(t, err)
	assert.Empty(t, cliCtx.ConfigPath)
	assert.Equal(t, "sold", cliCtx.Config.Fetch.Status)
}

func TestPersistentPreRun_Errors(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())

	err := persistentPreRun(cmd, &RootOptions{EnvFile: filepath.Join(t.TempDir(), "missing.env")})
	assert.Error(t, err)

	err = persistentPreRun(cmd, &RootOptions{ConfigPath: filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)
}

func TestInitLogger_FlagsOverrideFile(t *testing.T) {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)

	_, err := initLogger(cfg, &RootOptions{LogLevel: "DEBUG"})
	require.NoError(t, err)
	_, err = initLogger(cfg, &RootOptions{Verbose: true})
	require.NoError(t, err)
	assert.Equal(t, config.DefaultLogLevel, cfg.Log.Level, "the loaded config is not mutated")
}

func TestGetCLIContext_Missing(t *testing.T) {
	cmd := &cobra.Command{}
	_, err := GetCLIContext(cmd)
	assert.Error(t, err)

	cmd.SetContext(context.Background())
	_, err = GetCLIContext(cmd)
	assert.Error(t, err)
}

type sampleTable struct{}

func (sampleTable) TableHeaders() []string { return []string{"ID", "Price"} }
func (sampleTable) TableRows() [][]string  { return [][]string{{"A", "$420K"}, {"X1"}} }
func (sampleTable) String() string         { return "two listings" }

func withOutput(format string) (*cobra.Command, *bytes.Buffer) {
	cmd := &cobra.Command{}
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetContext(context.WithValue(context.Background(), cliContextKey{}, &CLIContext{
		OutputFormat: format,
		Logger:       testutil.NewMockLogger(),
	}))
	return cmd, &out
}

func TestPrintResult_Formats(t *testing.T) {
	cmd, out := withOutput("json")
	require.NoError(t, PrintResult(cmd, map[string]int{"count": 2}))
	assert.JSONEq(t, `{"count":2}`, out.String())

	cmd, out = withOutput("table")
	require.NoError(t, PrintResult(cmd, sampleTable{}))
	assert.Contains(t, out.String(), "ID")
	assert.Contains(t, out.String(), "$420K")
	assert.Contains(t, out.String(), "X1")

	cmd, out = withOutput("text")
	require.NoError(t, PrintResult(cmd, sampleTable{}))
	assert.Equal(t, "two listings\n", out.String())

	cmd, out = withOutput("table")
	require.NoError(t, PrintResult(cmd, "plain"))
	assert.Equal(t, "plain\n", out.String())
}

func TestPrintResult_NoContextFallsBackToJSON(t *testing.T) {
	cmd := &cobra.Command{}
	var out bytes.Buffer
	cmd.SetOut(&out)
	require.NoError(t, PrintResult(cmd, []string{"a"}))
	assert.JSONEq(t, `["a"]`, out.String())
}

func TestPrintErrorAndSuccess(t *testing.T) {
	cmd := &cobra.Command{}
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)

	PrintError(cmd, nil)
	assert.Empty(t, errOut.String())

	PrintError(cmd, stderrors.New("boom"))
	assert.Contains(t, errOut.String(), "Error:")
	assert.Contains(t, errOut.String(), "boom")

	PrintSuccess(cmd, "done")
	assert.Contains(t, out.String(), "done")
}

func TestFormatTable(t *testing.T) {
	assert.Empty(t, FormatTable(nil, nil))

	s := FormatTable([]string{"Kind", "Label"}, [][]string{{"cluster", "171"}, {"price"}})
	assert.Contains(t, s, "Kind")
	assert.Contains(t, s, "cluster")
	assert.Contains(t, s, "171")
	assert.Contains(t, s, "price")
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", truncateString("short", 10))
	assert.Equal(t, "abcdefg...", truncateString("abcdefghijklmnop", 10))
	assert.Equal(t, "ab", truncateString("abcdef", 2))
}

//Personal.AI order the ending
