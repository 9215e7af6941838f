package integration

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSchema = `Table: users
- id (INT) [primary key]
- email (VARCHAR)
- password_hash (VARCHAR)
- created_at (TIMESTAMP)
`

// TestPipelineIntegration_DryRunAllowed runs a clean statement end to end
// through the built binary and checks both the printed result and the
// audit partition it leaves behind.
func TestPipelineIntegration_DryRunAllowed(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	env := setupTestEnv(t)

	output, err := env.run("run",
		"--user", "alice",
		"--question", "how many users signed up",
		"--statement", "SELECT id, email FROM users",
		"--schema", env.schemaFile,
		"--dry-run")
	require.NoError(t, err, "run command failed: %s", output)

	result := parseResult(t, output)
	assert.Equal(t, "SELECT id, email FROM users", result["executed_statement"])
	assert.Equal(t, true, result["success"])

	entries := readAuditSeries(t, env.auditDir, "queries-")
	require.Len(t, entries, 1)
	assert.Equal(t, "alice", entries[0]["user_id"])
	assert.Equal(t, "allowed", entries[0]["status"])
	assert.Equal(t, "how many users signed up", entries[0]["question"])
}

// TestPipelineIntegration_Rejected checks that a destructive statement
// exits with the rejection code, never prints a result, and still lands
// a blocked audit entry.
func TestPipelineIntegration_Rejected(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	env := setupTestEnv(t)

	output, err := env.run("run",
		"--user", "mallory",
		"--statement", "DROP TABLE users",
		"--dry-run")
	require.Error(t, err)

	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.ExitCode())
	assert.Contains(t, output, "REJECTED")

	entries := readAuditSeries(t, env.auditDir, "queries-")
	require.Len(t, entries, 1)
	assert.Equal(t, "blocked", entries[0]["status"])
	assert.Equal(t, "DROP TABLE users", entries[0]["generated_statement"])
}

// TestPipelineIntegration_SensitiveRewrite checks the full sanitization
// path: the rewritten statement in the printed result plus the violation
// series entry.
func TestPipelineIntegration_SensitiveRewrite(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	env := setupTestEnv(t)

	output, err := env.run("run",
		"--user", "alice",
		"--statement", "SELECT id, password_hash FROM users",
		"--schema", env.schemaFile,
		"--dry-run")
	require.NoError(t, err, "run command failed: %s", output)

	result := parseResult(t, output)
	assert.Equal(t, "SELECT `id` FROM users", result["executed_statement"])
	assert.Equal(t, "SELECT id, password_hash FROM users", result["original_statement"])

	violations := readAuditSeries(t, env.auditDir, "violations-")
	require.Len(t, violations, 1)
	assert.Equal(t, "HIGH", violations[0]["severity"])
	assert.Equal(t, "alice", violations[0]["user_id"])
}

// TestPipelineIntegration_AuditQuery runs several statements and then
// reads them back through the audit subcommand.
func TestPipelineIntegration_AuditQuery(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	env := setupTestEnv(t)

	statements := []string{
		"SELECT id FROM users",
		"SELECT email FROM users",
	}
	for _, stmt := range statements {
		output, err := env.run("run",
			"--user", "alice",
			"--statement", stmt,
			"--schema", env.schemaFile,
			"--dry-run")
		require.NoError(t, err, "run command failed: %s", output)
	}
	// An entry for another user must not show up in alice's results.
	bobOut, err := env.run("run", "--user", "bob",
		"--statement", "SELECT id FROM users", "--dry-run")
	require.NoError(t, err, "run command failed: %s", bobOut)

	auditOut, err := env.run("audit", "--user", "alice")
	require.NoError(t, err, "audit command failed: %s", auditOut)

	count := 0
	scanner := bufio.NewScanner(strings.NewReader(auditOut))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "{") {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		assert.Equal(t, "alice", entry["user_id"])
		count++
	}
	assert.Equal(t, len(statements), count)
}

// testEnv holds the built binary plus the throwaway config, schema and
// audit directory one test run uses.
type testEnv struct {
	t          *testing.T
	binaryPath string
	configFile string
	schemaFile string
	auditDir   string
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	projectRoot, err := getProjectRoot()
	require.NoError(t, err)

	dir := t.TempDir()
	binaryPath := filepath.Join(dir, "queryshield")

	cmd := exec.Command("go", "build", "-o", binaryPath, "./cmd/queryshield")
	cmd.Dir = projectRoot
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("Failed to build binary: %v\n%s", err, out)
	}

	auditDir := filepath.Join(dir, "audit")
	configFile := filepath.Join(dir, "config.yaml")
	configYAML := fmt.Sprintf("audit:\n  dir: %s\nlogging:\n  level: error\n", auditDir)
	require.NoError(t, os.WriteFile(configFile, []byte(configYAML), 0o644))

	schemaFile := filepath.Join(dir, "schema.txt")
	require.NoError(t, os.WriteFile(schemaFile, []byte(sampleSchema), 0o644))

	return &testEnv{
		t:          t,
		binaryPath: binaryPath,
		configFile: configFile,
		schemaFile: schemaFile,
		auditDir:   auditDir,
	}
}

// run invokes the binary with the shared --config flag prepended and
// returns combined output.
func (e *testEnv) run(args ...string) (string, error) {
	e.t.Helper()
	full := append([]string{args[0], "--config", e.configFile}, args[1:]...)
	cmd := exec.Command(e.binaryPath, full...)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// parseResult extracts the single JSON object the run command prints.
// Log lines may precede it, so scan for the first opening brace.
func parseResult(t *testing.T, output string) map[string]any {
	t.Helper()
	idx := strings.Index(output, "{")
	require.GreaterOrEqual(t, idx, 0, "no JSON result in output: %s", output)
	var result map[string]any
	require.NoError(t, json.Unmarshal([]byte(output[idx:]), &result))
	return result
}

// readAuditSeries reads every NDJSON line from the partitions with the
// given prefix.
func readAuditSeries(t *testing.T, dir, prefix string) []map[string]any {
	t.Helper()

	matches, err := filepath.Glob(filepath.Join(dir, prefix+"*.ndjson"))
	require.NoError(t, err)

	var entries []map[string]any
	for _, path := range matches {
		f, err := os.Open(path)
		require.NoError(t, err)
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			var e map[string]any
			require.NoError(t, json.Unmarshal(line, &e))
			entries = append(entries, e)
		}
		f.Close()
	}
	return entries
}

// getProjectRoot walks up from the working directory until it finds
// go.mod.
func getProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found above %s", dir)
		}
		dir = parent
	}
}
