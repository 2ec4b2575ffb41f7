package e2e

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSmokeFlow(t *testing.T) {
	home := t.TempDir()
	binaryPath := buildBinary(t)
	require.NoError(t, writeConfigFixture(home))

	stdout, stderr, err := runPPMI(t, binaryPath, home, "version")
	require.NoError(t, err, "stderr: %s", stderr)
	assert.NotEmpty(t, strings.TrimSpace(stdout))

	_, stderr, err = runPPMI(t, binaryPath, home,
		"auth", "set",
		"--login", "researcher@example.org",
		"--password", "s3cret",
	)
	require.NoError(t, err, "stderr: %s", stderr)
	assert.FileExists(t, filepath.Join(home, ".ppmi", "secrets", "credentials.toml"))

	stdout, stderr, err = runPPMI(t, binaryPath, home, "catalog", "list")
	require.NoError(t, err, "stderr: %s", stderr)
	assert.Contains(t, stdout, "Demographics.csv")
	assert.Contains(t, stdout, "Age_at_visit.csv")
}

func buildBinary(t *testing.T) string {
	t.Helper()

	binaryPath := filepath.Join(t.TempDir(), "ppmi-e2e")
	cmd := exec.Command("go", "build", "-o", binaryPath, "./cmd/ppmi")
	cmd.Dir = repoRoot(t)

	output, err := cmd.CombinedOutput()
	require.NoError(t, err, "build ppmi binary: %s", string(output))
	return binaryPath
}

func runPPMI(t *testing.T, binaryPath, home string, args ...string) (string, string, error) {
	t.Helper()

	cmd := exec.Command(binaryPath, args...)
	cmd.Env = append(os.Environ(), "HOME="+home, "PPMI_LOG_FORMAT=json")

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

func repoRoot(t *testing.T) string {
	t.Helper()

	wd, err := os.Getwd()
	require.NoError(t, err)
	return filepath.Clean(filepath.Join(wd, "..", ".."))
}

// writeConfigFixture keeps secrets in the file backend so the run does not
// depend on a local pass store.
func writeConfigFixture(home string) error {
	configDir := filepath.Join(home, ".ppmi")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return err
	}

	config := `[secrets]
backend = "file"

[grid]
endpoint = "127.0.0.1:9222"
`

	return os.WriteFile(filepath.Join(configDir, "config.toml"), []byte(config), 0o644)
}
