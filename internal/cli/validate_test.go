package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCommand_Valid(t *testing.T) {
	var buf bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&buf)
	root.SetArgs([]string{"validate", "../../examples/health-ramp.yaml"})

	require.NoError(t, root.Execute())
	assert.Contains(t, buf.String(), "is valid: 3 stages over 2m20s, peak 500 VUs, 1 requests per iteration")
}

func TestValidateCommand_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: bad\nscenario:\n  requests: []\n"), 0o644))

	var buf bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&buf)
	root.SetArgs([]string{"validate", path})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, buf.String(), "'stages'")
	assert.Contains(t, buf.String(), "'scenario.requests'")
}

func TestValidateCommand_MissingFile(t *testing.T) {
	root := NewRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"validate", "does-not-exist.yaml"})

	assert.Error(t, root.Execute())
}

func TestRootCommand_Version(t *testing.T) {
	var buf bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&buf)
	root.SetArgs([]string{"--version"})

	require.NoError(t, root.Execute())
	assert.Contains(t, buf.String(), version)
}

func TestValidateCommand_CompilesChecks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	yaml := `name: bad schema
stages:
  - duration: 10s
    target: 1
scenario:
  requests:
    - url: http://localhost/health
      checks:
        - type: schema
          value: "{not json"
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	var buf bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&buf)
	root.SetArgs([]string{"validate", path})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid schema")
	assert.NotContains(t, buf.String(), "is valid")
}

func TestValidateCommand_DurationCheckSeconds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "duration.yaml")
	yaml := `name: duration
stages:
  - duration: 10s
    target: 1
scenario:
  requests:
    - url: http://localhost/health
      checks:
        - type: duration
          condition: lt
          value: "2"
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	var buf bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&buf)
	root.SetArgs([]string{"validate", path})

	require.NoError(t, root.Execute())
	assert.Contains(t, buf.String(), "is valid")
}
