package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadflow/backend/internal/models"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"migrate", "aggregate", "preview"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "leadctl", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestAggregateCommand_Flags(t *testing.T) {
	for _, name := range []string{"date", "from", "to"} {
		flag := aggregateCmd.Flags().Lookup(name)
		require.NotNil(t, flag, "aggregate command should have --%s flag", name)
		assert.Equal(t, "", flag.DefValue)
	}
}

func TestPreviewCommand_Flags(t *testing.T) {
	flag := previewCmd.Flags().Lookup("lead")
	require.NotNil(t, flag)
	assert.Equal(t, "preview", flag.DefValue)
	require.NotNil(t, previewCmd.Flags().Lookup("skill"))
	require.NotNil(t, previewCmd.Flags().Lookup("exclude"))
}

func TestParseRequirements(t *testing.T) {
	reqs, err := parseRequirements([]string{"sql:CRITICAL", " python "})
	require.NoError(t, err)
	assert.Equal(t, []models.SkillRequirement{
		{SkillID: "sql", Priority: models.PriorityCritical},
		{SkillID: "python", Priority: models.PriorityMedium},
	}, reqs)

	_, err = parseRequirements([]string{"sql:urgent"})
	assert.Error(t, err)
	_, err = parseRequirements([]string{":high"})
	assert.Error(t, err)
}

func TestPreviewCommand_MemoryStore(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	seed := `{
  "skills": [{"id": "sql", "name": "SQL"}, {"id": "python", "name": "Python"}],
  "consultants": [
    {"id": "c1", "name": "Alice", "is_active": true, "skill_ids": ["sql", "python"], "max_assignment_count": 5},
    {"id": "c2", "name": "Bob", "is_active": true, "skill_ids": ["python"], "max_assignment_count": 5}
  ]
}`
	seedPath := filepath.Join(dir, "seed.json")
	require.NoError(t, os.WriteFile(seedPath, []byte(seed), 0o600))
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("SEED_FILE", seedPath)
	t.Setenv("LOG_LEVEL", "error")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"preview", "--lead", "acme", "--skill", "sql:critical", "--skill", "python:high", "--exclude", "bob"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})
	require.NoError(t, rootCmd.Execute())

	var got struct {
		Stages    map[string][]string `json:"stages"`
		Selection struct {
			Consultant   models.Consultant `json:"consultant"`
			IsExactMatch bool              `json:"is_exact_match"`
		} `json:"selection"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, []string{"c1"}, got.Stages["exclusion_rule"])
	assert.Equal(t, "c1", got.Selection.Consultant.ID)
	assert.True(t, got.Selection.IsExactMatch)
}
