package config

import (
	"os"
	"path/filepath"
	"testing"

	"fjacquet/ledger-reconcile/internal/recerror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeConfigDefaults(t *testing.T) {
	cfg, err := InitializeConfig()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "USD", cfg.Journal.Currency)
	assert.Equal(t, 3, cfg.Match.FuzzyDays)
	assert.Equal(t, "Expenses:Unknown", cfg.Classifier.DefaultAccount)
}

func TestInitializeConfigFromEnv(t *testing.T) {
	t.Setenv("RECONCILE_JOURNAL_INPUT", "/tmp/main.journal")
	t.Setenv("RECONCILE_MATCH_FUZZY_DAYS", "5")
	t.Setenv("RECONCILE_LOG_LEVEL", "debug")

	cfg, err := InitializeConfig()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/main.journal", cfg.Journal.Input)
	assert.Equal(t, 5, cfg.Match.FuzzyDays)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestValidateConfigRejectsBadValues(t *testing.T) {
	t.Setenv("RECONCILE_MATCH_FUZZY_DAYS", "-1")

	_, err := InitializeConfig()
	var cfgErr *recerror.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestLoadAccountRouting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "routing.yaml")
	content := `account_outputs:
  - pattern: "Expenses:"
    filename: expenses.journal
  - pattern: "Liabilities:"
    filename: liabilities.journal
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	rules, err := LoadAccountRouting(path)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "Expenses:", rules[0].Pattern)
	assert.Equal(t, "expenses.journal", rules[0].Filename)
}

func TestLoadAccountRoutingBareList(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "routing.yaml")
	content := `- pattern: "Assets:"
  filename: assets.journal
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	rules, err := LoadAccountRouting(path)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "assets.journal", rules[0].Filename)
}

func TestLoadAccountRoutingEmptyPath(t *testing.T) {
	rules, err := LoadAccountRouting("")
	require.NoError(t, err)
	assert.Nil(t, rules)
}
