package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func executeCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("DB_SOURCE", "")

	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestGrantRejectsNonPositiveCredits(t *testing.T) {
	_, _, err := executeCLI(t, "grant", "a@x.com", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "positive integer")
}

func TestGrantRejectsMalformedEmail(t *testing.T) {
	_, _, err := executeCLI(t, "grant", "not-an-email", "3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed email")
}

func TestCommandsRequireDatabase(t *testing.T) {
	for _, args := range [][]string{
		{"migrate"},
		{"seed", "--count", "2"},
		{"account", "a@x.com"},
		{"grant", "a@x.com", "3"},
	} {
		_, _, err := executeCLI(t, args...)
		require.Error(t, err, args)
		assert.Contains(t, err.Error(), "no database configured", args)
	}
}

func TestAccountRequiresEmailArg(t *testing.T) {
	_, _, err := executeCLI(t, "account")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}
