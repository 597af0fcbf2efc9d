package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateHostname_RejectsCommandInjection(t *testing.T) {
	invalidHosts := []string{
		"localhost; rm -rf /",
		"localhost\nmalicious",
		"localhost$(whoami)",
		"localhost`id`",
	}

	for _, host := range invalidHosts {
		t.Run(host, func(t *testing.T) {
			require.Error(t, validateHostname(host))
		})
	}
}

func TestValidateHostname_AllowsHostnamesAndIPs(t *testing.T) {
	validHosts := []string{
		"",
		"localhost",
		"qdrant.internal.example.com",
		"127.0.0.1",
		"::1",
	}

	for _, host := range validHosts {
		t.Run(host, func(t *testing.T) {
			require.NoError(t, validateHostname(host))
		})
	}
}

func TestValidatePath_RejectsTraversal(t *testing.T) {
	invalidPaths := []string{
		"../../../etc/passwd",
		"/data/../../../etc/passwd",
	}

	for _, path := range invalidPaths {
		t.Run(path, func(t *testing.T) {
			require.Error(t, validatePath(path))
		})
	}
}

func TestValidatePath_AllowsCleanPaths(t *testing.T) {
	require.NoError(t, validatePath("/data/vectorstore"))
	require.NoError(t, validatePath("~/.config/ragify/vectorstore"))
}
