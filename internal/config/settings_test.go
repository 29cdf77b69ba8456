package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setValidEnv(t *testing.T) {
	t.Helper()
	t.Setenv("STEP1_MODEL", "gpt-4o-mini")
	t.Setenv("STEP2_MODEL", "gpt-4o")
	t.Setenv("FALLBACK_MODEL", "claude-3-5-haiku")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_CHAT_MODEL", "gpt-4o-mini")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	t.Setenv("ANTHROPIC_CHAT_MODEL", "claude-3-5-haiku")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GEMINI_CHAT_MODEL", "")
	t.Setenv("OUTPUT_ROOT", "")
	t.Setenv("DISCOVERY_TIMEOUT", "")
	t.Setenv("DISCOVERY_MAX_DEPTH", "")
	t.Setenv("MAX_CONCURRENT_PAGES", "")
	t.Setenv("PLAYWRIGHT_HEADLESS", "")
}

func TestLoadHappyPath(t *testing.T) {
	setValidEnv(t)

	s, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", s.Step1Model)
	assert.Equal(t, 3, s.MaxConcurrentPages)
	assert.Equal(t, 30*time.Second, s.DiscoveryTimeout)
	assert.True(t, s.Headless)
}

func TestLoadMissingStep1ModelNamesVariable(t *testing.T) {
	setValidEnv(t)
	t.Setenv("STEP1_MODEL", "")

	_, err := Load("")
	require.Error(t, err)
	var ce *ConfigError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "STEP1_MODEL", ce.Var)
}

func TestLoadUnknownModelEchoesIdentifier(t *testing.T) {
	setValidEnv(t)
	t.Setenv("STEP2_MODEL", "gpt-99-ultra")

	_, err := Load("")
	require.Error(t, err)
	var ce *ConfigError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "STEP2_MODEL", ce.Var)
	assert.Contains(t, ce.Reason, "gpt-99-ultra")
}

func TestLoadNoProviderKeyFails(t *testing.T) {
	setValidEnv(t)
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")

	_, err := Load("")
	require.Error(t, err)
	var ce *ConfigError
	require.True(t, errors.As(err, &ce))
	assert.Contains(t, ce.Reason, "at least one provider API key")
}

func TestLoadChatModelRequiredForSuppliedKey(t *testing.T) {
	setValidEnv(t)
	t.Setenv("ANTHROPIC_CHAT_MODEL", "")

	_, err := Load("")
	require.Error(t, err)
	var ce *ConfigError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "ANTHROPIC_CHAT_MODEL", ce.Var)
}

func TestLoadRoleModelRequiresItsProviderKey(t *testing.T) {
	setValidEnv(t)
	// Fallback points at anthropic but the anthropic key is absent.
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("ANTHROPIC_CHAT_MODEL", "")

	_, err := Load("")
	require.Error(t, err)
	var ce *ConfigError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "FALLBACK_MODEL", ce.Var)
}

func TestLoadConcurrencyCappedAtFive(t *testing.T) {
	setValidEnv(t)
	t.Setenv("MAX_CONCURRENT_PAGES", "9")

	s, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 5, s.MaxConcurrentPages)
}

func TestLoadBareIntegerDiscoveryTimeoutIsSeconds(t *testing.T) {
	setValidEnv(t)
	t.Setenv("DISCOVERY_TIMEOUT", "45")

	s, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, s.DiscoveryTimeout)
}

func TestLoadYAMLFileSeedsDefaultsEnvWins(t *testing.T) {
	setValidEnv(t)
	dir := t.TempDir()
	yaml := []byte("output_root: /data/atlas\ndiscovery_max_depth: 5\nmax_concurrent_pages: 2\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "webatlas.yaml"), yaml, 0o644))
	t.Setenv("DISCOVERY_MAX_DEPTH", "2")

	s, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "/data/atlas", s.OutputRoot)
	assert.Equal(t, 2, s.DiscoveryMaxDepth) // env overrides yaml
	assert.Equal(t, 2, s.MaxConcurrentPages)
}

func TestResolveRoles(t *testing.T) {
	setValidEnv(t)
	s, err := Load("")
	require.NoError(t, err)

	step1, err := s.Resolve(RoleStep1)
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, step1.Provider)

	fb, err := s.Resolve(RoleFallback)
	require.NoError(t, err)
	assert.Equal(t, ProviderAnthropic, fb.Provider)
}

func TestLookupModelUnknown(t *testing.T) {
	_, ok := LookupModel("made-up-model")
	assert.False(t, ok)
}
