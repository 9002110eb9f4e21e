package scripting

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransformStepCallsLuaFunctions(t *testing.T) {
	e := New()
	defer e.Close()

	script := `
function to_upper(pkt)
	return string.upper(pkt)
end
`
	require.NoError(t, e.state.DoString(script))

	step := e.TransformStep("lua-upper", 150, "to_upper", "")
	out, err := step.Send([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "HELLO", string(out))
}

func TestTransformStepMissingFunctionErrors(t *testing.T) {
	e := New()
	defer e.Close()

	step := e.TransformStep("lua-missing", 150, "does_not_exist", "")
	_, err := step.Send([]byte("hello"))
	assert.ErrorIs(t, err, ErrScriptMissingFunction)
}

func TestWhitelistPredicateEvaluatesLuaLogic(t *testing.T) {
	e := New()
	defer e.Close()

	script := `
function allow(ip)
	return ip == "10.0.0.5"
end
`
	require.NoError(t, e.state.DoString(script))

	predicate := e.WhitelistPredicate("allow")
	assert.True(t, predicate("10.0.0.5"))
	assert.False(t, predicate("10.0.0.6"))
}

func TestLoadPluginsExecutesEachInitScript(t *testing.T) {
	dir := t.TempDir()
	pluginDir := filepath.Join(dir, "greeter")
	require.NoError(t, os.MkdirAll(pluginDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(pluginDir, "init.lua"), []byte(`loaded_greeter = true`), 0644))

	e := New()
	defer e.Close()

	require.NoError(t, e.LoadPlugins(dir))
	assert.Equal(t, "true", e.state.GetGlobal("loaded_greeter").String())
}
