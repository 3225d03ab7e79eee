package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdapterCommand(t *testing.T) {
	argv, err := AdapterCommand(DefaultAdapters(), "coreclr", 4242, "MyApp")
	require.NoError(t, err)
	assert.Equal(t, []string{"netcoredbg", "--interpreter=cli", "--attach", "4242"}, argv)

	custom := map[string][]string{"echo": {"echo", "{processName}:{pid}"}}
	argv, err = AdapterCommand(custom, "echo", 7, "svc")
	require.NoError(t, err)
	assert.Equal(t, []string{"echo", "svc:7"}, argv)
}

func TestAdapterCommandUnknownType(t *testing.T) {
	_, err := AdapterCommand(DefaultAdapters(), "lldb", 1, "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"lldb"`)
	assert.Contains(t, err.Error(), "coreclr, go")

	_, err = AdapterCommand(map[string][]string{"empty": nil}, "empty", 1, "x")
	require.Error(t, err)
}

func TestAdapterCommandDoesNotMutateTemplate(t *testing.T) {
	adapters := DefaultAdapters()
	_, err := AdapterCommand(adapters, "coreclr", 1, "x")
	require.NoError(t, err)
	assert.Equal(t, "{pid}", adapters["coreclr"][3])
}

func TestDefaultLinkOptions(t *testing.T) {
	opts := DefaultLinkOptions()
	assert.Equal(t, ConsoleMergeWithParent, opts.ConsoleMode)
	assert.True(t, opts.Compact)
}

func TestNotifierFunc(t *testing.T) {
	var got string
	var n Notifier = NotifierFunc(func(m string) { got = m })
	n.ShowError("boom")
	assert.Equal(t, "boom", got)
}
