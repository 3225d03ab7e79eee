package gateway

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// DefaultAdapters maps debugger types to the adapter command used to attach.
// {pid} and {processName} are replaced before launch.
func DefaultAdapters() map[string][]string {
	return map[string][]string{
		"coreclr": {"netcoredbg", "--interpreter=cli", "--attach", "{pid}"},
		"go":      {"dlv", "attach", "{pid}", "--headless", "--accept-multiclient", "--listen=127.0.0.1:2345"},
	}
}

// AdapterCommand renders the argv for debugger type kind attached to pid
func AdapterCommand(adapters map[string][]string, kind string, pid int, processName string) ([]string, error) {
	tmpl, ok := adapters[kind]
	if !ok || len(tmpl) == 0 {
		known := lo.Keys(adapters)
		sort.Strings(known)
		return nil, fmt.Errorf("no debugger adapter configured for type %q (known: %s)", kind, strings.Join(known, ", "))
	}
	r := strings.NewReplacer("{pid}", strconv.Itoa(pid), "{processName}", processName)
	return lo.Map(tmpl, func(arg string, _ int) string { return r.Replace(arg) }), nil
}
