package probe

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"howett.net/plist"
)

type bundleInfo struct {
	Executable string `plist:"CFBundleExecutable"`
}

// ResolveProgram maps a macOS .app bundle path to the executable name the
// process listing shows. Any other value is returned unchanged.
func ResolveProgram(program string) (string, error) {
	trimmed := strings.TrimRight(program, "/")
	if !strings.HasSuffix(trimmed, ".app") {
		return program, nil
	}
	infoPath := filepath.Join(trimmed, "Contents", "Info.plist")
	data, err := os.ReadFile(infoPath)
	if err != nil {
		if os.IsNotExist(err) {
			return program, nil
		}
		return "", fmt.Errorf("read bundle info: %w", err)
	}
	var info bundleInfo
	if _, err := plist.Unmarshal(data, &info); err != nil {
		return "", fmt.Errorf("parse %s: %w", infoPath, err)
	}
	if info.Executable == "" {
		return strings.TrimSuffix(filepath.Base(trimmed), ".app"), nil
	}
	return info.Executable, nil
}
