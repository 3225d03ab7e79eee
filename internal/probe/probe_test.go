package probe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

const psListing = `  PID  PPID COMMAND
    1     0 /sbin/launchd
  812     1 dotnet watch run --project src/MyApp
  990   812 /Users/dev/src/MyApp/bin/Debug/net8.0/MyApp
  991   812 /bin/zsh -c grep MyApp
`

func staticRunner(out string, err error) Runner {
	return func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte(out), err
	}
}

func TestDetectFamily(t *testing.T) {
	assert.Equal(t, FamilyWindows, DetectFamily("windows"))
	assert.Equal(t, FamilyLinux, DetectFamily("linux"))
	assert.Equal(t, FamilyDarwin, DetectFamily("darwin"))
	assert.Equal(t, FamilyDarwin, DetectFamily("freebsd"))
}

func TestMatches(t *testing.T) {
	tests := []struct {
		name    string
		family  Family
		listing string
		program string
		want    bool
	}{
		{"darwin substring", FamilyDarwin, psListing, "MyApp", true},
		{"darwin absent", FamilyDarwin, psListing, "Other", false},
		{"darwin matches command mention", FamilyDarwin, "123 1 vim notes-about-MyApp.txt", "MyApp", true},
		{"linux bin path", FamilyLinux, "990 812 /src/MyApp/bin/Debug/net8.0/MyApp\n", "MyApp", true},
		{"linux bin path end of text", FamilyLinux, "990 812 /src/MyApp/bin/MyApp", "MyApp", true},
		{"linux bin path with args", FamilyLinux, "990 812 /usr/local/bin/MyApp --urls http://x\n", "MyApp", true},
		{"linux grep line", FamilyLinux, "991 812 grep MyApp\n", "MyApp", false},
		{"linux dotnet watch line", FamilyLinux, "812 1 dotnet watch run --project src/MyApp\n", "MyApp", false},
		{"linux name prefix only", FamilyLinux, "990 1 /opt/bin/MyAppHost\n", "MyApp", false},
		{"linux regex metachar", FamilyLinux, "990 1 /opt/bin/My.App\n", "My.App", true},
		{"linux regex metachar literal", FamilyLinux, "990 1 /opt/bin/MyxApp\n", "My.App", false},
		{"windows exact", FamilyWindows, "MyApp.exe     4242 Console    1   80,000 K", "MyApp.exe", true},
		{
			"windows truncated listing",
			FamilyWindows,
			"AVeryLongApplicationName.     4242 Console    1   80,000 K",
			"AVeryLongApplicationName.exe",
			true,
		},
		{"windows info line", FamilyWindows, "INFO: No tasks are running which match the specified criteria.", "MyApp.exe", false},
		{"empty name", FamilyDarwin, psListing, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Matches(tt.family, tt.listing, tt.program))
		})
	}
}

func TestWindowsTruncationProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		name := rapid.StringMatching(`[A-Za-z0-9]{1,60}\.exe`).Draw(t, "name")
		shown := name
		if len(shown) > WindowsImageNameLimit {
			shown = shown[:WindowsImageNameLimit]
		}
		listing := shown + "     4242 Console    1   80,000 K"
		if !Matches(FamilyWindows, listing, name) {
			t.Fatalf("expected %q to match listing %q", name, listing)
		}
	})
}

func TestIsRunning(t *testing.T) {
	ctx := context.Background()

	t.Run("running", func(t *testing.T) {
		p := New(FamilyDarwin, WithRunner(staticRunner(psListing, nil)))
		ok, err := p.IsRunning(ctx, "MyApp")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("not running", func(t *testing.T) {
		p := New(FamilyLinux, WithRunner(staticRunner("1 0 /sbin/init\n", nil)))
		ok, err := p.IsRunning(ctx, "MyApp")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("listing command fails", func(t *testing.T) {
		boom := errors.New("exec: \"ps\": executable file not found in $PATH")
		p := New(FamilyDarwin, WithRunner(staticRunner("", boom)))
		ok, err := p.IsRunning(ctx, "MyApp")
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
		assert.False(t, ok)
	})

	t.Run("empty name", func(t *testing.T) {
		p := New(FamilyDarwin, WithRunner(staticRunner(psListing, nil)))
		_, err := p.IsRunning(ctx, " ")
		require.Error(t, err)
	})
}

func TestListingCommands(t *testing.T) {
	var gotName string
	var gotArgs []string
	capture := func(ctx context.Context, name string, args ...string) ([]byte, error) {
		gotName, gotArgs = name, args
		return nil, nil
	}

	_, err := New(FamilyWindows, WithRunner(capture)).IsRunning(context.Background(), "MyApp.exe")
	require.NoError(t, err)
	assert.Equal(t, "powershell.exe", gotName)
	assert.Equal(t, []string{"tasklist", "/fi", `"IMAGENAME eq MyApp.exe"`}, gotArgs)

	_, err = New(FamilyLinux, WithRunner(capture)).IsRunning(context.Background(), "MyApp")
	require.NoError(t, err)
	assert.Equal(t, "ps", gotName)
	assert.Equal(t, []string{"-o", "pid,ppid,command", "-ax"}, gotArgs)
}

func TestFindPID(t *testing.T) {
	ctx := context.Background()

	t.Run("linux picks bin path line", func(t *testing.T) {
		p := New(FamilyLinux, WithRunner(staticRunner(psListing, nil)))
		pid, err := p.FindPID(ctx, "MyApp")
		require.NoError(t, err)
		assert.Equal(t, 990, pid)
	})

	t.Run("newest pid wins", func(t *testing.T) {
		listing := "  PID PPID COMMAND\n 100 1 /a/bin/MyApp\n 250 1 /a/bin/MyApp\n"
		p := New(FamilyLinux, WithRunner(staticRunner(listing, nil)))
		pid, err := p.FindPID(ctx, "MyApp")
		require.NoError(t, err)
		assert.Equal(t, 250, pid)
	})

	t.Run("windows pid column", func(t *testing.T) {
		listing := "Image Name                     PID Session Name\n" +
			"========================= ======== ================\n" +
			"MyApp.exe                     4242 Console\n"
		p := New(FamilyWindows, WithRunner(staticRunner(listing, nil)))
		pid, err := p.FindPID(ctx, "MyApp.exe")
		require.NoError(t, err)
		assert.Equal(t, 4242, pid)
	})

	t.Run("not found", func(t *testing.T) {
		p := New(FamilyDarwin, WithRunner(staticRunner("1 0 /sbin/launchd\n", nil)))
		_, err := p.FindPID(ctx, "MyApp")
		require.ErrorIs(t, err, ErrProcessNotFound)
	})
}

func TestIsRunningWithStubPs(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell stub requires a Unix shell")
	}
	stubDir := t.TempDir()
	script := `#!/bin/sh
cat <<'EOF'
  PID  PPID COMMAND
 4100     1 /home/dev/app/bin/Debug/net8.0/MyApp
EOF
`
	require.NoError(t, os.WriteFile(filepath.Join(stubDir, "ps"), []byte(script), 0o755))
	t.Setenv("PATH", stubDir+string(os.PathListSeparator)+os.Getenv("PATH"))

	p := New(FamilyLinux)
	ok, err := p.IsRunning(context.Background(), "MyApp")
	require.NoError(t, err)
	assert.True(t, ok)

	pid, err := p.FindPID(context.Background(), "MyApp")
	require.NoError(t, err)
	assert.Equal(t, 4100, pid)
}

func TestIsRunningMissingBinary(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("PATH manipulation differs on Windows")
	}
	t.Setenv("PATH", t.TempDir())

	_, err := New(FamilyDarwin).IsRunning(context.Background(), "MyApp")
	require.Error(t, err)
}

func TestResolveProgram(t *testing.T) {
	t.Run("plain name unchanged", func(t *testing.T) {
		got, err := ResolveProgram("MyApp.exe")
		require.NoError(t, err)
		assert.Equal(t, "MyApp.exe", got)
	})

	t.Run("bundle executable", func(t *testing.T) {
		bundle := filepath.Join(t.TempDir(), "My App.app")
		require.NoError(t, os.MkdirAll(filepath.Join(bundle, "Contents"), 0o755))
		info := `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>CFBundleExecutable</key>
	<string>MyAppHost</string>
</dict>
</plist>
`
		require.NoError(t, os.WriteFile(filepath.Join(bundle, "Contents", "Info.plist"), []byte(info), 0o644))

		got, err := ResolveProgram(bundle + "/")
		require.NoError(t, err)
		assert.Equal(t, "MyAppHost", got)
	})

	t.Run("bundle without plist", func(t *testing.T) {
		got, err := ResolveProgram("/Applications/Missing.app")
		require.NoError(t, err)
		assert.Equal(t, "/Applications/Missing.app", got)
	})

	t.Run("bundle with broken plist", func(t *testing.T) {
		bundle := filepath.Join(t.TempDir(), "Broken.app")
		require.NoError(t, os.MkdirAll(filepath.Join(bundle, "Contents"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(bundle, "Contents", "Info.plist"), []byte("bplist00garbage"), 0o644))

		_, err := ResolveProgram(bundle)
		require.Error(t, err)
	})
}
