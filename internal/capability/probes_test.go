package capability

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/specialistvlad/buildmeup/internal/platform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComponentProbe(t *testing.T) {
	t.Parallel()
	profile := platform.NewProfile("Linux", "", map[string]string{platform.KeyOS: "Linux"}, false)

	testCases := []struct {
		name      string
		probe     ComponentProbe
		available bool
	}{
		{name: "equal", probe: ComponentProbe{Key: platform.KeyOS, Value: "Linux"}, available: true},
		{name: "equal ignoring case", probe: ComponentProbe{Key: platform.KeyOS, Value: "linux"}, available: true},
		{name: "different", probe: ComponentProbe{Key: platform.KeyOS, Value: "Windows"}},
		{name: "set", probe: ComponentProbe{Key: platform.KeyOS}, available: true},
		{name: "unset", probe: ComponentProbe{Key: platform.KeyLibC}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			st, err := tc.probe.Probe(context.Background(), profile)
			require.NoError(t, err)
			assert.Equal(t, tc.available, st.Available, st.Details)
		})
	}
}

func TestProgramProbe_Dirs(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mycc"), []byte("#!/bin/sh\n"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notexec"), []byte("data"), 0o644))
	profile := platform.NewProfile("Linux", "", nil, false)

	st, err := ProgramProbe{Program: "mycc", Dirs: []string{dir}}.Probe(context.Background(), profile)
	require.NoError(t, err)
	assert.True(t, st.Available)
	assert.Equal(t, filepath.Join(dir, "mycc"), st.Details)

	st, err = ProgramProbe{Program: "notexec", Dirs: []string{dir}}.Probe(context.Background(), profile)
	require.NoError(t, err)
	assert.False(t, st.Available)
}

func TestLibraryProbe(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "libz.a"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "z.dll"), nil, 0o644))

	linux := platform.NewProfile("Linux", "", map[string]string{platform.KeyOSType: "POSIX", platform.KeyOS: "Linux"}, false)
	windows := platform.NewProfile("Windows", "", map[string]string{platform.KeyOSType: "Windows", platform.KeyOS: "Windows"}, false)

	assert.Equal(t, []string{"libz.so", "libz.a"}, LibraryFileNames("z", linux))
	assert.Equal(t, []string{"z.dll", "z.lib", "libz.a"}, LibraryFileNames("z", windows))

	st, err := LibraryProbe{Library: "z", Dirs: []string{dir}}.Probe(context.Background(), linux)
	require.NoError(t, err)
	assert.Equal(t, Available(filepath.Join(dir, "libz.a")), st)

	st, err = LibraryProbe{Library: "z", Dirs: []string{dir}}.Probe(context.Background(), windows)
	require.NoError(t, err)
	assert.Equal(t, Available(filepath.Join(dir, "z.dll")), st)

	st, err = LibraryProbe{Library: "png", Dirs: []string{dir}}.Probe(context.Background(), linux)
	require.NoError(t, err)
	assert.False(t, st.Available)
}

func TestFileProbe(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "zlib.h"), nil, 0o644))

	st, err := FileProbe{Pattern: filepath.Join(dir, "*.h")}.Probe(context.Background(), platform.Profile{})
	require.NoError(t, err)
	assert.True(t, st.Available)

	st, err = FileProbe{Pattern: filepath.Join(dir, "*.hpp")}.Probe(context.Background(), platform.Profile{})
	require.NoError(t, err)
	assert.False(t, st.Available)
}

func TestObjectFormatProbe(t *testing.T) {
	t.Parallel()
	if runtime.GOOS != "linux" || runtime.GOARCH != "amd64" {
		t.Skip("fixture is the running linux/amd64 test binary")
	}
	self, err := os.Executable()
	require.NoError(t, err)

	format, arch, err := ReadObjectFormat(self)
	require.NoError(t, err)
	assert.Equal(t, "ELF", format)
	assert.Equal(t, "x86_64", arch)

	elfProfile := platform.NewProfile("Linux", "", map[string]string{platform.KeyObjectFormat: "ELF", platform.KeyArchType: "x86_64"}, false)
	st, err := ObjectFormatProbe{Path: self}.Probe(context.Background(), elfProfile)
	require.NoError(t, err)
	assert.True(t, st.Available)

	peProfile := platform.NewProfile("Windows", "", map[string]string{platform.KeyObjectFormat: "PE"}, false)
	st, err = ObjectFormatProbe{Path: self}.Probe(context.Background(), peProfile)
	require.NoError(t, err)
	assert.False(t, st.Available)
}

func TestReadObjectFormat_NotABinary(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "plain.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	_, _, err := ReadObjectFormat(path)
	require.ErrorIs(t, err, ErrUnknownObjectFormat)
}

func TestNewProbe(t *testing.T) {
	t.Parallel()

	p, err := NewProbe(Spec{Kind: "program", Value: "cc"})
	require.NoError(t, err)
	assert.Equal(t, ProgramProbe{Program: "cc"}, p)

	p, err = NewProbe(Spec{Kind: "static", Value: "forced", Available: true})
	require.NoError(t, err)
	assert.Equal(t, StaticProbe{Status: Available("forced")}, p)

	_, err = NewProbe(Spec{Kind: "component", Key: "OS"})
	require.Error(t, err)

	_, err = NewProbe(Spec{Kind: "telepathy"})
	require.Error(t, err)
}
