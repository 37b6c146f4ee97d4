package install

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/specialistvlad/buildmeup/internal/ctxlog"
	"github.com/specialistvlad/buildmeup/internal/platform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var linux = platform.NewProfile("Linux", "", map[string]string{platform.KeyOS: "Linux", platform.KeyArch: "x86_64"}, false)

func writeFile(t *testing.T, fs billy.Filesystem, name, content string, perm os.FileMode) {
	t.Helper()
	require.NoError(t, util.WriteFile(fs, name, []byte(content), perm))
}

func newSandbox(t *testing.T, src billy.Filesystem) (*Installer, billy.Filesystem) {
	t.Helper()
	rules, err := DefaultRules(KindSandbox)
	require.NoError(t, err)
	dst := memfs.New()
	return NewInstaller(Options{
		Source: src,
		Dest:   dst,
		Rules:  rules,
		Vars:   Vars{Prefix: "/out", Project: "example"},
	}), dst
}

func TestClassify(t *testing.T) {
	t.Parallel()
	ctx := ctxlog.Discard(context.Background())

	src := memfs.New()
	writeFile(t, src, "hello/hello", "#!/bin/sh\necho hello\n", 0o755)
	writeFile(t, src, "hello/hello.elf", "\x7fELF....", 0o644)
	writeFile(t, src, "hello/hello.h", "", 0o644)
	writeFile(t, src, "hello/libhello.so.1", "", 0o644)
	writeFile(t, src, "hello/hello.1", "", 0o644)
	writeFile(t, src, "hello/README.md", "", 0o644)
	writeFile(t, src, "hello/hello.conf", "", 0o644)
	writeFile(t, src, "hello/blob.bin", "", 0o644)

	c := NewClassifier(src, DefaultClassifyRules(), "")

	testCases := []struct {
		payload string
		tag     ArtifactType
		want    ArtifactType
	}{
		{payload: "hello/hello", want: Binary},
		{payload: "hello/hello.elf", want: Binary},
		{payload: "hello/hello.h", want: Header},
		{payload: "hello/libhello.so.1", want: SharedLibrary},
		{payload: "hello/hello.1", want: Manual},
		{payload: "hello/README.md", want: Documentation},
		{payload: "hello/hello.conf", want: Config},
		{payload: "hello/blob.bin", tag: Data, want: Data},
		{payload: "hello/hello.h", tag: Documentation, want: Documentation},
	}

	for _, tc := range testCases {
		t.Run(tc.payload+"/"+string(tc.tag), func(t *testing.T) {
			got, err := c.Classify(ctx, Artifact{Module: "hello", Payload: tc.payload, Type: tc.tag})
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := c.Classify(ctx, Artifact{Module: "hello", Payload: "hello/blob.bin"})
	var unknown *UnknownArtifactTypeError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "hello", unknown.Module)

	withDefault := NewClassifier(src, DefaultClassifyRules(), Data)
	got, err := withDefault.Classify(ctx, Artifact{Module: "hello", Payload: "hello/blob.bin"})
	require.NoError(t, err)
	assert.Equal(t, Data, got)
}

func TestClassify_ConcurrentCallersAgree(t *testing.T) {
	t.Parallel()
	ctx := ctxlog.Discard(context.Background())
	src := memfs.New()
	writeFile(t, src, "m/tool", "\x7fELF", 0o755)
	c := NewClassifier(src, DefaultClassifyRules(), "")

	var wg sync.WaitGroup
	results := make([]ArtifactType, 16)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], _ = c.Classify(ctx, Artifact{Payload: "m/tool"})
		}()
	}
	wg.Wait()
	for _, r := range results {
		assert.Equal(t, Binary, r)
	}
}

func TestInstall_Sandbox(t *testing.T) {
	t.Parallel()
	ctx := ctxlog.Discard(context.Background())
	src := memfs.New()
	writeFile(t, src, "src/hello/hello", "binary", 0o755)
	writeFile(t, src, "src/hello/hello.h", "header", 0o644)

	in, dst := newSandbox(t, src)

	loc, err := in.Install(ctx, Artifact{Module: "hello", Payload: "src/hello/hello"}, linux)
	require.NoError(t, err)
	assert.Equal(t, Location{Module: "hello", Type: Binary, Payload: "src/hello/hello", Path: "/out/bin/hello"}, loc)

	data, err := util.ReadFile(dst, "/out/bin/hello")
	require.NoError(t, err)
	assert.Equal(t, "binary", string(data))

	fi, err := dst.Stat("/out/bin/hello")
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), fi.Mode().Perm())

	loc, err = in.Install(ctx, Artifact{Module: "hello", Payload: "src/hello/hello.h", InstallName: "greeting.h"}, linux)
	require.NoError(t, err)
	assert.Equal(t, "/out/include/greeting.h", loc.Path)
}

func TestInstall_Idempotent(t *testing.T) {
	t.Parallel()
	ctx := ctxlog.Discard(context.Background())
	src := memfs.New()
	writeFile(t, src, "a/README.md", "docs", 0o644)
	in, dst := newSandbox(t, src)

	a := Artifact{Module: "a", Payload: "a/README.md"}
	first, err := in.Install(ctx, a, linux)
	require.NoError(t, err)
	second, err := in.Install(ctx, a, linux)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	data, err := util.ReadFile(dst, first.Path)
	require.NoError(t, err)
	assert.Equal(t, "docs", string(data))

	entries, err := dst.ReadDir("/out/doc")
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestInstall_NoRule(t *testing.T) {
	t.Parallel()
	ctx := ctxlog.Discard(context.Background())
	src := memfs.New()
	writeFile(t, src, "a/tool", "x", 0o755)

	rules, err := DefaultRules(KindSystem)
	require.NoError(t, err)
	in := NewInstaller(Options{Source: src, Dest: memfs.New(), Rules: rules, Vars: Vars{Project: "p"}})

	windows := platform.NewProfile("Windows", "", nil, false)
	_, err = in.Install(ctx, Artifact{Module: "a", Payload: "a/tool"}, windows)
	var noRule *NoInstallRuleError
	require.ErrorAs(t, err, &noRule)
	assert.Equal(t, "a", noRule.Module)
	assert.Equal(t, Binary, noRule.Type)
	assert.Equal(t, "Windows", noRule.Platform)
}

func TestDestination_Kinds(t *testing.T) {
	t.Parallel()
	vars := Vars{Prefix: "/out", Project: "example", Home: "/home/u", XDGDataHome: "/home/u/.local/share", XDGConfigHome: "/home/u/.config"}

	testCases := []struct {
		kind string
		typ  ArtifactType
		want string
	}{
		{kind: KindSandbox, typ: Binary, want: "/out/bin"},
		{kind: KindSandbox, typ: Manual, want: "/out/man"},
		{kind: KindSystem, typ: Binary, want: "/usr/bin"},
		{kind: KindSystem, typ: Header, want: "/usr/include/example"},
		{kind: KindSystem, typ: Config, want: "/etc/example"},
		{kind: KindSystem, typ: Manual, want: "/usr/share/man"},
		{kind: KindLocal, typ: Documentation, want: "/usr/local/share/doc/example"},
		{kind: KindLocal, typ: StaticLibrary, want: "/usr/local/lib/example"},
		{kind: KindUser, typ: Binary, want: "/home/u/.local/bin"},
		{kind: KindUser, typ: Data, want: "/home/u/.local/share/example"},
		{kind: KindUser, typ: Config, want: "/home/u/.config/example"},
	}

	for _, tc := range testCases {
		t.Run(tc.kind+"/"+string(tc.typ), func(t *testing.T) {
			t.Parallel()
			rules, err := DefaultRules(tc.kind)
			require.NoError(t, err)
			in := NewInstaller(Options{Source: memfs.New(), Dest: memfs.New(), Rules: rules, Vars: vars})
			got, err := in.Destination(tc.typ, linux)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDestination_ProjectOverride(t *testing.T) {
	t.Parallel()
	rules, err := DefaultRules(KindSandbox)
	require.NoError(t, err)

	platformSpecific, err := Template("${prefix}/${platform}/${target.TARGET_ARCH}/bin")
	require.NoError(t, err)
	rules = append(rules, Rule{Type: Binary, Platform: "Linux", Destination: platformSpecific})

	in := NewInstaller(Options{Source: memfs.New(), Dest: memfs.New(), Rules: rules, Vars: Vars{Prefix: "/out"}})

	got, err := in.Destination(Binary, linux)
	require.NoError(t, err)
	assert.Equal(t, "/out/Linux/x86_64/bin", got)

	got, err = in.Destination(Binary, platform.NewProfile("Windows", "", nil, false))
	require.NoError(t, err)
	assert.Equal(t, "/out/bin", got)
}

func TestDefaultRules_UnknownKind(t *testing.T) {
	t.Parallel()
	_, err := DefaultRules("everywhere")
	require.Error(t, err)
}
