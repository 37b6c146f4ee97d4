package capability

import (
	"context"
	"debug/elf"
	"debug/macho"
	"debug/pe"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/specialistvlad/buildmeup/internal/platform"
)

// ProgramProbe looks for an executable. Dirs restricts the search; when it is
// empty the process PATH is used.
type ProgramProbe struct {
	Program string
	Dirs    []string
}

// Probe implements Probe.
func (p ProgramProbe) Probe(_ context.Context, profile platform.Profile) (Status, error) {
	names := []string{p.Program}
	if v, _ := profile.Var(platform.KeyOSType); strings.EqualFold(v, "Windows") && filepath.Ext(p.Program) == "" {
		names = append(names, p.Program+".exe")
	}

	if len(p.Dirs) == 0 {
		for _, n := range names {
			if path, err := exec.LookPath(n); err == nil {
				return Available(path), nil
			}
		}
		return Unavailable(fmt.Sprintf("program %q not found in PATH", p.Program)), nil
	}

	for _, dir := range p.Dirs {
		for _, n := range names {
			path := filepath.Join(dir, n)
			if fi, err := os.Stat(path); err == nil && !fi.IsDir() && fi.Mode()&0o111 != 0 {
				return Available(path), nil
			}
		}
	}
	return Unavailable(fmt.Sprintf("program %q not found in %s", p.Program, strings.Join(p.Dirs, ", "))), nil
}

// DefaultLibraryDirs are searched by LibraryProbe when it has no Dirs.
var DefaultLibraryDirs = []string{
	"/usr/local/lib",
	"/usr/lib",
	"/usr/lib64",
	"/lib",
	"/lib64",
	"/usr/lib/x86_64-linux-gnu",
	"/usr/lib/aarch64-linux-gnu",
}

// LibraryProbe looks for a library file named after the target's conventions.
type LibraryProbe struct {
	Library string
	Dirs    []string
}

// LibraryFileNames returns the file names a library is expected under for a
// profile, shared variants first.
func LibraryFileNames(library string, profile platform.Profile) []string {
	osType, _ := profile.Var(platform.KeyOSType)
	osName, _ := profile.Var(platform.KeyOS)
	switch {
	case strings.EqualFold(osType, "Windows"):
		return []string{library + ".dll", library + ".lib", "lib" + library + ".a"}
	case strings.EqualFold(osName, "Darwin"), strings.EqualFold(osName, "MacOS"):
		return []string{"lib" + library + ".dylib", "lib" + library + ".a"}
	default:
		return []string{"lib" + library + ".so", "lib" + library + ".a"}
	}
}

// Probe implements Probe.
func (p LibraryProbe) Probe(_ context.Context, profile platform.Profile) (Status, error) {
	dirs := p.Dirs
	if len(dirs) == 0 {
		dirs = DefaultLibraryDirs
	}
	names := LibraryFileNames(p.Library, profile)
	for _, dir := range dirs {
		for _, n := range names {
			path := filepath.Join(dir, n)
			if _, err := os.Stat(path); err == nil {
				return Available(path), nil
			}
		}
	}
	return Unavailable(fmt.Sprintf("library %q not found (tried %s)", p.Library, strings.Join(names, ", "))), nil
}

// FileProbe succeeds when a path or glob pattern matches at least one file.
type FileProbe struct {
	Pattern string
}

// Probe implements Probe.
func (p FileProbe) Probe(_ context.Context, _ platform.Profile) (Status, error) {
	matches, err := filepath.Glob(p.Pattern)
	if err != nil {
		return Status{}, fmt.Errorf("bad pattern %q: %w", p.Pattern, err)
	}
	if len(matches) == 0 {
		return Unavailable(fmt.Sprintf("nothing matches %q", p.Pattern)), nil
	}
	return Available(matches[0]), nil
}

// ComponentProbe checks a profile variable. An empty Value only requires the
// variable to be set.
type ComponentProbe struct {
	Key   string
	Value string
}

// Probe implements Probe.
func (p ComponentProbe) Probe(_ context.Context, profile platform.Profile) (Status, error) {
	v, ok := profile.Var(p.Key)
	switch {
	case !ok:
		return Unavailable(p.Key + " is not set"), nil
	case p.Value == "":
		return Available(v), nil
	case strings.EqualFold(v, p.Value):
		return Available(v), nil
	default:
		return Unavailable(fmt.Sprintf("%s is %q, want %q", p.Key, v, p.Value)), nil
	}
}

// StaticProbe always reports the same status.
type StaticProbe struct {
	Status Status
}

// Probe implements Probe.
func (p StaticProbe) Probe(context.Context, platform.Profile) (Status, error) {
	return p.Status, nil
}

// ObjectFormatProbe inspects a linked binary and checks that its object
// format and architecture match the profile's TARGET_OBJFMT and
// TARGET_ARCH_TYPE.
type ObjectFormatProbe struct {
	Path string
}

// Probe implements Probe.
func (p ObjectFormatProbe) Probe(_ context.Context, profile platform.Profile) (Status, error) {
	wantFmt, _ := profile.Var(platform.KeyObjectFormat)
	wantArch, _ := profile.Var(platform.KeyArchType)

	format, arch, err := ReadObjectFormat(p.Path)
	if err != nil {
		return Status{}, err
	}
	if wantFmt != "" && !strings.EqualFold(format, wantFmt) {
		return Unavailable(fmt.Sprintf("%s is %s, want %s", p.Path, format, wantFmt)), nil
	}
	if wantArch != "" && arch != "" && !strings.EqualFold(arch, wantArch) {
		return Unavailable(fmt.Sprintf("%s is built for %s, want %s", p.Path, arch, wantArch)), nil
	}
	return Available(format + "/" + arch), nil
}

// ErrUnknownObjectFormat is returned for files that are not ELF, PE or Mach-O.
var ErrUnknownObjectFormat = errors.New("unknown object format")

// ReadObjectFormat reports the object format (ELF, PE, MachO) and the
// architecture type of a binary.
func ReadObjectFormat(path string) (format, arch string, err error) {
	if f, err := elf.Open(path); err == nil {
		defer f.Close()
		return "ELF", elfArch(f.Machine), nil
	}
	if f, err := pe.Open(path); err == nil {
		defer f.Close()
		return "PE", peArch(f.Machine), nil
	}
	if f, err := macho.Open(path); err == nil {
		defer f.Close()
		return "MachO", machoArch(f.Cpu), nil
	}
	return "", "", fmt.Errorf("%s: %w", path, ErrUnknownObjectFormat)
}

func elfArch(m elf.Machine) string {
	switch m {
	case elf.EM_X86_64:
		return "x86_64"
	case elf.EM_386:
		return "x86"
	case elf.EM_AARCH64:
		return "aarch64"
	case elf.EM_ARM:
		return "arm"
	case elf.EM_RISCV:
		return "riscv"
	}
	return ""
}

func peArch(m uint16) string {
	switch m {
	case pe.IMAGE_FILE_MACHINE_AMD64:
		return "x86_64"
	case pe.IMAGE_FILE_MACHINE_I386:
		return "x86"
	case pe.IMAGE_FILE_MACHINE_ARM64:
		return "aarch64"
	case pe.IMAGE_FILE_MACHINE_ARMNT:
		return "arm"
	}
	return ""
}

func machoArch(c macho.Cpu) string {
	switch c {
	case macho.CpuAmd64:
		return "x86_64"
	case macho.Cpu386:
		return "x86"
	case macho.CpuArm64:
		return "aarch64"
	case macho.CpuArm:
		return "arm"
	}
	return ""
}

// Spec is the declarative form of a probe, as written in project files.
type Spec struct {
	// Kind is one of program, library, file, component, objfmt, static.
	Kind  string
	Value string
	// Key is the profile variable checked by component probes.
	Key  string
	Dirs []string
	// Available is the fixed answer of a static probe.
	Available bool
}

// NewProbe builds the probe described by s.
func NewProbe(s Spec) (Probe, error) {
	switch s.Kind {
	case "program":
		return ProgramProbe{Program: s.Value, Dirs: s.Dirs}, nil
	case "library":
		return LibraryProbe{Library: s.Value, Dirs: s.Dirs}, nil
	case "file":
		return FileProbe{Pattern: s.Value}, nil
	case "component":
		if !platform.IsComponentKey(s.Key) {
			return nil, fmt.Errorf("component probe: %q is not a TARGET_* variable", s.Key)
		}
		return ComponentProbe{Key: s.Key, Value: s.Value}, nil
	case "objfmt":
		return ObjectFormatProbe{Path: s.Value}, nil
	case "static":
		if s.Available {
			return StaticProbe{Status: Available(s.Value)}, nil
		}
		return StaticProbe{Status: Unavailable(s.Value)}, nil
	}
	return nil, fmt.Errorf("unknown probe kind %q", s.Kind)
}
