package install

import (
	"bytes"
	"context"
	"io"
	"path"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/specialistvlad/buildmeup/internal/ctxlog"
	"golang.org/x/sync/singleflight"
)

// ClassifyRule assigns Type to artifacts whose base name matches one of
// Patterns, whose mode has an executable bit (Executable) or whose first
// bytes are an executable object header (Magic). Any one match is enough.
type ClassifyRule struct {
	Type       ArtifactType
	Patterns   []string
	Executable bool
	Magic      bool
}

// DefaultClassifyRules is the built-in naming convention. Rules are tried in
// order, so shared library versions (libz.so.1) are claimed before manual
// sections (*.1).
func DefaultClassifyRules() []ClassifyRule {
	return []ClassifyRule{
		{Type: Header, Patterns: []string{"*.h", "*.hh", "*.hpp", "*.hxx", "*.inl"}},
		{Type: SharedLibrary, Patterns: []string{"*.so", "*.so.*", "*.dylib", "*.dll"}},
		{Type: StaticLibrary, Patterns: []string{"*.a", "*.lib"}},
		{Type: Manual, Patterns: []string{"*.1", "*.2", "*.3", "*.4", "*.5", "*.6", "*.7", "*.8", "*.9"}},
		{Type: Documentation, Patterns: []string{"*.md", "*.txt", "*.rst", "*.html", "*.pdf", "README*", "LICENSE*", "COPYING*"}},
		{Type: Config, Patterns: []string{"*.conf", "*.cfg", "*.ini", "*.toml", "*.yaml", "*.yml"}},
		{Type: Binary, Patterns: []string{"*.exe"}, Executable: true, Magic: true},
	}
}

var objectMagics = [][]byte{
	[]byte("\x7fELF"),
	[]byte("MZ"),
	{0xfe, 0xed, 0xfa, 0xce},
	{0xfe, 0xed, 0xfa, 0xcf},
	{0xce, 0xfa, 0xed, 0xfe},
	{0xcf, 0xfa, 0xed, 0xfe},
}

// Classifier maps untagged artifacts to a type. Results are cached per
// payload; concurrent first requests for the same payload share one lookup.
type Classifier struct {
	src         billy.Filesystem
	rules       []ClassifyRule
	defaultType ArtifactType

	cache sync.Map
	group singleflight.Group
}

// NewClassifier creates a classifier reading payloads from src. An empty
// defaultType means unmatched artifacts are an error.
func NewClassifier(src billy.Filesystem, rules []ClassifyRule, defaultType ArtifactType) *Classifier {
	return &Classifier{src: src, rules: rules, defaultType: defaultType}
}

// Classify returns the artifact's type.
func (c *Classifier) Classify(ctx context.Context, a Artifact) (ArtifactType, error) {
	if a.Type != "" {
		return a.Type, nil
	}
	if t, ok := c.cache.Load(a.Payload); ok {
		return t.(ArtifactType), nil
	}

	v, err, _ := c.group.Do(a.Payload, func() (any, error) {
		if t, ok := c.cache.Load(a.Payload); ok {
			return t, nil
		}
		t, err := c.classify(a)
		if err != nil {
			return nil, err
		}
		ctxlog.FromContext(ctx).Debug("Artifact classified.", "payload", a.Payload, "type", t)
		c.cache.Store(a.Payload, t)
		return t, nil
	})
	if err != nil {
		return "", err
	}
	return v.(ArtifactType), nil
}

func (c *Classifier) classify(a Artifact) (ArtifactType, error) {
	base := path.Base(a.Payload)

	var (
		statDone, executable bool
		headDone             bool
		head                 []byte
	)
	for _, r := range c.rules {
		for _, p := range r.Patterns {
			if ok, _ := path.Match(p, base); ok {
				return r.Type, nil
			}
		}
		if r.Executable {
			if !statDone {
				statDone = true
				if fi, err := c.src.Stat(a.Payload); err == nil {
					executable = fi.Mode().IsRegular() && fi.Mode().Perm()&0o111 != 0
				}
			}
			if executable {
				return r.Type, nil
			}
		}
		if r.Magic {
			if !headDone {
				headDone = true
				head = c.readHead(a.Payload)
			}
			for _, m := range objectMagics {
				if bytes.HasPrefix(head, m) {
					return r.Type, nil
				}
			}
		}
	}
	if c.defaultType != "" {
		return c.defaultType, nil
	}
	return "", &UnknownArtifactTypeError{Module: a.Module, Payload: a.Payload}
}

func (c *Classifier) readHead(name string) []byte {
	f, err := c.src.Open(name)
	if err != nil {
		return nil
	}
	defer f.Close()
	buf := make([]byte, 4)
	n, _ := io.ReadFull(f, buf)
	return buf[:n]
}
