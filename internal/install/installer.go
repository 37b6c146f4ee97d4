package install

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"sync/atomic"

	"github.com/go-git/go-billy/v5"
	"github.com/specialistvlad/buildmeup/internal/ctxlog"
	"github.com/specialistvlad/buildmeup/internal/platform"
)

// Installer copies classified artifacts from a source filesystem to their
// rule-determined destination in a destination filesystem.
type Installer struct {
	src        billy.Filesystem
	dst        billy.Filesystem
	classifier *Classifier
	rules      RuleSet
	vars       Vars

	tmpSeq atomic.Uint64
}

// Options configures an Installer.
type Options struct {
	// Source holds artifact payloads, usually the project directory.
	Source billy.Filesystem
	// Dest receives installed files, usually the host root.
	Dest       billy.Filesystem
	Classifier *Classifier
	Rules      RuleSet
	Vars       Vars
}

// NewInstaller creates an installer.
func NewInstaller(opts Options) *Installer {
	if opts.Classifier == nil {
		opts.Classifier = NewClassifier(opts.Source, DefaultClassifyRules(), "")
	}
	return &Installer{
		src:        opts.Source,
		dst:        opts.Dest,
		classifier: opts.Classifier,
		rules:      opts.Rules,
		vars:       opts.Vars,
	}
}

// Destination returns the directory artifacts of type t are installed into
// on profile. It has no side effects.
func (in *Installer) Destination(t ArtifactType, profile platform.Profile) (string, error) {
	r, ok := in.rules.Lookup(t, profile.Name())
	if !ok {
		return "", &NoInstallRuleError{Type: t, Platform: profile.Name()}
	}
	dir, err := in.vars.evaluate(r.Destination, profile)
	if err != nil {
		return "", fmt.Errorf("install rule %s/%s: %w", r.Type, r.Platform, err)
	}
	return dir, nil
}

// Install classifies a and copies it into place. Installing the same
// artifact again overwrites the previous copy with identical content.
func (in *Installer) Install(ctx context.Context, a Artifact, profile platform.Profile) (Location, error) {
	t, err := in.classifier.Classify(ctx, a)
	if err != nil {
		return Location{}, err
	}

	dir, err := in.Destination(t, profile)
	if err != nil {
		var nr *NoInstallRuleError
		if errors.As(err, &nr) {
			nr.Module = a.Module
		}
		return Location{}, err
	}

	name := a.InstallName
	if name == "" {
		name = path.Base(a.Payload)
	}
	dest := path.Join(dir, name)

	if err := in.copy(a.Payload, dest); err != nil {
		return Location{}, fmt.Errorf("module %q: installing %s to %s: %w", a.Module, a.Payload, dest, err)
	}

	ctxlog.FromContext(ctx).Info("Artifact installed.", "module", a.Module, "type", t, "path", dest)
	return Location{Module: a.Module, Type: t, Payload: a.Payload, Path: dest}, nil
}

// copy writes src to a temporary sibling of dst and renames it into place,
// so a reader never sees a partially written file.
func (in *Installer) copy(src, dst string) error {
	fi, err := in.src.Stat(src)
	if err != nil {
		return err
	}
	if fi.IsDir() {
		return fmt.Errorf("%s is a directory", src)
	}
	mode := fi.Mode().Perm()

	r, err := in.src.Open(src)
	if err != nil {
		return err
	}
	defer r.Close()

	dir := path.Dir(dst)
	if err := in.dst.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp := path.Join(dir, "."+path.Base(dst)+".tmp"+strconv.FormatUint(in.tmpSeq.Add(1), 10))
	w, err := in.dst.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		in.dst.Remove(tmp)
		return err
	}
	if err := w.Close(); err != nil {
		in.dst.Remove(tmp)
		return err
	}

	if err := in.dst.Rename(tmp, dst); err != nil {
		// Not every filesystem replaces an existing target on rename.
		if rmErr := in.dst.Remove(dst); rmErr != nil && !os.IsNotExist(rmErr) {
			in.dst.Remove(tmp)
			return err
		}
		if err := in.dst.Rename(tmp, dst); err != nil {
			in.dst.Remove(tmp)
			return err
		}
	}
	if ch, ok := in.dst.(billy.Change); ok {
		if err := ch.Chmod(dst, mode); err != nil {
			return err
		}
	}
	return nil
}
