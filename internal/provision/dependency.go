package provision

import (
	"context"
	stderrors "errors"
	"os"
	"path"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/meshpack/internal/config"
	"git.home.luguber.info/inful/meshpack/internal/foundation/errors"
	"git.home.luguber.info/inful/meshpack/internal/fsutil"
	"git.home.luguber.info/inful/meshpack/internal/logfields"
	"git.home.luguber.info/inful/meshpack/internal/orchestrator/models"
	"git.home.luguber.info/inful/meshpack/internal/process"
)

// provisionDependency fetches, builds and stages one native dependency. It is
// complete when every artifact exists at its staging path.
func (p *Provisioner) provisionDependency(ctx context.Context, dep config.Dependency, force bool) (models.StepReport, error) {
	var rep models.StepReport
	log := p.logger.With(logfields.Dependency(dep.Name))

	staged := p.stagedPaths(dep)
	if !force {
		done, _, err := fsutil.AllExist(staged...)
		if err != nil {
			return rep, errors.WrapError(err, errors.CategoryFileSystem, "inspect staged artifacts").
				WithContext("dependency", dep.Name).
				Build()
		}
		if done {
			log.Info("Dependency already staged, skipping")
			rep.Skipped = append(rep.Skipped, dep.Name)
			for _, s := range staged {
				rep.Artifacts = append(rep.Artifacts, models.Artifact{Kind: models.ArtifactLibrary, Owner: dep.Name, Path: s, Reused: true})
			}
			return rep, nil
		}
	}

	log.Info("Provisioning dependency", logfields.URL(dep.Fetch.URL), logfields.Ref(dep.Fetch.Ref))
	if err := p.fetchSource(ctx, dep, force); err != nil {
		return rep, err
	}
	if err := prepareScripts(dep); err != nil {
		return rep, err
	}
	if err := p.runSteps(ctx, dep); err != nil {
		return rep, err
	}
	arts, err := p.stageArtifacts(dep)
	rep.Artifacts = append(rep.Artifacts, arts...)
	return rep, err
}

func (p *Provisioner) stagedPaths(dep config.Dependency) []string {
	out := make([]string, len(dep.Artifacts))
	for i, a := range dep.Artifacts {
		out[i] = filepath.Join(p.cfg.Paths.LibDir, p.rc.Expand(a.To))
	}
	return out
}

// FetchedMarker is written into a dependency directory once its sources are
// complete. A directory without it is a leftover of an interrupted fetch.
const FetchedMarker = ".meshpack-fetched"

// fetchSource populates dep.Dir. Completely fetched sources are reused unless force
// is set; anything else in the directory is removed and fetched again.
func (p *Provisioner) fetchSource(ctx context.Context, dep config.Dependency, force bool) error {
	log := p.logger.With(logfields.Dependency(dep.Name), logfields.Path(dep.Dir))
	marker := filepath.Join(dep.Dir, FetchedMarker)
	if !force {
		_, err := os.Stat(marker)
		if err == nil {
			log.Info("Reusing fetched sources")
			return nil
		}
		if !stderrors.Is(err, os.ErrNotExist) {
			return errors.WrapError(err, errors.CategoryFileSystem, "inspect dependency directory").
				WithContext("path", dep.Dir).
				Build()
		}
	}
	if _, err := os.Lstat(dep.Dir); err == nil {
		log.Info("Discarding previously fetched sources")
	}
	if err := removeSources(dep.Dir); err != nil {
		return err
	}

	var err error
	switch dep.Fetch.Kind {
	case config.FetchArchive:
		err = p.fetchArchive(ctx, dep)
	default:
		err = p.fetchGit(ctx, dep)
	}
	if err != nil {
		return err
	}
	if err := os.WriteFile(marker, []byte(dep.Fetch.URL+"\n"), 0o644); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "mark dependency sources fetched").
			WithContext("path", marker).
			Build()
	}
	return nil
}

func removeSources(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "remove dependency sources").
			Fatal().
			WithContext("path", dir).
			Build()
	}
	return nil
}

func (p *Provisioner) fetchGit(ctx context.Context, dep config.Dependency) error {
	if err := os.MkdirAll(filepath.Dir(dep.Dir), 0o755); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "create dependency parent").
			WithContext("path", dep.Dir).
			Build()
	}
	cmd := process.Command{
		Name:    "git",
		Args:    []string{"clone", "-b", dep.Fetch.Ref, dep.Fetch.URL, dep.Dir},
		Dir:     filepath.Dir(dep.Dir),
		Env:     p.rc.Environ(map[string]string{"GIT_TERMINAL_PROMPT": "0"}),
		Timeout: p.cfg.Timeouts.Fetch,
		Expect:  []string{filepath.Join(dep.Dir, ".git")},
	}
	log := p.logger.With(logfields.Dependency(dep.Name))
	attempt := 0
	return p.policy.Do(ctx, "clone "+dep.Name, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			// A failed clone may leave a partial tree that git refuses to clone into.
			if err := removeSources(dep.Dir); err != nil {
				return err
			}
		}
		_, err := p.runner.Run(ctx, cmd)
		return classifyFetchError(err, dep)
	}, p.retryOptions("clone", log)...)
}

func (p *Provisioner) fetchArchive(ctx context.Context, dep config.Dependency) error {
	archive := filepath.Join(p.downloadDir(), path.Base(dep.Fetch.URL))
	if err := p.download(ctx, dep.Name, dep.Fetch.URL, archive); err != nil {
		return err
	}
	// Extract next to dep.Dir and rename into place so an interrupted extraction
	// never looks like a source tree.
	partial := dep.Dir + ".partial"
	if err := removeSources(partial); err != nil {
		return err
	}
	if err := extractTarball(archive, config.ArchiveFormat(dep.Fetch.URL), partial); err != nil {
		if rerr := os.RemoveAll(partial); rerr != nil {
			p.logger.Warn("Failed to remove partial extraction", logfields.Path(partial), logfields.Error(rerr))
		}
		return errors.WrapError(err, errors.CategoryProvision, "extract source archive").
			Fatal().
			WithContext("dependency", dep.Name).
			WithContext("archive", archive).
			Build()
	}
	if err := os.Rename(partial, dep.Dir); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "move extracted sources into place").
			WithContext("path", dep.Dir).
			Build()
	}
	return nil
}

// classifyFetchError marks clone failures transient unless the tool itself is unusable.
func classifyFetchError(err error, dep config.Dependency) error {
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
		return err
	case stderrors.Is(err, process.ErrNotFound):
		return errors.WrapError(err, errors.CategoryProvision, "git is not installed").
			Fatal().
			WithContext("dependency", dep.Name).
			Build()
	default:
		return errors.WrapError(err, errors.CategoryNetwork, "fetch dependency source").
			Retryable().
			WithContext("dependency", dep.Name).
			WithContext("url", dep.Fetch.URL).
			Build()
	}
}

// prepareScripts sets the exec bit on every ./script a step invokes.
func prepareScripts(dep config.Dependency) error {
	for _, step := range dep.Steps {
		name := step.Run[0]
		if !strings.HasPrefix(name, "./") {
			continue
		}
		script := filepath.Join(dep.Dir, name)
		if err := os.Chmod(script, 0o755); err != nil && !stderrors.Is(err, os.ErrNotExist) {
			return errors.WrapError(err, errors.CategoryFileSystem, "make script executable").
				WithContext("path", script).
				Build()
		}
	}
	return nil
}

// runSteps runs the local build steps in order; the first failure is fatal.
func (p *Provisioner) runSteps(ctx context.Context, dep config.Dependency) error {
	for _, step := range dep.Steps {
		env := make(map[string]string, len(step.Env))
		for k, v := range step.Env {
			env[k] = p.rc.Expand(v)
		}
		cmd := process.Command{
			Name:    p.rc.Expand(step.Run[0]),
			Args:    p.rc.ExpandAll(step.Run[1:]),
			Dir:     dep.Dir,
			Env:     p.rc.Environ(env),
			Timeout: p.cfg.Timeouts.Build,
		}
		p.logger.Info("Running build step", logfields.Dependency(dep.Name), logfields.Command(cmd.String()))
		if _, err := p.runner.Run(ctx, cmd); err != nil {
			if ctx.Err() != nil {
				return err
			}
			return errors.WrapError(err, errors.CategoryProvision, "dependency build step failed").
				Fatal().
				WithContext("dependency", dep.Name).
				WithContext("command", cmd.String()).
				Build()
		}
	}
	return nil
}

// stageArtifacts copies each artifact from the dependency tree into the lib dir.
func (p *Provisioner) stageArtifacts(dep config.Dependency) ([]models.Artifact, error) {
	var out []models.Artifact
	for _, a := range dep.Artifacts {
		src := p.rc.Expand(a.From)
		if !filepath.IsAbs(src) {
			src = filepath.Join(dep.Dir, src)
		}
		dst := filepath.Join(p.cfg.Paths.LibDir, p.rc.Expand(a.To))
		if err := fsutil.CopyFile(src, dst); err != nil {
			msg := "stage dependency artifact"
			if stderrors.Is(err, os.ErrNotExist) {
				msg = "dependency artifact missing after build"
			}
			return out, errors.WrapError(err, errors.CategoryProvision, msg).
				Fatal().
				WithContext("dependency", dep.Name).
				WithContext("path", src).
				Build()
		}
		out = append(out, models.Artifact{Kind: models.ArtifactLibrary, Owner: dep.Name, Path: dst})
	}
	return out, nil
}
