package importer

import "fmt"

// resolveRef picks the ref new builds are recorded against. In capture
// mode (--capture-worktree) a dirty worktree, or one containing
// untracked files among the covered set, is stashed into a throwaway
// commit so the build reflects what was actually measured rather than
// the last committed state; otherwise HEAD is used as-is. Untracked but
// VCS-ignored paths are never staged.
func (im *Importer) resolveRef() (ref, refName string, err error) {
	if !im.capture {
		return im.headRef()
	}

	dirty, err := im.vcs.IsDirty()
	if err != nil {
		return "", "", fmt.Errorf("check worktree status: %w", err)
	}

	untracked, err := im.vcs.UntrackedFiles()
	if err != nil {
		return "", "", fmt.Errorf("list untracked files: %w", err)
	}

	var toStage []string
	for _, path := range untracked {
		if _, covered := im.mapping[path]; !covered {
			continue
		}
		ignored, err := im.vcs.IsIgnored(path)
		if err != nil {
			return "", "", fmt.Errorf("check ignore status of %s: %w", path, err)
		}
		if ignored {
			continue
		}
		toStage = append(toStage, path)
	}

	if !dirty && len(toStage) == 0 {
		return im.headRef()
	}

	current, err := im.vcs.CurrentRefName()
	if err != nil {
		return "", "", fmt.Errorf("read current ref: %w", err)
	}

	id, err := im.vcs.Stash(toStage)
	if err != nil {
		return "", "", fmt.Errorf("capture worktree: %w", err)
	}
	return id, fmt.Sprintf("WIP on %s", current), nil
}

func (im *Importer) headRef() (string, string, error) {
	id, err := im.vcs.ResolveRef("HEAD")
	if err != nil {
		return "", "", fmt.Errorf("resolve HEAD: %w", err)
	}
	name, err := im.vcs.CurrentRefName()
	if err != nil {
		return "", "", fmt.Errorf("read current ref: %w", err)
	}
	return id, name, nil
}
