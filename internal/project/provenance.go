package project

import (
	"log/slog"

	git "github.com/go-git/go-git/v5"

	"git.home.luguber.info/inful/docgen/internal/logfields"
)

// Provenance identifies the project revision a session rendered.
type Provenance struct {
	Commit string `json:"commit,omitempty"`
	Branch string `json:"branch,omitempty"`
}

// CollectProvenance reads the HEAD of the repository containing root.
// Projects outside version control yield a zero value: provenance is
// recorded best effort and never fails a session.
func CollectProvenance(root string) Provenance {
	repo, err := git.PlainOpenWithOptions(root, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		slog.Debug("No git provenance", logfields.Path(root), logfields.Error(err))
		return Provenance{}
	}
	head, err := repo.Head()
	if err != nil {
		slog.Debug("No git provenance", logfields.Path(root), logfields.Error(err))
		return Provenance{}
	}

	p := Provenance{Commit: head.Hash().String()}
	if head.Name().IsBranch() {
		p.Branch = head.Name().Short()
	}
	return p
}
