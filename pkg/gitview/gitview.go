// Package gitview answers read-only git queries about a workspace:
// branch, status buckets, recent log, and diffs for the three review
// targets the shell can ask about.
package gitview

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/pmezard/go-difflib/difflib"
)

// DefaultLogLimit caps Log queries that do not request a limit.
const DefaultLogLimit = 20

// View wraps an on-disk repository. go-git reads refs lazily, so a View
// stays valid while the repository changes underneath it.
type View struct {
	repo *git.Repository
	root string
}

// Open locates the repository containing path.
func Open(path string) (*View, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("open repo at %s: %w", path, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("get worktree: %w", err)
	}
	return &View{repo: repo, root: wt.Filesystem.Root()}, nil
}

// Root returns the worktree root, which can sit above the opened path.
func (v *View) Root() string {
	return v.root
}

// FileChange is one path in a status bucket with its porcelain code.
type FileChange struct {
	Path string `json:"path"`
	Code string `json:"code"`
}

// Status describes the repository head plus the working tree, bucketed
// the way the shell's git panel renders it. A path can appear in both
// the staged and unstaged buckets.
type Status struct {
	Branch    string       `json:"branch,omitempty"`
	Head      string       `json:"head,omitempty"`
	Upstream  string       `json:"upstream,omitempty"`
	Detached  bool         `json:"detached,omitempty"`
	Clean     bool         `json:"clean"`
	Staged    []FileChange `json:"staged"`
	Unstaged  []FileChange `json:"unstaged"`
	Untracked []string     `json:"untracked"`
}

// Status reads HEAD and the working tree. An unborn branch (fresh init)
// reports no head and buckets everything as untracked.
func (v *View) Status() (Status, error) {
	st := Status{
		Staged:    []FileChange{},
		Unstaged:  []FileChange{},
		Untracked: []string{},
	}

	if head, err := v.repo.Head(); err == nil {
		st.Head = head.Hash().String()[:8]
		if head.Name().IsBranch() {
			st.Branch = head.Name().Short()
			st.Upstream = v.upstream(st.Branch)
		} else {
			st.Detached = true
		}
	}

	wt, err := v.repo.Worktree()
	if err != nil {
		return Status{}, fmt.Errorf("get worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return Status{}, fmt.Errorf("get status: %w", err)
	}
	st.Clean = status.IsClean()

	paths := make([]string, 0, len(status))
	for path := range status {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		fs := status[path]
		if fs.Worktree == git.Untracked {
			st.Untracked = append(st.Untracked, path)
			continue
		}
		if fs.Staging != git.Unmodified {
			st.Staged = append(st.Staged, FileChange{Path: path, Code: codeString(fs.Staging)})
		}
		if fs.Worktree != git.Unmodified {
			st.Unstaged = append(st.Unstaged, FileChange{Path: path, Code: codeString(fs.Worktree)})
		}
	}
	return st, nil
}

func (v *View) upstream(branch string) string {
	cfg, err := v.repo.Config()
	if err != nil {
		return ""
	}
	b, ok := cfg.Branches[branch]
	if !ok || b.Remote == "" || b.Merge == "" {
		return ""
	}
	return b.Remote + "/" + b.Merge.Short()
}

func codeString(code git.StatusCode) string {
	return string(rune(code))
}

// Commit is one log entry.
type Commit struct {
	Hash    string    `json:"hash"`
	Short   string    `json:"short"`
	Subject string    `json:"subject"`
	Author  string    `json:"author"`
	Email   string    `json:"email"`
	When    time.Time `json:"when"`
}

// Log returns the newest commits reachable from HEAD, newest first.
func (v *View) Log(limit int) ([]Commit, error) {
	if limit <= 0 {
		limit = DefaultLogLimit
	}
	head, err := v.repo.Head()
	if err != nil {
		return []Commit{}, nil
	}
	iter, err := v.repo.Log(&git.LogOptions{From: head.Hash(), Order: git.LogOrderCommitterTime})
	if err != nil {
		return nil, fmt.Errorf("get log: %w", err)
	}
	defer iter.Close()

	commits := make([]Commit, 0, limit)
	err = iter.ForEach(func(c *object.Commit) error {
		commits = append(commits, Commit{
			Hash:    c.Hash.String(),
			Short:   c.Hash.String()[:8],
			Subject: subject(c.Message),
			Author:  c.Author.Name,
			Email:   c.Author.Email,
			When:    c.Author.When,
		})
		if len(commits) >= limit {
			return storer.ErrStop
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk log: %w", err)
	}
	return commits, nil
}

func subject(message string) string {
	line, _, _ := strings.Cut(message, "\n")
	return strings.TrimSpace(line)
}

// Branch is one local branch.
type Branch struct {
	Name    string `json:"name"`
	Current bool   `json:"current"`
}

// Branches lists local branches sorted by name.
func (v *View) Branches() ([]Branch, error) {
	current := ""
	if head, err := v.repo.Head(); err == nil && head.Name().IsBranch() {
		current = head.Name().Short()
	}

	iter, err := v.repo.Branches()
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	defer iter.Close()

	var branches []Branch
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		name := ref.Name().Short()
		branches = append(branches, Branch{Name: name, Current: name == current})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk branches: %w", err)
	}
	sort.Slice(branches, func(i, j int) bool { return branches[i].Name < branches[j].Name })
	return branches, nil
}

// DiffWorktree renders the uncommitted changes (staged, unstaged, and
// untracked) against HEAD as unified diffs. Worktree contents are not
// in the object store, so this path goes through difflib rather than
// go-git's patch machinery.
func (v *View) DiffWorktree() (string, error) {
	wt, err := v.repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("get worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return "", fmt.Errorf("get status: %w", err)
	}

	var headTree *object.Tree
	if head, err := v.repo.Head(); err == nil {
		commit, err := v.repo.CommitObject(head.Hash())
		if err != nil {
			return "", fmt.Errorf("get HEAD commit: %w", err)
		}
		headTree, err = commit.Tree()
		if err != nil {
			return "", fmt.Errorf("get HEAD tree: %w", err)
		}
	}

	paths := make([]string, 0, len(status))
	for path, fs := range status {
		if fs.Staging == git.Unmodified && fs.Worktree == git.Unmodified {
			continue
		}
		paths = append(paths, path)
	}
	sort.Strings(paths)

	var out strings.Builder
	for _, path := range paths {
		old := ""
		if headTree != nil {
			if f, err := headTree.File(path); err == nil {
				if content, err := f.Contents(); err == nil {
					old = content
				}
			}
		}
		current := ""
		if data, err := os.ReadFile(filepath.Join(v.root, path)); err == nil {
			current = string(data)
		}
		if old == current {
			continue
		}
		if isBinary(old) || isBinary(current) {
			fmt.Fprintf(&out, "Binary files a/%s and b/%s differ\n", path, path)
			continue
		}
		text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
			A:        difflib.SplitLines(old),
			B:        difflib.SplitLines(current),
			FromFile: "a/" + path,
			ToFile:   "b/" + path,
			Context:  3,
		})
		if err != nil {
			return "", fmt.Errorf("diff %s: %w", path, err)
		}
		out.WriteString(text)
	}
	return out.String(), nil
}

func isBinary(content string) bool {
	return strings.ContainsRune(content, '\x00')
}

// DiffBase renders the changes HEAD carries on top of the merge base
// with the given branch or revision, the way a review against a base
// branch sees them.
func (v *View) DiffBase(base string) (string, error) {
	if strings.TrimSpace(base) == "" {
		return "", fmt.Errorf("base revision cannot be empty")
	}
	head, err := v.repo.Head()
	if err != nil {
		return "", fmt.Errorf("get HEAD: %w", err)
	}
	headCommit, err := v.repo.CommitObject(head.Hash())
	if err != nil {
		return "", fmt.Errorf("get HEAD commit: %w", err)
	}

	baseHash, err := v.repo.ResolveRevision(plumbing.Revision(base))
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", base, err)
	}
	baseCommit, err := v.repo.CommitObject(*baseHash)
	if err != nil {
		return "", fmt.Errorf("get %s commit: %w", base, err)
	}

	mbs, err := headCommit.MergeBase(baseCommit)
	if err != nil {
		return "", fmt.Errorf("merge base with %s: %w", base, err)
	}
	from := baseCommit
	if len(mbs) > 0 {
		from = mbs[0]
	}
	return patchBetween(from, headCommit)
}

// DiffCommit renders one commit's patch against its first parent. A
// root commit diffs against the empty tree.
func (v *View) DiffCommit(rev string) (string, error) {
	if strings.TrimSpace(rev) == "" {
		return "", fmt.Errorf("commit revision cannot be empty")
	}
	hash, err := v.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", rev, err)
	}
	commit, err := v.repo.CommitObject(*hash)
	if err != nil {
		return "", fmt.Errorf("get %s commit: %w", rev, err)
	}
	if commit.NumParents() == 0 {
		return patchBetween(nil, commit)
	}
	parent, err := commit.Parent(0)
	if err != nil {
		return "", fmt.Errorf("get parent of %s: %w", rev, err)
	}
	return patchBetween(parent, commit)
}

func patchBetween(from, to *object.Commit) (string, error) {
	var fromTree *object.Tree
	if from != nil {
		tree, err := from.Tree()
		if err != nil {
			return "", fmt.Errorf("get tree: %w", err)
		}
		fromTree = tree
	}
	toTree, err := to.Tree()
	if err != nil {
		return "", fmt.Errorf("get tree: %w", err)
	}
	changes, err := object.DiffTree(fromTree, toTree)
	if err != nil {
		return "", fmt.Errorf("diff trees: %w", err)
	}
	patch, err := changes.Patch()
	if err != nil {
		return "", fmt.Errorf("render patch: %w", err)
	}
	return patch.String(), nil
}
