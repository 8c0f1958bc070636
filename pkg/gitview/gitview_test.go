package gitview

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type repoRig struct {
	dir  string
	repo *git.Repository
	wt   *git.Worktree
	// clock hands out strictly increasing commit times so log order
	// is deterministic.
	clock time.Time
}

func initRepo(t *testing.T) *repoRig {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)
	return &repoRig{dir: dir, repo: repo, wt: wt, clock: time.Now().Add(-time.Hour)}
}

func (r *repoRig) write(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(r.dir, name), []byte(content), 0o644))
}

func (r *repoRig) commitAll(t *testing.T, msg string) plumbing.Hash {
	t.Helper()
	require.NoError(t, r.wt.AddWithOptions(&git.AddOptions{All: true}))
	r.clock = r.clock.Add(time.Minute)
	hash, err := r.wt.Commit(msg, &git.CommitOptions{
		Author: &object.Signature{Name: "Test", Email: "test@example.com", When: r.clock},
	})
	require.NoError(t, err)
	return hash
}

func (r *repoRig) branchAt(t *testing.T, name string, hash plumbing.Hash) {
	t.Helper()
	ref := plumbing.NewHashReference(plumbing.NewBranchReferenceName(name), hash)
	require.NoError(t, r.repo.Storer.SetReference(ref))
}

func (r *repoRig) checkout(t *testing.T, name string) {
	t.Helper()
	require.NoError(t, r.wt.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(name),
	}))
}

func openView(t *testing.T, dir string) *View {
	t.Helper()
	v, err := Open(dir)
	require.NoError(t, err)
	return v
}

func TestOpen(t *testing.T) {
	t.Run("detects dot git from a subdirectory", func(t *testing.T) {
		rig := initRepo(t)
		rig.write(t, "a.txt", "one\n")
		rig.commitAll(t, "Initial commit")

		sub := filepath.Join(rig.dir, "sub")
		require.NoError(t, os.MkdirAll(sub, 0o755))

		v := openView(t, sub)
		assert.Equal(t, rig.dir, v.Root())
	})

	t.Run("fails outside a repository", func(t *testing.T) {
		_, err := Open(t.TempDir())
		require.Error(t, err)
	})
}

func TestStatusBuckets(t *testing.T) {
	rig := initRepo(t)
	rig.write(t, "a.txt", "one\n")
	head := rig.commitAll(t, "Initial commit")

	rig.write(t, "a.txt", "one\ntwo\n")
	_, err := rig.wt.Add("a.txt")
	require.NoError(t, err)
	rig.write(t, "a.txt", "one\ntwo\nthree\n")
	rig.write(t, "b.txt", "untracked\n")

	st, err := openView(t, rig.dir).Status()
	require.NoError(t, err)

	assert.Equal(t, "master", st.Branch)
	assert.Equal(t, head.String()[:8], st.Head)
	assert.False(t, st.Detached)
	assert.False(t, st.Clean)
	assert.Equal(t, []FileChange{{Path: "a.txt", Code: "M"}}, st.Staged)
	assert.Equal(t, []FileChange{{Path: "a.txt", Code: "M"}}, st.Unstaged)
	assert.Equal(t, []string{"b.txt"}, st.Untracked)
}

func TestStatusCleanRepo(t *testing.T) {
	rig := initRepo(t)
	rig.write(t, "a.txt", "one\n")
	rig.commitAll(t, "Initial commit")

	st, err := openView(t, rig.dir).Status()
	require.NoError(t, err)
	assert.True(t, st.Clean)
	assert.Empty(t, st.Staged)
	assert.Empty(t, st.Unstaged)
	assert.Empty(t, st.Untracked)
}

func TestStatusUnbornBranch(t *testing.T) {
	rig := initRepo(t)
	rig.write(t, "a.txt", "one\n")

	st, err := openView(t, rig.dir).Status()
	require.NoError(t, err)
	assert.Empty(t, st.Branch)
	assert.Empty(t, st.Head)
	assert.False(t, st.Clean)
	assert.Equal(t, []string{"a.txt"}, st.Untracked)
}

func TestLogNewestFirst(t *testing.T) {
	rig := initRepo(t)
	rig.write(t, "a.txt", "one\n")
	rig.commitAll(t, "First commit")
	rig.write(t, "a.txt", "one\ntwo\n")
	second := rig.commitAll(t, "Second commit\n\nwith a body")
	rig.write(t, "a.txt", "one\ntwo\nthree\n")
	third := rig.commitAll(t, "Third commit")

	v := openView(t, rig.dir)

	commits, err := v.Log(2)
	require.NoError(t, err)
	require.Len(t, commits, 2)
	assert.Equal(t, third.String(), commits[0].Hash)
	assert.Equal(t, second.String(), commits[1].Hash)
	assert.Equal(t, "Second commit", commits[1].Subject)
	assert.Equal(t, "Test", commits[1].Author)

	all, err := v.Log(0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestLogEmptyRepo(t *testing.T) {
	rig := initRepo(t)
	commits, err := openView(t, rig.dir).Log(5)
	require.NoError(t, err)
	assert.Empty(t, commits)
}

func TestBranches(t *testing.T) {
	rig := initRepo(t)
	rig.write(t, "a.txt", "one\n")
	first := rig.commitAll(t, "Initial commit")
	rig.branchAt(t, "side", first)
	rig.checkout(t, "side")

	branches, err := openView(t, rig.dir).Branches()
	require.NoError(t, err)
	require.Equal(t, []Branch{
		{Name: "master"},
		{Name: "side", Current: true},
	}, branches)
}

func TestDiffWorktree(t *testing.T) {
	rig := initRepo(t)
	rig.write(t, "a.txt", "one\ntwo\n")
	rig.commitAll(t, "Initial commit")

	rig.write(t, "a.txt", "one\nthree\n")
	rig.write(t, "new.txt", "fresh\n")

	diff, err := openView(t, rig.dir).DiffWorktree()
	require.NoError(t, err)

	assert.Contains(t, diff, "--- a/a.txt")
	assert.Contains(t, diff, "+++ b/a.txt")
	assert.Contains(t, diff, "-two")
	assert.Contains(t, diff, "+three")
	assert.Contains(t, diff, "+++ b/new.txt")
	assert.Contains(t, diff, "+fresh")

	t.Run("binary files are named, not rendered", func(t *testing.T) {
		rig.write(t, "blob.bin", "head\x00tail")
		diff, err := openView(t, rig.dir).DiffWorktree()
		require.NoError(t, err)
		assert.Contains(t, diff, "Binary files a/blob.bin and b/blob.bin differ")
		assert.NotContains(t, diff, "head\x00tail")
	})

	t.Run("clean worktree diffs to nothing", func(t *testing.T) {
		clean := initRepo(t)
		clean.write(t, "a.txt", "one\n")
		clean.commitAll(t, "Initial commit")
		diff, err := openView(t, clean.dir).DiffWorktree()
		require.NoError(t, err)
		assert.Empty(t, diff)
	})
}

func TestDiffBaseUsesMergeBase(t *testing.T) {
	rig := initRepo(t)
	rig.write(t, "a.txt", "one\n")
	first := rig.commitAll(t, "Initial commit")
	rig.write(t, "a.txt", "one\ntwo\n")
	rig.commitAll(t, "Advance master")

	rig.branchAt(t, "side", first)
	rig.checkout(t, "side")
	rig.write(t, "c.txt", "side\n")
	rig.commitAll(t, "Side work")

	diff, err := openView(t, rig.dir).DiffBase("master")
	require.NoError(t, err)

	// Only the side branch's own work, not master's advance.
	assert.Contains(t, diff, "+++ b/c.txt")
	assert.Contains(t, diff, "+side")
	assert.NotContains(t, diff, "+two")
}

func TestDiffBaseValidation(t *testing.T) {
	rig := initRepo(t)
	rig.write(t, "a.txt", "one\n")
	rig.commitAll(t, "Initial commit")
	v := openView(t, rig.dir)

	_, err := v.DiffBase("")
	require.Error(t, err)
	_, err = v.DiffBase("no-such-branch")
	require.ErrorContains(t, err, "resolve no-such-branch")
}

func TestDiffCommit(t *testing.T) {
	rig := initRepo(t)
	rig.write(t, "a.txt", "one\n")
	first := rig.commitAll(t, "Initial commit")
	rig.write(t, "a.txt", "one\ntwo\n")
	second := rig.commitAll(t, "Add second line")

	v := openView(t, rig.dir)

	diff, err := v.DiffCommit(second.String())
	require.NoError(t, err)
	assert.Contains(t, diff, "a.txt")
	assert.Contains(t, diff, "+two")
	assert.NotContains(t, diff, "+one")

	t.Run("root commit diffs against the empty tree", func(t *testing.T) {
		diff, err := v.DiffCommit(first.String())
		require.NoError(t, err)
		assert.Contains(t, diff, "+one")
	})

	t.Run("unknown revision fails", func(t *testing.T) {
		_, err := v.DiffCommit("0000000000000000000000000000000000000000")
		require.Error(t, err)
	})
}
