package git

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	ggitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/meshpack/internal/config"
)

// helper to add a file and commit returning hash.
func addFileAndCommit(t *testing.T, repo *gogit.Repository, repoPath, filename, content string) plumbing.Hash {
	t.Helper()
	wt, err := repo.Worktree()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(repoPath, filename), []byte(content), 0o600))
	_, err = wt.Add(filename)
	require.NoError(t, err)
	hash, err := wt.Commit(filename, &gogit.CommitOptions{Author: &object.Signature{Name: "tester", Email: "t@example.com", When: time.Now()}})
	require.NoError(t, err)
	return hash
}

// remoteFixture is a bare "remote" plus a seed working repo pushing to it.
type remoteFixture struct {
	bare string
	seed string
	repo *gogit.Repository
}

func newRemoteFixture(t *testing.T) *remoteFixture {
	t.Helper()
	tmp := t.TempDir()
	f := &remoteFixture{bare: filepath.Join(tmp, "remote.git"), seed: filepath.Join(tmp, "seed")}
	_, err := gogit.PlainInit(f.bare, true)
	require.NoError(t, err)
	f.repo, err = gogit.PlainInit(f.seed, false)
	require.NoError(t, err)
	_, err = f.repo.CreateRemote(&ggitcfg.RemoteConfig{Name: "origin", URLs: []string{f.bare}})
	require.NoError(t, err)
	f.commit(t, "README", "seed")
	return f
}

func (f *remoteFixture) commit(t *testing.T, name, content string) plumbing.Hash {
	t.Helper()
	h := addFileAndCommit(t, f.repo, f.seed, name, content)
	require.NoError(t, f.repo.Push(&gogit.PushOptions{RemoteName: "origin"}))
	return h
}

func headOf(t *testing.T, path string) plumbing.Hash {
	t.Helper()
	repo, err := gogit.PlainOpen(path)
	require.NoError(t, err)
	head, err := repo.Head()
	require.NoError(t, err)
	return head.Hash()
}

func TestGoGitBackend_CloneThenFastForward(t *testing.T) {
	remote := newRemoteFixture(t)
	co := config.Checkout{Name: "tinc", URL: remote.bare, Ref: "master", Path: filepath.Join(t.TempDir(), "src", "tinc_src")}
	s := NewStager(NewGoGitBackend(nil), testPolicy(0))

	outcome, err := s.Ensure(context.Background(), co)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCloned, outcome)
	assert.FileExists(t, filepath.Join(co.Path, "README"))

	next := remote.commit(t, "configure.ac", "AC_INIT")
	outcome, err = s.Ensure(context.Background(), co)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSynced, outcome)
	assert.Equal(t, next, headOf(t, co.Path))
	assert.FileExists(t, filepath.Join(co.Path, "configure.ac"))

	// Nothing new upstream: still a sync, head unchanged.
	outcome, err = s.Ensure(context.Background(), co)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSynced, outcome)
	assert.Equal(t, next, headOf(t, co.Path))
}

func TestGoGitBackend_LocalAheadIsKept(t *testing.T) {
	remote := newRemoteFixture(t)
	co := config.Checkout{Name: "tinc", URL: remote.bare, Ref: "master", Path: filepath.Join(t.TempDir(), "tinc_src")}
	backend := NewGoGitBackend(nil)
	require.NoError(t, backend.Clone(context.Background(), co))

	local, err := gogit.PlainOpen(co.Path)
	require.NoError(t, err)
	ahead := addFileAndCommit(t, local, co.Path, "patch.diff", "local")

	require.NoError(t, backend.Sync(context.Background(), co))
	assert.Equal(t, ahead, headOf(t, co.Path))
}

func TestGoGitBackend_DivergedIsPermanent(t *testing.T) {
	remote := newRemoteFixture(t)
	co := config.Checkout{Name: "tinc", URL: remote.bare, Ref: "master", Path: filepath.Join(t.TempDir(), "tinc_src")}
	backend := NewGoGitBackend(nil)
	require.NoError(t, backend.Clone(context.Background(), co))

	local, err := gogit.PlainOpen(co.Path)
	require.NoError(t, err)
	localHead := addFileAndCommit(t, local, co.Path, "b.txt", "B")
	remote.commit(t, "c.txt", "C")

	calls := 0
	s := NewStager(backend, testPolicy(3), WithSleep(noSleep), WithRetryHook(func(string) { calls++ }))
	_, err = s.Ensure(context.Background(), co)
	require.Error(t, err)
	var div *RemoteDivergedError
	require.ErrorAs(t, err, &div)
	assert.Zero(t, calls, "divergence is not retried")
	assert.Equal(t, localHead, headOf(t, co.Path), "local work is never discarded")
}

func TestGoGitBackend_TagRef(t *testing.T) {
	remote := newRemoteFixture(t)
	tagged := remote.commit(t, "VERSION", "1.1.1c")
	_, err := remote.repo.CreateTag("OpenSSL_1_1_1c", tagged, nil)
	require.NoError(t, err)
	require.NoError(t, remote.repo.Push(&gogit.PushOptions{
		RemoteName: "origin",
		RefSpecs:   []ggitcfg.RefSpec{"refs/tags/*:refs/tags/*"},
	}))
	remote.commit(t, "later.txt", "after the tag")

	co := config.Checkout{Name: "openssl", URL: remote.bare, Ref: "OpenSSL_1_1_1c", Path: filepath.Join(t.TempDir(), "openssl")}
	s := NewStager(NewGoGitBackend(nil), testPolicy(0))

	_, err = s.Ensure(context.Background(), co)
	require.NoError(t, err)
	assert.Equal(t, tagged, headOf(t, co.Path))

	outcome, err := s.Ensure(context.Background(), co)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSynced, outcome)
	assert.Equal(t, tagged, headOf(t, co.Path))
}

func TestAuthMethod(t *testing.T) {
	m, err := authMethod(nil)
	require.NoError(t, err)
	assert.Nil(t, m)

	m, err = authMethod(&config.AuthConfig{Type: config.AuthTypeToken, Token: "abc"})
	require.NoError(t, err)
	assert.NotNil(t, m)

	_, err = authMethod(&config.AuthConfig{Type: config.AuthTypeBasic, Username: "u"})
	assert.Error(t, err)

	_, err = authMethod(&config.AuthConfig{Type: config.AuthTypeSSH})
	assert.Error(t, err)
}
