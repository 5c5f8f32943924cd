package github

import (
	"bytes"
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/sheetkeeper/internal/model"
	"github.com/dtroode/sheetkeeper/internal/testutil"
)

const tablePath = "data/user_data.xlsx"

func newTestClient(t *testing.T, baseURL string, mode WriteMode) *Client {
	t.Helper()
	return NewClient(context.Background(), Options{
		APIURL:        baseURL,
		Owner:         "octo",
		Repo:          "sheets",
		Branch:        "main",
		Path:          tablePath,
		Token:         "secret-token",
		Mode:          mode,
		CommitMessage: "Update user_data.xlsx",
	}, testutil.MakeNoopLogger())
}

func TestClient_Get_NotFound(t *testing.T) {
	_, srv := newFakeGitHub(t)
	c := newTestClient(t, srv.URL, WriteModeContents)

	_, err := c.Get(context.Background())
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestClient_Get_ExistingFile(t *testing.T) {
	fake, srv := newFakeGitHub(t)
	blob, _ := fake.commitFile(tablePath, bytes.Repeat([]byte("xlsx"), 100))
	c := newTestClient(t, srv.URL, WriteModeContents)

	got, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte("xlsx"), 100), got.Data)
	assert.Equal(t, blob, got.Revision)
	assert.Equal(t, []string{"Bearer secret-token"}, fake.authHeaders)
}

func TestClient_Get_LargeFileFallsBackToBlob(t *testing.T) {
	fake, srv := newFakeGitHub(t)
	fake.inlineLimit = 8
	data := []byte("larger than the inline limit")
	blob, _ := fake.commitFile(tablePath, data)
	c := newTestClient(t, srv.URL, WriteModeContents)

	got, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, data, got.Data)
	assert.Equal(t, blob, got.Revision)
	assert.Equal(t, []string{"get contents", "get blob"}, fake.calls)
}

func TestClient_Get_EmptyFile(t *testing.T) {
	fake, srv := newFakeGitHub(t)
	blob, _ := fake.commitFile(tablePath, nil)
	c := newTestClient(t, srv.URL, WriteModeContents)

	got, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got.Data)
	assert.Equal(t, blob, got.Revision)
}

func TestClient_Get_TransportError(t *testing.T) {
	_, srv := newFakeGitHub(t)
	c := newTestClient(t, srv.URL, WriteModeContents)
	srv.Close()

	_, err := c.Get(context.Background())
	var te *model.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "get contents", te.Op)
	assert.Equal(t, 0, te.StatusCode)
}

func TestClient_Get_ServerError(t *testing.T) {
	fake, srv := newFakeGitHub(t)
	fake.failOp = "get contents"
	fake.failStatus = http.StatusBadGateway
	c := newTestClient(t, srv.URL, WriteModeContents)

	_, err := c.Get(context.Background())
	require.Error(t, err)
	assert.Equal(t, http.StatusBadGateway, model.StatusCode(err))
	assert.Contains(t, err.Error(), "injected failure")
}

func TestClient_Unauthenticated(t *testing.T) {
	fake, srv := newFakeGitHub(t)
	fake.commitFile(tablePath, []byte("data"))
	c := NewClient(context.Background(), Options{
		APIURL: srv.URL, Owner: "octo", Repo: "sheets", Branch: "main", Path: tablePath,
	}, testutil.MakeNoopLogger())

	got, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{""}, fake.authHeaders)

	for _, mode := range []WriteMode{WriteModeContents, WriteModeGitData} {
		c.mode = mode
		_, err = c.Put(context.Background(), []byte("new"), got.Revision)
		assert.ErrorIs(t, err, model.ErrReadOnly, string(mode))
	}
	assert.Equal(t, []string{"get contents"}, fake.calls)
}

func TestClient_PutContents(t *testing.T) {
	ctx := context.Background()
	fake, srv := newFakeGitHub(t)
	c := newTestClient(t, srv.URL, WriteModeContents)

	rev1, err := c.Put(ctx, []byte("v1"), "")
	require.NoError(t, err)
	assert.Equal(t, blobSHA([]byte("v1")), rev1)

	got, err := c.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.Blob{Data: []byte("v1"), Revision: rev1}, got)

	t.Run("create over existing file conflicts", func(t *testing.T) {
		_, err := c.Put(ctx, []byte("other"), "")
		assert.ErrorIs(t, err, model.ErrRevisionConflict)
	})

	rev2, err := c.Put(ctx, []byte("v2"), rev1)
	require.NoError(t, err)

	t.Run("stale revision conflicts", func(t *testing.T) {
		_, err := c.Put(ctx, []byte("v3"), rev1)
		assert.ErrorIs(t, err, model.ErrRevisionConflict)
	})

	got, err = c.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.Blob{Data: []byte("v2"), Revision: rev2}, got)

	for _, h := range fake.authHeaders {
		assert.Equal(t, "Bearer secret-token", h)
	}
}

func TestClient_PutGitData(t *testing.T) {
	ctx := context.Background()
	fake, srv := newFakeGitHub(t)
	fake.commitFile("README.md", []byte("readme"))
	c := newTestClient(t, srv.URL, WriteModeGitData)

	startHead := fake.head
	rev1, err := c.Put(ctx, []byte("v1"), "")
	require.NoError(t, err)
	assert.Equal(t, blobSHA([]byte("v1")), rev1)
	assert.Equal(t, startHead, fake.commits[fake.head].parent)

	readme, ok := fake.fileAt(fake.head, "README.md")
	require.True(t, ok, "base tree entries are kept")
	assert.Equal(t, blobSHA([]byte("readme")), readme)

	got, err := c.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.Blob{Data: []byte("v1"), Revision: rev1}, got)

	rev2, err := c.Put(ctx, []byte("v2"), rev1)
	require.NoError(t, err)

	_, err = c.Put(ctx, []byte("stale"), rev1)
	assert.ErrorIs(t, err, model.ErrRevisionConflict)

	got, err = c.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.Blob{Data: []byte("v2"), Revision: rev2}, got)
}

func TestClient_PutGitData_BranchMovedBeforeRefUpdate(t *testing.T) {
	ctx := context.Background()
	fake, srv := newFakeGitHub(t)
	c := newTestClient(t, srv.URL, WriteModeGitData)

	fake.beforeUpdateRef = func(f *fakeGitHub) {
		f.beforeUpdateRef = nil
		f.commitFile("other.txt", []byte("concurrent"))
	}

	_, err := c.Put(ctx, []byte("v1"), "")
	assert.ErrorIs(t, err, model.ErrRevisionConflict)

	_, exists := fake.fileAt(fake.head, tablePath)
	assert.False(t, exists, "branch keeps the concurrent commit, not ours")
}

func TestClient_PutGitData_PartialFailureLeavesHead(t *testing.T) {
	ctx := context.Background()
	fake, srv := newFakeGitHub(t)
	c := newTestClient(t, srv.URL, WriteModeGitData)

	for _, op := range []string{"create blob", "create tree", "create commit", "update ref"} {
		t.Run(op, func(t *testing.T) {
			head := fake.head
			fake.failOp = op
			fake.failStatus = http.StatusInternalServerError

			_, err := c.Put(ctx, []byte("v1"), "")
			require.Error(t, err)
			assert.NotErrorIs(t, err, model.ErrRevisionConflict)
			assert.Equal(t, http.StatusInternalServerError, model.StatusCode(err))
			assert.Equal(t, head, fake.head)
		})
	}
}

func TestClient_PutGitData_FileRemovedConflicts(t *testing.T) {
	ctx := context.Background()
	_, srv := newFakeGitHub(t)
	c := newTestClient(t, srv.URL, WriteModeGitData)

	_, err := c.Put(ctx, []byte("v1"), "deadbeef")
	assert.ErrorIs(t, err, model.ErrRevisionConflict)
}
