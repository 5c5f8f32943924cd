package github

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/dtroode/sheetkeeper/internal/model"
)

const fileMode = "100644"

type refResponse struct {
	Object struct {
		SHA string `json:"sha"`
	} `json:"object"`
}

type commitResponse struct {
	SHA  string `json:"sha"`
	Tree struct {
		SHA string `json:"sha"`
	} `json:"tree"`
}

type shaResponse struct {
	SHA string `json:"sha"`
}

type createBlobRequest struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

type treeEntry struct {
	Path string `json:"path"`
	Mode string `json:"mode"`
	Type string `json:"type"`
	SHA  string `json:"sha"`
}

type createTreeRequest struct {
	BaseTree string      `json:"base_tree"`
	Tree     []treeEntry `json:"tree"`
}

type createCommitRequest struct {
	Message string   `json:"message"`
	Tree    string   `json:"tree"`
	Parents []string `json:"parents"`
}

type updateRefRequest struct {
	SHA   string `json:"sha"`
	Force bool   `json:"force"`
}

// putGitData publishes data as a new commit on the branch. The branch is only
// moved if it still points at the commit the new one was built on; if that
// last step fails the created blob, tree and commit stay unreferenced and the
// branch is unchanged.
func (c *Client) putGitData(ctx context.Context, data []byte, baseRevision string) (string, error) {
	var ref refResponse
	if err := c.do(ctx, "get ref", http.MethodGet, c.repoPath("git/ref/heads/%s", escapePath(c.branch)), nil, &ref); err != nil {
		return "", err
	}
	headSHA := ref.Object.SHA

	var head commitResponse
	if err := c.do(ctx, "get commit", http.MethodGet, c.repoPath("git/commits/%s", headSHA), nil, &head); err != nil {
		return "", err
	}

	current, err := c.getContent(ctx, headSHA)
	switch {
	case model.StatusCode(err) == http.StatusNotFound:
		if baseRevision != "" {
			return "", fmt.Errorf("%w: %s was removed at %s", model.ErrRevisionConflict, c.path, headSHA)
		}
	case err != nil:
		return "", err
	case current.SHA != baseRevision:
		return "", fmt.Errorf("%w: expected blob %q, branch has %q", model.ErrRevisionConflict, baseRevision, current.SHA)
	}

	var blob shaResponse
	err = c.do(ctx, "create blob", http.MethodPost, c.repoPath("git/blobs"), createBlobRequest{
		Content:  base64.StdEncoding.EncodeToString(data),
		Encoding: "base64",
	}, &blob)
	if err != nil {
		return "", err
	}

	var tree shaResponse
	err = c.do(ctx, "create tree", http.MethodPost, c.repoPath("git/trees"), createTreeRequest{
		BaseTree: head.Tree.SHA,
		Tree:     []treeEntry{{Path: c.path, Mode: fileMode, Type: "blob", SHA: blob.SHA}},
	}, &tree)
	if err != nil {
		return "", err
	}

	var commit shaResponse
	err = c.do(ctx, "create commit", http.MethodPost, c.repoPath("git/commits"), createCommitRequest{
		Message: c.commitMessage,
		Tree:    tree.SHA,
		Parents: []string{headSHA},
	}, &commit)
	if err != nil {
		return "", err
	}

	err = c.do(ctx, "update ref", http.MethodPatch, c.repoPath("git/refs/heads/%s", escapePath(c.branch)), updateRefRequest{
		SHA:   commit.SHA,
		Force: false,
	}, nil)
	if model.StatusCode(err) == http.StatusUnprocessableEntity {
		return "", fmt.Errorf("%w: branch %s moved past %s: %v", model.ErrRevisionConflict, c.branch, headSHA, err)
	}
	if err != nil {
		c.logger.Warn("GitHub client: branch not updated, new commit is orphaned",
			"commit_sha", commit.SHA,
			"error", err.Error())
		return "", err
	}

	c.logger.Info("GitHub client: table committed",
		"path", c.path,
		"branch", c.branch,
		"blob_sha", blob.SHA,
		"commit_sha", commit.SHA,
		"parent_sha", headSHA)

	return blob.SHA, nil
}
