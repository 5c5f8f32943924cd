package github

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/dtroode/sheetkeeper/internal/model"
)

type contentResponse struct {
	Type     string `json:"type"`
	Encoding string `json:"encoding"`
	Size     int64  `json:"size"`
	SHA      string `json:"sha"`
	Content  string `json:"content"`
}

type blobResponse struct {
	SHA      string `json:"sha"`
	Encoding string `json:"encoding"`
	Content  string `json:"content"`
}

type putContentRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch,omitempty"`
	SHA     string `json:"sha,omitempty"`
}

type putContentResponse struct {
	Content struct {
		SHA string `json:"sha"`
	} `json:"content"`
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

func (c *Client) getContent(ctx context.Context, ref string) (contentResponse, error) {
	var content contentResponse
	endpoint := c.contentsPath() + "?ref=" + url.QueryEscape(ref)
	if err := c.do(ctx, "get contents", http.MethodGet, endpoint, nil, &content); err != nil {
		return contentResponse{}, err
	}
	if content.Type != "" && content.Type != "file" {
		return contentResponse{}, fmt.Errorf("%w: %s is a %s, not a file", model.ErrMalformedTable, c.path, content.Type)
	}
	return content, nil
}

// decodeContent returns the file bytes. Files above the contents API inline
// limit come back without content and are fetched as a git blob instead.
func (c *Client) decodeContent(ctx context.Context, content contentResponse) ([]byte, error) {
	if content.Encoding == "base64" || (content.Content != "" && content.Encoding == "") {
		return decodeBase64("get contents", content.Content)
	}
	if content.Size == 0 {
		return nil, nil
	}

	var blob blobResponse
	if err := c.do(ctx, "get blob", http.MethodGet, c.repoPath("git/blobs/%s", content.SHA), nil, &blob); err != nil {
		return nil, err
	}
	if blob.Encoding != "base64" {
		return nil, &model.TransportError{Op: "get blob", Err: fmt.Errorf("unsupported blob encoding %q", blob.Encoding)}
	}

	return decodeBase64("get blob", blob.Content)
}

func (c *Client) putContents(ctx context.Context, data []byte, baseRevision string) (string, error) {
	req := putContentRequest{
		Message: c.commitMessage,
		Content: base64.StdEncoding.EncodeToString(data),
		Branch:  c.branch,
		SHA:     baseRevision,
	}

	var res putContentResponse
	err := c.do(ctx, "put contents", http.MethodPut, c.contentsPath(), req, &res)
	switch status := model.StatusCode(err); {
	case status == http.StatusConflict:
		return "", fmt.Errorf("%w: %v", model.ErrRevisionConflict, err)
	case status == http.StatusUnprocessableEntity && baseRevision == "":
		// The file appeared after we read it as missing, so GitHub wants its sha.
		return "", fmt.Errorf("%w: %v", model.ErrRevisionConflict, err)
	case err != nil:
		return "", err
	}

	c.logger.Info("GitHub client: table file updated",
		"path", c.path,
		"branch", c.branch,
		"blob_sha", res.Content.SHA,
		"commit_sha", res.Commit.SHA)

	return res.Content.SHA, nil
}

func decodeBase64(op, s string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(s, "\n", ""))
	if err != nil {
		return nil, &model.TransportError{Op: op, Err: fmt.Errorf("failed to decode base64 content: %w", err)}
	}
	return data, nil
}
