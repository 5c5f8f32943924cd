// Package github keeps the user table as a file in a GitHub repository.
// Reads go through the contents API; writes either replace the file through
// the contents API or build a blob, tree and commit through the git data API
// and fast-forward the branch to it. Both write paths are conditional on the
// blob SHA the caller read, which serves as the table revision.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/dtroode/sheetkeeper/internal/logger"
	"github.com/dtroode/sheetkeeper/internal/model"
)

const (
	mediaTypeGitHubJSON = "application/vnd.github+json"
	apiVersionHeader    = "X-GitHub-Api-Version"
	apiVersion          = "2022-11-28"
	userAgent           = "sheetkeeper"
)

// WriteMode selects how a new table revision is published.
type WriteMode string

const (
	// WriteModeContents replaces the file with a single contents API call.
	WriteModeContents WriteMode = "contents"
	// WriteModeGitData creates blob, tree and commit objects and moves the branch.
	WriteModeGitData WriteMode = "gitdata"
)

// Options configure a Client.
type Options struct {
	APIURL        string
	Owner         string
	Repo          string
	Branch        string
	Path          string
	Token         string
	Mode          WriteMode
	CommitMessage string
	Timeout       time.Duration
}

var _ model.BlobStore = (*Client)(nil)

// Client reads and writes one file of one branch.
type Client struct {
	http          *http.Client
	baseURL       string
	owner         string
	repo          string
	branch        string
	path          string
	mode          WriteMode
	commitMessage string
	readOnly      bool
	logger        *logger.Logger
}

// NewClient creates a Client. When a token is set every request carries it as
// a bearer credential; without one only public repositories can be read.
func NewClient(ctx context.Context, opts Options, logger *logger.Logger) *Client {
	httpClient := &http.Client{}
	if opts.Token != "" {
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token}))
	}
	httpClient.Timeout = opts.Timeout

	mode := opts.Mode
	if mode == "" {
		mode = WriteModeContents
	}

	return &Client{
		http:          httpClient,
		baseURL:       strings.TrimRight(opts.APIURL, "/"),
		owner:         opts.Owner,
		repo:          opts.Repo,
		branch:        opts.Branch,
		path:          strings.Trim(opts.Path, "/"),
		mode:          mode,
		commitMessage: opts.CommitMessage,
		readOnly:      opts.Token == "",
		logger:        logger,
	}
}

// Get downloads the file at the head of the branch.
func (c *Client) Get(ctx context.Context) (model.Blob, error) {
	content, err := c.getContent(ctx, c.branch)
	if model.StatusCode(err) == http.StatusNotFound {
		return model.Blob{}, fmt.Errorf("%s@%s: %w", c.path, c.branch, model.ErrNotFound)
	}
	if err != nil {
		return model.Blob{}, err
	}

	data, err := c.decodeContent(ctx, content)
	if err != nil {
		return model.Blob{}, err
	}

	return model.Blob{Data: data, Revision: content.SHA}, nil
}

// Put publishes data as the new file content if the file is still at baseRevision.
func (c *Client) Put(ctx context.Context, data []byte, baseRevision string) (string, error) {
	if c.readOnly {
		return "", fmt.Errorf("%w: no GitHub token configured", model.ErrReadOnly)
	}

	switch c.mode {
	case WriteModeGitData:
		return c.putGitData(ctx, data, baseRevision)
	default:
		return c.putContents(ctx, data, baseRevision)
	}
}

func (c *Client) repoPath(format string, args ...any) string {
	return fmt.Sprintf("/repos/%s/%s/", url.PathEscape(c.owner), url.PathEscape(c.repo)) + fmt.Sprintf(format, args...)
}

func (c *Client) contentsPath() string {
	return c.repoPath("contents/%s", escapePath(c.path))
}

func (c *Client) do(ctx context.Context, op, method, endpoint string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", op, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", op, err)
	}
	req.Header.Set("Accept", mediaTypeGitHubJSON)
	req.Header.Set(apiVersionHeader, apiVersion)
	req.Header.Set("User-Agent", userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		return &model.TransportError{Op: op, Err: err}
	}
	defer res.Body.Close()

	c.logger.Debug("GitHub client: request completed",
		"op", op,
		"method", method,
		"status", res.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return &model.TransportError{Op: op, StatusCode: res.StatusCode, Err: parseResponseError(res)}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return &model.TransportError{Op: op, StatusCode: res.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	return nil
}

// apiError is the error body GitHub returns with non-2xx responses.
type apiError struct {
	Message          string `json:"message"`
	DocumentationURL string `json:"documentation_url"`
}

func parseResponseError(res *http.Response) error {
	payload, err := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	if err != nil || len(payload) == 0 {
		return errors.New(res.Status)
	}

	var e apiError
	if err := json.Unmarshal(payload, &e); err != nil || e.Message == "" {
		return errors.New(strings.TrimSpace(string(payload)))
	}

	return errors.New(e.Message)
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
