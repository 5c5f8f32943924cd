package github

import (
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
)

type fakeCommit struct {
	tree   string
	parent string
}

// fakeGitHub serves the subset of the GitHub REST API the client uses,
// backed by an in-memory object store for a single branch.
type fakeGitHub struct {
	mu sync.Mutex

	branch      string
	blobs       map[string][]byte
	trees       map[string]map[string]string
	commits     map[string]fakeCommit
	head        string
	inlineLimit int
	seq         int

	authHeaders []string
	calls       []string

	// failOp makes the named operation answer with failStatus.
	failOp     string
	failStatus int
	// beforeUpdateRef runs right before a ref update is applied.
	beforeUpdateRef func(f *fakeGitHub)
}

func newFakeGitHub(t *testing.T) (*fakeGitHub, *httptest.Server) {
	t.Helper()

	f := &fakeGitHub{
		branch:      "main",
		blobs:       map[string][]byte{},
		trees:       map[string]map[string]string{},
		commits:     map[string]fakeCommit{},
		inlineLimit: 1 << 20,
	}
	root := f.putTree(map[string]string{})
	f.head = f.putCommit(root, "")

	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/octo/sheets/contents/{path...}", f.wrap("get contents", f.getContents))
	mux.HandleFunc("PUT /repos/octo/sheets/contents/{path...}", f.wrap("put contents", f.putContents))
	mux.HandleFunc("GET /repos/octo/sheets/git/blobs/{sha}", f.wrap("get blob", f.getBlob))
	mux.HandleFunc("GET /repos/octo/sheets/git/ref/heads/{branch...}", f.wrap("get ref", f.getRef))
	mux.HandleFunc("GET /repos/octo/sheets/git/commits/{sha}", f.wrap("get commit", f.getCommit))
	mux.HandleFunc("POST /repos/octo/sheets/git/blobs", f.wrap("create blob", f.createBlob))
	mux.HandleFunc("POST /repos/octo/sheets/git/trees", f.wrap("create tree", f.createTree))
	mux.HandleFunc("POST /repos/octo/sheets/git/commits", f.wrap("create commit", f.createCommit))
	mux.HandleFunc("PATCH /repos/octo/sheets/git/refs/heads/{branch...}", f.wrap("update ref", f.updateRef))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return f, srv
}

func (f *fakeGitHub) wrap(op string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		f.authHeaders = append(f.authHeaders, r.Header.Get("Authorization"))
		f.calls = append(f.calls, op)
		if f.failOp == op {
			writeFakeError(w, f.failStatus, "injected failure")
			return
		}
		h(w, r)
	}
}

func (f *fakeGitHub) nextSHA(kind string, parts ...string) string {
	f.seq++
	sum := sha1.Sum([]byte(fmt.Sprintf("%s %d %s", kind, f.seq, strings.Join(parts, "\x00"))))
	return hex.EncodeToString(sum[:])
}

func blobSHA(data []byte) string {
	sum := sha1.Sum(append([]byte(fmt.Sprintf("blob %d\x00", len(data))), data...))
	return hex.EncodeToString(sum[:])
}

func (f *fakeGitHub) putBlob(data []byte) string {
	sha := blobSHA(data)
	f.blobs[sha] = append([]byte(nil), data...)
	return sha
}

func (f *fakeGitHub) putTree(entries map[string]string) string {
	keys := make([]string, 0, len(entries))
	for k, v := range entries {
		keys = append(keys, k+"="+v)
	}
	sort.Strings(keys)
	sha := f.nextSHA("tree", keys...)
	f.trees[sha] = entries
	return sha
}

func (f *fakeGitHub) putCommit(tree, parent string) string {
	sha := f.nextSHA("commit", tree, parent)
	f.commits[sha] = fakeCommit{tree: tree, parent: parent}
	return sha
}

func (f *fakeGitHub) fileAt(commit, path string) (string, bool) {
	c, ok := f.commits[commit]
	if !ok {
		return "", false
	}
	sha, ok := f.trees[c.tree][path]
	return sha, ok
}

// commitFile writes data at path on top of the current head and moves the branch.
func (f *fakeGitHub) commitFile(path string, data []byte) (blob string, commit string) {
	blob = f.putBlob(data)
	entries := map[string]string{}
	for k, v := range f.trees[f.commits[f.head].tree] {
		entries[k] = v
	}
	entries[path] = blob
	commit = f.putCommit(f.putTree(entries), f.head)
	f.head = commit
	return blob, commit
}

func (f *fakeGitHub) getContents(w http.ResponseWriter, r *http.Request) {
	ref := r.URL.Query().Get("ref")
	if ref == "" || ref == f.branch {
		ref = f.head
	}
	sha, ok := f.fileAt(ref, r.PathValue("path"))
	if !ok {
		writeFakeError(w, http.StatusNotFound, "Not Found")
		return
	}

	data := f.blobs[sha]
	resp := map[string]any{"type": "file", "sha": sha, "size": len(data)}
	if len(data) > f.inlineLimit {
		resp["encoding"] = "none"
		resp["content"] = ""
	} else {
		resp["encoding"] = "base64"
		resp["content"] = wrapBase64(data)
	}
	writeFakeJSON(w, http.StatusOK, resp)
}

func (f *fakeGitHub) putContents(w http.ResponseWriter, r *http.Request) {
	var req putContentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFakeError(w, http.StatusBadRequest, "Problems parsing JSON")
		return
	}
	path := r.PathValue("path")
	current, exists := f.fileAt(f.head, path)
	switch {
	case exists && req.SHA == "":
		writeFakeError(w, http.StatusUnprocessableEntity, "Invalid request.\n\n\"sha\" wasn't supplied.")
		return
	case exists && req.SHA != current, !exists && req.SHA != "":
		writeFakeError(w, http.StatusConflict, fmt.Sprintf("%s does not match %s", path, req.SHA))
		return
	}

	data, err := base64.StdEncoding.DecodeString(req.Content)
	if err != nil {
		writeFakeError(w, http.StatusUnprocessableEntity, "content is not valid Base64")
		return
	}

	blob, commit := f.commitFile(path, data)
	status := http.StatusOK
	if !exists {
		status = http.StatusCreated
	}
	writeFakeJSON(w, status, map[string]any{
		"content": map[string]any{"sha": blob},
		"commit":  map[string]any{"sha": commit},
	})
}

func (f *fakeGitHub) getBlob(w http.ResponseWriter, r *http.Request) {
	data, ok := f.blobs[r.PathValue("sha")]
	if !ok {
		writeFakeError(w, http.StatusNotFound, "Not Found")
		return
	}
	writeFakeJSON(w, http.StatusOK, map[string]any{
		"sha":      r.PathValue("sha"),
		"encoding": "base64",
		"content":  wrapBase64(data),
	})
}

func (f *fakeGitHub) getRef(w http.ResponseWriter, r *http.Request) {
	if r.PathValue("branch") != f.branch {
		writeFakeError(w, http.StatusNotFound, "Not Found")
		return
	}
	writeFakeJSON(w, http.StatusOK, map[string]any{"object": map[string]any{"sha": f.head, "type": "commit"}})
}

func (f *fakeGitHub) getCommit(w http.ResponseWriter, r *http.Request) {
	c, ok := f.commits[r.PathValue("sha")]
	if !ok {
		writeFakeError(w, http.StatusNotFound, "Not Found")
		return
	}
	writeFakeJSON(w, http.StatusOK, map[string]any{"sha": r.PathValue("sha"), "tree": map[string]any{"sha": c.tree}})
}

func (f *fakeGitHub) createBlob(w http.ResponseWriter, r *http.Request) {
	var req createBlobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Encoding != "base64" {
		writeFakeError(w, http.StatusUnprocessableEntity, "bad blob")
		return
	}
	data, err := base64.StdEncoding.DecodeString(req.Content)
	if err != nil {
		writeFakeError(w, http.StatusUnprocessableEntity, "bad base64")
		return
	}
	writeFakeJSON(w, http.StatusCreated, map[string]any{"sha": f.putBlob(data)})
}

func (f *fakeGitHub) createTree(w http.ResponseWriter, r *http.Request) {
	var req createTreeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFakeError(w, http.StatusUnprocessableEntity, "bad tree")
		return
	}
	base, ok := f.trees[req.BaseTree]
	if !ok {
		writeFakeError(w, http.StatusUnprocessableEntity, "base_tree not found")
		return
	}
	entries := map[string]string{}
	for k, v := range base {
		entries[k] = v
	}
	for _, e := range req.Tree {
		if _, ok := f.blobs[e.SHA]; !ok || e.Mode != fileMode || e.Type != "blob" {
			writeFakeError(w, http.StatusUnprocessableEntity, "bad tree entry")
			return
		}
		entries[e.Path] = e.SHA
	}
	writeFakeJSON(w, http.StatusCreated, map[string]any{"sha": f.putTree(entries)})
}

func (f *fakeGitHub) createCommit(w http.ResponseWriter, r *http.Request) {
	var req createCommitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Parents) != 1 {
		writeFakeError(w, http.StatusUnprocessableEntity, "bad commit")
		return
	}
	if _, ok := f.trees[req.Tree]; !ok {
		writeFakeError(w, http.StatusUnprocessableEntity, "tree not found")
		return
	}
	writeFakeJSON(w, http.StatusCreated, map[string]any{"sha": f.putCommit(req.Tree, req.Parents[0])})
}

func (f *fakeGitHub) updateRef(w http.ResponseWriter, r *http.Request) {
	var req updateRefRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFakeError(w, http.StatusUnprocessableEntity, "bad ref update")
		return
	}
	if f.beforeUpdateRef != nil {
		f.beforeUpdateRef(f)
	}
	c, ok := f.commits[req.SHA]
	if !ok {
		writeFakeError(w, http.StatusUnprocessableEntity, "Object does not exist")
		return
	}
	if !req.Force && c.parent != f.head {
		writeFakeError(w, http.StatusUnprocessableEntity, "Update is not a fast forward")
		return
	}
	f.head = req.SHA
	writeFakeJSON(w, http.StatusOK, map[string]any{"object": map[string]any{"sha": f.head}})
}

func wrapBase64(data []byte) string {
	enc := base64.StdEncoding.EncodeToString(data)
	var b strings.Builder
	for len(enc) > 60 {
		b.WriteString(enc[:60])
		b.WriteByte('\n')
		enc = enc[60:]
	}
	b.WriteString(enc)
	b.WriteByte('\n')
	return b.String()
}

func writeFakeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeFakeError(w http.ResponseWriter, status int, message string) {
	writeFakeJSON(w, status, map[string]string{
		"message":           message,
		"documentation_url": "https://docs.github.com/rest",
	})
}
