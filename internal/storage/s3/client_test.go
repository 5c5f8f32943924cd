package s3

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/sheetkeeper/internal/model"
	"github.com/dtroode/sheetkeeper/internal/repository/table"
	"github.com/dtroode/sheetkeeper/internal/service"
	"github.com/dtroode/sheetkeeper/internal/sheet"
	"github.com/dtroode/sheetkeeper/internal/testutil"
)

func apiError(status int, code string) error {
	return &awshttp.ResponseError{
		ResponseError: &smithyhttp.ResponseError{
			Response: &smithyhttp.Response{Response: &http.Response{StatusCode: status}},
			Err:      &smithy.GenericAPIError{Code: code, Message: code},
		},
	}
}

// fakeS3 honours If-Match and If-None-Match the way S3 does.
type fakeS3 struct {
	mu sync.Mutex

	headErr   error
	createErr error
	created   bool

	objects     map[string][]byte
	contentType string
	getErr      error
	putErr      error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}}
}

func etagOf(data []byte) string {
	sum := md5.Sum(data)
	return `"` + hex.EncodeToString(sum[:]) + `"`
}

func (f *fakeS3) HeadBucket(_ context.Context, _ *awss3.HeadBucketInput, _ ...func(*awss3.Options)) (*awss3.HeadBucketOutput, error) {
	return &awss3.HeadBucketOutput{}, f.headErr
}

func (f *fakeS3) CreateBucket(_ context.Context, _ *awss3.CreateBucketInput, _ ...func(*awss3.Options)) (*awss3.CreateBucketOutput, error) {
	f.created = f.createErr == nil
	return &awss3.CreateBucketOutput{}, f.createErr
}

func (f *fakeS3) GetObject(_ context.Context, in *awss3.GetObjectInput, _ ...func(*awss3.Options)) (*awss3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, apiError(http.StatusNotFound, "NoSuchKey")
	}
	return &awss3.GetObjectOutput{
		Body: io.NopCloser(strings.NewReader(string(data))),
		ETag: aws.String(etagOf(data)),
	}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *awss3.PutObjectInput, _ ...func(*awss3.Options)) (*awss3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return nil, f.putErr
	}
	key := aws.ToString(in.Key)
	current, exists := f.objects[key]
	if aws.ToString(in.IfNoneMatch) == "*" && exists {
		return nil, apiError(http.StatusPreconditionFailed, "PreconditionFailed")
	}
	if match := aws.ToString(in.IfMatch); match != "" {
		if !exists {
			return nil, apiError(http.StatusNotFound, "NoSuchKey")
		}
		if match != etagOf(current) {
			return nil, apiError(http.StatusPreconditionFailed, "PreconditionFailed")
		}
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[key] = data
	f.contentType = aws.ToString(in.ContentType)
	return &awss3.PutObjectOutput{ETag: aws.String(etagOf(data))}, nil
}

func newTestClient(t *testing.T, api *fakeS3) *Client {
	t.Helper()
	c, err := NewClientWithAPI(context.Background(), api, "tables", "user_data.xlsx", testutil.MakeNoopLogger())
	require.NoError(t, err)
	return c
}

func TestNewClientWithAPI(t *testing.T) {
	ctx := context.Background()

	t.Run("bucket exists", func(t *testing.T) {
		api := newFakeS3()
		_, err := NewClientWithAPI(ctx, api, "tables", "o", testutil.MakeNoopLogger())
		require.NoError(t, err)
		assert.False(t, api.created)
	})

	t.Run("bucket created", func(t *testing.T) {
		api := newFakeS3()
		api.headErr = apiError(http.StatusNotFound, "NotFound")
		_, err := NewClientWithAPI(ctx, api, "tables", "o", testutil.MakeNoopLogger())
		require.NoError(t, err)
		assert.True(t, api.created)
	})

	t.Run("head fails", func(t *testing.T) {
		api := newFakeS3()
		api.headErr = apiError(http.StatusForbidden, "Forbidden")
		_, err := NewClientWithAPI(ctx, api, "tables", "o", testutil.MakeNoopLogger())
		assert.ErrorContains(t, err, "failed to check bucket existence")
	})

	t.Run("create fails", func(t *testing.T) {
		api := newFakeS3()
		api.headErr = apiError(http.StatusNotFound, "NotFound")
		api.createErr = errors.New("denied")
		_, err := NewClientWithAPI(ctx, api, "tables", "o", testutil.MakeNoopLogger())
		assert.ErrorContains(t, err, "failed to create bucket")
	})
}

func TestClient_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("missing object", func(t *testing.T) {
		_, err := newTestClient(t, newFakeS3()).Get(ctx)
		assert.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("existing object", func(t *testing.T) {
		api := newFakeS3()
		api.objects["user_data.xlsx"] = []byte("table")

		blob, err := newTestClient(t, api).Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, []byte("table"), blob.Data)
		assert.Equal(t, etagOf([]byte("table")), blob.Revision)
	})

	t.Run("transport error", func(t *testing.T) {
		api := newFakeS3()
		api.getErr = apiError(http.StatusInternalServerError, "InternalError")

		_, err := newTestClient(t, api).Get(ctx)
		var te *model.TransportError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, http.StatusInternalServerError, te.StatusCode)
	})
}

func TestClient_Put(t *testing.T) {
	ctx := context.Background()

	t.Run("create then update", func(t *testing.T) {
		api := newFakeS3()
		c := newTestClient(t, api)

		first, err := c.Put(ctx, []byte("v1"), "")
		require.NoError(t, err)
		assert.Equal(t, sheet.ContentType, api.contentType)

		second, err := c.Put(ctx, []byte("v2"), first)
		require.NoError(t, err)
		assert.NotEqual(t, first, second)
		assert.Equal(t, []byte("v2"), api.objects["user_data.xlsx"])
	})

	t.Run("create races an existing object", func(t *testing.T) {
		api := newFakeS3()
		api.objects["user_data.xlsx"] = []byte("other")

		_, err := newTestClient(t, api).Put(ctx, []byte("v1"), "")
		assert.ErrorIs(t, err, model.ErrRevisionConflict)
		assert.Equal(t, []byte("other"), api.objects["user_data.xlsx"])
	})

	t.Run("stale revision", func(t *testing.T) {
		api := newFakeS3()
		c := newTestClient(t, api)
		base, err := c.Put(ctx, []byte("v1"), "")
		require.NoError(t, err)
		_, err = c.Put(ctx, []byte("v2"), base)
		require.NoError(t, err)

		_, err = c.Put(ctx, []byte("v3"), base)
		assert.ErrorIs(t, err, model.ErrRevisionConflict)
		assert.Equal(t, []byte("v2"), api.objects["user_data.xlsx"])
	})

	t.Run("object removed", func(t *testing.T) {
		_, err := newTestClient(t, newFakeS3()).Put(ctx, []byte("v1"), `"abc"`)
		assert.ErrorIs(t, err, model.ErrRevisionConflict)
	})

	t.Run("transport error", func(t *testing.T) {
		api := newFakeS3()
		api.putErr = apiError(http.StatusServiceUnavailable, "SlowDown")

		_, err := newTestClient(t, api).Put(ctx, []byte("v1"), "")
		var te *model.TransportError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, "put object", te.Op)
		assert.Equal(t, http.StatusServiceUnavailable, te.StatusCode)
	})
}

func TestConcurrentRegistrationsSurvive(t *testing.T) {
	ctx := context.Background()
	repo := table.NewRepository(newTestClient(t, newFakeS3()), sheet.NewCodec(""), false, testutil.MakeNoopLogger())
	users := service.NewUsers(repo, service.RetryPolicy{
		MaxAttempts:     20,
		InitialInterval: time.Millisecond,
		MaxElapsed:      5 * time.Second,
	}, testutil.MakeNoopLogger())

	names := []string{"alice", "bob", "carol", "dave"}
	var wg sync.WaitGroup
	errs := make([]error, len(names))
	for i, name := range names {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = users.Register(ctx, model.UserRecord{Username: name, Password: "p-" + name})
		}()
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, names[i])
	}
	for _, name := range names {
		rec, err := users.Authenticate(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, "p-"+name, rec.Password)
	}
}
