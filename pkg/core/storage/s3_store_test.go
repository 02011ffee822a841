package storage

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newS3ClientForTesting(t testing.TB, bucket string) *s3.S3 {
	backend := s3mem.New()
	faker := gofakes3.New(backend)
	ts := httptest.NewServer(faker.Server())
	t.Cleanup(ts.Close)

	sess, err := session.NewSession(&aws.Config{
		Credentials: credentials.NewStaticCredentials(
			"TEST-ACCESSKEYID",
			"TEST-SECRETACCESSKEY",
			"",
		),
		Endpoint:         aws.String(ts.URL),
		Region:           aws.String("ca-west-1"),
		DisableSSL:       aws.Bool(true),
		S3ForcePathStyle: aws.Bool(true),
	})
	require.NoError(t, err)
	client := s3.New(sess)
	_, err = client.CreateBucket(&s3.CreateBucketInput{Bucket: aws.String(bucket)})
	require.NoError(t, err)
	return client
}

func newS3StoreForTesting(t testing.TB) Store {
	return NewS3StoreWithClient(newS3ClientForTesting(t, "nodes"), "nodes", "trie/", nil)
}

func TestS3Store_Prefix(t *testing.T) {
	client := newS3ClientForTesting(t, "shared")
	a := NewS3StoreWithClient(client, "shared", "a/", nil)
	b := NewS3StoreWithClient(client, "shared", "b/", nil)

	require.NoError(t, a.Put([]byte{0xab}, []byte("from a")))
	_, err := b.Get([]byte{0xab})
	require.ErrorIs(t, err, ErrKeyNotFound)

	out, err := client.GetObject(&s3.GetObjectInput{
		Bucket: aws.String("shared"),
		Key:    aws.String("a/ab"),
	})
	require.NoError(t, err)
	require.NoError(t, out.Body.Close())
}

// brokenS3 fails listing or fetching objects.
type brokenS3 struct {
	S3API
	failList bool
}

func (c brokenS3) ListObjectsV2PagesWithContext(ctx aws.Context, in *s3.ListObjectsV2Input, fn func(*s3.ListObjectsV2Output, bool) bool, opts ...request.Option) error {
	if c.failList {
		return errors.New("list failed")
	}
	return c.S3API.ListObjectsV2PagesWithContext(ctx, in, fn, opts...)
}

func (c brokenS3) GetObjectWithContext(aws.Context, *s3.GetObjectInput, ...request.Option) (*s3.GetObjectOutput, error) {
	return nil, errors.New("get failed")
}

func TestS3Store_SeekErrors(t *testing.T) {
	client := newS3ClientForTesting(t, "nodes")
	require.NoError(t, NewS3StoreWithClient(client, "nodes", "", nil).PutChangeSet(map[string][]byte{
		"\x01": {1},
		"\x02": {2},
	}))

	for name, tc := range map[string]struct {
		failList bool
		message  string
	}{
		"list": {true, "failed to list objects, seek is truncated"},
		"get":  {false, "failed to get object, seek is truncated"},
	} {
		t.Run(name, func(t *testing.T) {
			core, logs := observer.New(zapcore.ErrorLevel)
			s := NewS3StoreWithClient(brokenS3{S3API: client, failList: tc.failList}, "nodes", "", zap.New(core))

			var seen int
			s.Seek(SeekRange{}, func(_, _ []byte) bool {
				seen++
				return true
			})
			require.Equal(t, 0, seen)
			entries := logs.All()
			require.Len(t, entries, 1)
			require.Equal(t, tc.message, entries[0].Message)
			require.Contains(t, entries[0].ContextMap()["error"], "failed")
		})
	}
}
