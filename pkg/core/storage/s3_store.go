package storage

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/lrmpt/lrmpt/pkg/core/storage/dbconfig"
	"go.uber.org/zap"
)

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	DeleteObjectWithContext(ctx aws.Context, input *s3.DeleteObjectInput, opts ...request.Option) (*s3.DeleteObjectOutput, error)
	GetObjectWithContext(ctx aws.Context, input *s3.GetObjectInput, opts ...request.Option) (*s3.GetObjectOutput, error)
	PutObjectWithContext(ctx aws.Context, input *s3.PutObjectInput, opts ...request.Option) (*s3.PutObjectOutput, error)
	ListObjectsV2PagesWithContext(ctx aws.Context, input *s3.ListObjectsV2Input, fn func(*s3.ListObjectsV2Output, bool) bool, opts ...request.Option) error
}

// S3Store keeps every entry as an object named by the configured prefix
// followed by the hex-encoded key. Lowercase hex keeps object listing order
// equal to the byte order of keys. PutChangeSet is not atomic.
type S3Store struct {
	s3     S3API
	bucket string
	prefix string
	log    *zap.Logger
}

// NewS3Store creates an S3-backed store using the standard AWS credential
// chain.
func NewS3Store(cfg dbconfig.S3Options, log *zap.Logger) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("S3 bucket is not specified")
	}
	awsCfg := &aws.Config{
		S3ForcePathStyle: aws.Bool(cfg.ForcePathStyle),
		DisableSSL:       aws.Bool(cfg.DisableSSL),
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
	}
	if cfg.Region != "" {
		awsCfg.Region = aws.String(cfg.Region)
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 session: %w", err)
	}
	return NewS3StoreWithClient(s3.New(sess), cfg.Bucket, cfg.Prefix, log), nil
}

// NewS3StoreWithClient creates an S3Store using the given client. The
// logger is used to report Seek failures, nil disables logging.
func NewS3StoreWithClient(client S3API, bucket, prefix string, log *zap.Logger) *S3Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &S3Store{s3: client, bucket: bucket, prefix: prefix, log: log}
}

func (s *S3Store) objectName(key []byte) string {
	return s.prefix + hex.EncodeToString(key)
}

// Get implements the Store interface.
func (s *S3Store) Get(key []byte) ([]byte, error) {
	out, err := s.s3.GetObjectWithContext(context.Background(), &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    aws.String(s.objectName(key)),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && aerr.Code() == s3.ErrCodeNoSuchKey {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

// Put implements the Store interface.
func (s *S3Store) Put(key, value []byte) error {
	_, err := s.s3.PutObjectWithContext(context.Background(), &s3.PutObjectInput{
		Bucket: &s.bucket,
		Key:    aws.String(s.objectName(key)),
		Body:   bytes.NewReader(value),
	})
	return err
}

func (s *S3Store) delete(key []byte) error {
	_, err := s.s3.DeleteObjectWithContext(context.Background(), &s3.DeleteObjectInput{
		Bucket: &s.bucket,
		Key:    aws.String(s.objectName(key)),
	})
	return err
}

// PutChangeSet implements the Store interface. Objects are written in key
// order and the first failure stops the rest of the set.
func (s *S3Store) PutChangeSet(puts map[string][]byte) error {
	keys := make([]string, 0, len(puts))
	for k := range puts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		var err error
		if puts[k] != nil {
			err = s.Put([]byte(k), puts[k])
		} else {
			err = s.delete([]byte(k))
		}
		if err != nil {
			return fmt.Errorf("failed to apply %x: %w", k, err)
		}
	}
	return nil
}

// Seek implements the Store interface. Matching keys are listed first and
// values are fetched one by one. Seek can't return an error, so a failed
// listing or fetch is logged and truncates the iteration.
func (s *S3Store) Seek(rng SeekRange, f func(k, v []byte) bool) {
	var keys [][]byte
	listPrefix := s.objectName(rng.Prefix)
	err := s.s3.ListObjectsV2PagesWithContext(context.Background(), &s3.ListObjectsV2Input{
		Bucket: &s.bucket,
		Prefix: aws.String(listPrefix),
	}, func(page *s3.ListObjectsV2Output, _ bool) bool {
		for _, obj := range page.Contents {
			k, err := hex.DecodeString(strings.TrimPrefix(aws.StringValue(obj.Key), s.prefix))
			if err != nil {
				continue
			}
			keys = append(keys, k)
		}
		return true
	})
	if err != nil {
		s.log.Error("failed to list objects, seek is truncated",
			zap.String("prefix", listPrefix), zap.Error(err))
		return
	}
	lp := len(rng.Prefix)
	matches := keys[:0]
	for _, k := range keys {
		if len(rng.Start) != 0 {
			c := bytes.Compare(k[lp:], rng.Start)
			if (!rng.Backwards && c < 0) || (rng.Backwards && c > 0) {
				continue
			}
		}
		matches = append(matches, k)
	}
	sort.Slice(matches, func(i, j int) bool {
		c := bytes.Compare(matches[i], matches[j])
		if rng.Backwards {
			return c > 0
		}
		return c < 0
	})
	for _, k := range matches {
		v, err := s.Get(k)
		if err != nil {
			s.log.Error("failed to get object, seek is truncated",
				zap.String("key", hex.EncodeToString(k)), zap.Error(err))
			return
		}
		if !f(k, v) {
			return
		}
	}
}

// Close implements the Store interface. Never returns an error.
func (s *S3Store) Close() error {
	return nil
}
