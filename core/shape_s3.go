package core

import (
	"context"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dosco/pipejin/core/internal/qerr"
	"github.com/dosco/pipejin/core/internal/sdata"
)

// S3Client is the part of the S3 API the shape provider needs. *s3.Client
// satisfies it.
type S3Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3ShapeProvider reads the shape from an S3 object.
type S3ShapeProvider struct {
	client S3Client
	bucket string
	key    string
}

func NewS3ShapeProvider(client S3Client, bucket, key string) *S3ShapeProvider {
	return &S3ShapeProvider{client: client, bucket: bucket, key: key}
}

func (p *S3ShapeProvider) LoadShape(ctx context.Context) (*Shape, error) {
	out, err := p.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(p.key),
	})
	if err != nil {
		return nil, qerr.Shape(p.String(), "%s", err)
	}
	defer func() { _ = out.Body.Close() }()

	b, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, qerr.Shape(p.String(), "%s", err)
	}
	return sdata.Parse(b)
}

func (p *S3ShapeProvider) String() string {
	return "s3://" + p.bucket + "/" + p.key
}

// ParseS3URI splits an s3://bucket/key location.
func ParseS3URI(uri string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(uri, "s3://")
	if !found {
		return "", "", false
	}
	bucket, key, found = strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}
