package deliver

import (
	"context"
	"testing"

	assert_ "github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/amz.v1/aws"
	"gopkg.in/amz.v1/s3"
	"gopkg.in/amz.v1/s3/s3test"

	"github.com/alanbriolat/video-relay/pipeline"
)

func createS3Bucket(t *testing.T, name string, create bool) (*s3test.Server, *s3.Bucket) {
	s3Server, err := s3test.NewServer(&s3test.Config{Send409Conflict: true})
	require.NoError(t, err)
	t.Cleanup(s3Server.Quit)

	s3Client := s3.New(aws.Auth{AccessKey: "abc", SecretKey: "123"}, aws.Region{
		Name:                 "fake-relay-test-region",
		S3Endpoint:           s3Server.URL(),
		S3LocationConstraint: true,
		Sign:                 aws.SignV2,
	})
	bucket := s3Client.Bucket(name)
	if create {
		require.NoError(t, bucket.PutBucket(s3.Private))
	}
	return s3Server, bucket
}

func TestS3Deliver(t *testing.T) {
	assert := assert_.New(t)
	_, bucket := createS3Bucket(t, "relay-bucket", true)
	d := NewS3WithBucket(bucket, "incoming", 0)

	artifact := pipeline.Artifact{Path: writeFile(t, "clip_resized.mp4", 2048), Media: pipeline.Video}
	assert.Equal("incoming/clip_resized.mp4", d.Key(artifact))
	if assert.NoError(d.Deliver(context.Background(), artifact)) {
		data, err := bucket.Get("incoming/clip_resized.mp4")
		assert.NoError(err)
		assert.Len(data, 2048)
	}
}

func TestS3MaxObjectSize(t *testing.T) {
	assert := assert_.New(t)
	_, bucket := createS3Bucket(t, "relay-bucket", true)
	d := NewS3WithBucket(bucket, "", 1000)

	err := d.Deliver(context.Background(), pipeline.Artifact{Path: writeFile(t, "big.m4a", 1001), Media: pipeline.Audio})
	assert.ErrorIs(err, pipeline.ErrChannelRejected)
	_, err = bucket.Get("big.m4a")
	assert.Error(err)

	err = d.Deliver(context.Background(), pipeline.Artifact{Path: writeFile(t, "small.m4a", 1000), Media: pipeline.Audio})
	assert.NoError(err)
}

func TestS3MissingBucketRejected(t *testing.T) {
	_, bucket := createS3Bucket(t, "no-such-bucket", false)
	d := NewS3WithBucket(bucket, "", 0)
	err := d.Deliver(context.Background(), pipeline.Artifact{Path: writeFile(t, "clip.mp4", 10), Media: pipeline.Video})
	assert_.ErrorIs(t, err, pipeline.ErrChannelRejected)
}

func TestS3TransportFailure(t *testing.T) {
	assert := assert_.New(t)
	s3Server, bucket := createS3Bucket(t, "relay-bucket", true)
	d := NewS3WithBucket(bucket, "", 0)
	s3Server.Quit()

	err := d.Deliver(context.Background(), pipeline.Artifact{Path: writeFile(t, "clip.mp4", 10), Media: pipeline.Video})
	assert.ErrorIs(err, pipeline.ErrTransportFailure)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = d.Deliver(ctx, pipeline.Artifact{Path: writeFile(t, "clip.mp4", 10), Media: pipeline.Video})
	assert.ErrorIs(err, pipeline.ErrTransportFailure)
}

func TestS3Config(t *testing.T) {
	assert := assert_.New(t)
	assert.Error(S3Config{Region: "us-east-1"}.Validate())
	assert.Error(S3Config{Region: "nowhere-1", Bucket: "b"}.Validate())
	assert.NoError(S3Config{Region: "us-east-1", Bucket: "b"}.Validate())
	assert.NoError(S3Config{Region: "custom", Endpoint: "http://localhost:9000", Bucket: "b"}.Validate())
	assert.Error(S3Config{Region: "us-east-1", Bucket: "b", MaxObjectSize: -1}.Validate())

	d, err := NewS3(S3Config{Region: "custom", Endpoint: "http://localhost:9000", Bucket: "b", Prefix: "p"})
	if assert.NoError(err) {
		assert.Equal("p/x.mp4", d.Key(pipeline.Artifact{Path: "/tmp/x.mp4"}))
	}
}
