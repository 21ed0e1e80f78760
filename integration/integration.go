// Package integration exercises the cluster coordinator and archive
// writer against real Consul and MinIO containers, the same
// testcontainers-go modules the teacher uses to run its log server
// against real backing services rather than mocks.
package integration

import (
	"context"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/testcontainers/testcontainers-go"
	tcConsul "github.com/testcontainers/testcontainers-go/modules/consul"
	"github.com/testcontainers/testcontainers-go/modules/minio"
)

func consulSetup(ctx context.Context) (string, func()) {
	consulContainer, err := tcConsul.RunContainer(ctx,
		testcontainers.WithImage("docker.io/hashicorp/consul:1.15"),
	)
	if err != nil {
		log.Fatalf("failed to start container: %s", err)
	}

	consulEndpoint, err := consulContainer.ApiEndpoint(ctx)
	if err != nil {
		log.Fatalf("failed to get consul endpoint: %s", err)
	}

	return consulEndpoint, func() {
		if err := consulContainer.Terminate(ctx); err != nil {
			log.Fatalf("failed to terminate container: %s", err)
		}
	}
}

func minioSetup(ctx context.Context) (endpoint, username, password, bucket, region string, cleanup func()) {
	minioContainer, err := minio.RunContainer(ctx, testcontainers.WithImage("minio/minio:RELEASE.2024-01-16T16-07-38Z"))
	if err != nil {
		log.Fatalf("failed to start container: %s", err)
	}

	endpoint, err = minioContainer.ConnectionString(ctx)
	if err != nil {
		log.Fatalf("failed to get connection string: %s", err)
	}
	endpoint = "http://" + endpoint
	username, password = minioContainer.Username, minioContainer.Password

	bucket = "ctingest-archive"
	region = "us-east-1"

	s3Config := aws.Config{
		Credentials:  credentials.NewStaticCredentialsProvider(username, password, ""),
		BaseEndpoint: aws.String(endpoint),
		Region:       region,
	}
	client := s3.NewFromConfig(s3Config, func(o *s3.Options) { o.UsePathStyle = true })
	if _, err := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)}); err != nil {
		log.Fatalf("failed to create bucket: %s", err)
	}

	return endpoint, username, password, bucket, region, func() {
		if err := minioContainer.Terminate(ctx); err != nil {
			log.Fatalf("failed to terminate container: %s", err)
		}
	}
}
