package destinations

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/docrelay/docrelay/internal/core/domain"
	"github.com/docrelay/docrelay/internal/core/ports/driven"
)

// Destination settings recognised by the S3 adapter.
const (
	// SettingS3Bucket is the target bucket name.
	SettingS3Bucket = "bucket"

	// SettingS3Region is the bucket region.
	SettingS3Region = "region"

	// SettingS3Endpoint points at an S3-compatible endpoint (MinIO,
	// Ceph). Empty means AWS.
	SettingS3Endpoint = "endpoint"

	// SettingS3AccessKeyID is the access key id. The secret key comes
	// from the settings store, not the destination.
	SettingS3AccessKeyID = "access_key_id"
)

// S3Adapter delivers documents into an S3-compatible object store.
type S3Adapter struct{}

// NewS3Adapter creates a new S3 adapter.
func NewS3Adapter() *S3Adapter {
	return &S3Adapter{}
}

// Provider returns the provider type this adapter serves.
func (a *S3Adapter) Provider() domain.ProviderType {
	return domain.ProviderS3
}

// Deliver puts the document under the rendered key. Object stores have
// no folders; re-delivering the same key overwrites.
func (a *S3Adapter) Deliver(ctx context.Context, req driven.DeliveryRequest) (*driven.DeliveryResult, error) {
	client, bucket, err := a.client(ctx, req.Target)
	if err != nil {
		return nil, err
	}

	key := req.Filename
	if req.Path != "" {
		key = req.Path + "/" + req.Filename
	}

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          req.Content,
		ContentType:   aws.String(domain.MimeTypePDF),
		ContentLength: aws.Int64(req.Size),
	})
	if err != nil {
		return nil, classifyS3Err(fmt.Errorf("putting s3://%s/%s: %w", bucket, key, err))
	}
	return &driven.DeliveryResult{RemoteRef: "s3://" + bucket + "/" + key}, nil
}

// TestConnection verifies bucket access with a head request.
func (a *S3Adapter) TestConnection(ctx context.Context, target driven.Target) error {
	client, bucket, err := a.client(ctx, target)
	if err != nil {
		return err
	}
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err != nil {
		return classifyS3Err(fmt.Errorf("heading bucket %s: %w", bucket, err))
	}
	return nil
}

func (a *S3Adapter) client(ctx context.Context, target driven.Target) (*s3.Client, string, error) {
	dest := target.Destination
	bucket := dest.Setting(SettingS3Bucket)
	if bucket == "" {
		return nil, "", domain.Classified(domain.ErrClassValidation,
			fmt.Errorf("destination %s has no bucket configured", dest.Name))
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(dest.Setting(SettingS3Region)),
	}
	if accessKey := dest.Setting(SettingS3AccessKeyID); accessKey != "" {
		secret := target.Secrets[domain.KeyS3SecretKey]
		if secret == "" {
			return nil, "", domain.Classified(domain.ErrClassAuthExpired,
				fmt.Errorf("destination %s: %s is not configured", dest.Name, domain.KeyS3SecretKey))
		}
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secret, "")))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, "", domain.Classified(domain.ErrClassInternal, fmt.Errorf("loading aws config: %w", err))
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint := dest.Setting(SettingS3Endpoint); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return client, bucket, nil
}

// classifyS3Err maps AWS SDK failures onto the error taxonomy.
func classifyS3Err(err error) error {
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		return domain.Classified(classifyStatus(respErr.HTTPStatusCode()), err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "SlowDown", "RequestTimeout", "InternalError", "ServiceUnavailable":
			return domain.Classified(domain.ErrClassTransient, err)
		case "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken", "AccessDenied":
			return domain.Classified(domain.ErrClassAuthExpired, err)
		default:
			return domain.Classified(domain.ErrClassPermanent, err)
		}
	}
	return domain.Classified(classifyNetErr(err), err)
}
