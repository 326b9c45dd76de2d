package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"newskeep/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config selects the archive bucket. Credentials come from the standard
// AWS config/credential chain.
type S3Config struct {
	Bucket string
	Region string
	// Prefix is prepended to every object key, e.g. "articles".
	Prefix string
	// UsePathStyle forces path-style addressing for S3-compatible providers.
	UsePathStyle bool
}

// S3Archiver writes a JSON snapshot of every completed article to S3, keyed
// by user and article id. Snapshots are append-only audit copies; the
// Article Store stays the source of truth.
type S3Archiver struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Archiver creates the archiver using the default AWS configuration
// chain with optional overrides.
func NewS3Archiver(ctx context.Context, cfg S3Config) (*S3Archiver, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
	})
	return &S3Archiver{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// snapshot is the persisted form of an archived article. The embedding is
// omitted; it is reproducible from the text.
type snapshot struct {
	types.Article
	FetchedBy string `json:"fetched_by"`
}

// Archive uploads one article snapshot.
func (a *S3Archiver) Archive(ctx context.Context, article *types.Article) error {
	body, err := json.Marshal(snapshot{Article: *article, FetchedBy: "newskeep"})
	if err != nil {
		return fmt.Errorf("marshal article %d: %w", article.ID, err)
	}

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(a.key(article)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("upload article %d: %w", article.ID, err)
	}
	return nil
}

func (a *S3Archiver) key(article *types.Article) string {
	if a.prefix != "" {
		return fmt.Sprintf("%s/%d/%d.json", a.prefix, article.UserID, article.ID)
	}
	return fmt.Sprintf("%d/%d.json", article.UserID, article.ID)
}
