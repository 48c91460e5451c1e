package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"telegram-access-subscription/internal/config"
	"telegram-access-subscription/internal/domain"
	"telegram-access-subscription/internal/domain/model"
	"telegram-access-subscription/internal/domain/ports/adapter"
)

var (
	_ adapter.AccessProvider = (*Grants)(nil)
	_ adapter.AccessChecker  = (*Grants)(nil)
)

// objectAPI is the subset of *s3.Client used here.
type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// Grants keeps one manifest object per storage account under a prefix; the
// storage gateway serves an account only while its manifest exists.
type Grants struct {
	api    objectAPI
	bucket string
	prefix string
	now    func() time.Time
}

type manifest struct {
	Account   string    `json:"account"`
	GrantedAt time.Time `json:"granted_at"`
}

// NewGrants builds the S3 client from static credentials. A custom endpoint
// switches to path-style addressing for S3-compatible stores.
func NewGrants(ctx context.Context, cfg config.StorageConfig) (*Grants, error) {
	if cfg.Bucket == "" {
		return nil, domain.ErrNotConfigured
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
		if cfg.UsePathStyle {
			o.UsePathStyle = true
		}
	})
	return newGrants(client, cfg.Bucket, cfg.Prefix), nil
}

func newGrants(api objectAPI, bucket, prefix string) *Grants {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Grants{api: api, bucket: bucket, prefix: prefix, now: time.Now}
}

func (g *Grants) System() model.AccessSystem { return model.AccessFileStorage }

func (g *Grants) Grant(ctx context.Context, identity string) error {
	key, err := g.key(identity)
	if err != nil {
		return err
	}
	body, err := json.Marshal(manifest{Account: identity, GrantedAt: g.now().UTC()})
	if err != nil {
		return err
	}
	_, err = g.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(g.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put grant %s: %w", key, err)
	}
	return nil
}

// Revoke is a delete; S3 treats deleting a missing key as success.
func (g *Grants) Revoke(ctx context.Context, identity string) error {
	key, err := g.key(identity)
	if err != nil {
		return err
	}
	if _, err := g.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("delete grant %s: %w", key, err)
	}
	return nil
}

func (g *Grants) Check(ctx context.Context, identity string) (bool, error) {
	key, err := g.key(identity)
	if err != nil {
		return false, err
	}
	_, err = g.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return false, nil
	}
	return false, err
}

func (g *Grants) key(identity string) (string, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" || strings.ContainsAny(identity, "/\\") {
		return "", fmt.Errorf("%w: storage account %q", domain.ErrIdentityMissing, identity)
	}
	return g.prefix + identity + ".json", nil
}
