package services

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"marshmallow-backend/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// MediaKind is the type of asset a client uploads
type MediaKind string

const (
	MediaKindPhoto MediaKind = "photo"
	MediaKindVideo MediaKind = "video"
)

var mediaExtensions = map[string]string{
	"image/jpeg":      "jpg",
	"image/png":       "png",
	"image/heic":      "heic",
	"video/mp4":       "mp4",
	"video/quicktime": "mov",
}

// Presigner signs S3 upload requests
type Presigner interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// MediaOptions configures the asset bucket
type MediaOptions struct {
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	Endpoint  string
	URLTTL    time.Duration
}

// MediaService issues presigned upload URLs for photos and videos that
// messages and memories then reference.
type MediaService struct {
	pairing   *PairingService
	presigner Presigner
	bucket    string
	baseURL   string
	ttl       time.Duration
}

// NewMediaService creates a media service backed by S3 or an S3-compatible endpoint
func NewMediaService(ctx context.Context, pairing *PairingService, opts MediaOptions) (*MediaService, error) {
	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(opts.Region),
	}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	baseURL := fmt.Sprintf("https://%s.s3.%s.amazonaws.com", opts.Bucket, opts.Region)
	if opts.Endpoint != "" {
		baseURL = strings.TrimRight(opts.Endpoint, "/") + "/" + opts.Bucket
	}

	return NewMediaServiceWithPresigner(pairing, s3.NewPresignClient(s3Client), opts.Bucket, baseURL, opts.URLTTL), nil
}

// NewMediaServiceWithPresigner creates a media service around an existing presigner
func NewMediaServiceWithPresigner(pairing *PairingService, presigner Presigner, bucket, baseURL string, ttl time.Duration) *MediaService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &MediaService{
		pairing:   pairing,
		presigner: presigner,
		bucket:    bucket,
		baseURL:   strings.TrimRight(baseURL, "/"),
		ttl:       ttl,
	}
}

// UploadRequest represents a request for an upload URL
type UploadRequest struct {
	Kind        MediaKind `json:"kind"`
	ContentType string    `json:"content_type"`
}

// UploadResponse carries the presigned URL and the reference to store once uploaded
type UploadResponse struct {
	UploadURL string `json:"upload_url"`
	AssetURL  string `json:"asset_url"`
	ExpiresIn int    `json:"expires_in"`
}

// CreateUploadURL returns a presigned PUT URL under the user's couple prefix
func (s *MediaService) CreateUploadURL(ctx context.Context, userID string, req UploadRequest) (*UploadResponse, error) {
	ext, ok := mediaExtensions[req.ContentType]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported content type %q", models.ErrValidation, req.ContentType)
	}
	switch req.Kind {
	case MediaKindPhoto:
		if !strings.HasPrefix(req.ContentType, "image/") {
			return nil, fmt.Errorf("%w: photo must be an image", models.ErrValidation)
		}
	case MediaKindVideo:
		if !strings.HasPrefix(req.ContentType, "video/") {
			return nil, fmt.Errorf("%w: video must be a video", models.ErrValidation)
		}
	default:
		return nil, fmt.Errorf("%w: unknown media kind %q", models.ErrValidation, req.Kind)
	}

	couple, err := s.pairing.CoupleForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	// {couple_id}/{kind}s/{asset_id}.{ext}
	key := fmt.Sprintf("%s/%ss/%s.%s", couple.ID, req.Kind, uuid.New().String(), ext)

	request, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(req.ContentType),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = s.ttl
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate pre-signed URL: %w", err)
	}

	assetURL, err := url.JoinPath(s.baseURL, key)
	if err != nil {
		return nil, fmt.Errorf("failed to build asset URL: %w", err)
	}

	return &UploadResponse{
		UploadURL: request.URL,
		AssetURL:  assetURL,
		ExpiresIn: int(s.ttl.Seconds()),
	}, nil
}
