package services

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/cleanclik/core/cleanclik/cards"
)

// SpacesService stores rendered share cards in DigitalOcean Spaces and hands
// back their public URLs. It is the card queue's share surface.
type SpacesService struct {
	client   *s3.Client
	bucket   string
	region   string
	CardRoot string
	logger   *slog.Logger
}

func NewSpacesService(spacesKey, spacesSecret, region, bucket, cardRoot string) *SpacesService {
	resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		return aws.Endpoint{
			URL: fmt.Sprintf("https://%s.digitaloceanspaces.com", region),
		}, nil
	})

	cfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithEndpointResolverWithOptions(resolver),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(spacesKey, spacesSecret, "")),
		config.WithRegion(region),
	)
	if err != nil {
		panic(fmt.Sprintf("Unable to load Spaces config: %v", err))
	}

	client := s3.NewFromConfig(cfg)

	return &SpacesService{
		client:   client,
		bucket:   bucket,
		region:   region,
		CardRoot: strings.TrimPrefix(cardRoot, "/"),
		logger:   slog.With(slog.String("service", "spaces")),
	}
}

// Deliver uploads a rendered card and returns its CDN URL.
func (s *SpacesService) Deliver(ctx context.Context, userID, jobID string, platform cards.PlatformTarget, image []byte) (string, error) {
	key := fmt.Sprintf("%s/%s/%s_%s.png", s.CardRoot, userID, jobID, platform)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        bytes.NewReader(image),
		ContentType: aws.String("image/png"),
		ACL:         types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		s.logger.Error("Failed to upload card image",
			slog.String("key", key),
			slog.String("error", err.Error()))
		return "", fmt.Errorf("failed to upload card image: %w", err)
	}

	url := fmt.Sprintf("https://%s.%s.cdn.digitaloceanspaces.com/%s", s.bucket, s.region, key)

	s.logger.Info("Card image uploaded",
		slog.String("key", key),
		slog.Int("size", len(image)))

	return url, nil
}
