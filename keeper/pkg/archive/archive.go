// Package archive writes one JSON receipt per distribution cycle to S3.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jonboulle/clockwork"

	"github.com/malbeclabs/bounty/keeper/pkg/history"
)

const DefaultPrefix = "receipts"

// ObjectPutter is the subset of the S3 client used by the archive.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type Config struct {
	Bucket   string
	Prefix   string
	Region   string
	Endpoint string
	// PathStyle addresses the bucket in the path, as S3-compatible stores like MinIO expect.
	PathStyle bool
}

// LoadConfigFromEnv reads ARCHIVE_S3_BUCKET, ARCHIVE_S3_PREFIX, ARCHIVE_S3_ENDPOINT,
// ARCHIVE_S3_PATH_STYLE and AWS_REGION. An empty bucket disables the archive.
func LoadConfigFromEnv() Config {
	return Config{
		Bucket:    os.Getenv("ARCHIVE_S3_BUCKET"),
		Prefix:    os.Getenv("ARCHIVE_S3_PREFIX"),
		Region:    os.Getenv("AWS_REGION"),
		Endpoint:  os.Getenv("ARCHIVE_S3_ENDPOINT"),
		PathStyle: os.Getenv("ARCHIVE_S3_PATH_STYLE") == "true",
	}
}

func (cfg Config) Enabled() bool {
	return cfg.Bucket != ""
}

// NewS3Client builds an S3 client from the default AWS credential chain.
func NewS3Client(ctx context.Context, cfg Config) (*s3.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	}), nil
}

// Receipt is the archived form of a cycle: the recorded cycle plus the signatures of the
// transfers that paid it out.
type Receipt struct {
	history.CycleRecord
	Signatures []string  `json:"signatures,omitempty"`
	ArchivedAt time.Time `json:"archived_at"`
}

type ArchiveConfig struct {
	Logger *slog.Logger
	Client ObjectPutter
	Clock  clockwork.Clock
	Bucket string
	Prefix string
}

func (cfg *ArchiveConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Client == nil {
		return errors.New("s3 client is required")
	}
	if cfg.Bucket == "" {
		return errors.New("bucket is required")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

type Archive struct {
	log *slog.Logger
	cfg ArchiveConfig
}

func New(cfg ArchiveConfig) (*Archive, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Archive{log: cfg.Logger, cfg: cfg}, nil
}

// Key is the object key of a cycle's receipt: <prefix>/<token>/<cycle-id>.json.
func (a *Archive) Key(token, cycleID string) string {
	return path.Join(a.cfg.Prefix, token, cycleID+".json")
}

// Put uploads the receipt of one cycle and returns its key.
func (a *Archive) Put(ctx context.Context, rec history.CycleRecord, signatures []string) (string, error) {
	receipt := Receipt{
		CycleRecord: rec,
		Signatures:  signatures,
		ArchivedAt:  a.cfg.Clock.Now().UTC(),
	}
	body, err := json.Marshal(receipt)
	if err != nil {
		return "", fmt.Errorf("failed to marshal receipt: %w", err)
	}

	key := a.Key(rec.Token, rec.CycleID.String())
	if _, err := a.cfg.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.cfg.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String("application/json"),
		ContentLength: aws.Int64(int64(len(body))),
	}); err != nil {
		return "", fmt.Errorf("failed to put receipt %s: %w", key, err)
	}

	a.log.Debug("archive: receipt stored", "bucket", a.cfg.Bucket, "key", key)
	return key, nil
}
