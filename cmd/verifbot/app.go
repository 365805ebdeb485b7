package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"community-portal/verification-backend/internal/config"
	"community-portal/verification-backend/internal/notifications"
	"community-portal/verification-backend/internal/verification"
	"community-portal/verification-backend/pkg/logger"
	"community-portal/verification-backend/pkg/storage"
)

// app holds the services shared by every subcommand.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	aws    *aws.Config
}

func newApp() (*app, error) {
	cfg, err := config.LoadConfig(configPath, envFile)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Development)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, logger: log}, nil
}

func (a *app) close() {
	_ = a.logger.Sync()
}

// awsConfig loads AWS settings once, from static keys when configured and
// the default chain otherwise.
func (a *app) awsConfig(ctx context.Context) (aws.Config, error) {
	if a.aws != nil {
		return *a.aws, nil
	}
	var opts []func(*awsconfig.LoadOptions) error
	if a.cfg.AWS.Region != "" {
		opts = append(opts, awsconfig.WithRegion(a.cfg.AWS.Region))
	}
	if a.cfg.AWS.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(a.cfg.AWS.AccessKeyID, a.cfg.AWS.SecretAccessKey, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if a.cfg.AWS.Endpoint != "" {
		cfg.BaseEndpoint = aws.String(a.cfg.AWS.Endpoint)
	}
	a.aws = &cfg
	return cfg, nil
}

func (a *app) transport(ctx context.Context) (notifications.Transport, error) {
	n := a.cfg.Notifications
	switch n.Transport {
	case "sns":
		if n.SNSTopicARN == "" {
			return nil, nil
		}
		cfg, err := a.awsConfig(ctx)
		if err != nil {
			return nil, err
		}
		return notifications.NewSNSTransport(sns.NewFromConfig(cfg), n.SNSSubject), nil
	case "telegram":
		if n.TelegramToken == "" {
			return nil, nil
		}
		return notifications.NewTelegramTransport(n.TelegramToken, n.TelegramAPIURL), nil
	default:
		return nil, fmt.Errorf("unknown notification transport %q", n.Transport)
	}
}

func (a *app) queue(ctx context.Context) (*notifications.Queue, error) {
	transport, err := a.transport(ctx)
	if err != nil {
		return nil, err
	}
	return notifications.NewQueue(a.cfg.QueueSettings(), transport, a.logger), nil
}

func (a *app) repository() *verification.FileRepository {
	return verification.NewFileRepository(a.cfg.StorePath(), a.logger)
}

// backuper uploads to S3 only when a bucket is configured.
func (a *app) backuper(ctx context.Context, repo *verification.FileRepository) (*verification.Backuper, error) {
	var s3 storage.S3Client
	if a.cfg.Storage.BackupBucket != "" {
		cfg, err := a.awsConfig(ctx)
		if err != nil {
			return nil, err
		}
		s3 = storage.NewS3Client(cfg)
	}
	return verification.NewBackuper(repo, s3, a.cfg.Storage.BackupBucket, a.cfg.Storage.BackupPrefix, a.logger), nil
}

// auditLog stores decisions in PostgreSQL when a database is configured
// and in memory otherwise.
func (a *app) auditLog() (verification.AuditLog, error) {
	url := a.cfg.Database.GetDatabaseURL()
	if url == "" {
		a.logger.Info("No database configured, decision history kept in memory")
		return verification.NewMemoryAuditLog(), nil
	}
	db, err := gorm.Open(postgres.Open(url), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	audit, err := verification.NewGormAuditLog(db)
	if err != nil {
		return nil, err
	}
	a.logger.Info("Decision history stored in database")
	return audit, nil
}
