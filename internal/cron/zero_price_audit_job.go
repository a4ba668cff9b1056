package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/catalogsync-backend/internal/catalogsync"
	"github.com/angelmondragon/catalogsync-backend/pkg/logger"
)

type zeroPriceAuditor interface {
	Run(ctx context.Context) (catalogsync.AuditStats, error)
}

type ZeroPriceAuditJobParams struct {
	Logger  *logger.Logger
	Auditor zeroPriceAuditor
}

func NewZeroPriceAuditJob(params ZeroPriceAuditJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Auditor == nil {
		return nil, fmt.Errorf("zero price auditor required")
	}
	return &zeroPriceAuditJob{logg: params.Logger, auditor: params.Auditor}, nil
}

type zeroPriceAuditJob struct {
	logg    *logger.Logger
	auditor zeroPriceAuditor
}

func (j *zeroPriceAuditJob) Name() string { return "zero-price-audit" }

func (j *zeroPriceAuditJob) Run(ctx context.Context) error {
	if _, err := j.auditor.Run(ctx); err != nil {
		return fmt.Errorf("zero price audit: %w", err)
	}
	return nil
}
