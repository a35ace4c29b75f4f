package service

import (
	"context"
	"strings"
	"time"

	auditdomain "github.com/billfold/billfold/internal/audit/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const defaultListLimit = 50

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
	}
}

func (s *Service) Record(ctx context.Context, entry auditdomain.Entry) error {
	action := strings.TrimSpace(entry.Action)
	if action == "" {
		return auditdomain.ErrInvalidAction
	}
	targetType := strings.TrimSpace(entry.TargetType)
	if targetType == "" {
		targetType = "unknown"
	}

	payload := map[string]any{}
	for key, value := range entry.Metadata {
		if key == "" {
			continue
		}
		payload[key] = value
	}

	row := auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		ActorID:    entry.ActorID,
		ActorRole:  strings.TrimSpace(entry.ActorRole),
		Action:     action,
		TargetType: targetType,
		TargetID:   strings.TrimSpace(entry.TargetID),
		Metadata:   datatypes.JSONMap(payload),
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, req auditdomain.ListRequest) ([]auditdomain.AuditLog, error) {
	if req.StartAt != nil && req.EndAt != nil && req.StartAt.After(*req.EndAt) {
		return nil, auditdomain.ErrInvalidTimeRange
	}

	limit := req.Limit
	if limit <= 0 || limit > 500 {
		limit = defaultListLimit
	}

	q := s.db.WithContext(ctx).Model(&auditdomain.AuditLog{})
	if action := strings.TrimSpace(req.Action); action != "" {
		q = q.Where("action = ?", action)
	}
	if targetType := strings.TrimSpace(req.TargetType); targetType != "" {
		q = q.Where("target_type = ?", targetType)
	}
	if targetID := strings.TrimSpace(req.TargetID); targetID != "" {
		q = q.Where("target_id = ?", targetID)
	}
	if req.StartAt != nil {
		q = q.Where("created_at >= ?", req.StartAt.UTC())
	}
	if req.EndAt != nil {
		q = q.Where("created_at <= ?", req.EndAt.UTC())
	}

	var rows []auditdomain.AuditLog
	if err := q.Order("created_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
