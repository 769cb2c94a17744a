package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/trucost-labs/trucost-engine/pkg/apperrors"
	"github.com/trucost-labs/trucost-engine/pkg/audit"
	"github.com/trucost-labs/trucost-engine/pkg/models"
	"github.com/trucost-labs/trucost-engine/pkg/repositories"
)

// TagService exposes the tag reconciliation operations. Reconciliation
// staleness is absorbed here: a discarded system sync surfaces as
// applied=false, never as an error.
type TagService interface {
	// ApplyUpdate reconciles one inbound tag update against stored state.
	// Returns true when the update was applied, false when it was discarded
	// as stale.
	ApplyUpdate(ctx context.Context, update models.TagUpdate) (bool, error)

	// GetEffectiveTags returns the precedence-resolved tag view for a
	// resource: user value if set, else system value, else absent.
	GetEffectiveTags(ctx context.Context, resourceID string) (map[string]string, error)

	// GetRecord returns the full dual-source record for a resource.
	GetRecord(ctx context.Context, resourceID string) (*models.ResourceTagRecord, error)

	// AssignTags applies one set of user tag values to many resources,
	// each through its own reconcile cycle. Returns the number of records
	// written.
	AssignTags(ctx context.Context, resourceIDs []string, fields models.TagFields) (int, error)

	List(ctx context.Context, opts repositories.ListTagsOptions) ([]*models.ResourceTagRecord, int, error)

	Facets(ctx context.Context) (map[string][]string, error)

	// Delete removes a resource's tag record. Decommissioning a resource is
	// always an explicit operation.
	Delete(ctx context.Context, resourceID string) error
}

type tagService struct {
	tagRepo repositories.ResourceTagRepository
	trail   *audit.Trail
	logger  *zap.Logger
}

// NewTagService creates a new TagService.
func NewTagService(tagRepo repositories.ResourceTagRepository, trail *audit.Trail, logger *zap.Logger) TagService {
	return &tagService{
		tagRepo: tagRepo,
		trail:   trail,
		logger:  logger.Named("tag-service"),
	}
}

var _ TagService = (*tagService)(nil)

func (s *tagService) ApplyUpdate(ctx context.Context, update models.TagUpdate) (bool, error) {
	stale := false

	applied, err := s.tagRepo.UpdateWithLock(ctx, update.ResourceID,
		func(existing *models.ResourceTagRecord) (*models.ResourceTagRecord, error) {
			record, err := ReconcileTagUpdate(existing, update)
			if err != nil {
				if errors.Is(err, apperrors.ErrStaleUpdate) {
					stale = true
					return nil, nil // Discard without writing
				}
				return nil, err
			}
			return record, nil
		})
	if err != nil {
		return false, fmt.Errorf("failed to apply tag update for %s: %w", update.ResourceID, err)
	}

	if stale {
		s.logger.Debug("Discarded stale system sync",
			zap.String("resource_id", update.ResourceID),
			zap.Time("event_timestamp", update.Timestamp),
		)
		s.trail.Record(audit.Event{
			EventType:  audit.EventStaleSyncDiscarded,
			ResourceID: update.ResourceID,
			Actor:      string(update.Source),
			Details:    map[string]string{"event_timestamp": update.Timestamp.UTC().Format(time.RFC3339)},
		})
		return false, nil
	}
	if applied {
		s.trail.Record(audit.Event{
			EventType:  audit.EventTagUpdateApplied,
			ResourceID: update.ResourceID,
			Actor:      string(update.Source),
			Details:    update.Fields,
		})
	}
	return applied, nil
}

func (s *tagService) GetEffectiveTags(ctx context.Context, resourceID string) (map[string]string, error) {
	record, err := s.tagRepo.Get(ctx, resourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tag record for %s: %w", resourceID, err)
	}
	if record == nil {
		return nil, apperrors.ErrNotFound
	}
	return record.EffectiveTags(), nil
}

func (s *tagService) GetRecord(ctx context.Context, resourceID string) (*models.ResourceTagRecord, error) {
	record, err := s.tagRepo.Get(ctx, resourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tag record for %s: %w", resourceID, err)
	}
	if record == nil {
		return nil, apperrors.ErrNotFound
	}
	return record, nil
}

func (s *tagService) AssignTags(ctx context.Context, resourceIDs []string, fields models.TagFields) (int, error) {
	now := time.Now()
	applied := 0
	for _, resourceID := range resourceIDs {
		ok, err := s.ApplyUpdate(ctx, models.TagUpdate{
			ResourceID: resourceID,
			Source:     models.TagSourceAPI,
			Fields:     fields,
			Timestamp:  now,
		})
		if err != nil {
			return applied, fmt.Errorf("bulk assignment stopped at %s: %w", resourceID, err)
		}
		if ok {
			applied++
		}
	}

	s.logger.Info("Assigned user tags in bulk",
		zap.Int("requested", len(resourceIDs)),
		zap.Int("applied", applied),
	)
	return applied, nil
}

func (s *tagService) List(ctx context.Context, opts repositories.ListTagsOptions) ([]*models.ResourceTagRecord, int, error) {
	return s.tagRepo.List(ctx, opts)
}

func (s *tagService) Facets(ctx context.Context) (map[string][]string, error) {
	return s.tagRepo.Facets(ctx)
}

func (s *tagService) Delete(ctx context.Context, resourceID string) error {
	if err := s.tagRepo.Delete(ctx, resourceID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to delete tag record for %s: %w", resourceID, err)
	}
	s.logger.Info("Deleted resource tag record", zap.String("resource_id", resourceID))
	s.trail.Record(audit.Event{
		EventType:  audit.EventTagRecordDeleted,
		ResourceID: resourceID,
	})
	return nil
}
