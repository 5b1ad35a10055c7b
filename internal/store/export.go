package store

import (
	"context"
	"fmt"
	"time"

	"github.com/pavelanni/tutor/internal/model"
)

// ExportSessions builds the export document with every recorded session and
// its turns.
func (s *Store) ExportSessions(ctx context.Context) (model.SessionExport, error) {
	list, err := s.ListSessions(ctx)
	if err != nil {
		return model.SessionExport{}, fmt.Errorf("list sessions: %w", err)
	}

	variant, err := s.GetMetadata(metaPromptVariant)
	if err != nil {
		return model.SessionExport{}, fmt.Errorf("read prompt variant: %w", err)
	}

	out := model.SessionExport{
		ExportedAt:    time.Now().UTC(),
		PromptVariant: variant,
		Sessions:      make([]model.SessionRecord, 0, len(list)),
	}
	for _, summary := range list {
		rec, err := s.GetSession(ctx, summary.ID)
		if err != nil {
			return model.SessionExport{}, fmt.Errorf("get session %s: %w", summary.ID, err)
		}
		if rec != nil {
			out.Sessions = append(out.Sessions, *rec)
		}
	}
	return out, nil
}
