package store

import (
	"context"

	"taskpulse/internal/domain"
)

// Apply commits a set of logical writes as one transaction.
func (s *Store) Apply(ctx context.Context, writes ...domain.Write) error {
	b := &Batch{}
	for _, w := range writes {
		if w.Task != nil {
			if err := b.SaveTask(*w.Task); err != nil {
				return err
			}
		}
		if w.Extension != nil {
			b.SaveExtension(*w.Extension)
		}
		if w.Archive != nil {
			if err := b.ArchiveTask(*w.Archive); err != nil {
				return err
			}
		}
		if w.Audit != nil {
			if err := b.AppendAudit(*w.Audit); err != nil {
				return err
			}
		}
		if w.Activity != nil {
			b.AppendActivity(*w.Activity)
		}
	}
	return s.Commit(ctx, b)
}
