package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// errRotationLost aborts the rotation transaction when the old session was
// revoked by someone else first
var errRotationLost = errors.New("rotation lost")

// validIDs reports whether every id parses as a uuid. Postgres rejects
// malformed uuids with an error, the store reports them as unknown instead.
func validIDs(ids ...string) bool {
	for _, id := range ids {
		if uuid.Validate(id) != nil {
			return false
		}
	}
	return true
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a Postgres-backed Store
func NewRepository(db *gorm.DB) Store {
	return &repository{db}
}

func (r *repository) Create(ctx context.Context, sess *Session) error {
	return r.db.WithContext(ctx).Create(sess).Error
}

func (r *repository) Get(ctx context.Context, id, userID string) (*Session, error) {
	if !validIDs(id, userID) {
		return nil, ErrSessionNotFound
	}

	var sess Session
	err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&sess).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &sess, nil
}

// Rotate inserts next and revokes the old session in one transaction. The
// conditional update is the only guard between concurrent rotators: the
// loser sees zero affected rows and the insert is rolled back.
func (r *repository) Rotate(ctx context.Context, oldID, userID string, next *Session, at time.Time) (bool, error) {
	if !validIDs(oldID, userID) {
		return false, nil
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(next).Error; err != nil {
			return err
		}

		res := tx.Model(&Session{}).
			Where("id = ? AND user_id = ? AND revoked = false", oldID, userID).
			Updates(map[string]any{
				"revoked":      true,
				"last_used_at": at,
				"replaced_by":  next.ID,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return errRotationLost
		}
		return nil
	})

	if errors.Is(err, errRotationLost) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *repository) Revoke(ctx context.Context, id, userID string, at time.Time) (bool, error) {
	if !validIDs(id, userID) {
		return false, nil
	}

	res := r.db.WithContext(ctx).Model(&Session{}).
		Where("id = ? AND user_id = ? AND revoked = false", id, userID).
		Updates(map[string]any{
			"revoked":      true,
			"last_used_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) RevokeAll(ctx context.Context, userID string, at time.Time) ([]string, error) {
	if !validIDs(userID) {
		return nil, nil
	}
	return r.revokeWhere(ctx, at, "user_id = ? AND revoked = false", userID)
}

func (r *repository) RevokeIDs(ctx context.Context, userID string, ids []string, at time.Time) ([]string, error) {
	wellFormed := make([]string, 0, len(ids))
	for _, id := range ids {
		if validIDs(id) {
			wellFormed = append(wellFormed, id)
		}
	}
	if len(wellFormed) == 0 || !validIDs(userID) {
		return nil, nil
	}
	return r.revokeWhere(ctx, at, "user_id = ? AND id IN ? AND revoked = false", userID, wellFormed)
}

// revokeWhere runs a single bulk UPDATE ... RETURNING id
func (r *repository) revokeWhere(ctx context.Context, at time.Time, query string, args ...any) ([]string, error) {
	var revoked []Session
	err := r.db.WithContext(ctx).Model(&revoked).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "id"}}}).
		Where(query, args...).
		Updates(map[string]any{
			"revoked":      true,
			"last_used_at": at,
		}).Error
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(revoked))
	for _, s := range revoked {
		ids = append(ids, s.ID)
	}
	return ids, nil
}

func (r *repository) ListActive(ctx context.Context, userID string) ([]Session, error) {
	if !validIDs(userID) {
		return nil, nil
	}

	var sessions []Session
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND revoked = false", userID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *repository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at < ?", now).Delete(&Session{})
	return res.RowsAffected, res.Error
}

func (r *repository) DeleteRevokedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("revoked = true AND last_used_at < ?", cutoff).
		Delete(&Session{})
	return res.RowsAffected, res.Error
}

func (r *repository) Stats(ctx context.Context, now, cutoff time.Time) (Stats, error) {
	var stats Stats
	err := r.db.WithContext(ctx).Model(&Session{}).
		Select(`COUNT(*) AS total,
			COUNT(*) FILTER (WHERE revoked = false AND expires_at >= ?) AS active,
			COUNT(*) FILTER (WHERE revoked = true) AS revoked,
			COUNT(*) FILTER (WHERE expires_at < ?) AS expired,
			COUNT(*) FILTER (WHERE revoked = true AND last_used_at < ?) AS obsolete`,
			now, now, cutoff).
		Scan(&stats).Error
	return stats, err
}
