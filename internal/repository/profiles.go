package repository

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/imyashkale/mcphub/internal/database"
	"github.com/imyashkale/mcphub/internal/models"
)

// ProfileRepository manages the profile rows that mirror identities
type ProfileRepository interface {
	FindProfiles(ctx context.Context, id string) ([]models.Profile, error)
	UpsertProfile(ctx context.Context, profile models.Profile) (models.Profile, error)
}

type storeProfileRepository struct {
	store database.RowStore
}

// NewProfileRepository creates a repository over store
func NewProfileRepository(store database.RowStore) ProfileRepository {
	return &storeProfileRepository{store: store}
}

// FindProfiles returns all rows with the given id. More than one row is a
// data problem the caller decides how to handle.
func (r *storeProfileRepository) FindProfiles(ctx context.Context, id string) ([]models.Profile, error) {
	return guard("find_profiles", logrus.Fields{"table": database.TableProfiles, "user_id": id}, func() ([]models.Profile, error) {
		rows, err := r.store.Select(ctx, database.TableProfiles, database.ById(id))
		if err != nil {
			return nil, err
		}
		profiles := make([]models.Profile, 0, len(rows))
		for _, row := range rows {
			profiles = append(profiles, RowToProfile(row))
		}
		return profiles, nil
	})
}

// UpsertProfile inserts the profile or updates the row with the same id
func (r *storeProfileRepository) UpsertProfile(ctx context.Context, profile models.Profile) (models.Profile, error) {
	return guard("upsert_profile", logrus.Fields{"table": database.TableProfiles, "user_id": profile.Id}, func() (models.Profile, error) {
		row, err := r.store.Upsert(ctx, database.TableProfiles, ProfileToRow(profile), colId)
		if err != nil {
			return models.Profile{}, err
		}
		return RowToProfile(row), nil
	})
}
