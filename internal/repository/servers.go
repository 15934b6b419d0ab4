package repository

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/imyashkale/mcphub/internal/database"
	"github.com/imyashkale/mcphub/internal/models"
)

// ServerRepository is the boundary between listings and the row store.
// Every operation returns the domain shape and a normalized error.
type ServerRepository interface {
	ListServers(ctx context.Context) ([]models.ServerListing, error)
	GetServer(ctx context.Context, id string) (models.ServerListing, error)
	CreateServer(ctx context.Context, listing models.ServerListing) (models.ServerListing, error)
	UpdateServer(ctx context.Context, id string, patch models.ServerPatch) (models.ServerListing, error)
	DeleteServer(ctx context.Context, id string) error
}

// storeServerRepository implements ServerRepository on any RowStore
type storeServerRepository struct {
	store database.RowStore
}

// NewServerRepository creates a repository over store
func NewServerRepository(store database.RowStore) ServerRepository {
	return &storeServerRepository{store: store}
}

// ListServers returns every listing, newest first
func (r *storeServerRepository) ListServers(ctx context.Context) ([]models.ServerListing, error) {
	return guard("list_servers", logrus.Fields{"table": database.TableServers}, func() ([]models.ServerListing, error) {
		rows, err := r.store.Select(ctx, database.TableServers, database.Query{
			OrderBy: colCreatedAt,
			Desc:    true,
		})
		if err != nil {
			return nil, err
		}
		listings := make([]models.ServerListing, 0, len(rows))
		for _, row := range rows {
			listings = append(listings, RowToListing(row))
		}
		return listings, nil
	})
}

// GetServer returns exactly one listing; zero rows is ErrNotFound
func (r *storeServerRepository) GetServer(ctx context.Context, id string) (models.ServerListing, error) {
	return guard("get_server", logrus.Fields{"table": database.TableServers, "server_id": id}, func() (models.ServerListing, error) {
		return r.getServer(ctx, id)
	})
}

func (r *storeServerRepository) getServer(ctx context.Context, id string) (models.ServerListing, error) {
	rows, err := r.store.Select(ctx, database.TableServers, database.ById(id))
	if err != nil {
		return models.ServerListing{}, err
	}
	switch len(rows) {
	case 0:
		return models.ServerListing{}, ErrNotFound
	case 1:
		return RowToListing(rows[0]), nil
	default:
		return models.ServerListing{}, ErrMultipleRows
	}
}

// CreateServer applies registration defaults and inserts the listing
func (r *storeServerRepository) CreateServer(ctx context.Context, listing models.ServerListing) (models.ServerListing, error) {
	return guard("create_server", logrus.Fields{"table": database.TableServers, "owner_id": listing.OwnerId}, func() (models.ServerListing, error) {
		listing.ApplyDefaults()
		if !listing.Status.Valid() {
			return models.ServerListing{}, ErrInvalidStatus
		}

		row, err := r.store.Insert(ctx, database.TableServers, ListingToRow(listing))
		if err != nil {
			return models.ServerListing{}, err
		}
		return RowToListing(row), nil
	})
}

// UpdateServer writes only the fields present in patch. An empty patch
// returns the current listing without writing.
func (r *storeServerRepository) UpdateServer(ctx context.Context, id string, patch models.ServerPatch) (models.ServerListing, error) {
	return guard("update_server", logrus.Fields{"table": database.TableServers, "server_id": id}, func() (models.ServerListing, error) {
		if patch.Status != nil && !patch.Status.Valid() {
			return models.ServerListing{}, ErrInvalidStatus
		}
		if patch.IsEmpty() {
			return r.getServer(ctx, id)
		}

		row, err := r.store.Update(ctx, database.TableServers, id, PatchToRow(patch))
		if err != nil {
			return models.ServerListing{}, err
		}
		return RowToListing(row), nil
	})
}

// DeleteServer removes the listing
func (r *storeServerRepository) DeleteServer(ctx context.Context, id string) error {
	_, err := guard("delete_server", logrus.Fields{"table": database.TableServers, "server_id": id}, func() (struct{}, error) {
		return struct{}{}, r.store.Delete(ctx, database.TableServers, id)
	})
	return err
}
