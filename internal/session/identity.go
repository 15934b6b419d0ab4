package session

import (
	"context"
	"strings"
	"time"

	"github.com/imyashkale/mcphub/internal/logger"
	"github.com/imyashkale/mcphub/internal/models"
)

const anonymousName = "Anonymous"

// Profile reconciliation messages recorded in State.Error
const (
	msgProfileFetch  = "Failed to setup user profile"
	msgProfileCreate = "Failed to create user profile"
)

// ProfileStore reads and writes the companion profile rows
type ProfileStore interface {
	FindProfiles(ctx context.Context, id string) ([]models.Profile, error)
	UpsertProfile(ctx context.Context, profile models.Profile) (models.Profile, error)
}

// IdentityFromSession derives the application identity from the auth
// provider's user object.
func IdentityFromSession(u models.SessionUser) models.User {
	provider := providerOf(u)
	now := time.Now().UTC()

	user := models.User{
		Id:           u.Id,
		Email:        u.Email,
		AuthProvider: provider,
		Profile: models.UserProfile{
			Name:   displayName(u, provider),
			Avatar: metadataString(u.UserMetadata, "avatar_url"),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if u.CreatedAt != nil {
		user.CreatedAt = *u.CreatedAt
	}
	if u.UpdatedAt != nil {
		user.UpdatedAt = *u.UpdatedAt
	}
	return user
}

func providerOf(u models.SessionUser) models.AuthProvider {
	switch metadataString(u.AppMetadata, "provider") {
	case string(models.ProviderGitHub):
		return models.ProviderGitHub
	case string(models.ProviderWeb3):
		return models.ProviderWeb3
	}
	return models.ProviderEmail
}

// displayName is the OAuth username for GitHub sessions, otherwise the
// local part of the email, otherwise "Anonymous".
func displayName(u models.SessionUser, provider models.AuthProvider) string {
	if provider == models.ProviderGitHub {
		if name := metadataString(u.UserMetadata, "user_name"); name != "" {
			return name
		}
	}
	if local, _, _ := strings.Cut(u.Email, "@"); local != "" {
		return local
	}
	return anonymousName
}

func metadataString(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

// ProfileFromUser builds the companion row for an identity
func ProfileFromUser(u models.User) models.Profile {
	return models.Profile{
		Id:           u.Id,
		Email:        u.Email,
		AuthProvider: u.AuthProvider,
		Name:         u.Profile.Name,
		AvatarUrl:    u.Profile.Avatar,
	}
}

// ReconcileProfile makes sure exactly one profile row exists for user. It
// never fails; problems are reported in the returned ProfileSync.
func ReconcileProfile(ctx context.Context, store ProfileStore, user models.User) models.ProfileSync {
	log := logger.WithField("user_id", user.Id)

	profiles, err := store.FindProfiles(ctx, user.Id)
	if err != nil {
		log.WithError(err).Error("Failed to fetch profile")
		return models.ProfileSync{Status: models.ProfileSyncFailed, Error: msgProfileFetch}
	}

	switch {
	case len(profiles) == 0:
		log.Info("No profile found, creating new profile")
		if _, err := store.UpsertProfile(ctx, ProfileFromUser(user)); err != nil {
			log.WithError(err).Error("Failed to create profile")
			return models.ProfileSync{Status: models.ProfileSyncFailed, Error: msgProfileCreate}
		}
		return models.ProfileSync{Status: models.ProfileSyncCreated}
	case len(profiles) > 1:
		log.WithField("count", len(profiles)).Warn("Multiple profiles found for user, using the first one")
	}
	return models.ProfileSync{Status: models.ProfileSyncExists}
}
