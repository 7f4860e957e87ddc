package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateAccount(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	user, err := CreateAccount(ctx, repo, NewAccount{ID: " hod1 ", Email: "hod@school.test", DisplayName: "Head", Password: "longenough"})
	require.NoError(t, err)
	require.Equal(t, "hod1", user.ID)
	require.True(t, user.IsActive)
	require.NotEqual(t, "longenough", user.PasswordHash)

	found, err := repo.FindByEmail(ctx, "HOD@school.test")
	require.NoError(t, err)
	require.Equal(t, "hod1", found.ID)

	_, err = CreateAccount(ctx, repo, NewAccount{ID: "hod2", Email: "hod@school.test", Password: "longenough"})
	require.ErrorIs(t, err, ErrUserExists)

	_, err = CreateAccount(ctx, repo, NewAccount{ID: "hod1", Email: "other@school.test", Password: "longenough"})
	require.ErrorIs(t, err, ErrUserExists)

	_, err = CreateAccount(ctx, repo, NewAccount{ID: "x", Email: "bad", Password: "short"})
	require.Error(t, err)

	svc := NewService(repo, nil)
	authed, err := svc.Authenticate(ctx, "hod@school.test", "longenough")
	require.NoError(t, err)
	require.Equal(t, "hod1", authed.ID)
}
