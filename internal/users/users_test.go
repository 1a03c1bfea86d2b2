package users_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"nighthub/internal/testsupport"
	"nighthub/internal/users"
)

func TestCreateUser(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	t.Run("creates user with generated id", func(t *testing.T) {
		user, err := users.CreateUser(db, " Ana@Example.com ", "Ana", "secret123")
		require.NoError(t, err)
		assert.NotEmpty(t, user.ID)
		assert.Equal(t, "ana@example.com", user.Email)
		assert.NotEqual(t, "secret123", user.EncryptedPassword)

		found, err := users.FindByID(db, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "Ana", found.DisplayName)
	})

	t.Run("rejects duplicate email", func(t *testing.T) {
		_, err := users.CreateUser(db, "ana@example.com", "", "other")
		assert.ErrorIs(t, err, users.ErrUserExists)
	})

	t.Run("rejects empty fields", func(t *testing.T) {
		_, err := users.CreateUser(db, "", "", "pw")
		assert.Error(t, err)
		_, err = users.CreateUser(db, "x@example.com", "", "")
		assert.Error(t, err)
	})
}

func TestFindByEmail(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	testsupport.CreateTestUser(db, "u1", "test@example.com", "Tester")

	found, err := users.FindByEmail(db, "TEST@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", found.ID)

	_, err = users.FindByEmail(db, "nobody@example.com")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestLabel(t *testing.T) {
	testCases := []struct {
		name string
		user users.User
		want string
	}{
		{"display name wins", users.User{ID: "1", Email: "a@b.c", DisplayName: "Ana"}, "Ana"},
		{"falls back to email", users.User{ID: "1", Email: "a@b.c"}, "a@b.c"},
		{"falls back to id", users.User{ID: "1"}, "1"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.user.Label())
		})
	}
}

func TestLatestAndFindByIDs(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	testsupport.CreateTestUser(db, "u1", "one@example.com", "One")
	testsupport.CreateTestUser(db, "u2", "two@example.com", "Two")

	n, err := users.Count(db)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	latest, err := users.Latest(db, 1)
	require.NoError(t, err)
	assert.Len(t, latest, 1)

	byID, err := users.FindByIDs(db, []string{"u1", "missing"})
	require.NoError(t, err)
	assert.Len(t, byID, 1)
	assert.Equal(t, "One", byID["u1"].DisplayName)
}
