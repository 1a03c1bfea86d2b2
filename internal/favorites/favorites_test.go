package favorites_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nighthub/internal/favorites"
	"nighthub/internal/testsupport"
)

func TestAddRemove(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	ctx := context.Background()

	require.NoError(t, favorites.Add(ctx, db, logger, "u1", "event", "e1"))
	require.NoError(t, favorites.Add(ctx, db, logger, "u1", "event", "e1"))
	require.NoError(t, favorites.Add(ctx, db, logger, "u1", "dj", "d1"))

	var count int64
	require.NoError(t, db.Model(&favorites.Favorite{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)

	require.NoError(t, favorites.Remove(ctx, db, logger, "u1", "event", "e1"))

	var rest []favorites.Favorite
	require.NoError(t, db.Find(&rest).Error)
	require.Len(t, rest, 1)
	assert.Equal(t, "dj:d1", rest[0].Key())
}
