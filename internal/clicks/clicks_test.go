package clicks_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nighthub/internal/clicks"
	"nighthub/internal/testsupport"
)

func TestNormalizeURL(t *testing.T) {
	testCases := []struct {
		in   string
		want string
	}{
		{"//tickets.example.com/e1", "https://tickets.example.com/e1"},
		{"tickets.example.com/e1", "https://tickets.example.com/e1"},
		{"https://tickets.example.com/e1", "https://tickets.example.com/e1"},
		{"http://tickets.example.com", "http://tickets.example.com"},
		{"  www.example.com  ", "https://www.example.com"},
		{"HTTPS://Tickets.example.com/E1", "HTTPS://Tickets.example.com/E1"},
		{"/local/path", "/local/path"},
		{"javascript://%0Aalert(1)", "https://javascript://%0Aalert(1)"},
		{"ftp://tickets.example.com", "https://ftp://tickets.example.com"},
		{"data:text/html,hi", "https://data:text/html,hi"},
		{"", ""},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, clicks.NormalizeURL(tc.in))
		})
	}
}

func TestRecord(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	err := clicks.Record(context.Background(), db, logger, clicks.Click{EventID: "e1", ReferralURL: "https://x.test"})
	require.NoError(t, err)

	var stored clicks.Click
	require.NoError(t, db.First(&stored).Error)
	assert.Equal(t, "e1", stored.EventID)
	assert.Equal(t, clicks.DefaultSource, stored.Source)
	assert.False(t, stored.TS.IsZero())
}
