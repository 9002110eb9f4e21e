package audit

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withTempStorageDir(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(wd) })
}

func TestOpenCreatesEventsTable(t *testing.T) {
	withTempStorageDir(t)

	trail, err := Open("test")
	require.NoError(t, err)
	defer trail.Close()

	_, err = os.Stat("storage/test.sqlite")
	require.NoError(t, err)
}

func TestRecordAndRecentForClientRoundTrip(t *testing.T) {
	withTempStorageDir(t)

	trail, err := Open("test")
	require.NoError(t, err)
	defer trail.Close()

	require.NoError(t, trail.Record(EventAdmitted, 1, "203.0.113.5:40000", "first admission"))
	require.NoError(t, trail.Record(EventDisconnect, 1, "203.0.113.5:40000", "timeout"))
	require.NoError(t, trail.Record(EventAdmitted, 2, "198.51.100.9:1", "other client"))

	events, err := trail.RecentForClient(1, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventDisconnect, events[0].Kind)
	assert.Equal(t, EventAdmitted, events[1].Kind)
}

func TestRecentForClientRespectsLimit(t *testing.T) {
	withTempStorageDir(t)

	trail, err := Open("test")
	require.NoError(t, err)
	defer trail.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, trail.Record(EventMigration, 3, "10.0.0.1:1", "round"))
	}

	events, err := trail.RecentForClient(3, 2)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}
