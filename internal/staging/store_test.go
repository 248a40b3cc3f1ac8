package staging_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goalline/internal/staging"
)

func TestFileStoreDraftLifecycle(t *testing.T) {
	store := staging.NewFileStore(t.TempDir())
	_, err := store.Load()
	require.ErrorIs(t, err, staging.ErrNoDraft)

	s := staging.NewSession(now)
	s.AddValues([]staging.StagedValue{{Title: "Health", Level: staging.LevelGeneral, Priority: 50}}, now)
	s.AddGoals([]staging.StagedGoal{{Title: "G", TargetValue: 3, Measure: staging.Unresolved("km")}}, now)
	s.Status = staging.SessionDraft
	require.NoError(t, store.Save(s))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, s.ID, loaded.ID)
	assert.Equal(t, staging.SchemaVersion, loaded.SchemaVersion)
	assert.Equal(t, staging.SessionDraft, loaded.Status)
	require.Len(t, loaded.Goals, 1)
	assert.Equal(t, "km", loaded.Goals[0].Measure.Raw)
	assert.Equal(t, 1, loaded.Seq[staging.KindValue])

	require.Error(t, store.Archive(loaded), "draft sessions are not archived")
	loaded.Status = staging.SessionCompleted
	require.NoError(t, store.Archive(loaded))
	_, err = store.Load()
	require.ErrorIs(t, err, staging.ErrNoDraft)

	ids, err := store.History()
	require.NoError(t, err)
	assert.Equal(t, []string{s.ID}, ids)
	archived, err := store.LoadArchived(s.ID)
	require.NoError(t, err)
	assert.Equal(t, staging.SessionCompleted, archived.Status)

	require.NoError(t, store.Discard(), "discarding a missing draft is a no-op")
}

func TestDecodeSessionRejectsNewerSchema(t *testing.T) {
	_, err := staging.DecodeSession([]byte(`{"schema_version": 99, "id": "x"}`))
	require.ErrorIs(t, err, staging.ErrSchemaVersion)
}

func TestDecodeSessionUpgradesUnversionedDraft(t *testing.T) {
	doc := `{
	  "id": "old",
	  "values": [{"local_id": "v4", "title": "Health", "level": "general", "priority": 50}],
	  "goals": [{"local_id": "g2", "title": "G", "target_value": 1, "measure": {"state": "unresolved", "raw": "km"}}]
	}`
	s, err := staging.DecodeSession([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, staging.SchemaVersion, s.SchemaVersion)
	assert.Equal(t, staging.SessionDraft, s.Status)
	assert.Equal(t, staging.StepValues, s.Step)
	assert.Equal(t, 4, s.Seq[staging.KindValue])
	assert.Equal(t, 2, s.Seq[staging.KindGoal])
	assert.Equal(t, staging.StatusNeedsResolution, s.Goals[0].Status)
	assert.Equal(t, []string{"v5"}, s.AddValues([]staging.StagedValue{{Title: "Next"}}, now))
}

func TestDecodeSessionRejectsInvalidReference(t *testing.T) {
	doc := `{"schema_version": 1, "id": "x", "goals": [{"local_id": "g1", "title": "G", "target_value": 1, "measure": {"state": "existing", "raw": "km"}}]}`
	_, err := staging.DecodeSession([]byte(doc))
	require.Error(t, err)
}

func TestSaveReplacesDraftFile(t *testing.T) {
	dir := t.TempDir()
	store := staging.NewFileStore(dir)
	s := staging.NewSession(now)
	require.NoError(t, store.Save(s))
	s.AddValues([]staging.StagedValue{{Title: "Health"}}, now)
	require.NoError(t, store.Save(s))
	_, err := os.Stat(filepath.Join(dir, "draft.json.tmp"))
	assert.True(t, os.IsNotExist(err))
	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Len(t, loaded.Values, 1)
}
