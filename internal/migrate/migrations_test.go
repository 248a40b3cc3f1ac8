package migrate_test

import (
	"context"
	"testing"

	"goalline/internal/db"
	"goalline/internal/migrate"
)

func TestMigrateIsRepeatable(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()
	for i := 0; i < 2; i++ {
		if err := migrate.Migrate(conn); err != nil {
			t.Fatalf("migrate pass %d: %v", i, err)
		}
	}
	latest, err := migrate.Latest()
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	current, err := migrate.Current(context.Background(), conn)
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if current != latest || latest < 1 {
		t.Fatalf("expected schema version %d, got %d", latest, current)
	}
	for _, table := range []string{"values", "measures", "goals", "actions", "goal_relevances", "measured_actions", "action_goal_contributions", "events"} {
		var name string
		if err := conn.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name); err != nil {
			t.Fatalf("table %s missing: %v", table, err)
		}
	}
}
