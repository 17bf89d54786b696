package app

import (
	"path/filepath"
	"testing"

	"github.com/router-for-me/GymDesk/internal/db"
)

func TestHasAdminInitialized(t *testing.T) {
	conn, err := db.Open("file:" + filepath.Join(t.TempDir(), "gymdesk-state.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	steps := []struct {
		name  string
		apply func() error
		want  bool
	}{
		{name: "fresh database", apply: func() error { return nil }, want: false},
		{name: "migrated without admins", apply: func() error { return db.Migrate(conn) }, want: false},
		{name: "first admin created", apply: func() error {
			return CreateAdminUserWithConn(conn, "owner", "password1", "")
		}, want: true},
	}
	for _, step := range steps {
		if errApply := step.apply(); errApply != nil {
			t.Fatalf("%s: %v", step.name, errApply)
		}
		got, errCheck := HasAdminInitialized(conn)
		if errCheck != nil {
			t.Fatalf("%s: HasAdminInitialized: %v", step.name, errCheck)
		}
		if got != step.want {
			t.Fatalf("%s: expected initialized=%v, got %v", step.name, step.want, got)
		}
	}

	if _, errNil := HasAdminInitialized(nil); errNil == nil {
		t.Fatalf("expected nil connection to fail")
	}
}
