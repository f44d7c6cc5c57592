package persistence

import (
	"strings"
	"testing"
)

func TestMigrateURL(t *testing.T) {
	cases := map[string]string{
		"postgres://desk:pw@db:5432/desk?sslmode=disable": "pgx5://desk:pw@db:5432/desk?sslmode=disable",
		"postgresql://desk:pw@db:5432/desk":               "pgx5://desk:pw@db:5432/desk",
		"pgx5://desk@db/desk":                             "pgx5://desk@db/desk",
	}
	for in, want := range cases {
		got, err := migrateURL(in)
		if err != nil {
			t.Fatalf("migrateURL(%q): unexpected error %v", in, err)
		}
		if got != want {
			t.Errorf("migrateURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMigrateURL_RejectsKeywordDSN(t *testing.T) {
	_, err := migrateURL("host=db user=desk password=secret@x dbname=desk")
	if err == nil {
		t.Fatalf("expected keyword/value DSN to be rejected")
	}
	if got := err.Error(); strings.Contains(got, "secret") {
		t.Errorf("error leaked credentials: %s", got)
	}
}
