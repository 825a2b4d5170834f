package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
)

func TestRun_MigrateVersionsRuns(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.db")

	var out bytes.Buffer
	if err := run(ctx, path, []string{"migrate"}, &out); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if !strings.Contains(out.String(), "migrations applied") {
		t.Fatalf("migrate output = %q", out.String())
	}

	out.Reset()
	if err := run(ctx, path, []string{"versions"}, &out); err != nil {
		t.Fatalf("versions: %v", err)
	}
	if got := strings.Fields(out.String()); len(got) != 2 || got[0] != "0001" || got[1] != "0002" {
		t.Fatalf("versions = %v", got)
	}

	out.Reset()
	if err := run(ctx, path, []string{"runs", "5"}, &out); err != nil {
		t.Fatalf("runs: %v", err)
	}
	if !strings.HasPrefix(out.String(), "ID") {
		t.Fatalf("runs output = %q", out.String())
	}
}

func TestRun_Errors(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.db")

	tests := []struct {
		name string
		args []string
	}{
		{name: "no command", args: nil},
		{name: "unknown command", args: []string{"vacuum"}},
		{name: "bad limit", args: []string{"runs", "-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := run(ctx, path, tt.args, &bytes.Buffer{}); err == nil {
				t.Fatalf("run(%v) error = nil", tt.args)
			}
		})
	}
}
