package main

import (
	"path/filepath"
	"testing"
)

func run(t *testing.T, args ...string) error {
	t.Helper()
	root := newRootCmd()
	root.SetArgs(args)
	return root.Execute()
}

func TestSeedStepReport(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "econ.db")

	if err := run(t, "seed", "--dsn", dsn, "--towns", "4"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := run(t, "seed", "--dsn", dsn); err == nil {
		t.Fatalf("second seed into the same store should fail")
	}
	if err := run(t, "step", "--dsn", dsn, "--ticks", "3"); err != nil {
		t.Fatalf("step: %v", err)
	}
	if err := run(t, "report", "--dsn", dsn); err != nil {
		t.Fatalf("summary report: %v", err)
	}
	if err := run(t, "report", "--dsn", dsn, "--location", "1"); err != nil {
		t.Fatalf("location report: %v", err)
	}
	if err := run(t, "report", "--dsn", dsn, "--location", "999"); err == nil {
		t.Fatalf("report for a missing location should fail")
	}
	if err := run(t, "step", "--dsn", dsn, "--ticks", "0"); err == nil {
		t.Fatalf("zero ticks should be rejected")
	}
}
