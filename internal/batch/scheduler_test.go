package batch

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseCron(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"0 22 * * *", false},   // 10 PM daily
		{"0 12 * * 1-5", false}, // noon weekdays
		{"*/5 * * * *", false},  // every 5 minutes
		{"invalid", true},
	}

	for _, tt := range tests {
		_, err := ParseCron(tt.expr)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseCron(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
		}
	}
}

func TestJobConfig_Validate(t *testing.T) {
	cfg := JobConfig{
		Name:       "weekly-fiscal",
		Cron:       "0 22 * * *",
		Department: "FISCAL",
		Preset:     "last_7_days",
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Valid config should not error: %v", err)
	}

	cfg.Name = ""
	if err := cfg.Validate(); err == nil {
		t.Error("Empty name should error")
	}

	cfg.Name = "weekly-fiscal"
	cfg.Cron = "not a cron"
	if err := cfg.Validate(); err == nil {
		t.Error("Bad cron expression should error")
	}
}

func TestJobConfig_DefaultPreset(t *testing.T) {
	cfg := JobConfig{Name: "j", Cron: "0 6 * * *"}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.Preset != "last_7_days" {
		t.Errorf("Preset = %q, want last_7_days default", cfg.Preset)
	}
}

func TestJobConfig_Request(t *testing.T) {
	cfg := JobConfig{
		Name:       "j",
		Cron:       "0 6 * * *",
		Department: "FISCAL",
		NameFilter: "Ana",
		Preset:     "last_30_days",
		Status:     "5",
	}

	req := cfg.Request()
	if req.Department != "FISCAL" || req.Name != "Ana" || req.Preset != "last_30_days" || req.Status != "5" {
		t.Errorf("Request() = %+v", req)
	}
}

func TestScheduler_NextRun(t *testing.T) {
	cfg := JobConfig{Name: "test", Cron: "0 22 * * *", Preset: "today"}

	sched, err := NewScheduler([]JobConfig{cfg})
	if err != nil {
		t.Fatal(err)
	}

	next := sched.NextRun("test")
	if next.IsZero() {
		t.Error("NextRun should return a time")
	}
	if !next.After(time.Now()) {
		t.Error("NextRun should be in the future")
	}
}

func TestScheduler_ShouldRun(t *testing.T) {
	cfg := JobConfig{Name: "test", Cron: "* * * * *", Preset: "today"}

	sched, err := NewScheduler([]JobConfig{cfg})
	if err != nil {
		t.Fatal(err)
	}

	// Mark as last run two minutes ago
	sched.lastRun["test"] = time.Now().Add(-2 * time.Minute)

	if !sched.ShouldRun("test") {
		t.Error("Should run after cron interval passed")
	}

	sched.MarkRunning("test")
	if sched.ShouldRun("test") {
		t.Error("Running job should not start again")
	}

	sched.MarkComplete("test")
	if sched.ShouldRun("test") {
		t.Error("Just-completed job should wait for the next slot")
	}
}

func TestLoadScheduleConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedule.toml")
	content := `
[[job]]
name = "fiscal-weekly"
cron = "0 6 * * 1"
department = "FISCAL"
preset = "last_week"
notify_on_complete = true

[[job]]
name = "all-monthly"
cron = "0 7 1 * *"
preset = "last_month"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadScheduleConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Jobs) != 2 {
		t.Fatalf("got %d jobs, want 2", len(cfg.Jobs))
	}
	if cfg.Jobs[0].Department != "FISCAL" || !cfg.Jobs[0].NotifyOnComplete {
		t.Errorf("job[0] = %+v", cfg.Jobs[0])
	}
}

func TestLoadScheduleConfig_MissingFile(t *testing.T) {
	cfg, err := LoadScheduleConfig(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Jobs) != 0 {
		t.Errorf("got %d jobs, want 0", len(cfg.Jobs))
	}
}

func TestLoadScheduleConfig_InvalidJob(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedule.toml")
	content := `
[[job]]
name = "broken"
cron = "not a cron"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadScheduleConfig(path); err == nil {
		t.Error("invalid cron should fail load")
	}
}
