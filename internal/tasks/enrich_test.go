package tasks

import (
	"context"
	"strconv"
	"testing"

	"github.com/MateusSouzaG/bitrix-exporter/internal/bitrix"
	"github.com/MateusSouzaG/bitrix-exporter/internal/domain"
)

// mapDir is an in-memory Directory.
type mapDir map[int]domain.Collaborator

func (d mapDir) Lookup(id int) (domain.Collaborator, bool) {
	c, ok := d[id]
	return c, ok
}

func taskSlot(fields map[string]any) any {
	return map[string]any{"result": map[string]any{"task": fields}}
}

func TestEnrich_SkipsAbsentSlots(t *testing.T) {
	api := &fakeCaller{batch: func(commands []bitrix.Command) []any {
		slots := make([]any, len(commands))
		for i, cmd := range commands {
			id := cmd.Params.Get("taskId")
			if id == "5003" {
				continue // permission-denied slot arrives nil
			}
			slots[i] = taskSlot(map[string]any{"id": id, "title": "task " + id})
		}
		return slots
	}}

	got := Enrich(context.Background(), api, []int{5001, 5002, 5003}, mapDir{})
	if len(got) != 2 {
		t.Fatalf("got %d tasks, want 2", len(got))
	}
	if got[0].ID != 5001 || got[1].ID != 5002 {
		t.Errorf("wrong tasks survived: %+v", got)
	}
}

func TestEnrich_UnwrapsBothEnvelopes(t *testing.T) {
	api := &fakeCaller{batch: func(commands []bitrix.Command) []any {
		return []any{
			// Single-level form.
			map[string]any{"task": map[string]any{"id": "1", "title": "flat"}},
			// Batch form with the extra result level.
			taskSlot(map[string]any{"id": "2", "title": "nested"}),
		}
	}}

	got := Enrich(context.Background(), api, []int{1, 2}, mapDir{})
	if len(got) != 2 {
		t.Fatalf("got %d tasks, want 2", len(got))
	}
	if got[0].Title != "flat" || got[1].Title != "nested" {
		t.Errorf("envelopes not unwrapped: %+v", got)
	}
}

func TestEnrich_RequestedIDFallback(t *testing.T) {
	api := &fakeCaller{batch: func(commands []bitrix.Command) []any {
		return []any{taskSlot(map[string]any{"title": "no id field"})}
	}}

	got := Enrich(context.Background(), api, []int{321}, mapDir{})
	if len(got) != 1 {
		t.Fatal("task dropped")
	}
	if got[0].ID != 321 {
		t.Errorf("ID = %d, want requested id 321", got[0].ID)
	}
}

func TestBuildTask_ResolvesNames(t *testing.T) {
	dir := mapDir{
		10: {ID: 10, Name: "Ana Souza", Department: "FISCAL"},
		11: {ID: 11, Name: "Bruno Lima", Department: "CONTÁBIL"},
	}

	task := buildTask(map[string]any{
		"id":            "900",
		"title":         "Fechamento",
		"responsibleId": "10",
		"accomplices":   []any{"11", "12"},
	}, 900, dir)

	if task.ResponsibleName != "Ana Souza" {
		t.Errorf("ResponsibleName = %q", task.ResponsibleName)
	}
	if len(task.AccompliceNames) != 2 {
		t.Fatalf("AccompliceNames = %v", task.AccompliceNames)
	}
	if task.AccompliceNames[0] != "Bruno Lima" {
		t.Errorf("AccompliceNames[0] = %q", task.AccompliceNames[0])
	}
	// Unknown ids keep a stable synthetic label.
	if task.AccompliceNames[1] != "USER_12" {
		t.Errorf("AccompliceNames[1] = %q, want USER_12", task.AccompliceNames[1])
	}
	if task.Departments != "CONTÁBIL, FISCAL" {
		t.Errorf("Departments = %q", task.Departments)
	}
}

func TestBuildTask_UnderscoreVariants(t *testing.T) {
	task := buildTask(map[string]any{
		"ID":                 "55",
		"TITLE":              "snake case payload",
		"RESPONSIBLE_ID":     "10",
		"TIME_SPENT_IN_LOGS": "5400",
		"ACTIVITY_DATE":      "2026-08-10T12:00:00-03:00",
		"DATE_CREATE":        "2026-08-01T08:00:00-03:00",
	}, 55, mapDir{})

	if task.ResponsibleID != 10 {
		t.Errorf("ResponsibleID = %d", task.ResponsibleID)
	}
	if task.TimeSpentInLogs == nil || *task.TimeSpentInLogs != 5400 {
		t.Errorf("TimeSpentInLogs = %v", task.TimeSpentInLogs)
	}
	if task.ActivityDate == "" {
		t.Error("ACTIVITY_DATE variant not read")
	}
	if task.CreatedDate == "" {
		t.Error("DATE_CREATE variant not read")
	}
}

func TestBuildTask_ZeroAggregateIgnored(t *testing.T) {
	task := buildTask(map[string]any{
		"id":              "1",
		"timeSpentInLogs": "0",
	}, 1, mapDir{})

	if task.TimeSpentInLogs != nil {
		t.Errorf("zero aggregate should stay nil, got %d", *task.TimeSpentInLogs)
	}
}

func TestEnrich_IssuesOneCommandPerTask(t *testing.T) {
	var gotIDs []string
	api := &fakeCaller{batch: func(commands []bitrix.Command) []any {
		slots := make([]any, len(commands))
		for i, cmd := range commands {
			gotIDs = append(gotIDs, cmd.Params.Get("taskId"))
			slots[i] = taskSlot(map[string]any{"id": cmd.Params.Get("taskId")})
		}
		return slots
	}}

	ids := []int{3, 1, 2}
	got := Enrich(context.Background(), api, ids, mapDir{})
	if len(got) != 3 {
		t.Fatalf("got %d tasks", len(got))
	}
	for i, id := range ids {
		if gotIDs[i] != strconv.Itoa(id) {
			t.Errorf("command %d requested task %s, want %d", i, gotIDs[i], id)
		}
	}
}

func TestSortedIDs(t *testing.T) {
	ids := map[int]struct{}{9: {}, 1: {}, 5: {}}
	got := SortedIDs(ids)
	want := []int{1, 5, 9}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("SortedIDs = %v, want %v", got, want)
		}
	}
}
