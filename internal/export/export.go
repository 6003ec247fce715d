// Package export runs the full task/time export pipeline: scope resolution,
// task discovery, enrichment, time-entry reconciliation and row combination.
package export

import (
	"context"
	"errors"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MateusSouzaG/bitrix-exporter/internal/bitrix"
	"github.com/MateusSouzaG/bitrix-exporter/internal/domain"
	"github.com/MateusSouzaG/bitrix-exporter/internal/tasks"
	"github.com/MateusSouzaG/bitrix-exporter/internal/timelog"
)

// AggregateTimeLabel marks the synthetic row produced when a task has an
// aggregate total but no visible entry-level detail.
const AggregateTimeLabel = "Total time (entry detail unavailable)"

// aggregateComment explains the synthetic row to the spreadsheet reader.
const aggregateComment = "Webhook cannot see individual time entries; showing the task's aggregate total."

// ErrEmptyScope is returned before any network activity when the filters
// resolve to no collaborators.
var ErrEmptyScope = errors.New("no collaborators in scope")

// API is the slice of the Bitrix client the pipeline needs.
type API interface {
	Call(ctx context.Context, method string, params url.Values) (map[string]any, error)
	BatchCall(ctx context.Context, commands []bitrix.Command) []any
}

// Request describes one export.
type Request struct {
	Department   string `json:"department"`
	Name         string `json:"name"`
	Preset       string `json:"preset"`
	ActivityFrom string `json:"activity_from"`
	ActivityTo   string `json:"activity_to"`
	Status       string `json:"status"`
}

// Result is the outcome of one export run. The counters make partial
// results observable: Skipped much larger than zero signals a systemic
// decoding problem rather than normal missing-record noise.
type Result struct {
	RunID      string             `json:"run_id"`
	Rows       []domain.ExportRow `json:"rows"`
	ScopeSize  int                `json:"scope_size"`
	Discovered int                `json:"discovered"`
	Enriched   int                `json:"enriched"`
	Skipped    int                `json:"skipped"`
	Entries    int                `json:"entries"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
}

// ProgressFunc receives pipeline stage updates, e.g. for SSE push.
type ProgressFunc func(stage string, detail map[string]any)

// Directory is the roster surface the pipeline consumes.
type Directory interface {
	Lookup(id int) (domain.Collaborator, bool)
	ScopeIDs(department, nameSubstring string) []int
}

// Exporter wires the pipeline stages together.
type Exporter struct {
	API                   API
	Roster                Directory
	PageSize              int
	IndividualTimeEntries bool
	Timezone              string
	Progress              ProgressFunc
	Now                   func() time.Time
}

func (e *Exporter) progress(stage string, detail map[string]any) {
	if e.Progress != nil {
		e.Progress(stage, detail)
	}
}

func (e *Exporter) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Run executes one export request end to end.
func (e *Exporter) Run(ctx context.Context, req Request) (*Result, error) {
	result := &Result{
		RunID:     uuid.NewString(),
		StartedAt: e.now(),
	}

	scope := e.Roster.ScopeIDs(req.Department, req.Name)
	result.ScopeSize = len(scope)
	if len(scope) == 0 {
		return nil, ErrEmptyScope
	}

	from, to := e.resolveWindow(req)
	if from != "" || to != "" {
		log.Printf("activity window: %q .. %q", from, to)
	}

	e.progress("discovering", map[string]any{"run_id": result.RunID, "scope": len(scope)})
	discoverer := &tasks.Discoverer{API: e.API, PageSize: e.PageSize}
	idSet, err := discoverer.CollectIDs(ctx, scope, tasks.Filter{
		ActivityFrom: from,
		ActivityTo:   to,
		Status:       req.Status,
	})
	if err != nil {
		return nil, err
	}
	taskIDs := tasks.SortedIDs(idSet)
	result.Discovered = len(taskIDs)

	if len(taskIDs) == 0 {
		log.Printf("no tasks matched the filters")
		result.FinishedAt = e.now()
		return result, nil
	}

	e.progress("enriching", map[string]any{"run_id": result.RunID, "tasks": len(taskIDs)})
	enriched := tasks.Enrich(ctx, e.API, taskIDs, e.Roster)
	result.Enriched = len(enriched)
	result.Skipped = len(taskIDs) - len(enriched)
	if result.Skipped > 0 {
		log.Printf("%d of %d tasks could not be enriched", result.Skipped, len(taskIDs))
	}

	e.progress("fetching_time", map[string]any{"run_id": result.RunID, "tasks": len(enriched)})
	fetcher := &timelog.Fetcher{API: e.API, Individual: e.IndividualTimeEntries}
	entriesByTask := fetcher.FetchAll(ctx, taskIDs)

	result.Rows = CombineRows(enriched, entriesByTask, e.Roster)
	for _, list := range entriesByTask {
		result.Entries += len(list)
	}
	result.FinishedAt = e.now()

	e.progress("done", map[string]any{"run_id": result.RunID, "rows": len(result.Rows)})
	log.Printf("export produced %d row(s) from %d task(s)", len(result.Rows), len(enriched))
	return result, nil
}

// resolveWindow prefers a named preset over explicit bounds; explicit
// bounds are normalized to the API's expected textual form.
func (e *Exporter) resolveWindow(req Request) (from, to string) {
	tz := e.Timezone
	if tz == "" {
		tz = "-03:00"
	}
	if req.Preset != "" {
		if f, t, ok := PresetWindow(req.Preset, e.now(), tz); ok {
			return f, t
		}
		log.Printf("unknown date preset %q, ignoring", req.Preset)
	}
	return NormalizeISO8601(req.ActivityFrom, tz), NormalizeISO8601(req.ActivityTo, tz)
}

// CombineRows merges enriched tasks with their time entries into export
// rows. One row per positive-duration entry; a task whose entries all have
// zero duration gets a single row with empty attribution (zero-duration
// entries never name an actor); a task with no visible entries but an
// aggregate total gets one synthetic unattributed row; a task with neither
// gets one empty-detail row. Every task appears at least once.
func CombineRows(enriched []domain.Task, entriesByTask map[int][]map[string]any, dir tasks.Directory) []domain.ExportRow {
	var rows []domain.ExportRow

	for _, task := range enriched {
		processed := timelog.Process(entriesByTask[task.ID], dir)
		total := timelog.Total(processed)

		if len(processed) == 0 && task.TimeSpentInLogs != nil {
			total = timelog.Totals{Seconds: float64(*task.TimeSpentInLogs)}
			log.Printf("task %d: using aggregate time (%ds) as fallback", task.ID, *task.TimeSpentInLogs)
		}

		base := domain.ExportRow{
			TaskID:       task.ID,
			Title:        task.Title,
			Status:       task.Status,
			Deadline:     task.Deadline,
			CreatedAt:    FormatTimestamp(task.CreatedDate),
			Responsible:  task.ResponsibleName,
			Participants: strings.Join(task.AccompliceNames, ", "),
			TotalTime:    FormatDuration(total.Seconds),
			Departments:  task.Departments,
			ActivityDate: task.ActivityDate,
		}

		switch {
		case len(processed) > 0:
			withTime := make([]domain.TimeEntry, 0, len(processed))
			for _, entry := range processed {
				if entry.Seconds > 0 {
					withTime = append(withTime, entry)
				}
			}
			if len(withTime) == 0 {
				// Every entry was zero duration: one visible row, nobody
				// credited.
				rows = append(rows, base)
				continue
			}
			for _, entry := range withTime {
				row := base
				row.EntryTime = FormatDuration(float64(entry.Seconds))
				row.LoggedBy = entry.UserName
				row.LoggedAt = FormatTimestamp(entry.CreatedDate)
				row.EntryComment = entry.Comment
				rows = append(rows, row)
			}

		case task.TimeSpentInLogs != nil:
			row := base
			row.EntryTime = FormatDuration(float64(*task.TimeSpentInLogs))
			row.LoggedBy = AggregateTimeLabel
			row.EntryComment = aggregateComment
			rows = append(rows, row)

		default:
			rows = append(rows, base)
		}
	}

	return rows
}
