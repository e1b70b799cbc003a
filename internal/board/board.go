// Package board derives dashboard summaries from the task registry.
package board

import (
	"sort"
	"time"

	"github.com/joescharf/taskboard/internal/models"
)

const (
	GridWeeks = 12
	DiaryDays = 30

	dateLayout = "2006-01-02"
)

// Summary counts tasks per status and reports free scheduler slots.
type Summary struct {
	Total            int                       `json:"total"`
	Counts           map[models.TaskStatus]int `json:"counts"`
	MaxParallelTasks int                       `json:"max_parallel_tasks"`
	SlotsAvailable   int                       `json:"slots_available"`
}

// Summarize computes the board summary for f.
func Summarize(f *models.TasksFile) *Summary {
	s := &Summary{
		Counts:           make(map[models.TaskStatus]int, len(models.TaskStatuses)),
		MaxParallelTasks: f.Config.MaxParallelTasks,
	}
	for _, st := range models.TaskStatuses {
		s.Counts[st] = 0
	}
	for _, t := range f.Tasks {
		s.Counts[t.Status]++
		s.Total++
	}
	s.SlotsAvailable = max(0, s.MaxParallelTasks-s.Counts[models.TaskStatusInProgress])
	return s
}

// Day is one cell of the contribution grid.
type Day struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
	Level int    `json:"level"` // 0-4
}

// DiaryEntry lists the tasks completed on one day.
type DiaryEntry struct {
	Date  string        `json:"date"`
	Tasks []models.Task `json:"tasks"`
}

// Productivity is the completion history shown on the board.
type Productivity struct {
	TotalCompleted int          `json:"total_completed"`
	Weeks          [][]Day      `json:"weeks"`
	Diary          []DiaryEntry `json:"diary"`
}

// CompletedByDate groups completed tasks by the UTC date of completed_at.
// Tasks without a parseable timestamp are ignored.
func CompletedByDate(tasks []models.Task) map[string][]models.Task {
	out := make(map[string][]models.Task)
	for _, t := range tasks {
		if t.Status != models.TaskStatusCompleted || t.CompletedAt == nil {
			continue
		}
		at, ok := parseTime(*t.CompletedAt)
		if !ok {
			continue
		}
		date := at.UTC().Format(dateLayout)
		out[date] = append(out[date], t)
	}
	for _, ts := range out {
		sort.SliceStable(ts, func(i, j int) bool {
			return *ts[i].CompletedAt < *ts[j].CompletedAt
		})
	}
	return out
}

// BuildProductivity returns a grid of GridWeeks*7 days ending at now and
// a diary of the last DiaryDays days, newest first, listing only days with
// completions.
func BuildProductivity(f *models.TasksFile, now time.Time) *Productivity {
	byDate := CompletedByDate(f.Tasks)
	today := now.UTC().Truncate(24 * time.Hour)

	p := &Productivity{Weeks: make([][]Day, 0, GridWeeks), Diary: []DiaryEntry{}}
	for _, ts := range byDate {
		p.TotalCompleted += len(ts)
	}

	start := today.AddDate(0, 0, -(GridWeeks*7 - 1))
	for w := range GridWeeks {
		week := make([]Day, 0, 7)
		for d := range 7 {
			date := start.AddDate(0, 0, w*7+d).Format(dateLayout)
			n := len(byDate[date])
			week = append(week, Day{Date: date, Count: n, Level: level(n)})
		}
		p.Weeks = append(p.Weeks, week)
	}

	for i := range DiaryDays {
		date := today.AddDate(0, 0, -i).Format(dateLayout)
		if ts := byDate[date]; len(ts) > 0 {
			p.Diary = append(p.Diary, DiaryEntry{Date: date, Tasks: ts})
		}
	}
	return p
}

// level buckets a daily count into a heat level.
func level(n int) int {
	switch {
	case n == 0:
		return 0
	case n <= 2:
		return 1
	case n <= 4:
		return 2
	case n <= 6:
		return 3
	default:
		return 4
	}
}

func parseTime(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", dateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
