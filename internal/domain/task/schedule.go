package task

import "sort"

// Less orders a before b by priority rank, then by creation time.
func Less(a, b *Task) bool {
	ra, rb := a.Priority.Rank(), b.Priority.Rank()
	if ra != rb {
		return ra < rb
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

// Sort stable-sorts tasks in scheduling order.
func Sort(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		return Less(&tasks[i], &tasks[j])
	})
}

// DependenciesMet reports whether every dependency of t is completed in
// tasks. A dependency that is not in tasks counts as unmet.
func DependenciesMet(t *Task, byID map[string]*Task) bool {
	for _, dep := range t.Dependencies {
		d, ok := byID[dep]
		if !ok || d.Status != StatusCompleted {
			return false
		}
	}
	return true
}

// UnmetDependencies returns the ids of t's dependencies that are missing or
// not completed.
func UnmetDependencies(t *Task, byID map[string]*Task) []string {
	var unmet []string
	for _, dep := range t.Dependencies {
		d, ok := byID[dep]
		if !ok || d.Status != StatusCompleted {
			unmet = append(unmet, dep)
		}
	}
	return unmet
}

// Needed returns the ids that some task in tasks which is not completed
// depends on. Dropping a completed task in this set strands its dependents.
func Needed(tasks []Task) map[string]bool {
	needed := make(map[string]bool)
	for i := range tasks {
		if tasks[i].Status == StatusCompleted {
			continue
		}
		for _, dep := range tasks[i].Dependencies {
			needed[dep] = true
		}
	}
	return needed
}

// Index maps every task id to its task.
func Index(tasks []Task) map[string]*Task {
	byID := make(map[string]*Task, len(tasks))
	for i := range tasks {
		byID[tasks[i].ID] = &tasks[i]
	}
	return byID
}

// Ready returns the tasks whose status is ready, that carry no block reason
// and whose dependencies are all completed, in scheduling order. The input
// slice is not modified.
func Ready(tasks []Task) []Task {
	byID := Index(tasks)
	var ready []Task
	for i := range tasks {
		t := &tasks[i]
		if t.Status != StatusReady || len(t.BlockedBy) > 0 {
			continue
		}
		if !DependenciesMet(t, byID) {
			continue
		}
		ready = append(ready, *t)
	}
	Sort(ready)
	return ready
}

// Next returns the head of Ready, or false when nothing is eligible.
func Next(tasks []Task) (Task, bool) {
	ready := Ready(tasks)
	if len(ready) == 0 {
		return Task{}, false
	}
	return ready[0], true
}

// InProgressCount returns the number of tasks currently in progress.
func InProgressCount(tasks []Task) int {
	count := 0
	for i := range tasks {
		if tasks[i].Status == StatusInProgress {
			count++
		}
	}
	return count
}

// Dependents returns the ids of tasks that list id as a dependency.
func Dependents(tasks []Task, id string) []string {
	var out []string
	for i := range tasks {
		for _, dep := range tasks[i].Dependencies {
			if dep == id {
				out = append(out, tasks[i].ID)
				break
			}
		}
	}
	return out
}

// Counts aggregates tasks by priority and status.
type Counts struct {
	ByPriority map[Priority]int `json:"byPriority"`
	ByStatus   map[Status]int   `json:"byStatus"`
}

// Count returns per-priority and per-status totals. Every known key is
// present, zero or not.
func Count(tasks []Task) Counts {
	c := Counts{
		ByPriority: make(map[Priority]int, len(Priorities)),
		ByStatus:   make(map[Status]int, len(Statuses)),
	}
	for _, p := range Priorities {
		c.ByPriority[p] = 0
	}
	for _, s := range Statuses {
		c.ByStatus[s] = 0
	}
	for i := range tasks {
		c.ByPriority[tasks[i].Priority]++
		c.ByStatus[tasks[i].Status]++
	}
	return c
}
