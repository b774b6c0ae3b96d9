package scheduler

import (
	"context"
	"sync"
)

// Group starts and stops a set of tasks together.
type Group struct {
	tasks []*Task
}

func NewGroup(tasks ...*Task) *Group {
	return &Group{tasks: tasks}
}

func (g *Group) Add(t *Task) {
	g.tasks = append(g.tasks, t)
}

func (g *Group) Start(ctx context.Context) {
	for _, t := range g.tasks {
		t.Start(ctx)
	}
}

// Stop stops every task concurrently and returns once all of them have exited.
func (g *Group) Stop() {
	var wg sync.WaitGroup
	for _, t := range g.tasks {
		wg.Add(1)
		go func(t *Task) {
			defer wg.Done()
			t.Stop()
		}(t)
	}
	wg.Wait()
}
