package game

import (
	"log/slog"
	"sort"
)

// The location graph is an undirected adjacency map living inside World.
// Nodes are created lazily alongside their locations and never removed;
// edges only change through explicit connection updates. Symmetry is an
// invariant: a in graph[b] iff b in graph[a].

func (w *World) connectLocked(a, b string) bool {
	w.getOrCreateLocationLocked(a)
	w.getOrCreateLocationLocked(b)

	if _, ok := w.graph[a][b]; ok {
		return false
	}
	w.graph[a][b] = struct{}{}
	w.graph[b][a] = struct{}{}
	slog.Info("connection created", "a", a, "b", b)
	return true
}

func (w *World) disconnectLocked(a, b string) {
	w.getOrCreateLocationLocked(a)
	w.getOrCreateLocationLocked(b)

	delete(w.graph[a], b)
	delete(w.graph[b], a)
	slog.Info("connection destroyed", "a", a, "b", b)
}

// componentLocked runs a breadth-first traversal from start. The result
// always contains start, even when it has no node in the graph yet, and is
// sorted so group keys are stable.
func (w *World) componentLocked(start string) []string {
	if _, ok := w.graph[start]; !ok {
		return []string{start}
	}

	visited := map[string]struct{}{}
	queue := []string{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if _, ok := visited[cur]; ok {
			continue
		}
		visited[cur] = struct{}{}
		for neighbor := range w.graph[cur] {
			if _, ok := visited[neighbor]; !ok {
				queue = append(queue, neighbor)
			}
		}
	}

	names := make([]string, 0, len(visited))
	for name := range visited {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Connect adds an undirected edge, creating both locations on demand.
// Idempotent.
func (w *World) Connect(a, b string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.connectLocked(a, b)
}

// Disconnect removes an undirected edge. Removing a missing edge is a no-op.
func (w *World) Disconnect(a, b string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.disconnectLocked(a, b)
}

// ConnectedComponent returns every location reachable from start, including
// start itself.
func (w *World) ConnectedComponent(start string) []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.componentLocked(start)
}

// Neighbors returns the locations directly connected to name.
func (w *World) Neighbors(name string) []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	var names []string
	for neighbor := range w.graph[name] {
		names = append(names, neighbor)
	}
	sort.Strings(names)
	return names
}
