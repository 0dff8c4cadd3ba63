package engine

// evalQueue is one tick's rule evaluation queue. The base order is priority
// descending with declaration-order ties; TRIGGER_RULE pushes to the front
// so chained rules run before the next scheduled rule.
//
// INVARIANTS:
//   - A rule id is evaluated at most once per tick (visited set).
//   - depth[id] counts front-pushes along the chain that enqueued id;
//     base-queue rules have depth 0.
type evalQueue struct {
	ids     []string
	visited map[string]bool
	pushed  map[string]bool

	// depth and triggeredBy are recorded at push time for rules enqueued
	// via TRIGGER_RULE.
	depth       map[string]int
	triggeredBy map[string]string
}

func newEvalQueue(base []string) *evalQueue {
	ids := make([]string, len(base))
	copy(ids, base)
	return &evalQueue{
		ids:         ids,
		visited:     make(map[string]bool),
		pushed:      make(map[string]bool),
		depth:       make(map[string]int),
		triggeredBy: make(map[string]string),
	}
}

// pop removes and returns the next rule id. ok is false when drained.
func (q *evalQueue) pop() (id string, ok bool) {
	if len(q.ids) == 0 {
		return "", false
	}
	id = q.ids[0]
	q.ids = q.ids[1:]
	return id, true
}

// pushFront enqueues a chained rule ahead of all scheduled rules.
func (q *evalQueue) pushFront(id, byRule string, depth int) {
	q.ids = append([]string{id}, q.ids...)
	q.pushed[id] = true
	q.depth[id] = depth
	q.triggeredBy[id] = byRule
}

// wasPushed reports whether id was already front-pushed this tick. A second
// trigger before the first evaluates is a no-op, same as re-triggering an
// evaluated rule.
func (q *evalQueue) wasPushed(id string) bool {
	return q.pushed[id]
}

// markVisited records that id has been evaluated this tick.
func (q *evalQueue) markVisited(id string) {
	q.visited[id] = true
}

// wasVisited reports whether id has already been evaluated this tick.
func (q *evalQueue) wasVisited(id string) bool {
	return q.visited[id]
}

// depthOf returns the chain depth recorded when id was enqueued.
// Base-queue rules have depth 0.
func (q *evalQueue) depthOf(id string) int {
	return q.depth[id]
}

// triggerSource returns the id of the rule that front-pushed id, or "".
func (q *evalQueue) triggerSource(id string) string {
	return q.triggeredBy[id]
}
