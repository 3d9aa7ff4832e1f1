package domain

// Write is one logical mutation: the documents that must become visible
// together. The store applies a set of Writes in a single transaction.
type Write struct {
	Task      *Task
	Extension *TaskExtension
	Archive   *Task // pre-delete task body, kept verbatim
	Audit     *AuditEntry
	Activity  *ActivityEntry
}

// Ops counts the row writes this mutation costs, for callers chunking
// work under a per-transaction write limit.
func (w Write) Ops() int {
	n := 0
	if w.Task != nil {
		n++
	}
	if w.Extension != nil {
		n++
	}
	if w.Archive != nil {
		n++
	}
	if w.Audit != nil {
		n++
	}
	if w.Activity != nil {
		n++
	}
	return n
}
