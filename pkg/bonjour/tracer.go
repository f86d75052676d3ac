package bonjour

// Tracer observes entity lifecycles. Implementations must be safe for
// concurrent use; calls arrive from caller goroutines and runner goroutines.
type Tracer interface {
	OperationStarted(kind Kind)
	OperationFailed(kind Kind, err error)
	ReplyFailed(kind Kind, err error)
	RunnerExited(kind Kind, errored bool)
	PeersReconciled(added, removed, total int)
}

type nopTracer struct{}

func (nopTracer) OperationStarted(Kind)         {}
func (nopTracer) OperationFailed(Kind, error)   {}
func (nopTracer) ReplyFailed(Kind, error)       {}
func (nopTracer) RunnerExited(Kind, bool)       {}
func (nopTracer) PeersReconciled(int, int, int) {}
