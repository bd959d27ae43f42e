package lifecycle

// Signal is an intent delivered to the [Coordinator]. The concrete types are
// [StartSignal], [ProgressSignal], [StopSignal] and [TimeoutSignal].
type Signal interface {
	signal()
}

// StartSignal enters the Active phase. Labels and queue depth always overwrite the stored values.
type StartSignal struct {
	Primary    string
	Secondary  string
	QueueDepth int
}

// ProgressSignal reports progress while Active.
//
// A nil or empty label keeps the previous label. A nil QueueDepth keeps the previous depth while an explicit
// zero sets it to zero. Done and Total are always applied, except that Done never moves backwards within a job.
type ProgressSignal struct {
	Primary    *string
	Secondary  *string
	Done       int64
	Total      int64
	QueueDepth *int
}

// StopSignal ends the job from any phase.
type StopSignal struct{}

// TimeoutSignal is delivered when the platform's background runtime budget is spent.
// Ack, when non-nil, is closed once cleanup has finished.
type TimeoutSignal struct {
	Ack chan<- struct{}
}

func (StartSignal) signal()    {}
func (ProgressSignal) signal() {}
func (StopSignal) signal()     {}
func (TimeoutSignal) signal()  {}

// Ptr returns a pointer to v, for the optional fields of [ProgressSignal].
func Ptr[T any](v T) *T { return &v }
