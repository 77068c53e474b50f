package tpool

// Job is a single unit of work handed to a Pool. Run is called at most once,
// on whichever worker dequeues the job.
type Job interface {
	Run()
}

// JobFunc adapts a plain func to Job.
type JobFunc func()

func (f JobFunc) Run() {
	f()
}
