package rollup

import "fmt"

// Stage names the pipeline step an error came from.
type Stage string

const (
	StageScratch   Stage = "scratch"
	StageList      Stage = "list"
	StageFetch     Stage = "fetch"
	StageDecode    Stage = "decode"
	StageAggregate Stage = "aggregate"
	StagePartition Stage = "partition"
	StagePublish   Stage = "publish"
)

// StageError wraps a failure with the step and, where there is one, the
// object key involved.
type StageError struct {
	Stage Stage
	Key   string
	Err   error
}

func (e *StageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s %s: %v", e.Stage, e.Key, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
