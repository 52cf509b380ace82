package datarecording

import (
	"os"
	"strings"
	"time"
)

// ExecTableName is the table that holds the ExecInfo rows.
const ExecTableName = "exec_info"

const execTimeLayout = "2006-01-02 15:04:05.000000000"

// ExecInfo is one property of a program run, such as its command line.
type ExecInfo struct {
	Property string
	Value    string
}

// An ExecRecorder writes facts about the current program run next to the
// data recorded by the run, so that a database can be traced back to the
// command that produced it.
type ExecRecorder struct {
	recorder DataRecorder
	entries  []ExecInfo
}

// NewExecRecorder creates the exec_info table in recorder.
func NewExecRecorder(recorder DataRecorder) *ExecRecorder {
	recorder.CreateTable(ExecTableName, ExecInfo{})

	return &ExecRecorder{recorder: recorder}
}

// Start notes the start time, the command line and the working directory.
func (e *ExecRecorder) Start() {
	e.Add("Start Time", time.Now().Format(execTimeLayout))
	e.Add("Command", strings.Join(os.Args, " "))

	cwd, err := os.Getwd()
	if err != nil {
		panic(err)
	}

	e.Add("Working Directory", cwd)
}

// Add notes an extra property of the run.
func (e *ExecRecorder) Add(property, value string) {
	e.entries = append(e.entries, ExecInfo{Property: property, Value: value})
}

// End notes the end time and writes all the properties.
func (e *ExecRecorder) End() {
	e.Add("End Time", time.Now().Format(execTimeLayout))

	for _, entry := range e.entries {
		e.recorder.InsertData(ExecTableName, entry)
	}

	e.entries = nil

	e.recorder.Flush()
}
