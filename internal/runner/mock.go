package runner

import (
	"context"
	"strings"
	"sync"
)

// Mock is a test double for Runner. Results are scripted per command
// line; unmatched commands get DefaultResult.
type Mock struct {
	mu            sync.Mutex
	Results       map[string]Result // joined "name arg arg..." -> result
	Sequences     map[string][]Result
	DefaultResult Result
	Calls         []Call
}

// Call records one Run invocation.
type Call struct {
	Class Class
	Name  string
	Args  []string
}

// Line returns the recorded call as a single command line.
func (c Call) Line() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// NewMock creates a Mock whose unscripted commands succeed with empty
// output.
func NewMock() *Mock {
	return &Mock{
		Results:       make(map[string]Result),
		Sequences:     make(map[string][]Result),
		DefaultResult: Result{OK: true},
	}
}

// Script registers the result for an exact command line. A registered
// line that is a prefix of the actual command also matches, which keeps
// long GraphQL invocations scriptable by their leading words.
func (m *Mock) Script(line string, res Result) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Results[line] = res
	return m
}

// ScriptSeq queues results consumed one per matching call, so a
// repeated poll can return different answers over time. The queue
// matches the exact line only; once drained, Script and DefaultResult
// take over for that line.
func (m *Mock) ScriptSeq(line string, results ...Result) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sequences[line] = append(m.Sequences[line], results...)
	return m
}

// Run implements Runner.
func (m *Mock) Run(_ context.Context, class Class, name string, args ...string) Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	call := Call{Class: class, Name: name, Args: args}
	m.Calls = append(m.Calls, call)

	line := call.Line()
	if queue, ok := m.Sequences[line]; ok && len(queue) > 0 {
		res := queue[0]
		if len(queue) == 1 {
			delete(m.Sequences, line)
		} else {
			m.Sequences[line] = queue[1:]
		}
		return res
	}
	if res, ok := m.Results[line]; ok {
		return res
	}

	// Longest registered prefix wins.
	var (
		best    string
		bestRes Result
		found   bool
	)
	for key, res := range m.Results {
		if strings.HasPrefix(line, key) && len(key) > len(best) {
			best, bestRes, found = key, res, true
		}
	}
	if found {
		return bestRes
	}
	return m.DefaultResult
}

// CallLines returns every recorded invocation as command lines, in
// order.
func (m *Mock) CallLines() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	lines := make([]string, len(m.Calls))
	for i, c := range m.Calls {
		lines[i] = c.Line()
	}
	return lines
}

var _ Runner = (*Mock)(nil)
