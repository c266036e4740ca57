// Package workgraph locates a project's .workgraph directory and reads its
// graph.jsonl task log.
package workgraph

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/speedrift/driftdriver/internal/debug"
	"github.com/speedrift/driftdriver/internal/types"
)

const (
	// DirName is the workgraph directory inside a project.
	DirName = ".workgraph"
	// GraphFile is the task log inside the workgraph directory.
	GraphFile = "graph.jsonl"
)

// ErrNotFound is returned when no workgraph can be located.
var ErrNotFound = errors.New("workgraph not found")

// Workgraph names a located workgraph.
type Workgraph struct {
	Dir        string
	ProjectDir string
}

// GraphPath returns the path of graph.jsonl.
func (w Workgraph) GraphPath() string {
	return filepath.Join(w.Dir, GraphFile)
}

func hasGraph(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, GraphFile))
	return err == nil && !info.IsDir()
}

func at(dir string) Workgraph {
	return Workgraph{Dir: dir, ProjectDir: filepath.Dir(dir)}
}

// Find locates the workgraph. explicit may name a project root or the
// .workgraph directory itself; when it holds no graph, its parents are
// searched. With no explicit path the search starts at cwd.
func Find(explicit, cwd string) (Workgraph, error) {
	if explicit != "" {
		abs, err := filepath.Abs(explicit)
		if err != nil {
			return Workgraph{}, fmt.Errorf("resolve %s: %w", explicit, err)
		}
		dir := abs
		if filepath.Base(dir) != DirName {
			dir = filepath.Join(dir, DirName)
		}
		if hasGraph(dir) {
			return at(dir), nil
		}
		if wg, ok := walkUp(filepath.Dir(abs)); ok {
			return wg, nil
		}
		return Workgraph{}, fmt.Errorf("%w from %s", ErrNotFound, explicit)
	}

	if wg, ok := walkUp(cwd); ok {
		return wg, nil
	}
	return Workgraph{}, fmt.Errorf("%w: could not find %s/%s; pass --dir", ErrNotFound, DirName, GraphFile)
}

func walkUp(start string) (Workgraph, bool) {
	dir := start
	for {
		candidate := filepath.Join(dir, DirName)
		if hasGraph(candidate) {
			return at(candidate), true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return Workgraph{}, false
		}
		dir = parent
	}
}

// graphLine is one graph.jsonl record. Only records of type "task" are tasks.
type graphLine struct {
	Type string `json:"type"`
	types.Task
}

// ReadTasks decodes a graph.jsonl stream. Blank lines, malformed lines,
// non-task records and records without an id are skipped. Repeated ids are
// all returned; graph.NewSnapshot keeps the last.
func ReadTasks(r io.Reader) ([]*types.Task, error) {
	var tasks []*types.Task
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024) // 10MB max line size

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec graphLine
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			debug.Logf("workgraph: skipping line %d: %v\n", lineNum, err)
			continue
		}
		if rec.Type != "task" || rec.ID == "" {
			continue
		}
		t := rec.Task
		tasks = append(tasks, &t)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return tasks, nil
}

// LoadTasks reads the graph file of w.
func (w Workgraph) LoadTasks() ([]*types.Task, error) {
	// #nosec G304 -- path is the located graph file
	f, err := os.Open(w.GraphPath())
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tasks, err := ReadTasks(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", GraphFile, err)
	}
	return tasks, nil
}
