package wg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/speedrift/driftdriver/internal/storage"
	"github.com/speedrift/driftdriver/internal/types"
	"github.com/speedrift/driftdriver/internal/workgraph"
)

type commandCall struct {
	Name string
	Args []string
}

type fakeRunner struct {
	calls  []commandCall
	stubs  map[string][]byte
	errors map[string]error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		stubs:  make(map[string][]byte),
		errors: make(map[string]error),
	}
}

func (f *fakeRunner) Script(name string, args []string, output []byte) {
	f.stubs[stubKey(name, args)] = output
}

func (f *fakeRunner) Fail(name string, args []string, stderr string) {
	f.errors[stubKey(name, args)] = &CommandError{
		Name:   name,
		Args:   args,
		Stderr: stderr,
		Err:    errors.New("exit status 1"),
	}
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, commandCall{Name: name, Args: append([]string(nil), args...)})
	key := stubKey(name, args)
	if err, ok := f.errors[key]; ok {
		return nil, err
	}
	output, ok := f.stubs[key]
	if !ok {
		return nil, fmt.Errorf("missing stub for command %s %s", name, strings.Join(args, " "))
	}
	return output, nil
}

func stubKey(name string, args []string) string {
	return fmt.Sprintf("%s\x00%s", name, strings.Join(args, "\x00"))
}

const wgDir = "/proj/.workgraph"

func newTestStore(r Runner) *Store {
	return New(workgraph.Workgraph{Dir: wgDir, ProjectDir: "/proj"}, "", r)
}

func TestShowTaskParsesObjectAndArray(t *testing.T) {
	runner := newFakeRunner()
	runner.Script("wg", []string{"--dir", wgDir, "show", "a", "--json"}, []byte(`{"id":"a","title":"A","status":"open"}`))
	runner.Script("wg", []string{"--dir", wgDir, "show", "b", "--json"}, []byte(`[{"id":"b","title":"B","status":"done"}]`))
	runner.Script("wg", []string{"--dir", wgDir, "show", "c", "--json"}, []byte(`[]`))
	store := newTestStore(runner)
	ctx := context.Background()

	a, err := store.ShowTask(ctx, "a")
	if err != nil || a.Title != "A" {
		t.Fatalf("ShowTask(a) = %+v, %v", a, err)
	}
	b, err := store.ShowTask(ctx, "b")
	if err != nil || b.Status != types.StatusDone {
		t.Fatalf("ShowTask(b) = %+v, %v", b, err)
	}
	if _, err := store.ShowTask(ctx, "c"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("ShowTask(c) error = %v, want ErrNotFound", err)
	}
}

func TestShowTaskMapsErrors(t *testing.T) {
	runner := newFakeRunner()
	runner.Fail("wg", []string{"--dir", wgDir, "show", "gone", "--json"}, "Error: Task 'gone' not found")
	runner.Script("wg", []string{"--dir", wgDir, "show", "junk", "--json"}, []byte("nope"))
	store := newTestStore(runner)
	ctx := context.Background()

	if _, err := store.ShowTask(ctx, "gone"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("not-found stderr error = %v", err)
	}
	_, err := store.ShowTask(ctx, "junk")
	if err == nil || errors.Is(err, storage.ErrNotFound) {
		t.Errorf("invalid JSON error = %v, want a parse error", err)
	}
}

func TestCreateTaskArgs(t *testing.T) {
	runner := newFakeRunner()
	args := []string{
		"--dir", wgDir, "add", "breaker: x", "--id", "drift-breaker-x",
		"--blocked-by", "x", "-d", "desc", "-t", "drift", "-t", "breaker",
	}
	runner.Script("wg", args, nil)
	store := newTestStore(runner)

	id, err := store.CreateTask(context.Background(), &types.NewTask{
		ID:          "drift-breaker-x",
		Title:       "breaker: x",
		Description: "desc",
		BlockedBy:   []string{"x"},
		Tags:        []string{"drift", "breaker"},
	})
	if err != nil || id != "drift-breaker-x" {
		t.Fatalf("CreateTask = %q, %v", id, err)
	}
	if !reflect.DeepEqual(runner.calls[0].Args, args) {
		t.Errorf("args = %v", runner.calls[0].Args)
	}
}

func TestCreateTaskAlreadyExists(t *testing.T) {
	runner := newFakeRunner()
	runner.Fail("wg", []string{"--dir", wgDir, "add", "t", "--id", "dup"}, "Error: task with ID 'dup' already exists")
	store := newTestStore(runner)

	_, err := store.CreateTask(context.Background(), &types.NewTask{ID: "dup", Title: "t"})
	if !errors.Is(err, storage.ErrAlreadyExists) {
		t.Errorf("CreateTask error = %v, want ErrAlreadyExists", err)
	}
}

func TestMutationsArgs(t *testing.T) {
	runner := newFakeRunner()
	runner.Script("wg", []string{"--dir", wgDir, "abandon", "a"}, nil)
	runner.Script("wg", []string{"--dir", wgDir, "reschedule", "b", "--after", "24"}, nil)
	runner.Script("wg", []string{"--dir", wgDir, "log", "c", "hello world"}, nil)
	runner.Fail("wg", []string{"--dir", wgDir, "abandon", "ghost"}, "task not found")
	store := newTestStore(runner)
	ctx := context.Background()

	if err := store.AbandonTask(ctx, "a"); err != nil {
		t.Errorf("AbandonTask: %v", err)
	}
	if err := store.RescheduleTask(ctx, "b", 24); err != nil {
		t.Errorf("RescheduleTask: %v", err)
	}
	if err := store.LogMessage(ctx, "c", "hello world"); err != nil {
		t.Errorf("LogMessage: %v", err)
	}
	if err := store.AbandonTask(ctx, "ghost"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("AbandonTask(ghost) error = %v", err)
	}
}

func TestLoadTasksReadsGraphFile(t *testing.T) {
	project := t.TempDir()
	dir := filepath.Join(project, workgraph.DirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	graph := `{"type":"task","id":"a","title":"A"}` + "\n"
	if err := os.WriteFile(filepath.Join(dir, workgraph.GraphFile), []byte(graph), 0o644); err != nil {
		t.Fatal(err)
	}
	store := New(workgraph.Workgraph{Dir: dir, ProjectDir: project}, "", newFakeRunner())
	tasks, err := store.LoadTasks(context.Background())
	if err != nil || len(tasks) != 1 {
		t.Fatalf("LoadTasks = %v, %v", tasks, err)
	}

	missing := New(workgraph.Workgraph{Dir: filepath.Join(t.TempDir(), ".workgraph")}, "", newFakeRunner())
	if _, err := missing.LoadTasks(context.Background()); !errors.Is(err, storage.ErrUnavailable) {
		t.Errorf("missing graph error = %v, want ErrUnavailable", err)
	}
}

func TestExecRunnerMissingBinary(t *testing.T) {
	_, err := ExecRunner{}.Run(context.Background(), "definitely-not-a-real-wg-binary")
	if !errors.Is(err, storage.ErrUnavailable) {
		t.Errorf("missing binary error = %v, want ErrUnavailable", err)
	}
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Errorf("error %T is not a *CommandError", err)
	}
}
