package governor

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
)

// LaneRequest describes one checker lane invocation.
type LaneRequest struct {
	Lane            string
	// Command replaces the lane check with a lane maintenance command.
	Command         string
	TaskID          string
	JSON            bool
	WriteLog        bool
	CreateFollowups bool
}

// LaneOutput is what a lane process produced. Any exit code is a valid
// output; only failures to start are errors.
type LaneOutput struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// LaneRunner runs checker lanes.
type LaneRunner interface {
	Available(lane string) bool
	RunLane(ctx context.Context, req LaneRequest) (LaneOutput, error)
}

// ExecLaneRunner runs the lane wrappers installed in the workgraph directory.
type ExecLaneRunner struct {
	WgDir      string
	ProjectDir string
}

// Available reports whether the lane wrapper exists.
func (r ExecLaneRunner) Available(lane string) bool {
	info, err := os.Stat(filepath.Join(r.WgDir, lane))
	return err == nil && !info.IsDir()
}

// LaneArgs builds the wrapper arguments for req. The baseline lane takes
// `--dir <project> check`, uxdrift nests --dir under its wg subcommand and
// the rest accept --json before it.
func LaneArgs(req LaneRequest, projectDir string) []string {
	if req.Command == EnsureContractsCommand {
		return []string{"--dir", projectDir, EnsureContractsCommand, "--apply"}
	}
	var args []string
	switch req.Lane {
	case CoreLane:
		args = []string{"--dir", projectDir, "check", "--task", req.TaskID}
	case "uxdrift":
		args = []string{"wg", "--dir", projectDir, "check", "--task", req.TaskID}
	default:
		args = []string{"--dir", projectDir}
		if req.JSON && LaneSupportsJSON(req.Lane) {
			args = append(args, "--json")
		}
		args = append(args, "wg", "check", "--task", req.TaskID)
	}
	if req.WriteLog {
		args = append(args, "--write-log")
	}
	if req.CreateFollowups {
		args = append(args, "--create-followups")
	}
	if req.Lane == CoreLane && req.JSON {
		args = append(args, "--json")
	}
	return args
}

// RunLane executes the lane wrapper and captures its output.
func (r ExecLaneRunner) RunLane(ctx context.Context, req LaneRequest) (LaneOutput, error) {
	bin := filepath.Join(r.WgDir, req.Lane)
	cmd := exec.CommandContext(ctx, bin, LaneArgs(req, r.ProjectDir)...) // #nosec G204 -- lane names come from a fixed list
	cmd.Dir = r.ProjectDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := LaneOutput{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		out.ExitCode = exitErr.ExitCode()
		return out, nil
	}
	return out, err
}
