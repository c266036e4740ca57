package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"

	"rsc.io/script"
	"rsc.io/script/scripttest"
)

// runAsMainEnv makes the test binary behave as the driftdriver CLI so the
// scripts in testdata drive the real command tree.
const runAsMainEnv = "DRIFTDRIVER_TEST_RUN_MAIN"

func TestMain(m *testing.M) {
	if os.Getenv(runAsMainEnv) == "1" {
		main()
		return
	}
	os.Exit(m.Run())
}

func TestScripts(t *testing.T) {
	if testing.Short() {
		t.Skip("script tests re-execute the binary")
	}
	exe, err := os.Executable()
	if err != nil {
		t.Fatalf("locate test binary: %v", err)
	}

	engine := script.NewEngine()
	engine.Cmds["driftdriver"] = driftdriverCmd(exe)

	env := []string{
		runAsMainEnv + "=1",
		"HOME=" + t.TempDir(),
		"PATH=" + os.Getenv("PATH"),
		"NO_COLOR=1",
	}
	scripttest.Test(t, context.Background(), engine, env, "testdata/*.txt")
}

// driftdriverCmd runs the CLI and appends "[exit N]" to its stderr so
// scripts can assert the exit code.
func driftdriverCmd(exe string) script.Cmd {
	return script.Command(
		script.CmdUsage{Summary: "run the driftdriver CLI", Args: "args..."},
		func(s *script.State, args ...string) (script.WaitFunc, error) {
			cmd := exec.CommandContext(s.Context(), exe, args...) // #nosec G204 -- test binary
			cmd.Dir = s.Getwd()
			cmd.Env = s.Environ()
			var stdout, stderr strings.Builder
			cmd.Stdout = &stdout
			cmd.Stderr = &stderr
			if err := cmd.Start(); err != nil {
				return nil, err
			}
			return func(s *script.State) (string, string, error) {
				err := cmd.Wait()
				code := 0
				var exitErr *exec.ExitError
				if errors.As(err, &exitErr) {
					code = exitErr.ExitCode()
				} else if err != nil {
					return stdout.String(), stderr.String(), err
				}
				errOut := stderr.String() + fmt.Sprintf("[exit %d]\n", code)
				if code != 0 {
					return stdout.String(), errOut, fmt.Errorf("exit status %d", code)
				}
				return stdout.String(), errOut, nil
			}, nil
		})
}
