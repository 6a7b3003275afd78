package domain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"syscall"

	"github.com/moby/sys/reexec"
	"golang.org/x/sys/unix"
)

// Names under which the re-executed binary enters a namespace. main must
// call reexec.Init before anything else.
const (
	nsExecName   = "sdnlab-nsexec"
	nsAttachName = "sdnlab-nsattach"
)

// exitSetupFailed is the exit code of a child that could not enter the
// namespace or find the command.
const exitSetupFailed = 127

func init() {
	reexec.Register(nsExecName, nsExecChild)
	reexec.Register(nsAttachName, nsAttachChild)
}

// enterNamespace moves the calling thread into the namespace at path.
func enterNamespace(path string) error {
	runtime.LockOSThread()

	fd, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open namespace: %w", err)
	}
	defer fd.Close()

	if err := unix.Setns(int(fd.Fd()), unix.CLONE_NEWNET); err != nil {
		return fmt.Errorf("setns: %w", err)
	}
	return nil
}

// nsExecChild runs as: sdnlab-nsexec <netns path> <argv...>
func nsExecChild() {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "nsexec: missing arguments")
		os.Exit(exitSetupFailed)
	}
	if err := enterNamespace(os.Args[1]); err != nil {
		fmt.Fprintln(os.Stderr, "nsexec:", err)
		os.Exit(exitSetupFailed)
	}

	argv := os.Args[2:]
	path, err := exec.LookPath(argv[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, "nsexec:", err)
		os.Exit(exitSetupFailed)
	}
	if err := syscall.Exec(path, argv, os.Environ()); err != nil {
		fmt.Fprintln(os.Stderr, "nsexec: exec:", err)
		os.Exit(exitSetupFailed)
	}
}

// nsAttachChild runs as: sdnlab-nsattach <netns path> <host>
func nsAttachChild() {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "attach: missing arguments")
		os.Exit(exitSetupFailed)
	}
	if err := enterNamespace(os.Args[1]); err != nil {
		fmt.Fprintln(os.Stderr, "attach:", err)
		os.Exit(exitSetupFailed)
	}

	// The parent cloned a private UTS namespace for us.
	for _, err := range setupAttach(os.Args[2], unix.Sethostname) {
		fmt.Fprintln(os.Stderr, "attach:", err)
	}

	bashArgs := []string{"bash", "--noprofile", "--norc"}
	if err := syscall.Exec("/bin/bash", bashArgs, os.Environ()); err != nil {
		fmt.Fprintln(os.Stderr, "attach: exec bash:", err)
		os.Exit(exitSetupFailed)
	}
}

// setupAttach names the shell after host and returns what failed.
func setupAttach(host string, sethostname func([]byte) error) []error {
	var errs []error
	if err := sethostname([]byte(host)); err != nil {
		errs = append(errs, fmt.Errorf("sethostname: %w", err))
	}
	if err := os.Setenv("PS1", fmt.Sprintf("sdnlab@%s:\\w $ ", host)); err != nil {
		errs = append(errs, fmt.Errorf("set PS1: %w", err))
	}
	return errs
}

// ExecResult is the outcome of a command run inside a namespace.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// RunIn runs argv inside ns and captures its output. A command that ran
// and exited non-zero is not an error; its exit code is reported.
func RunIn(ctx context.Context, ns *Namespace, argv ...string) (ExecResult, error) {
	return runIn(ctx, ns, 0, argv)
}

// RunInPrivateMounts is RunIn with the child in a new mount namespace.
// The Go runtime makes / recursively private in it before the child
// starts, so mounts never propagate back to the machine. The namespace
// lives as long as any process started in it.
func RunInPrivateMounts(ctx context.Context, ns *Namespace, argv ...string) (ExecResult, error) {
	return runIn(ctx, ns, unix.CLONE_NEWNS, argv)
}

func runIn(ctx context.Context, ns *Namespace, unshare uintptr, argv []string) (ExecResult, error) {
	if len(argv) == 0 {
		return ExecResult{}, errors.New("run in namespace: empty command")
	}

	var stdout, stderr bytes.Buffer
	cmd := reexec.Command(append([]string{nsExecName, ns.Path}, argv...)...)
	if unshare != 0 {
		if cmd.SysProcAttr == nil {
			cmd.SysProcAttr = &syscall.SysProcAttr{}
		}
		cmd.SysProcAttr.Unshareflags = unshare
	}
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := runCmd(ctx, cmd); err != nil {
		return ExecResult{}, fmt.Errorf("run in %s: %w", ns.Name, err)
	}
	res := ExecResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	res.ExitCode = cmd.ProcessState.ExitCode()
	return res, nil
}

// Exec runs argv inside ns attached to the terminal.
func Exec(ctx context.Context, ns *Namespace, argv ...string) (int, error) {
	cmd := reexec.Command(append([]string{nsExecName, ns.Path}, argv...)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := runCmd(ctx, cmd); err != nil {
		return -1, fmt.Errorf("exec in %s: %w", ns.Name, err)
	}
	return cmd.ProcessState.ExitCode(), nil
}

// Attach opens an interactive shell inside ns with host as hostname.
func Attach(ns *Namespace, host string) error {
	cmd := reexec.Command(nsAttachName, ns.Path, host)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Cloneflags = syscall.CLONE_NEWUTS

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil
		}
		return fmt.Errorf("attach to %s: %w", host, err)
	}
	return nil
}

// runCmd runs cmd to completion, killing it when ctx is done. Exit errors
// are left to the caller through cmd.ProcessState.
func runCmd(ctx context.Context, cmd *exec.Cmd) error {
	if err := cmd.Start(); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			cmd.Process.Kill()
		case <-done:
		}
	}()
	err := cmd.Wait()
	close(done)

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return err
	}
	return nil
}
