package daemon

import (
	"fmt"
	"os"
	"syscall"

	"github.com/sevlyar/go-daemon"
	"github.com/zhengshuai-xiao/BlockDedup/internal"
)

var logger = internal.GetLogger("blockdedup_daemon")

// WasReborn checks if the current process is a daemonized child by checking
// for an environment variable set by the go-daemon library.
func WasReborn() bool {
	return daemon.WasReborn()
}

// UnsetMark unsets the environment variable used to mark the child process.
// This should be called by the child process after it has been identified.
func UnsetMark() {
	os.Unsetenv(daemon.MARK_NAME)
}

func ReadPidFile(name string) (int, error) {
	return daemon.ReadPidFile(name)
}

// CheckPidFile removes pidFile when the process it names is gone and fails
// when that process is still alive.
func CheckPidFile(pidFile string) error {
	if _, err := os.Stat(pidFile); err != nil {
		return nil
	}
	pid, err := daemon.ReadPidFile(pidFile)
	if err != nil {
		logger.Warnf("Ignoring unreadable PID file %s: %v", pidFile, err)
		return nil
	}
	proc, err := os.FindProcess(pid)
	if err == nil {
		// Signal 0 only checks that the process exists.
		if err := proc.Signal(syscall.Signal(0)); err == nil {
			return fmt.Errorf("daemon already running with PID %d", pid)
		}
	}
	logger.Warnf("Found stale PID file for dead process %d. Removing it.", pid)
	if err := os.Remove(pidFile); err != nil {
		return fmt.Errorf("failed to remove stale PID file %s: %w", pidFile, err)
	}
	return nil
}

// ChildArgs drops the flags that would make the child fork again.
func ChildArgs(args []string) []string {
	var out []string
	for _, arg := range args {
		if arg != "--background" && arg != "-d" && arg != "--background=true" {
			out = append(out, arg)
		}
	}
	return out
}

// Daemonize forks the current process into a background daemon. The parent process will exit,
// and the child process will continue execution. It returns a non-nil process if it's the
// parent, and nil if it's the child. The child keeps workDir so relative
// source paths still resolve.
func Daemonize(pidFile, logFile, workDir string, args []string) (*os.Process, error) {
	// If logFile is empty, it will redirect to /dev/null
	if logFile == "" {
		logFile = os.DevNull
	}
	if workDir == "" {
		workDir = "/"
	}

	cntxt := &daemon.Context{
		PidFileName: pidFile,
		PidFilePerm: 0644,
		LogFileName: logFile,
		LogFilePerm: 0640,
		WorkDir:     workDir,
		Umask:       027,
		Args:        args,
	}

	d, err := cntxt.Reborn()
	if err != nil {
		return nil, err
	}
	return d, nil
}
