package db

import (
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	lockFileName   = "rollcall.lock"
	defaultTimeout = 2 * time.Second
	initialBackoff = 5 * time.Millisecond
	maxBackoff     = 50 * time.Millisecond
)

// holderCommand is recorded in the lock file so a blocked writer can say
// which rollcall command it is waiting on.
var holderCommand = commandName(os.Args)

// commandName renders argv as "rollcall agent": the binary name plus the
// first subcommand, skipping flags.
func commandName(args []string) string {
	if len(args) == 0 {
		return "unknown"
	}
	name := args[0]
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimSuffix(name, ".exe")
	for _, a := range args[1:] {
		if a == "" || strings.HasPrefix(a, "-") {
			continue
		}
		return name + " " + a
	}
	return name
}

// writeLocker serializes writers across processes (the CLI and the agent)
// with an OS file lock next to the database. The OS drops the lock when the
// holder exits, crashes included.
type writeLocker struct {
	lockPath string
	lockFile *os.File
}

func newWriteLocker(dataDir string) *writeLocker {
	return &writeLocker{lockPath: filepath.Join(dataDir, lockFileName)}
}

// acquire takes the exclusive lock, polling with capped exponential backoff
// until timeout. The timeout error names the current holder.
func (l *writeLocker) acquire(timeout time.Duration) error {
	f, err := os.OpenFile(l.lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	l.lockFile = f

	deadline := time.Now().Add(timeout)
	backoff := initialBackoff
	for {
		if err := l.tryLock(); err == nil {
			l.writeHolder()
			return nil
		}
		if time.Now().After(deadline) {
			holder := l.readHolder()
			l.lockFile.Close()
			l.lockFile = nil
			return fmt.Errorf("write lock timeout after %v (holder: %s)", timeout, holder)
		}
		// Jitter keeps the CLI and the agent from retrying in lockstep.
		time.Sleep(backoff + rand.N(backoff/2+1))
		backoff = min(backoff*2, maxBackoff)
	}
}

func (l *writeLocker) release() error {
	if l.lockFile == nil {
		return nil
	}
	l.lockFile.Truncate(0)
	l.unlock()
	l.lockFile.Close()
	l.lockFile = nil
	return nil
}

func (l *writeLocker) writeHolder() {
	if l.lockFile == nil {
		return
	}
	l.lockFile.Truncate(0)
	l.lockFile.Seek(0, 0)
	fmt.Fprintf(l.lockFile, "pid:%d\ncmd:%s\ntime:%s\n", os.Getpid(), holderCommand, time.Now().Format(time.RFC3339))
}

// readHolder describes the process holding the lock, flagging dead holders.
func (l *writeLocker) readHolder() string {
	data, err := os.ReadFile(l.lockPath)
	if err != nil {
		return "unknown"
	}
	return describeHolder(string(data), isProcessAlive)
}

// describeHolder renders lock file contents as
// "rollcall agent (pid:42 since 2026-03-02T08:00:00Z)".
func describeHolder(data string, alive func(pid int) bool) string {
	var pid, cmd, since string
	for _, line := range strings.Split(strings.TrimSpace(data), "\n") {
		key, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			pid = v
		case "cmd":
			cmd = v
		case "time":
			since = v
		}
	}
	if pid == "" {
		return "unknown"
	}
	if cmd == "" {
		cmd = "unknown command"
	}
	desc := fmt.Sprintf("%s (pid:%s since %s)", cmd, pid, since)
	if n, err := strconv.Atoi(pid); err == nil && !alive(n) {
		desc += " (stale, process exited)"
	}
	return desc
}
