// Package power implements the host system power actions (§4.14
// /system/{shutdown|restart|logoff|lock|sleep|hibernate}): each tries a
// sequence of OS-appropriate commands and reports the first success.
package power

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

// Config bounds the per-command timeout, clamped to [0.2s, 30s] per
// CYBERDECK_SYSTEM_CMD_TIMEOUT_S.
type Config struct {
	CommandTimeout time.Duration
}

// Runner executes power actions against the host OS.
type Runner struct {
	timeout time.Duration
}

// New builds a Runner, clamping cfg.CommandTimeout into the documented
// bounds.
func New(cfg Config) *Runner {
	t := cfg.CommandTimeout
	if t < 200*time.Millisecond {
		t = 200 * time.Millisecond
	}
	if t > 30*time.Second {
		t = 30 * time.Second
	}
	return &Runner{timeout: t}
}

func (r *Runner) runFirstOK(cmds [][]string) bool {
	for _, cmd := range cmds {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		err := exec.CommandContext(ctx, cmd[0], cmd[1:]...).Run()
		cancel()
		if err == nil {
			return true
		}
	}
	return false
}

// Shutdown powers the machine off.
func (r *Runner) Shutdown() error {
	if runtime.GOOS == "windows" {
		if !r.runFirstOK([][]string{{"shutdown", "/s", "/t", "1"}}) {
			return fmt.Errorf("shutdown_failed")
		}
		return nil
	}
	if !r.runFirstOK([][]string{{"systemctl", "poweroff"}, {"shutdown", "-h", "now"}, {"poweroff"}}) {
		return fmt.Errorf("shutdown_failed")
	}
	return nil
}

// Restart reboots the machine.
func (r *Runner) Restart() error {
	if runtime.GOOS == "windows" {
		if !r.runFirstOK([][]string{{"shutdown", "/r", "/t", "1"}}) {
			return fmt.Errorf("restart_failed")
		}
		return nil
	}
	if !r.runFirstOK([][]string{{"systemctl", "reboot"}, {"shutdown", "-r", "now"}, {"reboot"}}) {
		return fmt.Errorf("restart_failed")
	}
	return nil
}

// Logoff ends the current desktop session.
func (r *Runner) Logoff() error {
	if runtime.GOOS == "windows" {
		if !r.runFirstOK([][]string{{"shutdown", "/l"}}) {
			return fmt.Errorf("logoff_failed")
		}
		return nil
	}
	if !r.runFirstOK(linuxLogoffCmds()) {
		return fmt.Errorf("logoff_not_supported_on_this_system")
	}
	return nil
}

func linuxLogoffCmds() [][]string {
	var cmds [][]string
	if sid := strings.TrimSpace(os.Getenv("XDG_SESSION_ID")); sid != "" {
		cmds = append(cmds, []string{"loginctl", "terminate-session", sid})
	}
	cmds = append(cmds,
		[]string{"gnome-session-quit", "--logout", "--no-prompt"},
		[]string{"cinnamon-session-quit", "--logout", "--no-prompt"},
		[]string{"xfce4-session-logout", "--logout", "--fast"},
		[]string{"mate-session-save", "--logout-dialog"},
		[]string{"qdbus", "org.kde.Shutdown", "/Shutdown", "logout"},
		[]string{"systemctl", "--user", "exit"},
	)
	return cmds
}

// Lock locks the current user session.
func (r *Runner) Lock() error {
	if runtime.GOOS == "windows" {
		if !r.runFirstOK([][]string{{"rundll32.exe", "user32.dll,LockWorkStation"}}) {
			return fmt.Errorf("lock_failed")
		}
		return nil
	}
	if !r.runFirstOK([][]string{
		{"loginctl", "lock-sessions"},
		{"xdg-screensaver", "lock"},
		{"gnome-screensaver-command", "-l"},
		{"dm-tool", "lock"},
	}) {
		return fmt.Errorf("lock_not_supported_on_this_system")
	}
	return nil
}

// Sleep suspends the machine.
func (r *Runner) Sleep() error {
	if runtime.GOOS == "windows" {
		if !r.runFirstOK([][]string{{"rundll32.exe", "powrprof.dll,SetSuspendState", "0,1,0"}}) {
			return fmt.Errorf("sleep_failed")
		}
		return nil
	}
	if !r.runFirstOK([][]string{{"systemctl", "suspend"}}) {
		return fmt.Errorf("sleep_failed")
	}
	return nil
}

// Hibernate hibernates the machine.
func (r *Runner) Hibernate() error {
	if runtime.GOOS == "windows" {
		if !r.runFirstOK([][]string{{"rundll32.exe", "powrprof.dll,SetSuspendState", "1,1,0"}}) {
			return fmt.Errorf("hibernate_failed")
		}
		return nil
	}
	if !r.runFirstOK([][]string{{"systemctl", "hibernate"}}) {
		return fmt.Errorf("hibernate_failed")
	}
	return nil
}

// Action dispatches to the named power action.
func (r *Runner) Action(name string) error {
	switch name {
	case "shutdown":
		return r.Shutdown()
	case "restart":
		return r.Restart()
	case "logoff":
		return r.Logoff()
	case "lock":
		return r.Lock()
	case "sleep":
		return r.Sleep()
	case "hibernate":
		return r.Hibernate()
	default:
		return fmt.Errorf("unknown_action")
	}
}
