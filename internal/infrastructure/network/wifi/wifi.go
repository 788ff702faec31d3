// Package wifi associates the host with the configured access point through
// NetworkManager's nmcli.
package wifi

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes a command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Config names the network. An empty SSID disables association.
type Config struct {
	SSID      string
	Password  string
	Interface string
}

// Option customises an Associator.
type Option func(*Associator)

// WithRunner replaces the command runner, mainly for tests.
func WithRunner(run Runner) Option {
	return func(a *Associator) {
		a.run = run
	}
}

// Associator joins the configured WiFi network.
type Associator struct {
	cfg Config
	run Runner
}

func New(cfg Config, opts ...Option) *Associator {
	a := &Associator{cfg: cfg, run: execRunner}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Enabled reports whether an SSID is configured.
func (a *Associator) Enabled() bool {
	return a.cfg.SSID != ""
}

// Associate joins the network unless it is already the active one.
func (a *Associator) Associate(ctx context.Context) error {
	if !a.Enabled() {
		return nil
	}

	active, err := a.Active(ctx)
	if err != nil {
		return err
	}
	if active {
		return nil
	}

	args := []string{"device", "wifi", "connect", a.cfg.SSID}
	if a.cfg.Password != "" {
		args = append(args, "password", a.cfg.Password)
	}
	if a.cfg.Interface != "" {
		args = append(args, "ifname", a.cfg.Interface)
	}
	return a.nmcli(ctx, args...)
}

// Active reports whether the configured SSID is the active connection.
func (a *Associator) Active(ctx context.Context) (bool, error) {
	out, err := a.run(ctx, "nmcli", "-t", "-f", "ACTIVE,SSID", "device", "wifi")
	if err != nil {
		return false, fmt.Errorf("nmcli device wifi: %w - %s", err, strings.TrimSpace(string(out)))
	}

	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		active, ssid, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		// nmcli -t escapes colons inside fields.
		ssid = strings.ReplaceAll(ssid, `\:`, ":")
		if active == "yes" && ssid == a.cfg.SSID {
			return true, nil
		}
	}
	return false, scanner.Err()
}

func (a *Associator) nmcli(ctx context.Context, args ...string) error {
	out, err := a.run(ctx, "nmcli", args...)
	if err != nil {
		return fmt.Errorf("nmcli %v: %w - %s", redact(args, a.cfg.Password), err, strings.TrimSpace(string(out)))
	}
	return nil
}

func redact(args []string, secret string) []string {
	out := make([]string, len(args))
	for i, arg := range args {
		if secret != "" && arg == secret {
			arg = "***"
		}
		out[i] = arg
	}
	return out
}

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}
