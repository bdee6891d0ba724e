// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package thingsboard

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/wneessen/homewatch/internal/telemetry"
)

const nameExec = "thingsboard-exec"

type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecConfig describes how to reach psql inside the ThingsBoard container.
type ExecConfig struct {
	Container string
	User      string
	Database  string
	Sudo      bool
}

// Exec runs psql inside the ThingsBoard docker container. It is meant for hosts where the
// database port is not published.
type Exec struct {
	conf ExecConfig
	run  commandRunner
}

func NewExec(conf ExecConfig) *Exec {
	return &Exec{conf: conf, run: runCommand}
}

func (e *Exec) Name() string {
	return nameExec
}

func (e *Exec) FetchLatest(ctx context.Context, device string) (telemetry.Observation, error) {
	name, args := e.command(device)
	out, err := e.run(ctx, name, args...)
	if err != nil {
		return telemetry.Observation{}, fmt.Errorf("failed to query latest location via %s: %w", name, err)
	}
	return parseRow(string(out))
}

func (e *Exec) command(device string) (string, []string) {
	args := []string{
		"docker", "exec", "-i", e.conf.Container,
		"psql", "-U", e.conf.User, "-d", e.conf.Database,
		"-tA", "-F", "|", "-c", inlineQuery(device),
	}
	if e.conf.Sudo {
		return "sudo", args
	}
	return args[0], args[1:]
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return out, nil
}
