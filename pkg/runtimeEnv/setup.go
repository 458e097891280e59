// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of lorawan-analyzer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package runtimeEnv provides small process-lifecycle helpers: loading a
// .env file before the config is parsed, dropping privileges after
// binding sockets, and notifying systemd of readiness/shutdown.
package runtimeEnv

import (
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/chirpwatch/lorawan-analyzer/pkg/log"
)

// LoadEnv loads environment variables from a .env file into the
// process environment. Missing file is not an error.
func LoadEnv(file string) error {
	if err := godotenv.Load(file); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("runtimeEnv: load %s: %w", file, err)
	}
	return nil
}

// DropPrivileges changes the process user and group to that specified
// in the config. The go runtime takes care of all threads (and not only
// the calling one) executing the underlying systemcall.
func DropPrivileges(username string, group string) error {
	if group != "" {
		g, err := user.LookupGroup(group)
		if err != nil {
			log.Warn("runtimeEnv: error while looking up group")
			return err
		}

		gid, _ := strconv.Atoi(g.Gid)
		if err := syscall.Setgid(gid); err != nil {
			log.Warn("runtimeEnv: error while setting gid")
			return err
		}
	}

	if username != "" {
		u, err := user.Lookup(username)
		if err != nil {
			log.Warn("runtimeEnv: error while looking up user")
			return err
		}

		uid, _ := strconv.Atoi(u.Uid)
		if err := syscall.Setuid(uid); err != nil {
			log.Warn("runtimeEnv: error while setting uid")
			return err
		}
	}

	return nil
}

// SystemdNotify informs systemd of readiness/status changes, if started
// under systemd. See https://www.freedesktop.org/software/systemd/man/sd_notify.html
func SystemdNotify(ready bool, status string) {
	if os.Getenv("NOTIFY_SOCKET") == "" {
		return
	}

	args := []string{fmt.Sprintf("--pid=%d", os.Getpid())}
	if ready {
		args = append(args, "--ready")
	}

	if status != "" {
		args = append(args, fmt.Sprintf("--status=%s", status))
	}

	cmd := exec.Command("systemd-notify", args...)
	cmd.Run() // errors ignored on purpose, there is not much to do anyways.
}
