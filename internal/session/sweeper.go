// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of lorawan-analyzer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package session

import (
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/chirpwatch/lorawan-analyzer/pkg/log"
)

// RegisterSweeper schedules periodic eviction on the given scheduler.
func (t *Tracker) RegisterSweeper(s gocron.Scheduler, interval time.Duration) error {
	_, err := s.NewJob(gocron.DurationJob(interval),
		gocron.NewTask(func() {
			start := time.Now()
			removed := t.Sweep(start)
			if removed > 0 {
				log.Infof("session: swept %d idle entries in %s", removed, time.Since(start))
			}
		}))
	if err != nil {
		return fmt.Errorf("session: register sweeper: %w", err)
	}
	return nil
}
