// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of lorawan-analyzer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package coldstore

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jmoiron/sqlx"

	"github.com/chirpwatch/lorawan-analyzer/pkg/log"
)

// RegisterExportJob schedules a daily export of the previous day's
// rollup rows, run well inside the 8-day retention window configured
// in internal/store/migrations. Disabled by default: callers only
// register this when cold-export is turned on in their own config.
func RegisterExportJob(s gocron.Scheduler, db *sqlx.DB, exp *Exporter) error {
	_, err := s.NewJob(gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(2, 30, 0))),
		gocron.NewTask(func() {
			ctx := context.Background()
			until := time.Now().UTC().Truncate(24 * time.Hour)
			since := until.Add(-24 * time.Hour)

			if err := exportWindow(ctx, db, exp, since, until); err != nil {
				log.Warnf("coldstore: export %s..%s: %v", since, until, err)
			}
		}))
	if err != nil {
		return fmt.Errorf("coldstore: register export job: %w", err)
	}
	return nil
}

func exportWindow(ctx context.Context, db *sqlx.DB, exp *Exporter, since, until time.Time) error {
	hourly, err := FetchHourly(ctx, db, since, until)
	if err != nil {
		return err
	}
	if err := exportByHour(hourly, func(bucket time.Time, rows []HourlyRow) error {
		return exp.ExportHourly(ctx, rows)
	}); err != nil {
		return err
	}

	channelSF, err := FetchChannelSF(ctx, db, since, until)
	if err != nil {
		return err
	}
	return exportByHourChannelSF(channelSF, func(bucket time.Time, rows []ChannelSFRow) error {
		return exp.ExportChannelSF(ctx, rows)
	})
}

// exportByHour groups rows by their bucket hour so each S3 object
// holds exactly one hour's worth of rollups, matching the key format
// ExportHourly derives from rows[0].Bucket.
func exportByHour(rows []HourlyRow, export func(time.Time, []HourlyRow) error) error {
	groups := make(map[time.Time][]HourlyRow)
	for _, r := range rows {
		h := r.Bucket.UTC().Truncate(time.Hour)
		groups[h] = append(groups[h], r)
	}
	for h, g := range groups {
		if err := export(h, g); err != nil {
			return err
		}
	}
	return nil
}

func exportByHourChannelSF(rows []ChannelSFRow, export func(time.Time, []ChannelSFRow) error) error {
	groups := make(map[time.Time][]ChannelSFRow)
	for _, r := range rows {
		h := r.Bucket.UTC().Truncate(time.Hour)
		groups[h] = append(groups[h], r)
	}
	for h, g := range groups {
		if err := export(h, g); err != nil {
			return err
		}
	}
	return nil
}
