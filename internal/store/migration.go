// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of lorawan-analyzer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package store

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/chirpwatch/lorawan-analyzer/pkg/log"
)

const supportedVersion uint = 2

//go:embed migrations/*.sql
var migrationFiles embed.FS

// MigrateUp applies every pending migration in migrations/ to db.
func MigrateUp(db *sql.DB) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("store: migration driver: %w", err)
	}

	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("store: migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("store: migrate init: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("store: migrate up: %w", err)
	}

	v, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("store: migrate version: %w", err)
	}
	if dirty {
		return fmt.Errorf("store: database is in a dirty migration state at version %d", v)
	}
	if uint(v) < supportedVersion {
		log.Warnf("store: database at version %d, expected %d", v, supportedVersion)
	}

	log.Infof("store: migrations applied, version %d", v)
	return nil
}
