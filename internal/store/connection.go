// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of lorawan-analyzer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package store is the Postgres/TimescaleDB persistence layer: two
// hypertables, two continuous aggregates, retention policies, and the
// metadata tables the writer and query layer share.
package store

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/qustavo/sqlhooks/v2"

	"github.com/chirpwatch/lorawan-analyzer/pkg/log"
)

var (
	connOnce     sync.Once
	connInstance *sqlx.DB
	registerOnce sync.Once
)

// Connect opens (and, on the first call, registers the query-logging
// wrapped driver) a connection pool to the Postgres/TimescaleDB
// instance at dsn. Safe to call more than once; subsequent calls
// return the existing pool.
func Connect(dsn string) (*sqlx.DB, error) {
	var err error
	connOnce.Do(func() {
		registerOnce.Do(func() {
			sql.Register("pgxWithHooks", sqlhooks.Wrap(&stdlib.Driver{}, &Hooks{}))
		})

		var db *sqlx.DB
		db, err = sqlx.Open("pgxWithHooks", dsn)
		if err != nil {
			err = fmt.Errorf("store: open failed: %w", err)
			return
		}

		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(20)
		db.SetConnMaxLifetime(time.Hour)

		if pingErr := db.Ping(); pingErr != nil {
			err = fmt.Errorf("store: ping failed: %w", pingErr)
			return
		}

		connInstance = db
		log.Infof("store: connected")
	})
	return connInstance, err
}

// GetConnection returns the already-opened connection pool.
func GetConnection() *sqlx.DB {
	if connInstance == nil {
		log.Fatal("store: connection not initialized")
	}
	return connInstance
}
