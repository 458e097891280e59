// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of lorawan-analyzer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package store

import (
	"context"
	"time"

	"github.com/chirpwatch/lorawan-analyzer/pkg/log"
)

type sqlTimingKey struct{}

// Hooks satisfies the sqlhooks.Hooks interface, logging every
// statement and its duration at debug level.
type Hooks struct{}

func (h *Hooks) Before(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	log.Debugf("store: query %s %q", query, args)
	return context.WithValue(ctx, sqlTimingKey{}, time.Now()), nil
}

func (h *Hooks) After(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	if begin, ok := ctx.Value(sqlTimingKey{}).(time.Time); ok {
		log.Debugf("store: took %s", time.Since(begin))
	}
	return ctx, nil
}
