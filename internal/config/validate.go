// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of lorawan-analyzer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package config

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Validate checks raw against ConfigSchema before it's decoded into a
// typed Config, so a malformed file fails with a schema error rather
// than a confusing field-by-field decode error.
func Validate(raw []byte) error {
	sch, err := jsonschema.CompileString("config.json", ConfigSchema)
	if err != nil {
		return fmt.Errorf("config: compile schema: %w", err)
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("config: parse json: %w", err)
	}

	if err := sch.Validate(v); err != nil {
		return fmt.Errorf("config: schema validation: %w", err)
	}
	return nil
}
