// Skywatch - AT Protocol Profile Change Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skywatch

package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration for structural and semantic errors.
// It runs struct-tag validation first, then the cross-field checks the
// tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return err
	}

	for _, host := range c.Jetstream.Hosts {
		if strings.Contains(host, "://") || strings.Contains(host, "/") {
			return fmt.Errorf("jetstream host %q must be a bare hostname, not a URL", host)
		}
	}

	if c.Database.RetryDelay <= 0 {
		return fmt.Errorf("database.retry_delay must be positive")
	}
	if c.Jetstream.BackfillThreshold <= 0 {
		return fmt.Errorf("jetstream.backfill_threshold must be positive")
	}
	if c.Jetstream.BackfillWindow <= c.Jetstream.BackfillThreshold {
		return fmt.Errorf("jetstream.backfill_window must exceed the backfill threshold")
	}
	if c.AppView.RequestsPerSecond <= 0 {
		return fmt.Errorf("appview.requests_per_second must be positive")
	}

	return nil
}
