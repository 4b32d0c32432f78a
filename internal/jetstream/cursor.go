// Skywatch - AT Protocol Profile Change Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/skywatch

package jetstream

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/skywatch/internal/logging"
	"github.com/tomtom215/skywatch/internal/models"
)

// NowMicros returns the current wall-clock time as a Jetstream cursor.
func NowMicros() int64 {
	return time.Now().UnixMicro()
}

// RetentionHorizonMicros returns the cursor at the upstream's retention
// horizon: now minus the backfill window (24 h on bsky.network hosts).
func RetentionHorizonMicros(window time.Duration) int64 {
	return time.Now().Add(-window).UnixMicro()
}

// BuildSubscribeURL picks one host uniformly at random and builds the
// subscribe URL. requireHello=true makes the upstream hold events until the
// options message arrives. A nil cursor subscribes live.
func BuildSubscribeURL(hosts []string, cursor *int64) (string, string, error) {
	if len(hosts) == 0 {
		return "", "", fmt.Errorf("no jetstream hosts configured")
	}
	host := hosts[rand.Intn(len(hosts))]

	url := fmt.Sprintf("wss://%s/subscribe?requireHello=true", host)
	if cursor != nil {
		url = fmt.Sprintf("%s&cursor=%d", url, *cursor)
	}
	return url, host, nil
}

// BuildOptionsMessage marshals the subscriber options frame for dids. Lists
// above maxDIDs are truncated with a warning; callers place DIDs that must
// survive truncation first.
func BuildOptionsMessage(dids []string, maxDIDs int) ([]byte, error) {
	if maxDIDs > 0 && len(dids) > maxDIDs {
		logging.Warn().
			Int("wanted", len(dids)).
			Int("max", maxDIDs).
			Msg("wanted DID list truncated to jetstream cap")
		dids = dids[:maxDIDs]
	}

	msg := models.OptionsUpdateMessage{
		Type: "options_update",
		Payload: models.OptionsPayload{
			WantedCollections:   []string{models.CollectionProfile, models.CollectionFollow},
			WantedDIDs:          dids,
			MaxMessageSizeBytes: 0,
		},
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal options message: %w", err)
	}
	return payload, nil
}

// cursorAge returns how far behind wall-clock a cursor is.
func cursorAge(cursor int64) time.Duration {
	return time.Since(time.UnixMicro(cursor))
}
