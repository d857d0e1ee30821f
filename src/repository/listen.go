// Copyright (c) 2026 Khaled Abbas
//
// This source code is licensed under the Business Source License 1.1.
//
// Change Date: 4 years after the first public release of this version.
// Change License: MIT
//
// On the Change Date, this version of the code automatically converts
// to the MIT License. Prior to that date, use is subject to the
// Additional Use Grant. See the LICENSE file for details.

package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"gittrainer/src/logging"
)

// CatalogChannel is notified by a trigger whenever the tasks table changes.
const CatalogChannel = "tasks_updated"

// WatchCatalog listens for catalog changes on dsn and backfills status rows
// after each one, with a periodic fallback backfill. It returns when ctx is
// done.
func (r *Repository) WatchCatalog(ctx context.Context, dsn string, fallback time.Duration) error {
	reportProblem := func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logging.Log(fmt.Sprintf("Catalog listener error: %v", err), slog.LevelError)
		}
	}

	listener := pq.NewListener(dsn, 10*time.Second, time.Minute, reportProblem)
	defer listener.Close()
	if err := listener.Listen(CatalogChannel); err != nil {
		return classify(OpLoad, "listen "+CatalogChannel, err)
	}

	ticker := time.NewTicker(fallback)
	defer ticker.Stop()

	logging.Log("Watching task catalog for changes", slog.LevelInfo)
	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-listener.Notify:
			// nil after a reconnect; notifications may have been missed.
			if n != nil {
				logging.Log("Catalog changed: "+n.Extra, slog.LevelInfo)
			}
			r.backfillLogged(ctx)
		case <-ticker.C:
			go listener.Ping()
			r.backfillLogged(ctx)
		}
	}
}

func (r *Repository) backfillLogged(ctx context.Context) {
	n, err := r.BackfillStatuses(ctx)
	if err != nil {
		logging.Log(fmt.Sprintf("Backfill failed: %v", err), slog.LevelError)
		return
	}
	if n > 0 {
		logging.Log(fmt.Sprintf("Backfilled %d task statuses", n), slog.LevelInfo)
	}
}
