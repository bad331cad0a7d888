// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnia Contributors

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/turnia/turnia/internal/store"
)

// statusTimeout bounds each probe made by the status command.
const statusTimeout = 5 * time.Second

// Status is the report printed by the status command.
type Status struct {
	Env            string `json:"env"`
	Isolation      string `json:"isolation"`
	Database       string `json:"database"`
	Error          string `json:"error,omitempty"`
	SchemaVersion  uint   `json:"schema_version"`
	LatestVersion  uint   `json:"latest_version"`
	Dirty          bool   `json:"dirty"`
	PendingCount   int    `json:"pending_migrations"`
	TotalConns     int32  `json:"total_conns"`
	IdleConns      int32  `json:"idle_conns"`
	MaxConns       int32  `json:"max_conns"`
	StrictSessions bool   `json:"strict_sessions"`

	Backends []store.BackendCount `json:"backends,omitempty"`
}

type statusConfig struct {
	jsonOutput bool
}

func newStatusCmd(opts *globalOptions, deps *Deps) *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show database health and schema status",
		Long:  `Check database connectivity, the migration state and connection pool usage.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, opts, cfg, deps)
		},
	}

	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")

	return cmd
}

func runStatus(cmd *cobra.Command, opts *globalOptions, statusCfg *statusConfig, deps *Deps) error {
	cfg, err := loadDatabaseConfig(cmd, opts)
	if err != nil {
		return err
	}

	status := Status{
		Env:            cfg.Env,
		Isolation:      cfg.Database.Isolation,
		StrictSessions: cfg.Auth.StrictSessions,
	}
	queryDatabaseStatus(cmd.Context(), deps, cfg.PoolConfig(), !cfg.IsProduction(), &status)

	var output string
	if statusCfg.jsonOutput {
		output, err = formatStatusJSON(status)
		if err != nil {
			return err
		}
	} else {
		output = formatStatusTable(status)
	}
	_, _ = fmt.Fprint(cmd.OutOrStdout(), output)

	if status.Error != "" {
		return oops.Code("STATUS_UNHEALTHY").Errorf("%s", status.Error)
	}
	return nil
}

// queryDatabaseStatus fills the database fields of status. Failures are
// recorded in status.Error rather than returned. Server backends are listed
// only when withBackends is set; failing to list them is not an error.
func queryDatabaseStatus(ctx context.Context, deps *Deps, poolCfg store.PoolConfig, withBackends bool, status *Status) {
	ctx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()

	db, err := deps.Connect(ctx, poolCfg)
	if err != nil {
		status.Database = "unreachable"
		status.Error = err.Error()
		return
	}
	defer db.Close()

	if err := store.HealthCheck(ctx, db); err != nil {
		status.Database = "unhealthy"
		status.Error = err.Error()
		return
	}
	status.Database = "healthy"
	stats := db.Stats()
	status.TotalConns = stats.TotalConns
	status.IdleConns = stats.IdleConns
	status.MaxConns = stats.MaxConns
	if withBackends {
		if backends, err := store.Backends(ctx, db); err == nil {
			status.Backends = backends
		}
	}

	m, err := deps.NewMigrator(poolCfg.URL)
	if err != nil {
		status.Error = err.Error()
		return
	}
	defer func() { _ = m.Close() }()

	mig, err := m.Status()
	if err != nil {
		status.Error = err.Error()
		return
	}
	status.SchemaVersion = mig.Current
	status.LatestVersion = mig.Latest
	status.Dirty = mig.Dirty
	status.PendingCount = len(mig.Pending)
	if mig.Dirty {
		status.Error = fmt.Sprintf("schema version %d is dirty", mig.Current)
	}
}

// formatStatusTable formats the status as a human-readable table.
func formatStatusTable(s Status) string {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintf(w, "ENV\t%s\n", s.Env)
	_, _ = fmt.Fprintf(w, "ISOLATION\t%s\n", s.Isolation)
	_, _ = fmt.Fprintf(w, "DATABASE\t%s\n", s.Database)
	if s.Database == "healthy" {
		schema := fmt.Sprintf("%d/%d", s.SchemaVersion, s.LatestVersion)
		if s.PendingCount > 0 {
			schema += fmt.Sprintf(" (%d pending)", s.PendingCount)
		}
		if s.Dirty {
			schema += " DIRTY"
		}
		_, _ = fmt.Fprintf(w, "SCHEMA\t%s\n", schema)
		_, _ = fmt.Fprintf(w, "POOL\t%d open, %d idle, %d max\n", s.TotalConns, s.IdleConns, s.MaxConns)
		if len(s.Backends) > 0 {
			parts := make([]string, len(s.Backends))
			for i, b := range s.Backends {
				parts[i] = fmt.Sprintf("%s=%d", b.State, b.Count)
			}
			_, _ = fmt.Fprintf(w, "BACKENDS\t%s\n", strings.Join(parts, ", "))
		}
	}
	if s.Error != "" {
		_, _ = fmt.Fprintf(w, "ERROR\t%s\n", s.Error)
	}

	_ = w.Flush()
	return buf.String()
}

// formatStatusJSON formats the status as JSON.
func formatStatusJSON(s Status) (string, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", oops.Code("STATUS_ENCODE_FAILED").Wrap(err)
	}
	return string(data) + "\n", nil
}
