// Package repository holds data-source adapters behind the domain
// interfaces. The ClickHouse adapter reads the engine-owned history table
// for deployments where the estimated series is materialized instead of
// served over HTTP.
package repository

import (
	"context"
	"database/sql"
	"fmt"

	"PolEn/internal/domain/models"
	"PolEn/pkg/clickhouse"
	"PolEn/pkg/logger"
)

// HistoryClickHouse loads the historical macro series from ClickHouse.
// Rows are month-end dates; NULL metric columns map to nil pointers so gaps
// survive the trip.
type HistoryClickHouse struct {
	client *clickhouse.Client
	table  string
	log    *logger.Logger
}

func NewHistoryClickHouse(client *clickhouse.Client, table string, log *logger.Logger) *HistoryClickHouse {
	if table == "" {
		table = "macro_history"
	}
	return &HistoryClickHouse{client: client, table: table, log: log}
}

func (r *HistoryClickHouse) FetchHistory(ctx context.Context) (*models.HistorySeries, error) {
	query := fmt.Sprintf(`
		SELECT date, stress, growth, crisis_prob, regime, is_anchor
		FROM %s
		ORDER BY date ASC`, r.table)

	rows, err := r.client.DB().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	series := &models.HistorySeries{}
	for rows.Next() {
		var (
			date     sql.NullTime
			stress   sql.NullFloat64
			growth   sql.NullFloat64
			crisis   sql.NullFloat64
			regime   sql.NullString
			isAnchor bool
		)
		if err := rows.Scan(&date, &stress, &growth, &crisis, &regime, &isAnchor); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		if !date.Valid {
			continue
		}
		pt := models.HistoricalPoint{Date: date.Time.UTC()}
		if stress.Valid {
			v := stress.Float64
			pt.Stress = &v
		}
		if growth.Valid {
			v := growth.Float64
			pt.Growth = &v
		}
		if crisis.Valid {
			v := crisis.Float64
			pt.CrisisProb = &v
		}
		if regime.Valid {
			pt.Regime = regime.String
		}
		series.Points = append(series.Points, pt)
		if isAnchor {
			series.AnchorDates = append(series.AnchorDates, pt.Date)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}

	r.log.Debug("history loaded from clickhouse",
		logger.String("table", r.table),
		logger.Int("points", len(series.Points)))
	return series, nil
}
