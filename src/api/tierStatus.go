package api

import (
	"context"
	"fmt"
	"path"

	"iot-tier-pipeline/src/csvcodec"
	"iot-tier-pipeline/src/storage"
	"iot-tier-pipeline/src/types"
	"iot-tier-pipeline/src/utils"
)

const placeholderName = ".keep"

var Tiers = []string{types.TierBronze, types.TierSilver, types.TierGold, types.TierAnomalies}

type TierSummary struct {
	Tier       string              `json:"tier"`
	Files      int                 `json:"files"`
	TotalBytes int64               `json:"total_bytes"`
	Latest     *storage.ObjectInfo `json:"latest,omitempty"`
}

type StatusReport struct {
	Bucket string        `json:"bucket"`
	Tiers  []TierSummary `json:"tiers"`
}

// Table is a decoded tier object.
type Table struct {
	File    string              `json:"file"`
	Columns []string            `json:"columns"`
	Rows    []map[string]string `json:"rows"`
}

func listTier(ctx context.Context, store storage.Store, bucket, tier string) ([]storage.ObjectInfo, error) {
	objects, err := store.List(ctx, bucket, tier)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", tier, err)
	}

	kept := objects[:0]
	for _, obj := range objects {
		if path.Base(obj.Key) == placeholderName {
			continue
		}
		kept = append(kept, obj)
	}
	return kept, nil
}

func newest(objects []storage.ObjectInfo) *storage.ObjectInfo {
	var latest *storage.ObjectInfo
	for i := range objects {
		obj := &objects[i]
		if latest == nil || obj.LastModified.After(latest.LastModified) ||
			(obj.LastModified.Equal(latest.LastModified) && obj.Key > latest.Key) {
			latest = obj
		}
	}
	return latest
}

// TierStatus summarises the four tiers of bucket.
func TierStatus(ctx context.Context, store storage.Store, bucket string) (StatusReport, error) {
	report := StatusReport{Bucket: bucket}

	for _, tier := range Tiers {
		objects, err := listTier(ctx, store, bucket, tier)
		if err != nil {
			return StatusReport{}, err
		}

		summary := TierSummary{Tier: tier, Files: len(objects), Latest: newest(objects)}
		for _, obj := range objects {
			summary.TotalBytes += obj.Size
		}

		report.Tiers = append(report.Tiers, summary)
	}

	return report, nil
}

// LatestTable decodes the newest tabular object of a tier. It fails with
// storage.ErrNotFound when the tier holds none.
func LatestTable(ctx context.Context, store storage.Store, bucket, tier string) (Table, error) {
	objects, err := listTier(ctx, store, bucket, tier)
	if err != nil {
		return Table{}, err
	}

	tables := objects[:0]
	for _, obj := range objects {
		if utils.HasTabularExtension(obj.Key) {
			tables = append(tables, obj)
		}
	}

	latest := newest(tables)
	if latest == nil {
		return Table{}, fmt.Errorf("no %s objects under %s: %w", types.TabularExtension, tier, storage.ErrNotFound)
	}

	body, err := store.Get(ctx, bucket, latest.Key)
	if err != nil {
		return Table{}, err
	}

	columns, records, err := csvcodec.Decode(body)
	if err != nil {
		return Table{}, fmt.Errorf("failed to decode %s: %w", latest.Key, err)
	}

	table := Table{File: latest.Key, Columns: columns, Rows: make([]map[string]string, 0, len(records))}
	for _, record := range records {
		row := make(map[string]string, len(columns))
		for _, column := range columns {
			if v, ok := record.Get(column); ok {
				row[column] = v
			}
		}
		table.Rows = append(table.Rows, row)
	}

	return table, nil
}
