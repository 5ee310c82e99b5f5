package database

import (
	"context"

	"gorm.io/gorm"
)

// ImageStats summarises the prepared image store.
type ImageStats struct {
	TotalImages int64            `json:"total_images"`
	TotalBytes  int64            `json:"total_bytes"`
	ByDisplay   map[string]int64 `json:"by_display"`
	BySource    map[string]int64 `json:"by_source"`
}

// GetImageStats returns counts and sizes of stored images.
func GetImageStats(ctx context.Context, db *gorm.DB) (*ImageStats, error) {
	stats := &ImageStats{
		ByDisplay: make(map[string]int64),
		BySource:  make(map[string]int64),
	}
	db = db.WithContext(ctx)

	if err := db.Model(&PreparedImage{}).Count(&stats.TotalImages).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&PreparedImage{}).Select("COALESCE(SUM(size), 0)").Scan(&stats.TotalBytes).Error; err != nil {
		return nil, err
	}

	var rows []struct {
		Name  string
		Count int64
	}
	if err := db.Model(&PreparedImage{}).Select("variant AS name, COUNT(*) AS count").Group("variant").Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		stats.ByDisplay[r.Name] = r.Count
	}

	rows = nil
	if err := db.Model(&PreparedImage{}).Select("source AS name, COUNT(*) AS count").Group("source").Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		stats.BySource[r.Name] = r.Count
	}

	return stats, nil
}
