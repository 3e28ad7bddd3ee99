package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/mentionmap/slack-mention-map/internal/models"
)

const snapshotContentType = "application/json"

// SnapshotFilename names the archived blob for snap
func SnapshotFilename(snap *models.Snapshot) string {
	return fmt.Sprintf("snapshots/%s-%s.json", snap.ChannelID, snap.GeneratedAt.UTC().Format("2006-01-02-15-04-05"))
}

// SnapshotObject serializes snap. The metadata lets a container listing
// tell runs apart without downloading them.
func SnapshotObject(snap *models.Snapshot) (Object, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return Object{}, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return Object{
		Name:        SnapshotFilename(snap),
		ContentType: snapshotContentType,
		Data:        data,
		Metadata: map[string]string{
			"run_id":        snap.ID,
			"channel_id":    snap.ChannelID,
			"window_days":   strconv.Itoa(snap.WindowDays),
			"message_count": strconv.Itoa(snap.MessageCount),
			"generated_at":  snap.GeneratedAt.UTC().Format(time.RFC3339),
		},
	}, nil
}

// ArchiveSnapshot serializes snap and hands it to s
func ArchiveSnapshot(ctx context.Context, s StorageInterface, snap *models.Snapshot) error {
	obj, err := SnapshotObject(snap)
	if err != nil {
		return err
	}
	return s.Store(ctx, obj)
}
