package server

import (
	"net/http"

	"github.com/mentionmap/slack-mention-map/internal/models"
	"github.com/sirupsen/logrus"
)

// dataResponse is the /data payload. Every field is null until the first
// snapshot is published.
type dataResponse struct {
	MentionData models.MentionMatrix `json:"mention_data"`
	HeatmapData models.HeatmapMatrix `json:"heatmap_data"`
	ChannelName *string              `json:"channel_name"`
	Days        *int                 `json:"days"`
	Timestamp   *float64             `json:"timestamp"`
}

func newDataResponse(snap *models.Snapshot) dataResponse {
	if snap == nil {
		return dataResponse{}
	}
	name := snap.ChannelName
	days := snap.WindowDays
	ts := float64(snap.GeneratedAt.UnixNano()) / 1e9
	return dataResponse{
		MentionData: snap.Mentions,
		HeatmapData: snap.Heatmap,
		ChannelName: &name,
		Days:        &days,
		Timestamp:   &ts,
	}
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.store.Current()

	key := ""
	if ok {
		key = "data:" + snap.ID
		if body, hit := s.cache.Get(key); hit {
			writeRaw(w, body)
			return
		}
	}

	body, err := s.encode(newDataResponse(snap))
	if err != nil {
		logrus.Errorf("Failed to encode snapshot data: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	if ok {
		s.cache.Set(key, body)
	}
	writeRaw(w, body)
}

func writeRaw(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}
