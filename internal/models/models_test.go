package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMentionMatrix_Increment(t *testing.T) {
	m := MentionMatrix{}

	m.Increment("Alice", "Bob")
	m.Increment("Alice", "Bob")
	m.Increment("Alice", NoMention)

	assert.Equal(t, MentionMatrix{"Alice": {"Bob": 2, "N/A": 1}}, m)
}

func TestHeatmapMatrix_Increment(t *testing.T) {
	h := HeatmapMatrix{}

	h.Increment("Bob", "2024-05-01")
	h.Increment("Bob", "2024-05-02")
	h.Increment("Bob", "2024-05-02")

	assert.Equal(t, 1, h["Bob"]["2024-05-01"])
	assert.Equal(t, 2, h["Bob"]["2024-05-02"])
}
