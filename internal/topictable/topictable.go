// Package topictable loads the tabular priority-tier configuration and
// resolves scores to topics. Grounded on the original Topics reader:
// same column names, same linear-scan-with-catch-all semantics.
package topictable

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/BlestxVentures/Work-Spawner-3000/internal/domain"
)

const (
	colTopicRoot = "topic root"
	colTopicUID  = "topic uid"
	colPriority  = "priority id"
	colLowScore  = "low score"
	colHighScore = "high score"
)

// PriorityTier is one row of the topic table: messages with
// LowScore <= score < HighScore route to Topic.
type PriorityTier struct {
	TierID    string
	Topic     string
	LowScore  float64
	HighScore float64
}

// TopicTable is an ordered, immutable sequence of PriorityTier rows,
// highest priority first, plus the two distinguished topic names.
type TopicTable struct {
	tiers           []PriorityTier
	intakeTopic     string
	deadLetterTopic string
}

// Load reads a tabular topic-table file (header row required; columns
// case-insensitive: topic root, topic uid, priority id, low score,
// high score) and builds a TopicTable. intakeTopic and deadLetterTopic
// are the two distinguished topics from config, not part of the file.
func Load(path, intakeTopic, deadLetterTopic string) (*TopicTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("topictable.Load: open %s: %w", path, err)
	}
	defer f.Close()

	tiers, err := parseRows(f)
	if err != nil {
		return nil, fmt.Errorf("topictable.Load: %s: %w", path, err)
	}
	if len(tiers) == 0 {
		return nil, fmt.Errorf("topictable.Load: %s: %w", path, domain.ErrEmptyTopicTable)
	}

	return &TopicTable{
		tiers:           tiers,
		intakeTopic:     intakeTopic,
		deadLetterTopic: deadLetterTopic,
	}, nil
}

func parseRows(r io.Reader) ([]PriorityTier, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{colTopicRoot, colTopicUID, colPriority, colLowScore, colHighScore} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("missing required column %q", required)
		}
	}

	var tiers []PriorityTier
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}

		topicUID := strings.TrimSpace(row[col[colTopicUID]])
		if topicUID == "" {
			continue // ignore empty rows
		}
		topicRoot := strings.TrimSpace(row[col[colTopicRoot]])

		low, err := strconv.ParseFloat(strings.TrimSpace(row[col[colLowScore]]), 64)
		if err != nil {
			return nil, fmt.Errorf("row %q: parse low score: %w", topicUID, err)
		}
		high, err := strconv.ParseFloat(strings.TrimSpace(row[col[colHighScore]]), 64)
		if err != nil {
			return nil, fmt.Errorf("row %q: parse high score: %w", topicUID, err)
		}

		tiers = append(tiers, PriorityTier{
			TierID:    strings.TrimSpace(row[col[colPriority]]),
			Topic:     topicRoot + topicUID,
			LowScore:  low,
			HighScore: high,
		})
	}
	return tiers, nil
}

// Tiers returns the ordered topic names, highest priority first.
func (t *TopicTable) Tiers() []string {
	out := make([]string, len(t.tiers))
	for i, tier := range t.tiers {
		out[i] = tier.Topic
	}
	return out
}

// TierFor returns the topic name whose [LowScore, HighScore) range
// contains score, scanning rows in priority order. If no row covers
// score, the last (lowest-priority) row is the catch-all.
func (t *TopicTable) TierFor(score float64) string {
	for _, tier := range t.tiers {
		if score >= tier.LowScore && score < tier.HighScore {
			return tier.Topic
		}
	}
	return t.tiers[len(t.tiers)-1].Topic
}

// IntakeTopic returns the configured intake topic name.
func (t *TopicTable) IntakeTopic() string { return t.intakeTopic }

// DeadLetterTopic returns the configured dead-letter topic name.
func (t *TopicTable) DeadLetterTopic() string { return t.deadLetterTopic }
