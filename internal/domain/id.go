package domain

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// randomHex returns n bytes of cryptographic randomness as lowercase hex.
func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms; fall back to a
		// timestamp suffix rather than panicking in an id helper.
		return fmt.Sprintf("%x", time.Now().UnixNano())[:n*2]
	}
	return hex.EncodeToString(buf)
}

func datePart() string {
	return time.Now().UTC().Format("20060102")
}

// NewTaskID builds a task identifier: {skill}-{YYYYMMDD}-{6 hex}.
func NewTaskID(skill string) string {
	return fmt.Sprintf("%s-%s-%s", skill, datePart(), randomHex(3))
}

// NewRunID builds a pipeline-run identifier.
func NewRunID() string {
	return fmt.Sprintf("run-%s-%s", datePart(), randomHex(3))
}

// NewGoalID builds a goal identifier.
func NewGoalID() string {
	return fmt.Sprintf("goal-%s-%s", datePart(), randomHex(3))
}

// NewReviewID builds a human-review identifier.
func NewReviewID() string {
	return fmt.Sprintf("hr-%s-%s", datePart(), randomHex(3))
}

// NewEventID builds an event identifier for internally produced events.
func NewEventID() string {
	return fmt.Sprintf("evt-%s-%s", datePart(), randomHex(4))
}
