//go:build !integration

package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/siteselect-cli/internal/config"
	"github.com/sells-group/siteselect-cli/internal/screen"
)

func TestFormatRunList(t *testing.T) {
	now := time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)
	runs := []screen.Run{
		{
			ID:            "abc12345-6789-0000-0000-000000000000",
			Status:        screen.StatusComplete,
			CurrentStage:  3,
			TotalZIPs:     12500,
			SurvivingZIPs: 840,
			CreatedAt:     now,
		},
		{
			ID:           "def12345-6789-0000-0000-000000000000",
			Status:       screen.StatusRunning,
			CurrentStage: 1,
			TotalZIPs:    9000,
			CreatedAt:    now.Add(-1 * time.Hour),
		},
	}

	var buf bytes.Buffer
	formatRunList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "ID")
	assert.Contains(t, output, "STATUS")
	assert.Contains(t, output, "abc12345")
	assert.Contains(t, output, "complete")
	assert.Contains(t, output, "running")
	assert.Contains(t, output, "12,500")
	assert.Contains(t, output, "2026-03-15 10:30")
}

func TestFormatRunStatus(t *testing.T) {
	now := time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)
	done := now.Add(45 * time.Second)

	run := &screen.Run{
		ID:            "abc12345-6789-0000-0000-000000000000",
		Status:        screen.StatusComplete,
		CurrentStage:  1,
		TotalZIPs:     10,
		SurvivingZIPs: 7,
		CreatedAt:     now,
	}
	logs := []screen.StageLogEntry{
		{RunID: run.ID, Stage: 0, InputCount: 10, OutputCount: 7, KilledCount: 3, CompletedAt: &done},
	}
	histogram := map[int]int{-1: 3, 0: 7}

	var buf bytes.Buffer
	formatRunStatus(&buf, run, logs, histogram)

	output := buf.String()
	assert.Contains(t, output, "abc12345")
	assert.Contains(t, output, "complete")
	assert.Contains(t, output, "STAGE")
	assert.Contains(t, output, "STAGE_REACHED")
}

func TestFormatRunStatus_ErrorRun(t *testing.T) {
	run := &screen.Run{
		ID:     "abc12345-6789-0000-0000-000000000000",
		Status: screen.StatusError,
		Error:  "seed candidates: connection refused",
	}

	var buf bytes.Buffer
	formatRunStatus(&buf, run, nil, nil)

	assert.Contains(t, buf.String(), "connection refused")
}

func TestThresholdsFromConfig(t *testing.T) {
	c := config.ScreenConfig{
		MinPopulation:     10000,
		MaxDensity:        3500,
		MinProjectedYield: 7.5,
	}

	got := thresholdsFromConfig(c)
	assert.Equal(t, 10000.0, got.MinPopulation)
	assert.Equal(t, 3500.0, got.MaxDensity)
	assert.Equal(t, 7.5, got.MinProjectedYield)
	assert.Zero(t, got.MaxFacilities)
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789-0000-0000-000000000000"))
	assert.Equal(t, "short", truncateID("short"))
}
