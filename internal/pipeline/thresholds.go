// Package pipeline holds the trigger thresholds shared by the message append
// path and the background jobs.
package pipeline

import (
	"os"
	"strconv"
)

type Thresholds struct {
	// SafetyEvery fires the overseer after every Nth appended message.
	SafetyEvery int
	// SafetyWindow is how many recent messages the overseer classifies.
	SafetyWindow int
	// ChunkSize is the fixed message window one chunk summary covers; the
	// summarizer fires once that many new messages accumulate.
	ChunkSize int
	// SuperThreshold is the un-aggregated chunk count that triggers a
	// super summary.
	SuperThreshold int
	// ProfileWindow is how many recent super summaries feed one profile
	// synthesis.
	ProfileWindow int
	// StageEvery fires the stage progressor after every Nth message and is
	// also the size of its inspection window.
	StageEvery int
	// ContextWindow is how many recent messages ground a live reply.
	ContextWindow int
}

func Defaults() Thresholds {
	return Thresholds{
		SafetyEvery:    5,
		SafetyWindow:   5,
		ChunkSize:      55,
		SuperThreshold: 15,
		ProfileWindow:  20,
		StageEvery:     100,
		ContextWindow:  30,
	}
}

// FromEnv returns Defaults with any EVERBLOOM_* overrides applied.
func FromEnv() Thresholds {
	t := Defaults()
	envInt("EVERBLOOM_SAFETY_EVERY", &t.SafetyEvery)
	envInt("EVERBLOOM_SAFETY_WINDOW", &t.SafetyWindow)
	envInt("EVERBLOOM_CHUNK_SIZE", &t.ChunkSize)
	envInt("EVERBLOOM_SUPER_THRESHOLD", &t.SuperThreshold)
	envInt("EVERBLOOM_PROFILE_WINDOW", &t.ProfileWindow)
	envInt("EVERBLOOM_STAGE_EVERY", &t.StageEvery)
	envInt("EVERBLOOM_CONTEXT_WINDOW", &t.ContextWindow)
	return t
}

func envInt(name string, dst *int) {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*dst = n
		}
	}
}
