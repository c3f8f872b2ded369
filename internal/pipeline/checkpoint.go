package pipeline

import (
	"encoding/json"
	"os"
	"time"
)

// checkpoint records progress after every committed batch so an
// interrupted append/upsert run can continue without reloading rows.
// The checksum ties it to one exact artifact; a re-downloaded file with
// different content invalidates it.
type checkpoint struct {
	Run      string    `json:"run"`
	Checksum string    `json:"checksum"`
	Offset   int64     `json:"offset"` // next accepted-row index to load
	Updated  time.Time `json:"updated"`
}

func checkpointPath(artifactPath string) string {
	return artifactPath + ".checkpoint"
}

func loadCheckpoint(path string) *checkpoint {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var cp checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil
	}
	return &cp
}

func saveCheckpoint(path string, cp *checkpoint) {
	cp.Updated = time.Now().UTC()
	data, err := json.Marshal(cp)
	if err != nil {
		return
	}
	// Best effort: a lost checkpoint only costs a restart from zero.
	_ = os.WriteFile(path, data, 0o644)
}

func removeCheckpoint(path string) {
	_ = os.Remove(path)
}
