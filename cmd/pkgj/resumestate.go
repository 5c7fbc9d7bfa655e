package main

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/AuthurNero/pkgj/internal/pkgpipe"
)

// resumeFilePath is where a cancelled download's ResumeState is
// persisted between pkgj invocations, one file per content id.
func resumeFilePath(tempRoot, contentID string) string {
	return filepath.Join(tempRoot, contentID+".resume.json")
}

func saveResumeState(tempRoot string, state *pkgpipe.ResumeState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	path := resumeFilePath(tempRoot, state.ContentID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func loadResumeState(tempRoot, contentID string) (*pkgpipe.ResumeState, error) {
	data, err := os.ReadFile(resumeFilePath(tempRoot, contentID))
	if err != nil {
		return nil, err
	}
	var state pkgpipe.ResumeState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func clearResumeState(tempRoot, contentID string) {
	os.Remove(resumeFilePath(tempRoot, contentID))
}
