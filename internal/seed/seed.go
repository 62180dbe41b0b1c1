// Package seed loads profile and workflow fixtures from a YAML file and
// writes them through the workflow store. Used to bootstrap a fresh
// database for demos and integration environments.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"adaqueue/routing-service/internal/models"
	"adaqueue/routing-service/internal/store"
	"adaqueue/routing-service/internal/workflow"

	"gopkg.in/yaml.v3"
)

type File struct {
	Profiles []Entry `yaml:"profiles"`
}

type Entry struct {
	Profile  models.Profile            `yaml:"profile"`
	Workflow models.WorkflowDefinition `yaml:"workflow"`
}

func LoadFile(path string) (File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read seed file: %w", err)
	}
	var file File
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return File{}, fmt.Errorf("parse seed file: %w", err)
	}
	if len(file.Profiles) == 0 {
		return File{}, errors.New("seed file contains no profiles")
	}
	return file, nil
}

// Apply creates each profile and saves its workflow. Existing profiles
// are updated rather than skipped so reseeding is idempotent.
func Apply(ctx context.Context, backend store.WorkflowStore, file File) error {
	workflows := workflow.NewStore(backend)
	for _, entry := range file.Profiles {
		profile, err := backend.CreateProfile(ctx, entry.Profile)
		if err != nil {
			if !errors.Is(err, store.ErrProfileExists) {
				return fmt.Errorf("create profile %s: %w", entry.Profile.Name, err)
			}
			profile = entry.Profile
			if err := backend.UpdateProfile(ctx, profile); err != nil {
				return fmt.Errorf("update profile %s: %w", profile.Code, err)
			}
		}

		def := entry.Workflow
		def.ProfileID = profile.Code
		if def.ProfileName == "" {
			def.ProfileName = profile.Name
		}
		if err := workflows.Save(ctx, def); err != nil {
			return fmt.Errorf("save workflow for %s: %w", profile.Code, err)
		}
		log.Printf("seeded profile=%s groups=%d", profile.Code, len(def.ServiceGroups))
	}
	return nil
}
