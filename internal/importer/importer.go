// Package importer loads coach-authored program files in YAML form and
// inserts them as program templates, optionally assigning them to a client
// straight away.
package importer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/claude/repcycle/internal/models"
	"github.com/claude/repcycle/internal/storage"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// ProgramFile is the YAML schema of one program template.
type ProgramFile struct {
	Name    string `yaml:"name"`
	CoachID int64  `yaml:"coach_id"`
	Weeks   []struct {
		Sessions []struct {
			Name      string `yaml:"name"`
			Exercises []struct {
				Name    string `yaml:"name"`
				Sets    string `yaml:"sets"`
				Reps    string `yaml:"reps"`
				Load    string `yaml:"load"`
				Tempo   string `yaml:"tempo"`
				RestSec int    `yaml:"rest_sec"`
			} `yaml:"exercises"`
		} `yaml:"sessions"`
	} `yaml:"weeks"`
}

// Stats tracks import progress.
type Stats struct {
	FilesProcessed int
	FilesErrored   int

	ProgramsCreated    int
	SessionsCreated    int
	ExercisesCreated   int
	AssignmentsCreated int
}

// Importer reads program YAML files and inserts them into the DB.
type Importer struct {
	db     *storage.DB
	log    *slog.Logger
	dryRun bool
	stats  Stats
}

// New creates a new Importer.
func New(db *storage.DB, log *slog.Logger, dryRun bool) *Importer {
	return &Importer{db: db, log: log, dryRun: dryRun}
}

// Parse converts a YAML program file into a template with fresh IDs. Weeks
// are numbered and sessions ordered by position in the file.
func Parse(data []byte) (*models.ProgramTemplate, error) {
	var f ProgramFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing program YAML: %w", err)
	}
	if f.Name == "" {
		return nil, fmt.Errorf("program needs a name")
	}
	if len(f.Weeks) == 0 {
		return nil, fmt.Errorf("program %q has no weeks", f.Name)
	}

	p := &models.ProgramTemplate{
		ID:      uuid.New(),
		CoachID: f.CoachID,
		Name:    f.Name,
	}
	for wi, w := range f.Weeks {
		if len(w.Sessions) == 0 {
			return nil, fmt.Errorf("program %q week %d has no sessions", f.Name, wi+1)
		}
		week := models.Week{Number: wi + 1}
		for si, s := range w.Sessions {
			if s.Name == "" {
				return nil, fmt.Errorf("program %q week %d session %d has no name", f.Name, wi+1, si+1)
			}
			session := models.SessionTemplate{
				ID:    uuid.New(),
				Name:  s.Name,
				Order: si + 1,
			}
			for ei, ex := range s.Exercises {
				if ex.Name == "" {
					return nil, fmt.Errorf("program %q session %q exercise %d has no name", f.Name, s.Name, ei+1)
				}
				session.Exercises = append(session.Exercises, models.ExerciseTemplate{
					ID:         uuid.New(),
					Name:       ex.Name,
					Position:   ei + 1,
					TargetSets: ex.Sets,
					TargetReps: ex.Reps,
					TargetLoad: ex.Load,
					Tempo:      ex.Tempo,
					RestSec:    ex.RestSec,
				})
			}
			week.Sessions = append(week.Sessions, session)
		}
		p.Weeks = append(p.Weeks, week)
	}
	return p, nil
}

// Import processes all .yaml/.yml files in the given directory. When
// assignTo is nonzero, each imported program is also assigned to that
// client with the cursor at week 1, session 1.
func (imp *Importer) Import(ctx context.Context, dir string, assignTo, coachID int64) (*Stats, error) {
	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return &imp.stats, err
		}
		files = append(files, matches...)
	}
	if len(files) == 0 {
		return &imp.stats, fmt.Errorf("no program files in %s", dir)
	}

	for _, f := range files {
		if err := imp.importFile(ctx, f, assignTo, coachID); err != nil {
			imp.log.Warn("import failed", "file", f, "error", err)
			imp.stats.FilesErrored++
			continue
		}
		imp.stats.FilesProcessed++
	}
	return &imp.stats, nil
}

func (imp *Importer) importFile(ctx context.Context, path string, assignTo, coachID int64) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	p, err := Parse(data)
	if err != nil {
		return err
	}
	if p.CoachID == 0 {
		p.CoachID = coachID
	}

	sessions, exercises := 0, 0
	for _, w := range p.Weeks {
		sessions += len(w.Sessions)
		for _, s := range w.Sessions {
			exercises += len(s.Exercises)
		}
	}

	if imp.dryRun {
		imp.log.Info("would import program",
			"name", p.Name, "weeks", len(p.Weeks), "sessions", sessions)
		imp.stats.ProgramsCreated++
		imp.stats.SessionsCreated += sessions
		imp.stats.ExercisesCreated += exercises
		return nil
	}

	if err := imp.db.CreateProgram(ctx, p); err != nil {
		return fmt.Errorf("creating program %q: %w", p.Name, err)
	}
	imp.stats.ProgramsCreated++
	imp.stats.SessionsCreated += sessions
	imp.stats.ExercisesCreated += exercises
	imp.log.Info("imported program",
		"name", p.Name, "id", p.ID, "weeks", len(p.Weeks), "sessions", sessions)

	if assignTo != 0 {
		a, err := imp.db.CreateAssignment(ctx, p.ID, assignTo, p.CoachID)
		if err != nil {
			return fmt.Errorf("assigning program %q: %w", p.Name, err)
		}
		imp.stats.AssignmentsCreated++
		imp.log.Info("assigned program", "assignment", a.ID, "client", assignTo)
	}
	return nil
}
