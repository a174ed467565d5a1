package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/claude/repcycle/internal/capture"
	"github.com/claude/repcycle/internal/client"
	"github.com/claude/repcycle/internal/engine"
	"github.com/claude/repcycle/internal/models"
	"github.com/claude/repcycle/internal/recap"
	"github.com/claude/repcycle/internal/stats"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// logFile is the YAML schema of a filled-in session log.
type logFile struct {
	Exercises []struct {
		Name string `yaml:"name"`
		Sets []struct {
			Reps string `yaml:"reps"`
			Load string `yaml:"load"`
			RPE  string `yaml:"rpe"`
			Note string `yaml:"note"`
		} `yaml:"sets"`
	} `yaml:"exercises"`
}

func main() {
	serverURL := flag.String("server", "", "RepCycle server URL (e.g. https://repcycle.tail1234.ts.net)")
	apiKey := flag.String("api-key", os.Getenv("REPCYCLE_API_KEY"), "API key for mutations")
	assignmentStr := flag.String("assignment", "", "assignment UUID")
	clientID := flag.Int64("client", 0, "client ID (required)")
	logPath := flag.String("log", "", "path to a YAML session log to submit")
	confirm := flag.Bool("confirm", false, "complete even with unlogged exercises")
	dismiss := flag.Bool("dismiss", false, "dismiss the pending recap and exit")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println("repcycle-client", Version)
		return
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	if *clientID == 0 || *serverURL == "" {
		fmt.Fprintf(os.Stderr, "Usage: repcycle-client -server <URL> -client <ID> -assignment <UUID> [-log session.yaml] [-confirm] [-dismiss]\n\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	// Open the recap store under the user's state dir. It survives process
	// restarts, which is the whole point.
	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Error("failed to get home directory", "error", err)
		os.Exit(1)
	}
	recaps, err := recap.Open(filepath.Join(homeDir, ".repcycle"))
	if err != nil {
		log.Error("failed to open recap store", "error", err)
		os.Exit(1)
	}
	defer recaps.Close()

	api := client.New(*serverURL, *apiKey)
	buf := capture.New()
	eng := engine.New(engine.Config{
		Templates:   api,
		Sessions:    api,
		Progression: api,
		Notifier:    api,
		Recaps:      recaps,
		Buffer:      buf,
		ClientID:    *clientID,
		Log:         log,
	})

	ctx := context.Background()

	// A pending recap takes over the screen until dismissed, even across a
	// process restart mid-flow.
	pending, err := eng.PendingRecap()
	if err != nil {
		log.Error("reading pending recap", "error", err)
		os.Exit(1)
	}
	if pending != nil {
		printRecap(ctx, api, *clientID, pending)
		if !*dismiss {
			fmt.Println("Run again with -dismiss to continue.")
			return
		}
		outcome, err := eng.DismissRecap(ctx)
		if err != nil {
			log.Error("dismissing recap", "error", err)
			os.Exit(1)
		}
		switch outcome {
		case engine.DismissProgramComplete:
			fmt.Println("Program complete. Nothing further is scheduled — talk to your coach.")
		case engine.DismissResync:
			if err := resync(ctx, api, eng, *assignmentStr, *clientID); err != nil {
				log.Error("resync failed", "error", err)
				os.Exit(1)
			}
		}
		return
	}

	if *assignmentStr == "" {
		fmt.Fprintln(os.Stderr, "Error: -assignment is required")
		os.Exit(1)
	}
	assignmentID, err := uuid.Parse(*assignmentStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid assignment UUID %q\n", *assignmentStr)
		os.Exit(1)
	}

	assignment, err := api.GetAssignment(ctx, assignmentID)
	if err != nil {
		log.Error("fetching assignment", "error", err)
		os.Exit(1)
	}
	if assignment.Cursor.Finished {
		fmt.Printf("Program %q is already complete.\n", assignment.ProgramName)
		return
	}
	program, err := api.GetProgramTemplate(ctx, assignment.ProgramID)
	if err != nil {
		log.Error("fetching program", "error", err)
		os.Exit(1)
	}

	cur := assignment.Cursor
	weekSessions := program.SessionsInWeek(cur.Week)
	if cur.SessionIndex < 1 || cur.SessionIndex > len(weekSessions) {
		log.Error("cursor out of range", "week", cur.Week, "session", cur.SessionIndex)
		os.Exit(1)
	}
	if err := buf.SelectSession(weekSessions, cur.SessionIndex-1); err != nil {
		log.Error("selecting session", "error", err)
		os.Exit(1)
	}
	session := *buf.Session()

	fmt.Printf("%s — week %d, session %d: %s\n", assignment.ProgramName, cur.Week, cur.SessionIndex, session.Name)
	printPlan(session)

	if *logPath == "" {
		fmt.Println("\nFill in a session log and submit it with -log session.yaml")
		return
	}
	if err := fillBuffer(buf, session, *logPath); err != nil {
		log.Error("reading session log", "error", err)
		os.Exit(1)
	}

	if buf.HasUnloggedExercise() && !*confirm {
		fmt.Println("\nNo sets logged for:")
		for _, name := range buf.UnloggedExercises() {
			fmt.Printf("  - %s\n", name)
		}
		fmt.Println("Re-run with -confirm to complete anyway.")
		os.Exit(1)
	}

	outcome, err := eng.CompleteSession(ctx, engine.CompletionRequest{
		Assignment:      assignment,
		Program:         program,
		Week:            cur.Week,
		SessionOrder:    cur.SessionIndex,
		Session:         session,
		Logged:          buf.Payload(),
		ConfirmUnlogged: *confirm,
	})
	if err != nil {
		log.Error("completing session", "error", err)
		os.Exit(1)
	}
	eng.WaitNotifications()

	printRecap(ctx, api, *clientID, &outcome.Recap)
	if outcome.ProgressionStale {
		fmt.Println(outcome.Message)
	}
	fmt.Println("Run again with -dismiss to continue.")
}

// fillBuffer loads a YAML session log into the capture buffer, matching
// exercises by name.
func fillBuffer(buf *capture.Buffer, session models.SessionTemplate, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	var f logFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	byName := make(map[string]uuid.UUID, len(session.Exercises))
	for _, ex := range session.Exercises {
		byName[ex.Name] = ex.ID
	}

	for _, ex := range f.Exercises {
		id, ok := byName[ex.Name]
		if !ok {
			return fmt.Errorf("exercise %q is not part of session %q", ex.Name, session.Name)
		}
		for i, set := range ex.Sets {
			for field, value := range map[capture.Field]string{
				capture.FieldReps: set.Reps,
				capture.FieldLoad: set.Load,
				capture.FieldRPE:  set.RPE,
				capture.FieldNote: set.Note,
			} {
				if value == "" {
					continue
				}
				if err := buf.SetField(id, i, field, value); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// printPlan shows the session's planned exercises and targets.
func printPlan(session models.SessionTemplate) {
	for _, ex := range session.Exercises {
		line := fmt.Sprintf("  %d. %s  %s x %s", ex.Position, ex.Name, ex.TargetSets, ex.TargetReps)
		if ex.TargetLoad != "" {
			line += " @ " + ex.TargetLoad
		}
		fmt.Println(line)
	}
}

// printRecap shows the completion recap with session statistics. The
// previous-week comparison uses server history when reachable and degrades
// to plain totals when not.
func printRecap(ctx context.Context, api *client.Client, clientID int64, rec *models.PendingRecap) {
	fmt.Printf("\n=== Session Complete: %s (week %d) ===\n", rec.SessionName, rec.Week)

	// The recap snapshot doesn't carry the program name, so match on
	// session name and week alone.
	var prev *models.PerformanceLogEntry
	if history, err := api.History(ctx, clientID); err == nil {
		for i := range history {
			e := &history[i]
			if e.SessionName == rec.SessionName && e.Week == rec.Week-1 {
				prev = e
			}
		}
	}

	s := stats.Compute(rec.ExerciseLogs, rec.Session, prev)
	fmt.Printf("  Sets:        %d / %d planned (%d%%)\n", s.CompletedSets, s.PlannedSets, s.CompletionRate)
	fmt.Printf("  Total reps:  %d\n", s.TotalReps)
	fmt.Printf("  Tonnage:     %.1f\n", s.TotalTonnage)
	fmt.Printf("  Avg load:    %.1f\n", s.AverageLoad)
	printTrend("Tonnage", s.TonnageChange, s.TonnageTrend)
	printTrend("Avg load", s.LoadChange, s.LoadTrend)
	printTrend("Reps", s.RepsChange, s.RepsTrend)

	if rec.WasProgramFinished {
		fmt.Println("\nThat was the final session of the program!")
	}
	fmt.Println()
}

func printTrend(label string, change *float64, trend stats.Trend) {
	if change == nil {
		return
	}
	fmt.Printf("  %s vs last week: %+.1f%% (%s)\n", label, *change, trend)
}

// resync replaces local state with server truth after a dismissal.
func resync(ctx context.Context, api *client.Client, eng *engine.Engine, assignmentStr string, clientID int64) error {
	history, err := api.History(ctx, clientID)
	if err != nil {
		return err
	}

	cursor := models.Cursor{Week: 1, SessionIndex: 1}
	if assignmentStr != "" {
		id, err := uuid.Parse(assignmentStr)
		if err != nil {
			return fmt.Errorf("invalid assignment UUID %q", assignmentStr)
		}
		a, err := api.GetAssignment(ctx, id)
		if err != nil {
			return err
		}
		cursor = a.Cursor
		fmt.Printf("Up next: week %d, session %d of %s\n", cursor.Week, cursor.SessionIndex, a.ProgramName)
	}

	eng.Resync(cursor, history)
	return nil
}
