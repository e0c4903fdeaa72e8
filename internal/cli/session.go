package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ad/go-workshop-progress/internal/client"
	"github.com/ad/go-workshop-progress/internal/config"
	"github.com/ad/go-workshop-progress/internal/models"
	"github.com/ad/go-workshop-progress/internal/services"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type sessionOptions struct {
	APIBaseURL string
	Token      string
	Track      string
}

type sessionStep struct {
	StepID      string                `json:"stepId" yaml:"stepId"`
	State       models.StepState      `json:"state" yaml:"state"`
	NextEnabled bool                  `json:"nextEnabled" yaml:"nextEnabled"`
	Video       *models.VideoProgress `json:"video,omitempty" yaml:"video,omitempty"`
}

type sessionStatus struct {
	Track       models.TrackType `json:"track" yaml:"track"`
	CurrentStep string           `json:"currentStep" yaml:"currentStep"`
	Steps       []sessionStep    `json:"steps" yaml:"steps"`
}

// NewSessionCommand drives a user's progress through the HTTP API, the same
// way a workshop frontend session does.
func NewSessionCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &sessionOptions{}

	cmd := &cobra.Command{
		Use:   "session",
		Short: "Read or advance a user's progress through the API",
	}

	cmd.PersistentFlags().StringVar(&opts.APIBaseURL, "api", "", "API base URL (default env API_BASE_URL)")
	cmd.PersistentFlags().StringVar(&opts.Token, "token", "", "user JWT (default env API_TOKEN)")
	cmd.PersistentFlags().StringVar(&opts.Track, "track", string(models.TrackIA), "track type (ia|ast)")

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show step states for the track",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd, rootOpts, opts, func(ctx context.Context, store *services.ProgressStore) error {
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "complete <step>",
		Short: "Mark a step as completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd, rootOpts, opts, func(ctx context.Context, store *services.ProgressStore) error {
				if !store.MarkStepCompleted(ctx, args[0]) {
					return fmt.Errorf("step %s was not recorded", args[0])
				}
				return nil
			})
		},
	})

	var vp models.VideoProgress
	video := &cobra.Command{
		Use:   "video <step>",
		Short: "Record video playback markers for a step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd, rootOpts, opts, func(ctx context.Context, store *services.ProgressStore) error {
				if err := services.ValidateVideoProgress(vp); err != nil {
					return err
				}
				store.UpdateVideoProgress(ctx, args[0], vp)
				return nil
			})
		},
	}
	video.Flags().Float64Var(&vp.Current, "current", 0, "current playback position")
	video.Flags().Float64Var(&vp.Farthest, "farthest", 0, "farthest position reached")
	cmd.AddCommand(video)

	return cmd
}

func runSession(cmd *cobra.Command, rootOpts *RootOptions, opts *sessionOptions, action func(context.Context, *services.ProgressStore) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	baseURL := cfg.APIBaseURL
	if opts.APIBaseURL != "" {
		baseURL = strings.TrimRight(opts.APIBaseURL, "/")
	}
	token := cfg.APIToken
	if opts.Token != "" {
		token = opts.Token
	}
	if token == "" {
		return errors.New("--token or API_TOKEN is required")
	}

	track, ok := models.GetTrack(models.TrackType(opts.Track))
	if !ok {
		return fmt.Errorf("unknown track %q", opts.Track)
	}

	logger, err := newLogger(rootOpts)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := cmd.Context()
	store := services.NewProgressStore(client.New(baseURL, token, cfg.APITimeout), track, logger)
	store.Load(ctx)
	if store.Stale() {
		logger.Warn("progress API unreachable", zap.String("api", baseURL))
		return fmt.Errorf("cannot read progress from %s", baseURL)
	}

	if err := action(ctx, store); err != nil {
		return err
	}

	status := describeSession(track, store)
	return writeResult(cmd.OutOrStdout(), rootOpts.Format, status, func(w io.Writer) error {
		return writeSessionText(w, status)
	})
}

func describeSession(track *models.Track, store *services.ProgressStore) *sessionStatus {
	snapshot := store.Snapshot()
	status := &sessionStatus{Track: track.Type, CurrentStep: snapshot.CurrentStepID}
	for _, stepID := range track.Steps {
		step := sessionStep{
			StepID:      stepID,
			State:       store.StepState(stepID),
			NextEnabled: store.IsNextButtonEnabled(stepID),
		}
		if vp, ok := snapshot.VideoProgress[stepID]; ok {
			step.Video = &vp
		}
		status.Steps = append(status.Steps, step)
	}
	return status
}

func writeSessionText(w io.Writer, status *sessionStatus) error {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Track %s, current step %s\n", status.Track, status.CurrentStep)
	for _, step := range status.Steps {
		line := fmt.Sprintf("  %-8s %s", step.StepID, step.State)
		if !step.NextEnabled {
			line += " (waiting for assessment)"
		}
		if step.Video != nil {
			line += fmt.Sprintf("  video %.1f/%.1f", step.Video.Current, step.Video.Farthest)
		}
		sb.WriteString(line + "\n")
	}

	_, err := io.WriteString(w, sb.String())
	return err
}
