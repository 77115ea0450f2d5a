package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/saturnino-fabrica-de-software/findperson/internal/config"
	"github.com/saturnino-fabrica-de-software/findperson/internal/domain"
	"github.com/saturnino-fabrica-de-software/findperson/internal/face"
	"github.com/saturnino-fabrica-de-software/findperson/internal/feed"
	"github.com/saturnino-fabrica-de-software/findperson/internal/finder"
	"github.com/saturnino-fabrica-de-software/findperson/internal/provider"
	"github.com/saturnino-fabrica-de-software/findperson/internal/service"
	"github.com/saturnino-fabrica-de-software/findperson/internal/video"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch a camera, stream or video file for the reference person",
	Long: `Run the finder over a video source and log every time the person is
found or lost. A summary is printed when the source ends or on Ctrl+C.

The source is a camera index ("" or 0 for the default webcam), a stream URL
or a video file.

Examples:
  # Watch the default webcam for the person in a.jpg
  findperson watch --reference a.jpg

  # Scan a recording with pre-computed embeddings
  findperson watch --embeddings ref.json --source video.mp4 --threshold 0.6

  # Detect every 10 frames and follow with the KCF tracker
  findperson watch --embeddings ref.json --source rtsp://cam/stream --interval 10 --tracker kcf`,
	RunE: runWatch,
}

func init() {
	addWatchFlags(watchCmd)
}

func addWatchFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringArray("reference", nil, "Reference photo (repeatable)")
	flags.String("embeddings", "", "Embeddings file written by encode")
	flags.String("source", "", "Camera index, stream URL or video file")
	flags.Float64("threshold", 0, "Cosine similarity needed for a match (default: MATCH_THRESHOLD)")
	flags.Int("interval", 0, "Run face detection every N processed frames (default: DETECT_INTERVAL)")
	flags.String("tracker", "", "OpenCV tracker: csrt, kcf or mil (default: TRACKER)")
	flags.Int("skip", 0, "Process every Nth frame (0 = 1 for live sources, 2 for files)")
	flags.Bool("realtime", false, "Pace video files to their frame rate")
	cmd.MarkFlagsOneRequired("reference", "embeddings")
	cmd.MarkFlagsMutuallyExclusive("reference", "embeddings")
}

// watchOptions are the resolved flags of a watch run
type watchOptions struct {
	References []string
	Embeddings string
	Source     string
	Finder     finder.Config
	Tracker    string
	Feed       feed.Config
}

func watchOptionsFrom(cmd *cobra.Command, cfg *config.Engine) watchOptions {
	flags := cmd.Flags()
	opts := watchOptions{
		Finder: finder.Config{
			Threshold:      cfg.MatchThreshold,
			DetectInterval: cfg.DetectInterval,
		},
		Tracker: cfg.Tracker,
		Feed: feed.Config{
			MaxConsecutiveErrors: feed.DefaultMaxConsecutiveErrors,
		},
	}

	opts.References, _ = flags.GetStringArray("reference")
	opts.Embeddings, _ = flags.GetString("embeddings")
	opts.Source, _ = flags.GetString("source")
	opts.Feed.SkipEvery, _ = flags.GetInt("skip")
	opts.Feed.Realtime, _ = flags.GetBool("realtime")

	if flags.Changed("threshold") {
		opts.Finder.Threshold, _ = flags.GetFloat64("threshold")
	}
	if flags.Changed("interval") {
		opts.Finder.DetectInterval, _ = flags.GetInt("interval")
	}
	if flags.Changed("tracker") {
		opts.Tracker, _ = flags.GetString("tracker")
	}
	return opts
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, logger, err := engine()
	if err != nil {
		return err
	}
	opts := watchOptionsFrom(cmd, cfg)
	if err := opts.Finder.Validate(); err != nil {
		return err
	}
	if opts.Feed.SkipEvery < 0 {
		return domain.ErrValidationFailed.WithError(errors.New("skip must be zero or positive"))
	}

	ctx := cmd.Context()
	p, release, err := openProvider(ctx, cfg)
	if err != nil {
		return err
	}
	defer release()

	ref, err := loadReference(ctx, p, opts, logger)
	if err != nil {
		return err
	}
	matcher, err := face.NewMatcher(p, ref)
	if err != nil {
		return err
	}

	media := video.NewMedia(cfg.FrameMaxWidth)
	trackers, err := media.Trackers(opts.Tracker)
	if err != nil {
		return err
	}

	src, err := media.Open(opts.Source)
	if err != nil {
		return err
	}

	fnd, err := finder.New(matcher, trackers, opts.Finder, finder.WithLogger(logger))
	if err != nil {
		_ = src.Close()
		return err
	}

	logger.Info("watching",
		slog.String("reference", ref.Name),
		slog.String("source", video.ParseSource(opts.Source).String()),
		slog.String("provider", p.Name()),
		slog.Float64("threshold", opts.Finder.Threshold),
		slog.Int("detect_interval", opts.Finder.DetectInterval),
		slog.String("tracker", opts.Tracker),
	)

	feedOpts := []feed.Option{
		feed.WithLogger(logger),
		feed.WithObserver(transitionLogger(logger)),
	}
	var bar *progressbar.ProgressBar
	if !src.Live() && src.FrameCount() > 0 {
		bar = newFrameBar(src.FrameCount(), cmd.ErrOrStderr())
		feedOpts = append(feedOpts, feed.WithObserver(progressObserver(bar)))
	}

	summary, err := feed.New(src, fnd, opts.Feed, feedOpts...).Run(ctx)
	if bar != nil {
		_ = bar.Finish()
		fmt.Fprintln(cmd.ErrOrStderr())
	}
	printSummary(cmd.OutOrStdout(), summary)
	return err
}

// loadReference encodes the reference photos or reads the embeddings file
func loadReference(ctx context.Context, p provider.FaceProvider, opts watchOptions, logger *slog.Logger) (*domain.Reference, error) {
	if opts.Embeddings != "" {
		f, err := loadReferenceFile(opts.Embeddings)
		if err != nil {
			return nil, err
		}
		return f.reference(p.Name())
	}

	images, err := readImages(opts.References)
	if err != nil {
		return nil, err
	}
	refs := service.NewReferenceService(nil, p, service.WithReferenceLogger(logger))
	ref, err := refs.Encode(ctx, nameFromPath(opts.References[0]), images)
	if err != nil {
		return nil, fmt.Errorf("failed to encode reference: %w", err)
	}
	return ref, nil
}

// transitionLogger logs the frames where the person appears or disappears
func transitionLogger(logger *slog.Logger) feed.Observer {
	return feed.ObserverFunc(func(ctx context.Context, obs feed.Observation) {
		switch obs.Transition {
		case feed.TransitionFound:
			logger.InfoContext(ctx, "person found",
				slog.Int("frame", obs.Result.Frame),
				slog.Float64("score", obs.Result.Score),
				slog.String("box", obs.Result.Box.String()),
			)
		case feed.TransitionLost:
			logger.InfoContext(ctx, "person lost",
				slog.Int("frame", obs.Result.Frame),
				slog.Bool("tracker_lost", obs.Result.TrackerLost),
			)
		}
	})
}

func newFrameBar(frames int, w io.Writer) *progressbar.ProgressBar {
	return progressbar.NewOptions(frames,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("Scanning"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("frames"),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)
}

func progressObserver(bar *progressbar.ProgressBar) feed.Observer {
	return feed.ObserverFunc(func(_ context.Context, obs feed.Observation) {
		_ = bar.Set(obs.Result.Frame)
	})
}

func printSummary(w io.Writer, s feed.Summary) {
	fmt.Fprintf(w, "Stopped:          %s\n", s.Reason)
	fmt.Fprintf(w, "Frames read:      %d\n", s.FramesRead)
	fmt.Fprintf(w, "Frames processed: %d\n", s.FramesProcessed)
	fmt.Fprintf(w, "Detections:       %d\n", s.Detections)
	fmt.Fprintf(w, "Tracker updates:  %d\n", s.TrackerUpdates)
	fmt.Fprintf(w, "Found in frames:  %d\n", s.FoundFrames)
	fmt.Fprintf(w, "Best score:       %.4f\n", s.BestScore)
	if s.Errors > 0 {
		fmt.Fprintf(w, "Errors:           %d\n", s.Errors)
	}
	fmt.Fprintf(w, "Duration:         %s\n", s.Duration.Round(time.Millisecond))
}
