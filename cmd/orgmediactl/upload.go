package main

import (
	"context"
	"fmt"
	"strings"

	"orgmedia/internal/media"
	"orgmedia/internal/model"
	"orgmedia/internal/pubsub"
	"orgmedia/internal/upload"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type uploadFlags struct {
	strategy       string
	autoSequential bool
	feed           bool
	origin         string
}

func (a *app) orchestrator(autoSequential bool) (*upload.Orchestrator, error) {
	policy, err := a.cfg.Upload.Policy()
	if err != nil {
		return nil, err
	}
	transport := upload.NewHTTPTransport(a.cfg.Upload.APIBaseURL, a.log, upload.WithToken(a.cfg.Upload.Token))
	advisor := upload.AdviseOnly
	if autoSequential || a.cfg.Upload.AutoSequential {
		advisor = upload.AutoSequential
	}
	return upload.NewOrchestrator(transport, policy, a.log,
		upload.WithTimeout(a.cfg.Upload.Timeout),
		upload.WithAdvisor(advisor)), nil
}

// reporter logs progress and, with feed set, publishes it on the Redis bus
// for dashboards. The returned func flushes the feed and releases the Redis
// client.
func (a *app) reporter(ctx context.Context, targetID string, feed bool, extra ...upload.Reporter) (upload.Reporter, func(), error) {
	reporters := append([]upload.Reporter{upload.LogReporter(a.log)}, extra...)
	if !feed {
		return upload.Multi(reporters...), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("progress feed: %w", err)
	}
	feedReporter := pubsub.New(rdb, a.log).ProgressReporter(targetID)
	reporters = append(reporters, feedReporter)
	return upload.Multi(reporters...), func() {
		feedReporter.Close()
		rdb.Close()
	}, nil
}

func (a *app) publisher(origin string) media.Publisher {
	if origin == "" {
		origin = a.cfg.App.PublicOrigin
	}
	return media.NewPublisher(origin)
}

func newUploadCmd(a *app) *cobra.Command {
	var f uploadFlags
	var albumID string

	cmd := &cobra.Command{
		Use:   "upload --album ID FILE...",
		Short: "Upload files to an album",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			strategy, ok := model.ParseStrategy(f.strategy)
			if !ok {
				return fmt.Errorf("unknown strategy %q (use batch or sequential)", f.strategy)
			}
			candidates, err := upload.LoadCandidates(args)
			if err != nil {
				return err
			}
			orch, err := a.orchestrator(f.autoSequential)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			recorder := &upload.Recorder{}
			reporter, release, err := a.reporter(ctx, albumID, f.feed, recorder)
			if err != nil {
				return err
			}
			defer release()

			items, err := orch.Upload(ctx, albumID, candidates, strategy, reporter)
			if err != nil {
				return fmt.Errorf("%s", upload.UserMessage(err))
			}

			pub := a.publisher(f.origin)
			for i := range items {
				items[i] = pub.PublishItem(items[i])
			}
			if err := printJSON(cmd.OutOrStdout(), items); err != nil {
				return err
			}

			if failed := recorder.Errors(); len(failed) > 0 {
				msgs := make([]string, len(failed))
				for i, p := range failed {
					msgs[i] = p.Error
				}
				a.log.Warn("Some files were not uploaded", zap.Strings("errors", msgs))
				return fmt.Errorf("%d of %d files failed: %s", len(failed), len(candidates), strings.Join(msgs, "; "))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&albumID, "album", "", "album id")
	cmd.Flags().StringVar(&f.strategy, "strategy", string(model.StrategyBatch), "batch or sequential")
	cmd.Flags().BoolVar(&f.autoSequential, "auto-sequential", false, "switch to sequential mode when the policy recommends it")
	cmd.Flags().BoolVar(&f.feed, "feed", false, "publish progress on the Redis bus")
	cmd.Flags().StringVar(&f.origin, "origin", "", "public origin used to print absolute URLs")
	_ = cmd.MarkFlagRequired("album")
	return cmd
}

func newAdvertMediaCmd(a *app) *cobra.Command {
	var f uploadFlags
	var advertID, role string

	cmd := &cobra.Command{
		Use:   "advert-media --advert ID --role image|video FILE",
		Short: "Replace an advert's image or video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			assetRole := model.AssetRole(strings.ToLower(role))
			if assetRole != model.AssetRoleImage && assetRole != model.AssetRoleVideo {
				return fmt.Errorf("unknown role %q (use image or video)", role)
			}
			candidate, err := upload.LoadCandidate(args[0])
			if err != nil {
				return err
			}
			orch, err := a.orchestrator(false)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			reporter, release, err := a.reporter(ctx, "advert-"+advertID, f.feed)
			if err != nil {
				return err
			}
			defer release()

			item, err := orch.UploadAsset(ctx, advertID, assetRole, candidate, reporter)
			if err != nil {
				return fmt.Errorf("%s", upload.UserMessage(err))
			}
			return printJSON(cmd.OutOrStdout(), a.publisher(f.origin).PublishItem(item))
		},
	}
	cmd.Flags().StringVar(&advertID, "advert", "", "advert id")
	cmd.Flags().StringVar(&role, "role", "", "image or video")
	cmd.Flags().BoolVar(&f.feed, "feed", false, "publish progress on the Redis bus")
	cmd.Flags().StringVar(&f.origin, "origin", "", "public origin used to print absolute URLs")
	_ = cmd.MarkFlagRequired("advert")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}
