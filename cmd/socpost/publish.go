package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mikequentel/socpost/internal/publish"
)

type publishOptions struct {
	platform string
	message  string
	link     string
	files    []string
	dryRun   bool
}

func newPublishCommand(ctx *commandContext) *cobra.Command {
	var opts publishOptions
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish a message with optional link and media",
		Example: `  socpost publish -p facebook -m "Hello" -f a.jpg -f b.jpg
  socpost publish -p instagram -m "Reel" -l https://example.com/clip.mp4
  socpost publish -p x -m "Preview only" --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPublish(cmd, ctx, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.platform, "platform", "p", "", "Target platform (facebook, twitter|x, instagram, linkedin)")
	cmd.Flags().StringVarP(&opts.message, "message", "m", "", "Post text")
	cmd.Flags().StringVarP(&opts.link, "link", "l", "", "Link to attach")
	cmd.Flags().StringArrayVarP(&opts.files, "file", "f", nil, "Media file; repeat for several, order is kept")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", os.Getenv("DRY_RUN") == "1", "Validate and show the plan without network calls")
	_ = cmd.MarkFlagRequired("platform")
	return cmd
}

func runPublish(cmd *cobra.Command, ctx *commandContext, opts publishOptions) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	p, err := publish.ParsePlatform(opts.platform)
	if err != nil {
		return err
	}

	atts := make([]publish.Attachment, 0, len(opts.files))
	for _, path := range opts.files {
		if err := ensureFile(path); err != nil {
			return fmt.Errorf("media missing or unreadable: %s (%v)", path, err)
		}
		atts = append(atts, publish.Attachment{Path: path})
	}
	media, err := publish.Classify(atts)
	if err != nil {
		return err
	}
	req := publish.PublishRequest{Text: opts.message, Link: opts.link, Media: media}
	out := cmd.OutOrStdout()

	if opts.dryRun {
		plan, err := ctx.orchestrator(cfg, nil).Plan(p, req)
		if err != nil {
			return err
		}
		printPlan(out, plan)
		return nil
	}

	store, err := ctx.openHistory(cfg)
	if err != nil {
		return err
	}
	var observers []publish.Observer
	if store != nil {
		defer store.Close()
		observers = append(observers, store)
	}
	res := ctx.orchestrator(cfg, nil, observers...).Publish(cmd.Context(), p, req)
	if !res.Success {
		return fmt.Errorf("%s", res.Error.UserMessage())
	}
	fmt.Fprintf(out, "Posted to %s (%s): %s\n", p.Title(), res.Strategy, res.PostID)
	return nil
}

func printPlan(w io.Writer, plan publish.Plan) {
	fmt.Fprintln(w, "DRY RUN ✅ (no network calls)")
	fmt.Fprintf(w, "Platform: %s\nStrategy: %s\n", plan.Platform.Title(), plan.Strategy)
	text := plan.Text
	if plan.Platform == publish.Twitter {
		text = publish.TweetText(plan.Text, plan.Link)
	} else if plan.Link != "" {
		fmt.Fprintf(w, "Link: %s\n", plan.Link)
	}
	fmt.Fprintf(w, "Will post:\n---\n%s\n---\n", text)
	for i, m := range plan.Media {
		fmt.Fprintf(w, "Media %d: %s (%s)\n", i+1, m.Location, m.Kind)
	}
	if plan.Dropped > 0 {
		fmt.Fprintf(w, "Dropped: %d item(s) over the platform limit\n", plan.Dropped)
	}
}

func ensureFile(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	if fi.IsDir() {
		return fmt.Errorf("path is a directory, not a file: %s", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	// Basic read to ensure permissions
	_, _ = f.Read(make([]byte, 1))
	return nil
}
