package cli

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/BrennanVollmar/vplm/internal/app"
	"github.com/BrennanVollmar/vplm/internal/blob"
	"github.com/BrennanVollmar/vplm/internal/models"
	"github.com/spf13/cobra"
)

func (r *runner) jobCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Create, list and delete jobs",
	}
	cmd.AddCommand(r.jobAddCmd(), r.jobListCmd(), r.jobDeleteCmd())
	return cmd
}

func (r *runner) jobAddCmd() *cobra.Command {
	var (
		j        models.Job
		lat, lon float64
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a job and queue it for sync",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("lat") {
				j.Lat = &lat
			}
			if cmd.Flags().Changed("lon") {
				j.Lon = &lon
			}
			return r.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := a.Records.SaveJob(ctx, &j); err != nil {
					return err
				}
				r.printf("%s\n", j.ID)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&j.ClientName, "client", "", "client name")
	f.StringVar(&j.SiteName, "site", "", "site name")
	f.StringVar(&j.Address, "address", "", "site address")
	f.StringVar(&j.CreatedBy, "by", "", "author")
	f.Float64Var(&lat, "lat", 0, "latitude")
	f.Float64Var(&lon, "lon", 0, "longitude")
	_ = cmd.MarkFlagRequired("client")
	return cmd
}

func (r *runner) jobListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.withApp(cmd, func(ctx context.Context, a *app.App) error {
				jobs, err := a.Records.ListJobs(ctx)
				if err != nil {
					return err
				}
				for _, j := range jobs {
					r.printf("%s\t%s\t%s\t%s\n", j.ID, j.ClientName, j.SiteName, j.CreatedAt.Format(time.RFC3339))
				}
				return nil
			})
		},
	}
}

func (r *runner) jobDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <job-id>",
		Short: "Delete a job and everything recorded for it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withApp(cmd, func(ctx context.Context, a *app.App) error {
				res, err := a.Records.DeleteJobCascade(ctx, args[0])
				if err != nil {
					return err
				}
				tables := make([]string, 0, len(res.Removed))
				for t := range res.Removed {
					tables = append(tables, t)
				}
				sort.Strings(tables)
				for _, t := range tables {
					r.printf("%s\t%d\n", t, res.Removed[t])
				}
				r.printf("queued %d deletes\n", res.Enqueued)
				return nil
			})
		},
	}
}

func (r *runner) noteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "note",
		Short: "Field notes",
	}

	var tags []string
	add := &cobra.Command{
		Use:   "add <job-id> [text]",
		Short: "Add a note to a job; without text the body is read from stdin",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := ""
			if len(args) == 2 {
				text = args[1]
			} else {
				var err error
				if text, err = GetMultiline(r.in, "Note text:", r.out); err != nil {
					return err
				}
			}
			if text == "" {
				return errors.New("empty note")
			}

			return r.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if _, err := a.Records.GetJob(ctx, args[0]); err != nil {
					return err
				}
				n := &models.Note{JobID: args[0], Text: text, Tags: tags}
				if err := a.Records.SaveNote(ctx, n); err != nil {
					return err
				}
				r.printf("%s\n", n.ID)
				return nil
			})
		},
	}
	add.Flags().StringSliceVar(&tags, "tag", nil, "tag, repeatable")

	cmd.AddCommand(add)
	return cmd
}

func (r *runner) photoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "photo",
		Short: "Job photos",
	}

	var caption, mimeType string
	add := &cobra.Command{
		Use:   "add <job-id> <file>",
		Short: "Attach an image file to a job",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[1]
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			if mimeType == "" {
				mimeType = detectMIME(path, data)
			}

			return r.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if _, err := a.Records.GetJob(ctx, args[0]); err != nil {
					return err
				}
				p := &models.Photo{
					JobID:    args[0],
					Caption:  caption,
					LocalURI: path,
					Blob:     blob.FromBytes(data, mimeType),
				}
				if err := a.Records.SavePhoto(ctx, p); err != nil {
					return err
				}
				r.printf("%s\n", p.ID)
				return nil
			})
		},
	}
	add.Flags().StringVar(&caption, "caption", "", "photo caption")
	add.Flags().StringVar(&mimeType, "mime", "", "MIME type (detected when empty)")

	cmd.AddCommand(add)
	return cmd
}

// detectMIME guesses from the extension first, then from the content.
func detectMIME(path string, data []byte) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return http.DetectContentType(data)
}

