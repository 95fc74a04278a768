// apicmd.go
// The api command: companion request/response calls for deployments without the realtime matchmaker.
package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/erilali/turing/internal/api"
	"github.com/urfave/cli/v3"
)

func apiCommand() *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "call the companion HTTP API",
		Commands: []*cli.Command{
			{
				Name:  "queue",
				Usage: "enter the matchmaking queue",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if err := apiClient().Enqueue(ctx); err != nil {
						return err
					}
					return printJSON(map[string]bool{"queued": true})
				},
			},
			{
				Name:  "poll",
				Usage: "poll for a match, optionally until one is found",
				Flags: []cli.Flag{
					&cli.DurationFlag{Name: "every", Usage: "keep polling at this interval until matched"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					res, err := pollUntilMatched(ctx, apiClient(), cmd.Duration("every"))
					if err != nil {
						return err
					}
					return printJSON(res)
				},
			},
			{
				Name:  "accept",
				Usage: "accept a pending match",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "match", Required: true, Usage: "match id"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					res, err := apiClient().Accept(ctx, cmd.String("match"))
					if err != nil {
						return err
					}
					return printJSON(res)
				},
			},
			{
				Name:  "guess",
				Usage: "submit whether the witness was the AI",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "game", Required: true, Usage: "game id"},
					&cli.BoolFlag{Name: "ai", Usage: "the witness was the AI"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					game, err := apiClient().Guess(ctx, cmd.String("game"), cmd.Bool("ai"))
					if err != nil {
						return err
					}
					return printJSON(game)
				},
			},
		},
	}
}

func apiClient() *api.Client {
	return api.New(rt.cfg.APIBase, rt.token, api.WithLogger(rt.log.WithField("component", "api")))
}

func pollUntilMatched(ctx context.Context, c *api.Client, every time.Duration) (api.PollResult, error) {
	for {
		res, err := c.Poll(ctx)
		if err != nil || res.Matched || every <= 0 {
			return res, err
		}
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		case <-time.After(every):
		}
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
