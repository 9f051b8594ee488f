package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/asheshgoplani/recall/internal/parser"
	"github.com/asheshgoplani/recall/internal/session"
)

type listFlags struct {
	filterFlags
	limit int
}

func listCmd(c *cli) *cobra.Command {
	var f listFlags
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List recent sessions as JSON",
		Args:    withInvalidInput(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := c.list(cmd.Context(), f)
			if err != nil {
				return err
			}
			return c.output().Print(out)
		},
	}
	f.register(cmd)
	cmd.Flags().IntVarP(&f.limit, "limit", "n", 20, "Maximum number of sessions")
	return cmd
}

func (c *cli) list(ctx context.Context, f listFlags) (session.ListOutput, error) {
	out := session.ListOutput{Sessions: []session.SummaryOutput{}}
	if err := checkLimit("limit", f.limit); err != nil {
		return out, err
	}
	filter, err := f.compile(c.clock())
	if err != nil {
		return out, err
	}

	idx, err := c.openIndex(ctx)
	if err != nil {
		return out, err
	}
	defer idx.Close()

	if f.limit == 0 {
		return out, nil
	}
	recent, err := idx.Recent(f.limit * 2)
	if err != nil {
		return out, err
	}
	for _, r := range filter.apply(recent, f.limit) {
		out.Sessions = append(out.Sessions, r.Session.ToSummaryOutput())
	}
	return out, nil
}

func readCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "read <session-id>",
		Short: "Print a whole session as JSON",
		Args:  withInvalidInput(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := c.read(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return c.output().Print(out)
		},
	}
}

func (c *cli) read(ctx context.Context, id string) (session.ReadOutput, error) {
	idx, err := c.openIndex(ctx)
	if err != nil {
		return session.ReadOutput{}, err
	}
	defer idx.Close()

	path, err := idx.GetByID(id)
	if err != nil {
		return session.ReadOutput{}, err
	}
	s, err := parser.ParseFile(path)
	if err != nil {
		return session.ReadOutput{}, err
	}
	return s.ToReadOutput(), nil
}
