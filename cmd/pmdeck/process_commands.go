package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loykin/pmdeck/pkg/client"
)

func createListCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List registered processes",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := newClient(flags).List(cmd.Context())
			if err != nil {
				return err
			}
			printJSON(cmd, list)
			return nil
		},
	}
}

func createGetCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := newClient(flags).Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printJSON(cmd, p)
			return nil
		},
	}
}

// createLifecycleCommand builds start, stop and restart, which share the
// "<id> | --all" shape.
func createLifecycleCommand(flags *GlobalFlags, verb, short string) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:     verb + " [id]",
		Short:   short,
		Example: fmt.Sprintf("  pmdeck %s 3\n  pmdeck %s --all", verb, verb),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 1) || len(args) > 1 {
				return errors.New("specify exactly one process id or --all")
			}
			c := newClient(flags)
			var (
				res client.OperationResult
				err error
			)
			if all {
				res, err = bulkOp(cmd.Context(), c, verb)
			} else {
				res, err = singleOp(cmd.Context(), c, verb, args[0])
			}
			return report(cmd, res, err)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "apply to every registered process")
	return cmd
}

func singleOp(ctx context.Context, c *client.Client, verb, id string) (client.OperationResult, error) {
	switch verb {
	case "start":
		return c.Start(ctx, id)
	case "stop":
		return c.Stop(ctx, id)
	default:
		return c.Restart(ctx, id)
	}
}

func bulkOp(ctx context.Context, c *client.Client, verb string) (client.OperationResult, error) {
	switch verb {
	case "start":
		return c.StartAll(ctx)
	case "stop":
		return c.StopAll(ctx)
	default:
		return c.RestartAll(ctx)
	}
}

func createAddCommand(flags *GlobalFlags) *cobra.Command {
	req := client.AddRequest{}
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a new process",
		Example: `  pmdeck add --name web --script "node server.js" --cwd /srv/web
  pmdeck add --name worker --script ./worker --args "--queue default" --instances 4 --autostart`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := newClient(flags).Add(cmd.Context(), req)
			return report(cmd, res, err)
		},
	}
	cmd.Flags().StringVar(&req.Name, "name", "", "process name")
	cmd.Flags().StringVar(&req.Script, "script", "", "executable or shell command line")
	cmd.Flags().StringVar(&req.Cwd, "cwd", "", "absolute working directory")
	cmd.Flags().StringVar(&req.Args, "args", "", "argument string appended to the script")
	cmd.Flags().IntVar(&req.Instances, "instances", 1, "number of OS processes")
	cmd.Flags().BoolVar(&req.AutoStart, "autostart", false, "start now and on every supervisor boot")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("script")
	return cmd
}

func createUpdateCommand(flags *GlobalFlags) *cobra.Command {
	var (
		name, script, cwd, args string
		instances               int
		autostart, restart      bool
	)
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change fields of a registered process",
		Long: `Change fields of a registered process. Only flags given on the command line
are sent. --restart forces or suppresses a restart of a running process; without
it the server policy decides.`,
		Example: `  pmdeck update 3 --name api
  pmdeck update 3 --script "node v2.js" --restart=false`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, pos []string) error {
			f := cmd.Flags()
			var req client.UpdateRequest
			if f.Changed("name") {
				req.Name = &name
			}
			if f.Changed("script") {
				req.Script = &script
			}
			if f.Changed("cwd") {
				req.Cwd = &cwd
			}
			if f.Changed("args") {
				req.Args = &args
			}
			if f.Changed("instances") {
				req.Instances = &instances
			}
			if f.Changed("autostart") {
				req.AutoStart = &autostart
			}
			var rs *bool
			if f.Changed("restart") {
				rs = &restart
			}
			res, err := newClient(flags).Update(cmd.Context(), pos[0], req, rs)
			return report(cmd, res, err)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new name")
	cmd.Flags().StringVar(&script, "script", "", "new script")
	cmd.Flags().StringVar(&cwd, "cwd", "", "new working directory")
	cmd.Flags().StringVar(&args, "args", "", "new argument string")
	cmd.Flags().IntVar(&instances, "instances", 1, "new instance count")
	cmd.Flags().BoolVar(&autostart, "autostart", false, "new autostart flag")
	cmd.Flags().BoolVar(&restart, "restart", false, "restart a running process after the update")
	return cmd
}

func createDeleteCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Stop and remove a process",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := newClient(flags).Delete(cmd.Context(), args[0])
			return report(cmd, res, err)
		},
	}
}

func createLogsCommand(flags *GlobalFlags) *cobra.Command {
	var lines int
	cmd := &cobra.Command{
		Use:   "logs <id>",
		Short: "Print recent stdout and stderr lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logs, err := newClient(flags).Logs(cmd.Context(), args[0], lines)
			if err != nil {
				return err
			}
			printJSON(cmd, logs)
			return nil
		},
	}
	cmd.Flags().IntVar(&lines, "lines", 100, "trailing lines per stream, 0 for all retained")
	return cmd
}

func createMetricsCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Print the process summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := newClient(flags).Metrics(cmd.Context())
			if err != nil {
				return err
			}
			printJSON(cmd, m)
			return nil
		},
	}
}

func createVersionCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the server version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := newClient(flags).Version(cmd.Context())
			if err != nil {
				return err
			}
			printJSON(cmd, v)
			return nil
		},
	}
}
