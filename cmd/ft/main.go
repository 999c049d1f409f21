package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fastodo/internal/app"
	"fastodo/internal/config"
	"fastodo/internal/db"
	"fastodo/internal/reconcile"
	"fastodo/internal/state"
	"fastodo/internal/stub"
)

var rootCmd = &cobra.Command{
	Use:   "ft",
	Short: "Fastodo CLI",
	Long: `Fastodo is an offline-first task manager.
Every change applies locally first and lands in a durable queue; 'ft sync'
replays the queue against the backend and folds the authoritative ids and
statuses back in. No network, no problem: the queue waits.
- Workspace: a directory with a .fastodo database and a fastodo.yml.
- Workspaces (the entities): named containers of todos and goals; one is
  always current and the default one can never be deleted.
- Todos: tasks with priority and completion, synced to the backend.
- Goals: progress counters with a target; local only.
- Pending operations: the replay queue, view with 'ft ops list'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if viper.GetBool("verbose") {
			slog.SetLogLoggerLevel(slog.LevelDebug)
		} else {
			slog.SetLogLoggerLevel(slog.LevelWarn)
		}
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("FASTODO")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("user-id", "", "acting user id (overrides session and config)")
	rootCmd.PersistentFlags().Bool("verbose", false, "debug logging")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("user-id", rootCmd.PersistentFlags().Lookup("user-id"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(workspaceCmd())
	rootCmd.AddCommand(useCmd())
	rootCmd.AddCommand(todoCmd())
	rootCmd.AddCommand(goalCmd())
	rootCmd.AddCommand(opsCmd())
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(pullCmd())
	rootCmd.AddCommand(signinCmd())
	rootCmd.AddCommand(signupCmd())
	rootCmd.AddCommand(signoutCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	var backendURL string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg := config.Default()
			if backendURL != "" {
				cfg.Backend.URL = backendURL
			}
			if _, err := os.Stat(config.Path(workspace)); os.IsNotExist(err) {
				if err := cfg.Write(workspace); err != nil {
					return err
				}
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				ws, _ := a.State.CurrentWorkspace()
				fmt.Printf("Initialized fastodo workspace in %s (current: %s)\n", workspace, ws.Name)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&backendURL, "backend-url", "", "backend base URL")
	return cmd
}

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show workspace status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				cur, _ := a.State.CurrentWorkspace()
				pending := a.Ops.List(ctx)
				out := map[string]any{
					"currentWorkspace": cur.Name,
					"workspaces":       len(a.State.Workspaces()),
					"todos":            len(cur.Todos),
					"goals":            len(cur.Goals),
					"pendingOps":       len(pending),
					"signedIn":         a.Client.Token != "",
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				fmt.Printf("Current workspace: %s (%s)\n", cur.Name, cur.ID)
				fmt.Printf("Workspaces: %d  Todos here: %d  Goals here: %d\n",
					len(a.State.Workspaces()), len(cur.Todos), len(cur.Goals))
				fmt.Printf("Pending operations: %d\n", len(pending))
				if a.Client.Token == "" {
					fmt.Println("Signed in: no (run 'ft signin')")
				} else {
					fmt.Println("Signed in: yes")
				}
				return nil
			})
		},
	}
	return cmd
}

func workspaceCmd() *cobra.Command {
	ws := &cobra.Command{
		Use:   "workspace",
		Short: "Manage workspaces",
		Long:  "Workspaces group todos and goals. Creates and renames are optimistic: they show up instantly with a temporary id and sync later.",
	}
	ws.AddCommand(workspaceListCmd())
	ws.AddCommand(workspaceAddCmd())
	ws.AddCommand(workspaceRenameCmd())
	ws.AddCommand(workspaceDeleteCmd())
	ws.AddCommand(useCmd())
	return ws
}

func workspaceListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List workspaces",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				workspaces := a.State.Workspaces()
				if viper.GetBool("json") {
					return printJSON(workspaces)
				}
				cur, _ := a.State.CurrentWorkspace()
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"", "ID", "Name", "Todos", "Goals", "Sync"})
				for _, w := range workspaces {
					marker := ""
					if w.ID == cur.ID {
						marker = "*"
					}
					tw.AppendRow(table.Row{marker, w.ID, w.Name, len(w.Todos), len(w.Goals), w.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func workspaceAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				ws, err := a.State.AddWorkspace(ctx, args[0], userID(a))
				if err != nil {
					return err
				}
				return printJSONOrTable(ws)
			})
		},
	}
	return cmd
}

func workspaceRenameCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "rename <workspace> <new-name>",
		Aliases: []string{"edit"},
		Short:   "Rename a workspace",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				target, err := resolveWorkspace(a, args[0])
				if err != nil {
					return err
				}
				ws, err := a.State.EditWorkspace(ctx, target.ID, args[1], userID(a))
				if err != nil {
					return err
				}
				return printJSONOrTable(ws)
			})
		},
	}
	return cmd
}

func workspaceDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <workspace>",
		Short: "Delete a workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				target, err := resolveWorkspace(a, args[0])
				if err != nil {
					return err
				}
				if err := a.State.DeleteWorkspace(ctx, target.ID, userID(a)); err != nil {
					return err
				}
				fmt.Printf("Deleted workspace %s\n", target.Name)
				return nil
			})
		},
	}
	return cmd
}

func useCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "use <workspace>",
		Short: "Switch the current workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				target, err := resolveWorkspace(a, args[0])
				if err != nil {
					return err
				}
				if err := a.State.SetCurrentWorkspace(ctx, target.ID); err != nil {
					return err
				}
				fmt.Printf("Now using %s\n", target.Name)
				return nil
			})
		},
	}
	return cmd
}

func todoCmd() *cobra.Command {
	todo := &cobra.Command{
		Use:   "todo",
		Short: "Manage todos",
		Long:  "Todos live in the current workspace unless --in names another one. New todos carry a temporary id until the backend confirms them.",
	}
	todo.AddCommand(todoListCmd())
	todo.AddCommand(todoAddCmd())
	todo.AddCommand(todoUpdateCmd())
	todo.AddCommand(todoToggleCmd())
	todo.AddCommand(todoDeleteCmd())
	return todo
}

func todoListCmd() *cobra.Command {
	var in string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List todos",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				ws, err := resolveWorkspace(a, in)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(ws.Todos)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Task", "Priority", "Done", "Sync"})
				for _, t := range ws.Todos {
					done := ""
					if t.Completed {
						done = "x"
					}
					tw.AppendRow(table.Row{t.ID, t.Text, t.Priority, done, t.SyncStatus})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&in, "in", "", "workspace name or id")
	return cmd
}

func todoAddCmd() *cobra.Command {
	var in, priority string
	cmd := &cobra.Command{
		Use:   "add <text>",
		Short: "Add a todo",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				ws, err := resolveWorkspace(a, in)
				if err != nil {
					return err
				}
				todo, err := a.State.AddTodo(ctx, ws.ID, strings.Join(args, " "), state.Priority(priority), userID(a))
				if err != nil {
					return err
				}
				return printJSONOrTable(todo)
			})
		},
	}
	cmd.Flags().StringVar(&in, "in", "", "workspace name or id")
	cmd.Flags().StringVar(&priority, "priority", "", "low, medium or high")
	return cmd
}

func todoUpdateCmd() *cobra.Command {
	var in, text, priority string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a todo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				ws, err := resolveWorkspace(a, in)
				if err != nil {
					return err
				}
				current, err := findTodo(ws, args[0])
				if err != nil {
					return err
				}
				if !cmd.Flags().Changed("text") {
					text = current.Text
				}
				if !cmd.Flags().Changed("priority") {
					priority = string(current.Priority)
				}
				todo, err := a.State.UpdateTodo(ctx, ws.ID, args[0], text, state.Priority(priority))
				if err != nil {
					return err
				}
				return printJSONOrTable(todo)
			})
		},
	}
	cmd.Flags().StringVar(&in, "in", "", "workspace name or id")
	cmd.Flags().StringVar(&text, "text", "", "new task text")
	cmd.Flags().StringVar(&priority, "priority", "", "low, medium or high")
	return cmd
}

func todoToggleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "toggle <id>",
		Short: "Toggle a todo's completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				todo, err := a.State.ToggleTodo(ctx, args[0], userID(a))
				if err != nil {
					return err
				}
				return printJSONOrTable(todo)
			})
		},
	}
	return cmd
}

func todoDeleteCmd() *cobra.Command {
	var in string
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a todo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				ws, err := resolveWorkspace(a, in)
				if err != nil {
					return err
				}
				if err := a.State.DeleteTodo(ctx, ws.ID, args[0]); err != nil {
					return err
				}
				fmt.Println("Deleted", args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&in, "in", "", "workspace name or id")
	return cmd
}

func goalCmd() *cobra.Command {
	goal := &cobra.Command{
		Use:   "goal",
		Short: "Manage goals",
		Long:  "Goals are local progress counters with a target. They never sync.",
	}
	goal.AddCommand(goalListCmd())
	goal.AddCommand(goalAddCmd())
	goal.AddCommand(goalUpdateCmd())
	goal.AddCommand(goalDeleteCmd())
	goal.AddCommand(goalStepCmd("inc", "Increase progress by one", (*state.Store).IncrementGoal))
	goal.AddCommand(goalStepCmd("dec", "Decrease progress by one", (*state.Store).DecrementGoal))
	goal.AddCommand(goalToggleCmd())
	return goal
}

func goalListCmd() *cobra.Command {
	var in string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List goals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				ws, err := resolveWorkspace(a, in)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(ws.Goals)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Progress", "Category"})
				for _, g := range ws.Goals {
					tw.AppendRow(table.Row{g.ID, g.Title, fmt.Sprintf("%d/%d", g.Progress, g.Target), g.Category})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&in, "in", "", "workspace name or id")
	return cmd
}

func goalAddCmd() *cobra.Command {
	var in, category string
	var target int
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Add a goal",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				ws, err := resolveWorkspace(a, in)
				if err != nil {
					return err
				}
				goal, err := a.State.AddGoal(ctx, ws.ID, strings.Join(args, " "), target, category)
				if err != nil {
					return err
				}
				return printJSONOrTable(goal)
			})
		},
	}
	cmd.Flags().StringVar(&in, "in", "", "workspace name or id")
	cmd.Flags().IntVar(&target, "target", 1, "target count")
	cmd.Flags().StringVar(&category, "category", "", "category label")
	return cmd
}

func goalUpdateCmd() *cobra.Command {
	var in, title, category string
	var target int
	cmd := &cobra.Command{
		Use:     "update <id>",
		Aliases: []string{"edit"},
		Short:   "Update a goal",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				ws, err := resolveWorkspace(a, in)
				if err != nil {
					return err
				}
				current, err := findGoal(ws, args[0])
				if err != nil {
					return err
				}
				if !cmd.Flags().Changed("title") {
					title = current.Title
				}
				if !cmd.Flags().Changed("target") {
					target = current.Target
				}
				if !cmd.Flags().Changed("category") {
					category = current.Category
				}
				goal, err := a.State.UpdateGoal(ctx, ws.ID, args[0], title, target, category)
				if err != nil {
					return err
				}
				return printJSONOrTable(goal)
			})
		},
	}
	cmd.Flags().StringVar(&in, "in", "", "workspace name or id")
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().IntVar(&target, "target", 0, "new target")
	cmd.Flags().StringVar(&category, "category", "", "new category")
	return cmd
}

func goalDeleteCmd() *cobra.Command {
	var in string
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a goal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				ws, err := resolveWorkspace(a, in)
				if err != nil {
					return err
				}
				if err := a.State.DeleteGoal(ctx, ws.ID, args[0]); err != nil {
					return err
				}
				fmt.Println("Deleted", args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&in, "in", "", "workspace name or id")
	return cmd
}

func goalStepCmd(use, short string, step func(*state.Store, context.Context, string, string) (state.Goal, error)) *cobra.Command {
	var in string
	cmd := &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				ws, err := resolveWorkspace(a, in)
				if err != nil {
					return err
				}
				goal, err := step(a.State, ctx, ws.ID, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(goal)
			})
		},
	}
	cmd.Flags().StringVar(&in, "in", "", "workspace name or id")
	return cmd
}

func goalToggleCmd() *cobra.Command {
	var in string
	cmd := &cobra.Command{
		Use:   "toggle <id>",
		Short: "Complete a goal, or reset a completed one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				ws, err := resolveWorkspace(a, in)
				if err != nil {
					return err
				}
				goal, err := a.State.ToggleGoalCompleted(ctx, ws.ID, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(goal)
			})
		},
	}
	cmd.Flags().StringVar(&in, "in", "", "workspace name or id")
	return cmd
}

func opsCmd() *cobra.Command {
	ops := &cobra.Command{
		Use:   "ops",
		Short: "Inspect the pending operation queue",
	}
	ops.AddCommand(opsListCmd())
	return ops
}

func opsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				pending := a.Ops.List(ctx)
				if viper.GetBool("json") {
					return printJSON(pending)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Type", "Queued", "Retries"})
				for _, op := range pending {
					tw.AppendRow(table.Row{op.ID, op.Type, op.Timestamp.Format(time.RFC3339), op.RetryCount})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func syncCmd() *cobra.Command {
	var watch bool
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Replay pending operations against the backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				stats, err := a.Runner.Drain(ctx)
				if err != nil && !errors.Is(err, reconcile.ErrDrainInProgress) {
					return err
				}
				printStats(stats)
				if !watch {
					return nil
				}
				if interval <= 0 {
					interval = a.Config.SyncInterval()
				}
				fmt.Printf("Watching; draining every %s (ctrl-c to stop)\n", interval)
				a.Runner.RunEvery(ctx, interval)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "keep draining on an interval")
	cmd.Flags().DurationVar(&interval, "interval", 0, "drain interval (defaults to config)")
	return cmd
}

func printStats(stats reconcile.Stats) {
	if viper.GetBool("json") {
		_ = printJSON(stats)
		return
	}
	fmt.Printf("Processed %d: %d succeeded, %d retried, %d abandoned\n",
		stats.Processed, stats.Succeeded, stats.Retried, stats.Abandoned)
}

func pullCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pull",
		Short: "List the workspaces the backend knows about",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				uid := userID(a)
				if uid == "" {
					return fmt.Errorf("no user id; sign in or pass --user-id")
				}
				resp, err := a.Client.UserWorkspaces(ctx, uid)
				if err != nil {
					return err
				}
				if resp.Success == "false" {
					return fmt.Errorf("pull failed: %s", resp.Error)
				}
				if viper.GetBool("json") {
					return printJSON(resp.Response)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name"})
				for _, w := range resp.Response {
					tw.AppendRow(table.Row{w.ID, w.Name})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func signinCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "signin",
		Short: "Sign in to the backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				session, err := a.Client.SignIn(ctx, email, password)
				if err != nil {
					return err
				}
				if err := a.SaveSession(session); err != nil {
					return err
				}
				fmt.Printf("Signed in as %s\n", session.Email)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func signupCmd() *cobra.Command {
	var email, password, fullName string
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create a backend account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				session, err := a.Client.SignUp(ctx, email, password, fullName)
				if err != nil {
					return err
				}
				if err := a.SaveSession(session); err != nil {
					return err
				}
				fmt.Printf("Signed up as %s\n", session.Email)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	cmd.Flags().StringVar(&fullName, "name", "", "full name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func signoutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signout",
		Short: "Drop the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.ClearSession(); err != nil {
					return err
				}
				fmt.Println("Signed out")
				return nil
			})
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the in-memory stand-in backend",
		Long:  "Serves the backend API with in-memory storage. Useful for trying the sync loop locally; state is gone when the process exits.",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := viper.GetString("jwt-secret")
			if secret == "" {
				return fmt.Errorf("jwt secret is required (--jwt-secret or FASTODO_JWT_SECRET)")
			}
			handler := stub.NewServer(secret, slog.Default()).Handler()
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving fastodo backend on http://%s\n", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().String("jwt-secret", "", "session signing secret")
	_ = viper.BindPFlag("jwt-secret", cmd.Flags().Lookup("jwt-secret"))
	return cmd
}

// --- helpers ---

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	a, err := app.New(ctx, viper.GetString("workspace"), slog.Default())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

// userID resolves the acting user: flag, then session, then config.
func userID(a *app.App) string {
	if uid := viper.GetString("user-id"); uid != "" {
		return uid
	}
	return a.UserID()
}

// resolveWorkspace matches a workspace by id, then by name. An empty ref
// means the current workspace.
func resolveWorkspace(a *app.App, ref string) (state.Workspace, error) {
	if ref == "" {
		ws, ok := a.State.CurrentWorkspace()
		if !ok {
			return state.Workspace{}, fmt.Errorf("no current workspace; run 'ft use'")
		}
		return ws, nil
	}
	if ws, err := a.State.Workspace(ref); err == nil {
		return ws, nil
	}
	for _, ws := range a.State.Workspaces() {
		if ws.Name == ref {
			return ws, nil
		}
	}
	return state.Workspace{}, state.ErrWorkspaceNotFound
}

func findTodo(ws state.Workspace, id string) (state.Todo, error) {
	for _, t := range ws.Todos {
		if t.ID == id {
			return t, nil
		}
	}
	return state.Todo{}, state.ErrTodoNotFound
}

func findGoal(ws state.Workspace, id string) (state.Goal, error) {
	for _, g := range ws.Goals {
		if g.ID == id {
			return g, nil
		}
	}
	return state.Goal{}, state.ErrGoalNotFound
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
