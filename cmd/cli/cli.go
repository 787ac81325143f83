package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/aneeshsunganahalli/gopher-scheduler/pkg/types"
)

var (
	serverURL     string
	apiKey        string
	schedulerName string
	timeout       time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "gopher",
	Short: "Gopher schedules recurring and one-shot jobs",
	Long: `Command line client for the Gopher scheduler.
Jobs are dispatched to a container service, an outbound webhook or a named queue.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	Execute()
}

func init() {
	defaultServer := os.Getenv("GOPHER_SERVER")
	if defaultServer == "" {
		defaultServer = "http://localhost:8080"
	}

	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", defaultServer, "Scheduler API base URL")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("GOPHER_API_KEY"), "API key sent as X-API-Key")
	rootCmd.PersistentFlags().StringVar(&schedulerName, "scheduler", "", "Scheduler instance (default instance when empty)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout")

	setupCommands(rootCmd, os.Stdout)
}

func newAPIClient() *client {
	return newClient(serverURL, apiKey, schedulerName, timeout)
}

func setupCommands(root *cobra.Command, out io.Writer) {
	// Schedule job command
	var name, jobType, pattern, payload string
	var once, disabled bool
	var scheduleCmd = &cobra.Command{
		Use:   "schedule",
		Short: "Schedule a job",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := types.JobRequest{
				Name:            name,
				Type:            types.JobType(jobType),
				SchedulePattern: pattern,
			}
			if payload != "" {
				if !json.Valid([]byte(payload)) {
					return fmt.Errorf("payload is not valid JSON")
				}
				req.Payload = json.RawMessage(payload)
			}
			if once {
				recurring := false
				req.Recurring = &recurring
			}
			if disabled {
				enabled := false
				req.Enabled = &enabled
			}
			return call(cmd.Context(), out, http.MethodPost, newAPIClient().path("/jobs"), req)
		},
	}
	scheduleCmd.Flags().StringVarP(&name, "name", "n", "", "Job name (required)")
	scheduleCmd.Flags().StringVarP(&jobType, "type", "t", "", "Job type: container, webhook or queue (required)")
	scheduleCmd.Flags().StringVarP(&pattern, "pattern", "p", "", "Interval like 5m or a cron expression (required)")
	scheduleCmd.Flags().StringVar(&payload, "payload", "", "Job payload as JSON")
	scheduleCmd.Flags().BoolVar(&once, "once", false, "Run once and remove the job")
	scheduleCmd.Flags().BoolVar(&disabled, "disabled", false, "Create the job disabled")
	scheduleCmd.MarkFlagRequired("name")
	scheduleCmd.MarkFlagRequired("type")
	scheduleCmd.MarkFlagRequired("pattern")

	var listCmd = &cobra.Command{
		Use:   "list",
		Short: "List scheduled jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd.Context(), out, http.MethodGet, newAPIClient().path("/jobs"), nil)
		},
	}

	var statusCmd = &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show a job and its running execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd.Context(), out, http.MethodGet, newAPIClient().path("/jobs/"+url.PathEscape(args[0])), nil)
		},
	}

	var cancelCmd = &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd.Context(), out, http.MethodDelete, newAPIClient().path("/jobs/"+url.PathEscape(args[0])), nil)
		},
	}

	var triggerCmd = &cobra.Command{
		Use:   "trigger <job-id>",
		Short: "Run a job now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd.Context(), out, http.MethodPost, newAPIClient().path("/jobs/"+url.PathEscape(args[0])+"/trigger"), nil)
		},
	}

	var enableCmd = &cobra.Command{
		Use:   "enable <job-id>",
		Short: "Enable a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd.Context(), out, http.MethodPost, newAPIClient().path("/jobs/"+url.PathEscape(args[0])+"/enable"), nil)
		},
	}

	var disableCmd = &cobra.Command{
		Use:   "disable <job-id>",
		Short: "Disable a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd.Context(), out, http.MethodPost, newAPIClient().path("/jobs/"+url.PathEscape(args[0])+"/disable"), nil)
		},
	}

	var historyJob string
	var historyLimit int
	var historyCmd = &cobra.Command{
		Use:   "history",
		Short: "Show archived executions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if historyJob != "" {
				q.Set("jobId", historyJob)
			}
			if historyLimit > 0 {
				q.Set("limit", strconv.Itoa(historyLimit))
			}
			path := newAPIClient().path("/history")
			if len(q) > 0 {
				path += "?" + q.Encode()
			}
			return call(cmd.Context(), out, http.MethodGet, path, nil)
		},
	}
	historyCmd.Flags().StringVarP(&historyJob, "job", "j", "", "Only show executions of this job")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 0, "Maximum number of executions")

	var statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show scheduler statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd.Context(), out, http.MethodGet, newAPIClient().path("/stats"), nil)
		},
	}

	var healthCmd = &cobra.Command{
		Use:   "health",
		Short: "Check server and store health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd.Context(), out, http.MethodGet, "/health", nil)
		},
	}

	root.AddCommand(scheduleCmd, listCmd, statusCmd, cancelCmd, triggerCmd,
		enableCmd, disableCmd, historyCmd, statsCmd, healthCmd)
}

// call performs one API request and pretty-prints the returned data
func call(ctx context.Context, out io.Writer, method, path string, body interface{}) error {
	if ctx == nil {
		ctx = context.Background()
	}

	data, err := newAPIClient().do(ctx, method, path, body)
	if err != nil {
		return err
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		_, err = fmt.Fprintln(out, string(data))
		return err
	}
	_, err = fmt.Fprintln(out, pretty.String())
	return err
}
