package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/keepmind9/chatbridge/internal/core"
	"github.com/keepmind9/chatbridge/pkg/constants"
	"github.com/spf13/cobra"
)

var (
	statusAddr string
	statusJSON bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show status of a running chatbridge",
	Long:  "Query /healthz of a running chatbridge and print the health of every platform",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		url := strings.TrimRight(statusAddr, "/") + "/healthz"

		client := &http.Client{Timeout: constants.DefaultHTTPTimeout}
		resp, err := client.Get(url)
		if err != nil {
			return fmt.Errorf("failed to reach chatbridge at %s: %w", statusAddr, err)
		}
		defer resp.Body.Close()

		var report core.HealthReport
		if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
			return fmt.Errorf("failed to decode health report: %w", err)
		}

		if statusJSON {
			output, _ := json.Marshal(report)
			fmt.Fprintln(out, string(output))
		} else {
			fmt.Fprintln(out, "chatbridge status:")
			fmt.Fprintf(out, "  - Status: %s\n", report.Status)
			platforms := make([]string, 0, len(report.Platforms))
			for p := range report.Platforms {
				platforms = append(platforms, p)
			}
			sort.Strings(platforms)
			for _, p := range platforms {
				mark := "✅"
				if report.Platforms[p] != "ok" {
					mark = "❌"
				}
				fmt.Fprintf(out, "  %s %s: %s\n", mark, p, report.Platforms[p])
			}
		}

		if report.Status != "ok" {
			return fmt.Errorf("chatbridge is %s", report.Status)
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusAddr, "addr", "http://localhost:8080", "Base URL of the running chatbridge")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output in JSON format")
}
