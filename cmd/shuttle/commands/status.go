package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/d4ckard/shuttle/internal/cli/output"
	"github.com/d4ckard/shuttle/pkg/runner"
)

var (
	statusOutput  string
	statusAPIPort int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show unit status",
	Long: `Display the lifecycle status of the supervised unit by querying the
control API of a running shuttle instance.

Examples:
  # Check status (uses default control API port)
  shuttle status

  # Check status with custom API port
  shuttle status --api-port 9585

  # Output as JSON
  shuttle status --output json`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().IntVar(&statusAPIPort, "api-port", 8585, "Control API port")
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

// apiResponse mirrors the control API response envelope.
type apiResponse struct {
	Status string        `json:"status"`
	Data   runner.Status `json:"data"`
	Error  string        `json:"error,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(statusOutput)
	if err != nil {
		return err
	}

	status, err := fetchStatus(statusAPIPort)
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, status)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, status)
	default:
		printStatusTable(status)
	}

	return nil
}

func fetchStatus(port int) (runner.Status, error) {
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(fmt.Sprintf("http://localhost:%d/api/v1/status", port))
	if err != nil {
		return runner.Status{}, fmt.Errorf("shuttle is not running or the control API is unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var envelope apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return runner.Status{}, fmt.Errorf("invalid control API response: %w", err)
	}
	if envelope.Status != "ok" {
		return runner.Status{}, fmt.Errorf("control API error: %s", envelope.Error)
	}

	return envelope.Data, nil
}

func printStatusTable(status runner.Status) {
	fmt.Println()
	fmt.Println("Shuttle Unit Status")
	fmt.Println("===================")
	fmt.Println()

	pairs := [][2]string{
		{"Project", status.Project},
		{"State", stateLabel(status.State)},
		{"Address", status.Address},
	}
	if status.Generation != "" {
		pairs = append(pairs, [2]string{"Generation", status.Generation})
	}
	if status.Error != "" {
		pairs = append(pairs, [2]string{"Error", status.Error})
	}

	_ = output.KeyValueTable(os.Stdout, pairs)
	fmt.Println()
}

func stateLabel(state runner.State) string {
	switch state {
	case runner.StateRunning:
		return "\033[32m● running\033[0m"
	case runner.StateCrashed:
		return "\033[31m● crashed\033[0m"
	case runner.StateStopped:
		return "\033[31m○ stopped\033[0m"
	default:
		return string(state)
	}
}
