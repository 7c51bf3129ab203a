package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/d4ckard/shuttle/pkg/runner"
)

var reloadAPIPort int

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Rebuild the unit and swap in the new generation",
	Long: `Ask a running shuttle instance to rebuild the unit and replace the
serving generation with the fresh one. If the build fails, the current
generation keeps serving and the build error is reported.

Examples:
  # Reload the running unit
  shuttle reload

  # Reload via a custom control API port
  shuttle reload --api-port 9585`,
	RunE: runReload,
}

func init() {
	reloadCmd.Flags().IntVar(&reloadAPIPort, "api-port", 8585, "Control API port")
}

func runReload(cmd *cobra.Command, args []string) error {
	status, err := postControl(reloadAPIPort, "reload")
	if err != nil {
		return err
	}

	fmt.Printf("Reloaded %s (generation %s)\n", status.Project, status.Generation)
	return nil
}

// postControl issues a control API action and returns the resulting status.
func postControl(port int, action string) (runner.Status, error) {
	// Reloads include a full build, give them time.
	client := &http.Client{Timeout: 90 * time.Second}

	resp, err := client.Post(fmt.Sprintf("http://localhost:%d/api/v1/%s", port, action), "", nil)
	if err != nil {
		return runner.Status{}, fmt.Errorf("shuttle is not running or the control API is unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var envelope apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return runner.Status{}, fmt.Errorf("invalid control API response: %w", err)
	}
	if envelope.Status != "ok" {
		return runner.Status{}, fmt.Errorf("%s failed: %s", action, envelope.Error)
	}

	return envelope.Data, nil
}
