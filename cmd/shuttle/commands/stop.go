package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var stopAPIPort int

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Gracefully stop the running unit",
	Long: `Ask a running shuttle instance to stop serving the unit. The unit is
given the configured grace period to shut down cooperatively before it is
abandoned. Stopping an already stopped unit succeeds.

Examples:
  # Stop the running unit
  shuttle stop

  # Stop via a custom control API port
  shuttle stop --api-port 9585`,
	RunE: runStop,
}

func init() {
	stopCmd.Flags().IntVar(&stopAPIPort, "api-port", 8585, "Control API port")
}

func runStop(cmd *cobra.Command, args []string) error {
	status, err := postControl(stopAPIPort, "stop")
	if err != nil {
		return err
	}

	fmt.Printf("Stopped %s\n", status.Project)
	return nil
}
