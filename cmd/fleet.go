package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/carelink/medfleet/config"
	"github.com/carelink/medfleet/core/model"
)

var fleetCmd = &cobra.Command{
	Use:   "fleet",
	Short: "Fleet related commands",
}

var fleetLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List registered vehicles",
	RunE:  runFleetLs,
}

func init() {
	fleetCmd.AddCommand(fleetLsCmd)
	rootCmd.AddCommand(fleetCmd)
}

func runFleetLs(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	resp, err := http.Get(apiURL(cfg, "/api/vehicles"))
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("service returned %s", resp.Status)
	}
	var vehicles []model.Vehicle
	if err := json.NewDecoder(resp.Body).Decode(&vehicles); err != nil {
		return err
	}
	for _, v := range vehicles {
		fmt.Printf("%s\t%s\t%s\tbattery=%.0f%%\n", v.ID, v.Kind, v.Status, v.BatteryLevel*100)
	}
	return nil
}
