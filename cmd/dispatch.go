package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/carelink/medfleet/config"
	"github.com/carelink/medfleet/core/model"
)

var (
	dispatchFile      string
	dispatchEmergency bool
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Submit a delivery request to a running service",
	RunE:  runDispatch,
}

func init() {
	dispatchCmd.Flags().StringVarP(&dispatchFile, "request", "r", "", "JSON file holding the delivery request")
	dispatchCmd.Flags().BoolVar(&dispatchEmergency, "emergency", false, "submit through the emergency escalation lane")
	rootCmd.AddCommand(dispatchCmd)
}

func runDispatch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if dispatchFile == "" {
		return fmt.Errorf("--request is required")
	}
	raw, err := os.ReadFile(dispatchFile)
	if err != nil {
		return err
	}
	var req model.DeliveryRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return fmt.Errorf("parse request: %w", err)
	}
	if req.RequestedAt.IsZero() {
		req.RequestedAt = time.Now().UTC()
	}
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}

	path := "/api/deliveries"
	if dispatchEmergency {
		path = "/api/deliveries/emergency"
	}
	resp, err := http.Post(apiURL(cfg, path), "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	fmt.Printf("%s\n%s\n", resp.Status, out)
	return nil
}

func apiURL(cfg *config.Config, path string) string {
	addr := cfg.API.ListenAddr
	if addr[0] == ':' {
		addr = "localhost" + addr
	}
	return "http://" + addr + path
}
