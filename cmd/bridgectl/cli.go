package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"bridged/pkg/types"
)

// buildRootCmd constructs the bridgectl command tree over the control API.
func buildRootCmd() *cobra.Command {
	addr := envStr("BRIDGED_ADDR", "127.0.0.1:8765")

	root := &cobra.Command{
		Use:           "bridgectl",
		Short:         "Control the bridged daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&addr, "addr", addr, "bridged control API address (defaults BRIDGED_ADDR)")

	statusCmd := &cobra.Command{Use: "status", Short: "Show backend connection status", RunE: func(cmd *cobra.Command, args []string) error {
		var st types.StatusResponse
		if err := getJSON(addr, "/status", &st); err != nil {
			return err
		}
		fmt.Printf("connected=%v backend_running=%v port=%d confirmed=%v\n",
			st.Connected, st.BackendRunning, st.Port, st.PortConfirmed)
		return nil
	}}

	chatCmd := &cobra.Command{Use: "chat <message>", Short: "Send a chat message and print the reply", Args: cobra.MinimumNArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		var reply types.ChatReply
		if err := postJSON(addr, "/chat", types.ChatRequest{Message: strings.Join(args, " ")}, &reply); err != nil {
			return err
		}
		fmt.Println(reply.Response)
		if reply.ActionExecuted != "" {
			fmt.Printf("(action: %s)\n", reply.ActionExecuted)
		}
		return nil
	}}

	modelCmd := &cobra.Command{Use: "model", Short: "Model management", RunE: func(cmd *cobra.Command, args []string) error {
		return fmt.Errorf("model requires a subcommand: switch|status")
	}}
	modelSwitch := &cobra.Command{Use: "switch <name>", Short: "Switch the backend model", Args: cobra.ExactArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		var st types.SwitchStatus
		if err := postJSON(addr, "/model/switch", types.SwitchRequest{Model: args[0]}, &st); err != nil {
			return err
		}
		fmt.Printf("phase=%s progress=%d%%\n", st.Phase, st.Progress)
		return nil
	}}
	modelStatus := &cobra.Command{Use: "status", Short: "Show the current switch job", RunE: func(cmd *cobra.Command, args []string) error {
		var st types.SwitchStatus
		if err := getJSON(addr, "/model/switch", &st); err != nil {
			return err
		}
		fmt.Printf("active=%v model=%s phase=%s progress=%d%% %s\n",
			st.Active, st.Model, st.Phase, st.Progress, st.Message)
		return nil
	}}
	modelCmd.AddCommand(modelSwitch, modelStatus)

	settingsCmd := &cobra.Command{Use: "settings", Short: "Inspect or change preferences", RunE: func(cmd *cobra.Command, args []string) error {
		return fmt.Errorf("settings requires a subcommand: get|set")
	}}
	settingsGet := &cobra.Command{Use: "get [key]", Short: "Print preferences", Args: cobra.MaximumNArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		var out struct {
			Settings map[string]string `json:"settings"`
		}
		if err := getJSON(addr, "/settings", &out); err != nil {
			return err
		}
		if len(args) == 1 {
			fmt.Println(out.Settings[args[0]])
			return nil
		}
		for k, v := range out.Settings {
			fmt.Printf("%s=%s\n", k, v)
		}
		return nil
	}}
	settingsSet := &cobra.Command{Use: "set <key> <value>", Short: "Update one preference", Args: cobra.ExactArgs(2), RunE: func(cmd *cobra.Command, args []string) error {
		var out struct {
			Settings map[string]string `json:"settings"`
		}
		return putJSON(addr, "/settings", map[string]string{args[0]: args[1]}, &out)
	}}
	settingsCmd.AddCommand(settingsGet, settingsSet)

	eventsCmd := &cobra.Command{Use: "events", Short: "Tail the daemon notification stream", RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := http.Get("http://" + addr + "/events")
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			fmt.Println(sc.Text())
		}
		return sc.Err()
	}}

	root.AddCommand(statusCmd, chatCmd, modelCmd, settingsCmd, eventsCmd)
	return root
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

var httpClient = &http.Client{Timeout: 60 * time.Second}

func getJSON(addr, path string, dst any) error {
	resp, err := httpClient.Get("http://" + addr + path)
	if err != nil {
		return err
	}
	return decodeResponse(resp, dst)
}

func postJSON(addr, path string, payload, dst any) error {
	return sendJSON(http.MethodPost, addr, path, payload, dst)
}

func putJSON(addr, path string, payload, dst any) error {
	return sendJSON(http.MethodPut, addr, path, payload, dst)
}

func sendJSON(method, addr, path string, payload, dst any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(method, "http://"+addr+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	return decodeResponse(resp, dst)
}

func decodeResponse(resp *http.Response, dst any) error {
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e types.ErrorResponse
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			return fmt.Errorf("%s (http %d)", e.Error, resp.StatusCode)
		}
		return fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if dst == nil {
		return nil
	}
	return json.Unmarshal(body, dst)
}
