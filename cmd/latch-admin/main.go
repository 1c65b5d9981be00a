// ABOUTME: Admin CLI for latch-gateway door controller management
// ABOUTME: Talks to the gateway's JSON API over HTTP with basic auth

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
)

const banner = `
 _       _       _                       _           _
| | __ _| |_ ___| |__          __ _  __| |_ __ ___ (_)_ __
| |/ _' | __/ __| '_ \ _____  / _' |/ _' | '_ ' _ \| | '_ \
| | (_| | || (__| | | |_____|| (_| | (_| | | | | | | | | | |
|_|\__,_|\__\___|_| |_|       \__,_|\__,_|_| |_| |_|_|_| |_|
`

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	baseURL := os.Getenv("LATCH_GATEWAY_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	password := os.Getenv("LATCH_ADMIN_PASSWORD")

	cli := &client{baseURL: baseURL, password: password}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "status":
		err = cmdStatus(cli)
	case "history":
		err = cmdHistory(cli)
	case "users":
		err = cmdUsers(cli)
	case "grant":
		err = cmdGrant(cli, args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: latch-admin <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  status             Show door and strike state")
	fmt.Println("  history            Show recent access events")
	fmt.Println("  users              List registered users")
	fmt.Println("  grant <seconds>    Open the door for N seconds (1-3600)")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  LATCH_GATEWAY_URL       Gateway base URL (default http://localhost:8080)")
	fmt.Println("  LATCH_ADMIN_PASSWORD    Admin password for the API")
}

type client struct {
	baseURL  string
	password string
}

func (c *client) do(method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.SetBasicAuth("admin", c.password)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	httpClient := &http.Client{Timeout: 10 * time.Second}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("unauthorized: set LATCH_ADMIN_PASSWORD")
	}
	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&e) == nil && e.Error != "" {
			return fmt.Errorf("%s", e.Error)
		}
		return fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

func cmdStatus(c *client) error {
	var st struct {
		DoorOpen       bool   `json:"door_open"`
		RelayEnergized bool   `json:"relay_energized"`
		Visual         string `json:"visual"`
	}
	if err := c.do(http.MethodGet, "/api/status", nil, &st); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()

	fmt.Print("  Door:      ")
	if st.DoorOpen {
		red.Println("OPEN")
	} else {
		green.Println("CLOSED")
	}
	fmt.Print("  Strike:    ")
	if st.RelayEnergized {
		green.Println("RELEASED")
	} else {
		yellow.Println("LOCKED")
	}
	fmt.Printf("  Indicator: %s\n", st.Visual)
	return nil
}

func cmdHistory(c *client) error {
	var events []struct {
		Timestamp  string `json:"timestamp"`
		Method     string `json:"method"`
		Identifier string `json:"identifier"`
		Actor      string `json:"actor"`
		Outcome    string `json:"outcome"`
	}
	if err := c.do(http.MethodGet, "/api/history", nil, &events); err != nil {
		return err
	}

	if len(events) == 0 {
		fmt.Println("No access events recorded.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tMETHOD\tCREDENTIAL\tUSER\tRESULT")
	for _, ev := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", ev.Timestamp, ev.Method, ev.Identifier, ev.Actor, ev.Outcome)
	}
	return w.Flush()
}

func cmdUsers(c *client) error {
	var users []struct {
		Index  int    `json:"index"`
		Name   string `json:"name"`
		HasPIN bool   `json:"has_pin"`
		HasTag bool   `json:"has_tag"`
	}
	if err := c.do(http.MethodGet, "/api/users", nil, &users); err != nil {
		return err
	}

	if len(users) == 0 {
		fmt.Println("No users registered.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tNAME\tPIN\tTAG")
	for _, u := range users {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", u.Index, u.Name, yesNo(u.HasPIN), yesNo(u.HasTag))
	}
	return w.Flush()
}

func cmdGrant(c *client, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: latch-admin grant <seconds>")
	}
	seconds, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("seconds must be a number")
	}

	if err := c.do(http.MethodPost, "/api/grant", map[string]int{"seconds": seconds}, nil); err != nil {
		return err
	}
	color.Green("Door open for %d seconds.\n", seconds)
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "-"
}
