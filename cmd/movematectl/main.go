// Command movematectl is the operator CLI for a running movemated:
// health checks, ticket triage, and config validation.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/movemate-io/movemate/internal/config"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	switch os.Args[1] {
	case "health":
		cmdHealth()
	case "tickets":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: movematectl tickets <list|show|status|queue>")
			os.Exit(1)
		}
		switch os.Args[2] {
		case "list":
			cmdTicketsList(os.Args[3:])
		case "show":
			requireArg(4, "movematectl tickets show <id>")
			cmdTicketsShow(os.Args[3])
		case "status":
			requireArg(5, "movematectl tickets status <id> <open|in_progress|closed>")
			cmdTicketsStatus(os.Args[3], os.Args[4])
		case "queue":
			requireArg(5, "movematectl tickets queue <id> <position>")
			cmdTicketsQueue(os.Args[3], os.Args[4])
		default:
			fmt.Fprintf(os.Stderr, "unknown tickets subcommand: %s\n", os.Args[2])
			os.Exit(1)
		}
	case "conversations":
		if len(os.Args) < 4 || os.Args[2] != "reset" {
			fmt.Fprintln(os.Stderr, "usage: movematectl conversations reset <id>")
			os.Exit(1)
		}
		cmdConversationsReset(os.Args[3])
	case "logs":
		cmdLogs(os.Args[2:])
	case "config":
		if len(os.Args) < 4 || os.Args[2] != "validate" {
			fmt.Fprintln(os.Stderr, "usage: movematectl config validate <path>")
			os.Exit(1)
		}
		cmdConfigValidate(os.Args[3])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func requireArg(n int, usage string) {
	if len(os.Args) < n {
		fmt.Fprintln(os.Stderr, "usage: "+usage)
		os.Exit(1)
	}
}

// --- Commands ---

func cmdHealth() {
	body, err := apiGet("/api/health")
	if err != nil {
		fatal(err)
	}
	fmt.Println(string(body))
}

func cmdTicketsList(args []string) {
	fs := flag.NewFlagSet("tickets list", flag.ExitOnError)
	status := fs.String("status", "", "Filter by status (open|in_progress|closed)")
	team := fs.String("team", "", "Filter by team (maintenance|ra)")
	open := fs.Bool("open", false, "Only open and in-progress tickets")
	limit := fs.Int("limit", 50, "Max results")
	fs.Parse(args)

	query := fmt.Sprintf("?limit=%d", *limit)
	if *status != "" {
		query += "&status=" + *status
	}
	if *team != "" {
		query += "&team=" + *team
	}
	if *open {
		query += "&open=true"
	}

	body, err := apiGet("/api/tickets" + query)
	if err != nil {
		fatal(err)
	}
	var tickets []map[string]any
	json.Unmarshal(body, &tickets)
	for _, t := range tickets {
		fmt.Printf("%-38s %-12s %-12s #%-4v %s\n",
			t["id"], t["team"], t["status"], t["queue_position"], t["summary"])
	}
}

func cmdTicketsShow(id string) {
	body, err := apiGet("/api/tickets/" + id)
	if err != nil {
		fatal(err)
	}
	fmt.Println(prettyJSON(body))
}

func cmdTicketsStatus(id, status string) {
	body, err := apiPost("/api/tickets/"+id+"/status", map[string]string{"status": status})
	if err != nil {
		fatal(err)
	}
	fmt.Println(prettyJSON(body))
}

func cmdTicketsQueue(id, position string) {
	var pos int
	if _, err := fmt.Sscanf(position, "%d", &pos); err != nil {
		fatal(fmt.Errorf("invalid position %q", position))
	}
	body, err := apiPost("/api/tickets/"+id+"/queue", map[string]int{"position": pos})
	if err != nil {
		fatal(err)
	}
	fmt.Println(prettyJSON(body))
}

func cmdConversationsReset(id string) {
	body, err := apiDo("DELETE", "/api/conversations/"+id, nil)
	if err != nil {
		fatal(err)
	}
	fmt.Println(string(body))
}

func cmdLogs(args []string) {
	fs := flag.NewFlagSet("logs", flag.ExitOnError)
	level := fs.String("level", "", "Minimum level (info|warn|error)")
	limit := fs.Int("limit", 100, "Max entries")
	fs.Parse(args)

	query := fmt.Sprintf("?limit=%d", *limit)
	if *level != "" {
		query += "&level=" + *level
	}
	body, err := apiGet("/api/logs" + query)
	if err != nil {
		fatal(err)
	}
	var entries []map[string]any
	json.Unmarshal(body, &entries)
	for _, e := range entries {
		fmt.Printf("%-24v %-5v %v\n", e["time"], e["level"], e["message"])
	}
}

func cmdConfigValidate(path string) {
	if _, err := config.Load(path); err != nil {
		fmt.Fprintf(os.Stderr, "invalid: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("config is valid")
}

// --- Helpers ---

func apiGet(path string) ([]byte, error) {
	return apiDo("GET", path, nil)
}

func apiPost(path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return apiDo("POST", path, data)
}

func apiDo(method, path string, payload []byte) ([]byte, error) {
	base := envOr("MOVEMATE_API_URL", "http://localhost:8080")

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, base+path, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key := os.Getenv("MOVEMATE_API_KEY"); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(data))
	}
	return data, nil
}

func prettyJSON(data []byte) string {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return string(data)
	}
	out, _ := json.MarshalIndent(v, "", "  ")
	return string(out)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func printUsage() {
	fmt.Println("movematectl — MoveMate operations CLI")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  health                        Check daemon health")
	fmt.Println("  tickets list                  List tickets (--status, --team, --open, --limit)")
	fmt.Println("  tickets show <id>             Show ticket details")
	fmt.Println("  tickets status <id> <status>  Update ticket status")
	fmt.Println("  tickets queue <id> <pos>      Override a queue position")
	fmt.Println("  conversations reset <id>      Discard a conversation's state")
	fmt.Println("  logs                          Tail recent daemon logs (--level, --limit)")
	fmt.Println("  config validate <path>        Validate a config file")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  MOVEMATE_API_URL  Daemon URL (default: http://localhost:8080)")
	fmt.Println("  MOVEMATE_API_KEY  API key for authentication")
}
