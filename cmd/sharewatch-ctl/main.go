// Package main provides the sharewatch-ctl CLI for querying a running
// sharewatch service.
//
// Usage:
//
//	sharewatch-ctl users [--addr <url>] [--api-key <key>] --path <file>
//	sharewatch-ctl active [--addr <url>] [--api-key <key>] [--format table|csv]
//	sharewatch-ctl user [--addr <url>] [--api-key <key>] --name <userName>
//	sharewatch-ctl refresh [--addr <url>] [--api-key <key>]
//	sharewatch-ctl status [--addr <url>] [--api-key <key>]
//	sharewatch-ctl convert [--addr <url>] [--api-key <key>] --path <file>
package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"
)

const defaultAddr = "http://localhost:5100"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "users":
		runUsers(os.Args[2:])
	case "active":
		runActive(os.Args[2:])
	case "user":
		runUser(os.Args[2:])
	case "refresh":
		runRefresh(os.Args[2:])
	case "status":
		runStatus(os.Args[2:])
	case "convert":
		runConvert(os.Args[2:])
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprint(os.Stderr, "sharewatch-ctl — sharewatch query CLI\n\n")
	fmt.Fprint(os.Stderr, "Usage:\n")
	fmt.Fprint(os.Stderr, "  sharewatch-ctl <command> [flags]\n\n")
	fmt.Fprint(os.Stderr, "Commands:\n")
	fmt.Fprint(os.Stderr, "  users    Show who has a given file open\n")
	fmt.Fprint(os.Stderr, "  active   List all currently open files\n")
	fmt.Fprint(os.Stderr, "  user     List files a user has open\n")
	fmt.Fprint(os.Stderr, "  refresh  Force an immediate cache refresh\n")
	fmt.Fprint(os.Stderr, "  status   Show service health and cache state\n")
	fmt.Fprint(os.Stderr, "  convert  Show path translations for a file path\n\n")
	fmt.Fprint(os.Stderr, "Use \"sharewatch-ctl <command> --help\" for more information about a command.\n")
}

// commonFlags registers the flags every subcommand shares.
func commonFlags(fs *flag.FlagSet) (addr, apiKey *string) {
	addr = fs.String("addr", defaultAddr, "Base URL of the sharewatch service")
	apiKey = fs.String("api-key", os.Getenv("SHAREWATCH_API_KEY"), "API key (defaults to $SHAREWATCH_API_KEY)")
	return addr, apiKey
}

// runUsers implements "sharewatch-ctl users".
func runUsers(args []string) {
	fs := flag.NewFlagSet("users", flag.ExitOnError)
	addr, apiKey := commonFlags(fs)
	path := fs.String("path", "", "File path to look up (UNC or local, required)")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, "Usage: sharewatch-ctl users [flags]\n\nShow who has a given file open.\n\nFlags:\n")
		fs.PrintDefaults()
		fmt.Fprint(os.Stderr, "\nExamples:\n")
		fmt.Fprint(os.Stderr, "  sharewatch-ctl users --path '\\\\fileserver\\projects\\report.xlsx'\n")
		fmt.Fprint(os.Stderr, "  sharewatch-ctl users --path 'D:\\Shares\\Projects\\report.xlsx'\n")
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if *path == "" {
		fmt.Fprintln(os.Stderr, "Error: --path is required")
		fs.Usage()
		os.Exit(1)
	}

	var result fileUsersResponse
	status, err := getJSON(*addr, "/files/users", url.Values{"filePath": {*path}}, *apiKey, &result)
	if err != nil {
		fatal(err)
	}
	if status == http.StatusNotFound {
		fmt.Printf("Not open: %s\n", *path)
		return
	}

	fmt.Println("Open File Users")
	fmt.Println("────────────────────────────────────")
	fmt.Printf("File:      %s\n", result.FilePath)
	fmt.Printf("Users:     %d\n", result.UserCount)
	fmt.Printf("As of:     %s\n", result.LastUpdated.Format("2006-01-02 15:04:05"))
	fmt.Println("────────────────────────────────────")
	for _, u := range result.Users {
		fmt.Printf("  - %-20s %-12s %s\n", u.UserName, u.ClientName, u.AccessMode)
	}
}

// fileUsersResponse mirrors the service's users-of-file payload, whose
// users field carries full open-file records, not bare names.
type fileUsersResponse struct {
	FilePath string `json:"filePath"`
	Users    []struct {
		UserName   string `json:"userName"`
		ClientName string `json:"clientName"`
		AccessMode string `json:"accessMode"`
	} `json:"users"`
	UserCount   int       `json:"userCount"`
	LastUpdated time.Time `json:"lastUpdated"`
	Message     string    `json:"message"`
}

// runActive implements "sharewatch-ctl active".
func runActive(args []string) {
	fs := flag.NewFlagSet("active", flag.ExitOnError)
	addr, apiKey := commonFlags(fs)
	format := fs.String("format", "table", "Output format: table, csv")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, "Usage: sharewatch-ctl active [flags]\n\nList all currently open files.\n\nFlags:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	var result struct {
		Count int `json:"count"`
		Files []struct {
			FilePath   string    `json:"filePath"`
			UserCount  int       `json:"userCount"`
			LastAccess time.Time `json:"lastAccess"`
		} `json:"files"`
	}
	if _, err := getJSON(*addr, "/files/active", nil, *apiKey, &result); err != nil {
		fatal(err)
	}

	switch *format {
	case "csv":
		w := csv.NewWriter(os.Stdout)
		w.Write([]string{"path", "users", "last_access"})
		for _, f := range result.Files {
			w.Write([]string{f.FilePath,
				fmt.Sprintf("%d", f.UserCount),
				f.LastAccess.Format("2006-01-02 15:04:05")})
		}
		w.Flush()
	default:
		fmt.Printf("Active Files (%d)\n", result.Count)
		fmt.Println("────────────────────────────────────────────────────────────")
		fmt.Printf("%-45s %6s %s\n", "PATH", "USERS", "LAST ACCESS")
		fmt.Println("────────────────────────────────────────────────────────────")
		for _, f := range result.Files {
			fmt.Printf("%-45s %6d %s\n", truncPath(f.FilePath, 45), f.UserCount,
				f.LastAccess.Format("2006-01-02 15:04"))
		}
		if len(result.Files) == 0 {
			fmt.Println("  (no open files)")
		}
		fmt.Println("────────────────────────────────────────────────────────────")
	}
}

// runUser implements "sharewatch-ctl user".
func runUser(args []string) {
	fs := flag.NewFlagSet("user", flag.ExitOnError)
	addr, apiKey := commonFlags(fs)
	name := fs.String("name", "", "User name to look up (required)")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, "Usage: sharewatch-ctl user [flags]\n\nList files a user has open.\n\nFlags:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if *name == "" {
		fmt.Fprintln(os.Stderr, "Error: --name is required")
		fs.Usage()
		os.Exit(1)
	}

	var result struct {
		UserName string `json:"userName"`
		Count    int    `json:"count"`
		Files    []struct {
			FilePath   string `json:"filePath"`
			ClientName string `json:"clientName"`
			AccessMode string `json:"accessMode"`
		} `json:"files"`
	}
	if _, err := getJSON(*addr, "/files/user/"+url.PathEscape(*name), nil, *apiKey, &result); err != nil {
		fatal(err)
	}

	fmt.Printf("Files open by %s (%d)\n", result.UserName, result.Count)
	fmt.Println("────────────────────────────────────────────────────────────")
	fmt.Printf("%-45s %-12s %s\n", "PATH", "CLIENT", "MODE")
	fmt.Println("────────────────────────────────────────────────────────────")
	for _, f := range result.Files {
		fmt.Printf("%-45s %-12s %s\n", truncPath(f.FilePath, 45), f.ClientName, f.AccessMode)
	}
	if len(result.Files) == 0 {
		fmt.Println("  (no open files)")
	}
	fmt.Println("────────────────────────────────────────────────────────────")
}

// runRefresh implements "sharewatch-ctl refresh".
func runRefresh(args []string) {
	fs := flag.NewFlagSet("refresh", flag.ExitOnError)
	addr, apiKey := commonFlags(fs)
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, "Usage: sharewatch-ctl refresh [flags]\n\nForce an immediate cache refresh.\n\nFlags:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	var result struct {
		Message    string    `json:"message"`
		FilesCount int       `json:"filesCount"`
		Timestamp  time.Time `json:"timestamp"`
	}
	if _, err := postJSON(*addr, "/files/refresh", *apiKey, &result); err != nil {
		fatal(err)
	}
	fmt.Printf("%s: %d records at %s\n", result.Message, result.FilesCount,
		result.Timestamp.Format("2006-01-02 15:04:05"))
}

// runStatus implements "sharewatch-ctl status".
func runStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	addr, apiKey := commonFlags(fs)
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, "Usage: sharewatch-ctl status [flags]\n\nShow service health and cache state.\n\nFlags:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	var health struct {
		Status    string    `json:"status"`
		Service   string    `json:"service"`
		Timestamp time.Time `json:"timestamp"`
	}
	if _, err := getJSON(*addr, "/files/health", nil, *apiKey, &health); err != nil {
		fatal(err)
	}

	fmt.Println("Sharewatch Status")
	fmt.Println("────────────────────────────────────")
	fmt.Printf("Service:      %s\n", health.Service)
	fmt.Printf("Status:       %s\n", health.Status)

	// Debug needs the guards satisfied; health alone may be all we get.
	var debug struct {
		ServerName string   `json:"serverName"`
		Probes     []string `json:"probes"`
		Cache      struct {
			Records    int       `json:"records"`
			CapturedAt time.Time `json:"capturedAt"`
			ExpiresAt  time.Time `json:"expiresAt"`
			Expired    bool      `json:"expired"`
		} `json:"cache"`
	}
	status, err := getJSON(*addr, "/files/debug", nil, *apiKey, &debug)
	if err != nil || status != http.StatusOK {
		fmt.Println("────────────────────────────────────")
		fmt.Println("  (detailed state unavailable: request rejected by service)")
		return
	}

	fmt.Printf("Server Name:  %s\n", debug.ServerName)
	fmt.Printf("Probes:       %v\n", debug.Probes)
	fmt.Println()
	fmt.Println("Snapshot")
	fmt.Println("────────────────────────────────────")
	fmt.Printf("Records:      %d\n", debug.Cache.Records)
	fmt.Printf("Captured:     %s\n", debug.Cache.CapturedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Expires:      %s\n", debug.Cache.ExpiresAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Expired:      %v\n", debug.Cache.Expired)
	fmt.Println("────────────────────────────────────")
}

// runConvert implements "sharewatch-ctl convert".
func runConvert(args []string) {
	fs := flag.NewFlagSet("convert", flag.ExitOnError)
	addr, apiKey := commonFlags(fs)
	path := fs.String("path", "", "Path to translate (required)")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, "Usage: sharewatch-ctl convert [flags]\n\nShow path translations for a file path.\n\nFlags:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if *path == "" {
		fmt.Fprintln(os.Stderr, "Error: --path is required")
		fs.Usage()
		os.Exit(1)
	}

	var result struct {
		Original string   `json:"original"`
		Variants []string `json:"variants"`
		IsUNC    bool     `json:"isUnc"`
		ToLocal  string   `json:"toLocal"`
		ToUNC    string   `json:"toUnc"`
	}
	if _, err := getJSON(*addr, "/files/convert-path", url.Values{"path": {*path}}, *apiKey, &result); err != nil {
		fatal(err)
	}

	fmt.Println("Path Translation")
	fmt.Println("────────────────────────────────────")
	fmt.Printf("Original:  %s\n", result.Original)
	fmt.Printf("Is UNC:    %v\n", result.IsUNC)
	fmt.Printf("Local:     %s\n", result.ToLocal)
	fmt.Printf("UNC:       %s\n", result.ToUNC)
	fmt.Println("Variants:")
	for _, v := range result.Variants {
		fmt.Printf("  - %s\n", v)
	}
}

// ─── HTTP helpers ─────────────────────────────────────────────

var httpClient = &http.Client{Timeout: 30 * time.Second}

// getJSON performs a GET against the service and decodes the JSON body.
// A 404 is returned as a status, not an error, so lookups can report
// "not open" cleanly. Other non-2xx codes become errors.
func getJSON(addr, path string, query url.Values, apiKey string, out any) (int, error) {
	return doJSON(http.MethodGet, addr, path, query, apiKey, out)
}

// postJSON performs a POST with an empty body.
func postJSON(addr, path, apiKey string, out any) (int, error) {
	return doJSON(http.MethodPost, addr, path, nil, apiKey, out)
}

func doJSON(method, addr, path string, query url.Values, apiKey string, out any) (int, error) {
	u := addr + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequest(method, u, nil)
	if err != nil {
		return 0, err
	}
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request to %s failed: %w", u, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNotFound:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decoding response from %s: %w", u, err)
		}
		return resp.StatusCode, nil
	case resp.StatusCode == http.StatusUnauthorized:
		return resp.StatusCode, fmt.Errorf("unauthorized: provide --api-key or set SHAREWATCH_API_KEY")
	case resp.StatusCode == http.StatusForbidden:
		return resp.StatusCode, fmt.Errorf("forbidden: this address is not in the service allow-list")
	case resp.StatusCode == http.StatusTooManyRequests:
		return resp.StatusCode, fmt.Errorf("rate limited: retry after %s seconds", resp.Header.Get("Retry-After"))
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, fmt.Errorf("%s returned %d: %s", u, resp.StatusCode, string(body))
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func truncPath(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen+3:]
}
