package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"pollpulse/internal/transport/httpdto"
	"pollpulse/internal/voteguard"
)

const usage = `
pollpulse - Voter CLI

Usage:
  pollctl [command] [flags]

Commands:
  token             Print this device's anonymous voter token
  vote <poll-id> <option> [option...]
                    Submit or change a vote on a poll
  voted <poll-id>   Check whether this device already voted on a poll
  tally <poll-id>   Fetch the current tally for a poll

Flags:
  -server string    Base URL of the pollpulse API (default "http://localhost:8080")
  -state string     Path to the local guard state file (default "pollpulse-guard.db")
  -change           Resubmit even if this device already voted

Examples:
  go run cmd/pollctl/main.go vote 7f0f... Red
  go run cmd/pollctl/main.go tally 7f0f...
`

func main() {
	server := flag.String("server", "http://localhost:8080", "base URL of the pollpulse API")
	statePath := flag.String("state", "pollpulse-guard.db", "path to the local guard state file")
	change := flag.Bool("change", false, "resubmit even if this device already voted")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	guard, err := voteguard.Open(*statePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer guard.Close()

	cli := &client{base: strings.TrimRight(*server, "/"), guard: guard}

	switch args[0] {
	case "token":
		err = cli.printToken()
	case "vote":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: pollctl vote <poll-id> <option> [option...]")
			os.Exit(2)
		}
		err = cli.vote(args[1], args[2:], *change)
	case "voted":
		if len(args) != 2 {
			fmt.Fprintln(os.Stderr, "usage: pollctl voted <poll-id>")
			os.Exit(2)
		}
		err = cli.voted(args[1])
	case "tally":
		if len(args) != 2 {
			fmt.Fprintln(os.Stderr, "usage: pollctl tally <poll-id>")
			os.Exit(2)
		}
		err = cli.tally(args[1])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type client struct {
	base  string
	guard *voteguard.Guard
}

func (c *client) printToken() error {
	token, err := c.guard.DeviceToken()
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func (c *client) vote(pollID string, options []string, change bool) error {
	// The local flag only catches repeats from this device; the server's
	// per-voter upsert is what actually deduplicates.
	voted, err := c.guard.HasVoted(pollID)
	if err != nil {
		return err
	}
	if voted && !change {
		return fmt.Errorf("this device already voted on poll %s (use -change to resubmit)", pollID)
	}

	body, err := json.Marshal(httpdto.SubmitVoteRequest{SelectedOptions: options})
	if err != nil {
		return err
	}
	var resp httpdto.Response[httpdto.VoteResponse]
	if err := c.do(http.MethodPost, "/v1/polls/"+pollID+"/votes", body, &resp); err != nil {
		return err
	}
	if err := c.guard.MarkVoted(pollID); err != nil {
		return err
	}
	fmt.Printf("vote recorded: %s\n", strings.Join(resp.Data.SelectedOptions, ", "))
	return nil
}

func (c *client) voted(pollID string) error {
	local, err := c.guard.HasVoted(pollID)
	if err != nil {
		return err
	}
	var resp httpdto.Response[struct {
		HasVoted bool `json:"has_voted"`
	}]
	if err := c.do(http.MethodGet, "/v1/polls/"+pollID+"/voted", nil, &resp); err != nil {
		return err
	}
	fmt.Printf("this device: %v\nserver: %v\n", local, resp.Data.HasVoted)
	return nil
}

func (c *client) tally(pollID string) error {
	var resp httpdto.Response[httpdto.TallyResponse]
	if err := c.do(http.MethodGet, "/v1/polls/"+pollID+"/tally", nil, &resp); err != nil {
		return err
	}
	fmt.Printf("total: %d\n", resp.Data.Total)
	for option, count := range resp.Data.Counts {
		fmt.Printf("  %s: %d (%.2f%%)\n", option, count, resp.Data.Percents[option])
	}
	return nil
}

func (c *client) do(method, path string, body []byte, out interface{}) error {
	token, err := c.guard.DeviceToken()
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("X-Device-Token", token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unexpected response (%d): %s", res.StatusCode, strings.TrimSpace(string(data)))
	}
	if res.StatusCode >= 400 {
		var failure httpdto.Response[any]
		_ = json.Unmarshal(data, &failure)
		if failure.Error != "" {
			return fmt.Errorf("%s (%s)", failure.Error, failure.Code)
		}
		return fmt.Errorf("request failed with status %d", res.StatusCode)
	}
	return nil
}
