package poller

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

const (
	queryHeader  = "\xff\xff\xff\xff"
	getStatus    = queryHeader + "getstatus\n"
	queryTimeout = 2 * time.Second
	maxResponse  = 65535
)

// PlayerStatus is one player entry from a server status response
type PlayerStatus struct {
	Name  string
	Score int
	Ping  int
}

// ServerStatus is the parsed result of a getstatus query
type ServerStatus struct {
	Address string
	Name    string
	Map     string
	Players []PlayerStatus
}

// StatusClient queries game servers via the UDP out-of-band protocol
type StatusClient struct{}

// NewStatusClient creates a new status client
func NewStatusClient() *StatusClient {
	return &StatusClient{}
}

// Query sends a getstatus request and parses the response
func (c *StatusClient) Query(address string) (*ServerStatus, error) {
	conn, err := net.DialTimeout("udp", address, queryTimeout)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", address, err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(queryTimeout))

	if _, err := conn.Write([]byte(getStatus)); err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}

	buf := make([]byte, maxResponse)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	return parseStatusResponse(address, buf[:n])
}

// parseStatusResponse parses the raw response from a game server
// Format: \xff\xff\xff\xffstatusResponse\n<vars>\n<player1>\n<player2>...
func parseStatusResponse(address string, data []byte) (*ServerStatus, error) {
	response := string(data)

	if !strings.HasPrefix(response, queryHeader+"statusResponse\n") {
		return nil, fmt.Errorf("invalid response prefix")
	}
	response = strings.TrimPrefix(response, queryHeader+"statusResponse\n")

	lines := strings.Split(response, "\n")
	if len(lines) < 1 {
		return nil, fmt.Errorf("no data in response")
	}

	status := &ServerStatus{Address: address}

	vars := parseVars(lines[0])
	status.Map = vars["mapname"]
	if name := vars["sv_hostname"]; name != "" {
		status.Name = CleanName(name)
	}

	for i := 1; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		player, err := parsePlayerLine(line)
		if err != nil {
			continue // Skip malformed player lines
		}
		status.Players = append(status.Players, player)
	}

	return status, nil
}

// parseVars parses backslash-separated key/value pairs
// Format: \key1\value1\key2\value2...
func parseVars(line string) map[string]string {
	vars := make(map[string]string)
	parts := strings.Split(line, "\\")

	// Skip first empty part if line starts with \
	start := 0
	if len(parts) > 0 && parts[0] == "" {
		start = 1
	}

	for i := start; i+1 < len(parts); i += 2 {
		vars[strings.ToLower(parts[i])] = parts[i+1]
	}

	return vars
}

// parsePlayerLine parses a player line from the status response
// Format: <score> <ping> "<name>"
func parsePlayerLine(line string) (PlayerStatus, error) {
	var player PlayerStatus

	quoteStart := strings.Index(line, "\"")
	quoteEnd := strings.LastIndex(line, "\"")
	if quoteStart == -1 || quoteEnd <= quoteStart {
		return player, fmt.Errorf("no quoted name found")
	}

	player.Name = CleanName(line[quoteStart+1 : quoteEnd])

	parts := strings.Fields(line[:quoteStart])
	if len(parts) >= 2 {
		player.Score, _ = strconv.Atoi(parts[0])
		player.Ping, _ = strconv.Atoi(parts[1])
	}

	return player, nil
}

// CleanName strips color escape sequences (^ followed by one character) from
// a player or server name.
func CleanName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	skip := false
	for _, r := range name {
		if skip {
			skip = false
			continue
		}
		if r == '^' {
			skip = true
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}
