// scout - player similarity and alias detection for game server stats
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/klauspost/compress/gzhttp"
	natsserver "github.com/nats-io/nats-server/v2/server"
	flag "github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/ernie/scout-tools/internal/api"
	"github.com/ernie/scout-tools/internal/auth"
	"github.com/ernie/scout-tools/internal/cache"
	"github.com/ernie/scout-tools/internal/config"
	"github.com/ernie/scout-tools/internal/ingest"
	"github.com/ernie/scout-tools/internal/poller"
	"github.com/ernie/scout-tools/internal/similarity"
	"github.com/ernie/scout-tools/internal/storage"
)

var version = "dev"

const defaultConfigPath = "/etc/scout/config.yml"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		cmdServe(os.Args[2:])
	case "similar":
		cmdSimilar(os.Args[2:])
	case "hours":
		cmdHours(os.Args[2:])
	case "activity":
		cmdActivity(os.Args[2:])
	case "servers":
		cmdServers(os.Args[2:])
	case "user":
		cmdUser(os.Args[2:])
	case "version":
		fmt.Printf("scout %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: scout <command> [options] [args]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                               Start the similarity server")
	fmt.Println("  similar <player> [--limit N] [--mode default|alias]")
	fmt.Println("                                      Find players similar to <player>")
	fmt.Println("  hours <player1> <player2>           Compare activity hours of two players")
	fmt.Println("  activity <player>                   Show a player's aggregated activity")
	fmt.Println("  servers                             List registered game servers")
	fmt.Println("  user add [--admin] <username>       Add a user (prompts for password)")
	fmt.Println("  user remove <username>              Remove a user")
	fmt.Println("  user list                           List all users")
	fmt.Println("  user reset <username>               Reset a user's password")
	fmt.Println("  version                             Show version")
	fmt.Println("  help                                Show this help")
	fmt.Println()
	fmt.Println("Global Options:")
	fmt.Println("  --config <path>    Path to configuration file (default /etc/scout/config.yml)")
	fmt.Println("  --url <url>        Base URL of the scout server (default: derived from config)")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  scout serve --config /etc/scout/config.yml")
	fmt.Println("  scout similar UnnamedPlayer --limit 5")
	fmt.Println("  scout similar UnnamedPlayer --mode alias --token $SCOUT_TOKEN")
	fmt.Println("  scout hours Alice Bob")
}

// cmdServe starts the similarity server
func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	fs.Parse(args)

	cfgPath := *configPath
	if cfgPath == "" {
		if _, err := os.Stat(defaultConfigPath); err == nil {
			cfgPath = defaultConfigPath
		} else {
			log.Fatalf("No config file found at %s. Use --config to specify a config file.", defaultConfigPath)
		}
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Printf("Scout %s starting...", version)

	// Initialize storage
	store, err := storage.New(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()
	log.Printf("Database initialized at %s", cfg.Database.Path)

	// Start an embedded NATS server unless an external one is configured
	natsURL := cfg.NATS.URL
	var ns *natsserver.Server
	if natsURL == "" {
		ns, err = natsserver.NewServer(&natsserver.Options{
			Host: cfg.Server.ListenAddr,
			Port: cfg.NATS.Port,
		})
		if err != nil {
			log.Fatalf("Failed to create embedded nats server: %v", err)
		}
		go ns.Start()
		if !ns.ReadyForConnections(5 * time.Second) {
			log.Fatalf("Embedded nats server did not become ready")
		}
		natsURL = ns.ClientURL()
		log.Printf("Embedded NATS server listening on %s", natsURL)
	}

	// Create auth service
	authService := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.TokenDuration)
	if cfg.Auth.JWTSecret == "" {
		log.Printf("Warning: No JWT secret configured. Auth tokens will use an empty secret.")
	}

	// Result cache is optional; the server runs fine without it
	var results *cache.Cache
	if cfg.Redis.Addr != "" {
		results, err = cache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.ResultTTL)
		if err != nil {
			log.Printf("Warning: Redis unavailable, running without result cache: %v", err)
		} else {
			defer results.Close()
			log.Printf("Result cache connected at %s (TTL %v)", cfg.Redis.Addr, cfg.Redis.ResultTTL)
		}
	}

	engine := similarity.New(store)

	// Create HTTP router
	router := api.NewRouter(store, engine, results, authService, cfg.Server.StaticDir)
	router.StartHub()

	// Start ingest consumer
	consumer, err := ingest.NewConsumer(natsURL, store, router.Broadcast)
	if err != nil {
		log.Fatalf("Failed to connect ingest consumer: %v", err)
	}
	if err := consumer.Start(); err != nil {
		log.Fatalf("Failed to start ingest consumer: %v", err)
	}

	// Start the status poller when servers are configured
	var statusPoller *poller.Poller
	if len(cfg.GameServers) > 0 {
		statusPoller = poller.New(store, cfg.GameServers, cfg.Server.PollInterval, router.Broadcast)
		statusPoller.Start()
		log.Printf("Polling %d servers every %v", len(cfg.GameServers), cfg.Server.PollInterval)
	}

	// Start HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.ListenAddr, cfg.Server.HTTPPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      gzhttp.GzipHandler(router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("HTTP server listening on %s", addr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case sig := <-sigCh:
		log.Printf("Received signal %v, shutting down...", sig)
	case err := <-serverErr:
		log.Fatalf("HTTP server error: %v", err)
	}

	// Sequential shutdown
	log.Println("Shutting down HTTP server...")
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer httpCancel()
	if err := server.Shutdown(httpCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	log.Println("Stopping ingest consumer...")
	consumer.Stop()

	if statusPoller != nil {
		log.Println("Stopping status poller...")
		statusPoller.Stop()
	}

	if ns != nil {
		log.Println("Stopping embedded NATS server...")
		ns.Shutdown()
	}

	log.Println("Shutdown complete")
}

// CLI helper variables
var (
	baseURL   = "http://localhost:8080"
	authToken string
	dbPath    string
)

// loadCLIConfigFromFlags loads config using pre-parsed flag values
func loadCLIConfigFromFlags(configPath, urlFlag string) *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		dbPath = "/var/lib/scout/scout.db"
		if urlFlag != "" {
			baseURL = urlFlag
		}
		return nil
	}

	dbPath = cfg.Database.Path
	if urlFlag != "" {
		baseURL = urlFlag
	} else {
		baseURL = fmt.Sprintf("http://%s:%d", cfg.Server.ListenAddr, cfg.Server.HTTPPort)
	}
	return cfg
}

func getJSON(path string, target interface{}) error {
	req, err := http.NewRequest(http.MethodGet, baseURL+path, nil)
	if err != nil {
		return err
	}
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return json.NewDecoder(resp.Body).Decode(target)
}

func cmdSimilar(args []string) {
	fs := flag.NewFlagSet("similar", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to configuration file")
	urlFlag := fs.String("url", "", "base URL of the scout server")
	limit := fs.Int("limit", 10, "number of results to show")
	mode := fs.String("mode", "default", "similarity mode: default or alias")
	token := fs.String("token", "", "auth token (required for alias mode)")
	fs.Parse(args)

	remaining := fs.Args()
	if len(remaining) < 1 {
		fmt.Fprintf(os.Stderr, "usage: scout similar [--limit N] [--mode default|alias] <player>\n")
		os.Exit(1)
	}
	player := remaining[0]

	loadCLIConfigFromFlags(*configPath, *urlFlag)
	authToken = *token
	if authToken == "" {
		authToken = os.Getenv("SCOUT_TOKEN")
	}

	var resp struct {
		Target *struct {
			PlayerName     string  `json:"player_name"`
			TotalPlaytime  float64 `json:"total_playtime_minutes"`
			KDRatio        float64 `json:"kd_ratio"`
			FavoriteServer string  `json:"favorite_server"`
		} `json:"target"`
		Results []struct {
			PlayerName     string   `json:"player_name"`
			KDRatio        float64  `json:"kd_ratio"`
			TotalPlaytime  float64  `json:"total_playtime_minutes"`
			OverlapMinutes float64  `json:"overlap_minutes"`
			Score          float64  `json:"score"`
			Reasons        []string `json:"reasons"`
		} `json:"results"`
	}
	path := fmt.Sprintf("/api/players/%s/similar?limit=%d&mode=%s",
		url.PathEscape(player), *limit, url.QueryEscape(*mode))
	if err := getJSON(path, &resp); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if resp.Target == nil {
		fmt.Printf("No recorded activity for '%s'\n", player)
		return
	}

	fmt.Printf("Target: %s (K/D %.2f, %.0f min, favorite: %s)\n\n",
		resp.Target.PlayerName, resp.Target.KDRatio, resp.Target.TotalPlaytime, resp.Target.FavoriteServer)

	if len(resp.Results) == 0 {
		fmt.Println("No similar players found")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tPLAYER\tSCORE\tK/D\tPLAYTIME\tOVERLAP\tREASONS")
	fmt.Fprintln(w, "----\t------\t-----\t---\t--------\t-------\t-------")
	for i, r := range resp.Results {
		fmt.Fprintf(w, "%d\t%s\t%.3f\t%.2f\t%.0fm\t%.0fm\t%s\n",
			i+1, r.PlayerName, r.Score, r.KDRatio, r.TotalPlaytime, r.OverlapMinutes,
			strings.Join(r.Reasons, "; "))
	}
	w.Flush()
}

func cmdHours(args []string) {
	fs := flag.NewFlagSet("hours", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to configuration file")
	urlFlag := fs.String("url", "", "base URL of the scout server")
	fs.Parse(args)

	remaining := fs.Args()
	if len(remaining) < 2 {
		fmt.Fprintf(os.Stderr, "usage: scout hours <player1> <player2>\n")
		os.Exit(1)
	}

	loadCLIConfigFromFlags(*configPath, *urlFlag)

	var cmp struct {
		Player1       string      `json:"player1"`
		Player2       string      `json:"player2"`
		Player1Hours  [24]float64 `json:"player1_hours"`
		Player2Hours  [24]float64 `json:"player2_hours"`
		CommonServers []string    `json:"common_servers"`
	}
	path := fmt.Sprintf("/api/players/compare-hours?player1=%s&player2=%s",
		url.QueryEscape(remaining[0]), url.QueryEscape(remaining[1]))
	if err := getJSON(path, &cmp); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if len(cmp.CommonServers) > 0 {
		fmt.Printf("Common servers: %s\n\n", strings.Join(cmp.CommonServers, ", "))
	} else {
		fmt.Println("No common servers; showing activity across all servers")
		fmt.Println()
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "HOUR\t%s\t%s\n", cmp.Player1, cmp.Player2)
	fmt.Fprintln(w, "----\t----\t----")
	for hour := 0; hour < 24; hour++ {
		if cmp.Player1Hours[hour] == 0 && cmp.Player2Hours[hour] == 0 {
			continue
		}
		fmt.Fprintf(w, "%02d:00\t%.0fm\t%.0fm\n", hour, cmp.Player1Hours[hour], cmp.Player2Hours[hour])
	}
	w.Flush()
}

func cmdActivity(args []string) {
	fs := flag.NewFlagSet("activity", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to configuration file")
	urlFlag := fs.String("url", "", "base URL of the scout server")
	fs.Parse(args)

	remaining := fs.Args()
	if len(remaining) < 1 {
		fmt.Fprintf(os.Stderr, "usage: scout activity <player>\n")
		os.Exit(1)
	}

	loadCLIConfigFromFlags(*configPath, *urlFlag)

	var stats struct {
		PlayerName     string   `json:"player_name"`
		TotalKills     uint64   `json:"total_kills"`
		TotalDeaths    uint64   `json:"total_deaths"`
		TotalPlaytime  float64  `json:"total_playtime_minutes"`
		KDRatio        float64  `json:"kd_ratio"`
		FavoriteServer string   `json:"favorite_server"`
		Games          []string `json:"games"`
		TypicalHours   []int    `json:"typical_hours"`
		ActiveServers  []string `json:"active_servers"`
	}
	path := fmt.Sprintf("/api/players/%s/activity", url.PathEscape(remaining[0]))
	if err := getJSON(path, &stats); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Player:          %s\n", stats.PlayerName)
	fmt.Printf("Kills/Deaths:    %d/%d (K/D %.2f)\n", stats.TotalKills, stats.TotalDeaths, stats.KDRatio)
	fmt.Printf("Playtime:        %.0f minutes\n", stats.TotalPlaytime)
	fmt.Printf("Favorite server: %s\n", stats.FavoriteServer)
	if len(stats.Games) > 0 {
		fmt.Printf("Games:           %s\n", strings.Join(stats.Games, ", "))
	}
	if len(stats.TypicalHours) > 0 {
		hours := make([]string, len(stats.TypicalHours))
		for i, h := range stats.TypicalHours {
			hours[i] = fmt.Sprintf("%02d:00", h)
		}
		fmt.Printf("Typical hours:   %s\n", strings.Join(hours, ", "))
	}
	if len(stats.ActiveServers) > 0 {
		fmt.Printf("Active servers:  %s\n", strings.Join(stats.ActiveServers, ", "))
	}
}

func cmdServers(args []string) {
	fs := flag.NewFlagSet("servers", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to configuration file")
	urlFlag := fs.String("url", "", "base URL of the scout server")
	fs.Parse(args)

	loadCLIConfigFromFlags(*configPath, *urlFlag)

	var servers []struct {
		ID      int64  `json:"id"`
		Name    string `json:"name"`
		Address string `json:"address"`
	}
	if err := getJSON("/api/servers", &servers); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if len(servers) == 0 {
		fmt.Println("No servers registered")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tADDRESS")
	fmt.Fprintln(w, "--\t----\t-------")
	for _, srv := range servers {
		fmt.Fprintf(w, "%d\t%s\t%s\n", srv.ID, srv.Name, srv.Address)
	}
	w.Flush()
}

// cmdUser handles user subcommands
func cmdUser(args []string) {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Error: user subcommand required: add, remove, list, reset\n")
		os.Exit(1)
	}

	subCmd := args[0]
	fs := flag.NewFlagSet("user", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "path to configuration file")
	isAdmin := fs.Bool("admin", false, "create as admin user")
	fs.Parse(args[1:])
	remaining := fs.Args()

	loadCLIConfigFromFlags(*configPath, "")

	store, err := storage.New(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()

	switch subCmd {
	case "add":
		err = cmdUserAdd(ctx, store, remaining, *isAdmin)
	case "remove":
		err = cmdUserRemove(ctx, store, remaining)
	case "list":
		err = cmdUserList(ctx, store)
	case "reset":
		err = cmdUserReset(ctx, store, remaining)
	default:
		err = fmt.Errorf("unknown user command: %s (use: add, remove, list, reset)", subCmd)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// promptPassword reads and confirms a password from the terminal
func promptPassword() (string, error) {
	fmt.Print("Enter password: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	if len(password) < 8 {
		return "", fmt.Errorf("password must be at least 8 characters")
	}

	fmt.Print("Confirm password: ")
	confirm, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	if string(password) != string(confirm) {
		return "", fmt.Errorf("passwords do not match")
	}
	return string(password), nil
}

func cmdUserAdd(ctx context.Context, store *storage.Store, args []string, isAdmin bool) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: scout user add [--admin] <username>")
	}
	username := args[0]

	if _, err := store.GetUserByUsername(ctx, username); err == nil {
		return fmt.Errorf("user '%s' already exists", username)
	}

	password, err := promptPassword()
	if err != nil {
		return err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := store.CreateUser(ctx, username, hash, isAdmin); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	roleStr := "user"
	if isAdmin {
		roleStr = "admin"
	}
	fmt.Printf("User '%s' created successfully (role: %s)\n", username, roleStr)
	return nil
}

func cmdUserRemove(ctx context.Context, store *storage.Store, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: scout user remove <username>")
	}
	username := args[0]

	if err := store.DeleteUser(ctx, username); err != nil {
		return fmt.Errorf("failed to remove user: %w", err)
	}

	fmt.Printf("User '%s' removed\n", username)
	return nil
}

func cmdUserList(ctx context.Context, store *storage.Store) error {
	users, err := store.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	if len(users) == 0 {
		fmt.Println("No users configured")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "USERNAME\tROLE\tPWD_CHANGE\tLAST_LOGIN")
	fmt.Fprintln(w, "--------\t----\t----------\t----------")

	for _, user := range users {
		role := "user"
		if user.IsAdmin {
			role = "admin"
		}
		pwdChange := "no"
		if user.PasswordChangeRequired {
			pwdChange = "yes"
		}
		lastLogin := "never"
		if user.LastLogin != nil {
			lastLogin = user.LastLogin.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", user.Username, role, pwdChange, lastLogin)
	}
	return w.Flush()
}

func cmdUserReset(ctx context.Context, store *storage.Store, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: scout user reset <username>")
	}
	username := args[0]

	user, err := store.GetUserByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("user not found: %s", username)
	}

	password, err := promptPassword()
	if err != nil {
		return err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := store.ResetUserPassword(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("failed to reset password: %w", err)
	}

	fmt.Printf("Password reset for '%s' (user will be required to change it on next login)\n", username)
	return nil
}
