package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/checklist/internal/protocol"
)

type options struct {
	baseURL     string
	rounds      int
	prefix      string
	interval    time.Duration
	stepTimeout time.Duration
	cleanup     bool
	verbose     bool
}

type latencySummary struct {
	Samples int
	P50     time.Duration
	P95     time.Duration
	Max     time.Duration
}

type persistenceReport struct {
	Ops []struct {
		Op      string  `json:"op"`
		Samples int     `json:"samples"`
		P50MS   float64 `json:"p50_ms"`
		P95MS   float64 `json:"p95_ms"`
	} `json:"ops"`
	Outcomes []struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	} `json:"outcomes"`
}

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "perftasks: %v\n", err)
		os.Exit(2)
	}
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "perftasks: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var cfg options
	var intervalMS int
	var timeoutMS int

	flag.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8080", "checklist base URL")
	flag.IntVar(&cfg.rounds, "rounds", 50, "number of add/toggle/delete rounds")
	flag.StringVar(&cfg.prefix, "prefix", "perf task", "text prefix for synthetic tasks")
	flag.IntVar(&intervalMS, "interval-ms", 0, "delay between rounds in milliseconds")
	flag.IntVar(&timeoutMS, "step-timeout-ms", 5000, "timeout waiting for the snapshot that reflects a step")
	flag.BoolVar(&cfg.cleanup, "cleanup", true, "delete each synthetic task at the end of its round")
	flag.BoolVar(&cfg.verbose, "verbose", false, "print per-round progress")
	flag.Parse()

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	if cfg.rounds <= 0 {
		return options{}, fmt.Errorf("rounds must be > 0")
	}
	if strings.TrimSpace(cfg.prefix) == "" {
		return options{}, fmt.Errorf("prefix must not be blank")
	}
	if intervalMS < 0 {
		intervalMS = 0
	}
	if timeoutMS < 100 {
		timeoutMS = 100
	}
	cfg.interval = time.Duration(intervalMS) * time.Millisecond
	cfg.stepTimeout = time.Duration(timeoutMS) * time.Millisecond
	return cfg, nil
}

func run(cfg options) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	wsURL, err := wsURLFor(cfg.baseURL)
	if err != nil {
		return fmt.Errorf("build ws URL: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("open websocket: %w", err)
	}
	defer conn.Close()

	snapshots := make(chan protocol.TasksSnapshot, 64)
	readErrCh := make(chan error, 1)
	go readLoop(conn, snapshots, readErrCh, cfg.verbose)

	initial, err := awaitSnapshot(snapshots, readErrCh, cfg.stepTimeout, func(protocol.TasksSnapshot) bool { return true })
	if err != nil {
		return fmt.Errorf("initial snapshot: %w", err)
	}
	fmt.Printf("perftasks: connected version=%d tasks=%d rounds=%d\n", initial.Version, len(initial.Tasks), cfg.rounds)

	latencies := map[string][]time.Duration{}
	for i := 0; i < cfg.rounds; i++ {
		text := fmt.Sprintf("%s #%d %d", cfg.prefix, i+1, time.Now().UnixNano())

		started := time.Now()
		if err := conn.WriteJSON(protocol.AddTask{Type: protocol.TypeAddTask, Text: text}); err != nil {
			return fmt.Errorf("round %d send add_task: %w", i+1, err)
		}
		added, err := awaitSnapshot(snapshots, readErrCh, cfg.stepTimeout, func(s protocol.TasksSnapshot) bool {
			_, ok := findByText(s, text)
			return ok
		})
		if err != nil {
			return fmt.Errorf("round %d await add: %w", i+1, err)
		}
		latencies["add"] = append(latencies["add"], time.Since(started))
		task, _ := findByText(added, text)

		started = time.Now()
		if err := conn.WriteJSON(protocol.ToggleTask{Type: protocol.TypeToggleTask, ID: task.ID}); err != nil {
			return fmt.Errorf("round %d send toggle_task: %w", i+1, err)
		}
		if _, err := awaitSnapshot(snapshots, readErrCh, cfg.stepTimeout, func(s protocol.TasksSnapshot) bool {
			t, ok := findByID(s, task.ID)
			return ok && t.Completed
		}); err != nil {
			return fmt.Errorf("round %d await toggle: %w", i+1, err)
		}
		latencies["toggle"] = append(latencies["toggle"], time.Since(started))

		if cfg.cleanup {
			started = time.Now()
			if err := conn.WriteJSON(protocol.DeleteTask{Type: protocol.TypeDeleteTask, ID: task.ID}); err != nil {
				return fmt.Errorf("round %d send delete_task: %w", i+1, err)
			}
			if _, err := awaitSnapshot(snapshots, readErrCh, cfg.stepTimeout, func(s protocol.TasksSnapshot) bool {
				_, ok := findByID(s, task.ID)
				return !ok
			}); err != nil {
				return fmt.Errorf("round %d await delete: %w", i+1, err)
			}
			latencies["delete"] = append(latencies["delete"], time.Since(started))
		}

		if cfg.verbose {
			fmt.Printf("perftasks: round %d/%d id=%s\n", i+1, cfg.rounds, task.ID)
		}
		if cfg.interval > 0 && i < cfg.rounds-1 {
			time.Sleep(cfg.interval)
		}
	}

	for _, op := range []string{"add", "toggle", "delete"} {
		samples, ok := latencies[op]
		if !ok {
			continue
		}
		s := summarize(samples)
		fmt.Printf("perftasks: %-6s n=%d p50=%s p95=%s max=%s\n", op, s.Samples, s.P50, s.P95, s.Max)
	}

	report, err := fetchPersistenceReport(ctx, &http.Client{Timeout: 10 * time.Second}, cfg.baseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "perftasks: persistence report unavailable: %v\n", err)
		return nil
	}
	for _, op := range report.Ops {
		fmt.Printf("perftasks: store %-4s n=%d p50=%.2fms p95=%.2fms\n", op.Op, op.Samples, op.P50MS, op.P95MS)
	}
	for _, o := range report.Outcomes {
		fmt.Printf("perftasks: store outcome %s=%d\n", o.Name, o.Count)
	}
	return nil
}

func wsURLFor(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base-url scheme %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", fmt.Errorf("base-url host is required")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/tasks/ws"
	u.RawQuery = ""
	return u.String(), nil
}

func readLoop(conn *websocket.Conn, out chan<- protocol.TasksSnapshot, readErrCh chan<- error, verbose bool) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case readErrCh <- err:
			default:
			}
			return
		}

		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		switch env.Type {
		case protocol.TypeTasksSnapshot:
			var snap protocol.TasksSnapshot
			if err := json.Unmarshal(data, &snap); err != nil {
				continue
			}
			out <- snap
		case protocol.TypeErrorEvent:
			if verbose {
				var evt protocol.ErrorEvent
				_ = json.Unmarshal(data, &evt)
				fmt.Fprintf(os.Stderr, "perftasks: error_event code=%s detail=%s\n", evt.Code, evt.Detail)
			}
		}
	}
}

// awaitSnapshot discards snapshots until one satisfies match.
func awaitSnapshot(snapshots <-chan protocol.TasksSnapshot, readErrCh <-chan error, timeout time.Duration, match func(protocol.TasksSnapshot) bool) (protocol.TasksSnapshot, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case snap := <-snapshots:
			if match(snap) {
				return snap, nil
			}
		case err := <-readErrCh:
			return protocol.TasksSnapshot{}, err
		case <-timer.C:
			return protocol.TasksSnapshot{}, fmt.Errorf("timeout after %s", timeout)
		}
	}
}

func findByText(s protocol.TasksSnapshot, text string) (protocol.TaskItem, bool) {
	for _, t := range s.Tasks {
		if t.Text == text {
			return t, true
		}
	}
	return protocol.TaskItem{}, false
}

func findByID(s protocol.TasksSnapshot, id string) (protocol.TaskItem, bool) {
	for _, t := range s.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return protocol.TaskItem{}, false
}

func summarize(samples []time.Duration) latencySummary {
	if len(samples) == 0 {
		return latencySummary{}
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	at := func(q float64) time.Duration {
		return sorted[int(q*float64(len(sorted)-1))]
	}
	return latencySummary{
		Samples: len(sorted),
		P50:     at(0.50),
		P95:     at(0.95),
		Max:     sorted[len(sorted)-1],
	}
}

func fetchPersistenceReport(ctx context.Context, client *http.Client, baseURL string) (persistenceReport, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/v1/persistence/latency", nil)
	if err != nil {
		return persistenceReport{}, err
	}
	res, err := client.Do(req)
	if err != nil {
		return persistenceReport{}, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return persistenceReport{}, fmt.Errorf("status %d", res.StatusCode)
	}
	var report persistenceReport
	if err := json.NewDecoder(res.Body).Decode(&report); err != nil {
		return persistenceReport{}, err
	}
	return report, nil
}
