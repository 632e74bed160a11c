package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/adrg/xdg"

	"github.com/xinia/radiowidget/internal/app"
	"github.com/xinia/radiowidget/internal/config"
	"github.com/xinia/radiowidget/internal/errmsg"
	"github.com/xinia/radiowidget/internal/mirrors"
	"github.com/xinia/radiowidget/internal/mpris"
	"github.com/xinia/radiowidget/internal/playback"
	"github.com/xinia/radiowidget/internal/player"
	"github.com/xinia/radiowidget/internal/radiobrowser"
	"github.com/xinia/radiowidget/internal/state"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, errmsg.Format(errmsg.OpInitialize, err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	playerCfg := cfg.GetPlayerConfig()
	dirCfg := cfg.GetDirectoryConfig()

	stateMgr, err := state.Open()
	if err != nil {
		return err
	}
	defer stateMgr.Close()

	sockPath, err := socketPath(playerCfg.RuntimeDir)
	if err != nil {
		return err
	}

	// Seed the mirror directory: configured mirrors win, otherwise start
	// from the last mirror that worked while the bootstrap fills in the
	// rest.
	seeds := dirCfg.Mirrors
	if len(seeds) == 0 {
		if last, err := stateMgr.LastMirror(); err == nil && last != "" {
			seeds = []string{last}
		}
	}
	dir := mirrors.New(seeds)
	client := radiobrowser.New(dir, radiobrowser.Config{
		MaxAttempts:    dirCfg.MaxAttempts,
		AttemptTimeout: time.Duration(dirCfg.TimeoutSeconds) * time.Second,
		SearchLimit:    dirCfg.SearchLimit,
	})
	if len(dirCfg.Mirrors) == 0 {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_ = client.Bootstrap(ctx)
		}()
	}

	volume := playerCfg.Volume
	if saved, err := stateMgr.Volume(); err == nil && saved != nil {
		volume = *saved
	}

	sup := playback.New(func() player.Backend {
		return player.NewMPV(player.Config{
			Binary:     playerCfg.Binary,
			SocketPath: sockPath,
			ExtraArgs:  playerCfg.ExtraArgs,
		})
	}, playback.Config{DefaultVolume: volume})

	ctrl := app.NewController(sup, client, stateMgr)
	runDone := make(chan struct{})
	go func() {
		ctrl.Run(context.Background())
		close(runDone)
	}()

	if adapter, err := mpris.New(sup); err == nil {
		defer adapter.Close()
	}

	sh := &shell{ctrl: ctrl}
	go sh.watchSnapshots()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	lines := make(chan string)
	go readStdin(lines)

	fmt.Println("radiowidget ready. Commands: search <query>, play <n|uuid>, recent [n], fav [n], star [n|uuid], pause, stop, volume <0-100>, next, quit")

	for {
		select {
		case <-sigs:
			ctrl.Commands() <- app.ShutdownCmd{}
			<-runDone
			return nil
		case line, ok := <-lines:
			if !ok || sh.dispatch(line) {
				ctrl.Commands() <- app.ShutdownCmd{}
				<-runDone
				return nil
			}
		}
	}
}

// socketPath builds the per-session control socket path under a
// writable runtime directory.
func socketPath(override string) (string, error) {
	base := override
	if base == "" {
		base = xdg.RuntimeDir
	}
	if base == "" {
		base = os.TempDir()
	}
	dir := filepath.Join(base, "radiowidget")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("runtime directory not writable: %w", err)
	}
	return filepath.Join(dir, fmt.Sprintf("player-%d.sock", os.Getpid())), nil
}

func readStdin(lines chan<- string) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		lines <- scanner.Text()
	}
	close(lines)
}

// shell is the thin stdin/stdout surface over the controller. It keeps
// the latest snapshot so play/recent can address results by number.
type shell struct {
	ctrl *app.Controller

	mu   sync.Mutex
	last app.Snapshot
}

func (s *shell) watchSnapshots() {
	var prev app.Snapshot
	for snap := range s.ctrl.Snapshots() {
		s.mu.Lock()
		s.last = snap
		s.mu.Unlock()
		s.render(prev, snap)
		prev = snap
	}
}

func (s *shell) render(prev, snap app.Snapshot) {
	if snap.ErrorText != "" && snap.ErrorText != prev.ErrorText {
		fmt.Println(snap.ErrorText)
	}
	if snap.Phase != prev.Phase || snap.Station != prev.Station {
		switch {
		case snap.Station != "":
			fmt.Printf("[%s] %s\n", snap.Phase, snap.Station)
		default:
			fmt.Printf("[%s]\n", snap.Phase)
		}
	}
	if snap.Title != "" && snap.Title != prev.Title {
		fmt.Printf("  now: %s\n", snap.Title)
	}
	if !snap.Searching && prev.Searching {
		for i, st := range snap.Results {
			fmt.Printf("%3d. %s\n", i+1, st.Summary())
		}
		if len(snap.Results) == 0 && snap.ErrorText == "" {
			fmt.Println("no stations found")
		}
	}
}

// dispatch parses one input line; the return value reports quit.
func (s *shell) dispatch(line string) bool {
	verb, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)

	switch verb {
	case "":
	case "search":
		s.ctrl.Commands() <- app.SearchCmd{Query: rest}
	case "play":
		if uuid := s.lookupUUID(rest); uuid != "" {
			s.ctrl.Commands() <- app.PlayCmd{UUID: uuid}
		} else {
			fmt.Println("play: give a result number or a station uuid")
		}
	case "recent":
		s.playRecent(rest)
	case "fav":
		s.playFavorite(rest)
	case "star":
		// No argument stars the playing station.
		s.ctrl.Commands() <- app.ToggleFavoriteCmd{UUID: s.lookupUUID(rest)}
	case "pause", "toggle":
		s.ctrl.Commands() <- app.TogglePauseCmd{}
	case "stop":
		s.ctrl.Commands() <- app.StopCmd{}
	case "volume":
		if v, err := strconv.Atoi(rest); err == nil {
			s.ctrl.Commands() <- app.SetVolumeCmd{Volume: v}
		} else {
			fmt.Println("volume: give a number 0-100")
		}
	case "next":
		s.ctrl.Commands() <- app.NextCmd{}
	case "quit", "exit":
		return true
	default:
		fmt.Printf("unknown command %q\n", verb)
	}
	return false
}

// lookupUUID accepts either a 1-based result index or a raw uuid.
func (s *shell) lookupUUID(arg string) string {
	if arg == "" {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 || n > len(s.last.Results) {
			return ""
		}
		return s.last.Results[n-1].ID
	}
	return arg
}

func (s *shell) playFavorite(arg string) {
	s.mu.Lock()
	favorites := s.last.Favorites
	s.mu.Unlock()

	if arg == "" {
		if len(favorites) == 0 {
			fmt.Println("no favorite stations")
			return
		}
		for i, f := range favorites {
			fmt.Printf("%3d. %s\n", i+1, f.Name)
		}
		return
	}
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(favorites) {
		fmt.Println("fav: give a number from the favorites list")
		return
	}
	s.ctrl.Commands() <- app.PlayCmd{UUID: favorites[n-1].UUID}
}

func (s *shell) playRecent(arg string) {
	s.mu.Lock()
	recents := s.last.Recents
	s.mu.Unlock()

	if arg == "" {
		if len(recents) == 0 {
			fmt.Println("no recent stations")
			return
		}
		for i, r := range recents {
			fmt.Printf("%3d. %s\n", i+1, r.Name)
		}
		return
	}
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(recents) {
		fmt.Println("recent: give a number from the recent list")
		return
	}
	s.ctrl.Commands() <- app.PlayCmd{UUID: recents[n-1].UUID}
}
