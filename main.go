package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	flag "github.com/spf13/pflag"
	"github.com/yshino/liveroom/internal/directory"
	"github.com/yshino/liveroom/internal/hub"
	"github.com/yshino/liveroom/store"
	"github.com/yshino/liveroom/store/fs"
	"github.com/yshino/liveroom/store/mem"
	"github.com/yshino/liveroom/store/redis"
)

var (
	logger = log.New(os.Stdout, "", log.Ldate|log.Ltime|log.Lshortfile)
	ko     = koanf.New(".")

	// Version of the build injected at build time.
	buildString = "unknown"
)

// App is the global app context that's passed around.
type App struct {
	hub       *hub.Hub
	directory *directory.Directory
	cfg       *hub.Config
	logger    *log.Logger
}

func loadConfig() {
	// Register --help handler.
	f := flag.NewFlagSet("config", flag.ContinueOnError)
	f.Usage = func() {
		fmt.Println(f.FlagUsages())
		os.Exit(0)
	}
	f.StringSlice("config", []string{"config.toml"},
		"Path to one or more TOML config files to load in order")
	f.Bool("version", false, "Show build version")
	f.Parse(os.Args[1:])

	// Display version.
	if ok, _ := f.GetBool("version"); ok {
		fmt.Println(buildString)
		os.Exit(0)
	}

	// Defaults that config files, env vars, and flags override in order.
	ko.Load(confmap.Provider(map[string]interface{}{
		"app.address":             ":9000",
		"app.name":                "liveroom",
		"app.room_capacity":       4,
		"app.max_rooms":           1000,
		"app.room_idle_timeout":   time.Duration(30) * time.Minute,
		"app.dissolved_retention": time.Duration(30) * time.Second,
		"app.sweep_interval":      time.Duration(10) * time.Second,
		"app.websocket_timeout":   time.Duration(10) * time.Second,
		"app.token_length":        32,
		"store.type":              "mem",
	}, "."), nil)

	// Read the config files.
	cFiles, _ := f.GetStringSlice("config")
	for _, f := range cFiles {
		log.Printf("reading config: %s", f)
		if err := ko.Load(file.Provider(f), toml.Parser()); err != nil {
			log.Printf("error reading config: %v", err)
		}
	}

	// Merge env flags into config.
	if err := ko.Load(env.Provider("LIVEROOM_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "LIVEROOM_")), "__", ".", -1)
	}), nil); err != nil {
		log.Printf("error loading env config: %v", err)
	}

	// Merge command line flags into config.
	ko.Load(posflag.Provider(f, ".", ko), nil)
}

// initStore initializes the user store configured under the 'store' key.
func initStore() store.Store {
	switch typ := ko.String("store.type"); typ {
	case "redis":
		var cfg redis.Config
		if err := ko.Unmarshal("store.redis", &cfg); err != nil {
			logger.Fatalf("error unmarshalling 'store.redis' config: %v", err)
		}
		if cfg.PrefixUser == "" {
			cfg.PrefixUser = "liveroom:user:%v"
		}
		if cfg.PrefixToken == "" {
			cfg.PrefixToken = "liveroom:token:%v"
		}
		if cfg.KeyUserSeq == "" {
			cfg.KeyUserSeq = "liveroom:user_seq"
		}
		s, err := redis.New(cfg)
		if err != nil {
			logger.Fatalf("error initializing redis store: %v", err)
		}
		return s
	case "fs":
		var cfg fs.Config
		if err := ko.Unmarshal("store.fs", &cfg); err != nil {
			logger.Fatalf("error unmarshalling 'store.fs' config: %v", err)
		}
		if cfg.Path == "" {
			cfg.Path = "liveroom.json"
		}
		s, err := fs.New(cfg, logger)
		if err != nil {
			logger.Fatalf("error initializing fs store: %v", err)
		}
		return s
	case "mem":
		s, err := mem.New(mem.Config{})
		if err != nil {
			logger.Fatalf("error initializing mem store: %v", err)
		}
		return s
	default:
		logger.Fatalf("unknown store.type %q", typ)
		return nil
	}
}

// initRouter registers the HTTP routes on a new chi router.
func initRouter(app *App) *chi.Mux {
	r := chi.NewRouter()
	r.Use(reqLog(app.logger))

	r.Get("/", wrap(handleIndex, app, 0))

	// User API.
	r.Post("/api/user/create", wrap(handleCreateUser, app, 0))
	r.Get("/api/user/me", wrap(handleGetMe, app, hasAuth))
	r.Post("/api/user/update", wrap(handleUpdateUser, app, hasAuth))

	// Room API.
	r.Post("/api/room/create", wrap(handleCreateRoom, app, hasAuth))
	r.Post("/api/room/list", wrap(handleListRooms, app, 0))
	r.Post("/api/room/join", wrap(handleJoinRoom, app, hasAuth))
	r.Post("/api/room/wait", wrap(handleRoomWait, app, hasAuth))
	r.Post("/api/room/leave", wrap(handleLeaveRoom, app, hasAuth))
	r.Post("/api/room/start", wrap(handleStartRoom, app, hasAuth))

	// Status push for waiting clients.
	r.Get("/ws/rooms/{roomID}", wrap(handleWS, app, hasAuth|hasRoom))

	return r
}

// Catch OS interrupts and respond accordingly.
// This is not fool proof as http keeps listening while
// existing rooms are shut down.
func catchInterrupts() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for sig := range c {
			// Shutdown.
			logger.Printf("shutting down: %v", sig)
			os.Exit(0)
		}
	}()
}

func main() {
	// Load configuration from files.
	loadConfig()

	// Initialize global app context.
	app := &App{
		logger: logger,
	}
	if err := ko.Unmarshal("app", &app.cfg); err != nil {
		logger.Fatalf("error unmarshalling 'app' config: %v", err)
	}

	if app.cfg.RoomCapacity < 2 {
		logger.Fatal("app.room_capacity should be >= 2")
	}
	minTime := time.Duration(3) * time.Second
	if app.cfg.WSTimeout < minTime || app.cfg.DissolvedRetention < minTime {
		logger.Fatal("app.websocket_timeout and app.dissolved_retention should be > 3s")
	}

	app.directory = directory.New(initStore(), app.cfg.TokenLength, logger)
	app.hub = hub.NewHub(app.cfg, logger)

	catchInterrupts()

	// Start the app.
	srv := &http.Server{
		Addr:    ko.String("app.address"),
		Handler: initRouter(app),
	}
	logger.Printf("starting server on %v", ko.String("app.address"))
	if err := srv.ListenAndServe(); err != nil {
		logger.Fatalf("couldn't start server: %v", err)
	}
}
