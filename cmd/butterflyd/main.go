// butterflyd is the daemon entrypoint: it wires configuration, the key
// lifecycle, storage, the sandbox, the LLM provider, the agent
// orchestrator, the periodic job scheduler, and the HTTP control plane
// into one running process.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/truemagic-coder/butterfly-bot-sub000/pkg/agent"
	"github.com/truemagic-coder/butterfly-bot-sub000/pkg/api"
	"github.com/truemagic-coder/butterfly-bot-sub000/pkg/config"
	"github.com/truemagic-coder/butterfly-bot-sub000/pkg/database"
	"github.com/truemagic-coder/butterfly-bot-sub000/pkg/events"
	"github.com/truemagic-coder/butterfly-bot-sub000/pkg/llm"
	"github.com/truemagic-coder/butterfly-bot-sub000/pkg/masking"
	"github.com/truemagic-coder/butterfly-bot-sub000/pkg/sandbox"
	"github.com/truemagic-coder/butterfly-bot-sub000/pkg/sandbox/tools"
	"github.com/truemagic-coder/butterfly-bot-sub000/pkg/scheduler"
	"github.com/truemagic-coder/butterfly-bot-sub000/pkg/security"
	"github.com/truemagic-coder/butterfly-bot-sub000/pkg/store"
	"github.com/truemagic-coder/butterfly-bot-sub000/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("warning: could not load %s: %v", envPath, err)
		log.Printf("continuing with existing environment variables")
	} else {
		log.Printf("loaded environment from %s", envPath)
	}

	ginMode := getEnv("GIN_MODE", "release")
	gin.SetMode(ginMode)

	log.Printf("starting %s", version.Full())
	log.Printf("config directory: %s", *configDir)

	ctx := context.Background()

	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		log.Fatalf("failed to initialize configuration: %v", err)
	}

	dek, err := unsealKeys(cfg)
	if err != nil {
		log.Fatalf("failed to unseal key material: %v", err)
	}

	dbConfig := database.DefaultConfig(cfg.Database.Path)
	if cfg.Database.BusyTimeoutMs > 0 {
		dbConfig.BusyTimeoutMs = cfg.Database.BusyTimeoutMs
	}
	db, err := database.NewClient(dbConfig, dek)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()
	log.Println("database ready")

	orch, err := buildOrchestrator(cfg, db)
	if err != nil {
		log.Fatalf("failed to build agent orchestrator: %v", err)
	}
	log.Println("agent orchestrator ready")

	sched := buildScheduler(cfg, db, orch)
	schedCtx, cancelSched := context.WithCancel(ctx)
	sched.Start(schedCtx)
	defer func() {
		cancelSched()
		sched.Stop()
	}()
	log.Println("scheduler started")

	server := api.New(cfg, *configDir, orch, db, func(cfg *config.Config) (*agent.Orchestrator, error) {
		return buildOrchestrator(cfg, db)
	})

	bindAddr := cfg.HTTP.BindAddr
	if bindAddr == "" {
		bindAddr = "127.0.0.1:8787"
	}
	log.Printf("HTTP control plane listening on %s", bindAddr)
	if err := server.Router().Run(bindAddr); err != nil {
		log.Fatalf("HTTP server failed: %v", err)
	}
}

// unsealKeys drives the C1 key lifecycle to completion before anything
// touches the database: it provisions key material on first run and
// unseals the DEK on every run after, failing closed the same way the
// security package's own Runtime does (strict Linux mode requires a
// present TPM device). The returned DEK is handed to database.NewClient,
// which applies it as the C2 Cipher per spec.md §4.2 ("apply the
// unsealed DEK").
func unsealKeys(cfg *config.Config) ([]byte, error) {
	stateDir := cfg.Security.StateDir
	if stateDir == "" {
		stateDir = "./data/security"
	}
	runtime := security.NewRuntimeForMode(string(cfg.Security.Provider), stateDir)
	dek, err := runtime.UnsealDEK()
	if err != nil {
		return nil, err
	}
	slog.Info("security: key material unsealed", "bytes", len(dek))
	return dek, nil
}

// buildOrchestrator assembles a fresh C5 agent handle from configuration:
// C3 sandbox registry with built-in tools, C4 LLM provider selection,
// and the C2 stores already opened against db. Used both at startup and
// by the HTTP control plane's /reload_config.
func buildOrchestrator(cfg *config.Config, db *database.Client) (*agent.Orchestrator, error) {
	provider, err := buildProvider(cfg)
	if err != nil {
		return nil, err
	}

	registry := buildRegistry(cfg, db, provider)

	deps := agent.Deps{
		Settings:     agent.SettingsFromConfig(cfg),
		Provider:     provider,
		Messages:     store.NewMessageStore(db),
		Reminders:    store.NewReminderStore(db),
		Registry:     registry,
		Masker:       masking.NewService(),
		Bus:          events.NewBusWithLog(cfg.ScheduleSettings().UIEventLogPath),
		PromptSource: agent.ConfigPromptSource{Cfg: cfg},
	}

	return agent.NewOrchestrator(deps), nil
}

// buildProvider selects the C4 LLM backend named by llm.backend.
func buildProvider(cfg *config.Config) (llm.Provider, error) {
	switch cfg.LLM.Backend {
	case config.LLMBackendGRPC:
		return llm.NewGRPCProvider(cfg.LLM.GRPCTarget, cfg.LLM.Model)
	default:
		return llm.NewMockProvider(), nil
	}
}

// buildRegistry assembles the C3 sandbox: a policy from the configured
// network/native-override settings, every built-in native tool, the
// capability_call back-channel the WASM guests use to reach the C2
// stores and C4 provider, and every compiled guest module found under
// sandbox.wasm_module_dir. Unknown tool names in native_overrides are
// harmless: Policy.Plan only consults the map by tool name, and
// Registry.RegisterTool silently drops anything that fails Configure.
func buildRegistry(cfg *config.Config, db *database.Client, provider llm.Provider) *sandbox.Registry {
	nativeOverride := make(map[string]bool, len(cfg.Sandbox.NativeOverrides))
	for _, name := range cfg.Sandbox.NativeOverrides {
		nativeOverride[name] = true
	}

	toolConfig := map[string]map[string]any{}
	if raw, ok := cfg.Raw["tools"].(map[string]any); ok {
		for name, v := range raw {
			if m, ok := v.(map[string]any); ok {
				toolConfig[name] = m
			}
		}
	}

	// search_internet enforces its own domain allowlist rather than
	// relying on the host, so it needs the global network policy folded
	// into its own config block alongside any provider/model overrides.
	searchCfg := map[string]any{}
	for k, v := range toolConfig["search_internet"] {
		searchCfg[k] = v
	}
	searchCfg["default_deny"] = cfg.Sandbox.DefaultDenyNetwork
	allow := make([]any, len(cfg.Sandbox.NetworkAllowlist))
	for i, d := range cfg.Sandbox.NetworkAllowlist {
		allow[i] = d
	}
	searchCfg["network_allow"] = allow
	toolConfig["search_internet"] = searchCfg

	settings := sandbox.Settings{
		NativeOverride: nativeOverride,
		NetworkAllow:   cfg.Sandbox.NetworkAllowlist,
		DefaultDeny:    cfg.Sandbox.DefaultDenyNetwork,
		ToolConfig:     toolConfig,
	}

	auditLogger := sandbox.NewAuditLogger(cfg.Sandbox.AuditLogPath)
	registry := sandbox.NewRegistry(sandbox.NewPolicy(settings), auditLogger)

	registry.RegisterTool(tools.NewSearchInternetTool())

	dispatcher := sandbox.NewCapabilityDispatcher()
	storeCapabilities := sandbox.StoreCapabilities{
		Todo:      store.NewTodoStore(db),
		Tasks:     store.NewTaskStore(db),
		Reminders: store.NewReminderStore(db),
		Wakeups:   store.NewWakeupStore(db),
		Plans:     store.NewPlanStore(db),
	}
	storeCapabilities.Register(dispatcher, provider, registry.Policy())

	host := sandbox.NewWasmHost(context.Background(), dispatcher)
	registerWasmTools(context.Background(), host, registry, cfg.Sandbox.WasmModuleDir)

	return registry
}

// registerWasmTools compiles every *.wasm file under dir and registers
// it as a WASM-backed tool, named for its file (minus extension). A
// missing or empty dir is not an error: a fresh install has none yet.
func registerWasmTools(ctx context.Context, host *sandbox.WasmHost, registry *sandbox.Registry, dir string) {
	if dir == "" {
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		slog.Warn("sandbox: wasm module dir unavailable", "dir", dir, "error", err)
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".wasm") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		wasmBytes, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("sandbox: failed to read wasm module", "path", path, "error", err)
			continue
		}
		compiled, err := host.Compile(ctx, wasmBytes)
		if err != nil {
			slog.Warn("sandbox: failed to compile wasm module", "path", path, "error", err)
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".wasm")
		tool := sandbox.NewWasmTool(host, compiled, name,
			"WASM-backed tool compiled from "+entry.Name(), `{"type":"object"}`)
		registry.RegisterTool(tool)
		slog.Info("sandbox: registered wasm tool", "name", name, "path", path)
	}
}

// buildScheduler wires the C6 jobs from the configuration's resolved
// scheduler settings, each job's audit log defaulted to the path
// spec.md §6 names for it.
func buildScheduler(cfg *config.Config, db *database.Client, orch *agent.Orchestrator) *scheduler.Scheduler {
	settings := cfg.ScheduleSettings()
	cooldown := scheduler.NewAutonomyCooldown(int64(settings.AutonomyCooldown.Seconds()))

	tasksJob := &scheduler.ScheduledTasksJob{
		Tasks:        store.NewTaskStore(db),
		Runner:       orch,
		Audit:        scheduler.NewAuditLogger(cfg.JobAuditLogPath("tasks", "./data/tasks_audit.log")),
		PollInterval: settings.TasksPollInterval,
	}

	wakeupJob := &scheduler.WakeupJob{
		Wakeups:      store.NewWakeupStore(db),
		Runner:       orch,
		Cooldown:     cooldown,
		Audit:        scheduler.NewAuditLogger(cfg.JobAuditLogPath("wakeup", "./data/wakeup_audit.log")),
		PollInterval: settings.WakeupPollInterval,
	}

	tickJob := &scheduler.BrainTickJob{
		Fire:         func() { orch.Brain().Fire(agent.LifecycleTick, "", "") },
		PollInterval: settings.TickInterval,
	}

	return scheduler.New(tasksJob, wakeupJob, tickJob)
}
