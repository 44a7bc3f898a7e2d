package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"cookia/internal/battery"
	"cookia/internal/catalog"
	"cookia/internal/config"
	"cookia/internal/dispatch"
	"cookia/internal/engine"
	"cookia/internal/fsutil"
	"cookia/internal/gpu"
	"cookia/internal/installer"
	"cookia/internal/logging"
	"cookia/internal/models"
	"cookia/internal/session"
	"cookia/internal/tui"
)

const (
	version = "0.1.0-dev"

	defaultLogFile = "logs/cookia.log"
)

func main() {
	if len(os.Args) <= 1 {
		runTUI(nil)
		return
	}

	command := strings.ToLower(os.Args[1])
	if strings.HasPrefix(command, "--") && command != "--help" {
		// flags without a command start the TUI
		runTUI(os.Args[1:])
		return
	}

	if handler, ok := commandHandlers()[command]; ok {
		handler(os.Args[2:])
		return
	}

	fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
	printUsage(nil)
	os.Exit(1)
}

func commandHandlers() map[string]func(args []string) {
	return map[string]func(args []string){
		"install":   runInstall,
		"generate":  runGenerate,
		"models":    runModels,
		"verify":    runVerify,
		"remove":    runRemove,
		"battery":   runBattery,
		"gpu-check": runGPUCheck,
		"config":    runConfig,
		"version":   runVersion,
		"help":      printUsage,
		"--help":    printUsage,
		"-h":        printUsage,
	}
}

// app bundles the loaded configuration and the components built from it.
type app struct {
	cfg       config.Config
	logger    *logging.Logger
	filesRoot string
	assets    fs.FS

	installer  *installer.Installer
	catalog    *catalog.Catalog
	dispatcher *dispatch.Dispatcher
	inventory  *models.StateManager
}

// loadApp loads the configuration and wires the components. With toFile
// set, logs go to the configured log file so they do not disturb the TUI.
func loadApp(toFile bool) *app {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	filesRoot := fsutil.FilesRoot(cfg.FilesRoot)
	level := logging.ParseLevel(cfg.Logging.Level)

	logger := logging.NewLogger(level)
	if toFile || cfg.Logging.File != "" {
		logFile := cfg.Logging.File
		if logFile == "" {
			logFile = defaultLogFile
		}
		if !filepath.IsAbs(logFile) {
			logFile = filepath.Join(filesRoot, logFile)
		}
		if err := fsutil.EnsureDirectory(filepath.Dir(logFile)); err == nil {
			if fileLogger, err := logging.NewFileLogger(level, logFile); err == nil {
				logger = fileLogger
			} else {
				fmt.Fprintf(os.Stderr, "Warning: cannot open log file %s: %v\n", logFile, err)
			}
		}
	}

	assets := os.DirFS(cfg.AssetsDir)
	cat := catalog.New(assets, logger)
	eng := engine.NewPluginEngine(cfg.Engine.LibDir, logger)

	return &app{
		cfg:       cfg,
		logger:    logger,
		filesRoot: filesRoot,
		assets:    assets,
		installer: installer.New(assets, filesRoot, logger),
		catalog:   cat,
		dispatcher: dispatch.New(eng, cat, dispatch.Options{
			SystemPrompt: cfg.Generation.SystemPrompt,
			Temperature:  cfg.Generation.Temperature,
			MaxTokens:    cfg.Generation.MaxTokens,
		}, logger),
		inventory: models.NewStateManager(filesRoot, logger),
	}
}

func (a *app) close() {
	if err := a.logger.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
	}
}

// parseModelFlag extracts --model <id> (or --model=<id>) from args.
func parseModelFlag(args []string) (string, []string) {
	var (
		modelID string
		rest    []string
	)
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--model" && i+1 < len(args):
			modelID = args[i+1]
			i++
		case strings.HasPrefix(arg, "--model="):
			modelID = strings.TrimPrefix(arg, "--model=")
		default:
			rest = append(rest, arg)
		}
	}
	return modelID, rest
}

// modelID returns the --model value or the configured model. Ids from the
// command line are checked here; the configured one was validated on load.
func (a *app) modelID(flagValue string) string {
	if flagValue == "" {
		return a.cfg.ModelID
	}
	if err := installer.ValidateModelID(flagValue); err != nil {
		fmt.Fprintf(os.Stderr, "Error: --model: %v\n", err)
		os.Exit(1)
	}
	return flagValue
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runTUI(args []string) {
	a := loadApp(true)
	defer a.close()

	flagModel, _ := parseModelFlag(args)
	uiState := tui.NewUIStateManager(a.filesRoot, a.logger)
	modelID := a.modelID(flagModel)
	if flagModel == "" {
		if persisted, err := uiState.Load(); err == nil && persisted.ModelID != "" {
			if err := installer.ValidateModelID(persisted.ModelID); err != nil {
				a.logger.Warn("tui.state.invalid_model", "Ignoring persisted model id", map[string]interface{}{
					"model": persisted.ModelID,
					"error": err.Error(),
				})
			} else {
				modelID = persisted.ModelID
			}
		}
	}

	startTime := time.Now()
	a.logger.Info("app.started", "Application started", map[string]interface{}{
		"version": version,
		"model":   modelID,
		"ts":      startTime.UTC().Format(time.RFC3339),
	})

	ctx, cancel := signalContext()
	defer cancel()

	sess := session.New(modelID, a.installer, a.dispatcher, a.inventory, a.logger)

	// an already populated destination is picked up without copying
	if populated, err := fsutil.DirHasEntries(a.installer.Destination(modelID)); err == nil && populated {
		sess.Install(ctx)
	}

	var background sync.WaitGroup
	watcher := battery.NewWatcher(a.cfg.Battery.SupplyDir, time.Duration(a.cfg.Battery.PollSeconds)*time.Second, a.logger)
	background.Add(2)
	go func() {
		defer background.Done()
		watcher.Run(ctx, sess.SetBattery)
	}()
	go func() {
		defer background.Done()
		sess.SetAccelerator(gpu.NewDetector(a.logger).Detect().Summary())
	}()

	p := tea.NewProgram(tui.NewModel(ctx, sess, a.catalog, a.filesRoot, a.logger), tea.WithContext(ctx))

	_, err := p.Run()
	exitReason := "normal"
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		exitReason = "error"
		a.logger.Error("app.error", "Application error", map[string]interface{}{
			"error": err.Error(),
		})
		fmt.Fprintf(os.Stderr, "Error running TUI: %v\n", err)
	}

	cancel()
	sess.Close()
	background.Wait()

	a.logger.Info("app.exited", "Application exited", map[string]interface{}{
		"ts":       time.Now().UTC().Format(time.RFC3339),
		"reason":   exitReason,
		"duration": time.Since(startTime).String(),
	})

	if exitReason == "error" {
		os.Exit(1)
	}
}

func runInstall(args []string) {
	a := loadApp(false)
	defer a.close()

	flagModel, _ := parseModelFlag(args)
	modelID := a.modelID(flagModel)

	ctx, cancel := signalContext()
	defer cancel()

	fmt.Printf("Installing %s...\n", modelID)
	path, err := a.installer.InstallIfNeeded(ctx, modelID, func(p installer.Progress) {
		fmt.Printf("\r  Copied %d/%d files", p.CopiedFiles, p.TotalFiles)
		if p.CopiedFiles == p.TotalFiles {
			fmt.Println()
		}
	})
	if err != nil {
		fmt.Println()
		fmt.Fprintf(os.Stderr, "❌ Install failed: %s\n", session.ErrorMessage(err))
		os.Exit(1)
	}

	if info, err := a.inventory.Record(modelID, path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not record installed model: %v\n", err)
	} else {
		fmt.Printf("  Size: %s\n", formatBytes(info.Size))
	}

	fmt.Printf("✓ Installed at %s\n", path)
}

func runGenerate(args []string) {
	a := loadApp(false)
	defer a.close()

	flagModel, rest := parseModelFlag(args)
	modelID := a.modelID(flagModel)
	prompt := strings.TrimSpace(strings.Join(rest, " "))
	if prompt == "" {
		fmt.Fprintf(os.Stderr, "Usage: cookia generate [--model <id>] <prompt>\n")
		os.Exit(1)
	}

	path := a.installer.Destination(modelID)
	if populated, err := fsutil.DirHasEntries(path); err != nil || !populated {
		fmt.Fprintf(os.Stderr, "❌ %s is not installed. Run: cookia install --model %s\n", modelID, modelID)
		os.Exit(1)
	}

	ctx, cancel := signalContext()
	defer cancel()

	result, err := a.dispatcher.Generate(ctx, modelID, path, prompt)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %s\n", session.ErrorMessage(err))
		os.Exit(1)
	}

	if err := a.inventory.UpdateLastUsed(modelID); err != nil {
		a.logger.Debug("models.state.touch_failed", "Failed to update last used", map[string]interface{}{
			"model": modelID,
			"error": err.Error(),
		})
	}

	fmt.Println(result.Text)
	fmt.Printf("(%d ms via %s)\n", result.Duration.Milliseconds(), result.Variant)
}

func runModels(_ []string) {
	a := loadApp(false)
	defer a.close()

	entries, err := a.catalog.Entries()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Cannot read manifest: %v\n", err)
		os.Exit(1)
	}

	installed := make(map[string]models.ModelInfo)
	if items, err := a.inventory.List(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: cannot read installed models: %v\n", err)
	} else {
		for _, item := range items {
			installed[item.Name] = item
		}
	}

	fmt.Println("=== Models ===")
	if len(entries) == 0 {
		fmt.Println("  The manifest lists no models")
	}
	for _, e := range entries {
		marker := " "
		if e.ModelID == a.cfg.ModelID {
			marker = "*"
		}
		lib := e.ModelLib
		if lib == "" {
			lib = "(no library)"
		}
		fmt.Printf("%s %s\n", marker, e.ModelID)
		fmt.Printf("    Library: %s\n", lib)
		if info, ok := installed[e.ModelID]; ok {
			fmt.Printf("    Installed: %s, last used %s\n", formatBytes(info.Size), info.LastUsed.Local().Format("2006-01-02 15:04"))
		}
	}

	if stats, err := a.inventory.GetStats(); err == nil && stats.ModelCount > 0 {
		fmt.Println()
		fmt.Printf("Installed: %d model(s), %s\n", stats.ModelCount, formatBytes(stats.TotalSize))
	}
}

func runVerify(args []string) {
	a := loadApp(false)
	defer a.close()

	flagModel, _ := parseModelFlag(args)
	modelID := a.modelID(flagModel)

	report, err := a.installer.Verify(modelID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Verify failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Checked %d file(s) of %s\n", report.Checked, modelID)
	for _, p := range report.Missing {
		fmt.Printf("  missing:    %s\n", p)
	}
	for _, p := range report.Mismatched {
		fmt.Printf("  mismatched: %s\n", p)
	}
	for _, p := range report.Extra {
		fmt.Printf("  extra:      %s\n", p)
	}

	if !report.OK() {
		fmt.Printf("❌ Install is damaged. Run: cookia remove --model %s && cookia install --model %s\n", modelID, modelID)
		os.Exit(1)
	}
	fmt.Println("✓ Install matches its receipt")
}

func runRemove(args []string) {
	a := loadApp(false)
	defer a.close()

	flagModel, _ := parseModelFlag(args)
	modelID := a.modelID(flagModel)

	if err := a.installer.Remove(modelID); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Remove failed: %v\n", err)
		os.Exit(1)
	}
	if err := a.inventory.RemoveModel(modelID); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not update installed models: %v\n", err)
	}

	fmt.Printf("✓ Removed %s\n", modelID)
}

func runBattery(_ []string) {
	a := loadApp(false)
	defer a.close()

	level, err := battery.NewWatcher(a.cfg.Battery.SupplyDir, 0, a.logger).Read()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
	if level == nil {
		fmt.Println("Battery: unknown")
		return
	}
	fmt.Printf("Battery: %d%%\n", *level)
}

func runGPUCheck(args []string) {
	a := loadApp(false)
	defer a.close()

	detector := gpu.NewDetector(a.logger)
	report := detector.Detect()

	fmt.Println("=== Accelerator Report ===")
	if !report.NVMLOk {
		fmt.Printf("❌ NVML Status: UNAVAILABLE\n")
		fmt.Printf("   %s\n", report.ErrorMessage)
		fmt.Println("   Inference runs on the CPU")
	} else {
		fmt.Printf("✓ NVML Status: OK\n")
		fmt.Printf("  Driver Version: %s\n", report.DriverVersion)
		fmt.Printf("  CUDA Version: %d\n", report.CUDAVersion)
		fmt.Printf("  Devices: %d\n", len(report.Devices))
		for _, d := range report.Devices {
			fmt.Printf("  GPU %d: %s (%d/%d MB free)\n", d.Index, d.Name, d.FreeMemoryMB, d.MemoryMB)
		}
	}

	if len(args) > 0 && args[0] == "--save" {
		reportPath := filepath.Join(a.filesRoot, gpu.ReportFileName)
		if err := fsutil.EnsureDirectory(a.filesRoot); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to save report: %v\n", err)
			os.Exit(1)
		}
		if err := detector.SaveReport(report, reportPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to save report: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Report saved to: %s\n", reportPath)
	}
}

func runConfig(args []string) {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Usage: cookia config <subcommand>\n")
		fmt.Fprintf(os.Stderr, "Subcommands:\n")
		fmt.Fprintf(os.Stderr, "  test [path]  Test configuration file for validity\n")
		os.Exit(1)
	}

	switch strings.ToLower(args[0]) {
	case "test":
		runConfigTest(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown config subcommand: %s\n", args[0])
		fmt.Fprintf(os.Stderr, "Valid subcommands: test\n")
		os.Exit(1)
	}
}

func runConfigTest(args []string) {
	logger := logging.NewLogger(logging.LevelInfo)

	var (
		cfg       config.Config
		configErr error
	)
	if len(args) > 0 {
		fmt.Printf("Testing configuration file: %s\n", args[0])
		cfg, configErr = config.LoadFrom(args[0])
	} else {
		fmt.Println("Testing configuration (system + user merge):")
		fmt.Printf("  System config: %s\n", config.SystemConfigPath())
		if userPath := config.UserConfigPath(); userPath != "" {
			fmt.Printf("  User config:   %s\n", userPath)
		}
		fmt.Println()
		cfg, configErr = config.Load()
	}

	if configErr != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration validation FAILED:\n")
		fmt.Fprintf(os.Stderr, "   %v\n", configErr)
		logger.Error("config.validation.error", "Configuration validation failed", map[string]interface{}{
			"error": configErr.Error(),
		})
		os.Exit(1)
	}

	fmt.Println("✓ Configuration is VALID")
	fmt.Println()
	fmt.Println("Configuration Summary:")
	fmt.Printf("  Model:          %s\n", cfg.ModelID)
	fmt.Printf("  Assets:         %s\n", cfg.AssetsDir)
	fmt.Printf("  Files Root:     %s\n", fsutil.FilesRoot(cfg.FilesRoot))
	fmt.Printf("  Engine Libs:    %s\n", cfg.Engine.LibDir)
	fmt.Printf("  Temperature:    %.2f\n", cfg.Generation.Temperature)
	fmt.Printf("  Max Tokens:     %d\n", cfg.Generation.MaxTokens)
	fmt.Printf("  Battery Poll:   %ds (%s)\n", cfg.Battery.PollSeconds, cfg.Battery.SupplyDir)
	fmt.Printf("  Log Level:      %s\n", cfg.Logging.Level)

	logger.Info("config.validation.ok", "Configuration validation passed", map[string]interface{}{
		"model": cfg.ModelID,
	})
}

func runVersion(_ []string) {
	fmt.Printf("cookia version %s\n", version)
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func printUsage(_ []string) {
	fmt.Printf(`cookia - on-device chat with a bundled model (version %s)

Usage:
  cookia [--model <id>]                  Start the interactive TUI (default)
  cookia install [--model <id>]          Copy the model weights from the assets directory
  cookia generate [--model <id>] <text>  Run one prompt and print the reply
  cookia models                          List manifest models and installed weights
  cookia verify [--model <id>]           Check installed weights against the install receipt
  cookia remove [--model <id>]           Delete installed weights so they can be reinstalled
  cookia battery                         Print the battery level
  cookia gpu-check [--save]              Probe NVIDIA accelerators via NVML
  cookia config test [path]              Test configuration file for validity
  cookia version                         Print version information
  cookia help                            Show this help message

Environment:
  COOKIA_CONFIG_DIR   System configuration directory (default /etc/cookia)
  COOKIA_FILES_DIR    Files root for installed weights and state
`, version)
}
