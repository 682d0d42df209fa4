package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"
	"time"

	"quill/audio"
	"quill/beep"
	"quill/config"
	"quill/controller"
	"quill/doctor"
	"quill/history"
	"quill/hotkey"
	"quill/inject"
	"quill/log"
	"quill/transcriber"
)

// Set via -ldflags "-X main.version=..."
var version = "dev"

func deviceLineText(dev *audio.DeviceInfo) string {
	name := "system default"
	suffix := ""
	if dev != nil {
		name = dev.Name
		if audio.IsBluetooth(dev.Name) {
			suffix = " (BT!)"
		}
	}
	return "mic: " + name + suffix
}

func modeLineText(trans transcriber.Transcriber, cfg config.Config) string {
	providerLabel := trans.Name()
	if lang := trans.GetLanguage(); lang != "" {
		providerLabel += " (" + lang + ")"
	}
	formatLabel := cfg.Format
	if trans.Streaming() {
		providerLabel += " (stream)"
		formatLabel = "PCM16"
	}
	mode := cfg.Hotkey.Mode
	if mode == "" {
		mode = "hybrid"
	}
	return fmt.Sprintf("[%s | %s | %s]", mode, formatLabel, providerLabel)
}

func findDevice(ctx audio.Context, name string) *audio.DeviceInfo {
	devices, err := ctx.Devices()
	if err != nil {
		return nil
	}
	for i := range devices {
		if devices[i].Name == name {
			return &devices[i]
		}
	}
	return nil
}

func run() {
	configFlag := flag.String("config", "", "Config file path (default: ~/.config/quill/config.yaml)")
	deviceFlag := flag.String("device", "", "Use named microphone device")
	setupFlag := flag.Bool("setup", false, "Select microphone device interactively")
	providerFlag := flag.String("provider", "", "Transcription provider: deepgram, groq, or openai")
	bindingFlag := flag.String("binding", "", "Hotkey binding, e.g. Ctrl+Shift+F9")
	modeFlag := flag.String("mode", "", "Hotkey mode: ptt, toggle, or hybrid")
	langFlag := flag.String("lang", "", "Language code for transcription (e.g., en, es, fr). Empty = auto-detect")
	themeFlag := flag.String("theme", "", "TUI theme: dark or light")
	noBeepFlag := flag.Bool("nobeep", false, "Disable audio cues")
	logPathFlag := flag.String("logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	doctorFlag := flag.Bool("doctor", false, "Run system diagnostics and exit")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("quill %s\n", version)
		os.Exit(0)
	}

	logPath, err := log.ResolveDir(*logPathFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		os.Exit(1)
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}

	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err == nil {
		fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
		debug.SetCrashOutput(crashFile, debug.CrashOptions{})
	}

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Flags override the config file
	if *providerFlag != "" {
		cfg.Provider = *providerFlag
	}
	if *bindingFlag != "" {
		cfg.Hotkey.Binding = *bindingFlag
	}
	if *modeFlag != "" {
		cfg.Hotkey.Mode = *modeFlag
	}
	if *langFlag != "" {
		cfg.Language = *langFlag
	}
	if *themeFlag != "" {
		cfg.Theme = *themeFlag
	}
	if *deviceFlag != "" {
		cfg.Audio.Device = *deviceFlag
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *doctorFlag {
		os.Exit(doctor.Run(cfg.Binding()))
	}

	if *noBeepFlag {
		beep.Disable()
	}

	provider := cfg.Provider
	if provider == "auto" {
		provider = ""
	}
	trans, err := transcriber.ByName(provider, transcriber.CredentialsFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if cfg.Language != "" {
		trans.SetLanguage(cfg.Language)
	}

	ctx, err := audio.NewContext()
	if err != nil {
		log.Errorf("audio context init error: %v", err)
		fmt.Fprintf(os.Stderr, "Error initializing audio context: %v\n", err)
		os.Exit(1)
	}
	defer ctx.Close()

	var selectedDevice *audio.DeviceInfo
	if cfg.Audio.Device != "" {
		selectedDevice = findDevice(ctx, cfg.Audio.Device)
		if selectedDevice == nil {
			log.Warnf("device %q not found, using default", cfg.Audio.Device)
			fmt.Fprintf(os.Stderr, "Warning: device %q not found, using default\n", cfg.Audio.Device)
		}
	} else if *setupFlag {
		selectedDevice, err = selectDevice(ctx)
		if err != nil {
			log.Warnf("device selection failed: %v", err)
			fmt.Fprintf(os.Stderr, "Warning: device selection failed: %v, using default\n", err)
			selectedDevice = nil
		}
	}

	capture, err := ctx.NewCapture(selectedDevice, audio.CaptureConfig{
		SampleRate: audio.SampleRate,
		Channels:   audio.Channels,
	})
	if err != nil {
		log.Errorf("capture device init error: %v", err)
		fmt.Fprintf(os.Stderr, "Error initializing capture device: %v\n", err)
		os.Exit(1)
	}
	defer capture.Close()

	hist, err := history.Open(cfg.History.Path, cfg.History.Max)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening history: %v\n", err)
		os.Exit(1)
	}

	injector, err := inject.New(cfg.Injection.Method)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	factory := func(b hotkey.Binding) (hotkey.Hotkey, error) {
		return hotkey.New(b), nil
	}
	bridge, err := hotkey.NewBridge(factory, cfg.Hotkey.Mode, time.Duration(cfg.Hotkey.LongPressMs)*time.Millisecond)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctl, err := controller.New(controller.Options{
		Transcriber: trans,
		Capture:     capture,
		Injector:    injector,
		History:     hist,
		Beeper:      beep.Player{},
		IsToggle:    bridge.IsToggle,
		Format:      cfg.Format,
		Language:    cfg.Language,
		MinCapture:  time.Duration(cfg.Audio.MinCaptureMs) * time.Millisecond,
		IdleWarn:    time.Duration(cfg.Idle.WarnSeconds) * time.Second,
		IdleStop:    time.Duration(cfg.Idle.StopSeconds) * time.Second,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer ctl.Close()

	ui := NewTUI(cfg.Theme, modeLineText(trans, cfg), deviceLineText(selectedDevice), cfg.Binding().String(), TUICommands{
		Start:    ctl.Start,
		Stop:     ctl.Stop,
		Cancel:   ctl.Cancel,
		CopyLast: ctl.CopyLast,
		Retype:   func() { ctl.Retype("") },
	})
	ctl.Subscribe(ui.Observer())

	// Edges reach exactly one surface: the widget's handler while it is
	// visible, otherwise the main panel's event loop below.
	dispatch := func(e hotkey.Edge) {
		switch e.Cmd {
		case hotkey.CmdStart:
			ctl.Start()
		case hotkey.CmdStop:
			ctl.Stop()
		}
	}
	bridge.AddSurface("widget", ui.WidgetVisible, dispatch)

	// A failed registration must not take the process down: the TUI
	// keys still drive the controller.
	regErr := bridge.Register(cfg.Binding())
	if regErr != nil {
		log.Errorf("hotkey registration failed: %v", regErr)
	}

	go func() {
		for e := range bridge.Events() {
			dispatch(e)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		ui.Quit()
	}()

	if regErr != nil {
		obs := ui.Observer()
		go func() {
			time.Sleep(300 * time.Millisecond)
			obs.ErrorRaised(controller.NewError(controller.RegistrationError, regErr))
		}()
	}

	log.SessionStart(trans.Name(), cfg.Hotkey.Mode)
	if err := ui.Run(); err != nil {
		log.Errorf("TUI error: %v", err)
	}

	bridge.Unregister()
	log.SessionEnd(hist.Len())
}
