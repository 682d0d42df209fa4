// Package doctor runs interactive end-to-end checks of everything
// dictation depends on: the global hotkey, the microphone, the
// transcription provider and the keystroke output path.
package doctor

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"quill/audio"
	"quill/hotkey"
	"quill/inject"
	"quill/transcriber"
)

// Run executes the checks and returns an exit code (0=all pass, 1=any fail).
func Run(binding hotkey.Binding) int {
	resetTerminal()
	setupInterruptHandler()

	fmt.Println("quill doctor - interactive system diagnostics")
	fmt.Println("=============================================")

	allPass := true

	if !checkHotkey(binding) {
		allPass = false
	}
	if allPass && !checkMicAndTranscription() {
		allPass = false
	}
	if allPass && !checkInjection() {
		allPass = false
	}

	fmt.Println()
	if allPass {
		fmt.Println("All checks passed!")
		return 0
	}
	fmt.Println("Some checks failed. See details above.")
	return 1
}

func checkHotkey(binding hotkey.Binding) bool {
	fmt.Println()
	fmt.Println("[1/3] Hotkey detection")
	fmt.Printf("Press %s...\n", binding)

	hk := hotkey.New(binding)
	if err := hk.Register(); err != nil {
		fmt.Printf("  FAIL: could not register hotkey: %v\n", err)
		return false
	}
	defer hk.Unregister()

	select {
	case <-hk.Keydown():
		fmt.Println("  PASS: hotkey detected")
		// Wait for keyup to avoid triggering next step
		select {
		case <-hk.Keyup():
		case <-time.After(5 * time.Second):
		}
		// Reset terminal after hotkey - it may leave terminal in raw mode
		resetTerminal()
		return true
	case <-time.After(10 * time.Second):
		fmt.Println("  FAIL: timeout waiting for hotkey")
		return false
	}
}

func checkMicAndTranscription() bool {
	fmt.Println()
	fmt.Println("[2/3] Microphone and transcription")

	reader := bufio.NewReader(os.Stdin)

	ctx, err := audio.NewContext()
	if err != nil {
		fmt.Printf("  FAIL: cannot connect to audio: %v\n", err)
		return false
	}
	defer ctx.Close()

	devices, err := ctx.Devices()
	if err != nil {
		fmt.Printf("  FAIL: cannot list devices: %v\n", err)
		return false
	}
	if len(devices) == 0 {
		fmt.Println("  FAIL: no capture devices found")
		return false
	}

	var device *audio.DeviceInfo
	if len(devices) == 1 {
		device = &devices[0]
		fmt.Printf("Using device: %s\n", device.Name)
	} else {
		fmt.Println()
		fmt.Println("Select input device:")
		for i, d := range devices {
			fmt.Printf("  %d. %s\n", i+1, d.Name)
		}
		fmt.Printf("Choice [1-%d]: ", len(devices))

		devChoice, _ := reader.ReadString('\n')
		devChoice = strings.TrimSpace(devChoice)
		idx := 0
		if devChoice != "" {
			fmt.Sscanf(devChoice, "%d", &idx)
			idx--
		}
		if idx < 0 || idx >= len(devices) {
			fmt.Printf("  FAIL: invalid choice\n")
			return false
		}
		device = &devices[idx]
		fmt.Printf("Selected: %s\n", device.Name)
	}

	fmt.Println()
	fmt.Println("Select transcription provider:")
	fmt.Println("  1. Groq")
	fmt.Println("  2. DeepGram")
	fmt.Println("  3. OpenAI")
	fmt.Print("Choice [1/2/3]: ")

	choice, _ := reader.ReadString('\n')
	choice = strings.TrimSpace(choice)

	var provider string
	switch choice {
	case "1", "":
		provider = "groq"
	case "2":
		provider = "deepgram"
	case "3":
		provider = "openai"
	default:
		fmt.Printf("  FAIL: invalid choice %q\n", choice)
		return false
	}

	creds := transcriber.CredentialsFromEnv()
	apiKey := map[string]string{
		"groq":     creds.Groq,
		"deepgram": creds.Deepgram,
		"openai":   creds.OpenAI,
	}[provider]
	if apiKey == "" {
		fmt.Printf("Enter %s API key: ", provider)
		line, _ := reader.ReadString('\n')
		apiKey = strings.TrimSpace(line)
	}
	if apiKey == "" {
		fmt.Println("  FAIL: API key required")
		return false
	}

	var trans transcriber.Transcriber
	switch provider {
	case "groq":
		trans = transcriber.NewGroq(apiKey)
	case "deepgram":
		trans = transcriber.NewDeepgram(apiKey)
	case "openai":
		trans = transcriber.NewOpenAI(apiKey)
	}

	fmt.Println()
	fmt.Print("Press Enter and speak for 3 seconds...")
	reader.ReadString('\n')

	stop := make(chan struct{})
	go func() {
		time.Sleep(3 * time.Second)
		close(stop)
	}()

	audioData, err := recordAudio(ctx, device, stop)
	if err != nil {
		fmt.Printf("  FAIL: recording error: %v\n", err)
		return false
	}
	if len(audioData) == 0 {
		fmt.Println("  FAIL: no audio captured")
		return false
	}

	fmt.Printf("  Recorded %.1f KB, transcribing...\n", float64(len(audioData))/1024)

	sess, err := trans.NewSession(context.Background(), transcriber.SessionConfig{Format: "flac"})
	if err != nil {
		fmt.Printf("  FAIL: session error: %v\n", err)
		return false
	}
	sess.Feed(audioData)
	result, err := sess.Close()
	if err != nil {
		fmt.Printf("  FAIL: transcription error: %v\n", err)
		return false
	}

	text := strings.TrimSpace(result.Text)
	if text == "" {
		text = "(no speech detected)"
	}

	fmt.Printf("\n  Transcribed text: %s\n\n", text)

	// Fresh reader to clear any buffered input
	confirmReader := bufio.NewReader(os.Stdin)
	fmt.Print("Is this correct? [y/n]: ")
	confirm, _ := confirmReader.ReadString('\n')
	confirm = strings.TrimSpace(strings.ToLower(confirm))

	if confirm == "y" || confirm == "yes" {
		fmt.Println("  PASS: transcription verified by user")
		return true
	}

	fmt.Println("  FAIL: transcription not confirmed")
	return false
}

func recordAudio(ctx audio.Context, device *audio.DeviceInfo, stop <-chan struct{}) ([]byte, error) {
	var pcmBuf []byte
	var bufMu sync.Mutex
	var stopped bool
	done := make(chan struct{})

	capture, err := ctx.NewCapture(device, audio.CaptureConfig{
		SampleRate: audio.SampleRate,
		Channels:   audio.Channels,
	})
	if err != nil {
		return nil, err
	}

	capture.SetCallback(func(data []byte, frameCount uint32) {
		bufMu.Lock()
		if stopped {
			bufMu.Unlock()
			return
		}
		pcmBuf = append(pcmBuf, data...)
		bufMu.Unlock()
	})

	if err := capture.Start(); err != nil {
		capture.Close()
		return nil, err
	}

	fmt.Print("  Recording")
	ticker := time.NewTicker(500 * time.Millisecond)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	<-stop
	close(done)

	capture.Stop()
	fmt.Println(" done")
	capture.Close()

	bufMu.Lock()
	stopped = true
	raw := pcmBuf
	bufMu.Unlock()

	return raw, nil
}

func checkInjection() bool {
	fmt.Println()
	fmt.Println("[3/3] Keystroke output")

	if err := inject.Init(); err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		fmt.Println("  On Linux fix with: sudo chmod 660 /dev/uinput && sudo chgrp input /dev/uinput")
		return false
	}
	fmt.Println("  PASS: injection device initialized")

	msg, err := inject.Verify()
	if err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		return false
	}
	fmt.Printf("  PASS: %s\n", msg)

	fmt.Println()
	fmt.Println("  Verifying clipboard preservation...")
	sentinel := fmt.Sprintf("quill-preserve-%d", time.Now().UnixNano())
	if err := inject.Copy(sentinel); err != nil {
		fmt.Printf("  FAIL: could not set sentinel: %v\n", err)
		return false
	}
	restored, err := inject.ReadClipboard()
	if err != nil {
		fmt.Printf("  FAIL: could not read clipboard: %v\n", err)
		return false
	}
	if restored != sentinel {
		fmt.Printf("  FAIL: clipboard mismatch (got %q, want %q)\n", restored, sentinel)
		return false
	}
	fmt.Println("  PASS: clipboard write/read verified")
	return true
}
