package main

import (
	"fmt"
	"os"

	"quill/audio"

	"golang.org/x/term"
)

// selectDevice prompts for a microphone when more than one is available.
// With a single device there is nothing to choose and it is returned
// directly. Bluetooth mics get flagged in the list since their capture
// profile tends to wreck transcription quality.
func selectDevice(ctx audio.Context) (*audio.DeviceInfo, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	if len(devices) == 0 {
		return nil, fmt.Errorf("no capture devices found")
	}
	if len(devices) == 1 {
		fmt.Printf("Using device: %s\n", devices[0].Name)
		return &devices[0], nil
	}

	// Arrow keys need the terminal in raw mode
	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("setting raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	labels := make([]string, len(devices))
	for i, d := range devices {
		labels[i] = d.Name
		if audio.IsBluetooth(d.Name) {
			labels[i] += " (BT!)"
		}
	}

	cursor := 0
	render := func() {
		fmt.Print("\r\x1b[J") // clear to end of screen
		fmt.Print("Pick a microphone (↑/↓ or j/k, Enter to confirm):\r\n\r\n")
		for i, label := range labels {
			if i == cursor {
				fmt.Printf("  \x1b[1;36m▶ %s\x1b[0m\r\n", label)
			} else {
				fmt.Printf("    %s\r\n", label)
			}
		}
	}
	render()

	up := func() {
		if cursor > 0 {
			cursor--
		}
	}
	down := func() {
		if cursor < len(devices)-1 {
			cursor++
		}
	}

	buf := make([]byte, 3)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			return nil, fmt.Errorf("reading input: %w", err)
		}

		switch {
		case n == 1 && buf[0] == 13: // Enter
			fmt.Printf("\r\n")
			term.Restore(fd, oldState)
			return &devices[cursor], nil
		case n == 1 && buf[0] == 3: // Ctrl+C
			fmt.Printf("\r\n")
			term.Restore(fd, oldState)
			os.Exit(0)
		case n == 1 && buf[0] == 'j':
			down()
		case n == 1 && buf[0] == 'k':
			up()
		case n == 3 && buf[0] == 0x1b && buf[1] == '[' && buf[2] == 'A':
			up()
		case n == 3 && buf[0] == 0x1b && buf[1] == '[' && buf[2] == 'B':
			down()
		}

		// Move back over the list and redraw in place
		fmt.Printf("\x1b[%dA", len(devices)+2)
		render()
	}
}
