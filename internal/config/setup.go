package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// RunSetupWizard guides the user through first-time configuration, reading
// answers from in and writing prompts to out. The result is saved.
func RunSetupWizard(cfg *Config, in io.Reader, out io.Writer) error {
	w := &wizard{reader: bufio.NewReader(in), out: out}

	w.println("╔══════════════════════════════════════════════╗")
	w.println("║          mcwatch - First Run Setup           ║")
	w.println("╚══════════════════════════════════════════════╝")
	w.println("")

	w.println("── Servers ──")
	for {
		addr := w.promptString("Server address (host[:port], blank to finish)", "")
		if addr == "" {
			break
		}
		if err := ValidateAddress(addr); err != nil {
			w.printf("    %v\n", err)
			continue
		}
		label := w.promptString("Label", addr)
		cfg.AddServer(ServerConfig{Label: label, Address: addr})
	}

	cfg.mu.Lock()
	w.println("")
	w.println("── Monitoring ──")
	cfg.Monitor.IntervalSeconds = w.promptInt("Update interval (seconds)", cfg.Monitor.IntervalSeconds)
	cfg.Monitor.TimeoutMs = w.promptInt("Probe timeout (ms)", cfg.Monitor.TimeoutMs)
	if w.promptBool("Use the legacy (pre-1.7) protocol", cfg.Monitor.Protocol == "legacy") {
		cfg.Monitor.Protocol = "legacy"
	} else {
		cfg.Monitor.Protocol = "modern"
	}

	w.println("")
	w.println("── REST API ──")
	cfg.API.Enabled = w.promptBool("Enable REST API", cfg.API.Enabled)
	if cfg.API.Enabled {
		cfg.API.Port = w.promptInt("REST API port", cfg.API.Port)
	}

	w.println("")
	w.println("── Discord Integration ──")
	cfg.Discord.WebhookURL = w.promptString("Discord webhook URL (blank to disable)", cfg.Discord.WebhookURL)
	cfg.Discord.Enabled = cfg.Discord.WebhookURL != ""

	w.println("")
	w.println("── MQTT Telemetry ──")
	cfg.MQTT.Enabled = w.promptBool("Enable MQTT telemetry", cfg.MQTT.Enabled)
	if cfg.MQTT.Enabled {
		cfg.MQTT.BrokerURL = w.promptString("MQTT broker host", cfg.MQTT.BrokerURL)
		cfg.MQTT.Port = w.promptInt("MQTT broker port", cfg.MQTT.Port)
	}
	cfg.mu.Unlock()

	result := Validate(cfg)
	if !result.IsValid() {
		w.println("\n⚠ Configuration has errors:")
		for _, e := range result.Errors {
			w.printf("  - [%s] %s\n", e.Field, e.Message)
		}
		return fmt.Errorf("configuration validation failed")
	}

	for _, warning := range result.Warnings {
		log.Warn().Str("field", warning.Field).Msg(warning.Message)
	}

	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	w.println("")
	w.println("✓ Configuration saved successfully!")
	w.println("")

	return nil
}

type wizard struct {
	reader *bufio.Reader
	out    io.Writer
}

func (w *wizard) println(s string) {
	fmt.Fprintln(w.out, s)
}

func (w *wizard) printf(format string, args ...interface{}) {
	fmt.Fprintf(w.out, format, args...)
}

func (w *wizard) readLine() string {
	input, _ := w.reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func (w *wizard) promptString(prompt string, defaultVal string) string {
	if defaultVal != "" {
		w.printf("  %s [%s]: ", prompt, defaultVal)
	} else {
		w.printf("  %s: ", prompt)
	}

	input := w.readLine()
	if input == "" {
		return defaultVal
	}
	return input
}

func (w *wizard) promptInt(prompt string, defaultVal int) int {
	w.printf("  %s [%d]: ", prompt, defaultVal)

	input := w.readLine()
	if input == "" {
		return defaultVal
	}

	val, err := strconv.Atoi(input)
	if err != nil {
		w.printf("    Invalid number, using default: %d\n", defaultVal)
		return defaultVal
	}
	return val
}

func (w *wizard) promptBool(prompt string, defaultVal bool) bool {
	defaultStr := "no"
	if defaultVal {
		defaultStr = "yes"
	}

	w.printf("  %s [%s]: ", prompt, defaultStr)

	input := strings.ToLower(w.readLine())
	if input == "" {
		return defaultVal
	}

	return input == "yes" || input == "y" || input == "true" || input == "1"
}
