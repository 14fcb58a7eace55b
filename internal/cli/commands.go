// Package cli implements the interactive console for mcwatch: a live status
// table plus commands to probe, add and remove servers.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/mcwatch/internal/config"
	"github.com/energizer-project/mcwatch/internal/server"
	"github.com/energizer-project/mcwatch/internal/status"
)

// errQuit ends the command loop.
var errQuit = errors.New("quit")

// CLI provides an interactive command-line interface.
type CLI struct {
	cfg     *config.Config
	manager *server.Manager
	in      io.Reader
	out     io.Writer
}

// NewCLI creates a new CLI handler reading commands from in.
func NewCLI(cfg *config.Config, manager *server.Manager, in io.Reader, out io.Writer) *CLI {
	return &CLI{
		cfg:     cfg,
		manager: manager,
		in:      in,
		out:     out,
	}
}

// Start runs the command loop until quit, end of input or ctx is cancelled.
func (c *CLI) Start(ctx context.Context) {
	fmt.Fprintln(c.out, "\nmcwatch CLI ready. Type 'help' for available commands.")
	fmt.Fprintln(c.out, "─────────────────────────────────────────────────────")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			log.Warn().Err(err).Msg("CLI: input closed")
		}
	}()

	for {
		fmt.Fprint(c.out, "mcwatch> ")

		var line string
		select {
		case <-ctx.Done():
			return
		case l, ok := <-lines:
			if !ok {
				return
			}
			line = strings.TrimSpace(l)
		}

		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		if err := c.execute(ctx, cmd, args); err != nil {
			if errors.Is(err, errQuit) {
				return
			}
			fmt.Fprintf(c.out, "Error: %v\n", err)
		}
	}
}

// execute processes a single CLI command.
func (c *CLI) execute(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "help", "h", "?":
		c.printHelp()
	case "status", "s":
		return c.printStatus(args)
	case "ping", "p":
		return c.cmdPing(ctx)
	case "add":
		return c.cmdAdd(args)
	case "remove", "rm":
		return c.cmdRemove(args)
	case "quit", "exit", "q":
		fmt.Fprintln(c.out, "Shutting down mcwatch...")
		return errQuit
	default:
		fmt.Fprintf(c.out, "Unknown command: '%s'. Type 'help' for available commands.\n", cmd)
	}
	return nil
}

// printHelp displays available commands.
func (c *CLI) printHelp() {
	fmt.Fprintln(c.out, "\n╔══════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(c.out, "║                     mcwatch CLI Commands                     ║")
	fmt.Fprintln(c.out, "╠══════════════════════════════════════════════════════════════╣")
	fmt.Fprintln(c.out, "║  status [label]       Show all servers or one in detail      ║")
	fmt.Fprintln(c.out, "║  ping                 Probe every server now                 ║")
	fmt.Fprintln(c.out, "║  add <addr> [label]   Start watching a server                ║")
	fmt.Fprintln(c.out, "║  remove <label>       Stop watching a server                 ║")
	fmt.Fprintln(c.out, "║  quit                 Shutdown mcwatch                       ║")
	fmt.Fprintln(c.out, "║  help                 Show this help message                 ║")
	fmt.Fprintln(c.out, "╚══════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(c.out)
}

// printStatus displays observers in a table, or one observer in detail.
func (c *CLI) printStatus(args []string) error {
	if len(args) > 0 {
		o, ok := c.manager.ObserverByLabel(args[0])
		if !ok {
			return fmt.Errorf("server not found: %s", args[0])
		}
		c.printServerDetail(o)
		return nil
	}

	observers := c.manager.Observers()
	if len(observers) == 0 {
		fmt.Fprintln(c.out, "No servers are being watched. Use 'add <addr>' to add one.")
		return nil
	}

	fmt.Fprintln(c.out)
	tw := tablewriter.NewWriter(c.out)
	tw.SetHeader([]string{"Label", "Endpoint", "Status", "Players", "Version", "Latency", "Checked"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)

	for _, o := range observers {
		tw.Append(StatusRow(o.Label(), o.Endpoint(), latest(o)))
	}

	tw.Render()
	fmt.Fprintln(c.out)
	return nil
}

// printServerDetail prints detailed info for a single observer.
func (c *CLI) printServerDetail(o *server.Observer) {
	online, count, names := o.Notify()
	snap := latest(o)

	fmt.Fprintf(c.out, "\n  Label:        %s\n", o.Label())
	fmt.Fprintf(c.out, "  Endpoint:     %s\n", o.Endpoint())
	fmt.Fprintf(c.out, "  Notify:       status=%v count=%v names=%v\n", online, count, names)
	fmt.Fprintf(c.out, "  History:      %d snapshots\n", len(o.Tracker().History()))

	if snap == nil {
		fmt.Fprintln(c.out, "  Status:       not probed yet")
		fmt.Fprintln(c.out)
		return
	}

	if !snap.Success {
		fmt.Fprintf(c.out, "  Status:       offline (%s)\n", snap.Error.Summary())
		fmt.Fprintf(c.out, "  Checked:      %s\n", snap.CompletedAt().Format(time.RFC3339))
		fmt.Fprintln(c.out)
		return
	}

	fmt.Fprintln(c.out, "  Status:       online")
	fmt.Fprintf(c.out, "  MOTD:         %s\n", snap.DisplayMotd())
	fmt.Fprintf(c.out, "  Version:      %s (protocol %d)\n", snap.Version, snap.Protocol)
	fmt.Fprintf(c.out, "  Players:      %d/%d\n", snap.CurrentPlayers, snap.MaxPlayers)
	fmt.Fprintf(c.out, "  Latency:      %dms\n", snap.ElapsedMs())
	fmt.Fprintf(c.out, "  Checked:      %s\n", snap.CompletedAt().Format(time.RFC3339))

	if players := o.OnlinePlayers(); len(players) > 0 {
		fmt.Fprintln(c.out, "  Online:")
		for _, p := range players {
			fmt.Fprintf(c.out, "    - %s\n", p.DisplayName())
		}
	}
	fmt.Fprintln(c.out)
}

// cmdPing runs one update round and prints the rendered events.
func (c *CLI) cmdPing(ctx context.Context) error {
	batches, err := c.manager.Update(ctx)
	if err != nil {
		return err
	}
	if len(batches) == 0 {
		fmt.Fprintln(c.out, "No changes.")
		return nil
	}

	for _, batch := range batches {
		fmt.Fprintf(c.out, "[%s]\n%s\n", batch.Label, c.cfg.Messages.RenderBatch(batch))
	}
	return nil
}

func (c *CLI) cmdAdd(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: add <host[:port]> [label]")
	}

	ep, err := status.ParseEndpoint(args[0])
	if err != nil {
		return err
	}

	label := args[0]
	if len(args) > 1 {
		label = strings.Join(args[1:], " ")
	}
	if _, exists := c.manager.ObserverByLabel(label); exists {
		return fmt.Errorf("label already in use: %s", label)
	}

	c.manager.Make(ep, false, label)

	if c.cfg.Path() != "" {
		c.cfg.AddServer(config.ServerConfig{Label: label, Address: ep.Address()})
		if err := c.cfg.Save(); err != nil {
			return err
		}
	}

	fmt.Fprintf(c.out, "Watching %s as '%s'\n", ep, label)
	return nil
}

func (c *CLI) cmdRemove(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: remove <label>")
	}

	label := strings.Join(args, " ")
	o, ok := c.manager.ObserverByLabel(label)
	if !ok {
		return fmt.Errorf("server not found: %s", label)
	}
	c.manager.Destroy(o)

	if c.cfg.Path() != "" && c.cfg.RemoveServer(label) {
		if err := c.cfg.Save(); err != nil {
			return err
		}
	}

	fmt.Fprintf(c.out, "Stopped watching '%s'\n", label)
	return nil
}

func latest(o *server.Observer) *status.Snapshot {
	snap, _ := o.Tracker().LatestSnapshot(false)
	return snap
}

// StatusRow formats one table row. A nil snapshot renders as pending.
func StatusRow(label string, ep status.Endpoint, snap *status.Snapshot) []string {
	if snap == nil {
		return []string{label, ep.String(), "PENDING", "-", "-", "-", "-"}
	}

	checked := snap.CompletedAt().Format("15:04:05")
	if !snap.Success {
		return []string{label, ep.String(), "OFFLINE", "-", "-", "-", checked}
	}

	return []string{
		label,
		ep.String(),
		"ONLINE",
		strconv.Itoa(snap.CurrentPlayers) + "/" + strconv.Itoa(snap.MaxPlayers),
		snap.Version,
		fmt.Sprintf("%dms", snap.ElapsedMs()),
		checked,
	}
}
