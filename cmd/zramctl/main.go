// zramctl is a REPL front-end over a pkg/zram.Device, exposing its
// configuration surface (disksize, compressor, mem_limit, mem_used_max,
// compact, io_stat, mm_stat, debug_stat, reset) as interactive commands,
// plus read/write/discard commands for driving I/O against the device
// directly from a terminal.
//
// Usage:
//
//	zramctl [--config profile.hujson] [--disksize bytes] [--compressor name]
//
// Commands (in REPL):
//
//	disksize [bytes]         Show, or (once, pre-init) set, disksize
//	init_state               Show whether the device is initialized
//	compressor [name]        Show algorithms, or select one pre-init
//	mem_limit [pages]        Show, or set, the page limit
//	mem_used_max             Reset the high-water mark
//	compact                  Defragment the pool
//	reset                    Tear the device down
//	io_stat                  Show failed-read/failed-write/invalid-io/notify-free counters
//	mm_stat                  Show memory-usage counters
//	debug_stat               Show version/writestall counters
//	read <page>              Read one page, print as hex
//	write <page> <hex>       Write one page from hex (zero-padded)
//	discard <start> <len>    Discard a byte range
//	help                     Show this help
//	exit / quit / q          Exit
package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"

	"github.com/zram-go/zram/internal/config"
	"github.com/zram-go/zram/pkg/zram"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("zramctl", flag.ContinueOnError)

	configPath := fs.String("config", "", "path to a HuJSON device profile")
	disksizeFlag := fs.Int64("disksize", 0, "disksize in bytes, overrides the profile")
	compressorFlag := fs.String("compressor", "", "compressor algorithm, overrides the profile")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: zramctl [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	profile, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if *disksizeFlag != 0 {
		profile.DisksizeBytes = *disksizeFlag
	}

	if *compressorFlag != "" {
		profile.Compressor = *compressorFlag
	}

	dev, err := zram.New(zram.Options{Algorithm: profile.Compressor})
	if err != nil {
		return fmt.Errorf("creating device: %w", err)
	}

	if err := dev.SetDisksize(profile.DisksizeBytes); err != nil {
		return fmt.Errorf("set_disksize: %w", err)
	}

	if profile.MemLimitBytes > 0 {
		if err := dev.SetLimit((profile.MemLimitBytes + zram.PageSize - 1) / zram.PageSize); err != nil {
			return fmt.Errorf("set_limit: %w", err)
		}
	}

	repl := &REPL{dev: dev}

	return repl.Run()
}

// REPL drives an interactive session against a single *zram.Device.
type REPL struct {
	dev   *zram.Device
	liner *liner.State
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".zramctl_history")
}

// Run starts the REPL loop, returning when the user exits.
func (r *REPL) Run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(r.completer)

	if f, err := os.Open(historyFile()); err == nil {
		r.liner.ReadHistory(f)
		f.Close()
	}

	fmt.Printf("zramctl (disksize=%d)\n", r.dev.Disksize())
	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	for {
		line, err := r.liner.Prompt("zramctl> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Println("\nBye!")

				break
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		r.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		cmdArgs := parts[1:]

		switch cmd {
		case "exit", "quit", "q":
			fmt.Println("Bye!")
			r.saveHistory()

			return nil
		case "help", "?":
			r.printHelp()
		case "disksize":
			r.cmdDisksize(cmdArgs)
		case "init_state":
			r.cmdInitState()
		case "compressor":
			r.cmdCompressor(cmdArgs)
		case "mem_limit":
			r.cmdMemLimit(cmdArgs)
		case "mem_used_max":
			r.cmdMemUsedMax()
		case "compact":
			r.cmdCompact()
		case "reset":
			r.cmdReset()
		case "io_stat":
			r.cmdIOStat()
		case "mm_stat":
			r.cmdMMStat()
		case "debug_stat":
			r.cmdDebugStat()
		case "read":
			r.cmdRead(cmdArgs)
		case "write":
			r.cmdWrite(cmdArgs)
		case "discard":
			r.cmdDiscard(cmdArgs)
		default:
			fmt.Printf("Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}

	r.saveHistory()

	return nil
}

func (r *REPL) saveHistory() {
	if path := historyFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			r.liner.WriteHistory(f)
			f.Close()
		}
	}
}

func (r *REPL) completer(line string) []string {
	commands := []string{
		"disksize", "init_state", "compressor", "mem_limit", "mem_used_max",
		"compact", "reset", "io_stat", "mm_stat", "debug_stat",
		"read", "write", "discard", "help", "exit", "quit", "q",
	}

	var completions []string

	lower := strings.ToLower(line)
	for _, cmd := range commands {
		if strings.HasPrefix(cmd, lower) {
			completions = append(completions, cmd)
		}
	}

	return completions
}

func (r *REPL) printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  disksize [bytes]         Show, or (once, pre-init) set, disksize")
	fmt.Println("  init_state               Show whether the device is initialized")
	fmt.Println("  compressor [name]        Show algorithms, or select one pre-init")
	fmt.Println("  mem_limit [pages]        Show, or set, the page limit")
	fmt.Println("  mem_used_max             Reset the high-water mark")
	fmt.Println("  compact                  Defragment the pool")
	fmt.Println("  reset                    Tear the device down")
	fmt.Println("  io_stat                  Show failed-read/failed-write/invalid-io/notify-free counters")
	fmt.Println("  mm_stat                  Show memory-usage counters")
	fmt.Println("  debug_stat               Show version/writestall counters")
	fmt.Println("  read <page>              Read one page, print as hex")
	fmt.Println("  write <page> <hex>       Write one page from hex (zero-padded)")
	fmt.Println("  discard <start> <len>    Discard a byte range")
	fmt.Println("  help                     Show this help")
	fmt.Println("  exit / quit / q          Exit")
}

func (r *REPL) cmdDisksize(args []string) {
	if len(args) == 0 {
		fmt.Println(r.dev.Disksize())

		return
	}

	n, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		fmt.Println("invalid byte count:", err)

		return
	}

	if err := r.dev.SetDisksize(n); err != nil {
		fmt.Println("set_disksize:", err)
	}
}

func (r *REPL) cmdInitState() {
	fmt.Println(r.dev.Initialized())
}

func (r *REPL) cmdCompressor(args []string) {
	if len(args) == 0 {
		all, current := r.dev.Algorithms()
		fmt.Printf("current: %s, available: %s\n", current, strings.Join(all, ", "))

		return
	}

	if err := r.dev.SetCompressor(args[0]); err != nil {
		fmt.Println("set_compressor:", err)
	}
}

func (r *REPL) cmdMemLimit(args []string) {
	if len(args) == 0 {
		fmt.Println(r.dev.MMStat().LimitBytes / zram.PageSize)

		return
	}

	pages, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		fmt.Println("invalid page count:", err)

		return
	}

	if err := r.dev.SetLimit(pages); err != nil {
		fmt.Println("set_limit:", err)
	}
}

func (r *REPL) cmdMemUsedMax() {
	if err := r.dev.ResetMaxUsed(); err != nil {
		fmt.Println("reset_max_used:", err)
	}
}

func (r *REPL) cmdCompact() {
	if err := r.dev.Compact(); err != nil {
		fmt.Println("compact:", err)
	}
}

func (r *REPL) cmdReset() {
	if err := r.dev.ResetDevice(); err != nil {
		fmt.Println("reset_device:", err)
	}
}

func (r *REPL) cmdIOStat() {
	fmt.Printf("%+v\n", r.dev.IOStat())
}

func (r *REPL) cmdMMStat() {
	fmt.Printf("%+v\n", r.dev.MMStat())
}

func (r *REPL) cmdDebugStat() {
	fmt.Println(r.dev.DebugStat().String())
}

func (r *REPL) cmdRead(args []string) {
	if len(args) < 1 {
		fmt.Println("usage: read <page>")

		return
	}

	page, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Println("invalid page index:", err)

		return
	}

	buf := make([]byte, zram.PageSize)
	if err := r.dev.RWPage(page, buf, false); err != nil {
		fmt.Println("read:", err)

		return
	}

	fmt.Println(hex.EncodeToString(buf))
}

func (r *REPL) cmdWrite(args []string) {
	if len(args) < 2 {
		fmt.Println("usage: write <page> <hex>")

		return
	}

	page, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Println("invalid page index:", err)

		return
	}

	raw, err := hex.DecodeString(args[1])
	if err != nil {
		fmt.Println("invalid hex:", err)

		return
	}

	buf := make([]byte, zram.PageSize)
	copy(buf, raw)

	if err := r.dev.RWPage(page, buf, true); err != nil {
		fmt.Println("write:", err)
	}
}

func (r *REPL) cmdDiscard(args []string) {
	if len(args) < 2 {
		fmt.Println("usage: discard <start> <len>")

		return
	}

	start, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		fmt.Println("invalid start:", err)

		return
	}

	n, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		fmt.Println("invalid length:", err)

		return
	}

	if err := r.dev.Discard(start, n); err != nil {
		fmt.Println("discard:", err)
	}
}
