// Command pickup-log is a tool for viewing and analyzing Oreon Pickup
// protocol log files.
//
// Log files are created by running a node with protocol logging enabled
// (the protocol_log_path config setting).
//
// Usage:
//
//	pickup-log <command> [flags] <file.plog>
//
// Commands:
//
//	view     View log file in human-readable format
//	export   Export log file to JSON lines
//	filter   Filter log file and write to new file
//	stats    Show statistics about the log file
//
// Examples:
//
//	# View all events
//	pickup-log view node.plog
//
//	# View only wire messages a responder session received
//	pickup-log view -category wire -direction in -role responder node.plog
//
//	# Export to JSONL
//	pickup-log export node.plog > node.jsonl
//
//	# Keep one session's events
//	pickup-log filter -session <uuid> -o session.plog node.plog
//
//	# Show statistics
//	pickup-log stats node.plog
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/oreon-project/pickup-go/cmd/pickup-log/commands"
	"github.com/oreon-project/pickup-go/pkg/log"
)

const usage = `pickup-log - Oreon Pickup protocol log analyzer

Usage:
  pickup-log <command> [flags] <file.plog>

Commands:
  view     View log file in human-readable format
  export   Export log file to JSON lines
  filter   Filter log file and write to new file
  stats    Show statistics about the log file

Use "pickup-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "export":
		runExport(args)
	case "filter":
		runFilter(args)
	case "stats":
		runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

// filterFlags registers the shared filtering flags on fs and returns a
// builder that turns the parsed values into a log.Filter.
func filterFlags(fs *flag.FlagSet) func() (log.Filter, error) {
	session := fs.String("session", "", "Filter by session ID (prefix not supported, full UUID)")
	direction := fs.String("direction", "", "Filter by direction (in, out)")
	category := fs.String("category", "", "Filter by category (wire, state, discovery, storage, error)")
	role := fs.String("role", "", "Filter by role (responder, initiator)")

	return func() (log.Filter, error) {
		var filter log.Filter
		filter.SessionID = *session
		if *direction != "" {
			d, err := commands.ParseDirectionFlag(*direction)
			if err != nil {
				return filter, err
			}
			filter.Direction = &d
		}
		if *category != "" {
			c, err := commands.ParseCategoryFlag(*category)
			if err != nil {
				return filter, err
			}
			filter.Category = &c
		}
		if *role != "" {
			r, err := commands.ParseRoleFlag(*role)
			if err != nil {
				return filter, err
			}
			filter.Role = &r
		}
		return filter, nil
	}
}

func parseOrDie(fs *flag.FlagSet, args []string) string {
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Error: log file path required\n")
		fs.Usage()
		os.Exit(1)
	}
	return fs.Arg(0)
}

func die(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func runView(args []string) {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	buildFilter := filterFlags(fs)
	path := parseOrDie(fs, args)

	filter, err := buildFilter()
	if err != nil {
		die(err)
	}
	if err := commands.RunView(path, filter, os.Stdout); err != nil {
		die(err)
	}
}

func runExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	buildFilter := filterFlags(fs)
	path := parseOrDie(fs, args)

	filter, err := buildFilter()
	if err != nil {
		die(err)
	}
	if err := commands.RunExport(path, filter, os.Stdout); err != nil {
		die(err)
	}
}

func runFilter(args []string) {
	fs := flag.NewFlagSet("filter", flag.ExitOnError)
	buildFilter := filterFlags(fs)
	output := fs.String("o", "", "Output file path (required)")
	path := parseOrDie(fs, args)

	if *output == "" {
		fmt.Fprintln(os.Stderr, "Error: -o output file required")
		os.Exit(1)
	}
	filter, err := buildFilter()
	if err != nil {
		die(err)
	}
	count, err := commands.RunFilter(path, *output, filter)
	if err != nil {
		die(err)
	}
	fmt.Printf("Wrote %d events to %s\n", count, *output)
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	path := parseOrDie(fs, args)

	if err := commands.RunStats(path, os.Stdout); err != nil {
		die(err)
	}
}
