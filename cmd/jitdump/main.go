package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/google/go-cmp/cmp"
	"github.com/mattn/go-isatty"

	"translator/pkg/diagnostics"
	"translator/pkg/translation"
)

const usage = `Usage: jitdump [flags] <command>

Commands:
  list      list the units of -set
  show      print unit -name of -set
  diff      compare every unit of the base set with the diff set
  runs      print the run id of each set
  compile   compile the built-in sample functions into the store

Flags:
`

func main() {
	configPath := flag.String("config-path", "", "Path to a JSON configuration file")
	dbPath := flag.String("db", "", "Path to the dump store (defaults to the configured dump path)")
	setName := flag.String("set", string(diagnostics.SetBase), "Dump set: base, diff, base-ir or diff-ir")
	unitName := flag.String("name", "", "Unit name for show")
	irSets := flag.Bool("ir", false, "Diff the IR sets instead of the code sets")

	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	config, err := translation.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *dbPath == "" {
		*dbPath = config.DumpPath
	}
	if *dbPath == "" {
		log.Fatalf("Error: --db flag or %s is required", translation.DumpPathEnv)
	}

	store, err := diagnostics.OpenDumpStore(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open dump store: %v", err)
	}
	defer store.Close()

	switch command := flag.Arg(0); command {
	case "list":
		err = list(store, *setName)
	case "show":
		err = show(store, *setName, *unitName)
	case "diff":
		err = diff(store, *irSets)
	case "runs":
		err = runs(store)
	case "compile":
		err = compileSamples(config, store)
	default:
		log.Fatalf("Unknown command %q", command)
	}

	if err != nil {
		store.Close()
		log.Fatalf("%s failed: %v", flag.Arg(0), err)
	}
}

func list(store *diagnostics.DumpStore, setName string) error {
	set, err := diagnostics.ParseSet(setName)
	if err != nil {
		return err
	}

	units, err := store.List(set)
	if err != nil {
		return err
	}
	for _, unit := range units {
		fmt.Println(unit)
	}
	return nil
}

func show(store *diagnostics.DumpStore, setName, unit string) error {
	set, err := diagnostics.ParseSet(setName)
	if err != nil {
		return err
	}
	if unit == "" {
		return fmt.Errorf("--name is required")
	}

	record, ok, err := store.Get(set, unit)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no unit %q in set %s", unit, set)
	}

	if record.Fingerprint != ([32]byte{}) {
		fmt.Printf("; blake2b-256 %s\n", hex.EncodeToString(record.Fingerprint[:]))
	}
	fmt.Print(record.Text)
	return nil
}

func diff(store *diagnostics.DumpStore, irSets bool) error {
	baseSet, diffSet := diagnostics.SetBase, diagnostics.SetDiff
	if irSets {
		baseSet, diffSet = diagnostics.SetBaseIR, diagnostics.SetDiffIR
	}

	units, err := store.List(baseSet)
	if err != nil {
		return err
	}

	changed, missing := 0, 0
	for _, unit := range units {
		base, _, err := store.Get(baseSet, unit)
		if err != nil {
			return err
		}
		current, ok, err := store.Get(diffSet, unit)
		if err != nil {
			return err
		}
		if !ok {
			missing++
			continue
		}

		if base.Fingerprint == current.Fingerprint && base.Text == current.Text {
			continue
		}

		changed++
		fmt.Printf("=== %s (-%s +%s)\n", unit, baseSet, diffSet)
		fmt.Print(colorize(cmp.Diff(strings.Split(base.Text, "\n"), strings.Split(current.Text, "\n"))))
	}

	log.Printf("%d units, %d changed, %d not in %s", len(units), changed, missing, diffSet)
	return nil
}

func runs(store *diagnostics.DumpStore) error {
	for _, set := range []diagnostics.Set{diagnostics.SetBase, diagnostics.SetDiff} {
		id, ok, err := store.RunID(set)
		if err != nil {
			return err
		}
		if ok {
			fmt.Printf("%s\t%s\n", set, id)
		} else {
			fmt.Printf("%s\t-\n", set)
		}
	}
	return nil
}

const (
	colorRed   = "\x1b[31m"
	colorGreen = "\x1b[32m"
	colorReset = "\x1b[0m"
)

// colorize marks removed and added diff lines when stdout is a terminal.
func colorize(diff string) string {
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		return diff
	}

	lines := strings.SplitAfter(diff, "\n")
	for i, line := range lines {
		trimmed := strings.TrimLeft(line, " \t")
		switch {
		case strings.HasPrefix(trimmed, "-"):
			lines[i] = colorRed + strings.TrimSuffix(line, "\n") + colorReset + "\n"
		case strings.HasPrefix(trimmed, "+"):
			lines[i] = colorGreen + strings.TrimSuffix(line, "\n") + colorReset + "\n"
		}
	}
	return strings.Join(lines, "")
}
