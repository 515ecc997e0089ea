package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/tactus-audio/tactus"
	"github.com/tactus-audio/tactus/config"
	"github.com/tactus-audio/tactus/engine"
	"github.com/tactus-audio/tactus/seq"
	"github.com/tactus-audio/tactus/seq/gomidi"
	"github.com/tactus-audio/tactus/version"
)

func main() {
	help := flag.Bool("h", false, "Show help.")
	metronome := flag.Bool("m", false, "Play the metronome along, even if the composition has it disabled.")
	record := flag.Bool("r", false, "Record from the MIDI input into the composition instead of playing. Stop with ctrl-c; the take is saved back to the file.")
	countIn := flag.Bool("c", false, "Count in before the recording starts.")
	output := flag.String("o", "", "File to save the recorded composition to. Defaults to the input file.")
	listPorts := flag.Bool("l", false, "List the available MIDI ports and exit.")
	versionFlag := flag.Bool("v", false, "Print version.")
	flag.Usage = printUsage
	flag.Parse()
	if *versionFlag {
		fmt.Println(version.VersionOrHash)
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not load configuration: %v\n", err)
		os.Exit(1)
	}

	broker := seq.NewBroker()
	midiCtx := gomidi.NewContext(broker)
	defer midiCtx.Close()

	if *listPorts {
		fmt.Println("inputs:")
		for _, name := range midiCtx.InputNames() {
			fmt.Printf("  %s\n", name)
		}
		fmt.Println("outputs:")
		for _, name := range midiCtx.OutputNames() {
			fmt.Printf("  %s\n", name)
		}
		os.Exit(0)
	}
	if flag.NArg() == 0 || *help {
		flag.Usage()
		os.Exit(0)
	}

	if err := midiCtx.OpenOutputByPrefix(cfg.MIDIOutPrefix); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	if err := midiCtx.OpenInputByPrefix(cfg.MIDIInPrefix); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	click, err := engine.NewClickPlayer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: no audio output: %v\n", err)
		click = nil
	}

	go engine.Run(broker, midiCtx, click, cfg.EngineOptions())
	go seq.RunEventRouter(broker)
	manager := seq.NewSequenceManager(broker, cfg.ManagerSettings())

	interrupted := make(chan os.Signal, 1)
	signal.Notify(interrupted, os.Interrupt)

	opts := playOptions{metronome: *metronome, record: *record, countIn: *countIn, output: *output}
	retval := 0
	for _, param := range flag.Args() {
		if err := play(manager, broker, param, opts, cfg, interrupted); err != nil {
			fmt.Fprintf(os.Stderr, "could not play file %v: %v\n", param, err)
			retval = 1
		}
	}

	manager.Close()
	seq.TrySend(broker.CloseEngine, struct{}{})
	seq.TrySend(broker.CloseRouter, struct{}{})
	seq.TimeoutReceive(broker.FinishedEngine, time.Second)
	seq.TimeoutReceive(broker.FinishedRouter, time.Second)
	os.Exit(retval)
}

type playOptions struct {
	metronome bool
	record    bool
	countIn   bool
	output    string
}

func play(manager *seq.SequenceManager, broker *seq.Broker, filename string, opts playOptions, cfg config.Config, interrupted chan os.Signal) error {
	inputBytes, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("could not read file %v: %w", filename, err)
	}
	comp, err := tactus.ParseComposition(inputBytes)
	if err != nil {
		return err
	}
	if opts.metronome || opts.record && opts.countIn {
		m := comp.Metronome
		m.Enabled = true
		if m.BarVelocity == 0 {
			m.BarVelocity = cfg.MetronomeBarVelocity
		}
		if m.BeatVelocity == 0 {
			m.BeatVelocity = cfg.MetronomeBeatVelocity
		}
		comp.SetMetronome(m)
	}
	manager.SetDocument(comp)
	if opts.record {
		if err := manager.Record(opts.countIn); err != nil {
			return err
		}
	} else if err := manager.Play(); err != nil {
		return err
	}

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-interrupted:
			manager.Stop()
			if opts.record {
				return save(comp, filename, opts.output)
			}
			return nil
		case <-ticker.C:
			manager.Update()
			if drainUI(broker) && !opts.record {
				return nil
			}
		}
	}
}

// save writes the composition, including the freshly recorded take, back
// to disk.
func save(comp *tactus.Composition, filename, output string) error {
	if output == "" {
		output = filename
	}
	out, err := tactus.FormatComposition(comp)
	if err != nil {
		return err
	}
	if err := os.WriteFile(output, out, 0644); err != nil {
		return fmt.Errorf("could not save recording to %v: %w", output, err)
	}
	fmt.Fprintf(os.Stderr, "saved to %v\n", output)
	return nil
}

// drainUI consumes the UI notifications, printing warnings and the
// playback position. Returns true when playback has stopped.
func drainUI(broker *seq.Broker) bool {
	stopped := false
	for {
		select {
		case msg := <-broker.ToUI:
			switch m := msg.(type) {
			case seq.WarningMsg:
				fmt.Fprintf(os.Stderr, "warning: %s: %s\n", m.Text, m.Informative)
			case seq.PositionMsg:
				fmt.Printf("\r%6.2f quarters", m.Pos.Quarters())
			case seq.PlayingMsg:
				if !m.Playing {
					fmt.Println()
					stopped = true
				}
			}
		default:
			return stopped
		}
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Tactus command line utility for playing and recording .yml/.json composition files.\nUsage: %s [flags] [path ...]\n", os.Args[0])
	flag.PrintDefaults()
}
