package main

import (
	"flag"
	"fmt"
	"os"

	"pmach/internal/logger"
	"pmach/internal/runner"
	"pmach/pkg/color"

	"github.com/charmbracelet/log"
)

// Main entry point for the P-code machine.
func main() {
	options := runner.Runner{}

	flag.BoolVar(&options.Help, "h", false, "Show help")
	flag.BoolVar(&options.Verbose, "v", false, "Verbose mode")
	flag.BoolVar(&options.Trace, "t", false, "Trace each instruction")
	flag.BoolVar(&options.NoColor, "n", false, "No color")
	flag.IntVar(&options.MaxSteps, "s", 0, "Stop after N steps (0 = unlimited)")

	flag.Parse()
	args := flag.Args()

	logger.Init(options.Verbose, options.NoColor)
	if options.Help {
		fmt.Printf("Usage: %s [options] <image>\n", os.Args[0])
		fmt.Println("Options:")
		flag.PrintDefaults()
		return
	}

	if options.NoColor {
		color.EnableColor(false)
	}

	if len(args) == 0 {
		log.Fatal("No image file provided", "help", fmt.Sprintf("%s -h", os.Args[0]))
	}

	options.ImageFile = args[0]

	if err := options.Run(); err != nil {
		log.Fatal("Execution failed", "error", err)
	}

	os.Exit(options.ExitStatus)
}
