package runner

import (
	"fmt"
	"os"

	"pmach/pkg/color"
	"pmach/pkg/image"
	"pmach/pkg/machine"
	"pmach/pkg/pcode"

	"github.com/charmbracelet/log"
)

// Runner drives one machine from an image file to completion. The
// machine core never reports anything itself; all user-visible output
// about the run happens here.
type Runner struct {
	Help      bool   // Show help message
	Verbose   bool   // Enable verbose output
	Trace     bool   // Print each instruction before it executes
	NoColor   bool   // Disable colored output
	MaxSteps  int    // Stop after this many steps (0 = unlimited)
	ImageFile string // Path to the code image

	// ExitStatus holds the program's exit code after a successful Run.
	ExitStatus int
}

// Run loads the image, builds a machine, and steps it to a terminal
// code. Recoverable file faults are logged and execution continues;
// fatal faults come back as errors.
func (r *Runner) Run() error {
	log.Info("Loading image", "file", r.ImageFile)

	img, err := image.Load(r.ImageFile)
	if err != nil {
		return fmt.Errorf("loading image: %w", err)
	}

	if r.Verbose {
		log.Info("Image loaded",
			"code", len(img.Code),
			"rodata", len(img.ReadOnlyData),
			"entry", img.Entry,
			"stack", img.StackSize,
			"heap", img.HeapSize)
	}

	opts := []machine.Option{}
	if r.MaxSteps > 0 {
		opts = append(opts, machine.WithMaxSteps(r.MaxSteps))
	}
	if r.Trace {
		opts = append(opts, machine.WithBeforeStep(traceHook(img.Code)))
	}

	m, err := machine.New(machine.Config{
		Code:            img.Code,
		Entry:           img.Entry,
		ReadOnlyData:    img.ReadOnlyData,
		StringStackSize: int(img.StringStackSize),
		StackSize:       int(img.StackSize),
		HeapSize:        int(img.HeapSize),
	}, opts...)
	if err != nil {
		return fmt.Errorf("building machine: %w", err)
	}

	for {
		c := m.Run()
		switch {
		case c == machine.Exit:
			r.ExitStatus = m.ExitCode()
			if r.Verbose {
				log.Info("Program finished", "exit", r.ExitStatus, "steps", m.Steps())
			}
			return nil

		case c == machine.StepLimit:
			return fmt.Errorf("step limit of %d reached at pc %d", r.MaxSteps, m.PC())

		case !c.Fatal():
			// The descriptor stays usable; the program sees the code
			// and decides. Keep stepping.
			log.Warn("File operation failed", "code", c.String(), "pc", m.PC())

		default:
			return fmt.Errorf("machine fault %s at pc %d", c, m.PC())
		}
	}
}

// traceHook disassembles the instruction about to execute. The core
// holds no trace state; everything lives in this closure.
func traceHook(code []byte) func(*machine.Machine) {
	return func(m *machine.Machine) {
		in, err := pcode.Decode(code, int(m.PC()))
		if err != nil {
			return
		}
		fmt.Fprintf(os.Stderr, "%s: %s  %s\n",
			color.CyanText(fmt.Sprintf("%04x", m.PC())),
			color.YellowText(in.String()),
			color.GrayText(fmt.Sprintf("sp=%04x fp=%04x", m.SP(), m.FP())))
	}
}
