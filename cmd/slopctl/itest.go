package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/charmbracelet/x/ansi"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"slopos/itests"
)

var (
	itestManifestPath string
	itestQEMU         bool
	itestQEMUBinary   string
)

var itestCmd = &cobra.Command{
	Use:   "itest",
	Short: "Run the kernel core's integration-test suites against a simulated backend",
	Long: `itest loads a suite manifest (itests.yaml: a list of suite names)
and runs each suite's scenarios against a freshly booted Kernel backed
by cpu.SimBackend, the same scenarios the kernel's own itests=
command-line key would run at boot. The report prints one PASS/FAIL
line per scenario followed by a summary count; it has no quiet or
verbose mode and does not read itests.verbosity.`,
	Args: cobra.NoArgs,
	RunE: runItest,
}

func init() {
	itestCmd.Flags().StringVar(&itestManifestPath, "manifest", "itests.yaml", "path to the suite manifest")
	itestCmd.Flags().BoolVar(&itestQEMU, "qemu", false, "boot a QEMU child alongside the simulated run (process lifecycle only; no guest I/O is bridged yet)")
	itestCmd.Flags().StringVar(&itestQEMUBinary, "qemu-binary", "qemu-system-x86_64", "QEMU binary to spawn when --qemu is set")
	rootCmd.AddCommand(itestCmd)
}

func runItest(cmd *cobra.Command, args []string) error {
	manifest, err := loadManifest(itestManifestPath)
	if err != nil {
		return err
	}

	var qemu *exec.Cmd
	if itestQEMU {
		qemu, err = spawnQEMU(cmd.Context(), itestQEMUBinary)
		if err != nil {
			return fmt.Errorf("spawn qemu: %w", err)
		}
		defer killQEMUGroup(qemu)
	}

	total, failed := 0, 0
	for _, suite := range manifest.Suites {
		results, err := itests.RunSuite(suite)
		if err != nil {
			return err
		}
		fmt.Printf("%s\n", styleHeader(suite))
		for _, r := range results {
			total++
			if !r.Passed() {
				failed++
			}
			printResult(r)
		}
	}

	fmt.Println()
	if failed > 0 {
		fmt.Println(styleFail(fmt.Sprintf("%d/%d scenarios failed", failed, total)))
		return fmt.Errorf("%d scenario(s) failed", failed)
	}
	fmt.Println(stylePass(fmt.Sprintf("%d/%d scenarios passed", total, total)))
	return nil
}

func printResult(r itests.Result) {
	line := fmt.Sprintf("  %-48s", r.Scenario)
	if r.Passed() {
		fmt.Println(line + stylePass("PASS"))
		return
	}
	fmt.Println(line + styleFail("FAIL") + "  " + r.Err.Error())
}

// isColorTerminal caches the one term.IsTerminal check a run needs;
// reports are plain text when stdout is redirected to a file or pipe.
var isColorTerminal = term.IsTerminal(int(os.Stdout.Fd()))

func styleHeader(suite string) string {
	return colorize("36;1", fmt.Sprintf("== %s ==", suite))
}

func stylePass(s string) string { return colorize("32;1", s) }
func styleFail(s string) string { return colorize("31;1", s) }

// colorize wraps s in an SGR sequence on a real terminal; piped into a
// log file or another process, ansi.Strip removes it again so the
// report stays a readable PASS/FAIL column rather than raw escapes.
func colorize(sgr, s string) string {
	out := "\x1b[" + sgr + "m" + s + "\x1b[0m"
	if !isColorTerminal {
		return ansi.Strip(out)
	}
	return out
}

// spawnQEMU starts binary detached into its own process group so
// killQEMUGroup can tear down the whole group (QEMU commonly forks
// helper processes) rather than just the immediate child, and arranges
// for that group to be killed early if ctx is canceled mid-run.
func spawnQEMU(ctx context.Context, binary string) (*exec.Cmd, error) {
	c := exec.Command(binary, "-nographic", "-no-reboot")
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := c.Start(); err != nil {
		return nil, err
	}
	go func() {
		<-ctx.Done()
		killQEMUGroup(c)
	}()
	return c, nil
}

func killQEMUGroup(c *exec.Cmd) {
	if c == nil || c.Process == nil {
		return
	}
	// Negative pid targets the whole process group created by Setpgid.
	_ = unix.Kill(-c.Process.Pid, unix.SIGTERM)
	done := make(chan struct{})
	go func() {
		_, _ = c.Process.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		_ = unix.Kill(-c.Process.Pid, unix.SIGKILL)
	}
}
