package main

import (
	"bufio"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"slopos/internal/trapframe"
)

var trapdumpHex string

var trapdumpCmd = &cobra.Command{
	Use:   "trapdump",
	Short: "Decode a hex-serialized interrupt frame and page through its fields",
	Long: `trapdump decodes the fixed binary layout a trap stub writes
(internal/trapframe.Frame) from a hex string — typically captured from
a serial log line a real boot emitted on an unhandled exception — and
pages the decoded fields a screen at a time using the terminal's raw
mode, so a long dump doesn't scroll past before it can be read.`,
	Args: cobra.NoArgs,
	RunE: runTrapdump,
}

func init() {
	trapdumpCmd.Flags().StringVar(&trapdumpHex, "frame", "", "hex-encoded serialized Frame (169 bytes); reads stdin if empty")
	rootCmd.AddCommand(trapdumpCmd)
}

// frameWireSize is the byte length of the fixed layout decodeFrame
// reads: 1 (Vector) + 8 (ErrCode) + 15*8 (Regs) + 5*8 (CPU).
const frameWireSize = 1 + 8 + 15*8 + 5*8

func runTrapdump(cmd *cobra.Command, args []string) error {
	raw := trapdumpHex
	if raw == "" {
		scanner := bufio.NewScanner(os.Stdin)
		if !scanner.Scan() {
			return fmt.Errorf("no frame given on --frame or stdin")
		}
		raw = scanner.Text()
	}

	data, err := hex.DecodeString(raw)
	if err != nil {
		return fmt.Errorf("decode hex frame: %w", err)
	}
	frame, err := decodeFrame(data)
	if err != nil {
		return err
	}

	lines := formatFrame(frame)
	return page(lines)
}

// decodeFrame reverses the layout a hypothetical serial-dump routine
// would write: little-endian fields in Frame's declared order.
func decodeFrame(data []byte) (*trapframe.Frame, error) {
	if len(data) != frameWireSize {
		return nil, fmt.Errorf("frame is %d bytes, want %d", len(data), frameWireSize)
	}
	f := &trapframe.Frame{}
	f.Vector = data[0]
	r := data[1:]
	f.ErrCode = binary.LittleEndian.Uint64(r[0:8])
	regs := []*uint64{
		&f.Regs.RAX, &f.Regs.RBX, &f.Regs.RCX, &f.Regs.RDX,
		&f.Regs.RSI, &f.Regs.RDI, &f.Regs.RBP,
		&f.Regs.R8, &f.Regs.R9, &f.Regs.R10, &f.Regs.R11,
		&f.Regs.R12, &f.Regs.R13, &f.Regs.R14, &f.Regs.R15,
	}
	off := 8
	for _, reg := range regs {
		*reg = binary.LittleEndian.Uint64(r[off : off+8])
		off += 8
	}
	cpu := []*uint64{&f.CPU.RIP, &f.CPU.CS, &f.CPU.RFlags, &f.CPU.RSP, &f.CPU.SS}
	for _, field := range cpu {
		*field = binary.LittleEndian.Uint64(r[off : off+8])
		off += 8
	}
	return f, nil
}

func formatFrame(f *trapframe.Frame) []string {
	class := trapframe.Classify(f.Vector)
	classNames := map[trapframe.Class]string{
		trapframe.ClassException: "exception",
		trapframe.ClassIRQ:       "irq",
		trapframe.ClassSyscall:   "syscall",
		trapframe.ClassUnknown:   "unknown",
	}
	lines := []string{
		fmt.Sprintf("vector   = %d (%s)", f.Vector, classNames[class]),
		fmt.Sprintf("err_code = 0x%016x", f.ErrCode),
		"",
		fmt.Sprintf("rax=0x%016x rbx=0x%016x rcx=0x%016x rdx=0x%016x", f.Regs.RAX, f.Regs.RBX, f.Regs.RCX, f.Regs.RDX),
		fmt.Sprintf("rsi=0x%016x rdi=0x%016x rbp=0x%016x", f.Regs.RSI, f.Regs.RDI, f.Regs.RBP),
		fmt.Sprintf("r8 =0x%016x r9 =0x%016x r10=0x%016x r11=0x%016x", f.Regs.R8, f.Regs.R9, f.Regs.R10, f.Regs.R11),
		fmt.Sprintf("r12=0x%016x r13=0x%016x r14=0x%016x r15=0x%016x", f.Regs.R12, f.Regs.R13, f.Regs.R14, f.Regs.R15),
		"",
		fmt.Sprintf("rip=0x%016x cs=0x%x", f.CPU.RIP, f.CPU.CS),
		fmt.Sprintf("rflags=0x%016x", f.CPU.RFlags),
		fmt.Sprintf("rsp=0x%016x ss=0x%x", f.CPU.RSP, f.CPU.SS),
		fmt.Sprintf("valid_for_user_return = %t", f.ValidForUserReturn()),
	}
	return lines
}

// page prints lines a screen at a time when stdout is a terminal,
// putting the terminal into raw mode so a single keypress (not a full
// line) advances to the next page; it falls back to printing
// everything at once when stdout isn't a terminal (piped output,
// redirected to a file).
func page(lines []string) error {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		for _, l := range lines {
			fmt.Println(l)
		}
		return nil
	}

	_, height, err := term.GetSize(fd)
	if err != nil || height <= 1 {
		height = 24
	}
	pageSize := height - 1

	oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
	if err != nil {
		for _, l := range lines {
			fmt.Println(l)
		}
		return nil
	}
	defer term.Restore(int(os.Stdin.Fd()), oldState)

	reader := bufio.NewReader(os.Stdin)
	for i := 0; i < len(lines); i++ {
		fmt.Print(lines[i] + "\r\n")
		if (i+1)%pageSize == 0 && i != len(lines)-1 {
			fmt.Print("-- more (any key) --\r")
			_, _ = reader.ReadByte()
			fmt.Print("\r\n")
		}
	}
	return nil
}
