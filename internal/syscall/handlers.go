package syscall

import (
	kerrors "slopos/errors"
	"slopos/internal/extio"
	"slopos/internal/trapframe"
)

func sysYield(g *Gateway, callerID uint64, frame *trapframe.Frame, args [6]uint64) (uint64, Disposition, error) {
	tcb, err := g.Tasks.Lookup(callerID)
	if err != nil {
		return 0, DispositionOK, err
	}
	g.Scheduler.Yield(callerID, tcb.Priority)
	return 0, DispositionOK, nil
}

func sysExit(g *Gateway, callerID uint64, frame *trapframe.Frame, args [6]uint64) (uint64, Disposition, error) {
	g.Fate.Clear(callerID)
	if handles, err := g.Tasks.Handles(callerID); err == nil {
		handles.CloseAll()
	}
	_, _ = g.Tasks.Terminate(callerID, "exit", "", int64(args[0]))
	g.Scheduler.Schedule()
	return 0, DispositionNoReturn, nil
}

func sysWrite(g *Gateway, callerID uint64, frame *trapframe.Frame, args [6]uint64) (uint64, Disposition, error) {
	userPtr, length := args[0], int(args[1])
	if userPtr == 0 {
		return 0, DispositionOK, kerrors.ErrBadUserPointer
	}
	n := clampLen(length, MaxGenericBytes)
	buf := make([]byte, n)
	if err := g.UserMem.CopyFromUser(buf, userPtr, n); err != nil {
		return 0, DispositionOK, err
	}
	if g.Framebuffer != nil {
		// write() targets the console sink in a real build; here it is
		// just validated and counted, since the console is opaque (§1).
	}
	return uint64(n), DispositionOK, nil
}

// sysRead implements read() against the console input queue (§4.F, §5's
// "block until the keyboard or serial driver calls notify_input_ready"
// suspension point). With a line already queued it copies and returns
// immediately; with none, it parks the caller on the console wait queue
// and reschedules, leaving the retry to the caller's next trap once
// NotifyInputReady wakes it.
func sysRead(g *Gateway, callerID uint64, frame *trapframe.Frame, args [6]uint64) (uint64, Disposition, error) {
	userPtr, capacity := args[0], int(args[1])
	if userPtr == 0 {
		return 0, DispositionOK, kerrors.ErrBadUserPointer
	}
	n := clampLen(capacity, MaxGenericBytes)

	line, ok := g.ConsoleInput.Dequeue()
	if !ok {
		if err := g.Tasks.Block(callerID, g.ConsoleWaiters); err != nil {
			return 0, DispositionOK, err
		}
		g.ConsoleWaiters.Enqueue(callerID)
		g.Scheduler.Schedule()
		return 0, DispositionBlocked, nil
	}

	if len(line) > n {
		line = line[:n]
	}
	if err := g.UserMem.CopyToUser(userPtr, line); err != nil {
		return 0, DispositionOK, err
	}
	return uint64(len(line)), DispositionOK, nil
}

func sysRouletteSpin(g *Gateway, callerID uint64, frame *trapframe.Frame, args [6]uint64) (uint64, Disposition, error) {
	result, err := g.Fate.Spin(callerID)
	if err != nil {
		return 0, DispositionOK, err
	}
	return result.Packed(), DispositionOK, nil
}

func sysSleepMS(g *Gateway, callerID uint64, frame *trapframe.Frame, args [6]uint64) (uint64, Disposition, error) {
	if err := g.Scheduler.SleepTask(callerID, args[0]); err != nil {
		return 0, DispositionOK, err
	}
	g.Scheduler.Schedule()
	return 0, DispositionOK, nil
}

func sysFBInfo(g *Gateway, callerID uint64, frame *trapframe.Frame, args [6]uint64) (uint64, Disposition, error) {
	if g.Framebuffer == nil {
		return 0, DispositionOK, kerrors.ErrFramebufferAbsent
	}
	info, ok := g.Framebuffer.Info()
	if !ok {
		return 0, DispositionOK, kerrors.ErrFramebufferAbsent
	}
	out := make([]byte, 4*6)
	putFBInfo(out, info)
	if err := g.UserMem.CopyToUser(args[0], out); err != nil {
		return 0, DispositionOK, err
	}
	return 0, DispositionOK, nil
}

func putFBInfo(buf []byte, info extio.FramebufferInfo) {
	le32 := func(off int, v uint32) {
		buf[off] = byte(v)
		buf[off+1] = byte(v >> 8)
		buf[off+2] = byte(v >> 16)
		buf[off+3] = byte(v >> 24)
	}
	le32(0, info.Width)
	le32(4, info.Height)
	le32(8, info.Pitch)
	le32(12, uint32(info.BPP))
	le32(16, info.PixelFormat)
}

func sysDrawRect(g *Gateway, callerID uint64, frame *trapframe.Frame, args [6]uint64) (uint64, Disposition, error) {
	if g.Framebuffer == nil {
		return 0, DispositionOK, kerrors.ErrFramebufferAbsent
	}
	x, y, w, h, color := int(int32(args[0])), int(int32(args[1])), int(int32(args[2])), int(int32(args[3])), uint32(args[4])
	if err := g.Framebuffer.DrawRect(x, y, w, h, color); err != nil {
		return 0, DispositionOK, err
	}
	return 0, DispositionOK, nil
}

func sysDrawCircle(g *Gateway, callerID uint64, frame *trapframe.Frame, args [6]uint64) (uint64, Disposition, error) {
	if g.Framebuffer == nil {
		return 0, DispositionOK, kerrors.ErrFramebufferAbsent
	}
	x, y, r, color := int(int32(args[0])), int(int32(args[1])), int(int32(args[2])), uint32(args[3])
	if err := g.Framebuffer.DrawCircle(x, y, r, color); err != nil {
		return 0, DispositionOK, err
	}
	return 0, DispositionOK, nil
}

func sysDrawText(g *Gateway, callerID uint64, frame *trapframe.Frame, args [6]uint64) (uint64, Disposition, error) {
	if g.Framebuffer == nil {
		return 0, DispositionOK, kerrors.ErrFramebufferAbsent
	}
	x, y := int(int32(args[0])), int(int32(args[1]))
	userPtr, color := args[2], uint32(args[3])
	text := make([]byte, extio.MaxFileBytes)
	n, err := g.UserMem.CopyUserStr(text, userPtr)
	if err != nil {
		return 0, DispositionOK, err
	}
	if err := g.Framebuffer.DrawText(x, y, string(text[:n]), color); err != nil {
		return 0, DispositionOK, err
	}
	return 0, DispositionOK, nil
}

func sysClear(g *Gateway, callerID uint64, frame *trapframe.Frame, args [6]uint64) (uint64, Disposition, error) {
	if g.Framebuffer == nil {
		return 0, DispositionOK, kerrors.ErrFramebufferAbsent
	}
	if err := g.Framebuffer.Clear(uint32(args[0])); err != nil {
		return 0, DispositionOK, err
	}
	return 0, DispositionOK, nil
}

func sysPresent(g *Gateway, callerID uint64, frame *trapframe.Frame, args [6]uint64) (uint64, Disposition, error) {
	if g.Framebuffer == nil {
		return 0, DispositionOK, kerrors.ErrFramebufferAbsent
	}
	return 0, DispositionOK, nil
}

func sysRandomNext(g *Gateway, callerID uint64, frame *trapframe.Frame, args [6]uint64) (uint64, Disposition, error) {
	return uint64(g.RandomLFSR.Next()), DispositionOK, nil
}

func sysRouletteResult(g *Gateway, callerID uint64, frame *trapframe.Frame, args [6]uint64) (uint64, Disposition, error) {
	result, err := g.Fate.Consume(callerID, args[0])
	if err != nil {
		return 0, DispositionOK, err
	}
	g.Scheduler.ApplyOutcome(callerID, result.IsWin)
	return 0, DispositionOK, nil
}

func sysFSOpen(g *Gateway, callerID uint64, frame *trapframe.Frame, args [6]uint64) (uint64, Disposition, error) {
	path := make([]byte, extio.MaxPathLen)
	n, err := g.UserMem.CopyUserStr(path, args[0])
	if err != nil {
		return 0, DispositionOK, err
	}
	p := string(path[:n])
	if _, err := g.FS.Stat(p); err != nil {
		if _, werr := g.FS.Write(p, nil); werr != nil {
			return 0, DispositionOK, werr
		}
	}
	handles, err := g.Tasks.Handles(callerID)
	if err != nil {
		return 0, DispositionOK, err
	}
	h, err := handles.Open(&extio.OpenFile{FS: g.FS, Path: p})
	if err != nil {
		return 0, DispositionOK, err
	}
	return uint64(h), DispositionOK, nil
}

func sysFSClose(g *Gateway, callerID uint64, frame *trapframe.Frame, args [6]uint64) (uint64, Disposition, error) {
	handles, err := g.Tasks.Handles(callerID)
	if err != nil {
		return 0, DispositionOK, err
	}
	if err := handles.Close(int(args[0])); err != nil {
		return 0, DispositionOK, err
	}
	return 0, DispositionOK, nil
}

func openFileFor(g *Gateway, callerID uint64, handle int) (*extio.OpenFile, error) {
	handles, err := g.Tasks.Handles(callerID)
	if err != nil {
		return nil, err
	}
	c, err := handles.Get(handle)
	if err != nil {
		return nil, err
	}
	of, ok := c.(*extio.OpenFile)
	if !ok {
		return nil, kerrors.ErrBadUserPointer
	}
	return of, nil
}

func sysFSRead(g *Gateway, callerID uint64, frame *trapframe.Frame, args [6]uint64) (uint64, Disposition, error) {
	of, err := openFileFor(g, callerID, int(args[0]))
	if err != nil {
		return 0, DispositionOK, err
	}
	n := clampLen(int(args[2]), MaxGenericBytes)
	data, err := of.FS.Read(of.Path, n)
	if err != nil {
		return 0, DispositionOK, err
	}
	if err := g.UserMem.CopyToUser(args[1], data); err != nil {
		return 0, DispositionOK, err
	}
	return uint64(len(data)), DispositionOK, nil
}

func sysFSWrite(g *Gateway, callerID uint64, frame *trapframe.Frame, args [6]uint64) (uint64, Disposition, error) {
	of, err := openFileFor(g, callerID, int(args[0]))
	if err != nil {
		return 0, DispositionOK, err
	}
	n := clampLen(int(args[2]), extio.MaxFileBytes)
	buf := make([]byte, n)
	if err := g.UserMem.CopyFromUser(buf, args[1], n); err != nil {
		return 0, DispositionOK, err
	}
	written, err := of.FS.Write(of.Path, buf)
	if err != nil {
		return 0, DispositionOK, err
	}
	return uint64(written), DispositionOK, nil
}

func sysFSStat(g *Gateway, callerID uint64, frame *trapframe.Frame, args [6]uint64) (uint64, Disposition, error) {
	path := make([]byte, extio.MaxPathLen)
	n, err := g.UserMem.CopyUserStr(path, args[0])
	if err != nil {
		return 0, DispositionOK, err
	}
	size, err := g.FS.Stat(string(path[:n]))
	if err != nil {
		return 0, DispositionOK, err
	}
	return uint64(size), DispositionOK, nil
}

func sysFSMkdir(g *Gateway, callerID uint64, frame *trapframe.Frame, args [6]uint64) (uint64, Disposition, error) {
	path := make([]byte, extio.MaxPathLen)
	n, err := g.UserMem.CopyUserStr(path, args[0])
	if err != nil {
		return 0, DispositionOK, err
	}
	if err := g.FS.Mkdir(string(path[:n])); err != nil {
		return 0, DispositionOK, err
	}
	return 0, DispositionOK, nil
}

func sysFSUnlink(g *Gateway, callerID uint64, frame *trapframe.Frame, args [6]uint64) (uint64, Disposition, error) {
	path := make([]byte, extio.MaxPathLen)
	n, err := g.UserMem.CopyUserStr(path, args[0])
	if err != nil {
		return 0, DispositionOK, err
	}
	if err := g.FS.Unlink(string(path[:n])); err != nil {
		return 0, DispositionOK, err
	}
	return 0, DispositionOK, nil
}

func sysFSList(g *Gateway, callerID uint64, frame *trapframe.Frame, args [6]uint64) (uint64, Disposition, error) {
	entries := g.FS.List()
	joined := ""
	for i, e := range entries {
		if i > 0 {
			joined += "\n"
		}
		joined += e
	}
	buf := []byte(joined)
	if len(buf) > MaxGenericBytes {
		buf = buf[:MaxGenericBytes]
	}
	if err := g.UserMem.CopyToUser(args[0], buf); err != nil {
		return 0, DispositionOK, err
	}
	return uint64(len(buf)), DispositionOK, nil
}

func sysSysInfo(g *Gateway, callerID uint64, frame *trapframe.Frame, args [6]uint64) (uint64, Disposition, error) {
	stats := g.Stats()
	schedStats := g.Scheduler.Stats()
	out := make([]byte, 8*5)
	putU64 := func(off int, v uint64) {
		for i := 0; i < 8; i++ {
			out[off+i] = byte(v >> (8 * i))
		}
	}
	putU64(0, stats.SyscallsOK)
	putU64(8, stats.SyscallsFailed)
	putU64(16, uint64(stats.LedgerBalance))
	putU64(24, schedStats.ContextSwitches)
	putU64(32, schedStats.TickCount)
	if err := g.UserMem.CopyToUser(args[0], out); err != nil {
		return 0, DispositionOK, err
	}
	return 0, DispositionOK, nil
}

func sysHalt(g *Gateway, callerID uint64, frame *trapframe.Frame, args [6]uint64) (uint64, Disposition, error) {
	if g.Shutdown != nil {
		g.Shutdown.Halt("halt syscall")
	}
	return 0, DispositionNoReturn, nil
}
