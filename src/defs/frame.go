package defs

// Frame_t is the saved user-mode register context captured at kernel
// entry — the i386 trap frame the syscall/fault/IRQ dispatch pushes
// (§4.5 fork's "saved exception frame", §4.6 syscall ABI, §4.4
// sigframe). The exception dispatcher rewrites Eip/Esp/Eflags here to
// redirect the return-to-user path toward a signal handler.
type Frame_t struct {
	Eax, Ebx, Ecx, Edx uint32
	Esi, Edi, Ebp      uint32
	Eip, Cs, Eflags    uint32
	Esp, Ss            uint32
}

// EFLAGS_IF is the interrupt-enable flag bit, set on every frame that
// returns to user mode (§4.5 execve: "fresh user stack pointer and
// flags (IF=1)").
const EFLAGS_IF uint32 = 1 << 9
