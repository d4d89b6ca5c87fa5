package native

// MaxFrameSize bounds the stack frame a generated function may allocate
// below its saved frame pointer. The trampoline runs callees about 8000
// bytes into its own frame; the rest covers the return address, the saved
// RBP and alignment.
const MaxFrameSize = 7 << 10
