package defs

// Pid_t identifies a process; Tid_t identifies a thread within a
// process. Both are plain integer ids into fixed-capacity tables
// (DESIGN NOTES: "never store owning references between live
// entities").
type Pid_t int
type Tid_t int

// InitPid is pid 1: un-killable by normal means, reparenting target for
// orphans (§3, §4.4).
const InitPid Pid_t = 1

// NoPid/NoTid are the zero-value sentinels for "no such id".
const NoPid Pid_t = 0
const NoTid Tid_t = 0
