package minic

import "fmt"

// levelWidth mirrors the teacher's Logger.Printf level strings, padded to a
// common width so traces line up in a terminal.
var levelWidth = map[string]int{"trace": 5, "eval": 5, "parse": 5, "error": 5}

// tracef emits one trace line through the installed logf, prefixed with a
// width-aligned level tag, e.g. "trace: call depth=2". It is a
// no-op unless both WithLogf and WithTrace(true) were given.
func (ip *Interp) tracef(level, format string, args ...interface{}) {
	if ip.cfg.logf == nil || !ip.cfg.trace {
		return
	}
	w := levelWidth[level]
	if w == 0 {
		w = len(level)
	}
	pad := w - len(level)
	if pad < 0 {
		pad = 0
	}
	msg := fmt.Sprintf(format, args...)
	ip.cfg.logf("%s:%*s %s", level, pad, "", msg)
}

// errorf reports a non-fatal diagnostic through the installed logf
// regardless of WithTrace, matching the teacher's Logger.Errorf always
// surfacing. Nothing in the package calls it; fatal ProgramFail paths panic
// instead of logging.
func (ip *Interp) errorf(format string, args ...interface{}) {
	if ip.cfg.logf == nil {
		return
	}
	ip.cfg.logf("error: "+format, args...)
}
