package dstiny

import (
	"sync"
)

// fakeBus is an in-memory Transport. Each written telegram is passed to
// respond; a non-empty result is queued as the next line to read.
// Unsolicited lines are served once no answer is pending.
type fakeBus struct {
	mu          sync.Mutex
	writes      []Telegram
	rawWrites   []string
	respond     func(Telegram) string
	answers     []string
	unsolicited []string
	closed      bool
}

func (f *fakeBus) ReadLine() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.answers) > 0 {
		line := f.answers[0]
		f.answers = f.answers[1:]
		return line, nil
	}
	if len(f.unsolicited) > 0 {
		line := f.unsolicited[0]
		f.unsolicited = f.unsolicited[1:]
		return line, nil
	}
	return "", nil
}

func (f *fakeBus) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.rawWrites = append(f.rawWrites, string(p))
	t, err := Decode(string(p))
	if err == nil {
		f.writes = append(f.writes, t)
		if f.respond != nil {
			if answer := f.respond(t); answer != "" {
				f.answers = append(f.answers, answer)
			}
		}
	}
	return len(p), nil
}

func (f *fakeBus) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeBus) push(lines ...string) {
	f.mu.Lock()
	f.unsolicited = append(f.unsolicited, lines...)
	f.mu.Unlock()
}

func (f *fakeBus) written() []Telegram {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Telegram, len(f.writes))
	copy(out, f.writes)
	return out
}

// moduleSim answers like the bus module: word reads return stored memory,
// word writes update it, poll events answer 'e', everything else is echoed.
type moduleSim struct {
	mu     sync.Mutex
	memory map[[3]byte]uint16
}

func newModuleSim() *moduleSim {
	return &moduleSim{memory: make(map[[3]byte]uint16)}
}

func (m *moduleSim) word(index uint8, bank, addr byte) uint16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.memory[[3]byte{index, bank, addr}]
}

func (m *moduleSim) respond(t Telegram) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case t.Command == CmdConfig && t.Arg(0) == opReadWord:
		v := m.memory[[3]byte{t.Index, t.Arg(1), t.Arg(2)}]
		return NewTelegram(CmdConfig, t.Index, opReadWord, t.Arg(1), t.Arg(2), byte(v), byte(v>>8)).Encode()
	case t.Command == CmdConfig && t.Arg(0) == opWriteWord:
		m.memory[[3]byte{t.Index, t.Arg(1), t.Arg(2)}] = uint16(t.Arg(3)) | uint16(t.Arg(4))<<8
		return t.Encode()
	case t.Command == CmdGenerateEvent:
		return NewTelegram(CmdEvent, t.Index, t.Args...).Encode()
	default:
		return t.Encode()
	}
}
