package actionlog

import "fmt"

// Mode selects which history entry a query resolves.
type Mode int

const (
	// ModeCurrent resolves the entry at the current index.
	ModeCurrent Mode = iota
	// ModeRollback resolves the oldest retained entry.
	ModeRollback
	// ModeIndex resolves the entry at Query.Index.
	ModeIndex
)

func (m Mode) String() string {
	switch m {
	case ModeCurrent:
		return "current"
	case ModeRollback:
		return "rollback"
	case ModeIndex:
		return "index"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses a mode name as used by the HTTP API.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "current":
		return ModeCurrent, nil
	case "rollback":
		return ModeRollback, nil
	case "index":
		return ModeIndex, nil
	}
	return 0, fmt.Errorf("unknown query mode %q", s)
}

// Query addresses one history entry.
type Query struct {
	Mode  Mode
	Index int
}

// Current addresses the entry at the current index.
func Current() Query { return Query{Mode: ModeCurrent} }

// Rollback addresses the oldest retained entry.
func Rollback() Query { return Query{Mode: ModeRollback} }

// At addresses entry i.
func At(i int) Query { return Query{Mode: ModeIndex, Index: i} }
