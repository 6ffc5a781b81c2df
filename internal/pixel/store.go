package pixel

import (
	"fmt"
	"sync"

	"github.com/muurk/neopixel/internal/events"
)

const (
	// DefaultRows and DefaultCols describe the reference 32x32 panel.
	DefaultRows = 32
	DefaultCols = 32
)

// Selector reports the address of the currently selected device, if any.
type Selector interface {
	SelectedAddress() (string, bool)
}

// Sender propagates a single pixel change to a device. Implementations must
// not block the caller.
type Sender interface {
	SendPixelUpdate(address string, row, col int, color Color)
}

// Change describes one cell mutation. Seq is the store's change count after
// the mutation.
type Change struct {
	Row   int
	Col   int
	Color Color
	Seq   uint64
}

// Store holds the in-memory pixel grid and forwards every toggle to the
// selected device.
type Store struct {
	mu      sync.Mutex
	rows    int
	cols    int
	on      Color
	cells   []Color
	changes uint64

	selector Selector
	sender   Sender
	changed  *events.Broadcaster[Change]
}

// NewStore creates a rows x cols grid with every cell Off. A nil selector or
// sender means toggles never leave the process.
func NewStore(rows, cols int, on Color, selector Selector, sender Sender) (*Store, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("invalid grid size %dx%d", rows, cols)
	}
	if on == Off || !on.Valid() {
		return nil, fmt.Errorf("invalid on color %v", on)
	}

	return &Store{
		rows:     rows,
		cols:     cols,
		on:       on,
		cells:    make([]Color, rows*cols),
		selector: selector,
		sender:   sender,
		changed:  events.NewBroadcaster[Change](),
	}, nil
}

// Rows returns the fixed row count.
func (s *Store) Rows() int { return s.rows }

// Cols returns the fixed column count.
func (s *Store) Cols() int { return s.cols }

// OnColor returns the color toggled cells take.
func (s *Store) OnColor() Color { return s.on }

// ColorAt returns the color at (row, col). Coordinates outside the grid are
// a programming error and panic.
func (s *Store) ColorAt(row, col int) Color {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cells[s.index(row, col)]
}

// TogglePixel flips the cell between Off and the on color, then sends the new
// color to the selected device. Without a selection only the grid changes.
func (s *Store) TogglePixel(row, col int) Color {
	idx := s.index(row, col)

	s.mu.Lock()
	next := s.on
	if s.cells[idx] != Off {
		next = Off
	}
	s.cells[idx] = next
	s.changes++
	change := Change{Row: row, Col: col, Color: next, Seq: s.changes}
	s.mu.Unlock()

	if s.selector != nil && s.sender != nil {
		if address, ok := s.selector.SelectedAddress(); ok {
			s.sender.SendPixelUpdate(address, row, col, next)
		}
	}

	s.changed.Publish(change)
	return next
}

// Changes returns the number of mutations since construction.
func (s *Store) Changes() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changes
}

// Snapshot returns a copy of the grid as rows of colors.
func (s *Store) Snapshot() [][]Color {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([][]Color, s.rows)
	for r := 0; r < s.rows; r++ {
		row := make([]Color, s.cols)
		copy(row, s.cells[r*s.cols:(r+1)*s.cols])
		out[r] = row
	}
	return out
}

// Subscribe returns a channel of cell changes and a func to stop receiving.
func (s *Store) Subscribe() (<-chan Change, func()) {
	return s.changed.Subscribe()
}

// InBounds reports whether (row, col) addresses a cell. Presentation layers
// fed by untrusted input check this before calling ColorAt or TogglePixel.
func (s *Store) InBounds(row, col int) bool {
	return row >= 0 && row < s.rows && col >= 0 && col < s.cols
}

func (s *Store) index(row, col int) int {
	if !s.InBounds(row, col) {
		panic(fmt.Sprintf("pixel: (%d,%d) outside %dx%d grid", row, col, s.rows, s.cols))
	}
	return row*s.cols + col
}
