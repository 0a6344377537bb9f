package domain

// Position is a point in page coordinates.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Velocity is the pointer speed between two broadcast positions, in
// coordinate units per second.
type Velocity struct {
	DX float64 `json:"dx"`
	DY float64 `json:"dy"`
}

// ClickType distinguishes mouse buttons in click events.
type ClickType string

const (
	ClickLeft   ClickType = "left"
	ClickRight  ClickType = "right"
	ClickMiddle ClickType = "middle"
)

// Valid reports whether the click type is one of the known buttons.
func (c ClickType) Valid() bool {
	return c == ClickLeft || c == ClickRight || c == ClickMiddle
}

// CursorState is the ephemeral pointer state of one user in one room.
// Owned exclusively by the tracking engine, never persisted.
type CursorState struct {
	UserID   string     `json:"userId"`
	Username string     `json:"username"`
	Position Position   `json:"position"`
	Velocity Velocity   `json:"velocity"`
	Trail    []Position `json:"trail,omitempty"`
	Color    string     `json:"color"`
	IsIdle   bool       `json:"isIdle"`
}

// cursorPalette is the fixed set of fallback cursor colors. Colors are
// assigned deterministically from the user id so a user keeps the same
// color across reconnects without any persisted state.
var cursorPalette = []string{
	"#e6194b", "#3cb44b", "#ffe119", "#4363d8", "#f58231",
	"#911eb4", "#46f0f0", "#f032e6", "#bcf60c", "#fabebe",
	"#008080", "#e6beff", "#9a6324", "#800000", "#aaffc3",
	"#808000",
}

// CursorColor returns the deterministic fallback color for a user id:
// the sum of its character codes modulo the palette size.
func CursorColor(userID string) string {
	sum := 0
	for _, r := range userID {
		sum += int(r)
	}
	return cursorPalette[sum%len(cursorPalette)]
}
