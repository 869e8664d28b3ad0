package chat

import "math/rand/v2"

// palette is the set of sender colors assigned to clients that don't pick one.
var palette = []string{
	"#E91E63", "#9C27B0", "#673AB7", "#3F51B5", "#2196F3", "#00BCD4",
	"#009688", "#4CAF50", "#FF9800", "#FF5722", "#795548", "#607D8B",
}

// RandomColor returns a random color from the palette.
func RandomColor() string {
	return palette[rand.IntN(len(palette))]
}
