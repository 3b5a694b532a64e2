package core

// Icon tags a category with one of a fixed set of glyph names.
type Icon string

// Icons lists the accepted category icons in picker order.
var Icons = []Icon{
	"wallet",
	"shopping-cart",
	"utensils",
	"coffee",
	"car",
	"bus",
	"plane",
	"home",
	"zap",
	"smartphone",
	"heart-pulse",
	"graduation-cap",
	"book",
	"film",
	"gamepad",
	"gift",
	"shirt",
	"briefcase",
	"piggy-bank",
	"landmark",
}

func (i Icon) Valid() bool {
	for _, known := range Icons {
		if i == known {
			return true
		}
	}
	return false
}
