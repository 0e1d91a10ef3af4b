package repository

const (
	// ThemeKey is shared with the rest of the application and is not exam-scoped.
	ThemeKey    = "theme"
	FontSizeKey = "exam_font_size"

	ThemeLight = "light"
	ThemeDark  = "dark"
)

// FontSizes is the scale the stored index points into.
var FontSizes = []int{14, 16, 18, 20, 22, 24}

const DefaultFontSizeIndex = 1

type ThemeRepository struct {
	store *Store
}

func NewThemeRepository(store *Store) *ThemeRepository {
	return &ThemeRepository{store: store}
}

func (r *ThemeRepository) Get() string {
	var theme string
	if r.store.Get(ThemeKey, &theme) && (theme == ThemeLight || theme == ThemeDark) {
		return theme
	}
	return ThemeLight
}

func (r *ThemeRepository) Set(theme string) bool {
	if theme != ThemeLight && theme != ThemeDark {
		return false
	}
	return r.store.Set(ThemeKey, theme)
}

func (r *ThemeRepository) Toggle() string {
	next := ThemeDark
	if r.Get() == ThemeDark {
		next = ThemeLight
	}
	r.Set(next)
	return next
}

type FontSizeRepository struct {
	store *Store
}

func NewFontSizeRepository(store *Store) *FontSizeRepository {
	return &FontSizeRepository{store: store}
}

func ClampFontSizeIndex(i int) int {
	if i < 0 {
		return 0
	}
	if i >= len(FontSizes) {
		return len(FontSizes) - 1
	}
	return i
}

func (r *FontSizeRepository) Get() int {
	var i int
	if !r.store.Get(FontSizeKey, &i) {
		return DefaultFontSizeIndex
	}
	return ClampFontSizeIndex(i)
}

func (r *FontSizeRepository) Set(i int) int {
	i = ClampFontSizeIndex(i)
	r.store.Set(FontSizeKey, i)
	return i
}
