package configs

var useHeadless = true

// InitHeadless sets the process-wide browser headless switch.
func InitHeadless(h bool) {
	useHeadless = h
}

// IsHeadless reports whether browsers should be launched without a window.
func IsHeadless() bool {
	return useHeadless
}
