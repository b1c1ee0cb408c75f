package http

// Sanitize strips every leading '.' and '/' from path so a caller-controlled
// relative prefix (../, ./, //) never reaches file resolution.
// A path made only of those characters is returned unchanged.
func Sanitize(path string) string {
	for i := 0; i < len(path); i++ {
		if c := path[i]; c != '.' && c != '/' {
			return path[i:]
		}
	}
	return path
}
