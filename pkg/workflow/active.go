package workflow

// Satisfied reports whether every input pipe of w has pipe data whose content is ready.
func Satisfied(w Widget, p PipeDatasByWidget) bool {
	pds := GetPipeDatas(w.InputPipes, p)
	if len(pds) != len(w.InputPipes) {
		return false
	}

	for _, pd := range pds {
		if pd.Pending() {
			return false
		}
	}

	return true
}

// GetActiveIndex returns the index of the first widget whose inputs are not all present and fetched. When
// every widget is satisfied it returns the index of the last one. It returns 0 for an empty list.
func GetActiveIndex(widgets []Widget, p PipeDatasByWidget) int {
	for i, w := range widgets {
		if !Satisfied(w, p) {
			return i
		}
	}

	if len(widgets) == 0 {
		return 0
	}

	return len(widgets) - 1
}
