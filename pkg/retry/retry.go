package retry

// Action is a function to be performed in a retriable manner
type Action func() error

// Retry executes action until it succeeds or one of the strategies says to
// stop. It returns the number of attempts made and the last error.
//
// Strategies run in order, so strategies that sleep belong last.
func Retry(action Action, strategies ...Strategy) (uint, error) {
	for attempts := uint(1); ; attempts++ {
		err := action()
		if err == nil {
			return attempts, nil
		}

		for _, s := range strategies {
			if !s(attempts, err) {
				return attempts, err
			}
		}
	}
}
