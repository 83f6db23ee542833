package utils

//LastN returns the last n elements of given sequence, or all of them when it is shorter.
//The result shares its backing array with seq
func LastN[T any](seq []T, n int) []T {
	if n <= 0 {
		return nil
	}
	if len(seq) <= n {
		return seq
	}
	return seq[len(seq)-n:]
}

//FirstN returns the first n elements of given sequence, or all of them when it is shorter
func FirstN[T any](seq []T, n int) []T {
	if n <= 0 {
		return nil
	}
	if len(seq) <= n {
		return seq
	}
	return seq[:n]
}
