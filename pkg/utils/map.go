package utils

// Map generates a sequence constructed by applying a function to all
// elements of an input sequence.
func Map[T any, U any](input []T, mapFunction func(T) U) []U {
	output := make([]U, len(input))

	for i := range input {
		output[i] = mapFunction(input[i])
	}

	return output
}
